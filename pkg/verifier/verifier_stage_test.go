package verifier

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/form3tech-oss/pact-kit/internal/app/engine"
	"github.com/form3tech-oss/pact-kit/pkg/pact"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passedReport = `{
  "version": "3.10.0",
  "examples": [
    {
      "description": "has status code 200",
      "full_description": "Verifying a pact between User Web and User API Given a user exists a request for a user with GET /users/1 returns a response which has status code 200",
      "status": "passed"
    },
    {
      "description": "has a matching body",
      "full_description": "Verifying a pact between User Web and User API Given a user exists a request for a user with GET /users/1 returns a response which has a matching body",
      "status": "passed"
    }
  ],
  "summary": {"example_count": 2, "failure_count": 0}
}`

const failedReport = `{
  "examples": [
    {
      "description": "has status code 200",
      "full_description": "Verifying a pact between User Web and User API Given a user exists a request for a user with GET /users/1 returns a response which has status code 200",
      "status": "failed",
      "exception": {"class": "RSpec::Expectations::ExpectationNotMetError", "message": "expected 200\n     got 404"}
    },
    {
      "description": "has a matching body",
      "full_description": "Verifying a pact between Admin Web and User API a health check with GET /health returns a response which has a matching body",
      "status": "passed"
    }
  ]
}`

type fakeRunner struct {
	commands []engine.Command
	code     int
	output   string
	report   string
	during   func(cmd engine.Command)
	err      error
}

func (r *fakeRunner) Run(ctx context.Context, cmd engine.Command) (engine.Result, error) {
	r.commands = append(r.commands, cmd)
	if r.err != nil {
		return engine.Result{}, r.err
	}
	if r.during != nil {
		r.during(cmd)
	}
	if r.report != "" {
		if out := flagValue(cmd.Args, "--out"); out != "" {
			if err := os.WriteFile(out, []byte(r.report), 0o600); err != nil {
				return engine.Result{}, err
			}
		}
	}
	return engine.Result{Code: r.code, Output: r.output}, nil
}

func (r *fakeRunner) Start(ctx context.Context, cmd engine.Command) (engine.Process, error) {
	panic("the verifier does not start long running engines")
}

func flagValue(args []string, flag string) string {
	for _, a := range args {
		if strings.HasPrefix(a, flag+"=") {
			return strings.TrimPrefix(a, flag+"=")
		}
	}
	return ""
}

type VerifierStage struct {
	t        *testing.T
	assert   *assert.Assertions
	require  *require.Assertions
	dir      string
	runner   *fakeRunner
	verifier *Verifier
	result   *Result
	err      error
}

func NewVerifierStage(t *testing.T) (*VerifierStage, *VerifierStage, *VerifierStage) {
	runner := &fakeRunner{report: passedReport}
	s := &VerifierStage{
		t:       t,
		assert:  assert.New(t),
		require: require.New(t),
		dir:     t.TempDir(),
		runner:  runner,
	}
	s.verifier = New("User API", WithRunner(runner), WithRerunCommand("make verify"))
	return s, s, s
}

func (s *VerifierStage) and() *VerifierStage {
	return s
}

func (s *VerifierStage) a_pact_file_from_(consumer string, states ...string) *VerifierStage {
	p := pact.New(consumer, "User API")
	b := p.AddInteraction()
	for _, state := range states {
		b.Given(state)
	}
	b.UponReceiving("a request from " + consumer).
		WithRequest(pact.Request{Method: "GET", Path: "/users/1"}).
		WillRespondWith(pact.Response{Status: 200})
	_, err := pact.WriteFile(p, s.dir, pact.Overwrite)
	s.require.NoError(err)
	return s
}

func (s *VerifierStage) the_pact_directory_is_a_source() *VerifierStage {
	s.verifier.AddDirectory(s.dir)
	return s
}

func (s *VerifierStage) a_provider_at_(port int) *VerifierStage {
	s.verifier.SetProviderInfo(ProviderInfo{Port: port})
	return s
}

func (s *VerifierStage) state_handlers_for_(states ...string) *VerifierStage {
	handlers := map[string]StateFunc{}
	for _, state := range states {
		handlers[state] = func(string, map[string]any) error { return nil }
	}
	s.verifier.SetStateHandlers(handlers)
	return s
}

func (s *VerifierStage) the_engine_reports_(report string, code int) *VerifierStage {
	s.runner.report = report
	s.runner.code = code
	return s
}

func (s *VerifierStage) the_engine_fails_with_(code int, output string) *VerifierStage {
	s.runner.report = ""
	s.runner.code = code
	s.runner.output = output
	return s
}

func (s *VerifierStage) the_engine_calls_(during func(cmd engine.Command)) *VerifierStage {
	s.runner.during = during
	return s
}

func (s *VerifierStage) the_verification_is_executed() *VerifierStage {
	s.result, s.err = s.verifier.Execute(context.Background())
	return s
}

func (s *VerifierStage) a_configuration_error_naming_(field string) *VerifierStage {
	var configErr *ConfigError
	s.require.ErrorAs(s.err, &configErr)
	s.assert.Equal(field, configErr.Field)
	return s
}

func (s *VerifierStage) the_error_mentions_(text string) *VerifierStage {
	s.require.Error(s.err)
	s.assert.Contains(s.err.Error(), text)
	return s
}

func (s *VerifierStage) the_engine_was_not_run() *VerifierStage {
	s.assert.Empty(s.runner.commands)
	return s
}

func (s *VerifierStage) the_engine_was_run_with_(args ...string) *VerifierStage {
	s.require.Len(s.runner.commands, 1)
	for _, arg := range args {
		s.assert.Contains(s.runner.commands[0].Args, arg)
	}
	return s
}

func (s *VerifierStage) the_engine_was_run_without_(prefix string) *VerifierStage {
	s.require.Len(s.runner.commands, 1)
	s.assert.Empty(flagValue(s.runner.commands[0].Args, prefix))
	return s
}

func (s *VerifierStage) the_engine_verified_files_(names ...string) *VerifierStage {
	s.require.Len(s.runner.commands, 1)
	var got []string
	for _, a := range s.runner.commands[0].Args {
		if strings.HasPrefix(a, "--pact-url=") {
			got = append(got, filepath.Base(strings.TrimPrefix(a, "--pact-url=")))
		}
	}
	s.assert.ElementsMatch(names, got)
	return s
}

func (s *VerifierStage) the_engine_env_has_(key, value string) *VerifierStage {
	s.require.Len(s.runner.commands, 1)
	s.assert.Equal(value, s.runner.commands[0].Env[key])
	return s
}

func (s *VerifierStage) the_verification_passed() *VerifierStage {
	s.require.NoError(s.err)
	s.assert.True(s.result.Passed())
	return s
}

func (s *VerifierStage) the_verification_failed() *VerifierStage {
	s.require.NoError(s.err)
	s.assert.False(s.result.Passed())
	return s
}
