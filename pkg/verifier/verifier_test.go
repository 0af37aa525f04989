package verifier

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/form3tech-oss/pact-kit/internal/app/engine"
	"github.com/form3tech-oss/pact-kit/pkg/pact"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigurationErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(v *Verifier)
		field string
	}{
		{
			name:  "no sources",
			setup: func(v *Verifier) { v.SetProviderInfo(ProviderInfo{Port: 8080}) },
			field: "sources",
		},
		{
			name:  "no provider info",
			setup: func(v *Verifier) { v.AddURL("http://broker/pacts/1") },
			field: "provider info",
		},
		{
			name: "broker username without password",
			setup: func(v *Verifier) {
				v.AddBroker(BrokerSource{URL: "http://broker", Username: "pact"}).SetProviderInfo(ProviderInfo{Port: 8080})
			},
			field: "broker password",
		},
		{
			name: "broker token and username",
			setup: func(v *Verifier) {
				v.AddBroker(BrokerSource{URL: "http://broker", Username: "pact", Password: "secret", Token: "t"}).
					SetProviderInfo(ProviderInfo{Port: 8080})
			},
			field: "broker token",
		},
		{
			name: "broker without URL",
			setup: func(v *Verifier) {
				v.AddBroker(BrokerSource{Token: "t"}).SetProviderInfo(ProviderInfo{Port: 8080})
			},
			field: "broker URL",
		},
		{
			name: "publishing without provider version",
			setup: func(v *Verifier) {
				v.AddURL("http://broker/pacts/1").SetProviderInfo(ProviderInfo{Port: 8080}).SetPublishOptions(PublishOptions{})
			},
			field: "provider version",
		},
		{
			name: "publishing local files",
			setup: func(v *Verifier) {
				v.AddFile("pacts/a-b.json").SetProviderInfo(ProviderInfo{Port: 8080}).
					SetPublishOptions(PublishOptions{ProviderVersion: "1.0.0"})
			},
			field: "publish",
		},
		{
			name: "unsupported transport",
			setup: func(v *Verifier) {
				v.AddURL("http://broker/pacts/1").SetProviderInfo(ProviderInfo{Port: 8080}).
					AddTransport(Transport{Protocol: "grpc", Port: 9090})
			},
			field: "transport",
		},
		{
			name: "state URL and handlers",
			setup: func(v *Verifier) {
				v.AddURL("http://broker/pacts/1").SetProviderInfo(ProviderInfo{Port: 8080}).
					SetStateURL("http://localhost/states").SetStateHandlers(map[string]StateFunc{})
			},
			field: "state handler",
		},
		{
			name: "invalid description filter",
			setup: func(v *Verifier) {
				v.AddURL("http://broker/pacts/1").SetProviderInfo(ProviderInfo{Port: 8080}).FilterDescription("(")
			},
			field: "description filter",
		},
		{
			name: "missing file",
			setup: func(v *Verifier) {
				v.AddFile(filepath.Join(t.TempDir(), "missing.json")).SetProviderInfo(ProviderInfo{Port: 8080})
			},
			field: "file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			given, when, then := NewVerifierStage(t)

			tt.setup(given.verifier)

			when.the_verification_is_executed()

			then.
				a_configuration_error_naming_(tt.field).and().
				the_engine_was_not_run()
		})
	}
}

func TestMissingStateHandlerFailsBeforeEngine(t *testing.T) {
	given, when, then := NewVerifierStage(t)

	given.a_pact_file_from_("User Web", "a user exists").and().
		the_pact_directory_is_a_source().and().
		a_provider_at_(8080).and().
		state_handlers_for_("something else")

	when.the_verification_is_executed()

	then.
		a_configuration_error_naming_("state handler").and().
		the_error_mentions_(`no handler for provider state "a user exists"`).and().
		the_engine_was_not_run()
}

func TestFilteredOutStateNeedsNoHandler(t *testing.T) {
	given, when, then := NewVerifierStage(t)

	given.a_pact_file_from_("User Web", "a user exists").and().
		a_pact_file_from_("Admin Web").and().
		the_pact_directory_is_a_source().and().
		a_provider_at_(8080).and().
		state_handlers_for_()
	given.verifier.FilterNoState()

	when.the_verification_is_executed()

	then.
		the_verification_passed().and().
		the_engine_env_has_("PACT_PROVIDER_NO_STATE", "TRUE")
}

func TestDirectorySourcesAreNotRecursive(t *testing.T) {
	given, when, then := NewVerifierStage(t)

	given.a_pact_file_from_("User Web").and().
		a_provider_at_(8080).and().
		the_pact_directory_is_a_source()
	require.NoError(t, os.MkdirAll(filepath.Join(given.dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(given.dir, "nested", "other.json"), []byte(`{}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(given.dir, "notes.txt"), []byte(`notes`), 0o600))

	when.the_verification_is_executed()

	then.
		the_verification_passed().and().
		the_engine_verified_files_("user_web-user_api.json")
}

func TestConsumerFilter(t *testing.T) {
	given, when, then := NewVerifierStage(t)

	given.a_pact_file_from_("User Web").and().
		a_pact_file_from_("Admin Web").and().
		the_pact_directory_is_a_source().and().
		a_provider_at_(8080)
	given.verifier.FilterConsumers("Admin Web")

	when.the_verification_is_executed()

	then.the_engine_verified_files_("admin_web-user_api.json")
}

func TestConsumerFilterMatchingNothing(t *testing.T) {
	given, when, then := NewVerifierStage(t)

	given.a_pact_file_from_("User Web").and().
		the_pact_directory_is_a_source().and().
		a_provider_at_(8080)
	given.verifier.FilterConsumers("Nobody")

	when.the_verification_is_executed()

	then.
		a_configuration_error_naming_("consumers").and().
		the_engine_was_not_run()
}

func TestEngineArguments(t *testing.T) {
	given, when, then := NewVerifierStage(t)

	given.verifier.
		AddURL("http://broker/pacts/provider/User%20API/consumer/User%20Web/latest").
		AddBroker(BrokerSource{
			URL:             "http://broker",
			Token:           "secret",
			Selectors:       []ConsumerVersionSelector{{Tag: "main", Latest: true}},
			ConsumerTags:    []string{"prod"},
			EnablePending:   true,
			IncludeWIPSince: "2021-01-31",
			ProviderTags:    []string{"dev"},
			ProviderBranch:  "main",
		}).
		SetProviderInfo(ProviderInfo{Host: "api", Port: 8080, Path: "/v1"}).
		SetStateURL("http://api:8080/_states").
		SetPublishOptions(PublishOptions{ProviderVersion: "1.2.3", Tags: []string{"ci"}, BuildURL: "http://ci/1"}).
		AddCustomHeader("Authorization: Bearer x").
		SetRequestTimeout(1500 * time.Millisecond).
		FilterDescription("a request").
		FilterState("a user.*")

	when.the_verification_is_executed()

	then.
		the_verification_passed().and().
		the_engine_was_run_with_(
			"--pact-url=http://broker/pacts/provider/User%20API/consumer/User%20Web/latest",
			"--provider-base-url=http://api:8080/v1",
			"--provider=User API",
			"--provider-states-setup-url=http://api:8080/_states",
			"--pact-broker-base-url=http://broker",
			"--broker-token=secret",
			"--enable-pending",
			"--include-wip-pacts-since=2021-01-31",
			`--consumer-version-selector={"tag":"main","latest":true}`,
			"--consumer-version-tag=prod",
			"--provider-version-tag=dev",
			"--provider-version-branch=main",
			"--provider-app-version=1.2.3",
			"--publish-verification-results",
			"--provider-version-tag=ci",
			"--build-url=http://ci/1",
			"--custom-provider-header=Authorization: Bearer x",
			"--request-timeout=2",
			"--format=json",
		).and().
		the_engine_env_has_("PACT_DESCRIPTION", "a request").and().
		the_engine_env_has_("PACT_PROVIDER_STATE", "a user.*").and().
		the_engine_env_has_("PACT_INTERACTION_RERUN_COMMAND", "make verify")
}

func TestLocalVerificationHasNoBrokerFlags(t *testing.T) {
	given, when, then := NewVerifierStage(t)

	given.a_pact_file_from_("User Web").and().
		the_pact_directory_is_a_source().and().
		a_provider_at_(8080)

	when.the_verification_is_executed()

	then.
		the_verification_passed().and().
		the_engine_was_run_with_("--provider-base-url=http://localhost:8080").and().
		the_engine_was_run_without_("--pact-broker-base-url").and().
		the_engine_was_run_without_("--request-timeout")
}

func TestHTTPTransportOverridesProviderInfo(t *testing.T) {
	given, when, then := NewVerifierStage(t)

	given.a_pact_file_from_("User Web").and().
		the_pact_directory_is_a_source().and().
		a_provider_at_(8080)
	given.verifier.AddTransport(Transport{Protocol: ProtocolHTTPS, Port: 8443, Path: "/api"})

	when.the_verification_is_executed()

	then.the_engine_was_run_with_("--provider-base-url=https://localhost:8443/api")
}

func TestDefaultRerunCommand(t *testing.T) {
	v := New("User API")

	env := v.env()

	assert.True(t, strings.HasPrefix(env["PACT_INTERACTION_RERUN_COMMAND"],
		"PACT_DESCRIPTION='<PACT_DESCRIPTION>' PACT_PROVIDER_STATE='<PACT_PROVIDER_STATE>' "))
	assert.NotContains(t, env, "PACT_DESCRIPTION")
}

func TestFailedVerification(t *testing.T) {
	given, when, then := NewVerifierStage(t)

	given.a_pact_file_from_("User Web").and().
		the_pact_directory_is_a_source().and().
		a_provider_at_(8080).and().
		the_engine_reports_(failedReport, 1)
	given.runner.output = "1 interaction, 1 failure\n     # /usr/lib/vendor/ruby/2.7.0/gems/rspec.rb:1\nFailed interactions:"

	when.the_verification_is_executed()

	then.the_verification_failed()
	result := then.result
	assert.Equal(t, 1, result.ExitCode)
	require.Len(t, result.Interactions, 2)
	assert.Equal(t, "User Web", result.Interactions[0].Consumer)
	assert.Equal(t, "Given a user exists a request for a user with GET /users/1", result.Interactions[0].Description)
	assert.False(t, result.Interactions[0].Passed)
	assert.Equal(t, "expected 200\n     got 404", result.Interactions[0].Message)
	require.Len(t, result.Interactions[0].Mismatches, 1)
	assert.Equal(t, "VerificationFailure", result.Interactions[0].Mismatches[0].Type())
	assert.Equal(t, "Admin Web", result.Interactions[1].Consumer)
	assert.True(t, result.Interactions[1].Passed)
	assert.Len(t, result.Failed(), 1)
	assert.NotContains(t, result.Logs, "vendor/ruby")
	assert.Contains(t, result.Logs, "Failed interactions:")
}

func TestEngineFailureWithoutResults(t *testing.T) {
	given, when, then := NewVerifierStage(t)

	given.a_pact_file_from_("User Web").and().
		the_pact_directory_is_a_source().and().
		a_provider_at_(8080).and().
		the_engine_fails_with_(2, "could not load pact")

	when.the_verification_is_executed()

	then.the_error_mentions_("failed with code 2: could not load pact")
	var engineErr *engine.Error
	require.ErrorAs(t, then.err, &engineErr)
	assert.Equal(t, 2, engineErr.Code)
	assert.Equal(t, 2, then.result.ExitCode)
}

func TestInProcessStateHandlers(t *testing.T) {
	given, when, then := NewVerifierStage(t)
	var calls []string

	given.a_pact_file_from_("User Web", "a user exists").and().
		the_pact_directory_is_a_source().and().
		a_provider_at_(8080)
	given.verifier.
		SetStateTeardown(true).
		SetStateHandlers(map[string]StateFunc{
			"a user exists": func(action string, params map[string]any) error {
				calls = append(calls, action)
				return nil
			},
		})
	given.the_engine_calls_(func(cmd engine.Command) {
		stateURL := flagValue(cmd.Args, "--provider-states-setup-url")
		for _, body := range []string{
			`{"state":"a user exists","action":"setup"}`,
			`{"state":"a user exists","action":"teardown"}`,
		} {
			res, err := http.Post(stateURL, "application/json", strings.NewReader(body))
			require.NoError(t, err)
			_ = res.Body.Close()
			assert.Equal(t, http.StatusOK, res.StatusCode)
		}
	})

	when.the_verification_is_executed()

	then.the_verification_passed()
	assert.Equal(t, []string{"setup", "teardown"}, calls)
}

func TestTeardownIsSkippedByDefault(t *testing.T) {
	given, when, then := NewVerifierStage(t)
	var calls []string

	given.a_pact_file_from_("User Web").and().
		the_pact_directory_is_a_source().and().
		a_provider_at_(8080)
	given.verifier.SetStateFunc(func(name, action string, params map[string]any) error {
		calls = append(calls, name+":"+action)
		return nil
	})
	given.the_engine_calls_(func(cmd engine.Command) {
		stateURL := flagValue(cmd.Args, "--provider-states-setup-url")
		res, err := http.Post(stateURL, "application/json", strings.NewReader(`{"state":"any","action":"teardown"}`))
		require.NoError(t, err)
		_ = res.Body.Close()
	})

	when.the_verification_is_executed()

	then.the_verification_passed()
	assert.Empty(t, calls)
}

func TestMessageRelay(t *testing.T) {
	given, when, then := NewVerifierStage(t)
	var relayed string

	p := pact.New("Order Worker", "User API")
	p.AddMessage().
		Given("an order exists").
		ExpectsToReceive("an order created event").
		WithContent(map[string]any{"id": 7})
	_, err := pact.WriteFile(p, given.dir, pact.Overwrite)
	require.NoError(t, err)

	given.the_pact_directory_is_a_source()
	given.verifier.SetMessageHandlers(map[string]MessageFunc{
		"an order created event": func(states []pact.ProviderState) (Message, error) {
			return Message{Contents: map[string]any{"id": 7}}, nil
		},
	})
	given.the_engine_calls_(func(cmd engine.Command) {
		base := flagValue(cmd.Args, "--provider-base-url")
		stateURL := flagValue(cmd.Args, "--provider-states-setup-url")

		res, err := http.Post(stateURL, "application/json", strings.NewReader(`{"state":"an order exists"}`))
		require.NoError(t, err)
		_ = res.Body.Close()
		assert.Equal(t, http.StatusOK, res.StatusCode)

		res, err = http.Post(base, "application/json", strings.NewReader(`{"description":"an order created event"}`))
		require.NoError(t, err)
		defer res.Body.Close()
		body, _ := io.ReadAll(res.Body)
		relayed = string(body)
	})

	when.the_verification_is_executed()

	then.the_verification_passed()
	assert.JSONEq(t, `{"contents":{"id":7}}`, relayed)
}

func TestResultPassed(t *testing.T) {
	tests := []struct {
		name     string
		result   *Result
		expected bool
	}{
		{name: "nil", result: nil, expected: false},
		{name: "no interactions", result: &Result{}, expected: true},
		{name: "non zero exit", result: &Result{ExitCode: 1}, expected: false},
		{name: "pending failure", result: &Result{Interactions: []InteractionResult{{Pending: true}}}, expected: true},
		{name: "failure", result: &Result{Interactions: []InteractionResult{{Passed: true}, {}}}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.result.Passed())
		})
	}
}

func TestSplitContext(t *testing.T) {
	consumer, description := splitContext("Verifying a pact between Web and Mobile and User API a request returns a response which", "User API")

	assert.Equal(t, "Web and Mobile", consumer)
	assert.Equal(t, "a request", description)
}
