package mockserver

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/form3tech-oss/pact-kit/internal/app/engine"
	"github.com/form3tech-oss/pact-kit/pkg/mismatch"
	"github.com/form3tech-oss/pact-kit/pkg/pact"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type controlCall struct {
	method  string
	path    string
	control string
	body    map[string]any
}

// controlPlane imitates the mock service admin API.
type controlPlane struct {
	mu                 sync.Mutex
	calls              []controlCall
	verificationStatus int
	verificationBody   string
}

func (c *controlPlane) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	call := controlCall{method: r.Method, path: r.URL.Path, control: r.Header.Get(controlHeader)}
	if data, _ := io.ReadAll(r.Body); len(data) > 0 {
		_ = json.Unmarshal(data, &call.body)
	}
	c.mu.Lock()
	c.calls = append(c.calls, call)
	status, body := c.verificationStatus, c.verificationBody
	c.mu.Unlock()

	if r.URL.Path == "/interactions/verification" {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (c *controlPlane) recorded() []controlCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]controlCall(nil), c.calls...)
}

type fakeProcess struct {
	once   sync.Once
	done   chan struct{}
	code   int
	output string
	stops  int
}

func (p *fakeProcess) Done() <-chan struct{} { return p.done }
func (p *fakeProcess) ExitCode() int         { return p.code }
func (p *fakeProcess) Output() string        { return p.output }
func (p *fakeProcess) Stop() error {
	p.stops++
	p.once.Do(func() { close(p.done) })
	return nil
}

type fakeRunner struct {
	commands []engine.Command
	process  *fakeProcess
}

func (r *fakeRunner) Run(ctx context.Context, cmd engine.Command) (engine.Result, error) {
	r.commands = append(r.commands, cmd)
	return engine.Result{}, nil
}

func (r *fakeRunner) Start(ctx context.Context, cmd engine.Command) (engine.Process, error) {
	r.commands = append(r.commands, cmd)
	return r.process, nil
}

type MockServerStage struct {
	t       *testing.T
	assert  *assert.Assertions
	require *require.Assertions
	plane   *controlPlane
	http    *httptest.Server
	runner  *fakeRunner
	cfg     Config
	pact    *pact.Pact
	server  *Server
	result  *Result
	err     error
	testRan bool
}

func NewMockServerStage(t *testing.T) (*MockServerStage, *MockServerStage, *MockServerStage) {
	plane := &controlPlane{verificationStatus: http.StatusOK, verificationBody: "Interactions matched"}
	ts := httptest.NewServer(plane)

	host, port, err := net.SplitHostPort(ts.Listener.Addr().String())
	require.NoError(t, err)
	portNumber, err := strconv.Atoi(port)
	require.NoError(t, err)

	runner := &fakeRunner{process: &fakeProcess{done: make(chan struct{}), code: -1}}
	s := &MockServerStage{
		t:       t,
		assert:  assert.New(t),
		require: require.New(t),
		plane:   plane,
		http:    ts,
		runner:  runner,
		cfg: Config{
			Host:    host,
			Port:    portNumber,
			PactDir: t.TempDir(),
			LogDir:  t.TempDir(),
			Runner:  runner,
		},
	}
	t.Cleanup(func() {
		if s.server != nil {
			_ = s.server.Shutdown()
		}
		ts.Close()
	})
	return s, s, s
}

func (s *MockServerStage) and() *MockServerStage {
	return s
}

func (s *MockServerStage) a_user_pact() *MockServerStage {
	return s.a_user_pact_with_specification_(pact.V3)
}

func (s *MockServerStage) a_user_pact_with_specification_(spec pact.Specification) *MockServerStage {
	s.pact = pact.New("User Web", "User API", pact.WithSpecification(spec))
	s.pact.AddInteraction().
		Given("a user exists").
		UponReceiving("a request for a user").
		WithRequest(pact.Request{Method: "GET", Path: "/users/1"}).
		WillRespondWith(pact.Response{Status: 200, Body: map[string]any{"id": 1}})
	return s
}

func (s *MockServerStage) the_verification_fails_with_(body string) *MockServerStage {
	return s.the_verification_answers_(http.StatusInternalServerError, body)
}

func (s *MockServerStage) the_verification_answers_(status int, body string) *MockServerStage {
	s.plane.mu.Lock()
	defer s.plane.mu.Unlock()
	s.plane.verificationStatus = status
	s.plane.verificationBody = body
	return s
}

func (s *MockServerStage) the_engine_exits_with_(code int, output string) *MockServerStage {
	s.runner.process.code = code
	s.runner.process.output = output
	s.runner.process.once.Do(func() { close(s.runner.process.done) })
	return s
}

func (s *MockServerStage) pact_writing_is_enabled() *MockServerStage {
	s.cfg.WritePact = true
	return s
}

func (s *MockServerStage) the_mock_server_is_started() *MockServerStage {
	s.server, s.err = Start(context.Background(), s.pact, s.cfg)
	return s
}

func (s *MockServerStage) the_mock_server_is_connected() *MockServerStage {
	s.server, s.err = Connect(context.Background(), s.http.URL, s.pact, s.cfg)
	return s
}

func (s *MockServerStage) the_mock_server_is_shut_down() *MockServerStage {
	s.require.NoError(s.server.Shutdown())
	return s
}

func (s *MockServerStage) a_test_is_run() *MockServerStage {
	return s.a_test_is_run_with_(func(*Server) error {
		s.testRan = true
		return nil
	})
}

func (s *MockServerStage) a_test_is_run_with_(test func(*Server) error) *MockServerStage {
	s.result, s.err = Run(context.Background(), s.pact, s.cfg, test)
	return s
}

func (s *MockServerStage) no_error_is_returned() *MockServerStage {
	s.require.NoError(s.err)
	return s
}

func (s *MockServerStage) the_error_is_(expected error) *MockServerStage {
	s.assert.ErrorIs(s.err, expected)
	return s
}

func (s *MockServerStage) the_error_contains_(text string) *MockServerStage {
	s.require.Error(s.err)
	s.assert.Contains(s.err.Error(), text)
	return s
}

func (s *MockServerStage) the_engine_was_started_with_(args ...string) *MockServerStage {
	s.require.NotEmpty(s.runner.commands)
	cmd := s.runner.commands[0]
	s.assert.Equal("pact-mock-service", cmd.Binary)
	for _, arg := range args {
		s.assert.Contains(cmd.Args, arg)
	}
	return s
}

func (s *MockServerStage) the_engine_was_stopped() *MockServerStage {
	s.assert.Equal(1, s.runner.process.stops)
	return s
}

func (s *MockServerStage) the_interactions_were_registered() *MockServerStage {
	calls := s.plane.recorded()
	var sawDelete bool
	for _, c := range calls {
		s.assert.Equal("true", c.control, "%s %s", c.method, c.path)
		if c.method == http.MethodDelete && c.path == "/interactions" {
			sawDelete = true
		}
		if c.method == http.MethodPut && c.path == "/interactions" {
			s.assert.True(sawDelete, "interactions must be cleared before they are registered")
			interactions, _ := c.body["interactions"].([]any)
			s.require.Len(interactions, 1)
			s.assert.Equal("a request for a user", c.body["example_description"])
			return s
		}
	}
	s.t.Fatalf("no interactions registered in %v", calls)
	return s
}

func (s *MockServerStage) the_pact_file_was_requested_with_mode_(mode string) *MockServerStage {
	for _, c := range s.plane.recorded() {
		if c.method == http.MethodPost && c.path == "/pact" {
			s.assert.Equal(mode, c.body["pactfile_write_mode"])
			s.assert.Equal(s.cfg.PactDir, c.body["pact_dir"])
			s.assert.Equal(map[string]any{"name": "User Web"}, c.body["consumer"])
			return s
		}
	}
	s.t.Fatal("pact file was never requested")
	return s
}

func (s *MockServerStage) no_pact_file_was_requested() *MockServerStage {
	for _, c := range s.plane.recorded() {
		s.assert.False(c.method == http.MethodPost && c.path == "/pact", "unexpected pact file request")
	}
	return s
}

func (s *MockServerStage) the_result_matched() *MockServerStage {
	s.require.NotNil(s.result)
	s.assert.True(s.result.Matched)
	s.assert.NoError(s.result.Err())
	return s
}

func (s *MockServerStage) the_result_has_mismatches_(expected ...mismatch.Mismatch) *MockServerStage {
	s.require.NotNil(s.result)
	s.assert.False(s.result.Matched)
	s.assert.Equal(expected, s.result.Mismatches)
	var mismatchErr *mismatch.Error
	s.assert.ErrorAs(s.result.Err(), &mismatchErr)
	return s
}

func (s *MockServerStage) the_test_ran() *MockServerStage {
	s.assert.True(s.testRan)
	return s
}
