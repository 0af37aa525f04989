// Package verifier replays the interactions of one or more pacts against a
// running provider using the pact-provider-verifier engine.
package verifier

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/form3tech-oss/pact-kit/internal/app/engine"
	"github.com/form3tech-oss/pact-kit/pkg/pact"
)

// ConfigError is a verifier configuration problem found before any process
// or network use.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid verifier configuration: %s: %s", e.Field, e.Reason)
}

func configErrorf(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ProviderInfo locates the provider under test.
type ProviderInfo struct {
	Scheme string // defaults to http
	Host   string // defaults to localhost
	Port   int
	Path   string
}

// Transport is an additional way of reaching the provider. The engine drives
// one HTTP endpoint, so at most one "http" or "https" transport is allowed; a
// "message" transport places the message relay.
type Transport struct {
	Protocol string
	Port     int
	Path     string
	Scheme   string
}

const (
	ProtocolHTTP    = "http"
	ProtocolHTTPS   = "https"
	ProtocolMessage = "message"
)

// ConsumerVersionSelector picks the pacts to verify from a broker.
type ConsumerVersionSelector struct {
	Consumer           string `json:"consumer,omitempty"`
	Tag                string `json:"tag,omitempty"`
	Branch             string `json:"branch,omitempty"`
	FallbackTag        string `json:"fallbackTag,omitempty"`
	Latest             bool   `json:"latest,omitempty"`
	MainBranch         bool   `json:"mainBranch,omitempty"`
	MatchingBranch     bool   `json:"matchingBranch,omitempty"`
	DeployedOrReleased bool   `json:"deployedOrReleased,omitempty"`
	Deployed           bool   `json:"deployed,omitempty"`
	Released           bool   `json:"released,omitempty"`
	Environment        string `json:"environment,omitempty"`
}

func (s ConsumerVersionSelector) flag() (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return "--consumer-version-selector=" + string(b), nil
}

// BrokerSource fetches pacts for the provider from a pact broker.
type BrokerSource struct {
	URL      string
	Username string
	Password string
	Token    string

	Selectors       []ConsumerVersionSelector
	ConsumerTags    []string
	EnablePending   bool
	IncludeWIPSince string // e.g. 2021-01-31
	ProviderTags    []string
	ProviderBranch  string
}

func (b *BrokerSource) validate() error {
	switch {
	case b.URL == "":
		return configErrorf("broker URL", "a broker source needs a URL")
	case b.Username != "" && b.Password == "":
		return configErrorf("broker password", "a broker username requires a password")
	case b.Token != "" && b.Username != "":
		return configErrorf("broker token", "use either a broker token or a username, not both")
	}
	return nil
}

// PublishOptions publishes the verification results to the broker.
type PublishOptions struct {
	ProviderVersion string
	Branch          string
	Tags            []string
	BuildURL        string
}

// StateFunc sets up or tears down one named provider state.
type StateFunc func(action string, params map[string]any) error

// Message is what a message producer sends for an interaction.
type Message struct {
	Contents    any
	ContentType string
	Metadata    map[string]any
}

// MessageFunc produces the message of one interaction, keyed by description
// or provider state name.
type MessageFunc func(states []pact.ProviderState) (Message, error)

type source struct {
	kind string // file, dir or url
	path string
}

type Verifier struct {
	provider string

	sources []source
	broker  *BrokerSource

	info       *ProviderInfo
	transports []Transport

	stateURL      string
	stateTeardown bool
	stateHandlers map[string]StateFunc
	stateFunc     func(name, action string, params map[string]any) error
	messages      map[string]MessageFunc

	descriptionFilter string
	stateFilter       string
	noState           bool
	consumers         []string

	requestTimeout time.Duration
	headers        []string
	publish        *PublishOptions

	binary       string
	runner       engine.Runner
	logDir       string
	logLevel     string
	verbose      bool
	rerunCommand string
}

type Option func(*Verifier)

// WithBinary sets the engine binary, defaults to pact-provider-verifier.
func WithBinary(binary string) Option {
	return func(v *Verifier) {
		v.binary = binary
	}
}

func WithRunner(runner engine.Runner) Option {
	return func(v *Verifier) {
		v.runner = runner
	}
}

func WithLogDir(dir string) Option {
	return func(v *Verifier) {
		v.logDir = dir
	}
}

func WithLogLevel(level string) Option {
	return func(v *Verifier) {
		v.logLevel = level
	}
}

// WithVerbose keeps the engine's full output, backtraces included.
func WithVerbose(verbose bool) Option {
	return func(v *Verifier) {
		v.verbose = verbose
	}
}

// WithRerunCommand overrides the command the engine prints for rerunning a
// failed interaction.
func WithRerunCommand(command string) Option {
	return func(v *Verifier) {
		v.rerunCommand = command
	}
}

func New(provider string, opts ...Option) *Verifier {
	v := &Verifier{
		provider: provider,
		binary:   "pact-provider-verifier",
		runner:   engine.Exec{},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Verifier) AddFile(path string) *Verifier {
	v.sources = append(v.sources, source{kind: "file", path: path})
	return v
}

// AddDirectory verifies every *.json file directly inside dir.
func (v *Verifier) AddDirectory(dir string) *Verifier {
	v.sources = append(v.sources, source{kind: "dir", path: dir})
	return v
}

func (v *Verifier) AddURL(url string) *Verifier {
	v.sources = append(v.sources, source{kind: "url", path: url})
	return v
}

// AddBroker sets the broker to fetch pacts from. Only one broker is used.
func (v *Verifier) AddBroker(broker BrokerSource) *Verifier {
	v.broker = &broker
	return v
}

func (v *Verifier) SetProviderInfo(info ProviderInfo) *Verifier {
	v.info = &info
	return v
}

func (v *Verifier) AddTransport(t Transport) *Verifier {
	v.transports = append(v.transports, t)
	return v
}

// SetStateURL has the engine post provider state changes to url.
func (v *Verifier) SetStateURL(url string) *Verifier {
	v.stateURL = url
	return v
}

// SetStateTeardown dispatches teardown calls to the in-process state
// handlers. Without it teardown calls succeed without calling a handler.
func (v *Verifier) SetStateTeardown(teardown bool) *Verifier {
	v.stateTeardown = teardown
	return v
}

// SetStateHandlers serves provider states in process. Every state declared by
// a local pact must have a handler.
func (v *Verifier) SetStateHandlers(handlers map[string]StateFunc) *Verifier {
	v.stateHandlers = handlers
	return v
}

// SetStateFunc serves every provider state in process with fn.
func (v *Verifier) SetStateFunc(fn func(name, action string, params map[string]any) error) *Verifier {
	v.stateFunc = fn
	return v
}

// SetMessageHandlers verifies message pacts against in-process producers.
func (v *Verifier) SetMessageHandlers(handlers map[string]MessageFunc) *Verifier {
	v.messages = handlers
	return v
}

// FilterDescription only verifies interactions whose description matches pattern.
func (v *Verifier) FilterDescription(pattern string) *Verifier {
	v.descriptionFilter = pattern
	return v
}

// FilterState only verifies interactions with a provider state matching pattern.
func (v *Verifier) FilterState(pattern string) *Verifier {
	v.stateFilter = pattern
	return v
}

// FilterNoState only verifies interactions without a provider state.
func (v *Verifier) FilterNoState() *Verifier {
	v.noState = true
	return v
}

// FilterConsumers only verifies local pacts from the named consumers.
func (v *Verifier) FilterConsumers(consumers ...string) *Verifier {
	v.consumers = append(v.consumers, consumers...)
	return v
}

func (v *Verifier) SetRequestTimeout(timeout time.Duration) *Verifier {
	v.requestTimeout = timeout
	return v
}

// AddCustomHeader adds a header, such as "Authorization: Bearer x", to every
// request replayed against the provider.
func (v *Verifier) AddCustomHeader(header string) *Verifier {
	v.headers = append(v.headers, header)
	return v
}

func (v *Verifier) SetPublishOptions(opts PublishOptions) *Verifier {
	v.publish = &opts
	return v
}

func (v *Verifier) inProcessStates() bool {
	return v.stateHandlers != nil || v.stateFunc != nil
}

// validate reports the first configuration problem.
func (v *Verifier) validate() error {
	if v.provider == "" {
		return configErrorf("provider", "a provider name is required")
	}
	if len(v.sources) == 0 && v.broker == nil {
		return configErrorf("sources", "pact files, directories, URLs or a broker are required")
	}
	if v.broker != nil {
		if err := v.broker.validate(); err != nil {
			return err
		}
	}

	var httpTransports, messageTransports int
	for _, t := range v.transports {
		switch t.Protocol {
		case ProtocolHTTP, ProtocolHTTPS:
			httpTransports++
		case ProtocolMessage:
			messageTransports++
		default:
			return configErrorf("transport", "unsupported transport %q", t.Protocol)
		}
	}
	if httpTransports > 1 || messageTransports > 1 {
		return configErrorf("transport", "the engine verifies one HTTP endpoint and one message relay")
	}
	if messageTransports > 0 && v.messages == nil {
		return configErrorf("transport", "a message transport requires message handlers")
	}

	if v.messages != nil && v.info != nil {
		return configErrorf("provider info", "HTTP and message interactions are verified in separate runs")
	}
	if v.messages == nil && v.info == nil {
		return configErrorf("provider info", "provider info is required")
	}
	if v.stateURL != "" && v.inProcessStates() {
		return configErrorf("state handler", "use either a state URL or in-process state handlers")
	}
	if v.stateHandlers != nil && v.stateFunc != nil {
		return configErrorf("state handler", "use either state handlers or a state func")
	}

	if v.publish != nil {
		if v.publish.ProviderVersion == "" {
			return configErrorf("provider version", "publishing verification results requires a provider version")
		}
		for _, s := range v.sources {
			if s.kind != "url" {
				return configErrorf("publish", "cannot publish verification results for local file %s", s.path)
			}
		}
	}
	if v.requestTimeout < 0 {
		return configErrorf("request timeout", "must not be negative")
	}
	return nil
}
