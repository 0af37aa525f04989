// Package mockserver drives a pact mock service: it starts or attaches to one,
// registers a pact's HTTP interactions with it, and collects the outcome of
// the requests it received.
package mockserver

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/form3tech-oss/pact-kit/internal/app/engine"
	"github.com/form3tech-oss/pact-kit/pkg/pact"
	"github.com/pact-foundation/pact-go/utils"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrShutdown is returned by calls made on a server after Shutdown.
var ErrShutdown = errors.New("mock server has been shut down")

// servers holds every mock server address in use by this process, keyed by
// registryKey.
var servers sync.Map

type Config struct {
	Host string // defaults to localhost
	Port int    // 0 picks a free port

	TLSCertFile string
	TLSKeyFile  string
	// TLS serves HTTPS with the engine's self signed certificate when no
	// certificate is given.
	TLS bool

	LogDir    string
	PactDir   string
	WriteMode pact.WriteMode
	// WritePact makes Run write the pact file when every interaction matched.
	WritePact bool

	Binary string // defaults to pact-mock-service
	// StartTimeout bounds the wait for the engine to bind its port.
	StartTimeout time.Duration

	Runner engine.Runner
	Client *http.Client
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.PactDir == "" {
		c.PactDir = "pacts"
	}
	if c.LogDir == "" {
		c.LogDir = "logs"
	}
	if c.Binary == "" {
		c.Binary = "pact-mock-service"
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = 10 * time.Second
	}
	if c.Runner == nil {
		c.Runner = engine.Exec{}
	}
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 30 * time.Second}
		if c.scheme() == "https" {
			c.Client.Transport = &http.Transport{
				// #nosec G402 the engine serves a self signed certificate
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			}
		}
	}
	return c
}

func (c Config) scheme() string {
	if c.TLS || c.TLSCertFile != "" {
		return "https"
	}
	return "http"
}

// Server is a mock service with a pact registered. Release it with Shutdown.
type Server struct {
	URL *url.URL

	cfg     Config
	pact    *pact.Pact
	process engine.Process
	key     string

	mu     sync.Mutex
	closed bool
}

// Start spawns a mock service for p and registers p's HTTP interactions.
func Start(ctx context.Context, p *pact.Pact, cfg Config) (*Server, error) {
	cfg = cfg.withDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if cfg.Port == 0 {
		port, err := utils.GetFreePort()
		if err != nil {
			return nil, errors.Wrap(err, "find free port")
		}
		cfg.Port = port
	}

	s := &Server{
		URL:  &url.URL{Scheme: cfg.scheme(), Host: net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port))},
		cfg:  cfg,
		pact: p,
	}
	if err := s.reserve(); err != nil {
		return nil, err
	}

	cmd, err := s.command()
	if err != nil {
		s.release()
		return nil, err
	}
	// The engine outlives ctx, which only bounds the start up.
	process, err := cfg.Runner.Start(context.Background(), cmd)
	if err != nil {
		s.release()
		return nil, err
	}
	s.process = process

	if err := s.waitReady(ctx, cmd); err != nil {
		_ = s.Shutdown()
		return nil, err
	}
	if err := s.Register(ctx, p); err != nil {
		_ = s.Shutdown()
		return nil, err
	}

	log.WithFields(log.Fields{
		"consumer": p.Consumer,
		"provider": p.Provider,
		"port":     cfg.Port,
	}).Infof("mock server started at %s", s.URL)
	return s, nil
}

// Connect attaches to a mock service control plane that is already running at
// rawURL, such as a shared mock service or proxy, and registers p with it.
func Connect(ctx context.Context, rawURL string, p *pact.Pact, cfg Config) (*Server, error) {
	cfg = cfg.withDefaults()
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse mock server url")
	}
	if u.Host == "" {
		return nil, errors.Errorf("mock server url %q has no host", rawURL)
	}

	s := &Server{URL: u, cfg: cfg, pact: p}
	if err := s.reserve(); err != nil {
		return nil, err
	}
	if err := s.Register(ctx, p); err != nil {
		s.release()
		return nil, err
	}
	log.Infof("registered %d interactions with mock server at %s", len(p.HTTPInteractions()), u)
	return s, nil
}

func (s *Server) reserve() error {
	s.key = registryKey(s.URL)
	if _, loaded := servers.LoadOrStore(s.key, s); loaded {
		return fmt.Errorf("mock server already running at %s", s.URL.String())
	}
	return nil
}

func (s *Server) release() {
	if current, ok := servers.Load(s.key); ok && current == s {
		servers.Delete(s.key)
	}
}

// registryKey names the port a server occupies. Every local spelling of a host
// (localhost, 127.0.0.1, ::1, 0.0.0.0) shares one key per port.
func registryKey(u *url.URL) string {
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	host := strings.ToLower(u.Hostname())
	if host == "" || host == "localhost" {
		return ":" + port
	}
	if ip := net.ParseIP(host); ip != nil && (ip.IsLoopback() || ip.IsUnspecified()) {
		return ":" + port
	}
	return net.JoinHostPort(host, port)
}

func (s *Server) command() (engine.Command, error) {
	spec, err := pact.ParseSpecification(string(s.pact.Specification))
	if err != nil {
		return engine.Command{}, err
	}
	if spec == pact.V4 {
		// The engine writes at most V3; V4 pact files are written locally.
		spec = pact.V3
	}
	args := []string{
		"service",
		"--host=" + s.cfg.Host,
		fmt.Sprintf("--port=%d", s.cfg.Port),
		"--log", filepath.Join(s.cfg.LogDir, "pact-mock-service.log"),
		"--pact-dir", s.cfg.PactDir,
		"--pact-file-write-mode", s.cfg.WriteMode.String(),
		"--pact-specification-version=" + string(spec),
		"--consumer", s.pact.Consumer,
		"--provider", s.pact.Provider,
	}
	if s.cfg.scheme() == "https" {
		args = append(args, "--ssl")
	}
	if s.cfg.TLSCertFile != "" {
		args = append(args, "--sslcert", s.cfg.TLSCertFile)
	}
	if s.cfg.TLSKeyFile != "" {
		args = append(args, "--sslkey", s.cfg.TLSKeyFile)
	}
	return engine.Command{Binary: s.cfg.Binary, Args: args}, nil
}

// waitReady polls the control plane until it answers, failing early when the
// engine exits.
func (s *Server) waitReady(ctx context.Context, cmd engine.Command) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StartTimeout)
	defer cancel()

	var exited *engine.Error
	err := retry.Do(func() error {
		select {
		case <-s.process.Done():
			exited = &engine.Error{
				Code:    s.process.ExitCode(),
				Message: strings.TrimSpace(s.process.Output()),
				Args:    cmd.Line(),
			}
			return retry.Unrecoverable(exited)
		default:
		}
		res, err := s.do(ctx, http.MethodGet, "/", nil)
		if err != nil {
			return err
		}
		return res.Body.Close()
	},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.DelayType(retry.FixedDelay),
		retry.Delay(100*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if exited != nil {
		return exited
	}
	if err != nil {
		return errors.Wrapf(err, "mock server at %s did not start within %s", s.URL, s.cfg.StartTimeout)
	}
	return nil
}

// Shutdown stops the engine, when this process started it, and frees the
// server's address. It is safe to call more than once.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.release()

	if s.process == nil {
		return nil
	}
	if err := s.process.Stop(); err != nil {
		return errors.Wrap(err, "stop mock server")
	}
	log.Debugf("mock server at %s stopped", s.URL)
	return nil
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
