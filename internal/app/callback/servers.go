// Package callback runs the in-process HTTP servers the provider verifier calls
// back into: the provider state server and the message relay.
package callback

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pact-foundation/pact-go/utils"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var servers sync.Map

// TLS enables HTTPS; with a CA file clients must present a certificate signed by it.
type TLS struct {
	CertFile string
	KeyFile  string
	CAFile   string
}

type Options struct {
	Host string // defaults to localhost
	Port int    // 0 picks a free port
	// Path mounts the routes below a prefix, e.g. /provider-a.
	Path string
	TLS  TLS
}

// Server is a running callback server.
type Server struct {
	URL  *url.URL
	http *http.Server
	once sync.Once
}

// Start binds the server's address, serves the routes added by register and
// returns once connections are accepted. Only one server may listen on an
// address at a time.
func Start(ctx context.Context, opts Options, register ...func(*echo.Echo)) (*Server, error) {
	u, err := address(opts)
	if err != nil {
		return nil, err
	}
	httpServer, err := newServer(u, opts, register)
	if err != nil {
		return nil, err
	}
	s := &Server{URL: u, http: httpServer}
	if _, loaded := servers.LoadOrStore(u.Host, s); loaded {
		return nil, fmt.Errorf("callback server already running at %s", u.String())
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", u.Host)
	if err != nil {
		servers.Delete(u.Host)
		return nil, errors.Wrapf(err, "callback server at %s did not start", u.String())
	}

	go func() {
		var err error
		if opts.TLS.CertFile != "" && opts.TLS.KeyFile != "" {
			err = httpServer.ServeTLS(listener, opts.TLS.CertFile, opts.TLS.KeyFile)
		} else {
			err = httpServer.Serve(listener)
		}
		if err != nil && err != http.ErrServerClosed {
			log.WithField("url", u.String()).Error(err)
		}
	}()

	log.WithField("url", u.String()).Info("callback server started")
	return s, nil
}

func address(opts Options) (*url.URL, error) {
	host := opts.Host
	if host == "" {
		host = "localhost"
	}
	port := opts.Port
	if port == 0 {
		free, err := utils.GetFreePort()
		if err != nil {
			return nil, errors.Wrap(err, "find free port")
		}
		port = free
	}
	scheme := "http"
	if opts.TLS.CertFile != "" {
		scheme = "https"
	}
	return &url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, fmt.Sprint(port)),
		Path:   strings.TrimRight(opts.Path, "/"),
	}, nil
}

func newServer(u *url.URL, opts Options, register []func(*echo.Echo)) (*http.Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	for _, r := range register {
		r(e)
	}

	s := &http.Server{
		Addr:    u.Host,
		Handler: e,
	}

	if opts.TLS.CAFile != "" {
		if opts.TLS.CertFile == "" || opts.TLS.KeyFile == "" {
			return nil, errors.New("cannot run in mTLS mode without TLS cert and key")
		}

		caCertFile, err := os.ReadFile(opts.TLS.CAFile)
		if err != nil {
			return nil, errors.Wrap(err, "read CA certificate")
		}
		certPool := x509.NewCertPool()
		certPool.AppendCertsFromPEM(caCertFile)
		s.TLSConfig = &tls.Config{
			ClientAuth: tls.RequireAndVerifyClientCert,
			ClientCAs:  certPool,
			MinVersion: tls.VersionTLS12,
		}
	}

	if strings.TrimLeft(u.Path, "/") != "" {
		e.Pre(middleware.Rewrite(map[string]string{
			"^" + u.Path:        "/",
			"^" + u.Path + "/*": "/$1",
		}))
	}

	return s, nil
}

// Shutdown stops the server and frees its address. It is safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.once.Do(func() {
		if current, ok := servers.Load(s.URL.Host); ok && current == s {
			servers.Delete(s.URL.Host)
		}
		err = s.http.Shutdown(ctx)
	})
	return err
}

// ShutdownAllServers stops every callback server started by this process.
func ShutdownAllServers(ctx context.Context) {
	servers.Range(func(key, value interface{}) bool {
		if err := value.(*Server).Shutdown(ctx); err != nil {
			log.Error(err)
		}
		return true
	})
}
