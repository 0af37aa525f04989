package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/form3tech-oss/pact-kit/pkg/mismatch"
	"github.com/form3tech-oss/pact-kit/pkg/mockserver"
	"github.com/form3tech-oss/pact-kit/pkg/pact"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type mockServiceFlags struct {
	host      string
	port      int
	pactDir   string
	merge     bool
	writePact bool
	tls       bool
	certFile  string
	keyFile   string
}

var mockServiceOpts mockServiceFlags

var mockServiceCmd = &cobra.Command{
	Use:   "mock-service <pact file>",
	Short: "Serve a mock provider for the interactions of a pact file",
	Long: `mock-service serves the HTTP interactions of a pact file until it is interrupted.
It then reports the requests that did not match and exits non zero when there were any.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := pact.ReadFile(args[0])
		if err != nil {
			return err
		}

		o := mockServiceOpts
		cfg := mockserver.Config{
			Host:         o.host,
			Port:         o.port,
			TLS:          o.tls,
			TLSCertFile:  o.certFile,
			TLSKeyFile:   o.keyFile,
			LogDir:       firstOf(config.LogDir, "logs"),
			PactDir:      firstOf(o.pactDir, config.PactDir),
			Binary:       config.MockServiceBinary,
			StartTimeout: config.StartTimeout,
		}
		if o.merge {
			cfg.WriteMode = pact.Merge
		}

		signals := make(chan os.Signal, 2)
		signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(signals)

		ctx := cmd.Context()
		server, err := mockserver.Start(ctx, p, cfg)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "mock provider for %s at %s, %d interaction(s)\n",
			p.Provider, server.URL, len(p.HTTPInteractions()))

		return serve(ctx, cmd.OutOrStdout(), server, cfg, o.writePact, signals)
	},
}

func init() {
	f := mockServiceCmd.Flags()
	f.StringVar(&mockServiceOpts.host, "host", "localhost", "host to bind")
	f.IntVar(&mockServiceOpts.port, "port", 0, "port to bind, a free port when 0")
	f.StringVar(&mockServiceOpts.pactDir, "pact-dir", "", "directory the pact file is written to, defaults to PACT_DIR")
	f.BoolVar(&mockServiceOpts.merge, "merge", false, "merge into an existing pact file instead of overwriting it")
	f.BoolVar(&mockServiceOpts.writePact, "write-pact", false, "write the pact file when every interaction matched")
	f.BoolVar(&mockServiceOpts.tls, "tls", false, "serve HTTPS with a self signed certificate")
	f.StringVar(&mockServiceOpts.certFile, "tls-cert", "", "TLS certificate file")
	f.StringVar(&mockServiceOpts.keyFile, "tls-key", "", "TLS key file")
}

// serve keeps server up until a signal arrives, then reports on the requests it
// received and shuts it down. The engine runs in its own process group, so the
// terminal's interrupt reaches this process only.
func serve(ctx context.Context, out io.Writer, server *mockserver.Server, cfg mockserver.Config, write bool, signals <-chan os.Signal) error {
	defer func() {
		_ = server.Shutdown()
	}()
	sig := <-signals
	log.WithField("signal", sig.String()).Info("stopping mock provider")
	return report(ctx, out, server, cfg, write)
}

func report(ctx context.Context, out io.Writer, server *mockserver.Server, cfg mockserver.Config, write bool) error {
	matched, err := server.Matched(ctx)
	if err != nil {
		return err
	}
	if !matched {
		mismatches, err := server.Mismatches(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, color.RedString("requests did not match:"))
		fmt.Fprintln(out, mismatch.Summary(mismatches))
		return errFailed
	}

	fmt.Fprintln(out, color.GreenString("all interactions matched"))
	if write {
		return server.WritePactFile(ctx, cfg.PactDir, cfg.WriteMode == pact.Overwrite)
	}
	return nil
}
