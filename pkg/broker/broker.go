// Package broker publishes pact files to a pact broker with the pact-broker
// command line client.
package broker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/form3tech-oss/pact-kit/internal/app/engine"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ConfigError is a publish configuration problem found before the client runs.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid broker configuration: %s: %s", e.Field, e.Reason)
}

// Publisher publishes to one broker. An empty BrokerURL falls back to
// PACT_BROKER_BASE_URL.
type Publisher struct {
	BrokerURL string
	Username  string
	Password  string
	Token     string

	Binary string // defaults to pact-broker
	Runner engine.Runner
}

type PublishOptions struct {
	// PactDir is searched for the consumer's pact files when Files is empty.
	PactDir string
	Files   []string

	Tags                        []string
	TagWithGitBranch            bool
	Branch                      string
	BuildURL                    string
	AutoDetectVersionProperties bool
}

// Publish publishes the consumer's pacts as the given consumer version. A
// client failure is returned as an *engine.Error.
func (p *Publisher) Publish(ctx context.Context, consumer, version string, opts PublishOptions) error {
	cmd, err := p.command(consumer, version, opts)
	if err != nil {
		return err
	}

	runner := p.Runner
	if runner == nil {
		runner = engine.Exec{}
	}
	log.WithFields(log.Fields{
		"consumer": consumer,
		"version":  version,
	}).Debug(strings.Join(cmd.Line(), " "))

	res, err := runner.Run(ctx, cmd)
	if err != nil {
		return err
	}
	if err := res.Err(cmd); err != nil {
		return errors.Wrapf(err, "publish to pact broker at %s", p.brokerURL())
	}
	log.Infof("published %s version %s to %s", consumer, version, p.brokerURL())
	return nil
}

func (p *Publisher) brokerURL() string {
	if p.BrokerURL != "" {
		return p.BrokerURL
	}
	return os.Getenv("PACT_BROKER_BASE_URL")
}

func (p *Publisher) command(consumer, version string, opts PublishOptions) (engine.Command, error) {
	url := p.brokerURL()
	switch {
	case url == "":
		return engine.Command{}, &ConfigError{
			Field:  "broker URL",
			Reason: "no pact broker URL specified, did you expect PACT_BROKER_BASE_URL to be set?",
		}
	case consumer == "":
		return engine.Command{}, &ConfigError{Field: "consumer", Reason: "a consumer name is required"}
	case version == "":
		return engine.Command{}, &ConfigError{Field: "consumer version", Reason: "a consumer version is required"}
	case p.Username != "" && p.Password == "":
		return engine.Command{}, &ConfigError{Field: "broker password", Reason: "a broker username requires a password"}
	}

	files := opts.Files
	if len(files) == 0 {
		var err error
		if files, err = consumerFiles(opts.PactDir, consumer); err != nil {
			return engine.Command{}, err
		}
	}
	if len(files) == 0 {
		return engine.Command{}, &ConfigError{
			Field:  "files",
			Reason: fmt.Sprintf("no pact files for %s in %s", consumer, opts.PactDir),
		}
	}

	args := append([]string{"publish"}, files...)
	args = append(args,
		"--consumer-app-version="+version,
		"--broker-base-url="+url,
	)
	if p.Username != "" {
		args = append(args, "--broker-username="+p.Username, "--broker-password="+p.Password)
	}
	if p.Token != "" {
		args = append(args, "--broker-token="+p.Token)
	}
	if opts.TagWithGitBranch {
		args = append(args, "--tag-with-git-branch")
	}
	for _, tag := range opts.Tags {
		args = append(args, "-t", tag)
	}
	if opts.Branch != "" {
		args = append(args, "--branch="+opts.Branch)
	}
	if opts.BuildURL != "" {
		args = append(args, "--build-url="+opts.BuildURL)
	}
	if opts.AutoDetectVersionProperties {
		args = append(args, "--auto-detect-version-properties")
	}

	binary := p.Binary
	if binary == "" {
		binary = "pact-broker"
	}
	return engine.Command{Binary: binary, Args: args}, nil
}

// consumerFiles lists the pact files in dir written by consumer, matched by
// the normalised consumer name prefix.
func consumerFiles(dir, consumer string) ([]string, error) {
	if dir == "" {
		dir = "pacts"
	}
	prefix := strings.ReplaceAll(strings.ToLower(consumer), " ", "_")
	matches, err := filepath.Glob(filepath.Join(dir, globEscape(prefix)+"*.json"))
	if err != nil {
		return nil, errors.Wrapf(err, "list pact files in %s", dir)
	}
	sort.Strings(matches)
	for i, m := range matches {
		matches[i] = filepath.ToSlash(m)
	}
	return matches, nil
}

func globEscape(s string) string {
	r := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`, `\`, `\\`)
	return r.Replace(s)
}
