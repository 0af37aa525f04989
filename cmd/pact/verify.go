package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/form3tech-oss/pact-kit/pkg/mismatch"
	"github.com/form3tech-oss/pact-kit/pkg/verifier"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type verifyFlags struct {
	providerBaseURL  string
	provider         string
	pactURLs         []string
	legacyPactURLs   []string
	statesSetupURL   string
	legacyStatesURL  string
	brokerURL        string
	brokerUsername   string
	brokerPassword   string
	brokerToken      string
	consumerTags     []string
	selectors        []string
	providerTags     []string
	providerBranch   string
	headers          []string
	timeout          int
	providerVersion  string
	publish          bool
	buildURL         string
	verbose          bool
	logDir           string
	enablePending    bool
	includeWIPSince  string
	descriptionMatch string
	stateMatch       string
	consumers        []string
}

var verifyOpts verifyFlags

var verifyCmd = &cobra.Command{
	Use:   "verify [pact files, directories or URLs]",
	Short: "Verify a provider against pacts",
	Example: `  # Verify the pacts in a directory
  pact verify --provider "User API" --provider-base-url http://localhost:8080 ./pacts

  # Verify the latest pacts from a broker
  pact verify --provider "User API" --provider-base-url http://localhost:8080 --pact-broker-url http://broker`,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := verifyOpts.verifier(args)
		if err != nil {
			return err
		}
		result, err := v.Execute(cmd.Context())
		if result != nil && result.Logs != "" {
			fmt.Fprint(cmd.ErrOrStderr(), result.Logs)
		}
		if err != nil {
			return err
		}
		printVerification(cmd.OutOrStdout(), result)
		if !result.Passed() {
			return errFailed
		}
		return nil
	},
}

func init() {
	f := verifyCmd.Flags()
	f.StringVar(&verifyOpts.providerBaseURL, "provider-base-url", "", "base URL of the provider to verify")
	f.StringVar(&verifyOpts.provider, "provider", "", "name of the provider")
	f.StringArrayVar(&verifyOpts.pactURLs, "pact-url", nil, "a pact file, directory or URL, may be repeated")
	f.StringArrayVar(&verifyOpts.legacyPactURLs, "pact-urls", nil, "comma separated pact files or URLs")
	f.StringVar(&verifyOpts.statesSetupURL, "provider-states-setup-url", "", "URL the verifier posts provider state changes to")
	f.StringVar(&verifyOpts.legacyStatesURL, "provider-states-url", "", "deprecated alias of --provider-states-setup-url")
	f.StringVar(&verifyOpts.brokerURL, "pact-broker-url", "", "pact broker URL, defaults to PACT_BROKER_BASE_URL")
	f.StringVar(&verifyOpts.brokerUsername, "pact-broker-username", "", "pact broker username, defaults to PACT_BROKER_USERNAME")
	f.StringVar(&verifyOpts.brokerPassword, "pact-broker-password", "", "pact broker password, defaults to PACT_BROKER_PASSWORD")
	f.StringVar(&verifyOpts.brokerToken, "pact-broker-token", "", "pact broker token, defaults to PACT_BROKER_TOKEN")
	f.StringArrayVar(&verifyOpts.consumerTags, "consumer-version-tag", nil, "consumer tag to verify, may be repeated")
	f.StringArrayVar(&verifyOpts.selectors, "consumer-version-selector", nil, `consumer version selector as JSON, e.g. {"tag":"main","latest":true}`)
	f.StringArrayVar(&verifyOpts.providerTags, "provider-version-tag", nil, "tag of the provider version, may be repeated")
	f.StringVar(&verifyOpts.providerBranch, "provider-version-branch", "", "branch of the provider version")
	f.StringArrayVar(&verifyOpts.headers, "custom-provider-header", nil, `header added to every request, e.g. "Authorization: Basic cGFjdDpwYWN0"`)
	f.IntVarP(&verifyOpts.timeout, "timeout", "t", 0, "request timeout in seconds for each replayed request")
	f.StringVarP(&verifyOpts.providerVersion, "provider-app-version", "a", "", "provider version, required to publish results")
	f.BoolVarP(&verifyOpts.publish, "publish-verification-results", "r", false, "publish the verification results to the broker")
	f.StringVar(&verifyOpts.buildURL, "build-url", "", "URL of the build that ran the verification")
	f.BoolVar(&verifyOpts.verbose, "verbose", false, "keep the verifier's full output")
	f.StringVar(&verifyOpts.logDir, "log-dir", "", "directory for the verifier logs, defaults to PACT_LOG_DIR")
	f.BoolVar(&verifyOpts.enablePending, "enable-pending", false, "allow pending pacts to fail without failing the verification")
	f.StringVar(&verifyOpts.includeWIPSince, "include-wip-pacts-since", "", "include work in progress pacts since this date")
	f.StringVar(&verifyOpts.descriptionMatch, "description", "", "only verify interactions whose description matches this regex")
	f.StringVar(&verifyOpts.stateMatch, "state", "", "only verify interactions whose provider state matches this regex")
	f.StringArrayVar(&verifyOpts.consumers, "consumer", nil, "only verify local pacts from this consumer, may be repeated")
	_ = f.MarkDeprecated("pact-urls", "use --pact-url once per pact")
	_ = f.MarkHidden("provider-states-url")
}

func (o verifyFlags) verifier(args []string) (*verifier.Verifier, error) {
	if o.provider == "" {
		return nil, errors.New("--provider is required")
	}

	v := verifier.New(o.provider,
		verifier.WithBinary(config.VerifierBinary),
		verifier.WithLogDir(firstOf(o.logDir, config.LogDir)),
		verifier.WithLogLevel(logLevel),
		verifier.WithVerbose(o.verbose),
		verifier.WithRerunCommand(config.RerunCommand),
	)

	for _, source := range o.sources(args) {
		switch {
		case strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://"):
			v.AddURL(source)
		case isDir(source):
			v.AddDirectory(source)
		default:
			v.AddFile(source)
		}
	}

	if brokerURL := firstOf(o.brokerURL, config.BrokerURL); brokerURL != "" {
		broker := verifier.BrokerSource{
			URL:             brokerURL,
			Username:        firstOf(o.brokerUsername, config.BrokerUsername),
			Password:        firstOf(o.brokerPassword, config.BrokerPassword),
			Token:           firstOf(o.brokerToken, config.BrokerToken),
			ConsumerTags:    o.consumerTags,
			EnablePending:   o.enablePending,
			IncludeWIPSince: o.includeWIPSince,
			ProviderTags:    o.providerTags,
			ProviderBranch:  o.providerBranch,
		}
		for _, raw := range o.selectors {
			var s verifier.ConsumerVersionSelector
			if err := json.Unmarshal([]byte(raw), &s); err != nil {
				return nil, errors.Wrapf(err, "parse consumer version selector %s", raw)
			}
			broker.Selectors = append(broker.Selectors, s)
		}
		v.AddBroker(broker)
	}

	info, err := providerInfo(o.providerBaseURL)
	if err != nil {
		return nil, err
	}
	v.SetProviderInfo(info)

	if stateURL := o.stateURL(); stateURL != "" {
		v.SetStateURL(stateURL)
	}
	for _, h := range append(append([]string{}, config.CustomProviderHeaders...), o.headers...) {
		v.AddCustomHeader(h)
	}
	if timeout := o.requestTimeout(); timeout > 0 {
		v.SetRequestTimeout(timeout)
	}
	if o.descriptionMatch != "" {
		v.FilterDescription(o.descriptionMatch)
	}
	if o.stateMatch != "" {
		v.FilterState(o.stateMatch)
	}
	if len(o.consumers) > 0 {
		v.FilterConsumers(o.consumers...)
	}
	if o.publish {
		v.SetPublishOptions(verifier.PublishOptions{
			ProviderVersion: o.providerVersion,
			Branch:          o.providerBranch,
			Tags:            o.providerTags,
			BuildURL:        o.buildURL,
		})
	}
	return v, nil
}

// stateURL returns --provider-states-setup-url, falling back to the deprecated
// --provider-states-url.
func (o verifyFlags) stateURL() string {
	if o.statesSetupURL != "" || o.legacyStatesURL == "" {
		return o.statesSetupURL
	}
	log.Warn("--provider-states-url is deprecated, use --provider-states-setup-url")
	return o.legacyStatesURL
}

func (o verifyFlags) requestTimeout() time.Duration {
	return time.Duration(o.timeout) * time.Second
}

// sources merges the positional arguments, --pact-url and the deprecated
// comma separated --pact-urls.
func (o verifyFlags) sources(args []string) []string {
	out := append(append([]string{}, args...), o.pactURLs...)
	for _, list := range o.legacyPactURLs {
		for _, p := range strings.Split(list, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	if len(o.legacyPactURLs) > 1 {
		log.Warn("multiple --pact-urls arguments are deprecated, use one --pact-url per pact")
	}
	return out
}

func providerInfo(raw string) (verifier.ProviderInfo, error) {
	if raw == "" {
		return verifier.ProviderInfo{}, errors.New("--provider-base-url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return verifier.ProviderInfo{}, errors.Errorf("invalid --provider-base-url %q", raw)
	}
	info := verifier.ProviderInfo{Scheme: u.Scheme, Host: u.Hostname(), Path: u.Path}
	if p := u.Port(); p != "" {
		if info.Port, err = strconv.Atoi(p); err != nil {
			return info, errors.Wrapf(err, "invalid port in --provider-base-url %q", raw)
		}
	}
	return info, nil
}

func printVerification(w io.Writer, result *verifier.Result) {
	green, red, yellow := color.New(color.FgGreen).SprintFunc(), color.New(color.FgRed).SprintFunc(), color.New(color.FgYellow).SprintFunc()
	for _, i := range result.Interactions {
		switch {
		case i.Passed:
			fmt.Fprintf(w, "%s %s: %s\n", green("PASS"), i.Consumer, i.Description)
		case i.Pending:
			fmt.Fprintf(w, "%s %s: %s\n", yellow("PENDING"), i.Consumer, i.Description)
		default:
			fmt.Fprintf(w, "%s %s: %s\n", red("FAIL"), i.Consumer, i.Description)
			if len(i.Mismatches) > 0 {
				fmt.Fprintln(w, indent(mismatch.Summary(i.Mismatches)))
			}
		}
	}
	if result.Passed() {
		fmt.Fprintln(w, green(fmt.Sprintf("%d interaction(s) verified", len(result.Interactions))))
		return
	}
	fmt.Fprintln(w, red(fmt.Sprintf("%d of %d interaction(s) failed, exit code %d",
		len(result.Failed()), len(result.Interactions), result.ExitCode)))
}

func indent(s string) string {
	return "    " + strings.ReplaceAll(s, "\n", "\n    ")
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
