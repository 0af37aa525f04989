package verifier

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/form3tech-oss/pact-kit/internal/app/callback"
	"github.com/form3tech-oss/pact-kit/internal/app/engine"
	"github.com/form3tech-oss/pact-kit/pkg/pact"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const rerunTemplate = "PACT_DESCRIPTION='<PACT_DESCRIPTION>' PACT_PROVIDER_STATE='<PACT_PROVIDER_STATE>' %s"

// run holds what one Execute call resolved before starting the engine.
type run struct {
	files       []string
	urls        []string
	providerURL string
	stateURL    string
	out         string
}

// Execute runs the verification. Configuration problems are returned as a
// *ConfigError before the engine or any callback server starts. A failed
// verification is not an error: inspect Result.Passed.
func (v *Verifier) Execute(ctx context.Context) (*Result, error) {
	if err := v.validate(); err != nil {
		return nil, err
	}
	f, err := v.compileFilters()
	if err != nil {
		return nil, err
	}
	files, urls, err := v.expandSources()
	if err != nil {
		return nil, err
	}

	pacts, err := preflight(files, f)
	if err != nil {
		return nil, err
	}
	if v.stateHandlers != nil {
		if missing := missingStates(pacts, v.stateHandlers); len(missing) > 0 {
			return nil, configErrorf("state handler", "no handler for provider state %q", missing[0])
		}
	}
	r := &run{urls: urls, stateURL: v.stateURL}
	for _, p := range pacts {
		r.files = append(r.files, p.path)
	}
	if len(r.files) == 0 && len(r.urls) == 0 && v.broker == nil {
		return nil, configErrorf("consumers", "no pact matches the consumer filter %v", v.consumers)
	}

	servers, err := v.startCallbacks(ctx, r)
	defer func() {
		for _, s := range servers {
			if err := s.Shutdown(context.Background()); err != nil {
				log.Warn(err)
			}
		}
	}()
	if err != nil {
		return nil, err
	}
	if r.providerURL == "" {
		r.providerURL = v.providerURL()
	}

	outDir, err := os.MkdirTemp("", "pact-verifier-")
	if err != nil {
		return nil, errors.Wrap(err, "create verifier output directory")
	}
	defer os.RemoveAll(outDir)
	r.out = filepath.Join(outDir, "results.json")

	cmd, err := v.command(r)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"provider": v.provider,
		"files":    len(r.files),
		"urls":     len(r.urls),
		"broker":   v.broker != nil,
	}).Infof("verifying provider %s at %s", v.provider, r.providerURL)

	res, err := v.runner.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}

	result := &Result{ExitCode: res.Code, Logs: engine.Sanitise(res.Output, v.verbose)}
	if data, readErr := os.ReadFile(r.out); readErr == nil {
		if result.Interactions, err = parseResults(data, v.provider); err != nil {
			return nil, err
		}
	} else {
		log.Debugf("no verifier results at %s: %v", r.out, readErr)
	}
	if res.Code != 0 && len(result.Interactions) == 0 {
		// Nothing was verified, so the engine failed on its own.
		return result, res.Err(cmd)
	}
	return result, nil
}

// startCallbacks starts the in-process state server and message relay.
func (v *Verifier) startCallbacks(ctx context.Context, r *run) ([]*callback.Server, error) {
	var servers []*callback.Server

	if v.messages != nil {
		opts := callback.Options{}
		if t, ok := v.transport(ProtocolMessage); ok {
			opts.Port, opts.Path = t.Port, t.Path
		}
		routes := []func(*echo.Echo){callback.MessageRoutes(v.messageProducers())}
		if v.inProcessStates() {
			routes = append(routes, callback.StateRoutes(v.dispatchState))
		} else if v.stateURL == "" {
			// Message producers read the states themselves.
			routes = append(routes, callback.StateRoutes(func(string, string, map[string]any) error { return nil }))
		}
		relay, err := callback.Start(ctx, opts, routes...)
		if err != nil {
			return servers, err
		}
		servers = append(servers, relay)
		r.providerURL = relay.URL.String()
		if v.stateURL == "" {
			r.stateURL = strings.TrimSuffix(relay.URL.String(), "/") + callback.StatePath
		}
		return servers, nil
	}

	if v.inProcessStates() {
		states, err := callback.Start(ctx, callback.Options{}, callback.StateRoutes(v.dispatchState))
		if err != nil {
			return servers, err
		}
		servers = append(servers, states)
		r.stateURL = strings.TrimSuffix(states.URL.String(), "/") + callback.StatePath
	}
	return servers, nil
}

func (v *Verifier) dispatchState(state, action string, params map[string]any) error {
	if action == callback.ActionTeardown && !v.stateTeardown {
		return nil
	}
	log.WithFields(log.Fields{"state": state, "action": action}).Debug("provider state change")
	if v.stateFunc != nil {
		return v.stateFunc(state, action, params)
	}
	handler, ok := v.stateHandlers[state]
	if !ok {
		return errors.Errorf("no handler for provider state %q", state)
	}
	return handler(action, params)
}

func (v *Verifier) messageProducers() map[string]callback.MessageProducer {
	producers := make(map[string]callback.MessageProducer, len(v.messages))
	for name, fn := range v.messages {
		fn := fn
		producers[name] = func(states []pact.ProviderState) (callback.Message, error) {
			m, err := fn(states)
			if err != nil {
				return callback.Message{}, err
			}
			return callback.Message{Contents: m.Contents, ContentType: m.ContentType, Metadata: m.Metadata}, nil
		}
	}
	return producers
}

func (v *Verifier) transport(protocol string) (Transport, bool) {
	for _, t := range v.transports {
		if t.Protocol == protocol {
			return t, true
		}
	}
	return Transport{}, false
}

// providerURL builds the provider base URL, letting an HTTP transport
// override the port, path and scheme of the provider info.
func (v *Verifier) providerURL() string {
	info := *v.info
	for _, p := range []string{ProtocolHTTP, ProtocolHTTPS} {
		if t, ok := v.transport(p); ok {
			info.Scheme = p
			if t.Scheme != "" {
				info.Scheme = t.Scheme
			}
			if t.Port != 0 {
				info.Port = t.Port
			}
			if t.Path != "" {
				info.Path = t.Path
			}
		}
	}
	if info.Scheme == "" {
		info.Scheme = "http"
	}
	if info.Host == "" {
		info.Host = "localhost"
	}
	u := url.URL{Scheme: info.Scheme, Host: info.Host, Path: info.Path}
	if info.Port != 0 {
		u.Host = net.JoinHostPort(info.Host, fmt.Sprint(info.Port))
	}
	return u.String()
}

func (v *Verifier) command(r *run) (engine.Command, error) {
	var args []string
	for _, p := range append(append([]string{}, r.files...), r.urls...) {
		args = append(args, "--pact-url="+p)
	}
	args = append(args,
		"--provider-base-url="+r.providerURL,
		"--provider="+v.provider,
	)
	if r.stateURL != "" {
		args = append(args, "--provider-states-setup-url="+r.stateURL)
	}

	if b := v.broker; b != nil {
		args = append(args, "--pact-broker-base-url="+b.URL)
		if b.Username != "" {
			args = append(args, "--broker-username="+b.Username, "--broker-password="+b.Password)
		}
		if b.Token != "" {
			args = append(args, "--broker-token="+b.Token)
		}
		if b.EnablePending {
			args = append(args, "--enable-pending")
		} else {
			args = append(args, "--no-enable-pending")
		}
		if b.IncludeWIPSince != "" {
			args = append(args, "--include-wip-pacts-since="+b.IncludeWIPSince)
		}
		for _, s := range b.Selectors {
			flag, err := s.flag()
			if err != nil {
				return engine.Command{}, errors.Wrap(err, "encode consumer version selector")
			}
			args = append(args, flag)
		}
		for _, tag := range b.ConsumerTags {
			args = append(args, "--consumer-version-tag="+tag)
		}
		for _, tag := range b.ProviderTags {
			args = append(args, "--provider-version-tag="+tag)
		}
		if b.ProviderBranch != "" {
			args = append(args, "--provider-version-branch="+b.ProviderBranch)
		}
	}

	if p := v.publish; p != nil {
		args = append(args, "--provider-app-version="+p.ProviderVersion, "--publish-verification-results")
		if p.Branch != "" && (v.broker == nil || v.broker.ProviderBranch == "") {
			args = append(args, "--provider-version-branch="+p.Branch)
		}
		for _, tag := range p.Tags {
			args = append(args, "--provider-version-tag="+tag)
		}
		if p.BuildURL != "" {
			args = append(args, "--build-url="+p.BuildURL)
		}
	}

	for _, h := range v.headers {
		args = append(args, "--custom-provider-header="+h)
	}
	if v.requestTimeout > 0 {
		args = append(args, fmt.Sprintf("--request-timeout=%d", timeoutSeconds(v.requestTimeout)))
	}
	if v.verbose {
		args = append(args, "--verbose")
	}
	if v.logDir != "" {
		args = append(args, "--log-dir="+v.logDir)
	}
	if v.logLevel != "" {
		args = append(args, "--log-level="+strings.ToUpper(v.logLevel))
	}
	args = append(args, "--format=json", "--out="+r.out)

	return engine.Command{Binary: v.binary, Args: args, Env: v.env()}, nil
}

// timeoutSeconds rounds up to whole seconds, the engine's unit.
func timeoutSeconds(d time.Duration) int64 {
	s := int64(d / time.Second)
	if d%time.Second != 0 {
		s++
	}
	return s
}

func (v *Verifier) env() map[string]string {
	env := map[string]string{}
	if v.descriptionFilter != "" {
		env["PACT_DESCRIPTION"] = v.descriptionFilter
	}
	if v.stateFilter != "" {
		env["PACT_PROVIDER_STATE"] = v.stateFilter
	}
	if v.noState {
		env["PACT_PROVIDER_NO_STATE"] = "TRUE"
	}
	env["PACT_INTERACTION_RERUN_COMMAND"] = v.rerunCommand
	if v.rerunCommand == "" {
		env["PACT_INTERACTION_RERUN_COMMAND"] = fmt.Sprintf(rerunTemplate, strings.Join(os.Args, " "))
	}
	return env
}
