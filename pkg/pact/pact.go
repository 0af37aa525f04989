// Package pact models a contract between a consumer and a provider and
// reads and writes it as a pact specification JSON document.
package pact

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hashicorp/go-version"
	"github.com/pkg/errors"
)

// LibraryVersion is recorded in the metadata of every written pact.
const LibraryVersion = "0.4.0"

type Specification string

const (
	V2 Specification = "2.0.0"
	V3 Specification = "3.0.0"
	V4 Specification = "4.0"
)

// ParseSpecification maps a pact specification version string to the document
// shape used to read and write it.
func ParseSpecification(s string) (Specification, error) {
	v, err := version.NewVersion(strings.TrimPrefix(strings.ToLower(s), "v"))
	if err != nil {
		return "", errors.Wrapf(err, "parse pact specification version %q", s)
	}
	switch major := v.Segments()[0]; major {
	case 1, 2:
		return V2, nil
	case 3:
		return V3, nil
	case 4:
		return V4, nil
	default:
		return "", errors.Errorf("unsupported pact specification version %s", s)
	}
}

// Plugin is a V4 plugin the pact's interactions depend on.
type Plugin struct {
	Name          string         `json:"name"`
	Version       string         `json:"version"`
	Configuration map[string]any `json:"configuration,omitempty"`
}

// Pact is the client-side staging area for a contract. It is not safe for
// concurrent use.
type Pact struct {
	Consumer      string
	Provider      string
	Specification Specification
	Metadata      map[string]any
	Plugins       []Plugin

	interactions []Interaction
	draft        *draft
}

type Option func(*Pact)

func WithSpecification(spec Specification) Option {
	return func(p *Pact) {
		p.Specification = spec
	}
}

// WithMetadata adds a top level metadata entry to the written document.
func WithMetadata(key string, value any) Option {
	return func(p *Pact) {
		p.Metadata[key] = value
	}
}

func New(consumer, provider string, opts ...Option) *Pact {
	p := &Pact{
		Consumer:      consumer,
		Provider:      provider,
		Specification: V3,
		Metadata:      map[string]any{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// UsingPlugin declares a plugin used by the pact's interactions. Plugins
// require a V4 pact.
func (p *Pact) UsingPlugin(name, ver string, config ...map[string]any) *Pact {
	plugin := Plugin{Name: name, Version: ver}
	if len(config) > 0 {
		plugin.Configuration = config[0]
	}
	p.Plugins = append(p.Plugins, plugin)
	return p
}

// Interactions returns the interactions in document order. An interaction still
// being built through the deprecated Legacy builder comes first.
func (p *Pact) Interactions() []Interaction {
	out := make([]Interaction, 0, len(p.interactions)+1)
	if p.draft != nil && !p.draft.empty() {
		out = append(out, p.draft.interaction())
	}
	return append(out, p.interactions...)
}

// HTTPInteractions returns only the HTTP interactions, which are the ones a
// mock server can serve.
func (p *Pact) HTTPInteractions() []*HTTPInteraction {
	var out []*HTTPInteraction
	for _, i := range p.Interactions() {
		if h, ok := i.(*HTTPInteraction); ok {
			out = append(out, h)
		}
	}
	return out
}

func (p *Pact) add(i Interaction) {
	p.interactions = append(p.interactions, i)
}

// ValidationError lists everything that stops a pact from being finalized.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid pact: " + strings.Join(e.Problems, "; ")
}

// Validate checks the pact can be finalized: every interaction has its
// mandatory fields and no two interactions share a description and provider
// states.
func (p *Pact) Validate() error {
	var problems []string
	if p.Consumer == "" {
		problems = append(problems, "consumer name is required")
	}
	if p.Provider == "" {
		problems = append(problems, "provider name is required")
	}

	declared := map[string]bool{}
	for _, plugin := range p.Plugins {
		declared[plugin.Name] = true
	}
	if len(p.Plugins) > 0 && p.Specification != V4 {
		problems = append(problems, fmt.Sprintf("plugins require specification %s, pact uses %s", V4, p.Specification))
	}

	seen := map[string]bool{}
	for n, i := range p.Interactions() {
		c := i.Base()
		name := fmt.Sprintf("interaction %d", n+1)
		if c.Description != "" {
			name = fmt.Sprintf("interaction %q", c.Description)
		}
		if missing := i.missing(); len(missing) > 0 {
			problems = append(problems, fmt.Sprintf("%s is missing %s", name, strings.Join(missing, ", ")))
		}
		if seen[c.Key()] {
			problems = append(problems, fmt.Sprintf("%s is defined more than once for the same provider states", name))
		}
		seen[c.Key()] = true
		for plugin := range c.PluginConfiguration {
			if !declared[plugin] {
				problems = append(problems, fmt.Sprintf("%s configures undeclared plugin %q", name, plugin))
			}
		}
		if p.Specification == V2 {
			if i.Kind() != KindHTTP {
				problems = append(problems, fmt.Sprintf("%s: specification %s only supports HTTP interactions", name, V2))
			}
			if len(c.ProviderStates) > 1 || (len(c.ProviderStates) == 1 && len(c.ProviderStates[0].Params) > 0) {
				problems = append(problems, fmt.Sprintf("%s: specification %s supports a single provider state without params", name, V2))
			}
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// FileName is the conventional file name of the pact, e.g. "my_consumer-my_provider.json".
func FileName(consumer, provider string) string {
	return normalise(consumer) + "-" + normalise(provider) + ".json"
}

func normalise(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "_")
}

func render(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
