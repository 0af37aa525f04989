package pact

import (
	"fmt"
	"mime"
	"strings"

	"github.com/form3tech-oss/pact-kit/pkg/match"
)

const (
	mediaTypeJSON   = "application/json"
	mediaTypeText   = "text/plain"
	mediaTypeBinary = "application/octet-stream"
)

type Kind string

const (
	KindHTTP         Kind = "Synchronous/HTTP"
	KindAsyncMessage Kind = "Asynchronous/Messages"
	KindSyncMessage  Kind = "Synchronous/Messages"
)

// ProviderState is a named precondition the provider is put into before an
// interaction is replayed.
type ProviderState struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

// Request is an expected HTTP request. Path, query values, header values and
// any leaf of Body may be a literal or a match.Matcher.
type Request struct {
	Method  string
	Path    any
	Query   map[string]any
	Headers map[string]any
	Body    any
}

type Response struct {
	Status  int
	Headers map[string]any
	Body    any
}

// MessageContents is the payload of a message. Content is a JSON value that
// may hold matchers, a string, or raw bytes.
type MessageContents struct {
	Content     any
	ContentType string
	Metadata    map[string]any
}

// Common holds the attributes shared by every kind of interaction.
type Common struct {
	Description    string
	ProviderStates []ProviderState
	Pending        bool
	// PluginConfiguration is keyed by plugin name and only written for V4 pacts.
	PluginConfiguration map[string]any
	Markup              *Markup
}

// Markup is the plugin-rendered description of an interaction's content.
type Markup struct {
	Markup     string `json:"markup"`
	MarkupType string `json:"markupType"`
}

// Base gives access to the shared attributes.
func (c *Common) Base() *Common {
	return c
}

// Key identifies an interaction within a pact.
func (c *Common) Key() string {
	var b strings.Builder
	b.WriteString(c.Description)
	for _, s := range c.ProviderStates {
		b.WriteString("\x00")
		b.WriteString(s.Name)
		if len(s.Params) > 0 {
			b.WriteString(render(s.Params))
		}
	}
	return b.String()
}

// Interaction is one expected exchange between consumer and provider.
type Interaction interface {
	Kind() Kind
	Base() *Common
	missing() []string
}

type HTTPInteraction struct {
	Common
	Request  *Request
	Response *Response
}

// AsyncMessage is a message the consumer expects to receive.
type AsyncMessage struct {
	Common
	Contents *MessageContents
}

// SyncMessage is a request message answered by one or more response messages.
type SyncMessage struct {
	Common
	Request   *MessageContents
	Responses []MessageContents
}

func (*HTTPInteraction) Kind() Kind { return KindHTTP }
func (*AsyncMessage) Kind() Kind    { return KindAsyncMessage }
func (*SyncMessage) Kind() Kind     { return KindSyncMessage }

func (i *HTTPInteraction) missing() []string {
	var out []string
	if i.Description == "" {
		out = append(out, "description")
	}
	if i.Request == nil {
		out = append(out, "request")
	}
	if i.Response == nil {
		out = append(out, "response")
	}
	return out
}

func (m *AsyncMessage) missing() []string {
	var out []string
	if m.Description == "" {
		out = append(out, "description")
	}
	if m.Contents == nil || m.Contents.Content == nil {
		out = append(out, "contents")
	}
	return out
}

func (m *SyncMessage) missing() []string {
	var out []string
	if m.Description == "" {
		out = append(out, "description")
	}
	if m.Request == nil {
		out = append(out, "request")
	}
	return out
}

// contentType returns the media type declared in headers, if any.
func contentType(headers map[string]any) string {
	for k, v := range headers {
		if !strings.EqualFold(k, "Content-Type") {
			continue
		}
		example, err := match.Generate(v)
		if err != nil {
			return ""
		}
		s, ok := example.(string)
		if !ok {
			return ""
		}
		mediaType, _, err := mime.ParseMediaType(s)
		if err != nil {
			return s
		}
		return mediaType
	}
	return ""
}

func isJSONMediaType(mediaType string) bool {
	return mediaType == mediaTypeJSON || strings.HasSuffix(mediaType, "+json")
}

// defaultContentType picks a content type for a body that does not declare one.
func defaultContentType(body any) string {
	switch body.(type) {
	case string:
		return mediaTypeText
	case []byte:
		return mediaTypeBinary
	}
	return mediaTypeJSON
}

func (s ProviderState) String() string {
	if len(s.Params) == 0 {
		return s.Name
	}
	return fmt.Sprintf("%s %s", s.Name, render(s.Params))
}
