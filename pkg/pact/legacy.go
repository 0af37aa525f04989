package pact

// LegacyBuilder groups builder calls into interactions implicitly: once the
// interaction being built has all of its mandatory fields, the next call seals
// it, puts it at the front of the pact, and starts a blank one.
//
// Deprecated: use AddInteraction, AddMessage or AddSynchronousMessage, which
// start every interaction explicitly.
type LegacyBuilder struct {
	pact *Pact
}

// Legacy returns the auto-sealing builder for p.
//
// Deprecated: see LegacyBuilder.
func Legacy(p *Pact) *LegacyBuilder {
	return &LegacyBuilder{pact: p}
}

// draft is the interaction a LegacyBuilder is filling in.
type draft struct {
	description string
	states      []ProviderState
	request     *Request
	response    *Response
	content     any
	hasContent  bool
	contentType string
	metadata    map[string]any
}

func (d *draft) empty() bool {
	return d.description == "" && len(d.states) == 0 && d.request == nil && d.response == nil &&
		!d.hasContent && d.metadata == nil
}

func (d *draft) isMessage() bool {
	return d.hasContent || d.metadata != nil
}

// complete reports whether every mandatory field is set: description, request
// and response for HTTP; description, contents and metadata for messages.
func (d *draft) complete() bool {
	if d.description == "" {
		return false
	}
	if d.request != nil && d.response != nil {
		return true
	}
	return d.hasContent && d.metadata != nil
}

func (d *draft) interaction() Interaction {
	common := Common{Description: d.description, ProviderStates: d.states}
	if d.isMessage() && d.request == nil && d.response == nil {
		m := &AsyncMessage{Common: common}
		if d.hasContent || d.metadata != nil {
			m.Contents = &MessageContents{Content: d.content, ContentType: d.contentType, Metadata: d.metadata}
		}
		return m
	}
	return &HTTPInteraction{Common: common, Request: d.request, Response: d.response}
}

// current seals a complete draft and returns the draft to mutate.
func (b *LegacyBuilder) current() *draft {
	p := b.pact
	if p.draft == nil {
		p.draft = &draft{}
	}
	if p.draft.complete() {
		p.interactions = append([]Interaction{p.draft.interaction()}, p.interactions...)
		p.draft = &draft{}
	}
	return p.draft
}

func (b *LegacyBuilder) Given(state string) *LegacyBuilder {
	d := b.current()
	d.states = append(d.states, ProviderState{Name: state})
	return b
}

func (b *LegacyBuilder) GivenWithParams(state string, params map[string]any) *LegacyBuilder {
	d := b.current()
	d.states = append(d.states, ProviderState{Name: state, Params: params})
	return b
}

func (b *LegacyBuilder) UponReceiving(description string) *LegacyBuilder {
	b.current().description = description
	return b
}

func (b *LegacyBuilder) WithRequest(request Request) *LegacyBuilder {
	b.current().request = &request
	return b
}

func (b *LegacyBuilder) WillRespondWith(response Response) *LegacyBuilder {
	b.current().response = &response
	return b
}

func (b *LegacyBuilder) ExpectsToReceive(description string) *LegacyBuilder {
	b.current().description = description
	return b
}

func (b *LegacyBuilder) WithContent(content any, contentType ...string) *LegacyBuilder {
	d := b.current()
	d.content = content
	d.hasContent = true
	if len(contentType) > 0 {
		d.contentType = contentType[0]
	}
	return b
}

func (b *LegacyBuilder) WithMetadata(metadata map[string]any) *LegacyBuilder {
	d := b.current()
	if metadata == nil {
		metadata = map[string]any{}
	}
	d.metadata = metadata
	return b
}

// Seal finishes the interaction being built, even when it is incomplete, so the
// next call starts a new one. Finalizing the pact still reports missing fields.
func (b *LegacyBuilder) Seal() *LegacyBuilder {
	p := b.pact
	if p.draft != nil && !p.draft.empty() {
		p.interactions = append([]Interaction{p.draft.interaction()}, p.interactions...)
	}
	p.draft = &draft{}
	return b
}
