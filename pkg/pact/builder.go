package pact

// InteractionBuilder fills in one HTTP interaction. Setters overwrite earlier
// values for the same field.
type InteractionBuilder struct {
	interaction *HTTPInteraction
}

// AddInteraction starts a new HTTP interaction, appended after the existing ones.
func (p *Pact) AddInteraction() *InteractionBuilder {
	i := &HTTPInteraction{}
	p.add(i)
	return &InteractionBuilder{interaction: i}
}

func (b *InteractionBuilder) Given(state string) *InteractionBuilder {
	b.interaction.ProviderStates = append(b.interaction.ProviderStates, ProviderState{Name: state})
	return b
}

func (b *InteractionBuilder) GivenWithParams(state string, params map[string]any) *InteractionBuilder {
	b.interaction.ProviderStates = append(b.interaction.ProviderStates, ProviderState{Name: state, Params: params})
	return b
}

func (b *InteractionBuilder) UponReceiving(description string) *InteractionBuilder {
	b.interaction.Description = description
	return b
}

func (b *InteractionBuilder) WithRequest(request Request) *InteractionBuilder {
	b.interaction.Request = &request
	return b
}

func (b *InteractionBuilder) WillRespondWith(response Response) *InteractionBuilder {
	b.interaction.Response = &response
	return b
}

// Pending marks the interaction as pending, so its failure does not fail a V4 verification.
func (b *InteractionBuilder) Pending() *InteractionBuilder {
	b.interaction.Pending = true
	return b
}

// WithPluginConfiguration attaches configuration for a plugin declared with UsingPlugin.
func (b *InteractionBuilder) WithPluginConfiguration(plugin string, config map[string]any) *InteractionBuilder {
	setPluginConfiguration(&b.interaction.Common, plugin, config)
	return b
}

// Interaction returns the interaction being built.
func (b *InteractionBuilder) Interaction() *HTTPInteraction {
	return b.interaction
}

type MessageBuilder struct {
	message *AsyncMessage
}

// AddMessage starts a new asynchronous message interaction.
func (p *Pact) AddMessage() *MessageBuilder {
	m := &AsyncMessage{}
	p.add(m)
	return &MessageBuilder{message: m}
}

func (b *MessageBuilder) Given(state string) *MessageBuilder {
	b.message.ProviderStates = append(b.message.ProviderStates, ProviderState{Name: state})
	return b
}

func (b *MessageBuilder) GivenWithParams(state string, params map[string]any) *MessageBuilder {
	b.message.ProviderStates = append(b.message.ProviderStates, ProviderState{Name: state, Params: params})
	return b
}

func (b *MessageBuilder) ExpectsToReceive(description string) *MessageBuilder {
	b.message.Description = description
	return b
}

func (b *MessageBuilder) WithContent(content any) *MessageBuilder {
	b.contents().Content = content
	return b
}

func (b *MessageBuilder) WithContentType(contentType string) *MessageBuilder {
	b.contents().ContentType = contentType
	return b
}

func (b *MessageBuilder) WithMetadata(metadata map[string]any) *MessageBuilder {
	b.contents().Metadata = metadata
	return b
}

func (b *MessageBuilder) WithPluginConfiguration(plugin string, config map[string]any) *MessageBuilder {
	setPluginConfiguration(&b.message.Common, plugin, config)
	return b
}

func (b *MessageBuilder) Message() *AsyncMessage {
	return b.message
}

func (b *MessageBuilder) contents() *MessageContents {
	if b.message.Contents == nil {
		b.message.Contents = &MessageContents{}
	}
	return b.message.Contents
}

type SyncMessageBuilder struct {
	message *SyncMessage
}

// AddSynchronousMessage starts a new request/response message interaction.
func (p *Pact) AddSynchronousMessage() *SyncMessageBuilder {
	m := &SyncMessage{}
	p.add(m)
	return &SyncMessageBuilder{message: m}
}

func (b *SyncMessageBuilder) Given(state string) *SyncMessageBuilder {
	b.message.ProviderStates = append(b.message.ProviderStates, ProviderState{Name: state})
	return b
}

func (b *SyncMessageBuilder) GivenWithParams(state string, params map[string]any) *SyncMessageBuilder {
	b.message.ProviderStates = append(b.message.ProviderStates, ProviderState{Name: state, Params: params})
	return b
}

func (b *SyncMessageBuilder) UponReceiving(description string) *SyncMessageBuilder {
	b.message.Description = description
	return b
}

func (b *SyncMessageBuilder) WithRequest(request MessageContents) *SyncMessageBuilder {
	b.message.Request = &request
	return b
}

// WillRespondWith adds a response message. It may be called more than once.
func (b *SyncMessageBuilder) WillRespondWith(response MessageContents) *SyncMessageBuilder {
	b.message.Responses = append(b.message.Responses, response)
	return b
}

func (b *SyncMessageBuilder) WithPluginConfiguration(plugin string, config map[string]any) *SyncMessageBuilder {
	setPluginConfiguration(&b.message.Common, plugin, config)
	return b
}

func (b *SyncMessageBuilder) Message() *SyncMessage {
	return b.message
}

func setPluginConfiguration(c *Common, plugin string, config map[string]any) {
	if c.PluginConfiguration == nil {
		c.PluginConfiguration = map[string]any{}
	}
	c.PluginConfiguration[plugin] = config
}
