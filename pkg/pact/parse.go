package pact

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/url"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Parse reads a pact document of any supported specification version.
func Parse(data []byte) (*Pact, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "decode pact")
	}
	doc, ok := normaliseNumbers(raw).(map[string]any)
	if !ok {
		return nil, errors.New("pact document is not an object")
	}

	consumer, _ := object(doc["consumer"])["name"].(string)
	provider, _ := object(doc["provider"])["name"].(string)
	metadata := object(doc["metadata"])

	spec := V2
	if v := specificationVersion(metadata); v != "" {
		s, err := ParseSpecification(v)
		if err != nil {
			return nil, err
		}
		spec = s
	}

	p := New(consumer, provider, WithSpecification(spec))
	for k, v := range metadata {
		switch k {
		case "pactSpecification", "pact-specification", "pactSpecificationVersion", "pactKit":
		case "plugins":
			plugins, err := parsePlugins(v)
			if err != nil {
				return nil, err
			}
			p.Plugins = plugins
		default:
			p.Metadata[k] = v
		}
	}

	for n, item := range list(doc["interactions"]) {
		obj := object(item)
		var (
			i   Interaction
			err error
		)
		if spec == V4 {
			i, err = parseV4Interaction(obj)
		} else {
			i, err = parseLegacyHTTP(obj)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "interaction %d", n+1)
		}
		p.add(i)
	}
	for n, item := range list(doc["messages"]) {
		m, err := parseLegacyMessage(object(item))
		if err != nil {
			return nil, errors.Wrapf(err, "message %d", n+1)
		}
		p.add(m)
	}
	return p, nil
}

// ReadFile parses the pact file at path.
func ReadFile(path string) (*Pact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read pact file")
	}
	p, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return p, nil
}

func specificationVersion(metadata map[string]any) string {
	for _, key := range []string{"pactSpecification", "pact-specification"} {
		if v, ok := object(metadata[key])["version"].(string); ok {
			return v
		}
	}
	v, _ := metadata["pactSpecificationVersion"].(string)
	return v
}

func parsePlugins(v any) ([]Plugin, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "plugins")
	}
	var plugins []Plugin
	if err := json.Unmarshal(b, &plugins); err != nil {
		return nil, errors.Wrap(err, "plugins")
	}
	return plugins, nil
}

func parseCommon(obj map[string]any) (Common, error) {
	c := Common{}
	c.Description, _ = obj["description"].(string)
	if c.Description == "" {
		return c, errors.New("no description defined")
	}
	if name, ok := obj["providerState"].(string); ok && name != "" {
		c.ProviderStates = append(c.ProviderStates, ProviderState{Name: name})
	}
	for _, s := range list(obj["providerStates"]) {
		state := object(s)
		name, _ := state["name"].(string)
		ps := ProviderState{Name: name}
		if params := object(state["params"]); len(params) > 0 {
			ps.Params = params
		}
		c.ProviderStates = append(c.ProviderStates, ps)
	}
	c.Pending, _ = obj["pending"].(bool)
	if cfg := object(obj["pluginConfiguration"]); len(cfg) > 0 {
		c.PluginConfiguration = cfg
	}
	if markup := object(obj["interactionMarkup"]); len(markup) > 0 {
		c.Markup = &Markup{}
		c.Markup.Markup, _ = markup["markup"].(string)
		c.Markup.MarkupType, _ = markup["markupType"].(string)
	}
	return c, nil
}

func parseLegacyHTTP(obj map[string]any) (*HTTPInteraction, error) {
	c, err := parseCommon(obj)
	if err != nil {
		return nil, err
	}
	req, err := parseRequest(object(obj["request"]))
	if err != nil {
		return nil, errors.Wrap(err, "request")
	}
	res, err := parseResponse(object(obj["response"]))
	if err != nil {
		return nil, errors.Wrap(err, "response")
	}
	return &HTTPInteraction{Common: c, Request: req, Response: res}, nil
}

func parseLegacyMessage(obj map[string]any) (*AsyncMessage, error) {
	c, err := parseCommon(obj)
	if err != nil {
		return nil, err
	}
	contents, err := parseMessageContents(obj)
	if err != nil {
		return nil, err
	}
	return &AsyncMessage{Common: c, Contents: contents}, nil
}

func parseV4Interaction(obj map[string]any) (Interaction, error) {
	c, err := parseCommon(obj)
	if err != nil {
		return nil, err
	}
	switch t, _ := obj["type"].(string); Kind(t) {
	case KindHTTP:
		req, err := parseRequest(object(obj["request"]))
		if err != nil {
			return nil, errors.Wrap(err, "request")
		}
		res, err := parseResponse(object(obj["response"]))
		if err != nil {
			return nil, errors.Wrap(err, "response")
		}
		return &HTTPInteraction{Common: c, Request: req, Response: res}, nil
	case KindAsyncMessage:
		contents, err := parseMessageContents(obj)
		if err != nil {
			return nil, err
		}
		return &AsyncMessage{Common: c, Contents: contents}, nil
	case KindSyncMessage:
		m := &SyncMessage{Common: c}
		req, err := parseMessageContents(object(obj["request"]))
		if err != nil {
			return nil, errors.Wrap(err, "request")
		}
		m.Request = req
		for n, r := range list(obj["response"]) {
			res, err := parseMessageContents(object(r))
			if err != nil {
				return nil, errors.Wrapf(err, "response %d", n+1)
			}
			m.Responses = append(m.Responses, *res)
		}
		return m, nil
	default:
		return nil, errors.Errorf("unsupported interaction type %q", t)
	}
}

func parseRequest(obj map[string]any) (*Request, error) {
	rules, err := parseRuleSet(obj["matchingRules"], obj["generators"])
	if err != nil {
		return nil, err
	}
	req := &Request{}
	req.Method, _ = obj["method"].(string)

	path, _ := obj["path"].(string)
	if req.Path, err = rules.rebuildKeyed(categoryPath, "", path); err != nil {
		return nil, err
	}

	if query := parseQuery(obj["query"]); len(query) > 0 {
		req.Query = map[string]any{}
		for k, values := range query {
			rebuilt := make([]any, len(values))
			for i, v := range values {
				if rebuilt[i], err = rules.rebuildKeyed(categoryQuery, k, v); err != nil {
					return nil, err
				}
			}
			if len(rebuilt) == 1 {
				req.Query[k] = rebuilt[0]
			} else {
				req.Query[k] = rebuilt
			}
		}
	}

	if req.Headers, err = parseHeaders(obj["headers"], rules); err != nil {
		return nil, err
	}
	if req.Body, err = parseBody(obj, req.Headers, rules); err != nil {
		return nil, err
	}
	return req, nil
}

func parseResponse(obj map[string]any) (*Response, error) {
	rules, err := parseRuleSet(obj["matchingRules"], obj["generators"])
	if err != nil {
		return nil, err
	}
	res := &Response{}
	if status, ok := obj["status"].(int64); ok {
		res.Status = int(status)
	}
	if res.Headers, err = parseHeaders(obj["headers"], rules); err != nil {
		return nil, err
	}
	if res.Body, err = parseBody(obj, res.Headers, rules); err != nil {
		return nil, err
	}
	return res, nil
}

func parseHeaders(v any, rules *ruleSet) (map[string]any, error) {
	raw := object(v)
	if len(raw) == 0 {
		return nil, nil
	}
	out := map[string]any{}
	for k, value := range raw {
		var s string
		switch t := value.(type) {
		case string:
			s = t
		case []any:
			parts := make([]string, len(t))
			for i, p := range t {
				parts[i] = scalarString(p)
			}
			s = strings.Join(parts, ", ")
		default:
			s = scalarString(t)
		}
		h, err := rules.rebuildKeyed(categoryHeader, k, s)
		if err != nil {
			return nil, err
		}
		out[k] = h
	}
	return out, nil
}

func parseQuery(v any) map[string][]string {
	switch t := v.(type) {
	case string:
		values, err := url.ParseQuery(t)
		if err != nil {
			return nil
		}
		return values
	case map[string]any:
		out := map[string][]string{}
		for k, raw := range t {
			switch vals := raw.(type) {
			case []any:
				for _, s := range vals {
					out[k] = append(out[k], scalarString(s))
				}
			default:
				out[k] = []string{scalarString(vals)}
			}
		}
		return out
	}
	return nil
}

// parseBody reads "body" or, for messages, "contents", unwrapping the V4 form.
func parseBody(obj map[string]any, headers map[string]any, rules *ruleSet) (any, error) {
	key := "body"
	if _, ok := obj[key]; !ok {
		key = "contents"
	}
	raw, ok := obj[key]
	if !ok || raw == nil {
		return nil, nil
	}
	content, binary, err := unwrapBody(raw, contentType(headers))
	if err != nil {
		return nil, err
	}
	if binary {
		return content, nil
	}
	return rules.rebuildTree(categoryBody, content)
}

// unwrapBody strips the V4 {content, contentType, encoded} wrapper. Content
// encoded as base64 is returned as bytes.
func unwrapBody(raw any, declared string) (any, bool, error) {
	wrapper, ok := raw.(map[string]any)
	if !ok {
		return raw, false, nil
	}
	if _, hasContent := wrapper["content"]; !hasContent {
		return raw, false, nil
	}
	if _, hasType := wrapper["contentType"]; !hasType {
		if _, hasEncoded := wrapper["encoded"]; !hasEncoded {
			return raw, false, nil
		}
	}
	content := wrapper["content"]
	if enc, _ := wrapper["encoded"].(string); enc != "" && enc != "false" {
		s, _ := content.(string)
		if strings.EqualFold(enc, "json") {
			var v any
			if err := json.Unmarshal([]byte(s), &v); err != nil {
				return nil, false, errors.Wrap(err, "decode json body")
			}
			return normaliseNumbers(v), false, nil
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, false, errors.Wrap(err, "decode base64 body")
		}
		return b, true, nil
	}
	return content, false, nil
}

func parseMessageContents(obj map[string]any) (*MessageContents, error) {
	rules, err := parseRuleSet(obj["matchingRules"], obj["generators"])
	if err != nil {
		return nil, err
	}
	mc := &MessageContents{Metadata: map[string]any{}}
	for k, v := range object(obj["metadata"]) {
		if mc.Metadata[k], err = rules.rebuildKeyed(categoryMetadata, k, v); err != nil {
			return nil, err
		}
	}
	if wrapper := object(obj["contents"]); wrapper["contentType"] != nil {
		mc.ContentType, _ = wrapper["contentType"].(string)
	} else if ct, ok := mc.Metadata["contentType"].(string); ok {
		// V3 carries the content type in the metadata, where Marshal puts it back.
		mc.ContentType = ct
		delete(mc.Metadata, "contentType")
	}
	if mc.Content, err = parseBody(obj, nil, rules); err != nil {
		return nil, err
	}
	return mc, nil
}

// normaliseNumbers turns json.Number values into int64 when integral and float64 otherwise.
func normaliseNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, c := range t {
			t[k] = normaliseNumbers(c)
		}
		return t
	case []any:
		for i, c := range t {
			t[i] = normaliseNumbers(c)
		}
		return t
	}
	return v
}

func object(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func list(v any) []any {
	l, _ := v.([]any)
	return l
}
