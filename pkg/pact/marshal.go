package pact

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Marshal serializes p as a pact specification document in the shape of its
// specification version.
func Marshal(p *Pact) ([]byte, error) {
	doc, err := document(p)
	if err != nil {
		return nil, err
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encode pact")
	}
	return b, nil
}

func document(p *Pact) (map[string]any, error) {
	spec, err := ParseSpecification(string(p.Specification))
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	metadata := map[string]any{}
	for k, v := range p.Metadata {
		metadata[k] = v
	}
	metadata["pactSpecification"] = map[string]any{"version": string(spec)}
	metadata["pactKit"] = map[string]any{"version": LibraryVersion}
	if len(p.Plugins) > 0 {
		metadata["plugins"] = p.Plugins
	}

	doc := map[string]any{
		"consumer": map[string]any{"name": p.Consumer},
		"provider": map[string]any{"name": p.Provider},
		"metadata": metadata,
	}

	interactions := []any{}
	var messages []any
	for _, i := range p.Interactions() {
		var out map[string]any
		switch spec {
		case V2, V3:
			out, err = legacyInteraction(i, spec)
		default:
			out, err = v4Interaction(i)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "interaction %q", i.Base().Description)
		}
		if spec == V3 && i.Kind() == KindAsyncMessage {
			messages = append(messages, out)
			continue
		}
		interactions = append(interactions, out)
	}

	if len(messages) > 0 {
		doc["messages"] = messages
	}
	if len(messages) == 0 || len(interactions) > 0 {
		doc["interactions"] = interactions
	}
	return doc, nil
}

// HTTPInteractionsJSON renders the HTTP interactions of p in the V2 or V3
// shape, the form a mock service control plane accepts. V4 pacts use the V3 shape.
func HTTPInteractionsJSON(p *Pact) ([]map[string]any, error) {
	spec, err := ParseSpecification(string(p.Specification))
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if spec == V4 {
		spec = V3
	}
	out := []map[string]any{}
	for _, i := range p.HTTPInteractions() {
		doc, err := legacyInteraction(i, spec)
		if err != nil {
			return nil, errors.Wrapf(err, "interaction %q", i.Description)
		}
		out = append(out, doc)
	}
	return out, nil
}

func legacyInteraction(i Interaction, spec Specification) (map[string]any, error) {
	c := i.Base()
	out := map[string]any{"description": c.Description}
	if spec == V2 {
		if len(c.ProviderStates) == 1 {
			out["providerState"] = c.ProviderStates[0].Name
		}
	} else if len(c.ProviderStates) > 0 {
		out["providerStates"] = c.ProviderStates
	}

	switch t := i.(type) {
	case *HTTPInteraction:
		req, err := encodeRequest(t.Request, spec)
		if err != nil {
			return nil, errors.Wrap(err, "request")
		}
		res, err := encodeResponse(t.Response, spec)
		if err != nil {
			return nil, errors.Wrap(err, "response")
		}
		out["request"], out["response"] = req, res
	case *AsyncMessage:
		if err := encodeMessage(out, t.Contents, spec); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Errorf("%s interactions need specification %s", i.Kind(), V4)
	}
	return out, nil
}

func v4Interaction(i Interaction) (map[string]any, error) {
	c := i.Base()
	out := map[string]any{
		"type":        string(i.Kind()),
		"description": c.Description,
		"pending":     c.Pending,
	}
	if len(c.ProviderStates) > 0 {
		out["providerStates"] = c.ProviderStates
	}
	if len(c.PluginConfiguration) > 0 {
		out["pluginConfiguration"] = c.PluginConfiguration
	}
	if c.Markup != nil {
		out["interactionMarkup"] = c.Markup
	}

	switch t := i.(type) {
	case *HTTPInteraction:
		req, err := encodeRequest(t.Request, V4)
		if err != nil {
			return nil, errors.Wrap(err, "request")
		}
		res, err := encodeResponse(t.Response, V4)
		if err != nil {
			return nil, errors.Wrap(err, "response")
		}
		out["request"], out["response"] = req, res
	case *AsyncMessage:
		if err := encodeMessage(out, t.Contents, V4); err != nil {
			return nil, err
		}
	case *SyncMessage:
		req := map[string]any{}
		if err := encodeMessage(req, t.Request, V4); err != nil {
			return nil, errors.Wrap(err, "request")
		}
		responses := make([]any, 0, len(t.Responses))
		for n := range t.Responses {
			res := map[string]any{}
			if err := encodeMessage(res, &t.Responses[n], V4); err != nil {
				return nil, errors.Wrapf(err, "response %d", n+1)
			}
			responses = append(responses, res)
		}
		out["request"], out["response"] = req, responses
	}
	return out, nil
}

func encodeRequest(req *Request, spec Specification) (map[string]any, error) {
	rules := newRuleSet()
	out := map[string]any{"method": req.Method}

	path, err := rules.keyed(categoryPath, "", req.Path)
	if err != nil {
		return nil, err
	}
	pathString, ok := path.(string)
	if !ok {
		return nil, errors.Errorf("path must be a string, got %T", path)
	}
	out["path"] = pathString

	if len(req.Query) > 0 {
		query, err := encodeQuery(rules, req.Query)
		if err != nil {
			return nil, err
		}
		if spec == V2 {
			out["query"] = url.Values(query).Encode()
		} else {
			out["query"] = query
		}
	}

	if err := encodeHTTPParts(out, rules, req.Headers, req.Body, spec); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeResponse(res *Response, spec Specification) (map[string]any, error) {
	rules := newRuleSet()
	out := map[string]any{"status": res.Status}
	if err := encodeHTTPParts(out, rules, res.Headers, res.Body, spec); err != nil {
		return nil, err
	}
	return out, nil
}

// encodeHTTPParts writes headers, body, matching rules and generators into out.
func encodeHTTPParts(out map[string]any, rules *ruleSet, headers map[string]any, body any, spec Specification) error {
	headerValues, err := encodeHeaders(rules, headers)
	if err != nil {
		return err
	}
	if len(headerValues) > 0 {
		if spec == V4 {
			multi := map[string]any{}
			for k, v := range headerValues {
				multi[k] = []string{v}
			}
			out["headers"] = multi
		} else {
			out["headers"] = headerValues
		}
	}

	if body != nil {
		ct := contentType(headers)
		encoded, err := encodeBody(rules, body, ct, spec)
		if err != nil {
			return err
		}
		out["body"] = encoded
	}
	writeRules(out, rules, spec)
	return nil
}

func writeRules(out map[string]any, rules *ruleSet, spec Specification) {
	if rules.empty() && len(rules.generators) == 0 {
		return
	}
	if spec == V2 {
		if !rules.empty() {
			out["matchingRules"] = rules.v2Rules()
		}
		return
	}
	if !rules.empty() {
		out["matchingRules"] = rules.v3Rules()
	}
	if len(rules.generators) > 0 {
		out["generators"] = rules.v3Generators()
	}
}

func encodeHeaders(rules *ruleSet, headers map[string]any) (map[string]string, error) {
	out := map[string]string{}
	for k, v := range headers {
		example, err := rules.keyed(categoryHeader, k, v)
		if err != nil {
			return nil, err
		}
		out[k] = scalarString(example)
	}
	return out, nil
}

// encodeQuery flattens query values into lists of strings. A parameter given
// as a list takes the rule of its first matcher.
func encodeQuery(rules *ruleSet, query map[string]any) (map[string][]string, error) {
	out := map[string][]string{}
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		values, isList := query[k].([]any)
		if strs, ok := query[k].([]string); ok {
			values, isList = make([]any, len(strs)), true
			for i, s := range strs {
				values[i] = s
			}
		}
		if !isList {
			values = []any{query[k]}
		}
		for _, v := range values {
			_, hadRule := rules.rules[categoryQuery][k]
			single := newRuleSet()
			example, err := single.keyed(categoryQuery, k, v)
			if err != nil {
				return nil, err
			}
			if !hadRule {
				for cat, r := range single.rules {
					for key, rule := range r {
						rules.addRule(cat, key, rule)
					}
				}
				for cat, g := range single.generators {
					for key, gen := range g {
						rules.addGenerator(cat, key, gen)
					}
				}
			}
			out[k] = append(out[k], scalarString(example))
		}
	}
	return out, nil
}

// encodeBody returns the body as written for spec. V4 bodies are wrapped with
// their content type; raw bytes are base64 encoded there and must be valid
// UTF-8 text for earlier versions.
func encodeBody(rules *ruleSet, body any, ct string, spec Specification) (any, error) {
	if raw, ok := body.([]byte); ok {
		if ct == "" {
			ct = mediaTypeBinary
		}
		if spec == V4 {
			if utf8.Valid(raw) && !isJSONMediaType(ct) && ct != mediaTypeBinary {
				return map[string]any{"content": string(raw), "contentType": ct, "encoded": false}, nil
			}
			return map[string]any{"content": base64.StdEncoding.EncodeToString(raw), "contentType": ct, "encoded": "base64"}, nil
		}
		if !utf8.Valid(raw) {
			return nil, errors.Errorf("binary body needs specification %s", V4)
		}
		return string(raw), nil
	}

	example, err := rules.tree(categoryBody, body)
	if err != nil {
		return nil, err
	}
	if spec != V4 {
		return example, nil
	}
	if ct == "" {
		ct = defaultContentType(example)
	}
	return map[string]any{"content": example, "contentType": ct, "encoded": false}, nil
}

// encodeMessage writes a message's contents, metadata, rules and generators into out.
func encodeMessage(out map[string]any, contents *MessageContents, spec Specification) error {
	rules := newRuleSet()
	metadata := map[string]any{}
	ct := ""
	var content any
	if contents != nil {
		for k, v := range contents.Metadata {
			example, err := rules.keyed(categoryMetadata, k, v)
			if err != nil {
				return err
			}
			metadata[k] = example
		}
		ct = contents.ContentType
		content = contents.Content
	}

	if content != nil {
		encoded, err := encodeBody(rules, content, ct, spec)
		if err != nil {
			return errors.Wrap(err, "contents")
		}
		out["contents"] = encoded
	}
	if spec != V4 && ct != "" {
		if _, ok := metadata["contentType"]; !ok {
			metadata["contentType"] = ct
		}
	}
	out["metadata"] = metadata
	writeRules(out, rules, spec)
	return nil
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	}
	return fmt.Sprintf("%v", v)
}
