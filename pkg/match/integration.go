package match

import (
	"github.com/pkg/errors"
)

const (
	matcherTypeKey   = "pact:matcher:type"
	generatorTypeKey = "pact:generator:type"
)

// IntegrationJSON rewrites every matcher in v into the tagged form
// {"pact:matcher:type": kind, "value": example-or-null, ...}.
func IntegrationJSON(v any) (any, error) {
	return integrationValue(v, "$")
}

func integrationValue(v any, path string) (any, error) {
	m, ok := v.(Matcher)
	if !ok {
		return walk(v, path, integrationValue)
	}
	if err := validateMatcher(m, path); err != nil {
		return nil, err
	}

	out := map[string]any{matcherTypeKey: m.Type(), "value": nil}
	if g, ok := generatorOf(m); ok {
		for k, p := range g.IntegrationJSON() {
			out[k] = p
		}
	}

	var err error
	switch t := m.(type) {
	case EqualityMatcher:
		out["value"], err = integrationValue(t.Value, path)
	case TypeMatcher:
		out["value"], err = integrationValue(t.Value, path)
	case ProviderStateMatcher:
		out["value"], err = integrationValue(t.Example, path)
	case ArrayContainsMatcher:
		delete(out, "value")
		variants := make([]any, len(t.Variants))
		for i, v := range t.Variants {
			if variants[i], err = integrationValue(v, indexPath(path, i)); err != nil {
				break
			}
		}
		out["variants"] = variants
	case EachKeyMatcher:
		out["value"], err = integrationValue(t.Value, path)
		if err == nil {
			out["rules"], err = integrationRules(t.Rules, path)
		}
	case EachValueMatcher:
		out["value"], err = integrationValue(t.Value, path)
		if err == nil {
			out["rules"], err = integrationRules(t.Rules, path)
		}
	case EachLikeMatcher:
		var item any
		item, err = integrationValue(t.Template, templatePath(path))
		out["value"] = []any{item}
		if t.Min != nil {
			out["min"] = *t.Min
		}
		if t.Max != nil {
			out["max"] = *t.Max
		}
		if t.Count > 0 {
			out["examples"] = t.Count
		}
	case RegexMatcher:
		out["regex"] = t.Pattern
		if t.Example != nil {
			out["value"] = *t.Example
		}
	case UUIDMatcher:
		out["regex"] = t.Pattern()
		if t.Example != nil {
			out["value"] = *t.Example
		}
	case IncludeMatcher:
		out["value"] = t.Example
		out["substring"] = t.Substring
	case IntegerMatcher:
		if t.Example != nil {
			out["value"] = *t.Example
		}
	case DecimalMatcher:
		if t.Example != nil {
			out["value"] = *t.Example
		}
	case NumberMatcher:
		out["value"] = t.Example
	case DateTimeMatcher:
		out["format"] = t.Format
		if t.Example != nil {
			out["value"] = *t.Example
		}
	case BooleanMatcher:
		if t.Example != nil {
			out["value"] = *t.Example
		}
	case NullMatcher:
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func integrationRules(rules []Matcher, path string) ([]any, error) {
	out := make([]any, len(rules))
	for i, r := range rules {
		v, err := integrationValue(r, path)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// generatorParams lists the integration fields read back into each generator.
var generatorParams = map[string][]string{
	GenRandomInt:         {"min", "max"},
	GenRandomDecimal:     {"digits"},
	GenRandomHexadecimal: {"digits"},
	GenRandomString:      {"size"},
	GenRegex:             {"regex"},
	GenUUID:              {"format"},
	GenDate:              {"format"},
	GenTime:              {"format"},
	GenDateTime:          {"format"},
	GenMockServerURL:     {"regex", "example"},
	GenProviderState:     {"expression", "dataType"},
}

// integrationGenerator reads the generator merged into a matcher's integration form.
func integrationGenerator(obj map[string]any) *Generator {
	t, _ := obj[generatorTypeKey].(string)
	if t == "" {
		return nil
	}
	g := Generator{Type: t}
	for _, k := range generatorParams[t] {
		v, ok := obj[k]
		if !ok {
			continue
		}
		if g.Params == nil {
			g.Params = map[string]any{}
		}
		g.Params[k] = v
	}
	return &g
}

// FromIntegrationJSON is the inverse of IntegrationJSON.
func FromIntegrationJSON(v any) (any, error) {
	return fromIntegration(v, "$")
}

func fromIntegration(v any, path string) (any, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return walk(v, path, fromIntegration)
	}
	kind, ok := obj[matcherTypeKey].(string)
	if !ok {
		return walk(v, path, fromIntegration)
	}
	genType, _ := obj[generatorTypeKey].(string)
	value := obj["value"]

	switch kind {
	case "equality":
		inner, err := fromIntegration(value, path)
		return EqualityMatcher{Value: inner}, err
	case "type":
		if items, isArray := value.([]any); isArray && (obj["min"] != nil || obj["max"] != nil || obj["examples"] != nil) {
			m := EachLikeMatcher{Min: intPtr(obj["min"]), Max: intPtr(obj["max"])}
			if n := intPtr(obj["examples"]); n != nil {
				m.Count = *n
			}
			if len(items) > 0 {
				template, err := fromIntegration(items[0], templatePath(path))
				if err != nil {
					return nil, err
				}
				m.Template = template
			}
			return m, nil
		}
		inner, err := fromIntegration(value, path)
		if err != nil {
			return nil, err
		}
		if genType == GenProviderState {
			expression, _ := obj["expression"].(string)
			return ProviderStateMatcher{Expression: expression, Example: inner}, nil
		}
		return TypeMatcher{Value: inner, Generator: integrationGenerator(obj)}, nil
	case "regex":
		pattern, _ := obj["regex"].(string)
		if genType != "" && genType != GenRegex && genType != GenUUID {
			return RegexMatcher{Pattern: pattern, Example: stringPtr(value), Generator: integrationGenerator(obj)}, nil
		}
		if genType == GenUUID {
			format, _ := obj["format"].(string)
			return UUIDMatcher{Format: UUIDFormat(format), Example: stringPtr(value)}, nil
		}
		for format, p := range uuidPatterns {
			if p == pattern {
				return UUIDMatcher{Format: format, Example: stringPtr(value)}, nil
			}
		}
		return RegexMatcher{Pattern: pattern, Example: stringPtr(value)}, nil
	case "include":
		example, _ := value.(string)
		substring, ok := obj["substring"].(string)
		if !ok {
			substring = example
		}
		return IncludeMatcher{Substring: substring, Example: example}, nil
	case "integer":
		return IntegerMatcher{Example: int64Ptr(value), Min: int64Ptr(obj["min"]), Max: int64Ptr(obj["max"])}, nil
	case "decimal":
		m := DecimalMatcher{Digits: intPtr(obj["digits"])}
		if f, ok := toFloat(value); ok {
			m.Example = &f
		}
		return m, nil
	case "number":
		return NumberMatcher{Example: value}, nil
	case "date", "time", "datetime", "timestamp":
		format, _ := obj["format"].(string)
		dk := DateTimeKind(kind)
		if kind == "timestamp" {
			dk = KindDateTime
		}
		return DateTimeMatcher{Kind: dk, Format: format, Example: stringPtr(value)}, nil
	case "arrayContains":
		raw, _ := obj["variants"].([]any)
		m := ArrayContainsMatcher{Variants: make([]any, len(raw))}
		for i, v := range raw {
			variant, err := fromIntegration(v, indexPath(path, i))
			if err != nil {
				return nil, err
			}
			m.Variants[i] = variant
		}
		return m, nil
	case "eachKey", "eachValue":
		inner, err := fromIntegration(value, path)
		if err != nil {
			return nil, err
		}
		raw, _ := obj["rules"].([]any)
		rules := make([]Matcher, 0, len(raw))
		for _, r := range raw {
			v, err := fromIntegration(r, path)
			if err != nil {
				return nil, err
			}
			m, ok := v.(Matcher)
			if !ok {
				return nil, errors.Errorf("%s: %s rule %v is not a matcher", path, kind, r)
			}
			rules = append(rules, m)
		}
		if kind == "eachKey" {
			return EachKeyMatcher{Value: inner, Rules: rules}, nil
		}
		return EachValueMatcher{Value: inner, Rules: rules}, nil
	case "null":
		return NullMatcher{}, nil
	case "boolean":
		m := BooleanMatcher{}
		if b, ok := value.(bool); ok {
			m.Example = &b
		}
		return m, nil
	}
	return nil, errors.Errorf("%s: unsupported matcher type %q", path, kind)
}
