package match

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Rule is a single matching rule as written in a pact file, e.g. {"match": "type", "min": 1}.
type Rule map[string]any

// Rules maps a JSON path to the rule that applies at that path.
type Rules map[string]Rule

// Generators maps a JSON path to the generator that applies at that path.
type Generators map[string]Generator

// Paths returns the rule paths in a stable order.
func (r Rules) Paths() []string {
	paths := make([]string, 0, len(r))
	for p := range r {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Match returns the rule's matcher kind, inferring it for rules written without
// a "match" key.
func (r Rule) Match() string {
	if m, ok := r["match"].(string); ok {
		return m
	}
	if _, ok := r["regex"]; ok {
		return "regex"
	}
	if _, ok := r["min"]; ok {
		return "type"
	}
	if _, ok := r["max"]; ok {
		return "type"
	}
	return ""
}

// Extract returns the example for v together with the matching rules and
// generators of every matcher in it, keyed by JSON path below root.
func Extract(v any, root string) (any, Rules, Generators, error) {
	x := &extractor{rules: Rules{}, generators: Generators{}}
	example, err := x.extract(v, root)
	if err != nil {
		return nil, nil, nil, err
	}
	return example, x.rules, x.generators, nil
}

type extractor struct {
	rules      Rules
	generators Generators
}

func (x *extractor) extract(v any, path string) (any, error) {
	m, ok := v.(Matcher)
	if !ok {
		return walk(v, path, x.extract)
	}
	if err := validateMatcher(m, path); err != nil {
		return nil, err
	}
	rule, err := ruleOf(m)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	x.rules[path] = rule
	if g, ok := generatorOf(m); ok {
		x.generators[path] = g
	}
	return generateMatcher(m, path, x.extract)
}

// RuleOf returns the pact file matching rule for m. An arrayContains matcher
// whose variants cannot be extracted yields a rule without variants.
func RuleOf(m Matcher) Rule {
	if rule, err := ruleOf(m); err == nil {
		return rule
	}
	return Rule{"match": m.Type()}
}

func ruleOf(m Matcher) (Rule, error) {
	switch t := m.(type) {
	case ArrayContainsMatcher:
		variants := make([]any, len(t.Variants))
		for i, v := range t.Variants {
			r, err := variantRule(i, v)
			if err != nil {
				return nil, err
			}
			variants[i] = r
		}
		return Rule{"match": t.Type(), "variants": variants}, nil
	case EachKeyMatcher:
		return Rule{"match": t.Type(), "rules": ruleList(t.Rules)}, nil
	case EachValueMatcher:
		return Rule{"match": t.Type(), "rules": ruleList(t.Rules)}, nil
	}
	return plainRule(m), nil
}

func plainRule(m Matcher) Rule {
	switch t := m.(type) {
	case RegexMatcher:
		return Rule{"match": "regex", "regex": t.Pattern}
	case UUIDMatcher:
		return Rule{"match": "regex", "regex": t.Pattern()}
	case IncludeMatcher:
		return Rule{"match": "include", "value": t.Substring}
	case DateTimeMatcher:
		kind := "timestamp"
		if t.Kind != KindDateTime {
			kind = string(t.Kind)
		}
		return Rule{"match": kind, "format": t.Format}
	case EachLikeMatcher:
		r := Rule{"match": "type"}
		if t.Min != nil {
			r["min"] = *t.Min
		}
		if t.Max != nil {
			r["max"] = *t.Max
		}
		if t.Min == nil && t.Max == nil {
			r["min"] = 0
		}
		return r
	}
	return Rule{"match": m.Type()}
}

// Rebuild reverses Extract: it restores the matchers described by rules and
// generators into example.
func Rebuild(example any, rules Rules, generators Generators, root string) (any, error) {
	r := rebuilder{rules: rules, generators: generators}
	return r.rebuild(example, root)
}

type rebuilder struct {
	rules      Rules
	generators Generators
}

func (r rebuilder) rebuild(v any, path string) (any, error) {
	rule, ok := r.rules[path]
	if !ok {
		return r.children(v, path)
	}
	gen, hasGen := r.generators[path]
	generated := hasGen && gen.replacesExample()

	switch kind := rule.Match(); kind {
	case "type":
		if items, isArray := v.([]any); isArray && (rule["min"] != nil || rule["max"] != nil) {
			return r.eachLike(items, rule, path)
		}
		value, err := r.children(v, path)
		if err != nil {
			return nil, err
		}
		if hasGen && gen.Type == GenProviderState {
			expression, _ := gen.Params["expression"].(string)
			return ProviderStateMatcher{Expression: expression, Example: value}, nil
		}
		m := TypeMatcher{Value: value}
		if hasGen {
			m.Generator = &gen
		}
		if generated {
			m.Value = nil
		}
		return m, nil
	case "equality":
		value, err := r.children(v, path)
		if err != nil {
			return nil, err
		}
		return EqualityMatcher{Value: value}, nil
	case "regex":
		pattern, _ := rule["regex"].(string)
		var example *string
		if !generated {
			example = stringPtr(v)
		}
		if hasGen && gen.Type != GenRegex && gen.Type != GenUUID {
			return RegexMatcher{Pattern: pattern, Example: example, Generator: &gen}, nil
		}
		for format, p := range uuidPatterns {
			if p == pattern {
				return UUIDMatcher{Format: format, Example: example}, nil
			}
		}
		return RegexMatcher{Pattern: pattern, Example: example}, nil
	case "include":
		substring, _ := rule["value"].(string)
		example, _ := v.(string)
		return IncludeMatcher{Substring: substring, Example: example}, nil
	case "integer":
		m := IntegerMatcher{}
		if generated {
			m.Min, m.Max = int64Ptr(gen.Params["min"]), int64Ptr(gen.Params["max"])
		} else {
			m.Example = int64Ptr(v)
		}
		return m, nil
	case "decimal":
		m := DecimalMatcher{}
		if generated {
			m.Digits = intPtr(gen.Params["digits"])
		} else if f, ok := toFloat(v); ok {
			m.Example = &f
		}
		return m, nil
	case "number":
		if generated {
			return NumberMatcher{}, nil
		}
		return NumberMatcher{Example: v}, nil
	case "date", "time", "timestamp", "datetime":
		format, _ := rule["format"].(string)
		if format == "" {
			format, _ = rule[kind].(string)
		}
		dk := DateTimeKind(kind)
		if kind == "timestamp" {
			dk = KindDateTime
		}
		m := DateTimeMatcher{Kind: dk, Format: format}
		if !generated {
			m.Example = stringPtr(v)
		}
		return m, nil
	case "arrayContains":
		return r.arrayContains(v, rule, path)
	case "eachKey", "eachValue":
		matchers, err := ruleMatchers(rule["rules"], path)
		if err != nil {
			return nil, err
		}
		value, err := r.children(v, path)
		if err != nil {
			return nil, err
		}
		if kind == "eachKey" {
			return EachKeyMatcher{Value: value, Rules: matchers}, nil
		}
		return EachValueMatcher{Value: value, Rules: matchers}, nil
	case "null":
		return NullMatcher{}, nil
	case "boolean":
		m := BooleanMatcher{}
		if !generated {
			if b, ok := v.(bool); ok {
				m.Example = &b
			}
		}
		return m, nil
	}
	return nil, errors.Errorf("%s: unsupported matching rule %q", path, rule.Match())
}

func (r rebuilder) eachLike(items []any, rule Rule, path string) (any, error) {
	m := EachLikeMatcher{Min: intPtr(rule["min"]), Max: intPtr(rule["max"])}
	if len(items) > 0 {
		template, err := r.rebuild(items[0], templatePath(path))
		if err != nil {
			return nil, err
		}
		m.Template = template
	}
	if len(items) != m.count() {
		m.Count = len(items)
	}
	return m, nil
}

// arrayContains restores each variant from the element at its index, using the
// rules and generators recorded with the variant.
func (r rebuilder) arrayContains(v any, rule Rule, path string) (any, error) {
	items, _ := v.([]any)
	raw, _ := rule["variants"].([]any)
	m := ArrayContainsMatcher{Variants: make([]any, 0, len(raw))}
	for i, entry := range raw {
		variant, _ := entry.(map[string]any)
		index := i
		if n, ok := toInt(variant["index"]); ok {
			index = int(n)
		}
		if index < 0 || index >= len(items) {
			return nil, errors.Errorf("%s: arrayContains variant %d has no element at index %d", path, i, index)
		}
		rules := Rules{}
		for p, e := range object(variant["rules"]) {
			matchers, _ := object(e)["matchers"].([]any)
			if len(matchers) > 0 {
				rules[p] = Rule(object(matchers[0]))
			}
		}
		gens := Generators{}
		for p, e := range object(variant["generators"]) {
			g, err := GeneratorFromRule(object(e))
			if err != nil {
				return nil, errors.Wrapf(err, "%s: arrayContains variant %d generator %q", path, i, p)
			}
			gens[p] = g
		}
		rebuilt, err := Rebuild(items[index], rules, gens, "$")
		if err != nil {
			return nil, errors.Wrapf(err, "%s: arrayContains variant %d", path, i)
		}
		m.Variants = append(m.Variants, rebuilt)
	}
	return m, nil
}

// ruleMatchers turns the rule list of an eachKey or eachValue rule into matchers
// without examples.
func ruleMatchers(raw any, path string) ([]Matcher, error) {
	list, _ := raw.([]any)
	out := make([]Matcher, 0, len(list))
	for _, entry := range list {
		v, err := rebuilder{rules: Rules{"$": Rule(object(entry))}}.rebuild(nil, "$")
		if err != nil {
			return nil, errors.Wrapf(err, "%s", path)
		}
		m, ok := v.(Matcher)
		if !ok {
			return nil, errors.Errorf("%s: rule %v is not a matcher", path, entry)
		}
		out = append(out, m)
	}
	return out, nil
}

func object(v any) map[string]any {
	switch t := v.(type) {
	case map[string]any:
		return t
	case Rule:
		return t
	}
	return nil
}

func (r rebuilder) children(v any, path string) (any, error) {
	return walk(v, path, r.rebuild)
}

// ForPrefix returns the rules below prefix, re-rooted at root. It is used to
// split flat V2 rule paths such as "$.body.id" into categories.
func (r Rules) ForPrefix(prefix, root string) Rules {
	out := Rules{}
	for p, rule := range r {
		if p == prefix {
			out[root] = rule
			continue
		}
		if strings.HasPrefix(p, prefix) && (p[len(prefix)] == '.' || p[len(prefix)] == '[') {
			out[root+p[len(prefix):]] = rule
		}
	}
	return out
}
