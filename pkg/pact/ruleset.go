package pact

import (
	"sort"
	"strings"

	"github.com/form3tech-oss/pact-kit/pkg/match"
	"github.com/pkg/errors"
)

const (
	categoryPath     = "path"
	categoryQuery    = "query"
	categoryHeader   = "header"
	categoryBody     = "body"
	categoryMetadata = "metadata"
	categoryStatus   = "status"
)

// singular categories hold one rule rather than one per key.
func singular(category string) bool {
	return category == categoryPath || category == categoryStatus
}

// ruleSet holds the matching rules and generators of one request, response or
// message, keyed by category and then by JSON path or name. The path category
// has a single entry under the empty key.
type ruleSet struct {
	rules      map[string]match.Rules
	generators map[string]match.Generators
}

func newRuleSet() *ruleSet {
	return &ruleSet{rules: map[string]match.Rules{}, generators: map[string]match.Generators{}}
}

func (r *ruleSet) addRule(category, key string, rule match.Rule) {
	if r.rules[category] == nil {
		r.rules[category] = match.Rules{}
	}
	r.rules[category][key] = rule
}

func (r *ruleSet) addGenerator(category, key string, g match.Generator) {
	if r.generators[category] == nil {
		r.generators[category] = match.Generators{}
	}
	r.generators[category][key] = g
}

// tree extracts a structured value whose rules are keyed by JSON path.
func (r *ruleSet) tree(category string, v any) (any, error) {
	example, rules, gens, err := match.Extract(v, "$")
	if err != nil {
		return nil, errors.Wrap(err, category)
	}
	for p, rule := range rules {
		r.addRule(category, p, rule)
	}
	for p, g := range gens {
		r.addGenerator(category, p, g)
	}
	return example, nil
}

// keyed extracts a single value whose rule is keyed by name, such as a header.
func (r *ruleSet) keyed(category, key string, v any) (any, error) {
	example, rules, gens, err := match.Extract(v, "$")
	if err != nil {
		return nil, errors.Wrapf(err, "%s %q", category, key)
	}
	if rule, ok := rules["$"]; ok {
		r.addRule(category, key, rule)
	}
	if g, ok := gens["$"]; ok {
		r.addGenerator(category, key, g)
	}
	return example, nil
}

// rebuildTree restores the matchers of a structured value.
func (r *ruleSet) rebuildTree(category string, example any) (any, error) {
	v, err := match.Rebuild(example, r.rules[category], r.generators[category], "$")
	return v, errors.Wrap(err, category)
}

// rebuildKeyed restores the matcher of a single named value.
func (r *ruleSet) rebuildKeyed(category, key string, example any) (any, error) {
	rule, ok := r.rules[category][key]
	if !ok {
		return example, nil
	}
	gens := match.Generators{}
	if g, ok := r.generators[category][key]; ok {
		gens["$"] = g
	}
	v, err := match.Rebuild(example, match.Rules{"$": rule}, gens, "$")
	return v, errors.Wrapf(err, "%s %q", category, key)
}

func (r *ruleSet) empty() bool {
	return len(r.rules) == 0
}

// v3Rules renders the categorized form used by V3 and V4 documents.
func (r *ruleSet) v3Rules() map[string]any {
	out := map[string]any{}
	for category, rules := range r.rules {
		if singular(category) {
			out[category] = matcherList(rules[""])
			continue
		}
		entries := map[string]any{}
		for key, rule := range rules {
			entries[key] = matcherList(rule)
		}
		out[category] = entries
	}
	return out
}

func (r *ruleSet) v3Generators() map[string]any {
	out := map[string]any{}
	for category, gens := range r.generators {
		if singular(category) {
			out[category] = gens[""].RuleJSON()
			continue
		}
		entries := map[string]any{}
		for key, g := range gens {
			entries[key] = g.RuleJSON()
		}
		out[category] = entries
	}
	return out
}

// v2Rules renders the flat form used by V2 documents, e.g. "$.body.id".
func (r *ruleSet) v2Rules() map[string]any {
	out := map[string]any{}
	for category, rules := range r.rules {
		for key, rule := range rules {
			switch category {
			case categoryPath:
				out["$.path"] = map[string]any(rule)
			case categoryQuery:
				out[match.ChildPath("$.query", key)] = map[string]any(rule)
			case categoryHeader:
				out[match.ChildPath("$.headers", key)] = map[string]any(rule)
			default:
				out["$."+category+strings.TrimPrefix(key, "$")] = map[string]any(rule)
			}
		}
	}
	return out
}

func matcherList(rule match.Rule) map[string]any {
	return map[string]any{"matchers": []any{map[string]any(rule)}, "combine": "AND"}
}

// parseRuleSet reads the matchingRules and generators of a request, response or
// message in either the flat V2 or categorized V3/V4 form.
func parseRuleSet(rules, generators any) (*ruleSet, error) {
	r := newRuleSet()
	if obj, ok := rules.(map[string]any); ok {
		if isFlat(obj) {
			if err := r.parseV2(obj); err != nil {
				return nil, err
			}
		} else if err := r.parseV3(obj); err != nil {
			return nil, err
		}
	}
	if obj, ok := generators.(map[string]any); ok {
		for category, raw := range obj {
			category = canonicalCategory(category)
			entries, _ := raw.(map[string]any)
			if singular(category) {
				g, err := match.GeneratorFromRule(entries)
				if err != nil {
					return nil, errors.Wrap(err, "path generator")
				}
				r.addGenerator(category, "", g)
				continue
			}
			for key, e := range entries {
				rule, _ := e.(map[string]any)
				g, err := match.GeneratorFromRule(rule)
				if err != nil {
					return nil, errors.Wrapf(err, "%s generator %q", category, key)
				}
				r.addGenerator(category, key, g)
			}
		}
	}
	return r, nil
}

func isFlat(rules map[string]any) bool {
	for k := range rules {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}
	return false
}

func (r *ruleSet) parseV2(rules map[string]any) error {
	for _, p := range sortedKeys(rules) {
		rule, ok := rules[p].(map[string]any)
		if !ok {
			return errors.Errorf("matching rule %q is not an object", p)
		}
		switch {
		case p == "$.path":
			r.addRule(categoryPath, "", rule)
		case strings.HasPrefix(p, "$.body"):
			r.addRule(categoryBody, "$"+strings.TrimPrefix(p, "$.body"), rule)
		case strings.HasPrefix(p, "$.headers"), strings.HasPrefix(p, "$.header"):
			key := strings.TrimPrefix(strings.TrimPrefix(p, "$.headers"), "$.header")
			r.addRule(categoryHeader, segmentName(key), rule)
		case strings.HasPrefix(p, "$.query"):
			r.addRule(categoryQuery, segmentName(strings.TrimPrefix(p, "$.query")), rule)
		case strings.HasPrefix(p, "$.metadata"):
			r.addRule(categoryMetadata, segmentName(strings.TrimPrefix(p, "$.metadata")), rule)
		default:
			return errors.Errorf("unsupported matching rule path %q", p)
		}
	}
	return nil
}

func (r *ruleSet) parseV3(rules map[string]any) error {
	for category, raw := range rules {
		category = canonicalCategory(category)
		obj, ok := raw.(map[string]any)
		if !ok {
			return errors.Errorf("matching rules for %q are not an object", category)
		}
		if singular(category) {
			rule, err := firstMatcher(obj)
			if err != nil {
				return errors.Wrap(err, category)
			}
			r.addRule(category, "", rule)
			continue
		}
		for key, entry := range obj {
			entryObj, _ := entry.(map[string]any)
			rule, err := firstMatcher(entryObj)
			if err != nil {
				return errors.Wrapf(err, "%s %q", category, key)
			}
			r.addRule(category, key, rule)
		}
	}
	return nil
}

// firstMatcher returns the first rule of a {"matchers": [...]} entry. Entries
// combining several matchers keep only the first.
func firstMatcher(entry map[string]any) (match.Rule, error) {
	matchers, ok := entry["matchers"].([]any)
	if !ok || len(matchers) == 0 {
		return nil, errors.New("no matchers found")
	}
	rule, ok := matchers[0].(map[string]any)
	if !ok {
		return nil, errors.New("matcher is not an object")
	}
	return rule, nil
}

func canonicalCategory(category string) string {
	if category == "headers" {
		return categoryHeader
	}
	return category
}

// segmentName turns ".Name" or "['Name']" into Name.
func segmentName(s string) string {
	if strings.HasPrefix(s, "['") && strings.HasSuffix(s, "']") {
		return strings.ReplaceAll(s[2:len(s)-2], `\'`, "'")
	}
	return strings.TrimPrefix(s, ".")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
