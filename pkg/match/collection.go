package match

// ArrayContainsMatcher matches an array holding at least one element per
// variant, in any order. Each variant carries its own matchers.
type ArrayContainsMatcher struct {
	Variants []any
}

// EachKeyMatcher matches an object whose every key satisfies Rules.
// Value is the example object.
type EachKeyMatcher struct {
	Value any
	Rules []Matcher
}

// EachValueMatcher matches an object whose every value satisfies Rules.
type EachValueMatcher struct {
	Value any
	Rules []Matcher
}

func (ArrayContainsMatcher) Type() string { return "arrayContains" }
func (EachKeyMatcher) Type() string       { return "eachKey" }
func (EachValueMatcher) Type() string     { return "eachValue" }

func (ArrayContainsMatcher) isMatcher() {}
func (EachKeyMatcher) isMatcher()       {}
func (EachValueMatcher) isMatcher()     {}

// ArrayContaining generates the variants in order as its example.
func ArrayContaining(variants ...any) ArrayContainsMatcher {
	return ArrayContainsMatcher{Variants: variants}
}

// EachKey matches objects like example whose keys all satisfy rules, e.g.
// EachKey(map[string]any{"a1": 1}, Regex(`^[a-z]\d$`, "a1")).
func EachKey(example any, rules ...Matcher) EachKeyMatcher {
	return EachKeyMatcher{Value: example, Rules: rules}
}

func EachValue(example any, rules ...Matcher) EachValueMatcher {
	return EachValueMatcher{Value: example, Rules: rules}
}

// variantRule renders the rules and generators of one arrayContains variant,
// rooted at the variant itself.
func variantRule(index int, variant any) (map[string]any, error) {
	_, rules, gens, err := Extract(variant, "$")
	if err != nil {
		return nil, err
	}
	r := map[string]any{}
	for p, rule := range rules {
		r[p] = map[string]any{"matchers": []any{map[string]any(rule)}, "combine": "AND"}
	}
	g := map[string]any{}
	for p, gen := range gens {
		g[p] = gen.RuleJSON()
	}
	return map[string]any{"index": index, "rules": r, "generators": g}, nil
}

// ruleList renders the matchers of an eachKey or eachValue rule.
func ruleList(matchers []Matcher) []any {
	out := make([]any, len(matchers))
	for i, m := range matchers {
		out[i] = map[string]any(RuleOf(m))
	}
	return out
}
