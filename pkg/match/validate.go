package match

import (
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Validate checks every matcher nested in v for inconsistent construction, such
// as an example that does not satisfy its own rule.
func Validate(v any) error {
	return validateValue(v, "$")
}

func validateValue(v any, path string) error {
	if m, ok := v.(Matcher); ok {
		return validateMatcher(m, path)
	}
	_, err := walk(v, path, func(c any, p string) (any, error) {
		return nil, validateValue(c, p)
	})
	return err
}

func validateMatcher(m Matcher, path string) error {
	switch t := m.(type) {
	case EqualityMatcher:
		return validateValue(t.Value, path)
	case TypeMatcher:
		return validateValue(t.Value, path)
	case ProviderStateMatcher:
		if t.Expression == "" {
			return errors.Errorf("%s: provider state matcher needs an expression", path)
		}
		return validateValue(t.Example, path)
	case RegexMatcher:
		re, err := regexp.Compile(t.Pattern)
		if err != nil {
			return errors.Wrapf(err, "%s: regex %q", path, t.Pattern)
		}
		if t.Example != nil && !re.MatchString(*t.Example) {
			return errors.Errorf("%s: example %q does not match regex %q", path, *t.Example, t.Pattern)
		}
	case UUIDMatcher:
		if _, ok := uuidPatterns[t.Format]; !ok && t.Format != "" {
			return errors.Errorf("%s: unknown uuid format %q", path, t.Format)
		}
		if t.Example != nil && !regexp.MustCompile(t.Pattern()).MatchString(*t.Example) {
			return errors.Errorf("%s: example %q is not a %s uuid", path, *t.Example, t.Format)
		}
	case IncludeMatcher:
		if !strings.Contains(t.Example, t.Substring) {
			return errors.Errorf("%s: example %q does not include %q", path, t.Example, t.Substring)
		}
	case IntegerMatcher:
		if t.Min != nil && t.Max != nil && *t.Min > *t.Max {
			return errors.Errorf("%s: integer min %d is greater than max %d", path, *t.Min, *t.Max)
		}
	case DecimalMatcher:
		if t.Example != nil && decimal.NewFromFloat(*t.Example).IsInteger() {
			return errors.Errorf("%s: decimal example %v has no fractional part", path, *t.Example)
		}
		if t.Digits != nil && *t.Digits < 1 {
			return errors.Errorf("%s: decimal digits must be positive", path)
		}
	case NumberMatcher:
		if t.Example != nil && !isNumber(t.Example) {
			return errors.Errorf("%s: number example %s is not a number", path, describe(t.Example))
		}
	case DateTimeMatcher:
		layout, err := goLayout(t.Format)
		if err != nil {
			return errors.Wrapf(err, "%s", path)
		}
		if t.Example != nil {
			if _, err := time.Parse(layout, *t.Example); err != nil {
				return errors.Errorf("%s: example %q does not have format %q", path, *t.Example, t.Format)
			}
		}
	case EachLikeMatcher:
		if t.Min != nil && *t.Min < 0 {
			return errors.Errorf("%s: eachLike min must not be negative", path)
		}
		if t.Min != nil && t.Max != nil && *t.Min > *t.Max {
			return errors.Errorf("%s: eachLike min %d is greater than max %d", path, *t.Min, *t.Max)
		}
		if t.Max != nil && t.count() > *t.Max {
			return errors.Errorf("%s: eachLike count %d exceeds max %d", path, t.count(), *t.Max)
		}
		return validateValue(t.Template, templatePath(path))
	case ArrayContainsMatcher:
		if len(t.Variants) == 0 {
			return errors.Errorf("%s: arrayContains needs at least one variant", path)
		}
		for i, v := range t.Variants {
			if err := validateValue(v, indexPath(path, i)); err != nil {
				return err
			}
		}
	case EachKeyMatcher:
		if err := validateRules(t.Type(), t.Rules, path); err != nil {
			return err
		}
		if obj, ok := t.Value.(map[string]any); ok {
			for k := range obj {
				if err := keyMatches(k, t.Rules, path); err != nil {
					return err
				}
			}
		}
		return validateValue(t.Value, path)
	case EachValueMatcher:
		if err := validateRules(t.Type(), t.Rules, path); err != nil {
			return err
		}
		return validateValue(t.Value, path)
	case NullMatcher, BooleanMatcher:
	}
	return nil
}

func validateRules(kind string, rules []Matcher, path string) error {
	if len(rules) == 0 {
		return errors.Errorf("%s: %s needs at least one rule", path, kind)
	}
	for _, r := range rules {
		if r == nil {
			return errors.Errorf("%s: %s rule is nil", path, kind)
		}
		if err := validateMatcher(r, path); err != nil {
			return err
		}
	}
	return nil
}

// keyMatches checks an example key against the regex rules of an eachKey matcher.
func keyMatches(key string, rules []Matcher, path string) error {
	for _, r := range rules {
		rm, ok := r.(RegexMatcher)
		if !ok {
			continue
		}
		if !regexp.MustCompile(rm.Pattern).MatchString(key) {
			return errors.Errorf("%s: example key %q does not match regex %q", path, key, rm.Pattern)
		}
	}
	return nil
}
