package match

import (
	"github.com/pkg/errors"
)

// Generate replaces every matcher in v with its example, synthesizing one from
// the matcher's generator when no example was given.
func Generate(v any) (any, error) {
	return generateValue(v, "$")
}

func generateValue(v any, path string) (any, error) {
	if m, ok := v.(Matcher); ok {
		if err := validateMatcher(m, path); err != nil {
			return nil, err
		}
		return generateMatcher(m, path, generateValue)
	}
	return walk(v, path, generateValue)
}

// generateMatcher returns the example for m. Nested values are produced by next,
// which lets rule extraction reuse the same expansion.
func generateMatcher(m Matcher, path string, next visitor) (any, error) {
	switch t := m.(type) {
	case EqualityMatcher:
		return next(t.Value, path)
	case TypeMatcher:
		if t.Value != nil || t.Generator == nil {
			return next(t.Value, path)
		}
	case ArrayContainsMatcher:
		out := make([]any, len(t.Variants))
		for i, v := range t.Variants {
			item, err := generateValue(v, indexPath(path, i))
			if err != nil {
				return nil, err
			}
			out[i] = item
		}
		return out, nil
	case EachKeyMatcher:
		return next(t.Value, path)
	case EachValueMatcher:
		return next(t.Value, path)
	case ProviderStateMatcher:
		return next(t.Example, path)
	case EachLikeMatcher:
		item, err := next(t.Template, templatePath(path))
		if err != nil {
			return nil, err
		}
		out := make([]any, t.count())
		for i := range out {
			out[i] = deepCopy(item)
		}
		return out, nil
	case NullMatcher:
		return nil, nil
	case IncludeMatcher:
		return t.Example, nil
	case RegexMatcher:
		if t.Example != nil {
			return *t.Example, nil
		}
	case UUIDMatcher:
		if t.Example != nil {
			return *t.Example, nil
		}
	case IntegerMatcher:
		if t.Example != nil {
			return *t.Example, nil
		}
	case DecimalMatcher:
		if t.Example != nil {
			return *t.Example, nil
		}
	case NumberMatcher:
		if t.Example != nil {
			return t.Example, nil
		}
	case DateTimeMatcher:
		if t.Example != nil {
			return *t.Example, nil
		}
	case BooleanMatcher:
		if t.Example != nil {
			return *t.Example, nil
		}
	default:
		return nil, errors.Wrapf(ErrUnsupportedType, "%s: matcher %T", path, m)
	}

	g, ok := generatorOf(m)
	if !ok {
		return nil, errors.Errorf("%s: %s matcher has neither example nor generator", path, m.Type())
	}
	v, err := g.Generate()
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return v, nil
}

// generatorOf returns the generator serialized with m, if any.
func generatorOf(m Matcher) (Generator, bool) {
	switch t := m.(type) {
	case TypeMatcher:
		if t.Generator != nil && (t.Value == nil || !t.Generator.replacesExample()) {
			return *t.Generator, true
		}
	case RegexMatcher:
		if t.Generator != nil && (t.Example == nil || !t.Generator.replacesExample()) {
			return *t.Generator, true
		}
		if t.Example == nil {
			return RegexGenerator(t.Pattern), true
		}
	case UUIDMatcher:
		if t.Example == nil {
			return UUIDGenerator(t.formatOrDefault()), true
		}
	case IntegerMatcher:
		if t.Example == nil {
			g := Generator{Type: GenRandomInt}
			if t.Min != nil || t.Max != nil {
				g.Params = map[string]any{}
			}
			if t.Min != nil {
				g.Params["min"] = *t.Min
			}
			if t.Max != nil {
				g.Params["max"] = *t.Max
			}
			return g, true
		}
	case DecimalMatcher:
		if t.Example == nil {
			g := Generator{Type: GenRandomDecimal}
			if t.Digits != nil {
				g.Params = map[string]any{"digits": *t.Digits}
			}
			return g, true
		}
	case NumberMatcher:
		if t.Example == nil {
			return Generator{Type: GenRandomInt}, true
		}
	case DateTimeMatcher:
		if t.Example == nil {
			return DateTimeGenerator(t.Kind, t.Format), true
		}
	case BooleanMatcher:
		if t.Example == nil {
			return RandomBoolean(), true
		}
	case ProviderStateMatcher:
		return ProviderStateGenerator(t.Expression), true
	}
	return Generator{}, false
}

func (m UUIDMatcher) formatOrDefault() UUIDFormat {
	if m.Format == "" {
		return UUIDLowerCase
	}
	return m.Format
}
