package match

// Matcher describes an acceptable class of values in place of a literal value.
// The set of matchers is closed: every implementation lives in this package.
type Matcher interface {
	// Type is the tag written as "pact:matcher:type".
	Type() string
	isMatcher()
}

type DateTimeKind string

const (
	KindDate     DateTimeKind = "date"
	KindTime     DateTimeKind = "time"
	KindDateTime DateTimeKind = "datetime"
)

const (
	DefaultDateFormat     = "yyyy-MM-dd"
	DefaultTimeFormat     = "HH:mm:ss"
	DefaultDateTimeFormat = "yyyy-MM-dd'T'HH:mm:ss"
)

// EqualityMatcher requires the actual value to equal Value.
type EqualityMatcher struct {
	Value any
}

// TypeMatcher requires the actual value to have the same shape as Value.
// Generator produces the example when Value is nil.
type TypeMatcher struct {
	Value     any
	Generator *Generator
}

// RegexMatcher matches strings against Pattern. Without an example the value
// comes from Generator, or from the pattern itself when Generator is nil.
type RegexMatcher struct {
	Pattern   string
	Example   *string
	Generator *Generator
}

type IncludeMatcher struct {
	Substring string
	Example   string
}

// IntegerMatcher matches any integer. Min and Max bound the generated value
// when no example is given.
type IntegerMatcher struct {
	Example *int64
	Min     *int64
	Max     *int64
}

// DecimalMatcher matches any number with a fractional part. Digits sizes the
// generated value when no example is given.
type DecimalMatcher struct {
	Example *float64
	Digits  *int
}

type NumberMatcher struct {
	Example any
}

// DateTimeMatcher matches a date, time or timestamp string in Format, which uses
// the SimpleDateFormat pattern letters (yyyy-MM-dd'T'HH:mm:ss).
type DateTimeMatcher struct {
	Kind    DateTimeKind
	Format  string
	Example *string
}

// EachLikeMatcher matches an array whose every element has the shape of Template.
// Min and Max are passed to the engine and are not enforced locally. Count is
// the number of generated elements; zero means Min, or one when Min is unset.
type EachLikeMatcher struct {
	Template any
	Min      *int
	Max      *int
	Count    int
}

type NullMatcher struct{}

type BooleanMatcher struct {
	Example *bool
}

type UUIDFormat string

const (
	UUIDSimple      UUIDFormat = "simple"
	UUIDLowerCase   UUIDFormat = "lower-case-hyphenated"
	UUIDUpperCase   UUIDFormat = "upper-case-hyphenated"
	UUIDURN         UUIDFormat = "URN"
	uuidHexGroupsLC            = `[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`
)

var uuidPatterns = map[UUIDFormat]string{
	UUIDSimple:    `^[0-9a-f]{32}$`,
	UUIDLowerCase: `^` + uuidHexGroupsLC + `$`,
	UUIDUpperCase: `^[0-9A-F]{8}-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{12}$`,
	UUIDURN:       `^urn:uuid:` + uuidHexGroupsLC + `$`,
}

// UUIDMatcher matches a UUID string. It is written as a regex rule.
type UUIDMatcher struct {
	Format  UUIDFormat
	Example *string
}

// Pattern returns the regular expression the matcher is serialized with.
func (m UUIDMatcher) Pattern() string {
	if p, ok := uuidPatterns[m.Format]; ok {
		return p
	}
	return uuidPatterns[UUIDLowerCase]
}

// ProviderStateMatcher matches by type and asks the verifier to replace the
// example with Expression evaluated against the provider state parameters.
type ProviderStateMatcher struct {
	Expression string
	Example    any
}

func (EqualityMatcher) Type() string      { return "equality" }
func (TypeMatcher) Type() string          { return "type" }
func (RegexMatcher) Type() string         { return "regex" }
func (IncludeMatcher) Type() string       { return "include" }
func (IntegerMatcher) Type() string       { return "integer" }
func (DecimalMatcher) Type() string       { return "decimal" }
func (NumberMatcher) Type() string        { return "number" }
func (m DateTimeMatcher) Type() string    { return string(m.Kind) }
func (EachLikeMatcher) Type() string      { return "type" }
func (NullMatcher) Type() string          { return "null" }
func (BooleanMatcher) Type() string       { return "boolean" }
func (UUIDMatcher) Type() string          { return "regex" }
func (ProviderStateMatcher) Type() string { return "type" }

func (EqualityMatcher) isMatcher()      {}
func (TypeMatcher) isMatcher()          {}
func (RegexMatcher) isMatcher()         {}
func (IncludeMatcher) isMatcher()       {}
func (IntegerMatcher) isMatcher()       {}
func (DecimalMatcher) isMatcher()       {}
func (NumberMatcher) isMatcher()        {}
func (DateTimeMatcher) isMatcher()      {}
func (EachLikeMatcher) isMatcher()      {}
func (NullMatcher) isMatcher()          {}
func (BooleanMatcher) isMatcher()       {}
func (UUIDMatcher) isMatcher()          {}
func (ProviderStateMatcher) isMatcher() {}

func Equality(value any) EqualityMatcher {
	return EqualityMatcher{Value: value}
}

// Like matches any value of the same type as example.
func Like(example any) TypeMatcher {
	return TypeMatcher{Value: example}
}

func Regex(pattern, example string) RegexMatcher {
	return RegexMatcher{Pattern: pattern, Example: &example}
}

// RegexGenerated matches pattern and generates the example from it.
func RegexGenerated(pattern string) RegexMatcher {
	return RegexMatcher{Pattern: pattern}
}

func String(example string) TypeMatcher {
	return TypeMatcher{Value: example}
}

// AnyString matches any string and generates one of size characters.
func AnyString(size int) TypeMatcher {
	g := RandomString(size)
	return TypeMatcher{Generator: &g}
}

// MockServerURL matches pattern and has the verifier rewrite example, a URL of
// the consumer's mock server, to the provider's base URL.
func MockServerURL(pattern, example string) RegexMatcher {
	g := MockServerURLGenerator(pattern, example)
	return RegexMatcher{Pattern: pattern, Example: &example, Generator: &g}
}

// Includes matches strings containing substring. The example defaults to the substring.
func Includes(substring string, example ...string) IncludeMatcher {
	m := IncludeMatcher{Substring: substring, Example: substring}
	if len(example) > 0 {
		m.Example = example[0]
	}
	return m
}

func Integer(example int64) IntegerMatcher {
	return IntegerMatcher{Example: &example}
}

func AnyInteger() IntegerMatcher {
	return IntegerMatcher{}
}

func IntegerBetween(min, max int64) IntegerMatcher {
	return IntegerMatcher{Min: &min, Max: &max}
}

func Decimal(example float64) DecimalMatcher {
	return DecimalMatcher{Example: &example}
}

func AnyDecimal(digits int) DecimalMatcher {
	return DecimalMatcher{Digits: &digits}
}

func Number(example any) NumberMatcher {
	return NumberMatcher{Example: example}
}

func Date(format string, example ...string) DateTimeMatcher {
	return newDateTime(KindDate, format, DefaultDateFormat, example)
}

func Time(format string, example ...string) DateTimeMatcher {
	return newDateTime(KindTime, format, DefaultTimeFormat, example)
}

func DateTime(format string, example ...string) DateTimeMatcher {
	return newDateTime(KindDateTime, format, DefaultDateTimeFormat, example)
}

func newDateTime(kind DateTimeKind, format, fallback string, example []string) DateTimeMatcher {
	if format == "" {
		format = fallback
	}
	m := DateTimeMatcher{Kind: kind, Format: format}
	if len(example) > 0 {
		m.Example = &example[0]
	}
	return m
}

// EachLike matches an array of at least min elements shaped like template.
func EachLike(template any, min int) EachLikeMatcher {
	return EachLikeMatcher{Template: template, Min: &min}
}

func EachLikeBetween(template any, min, max int) EachLikeMatcher {
	return EachLikeMatcher{Template: template, Min: &min, Max: &max}
}

// WithCount sets how many elements the generated example holds.
func (m EachLikeMatcher) WithCount(count int) EachLikeMatcher {
	m.Count = count
	return m
}

func (m EachLikeMatcher) count() int {
	if m.Count > 0 {
		return m.Count
	}
	if m.Min != nil && *m.Min > 1 {
		return *m.Min
	}
	return 1
}

func Null() NullMatcher {
	return NullMatcher{}
}

func Boolean(example bool) BooleanMatcher {
	return BooleanMatcher{Example: &example}
}

func AnyBoolean() BooleanMatcher {
	return BooleanMatcher{}
}

// UUID matches a lower-case hyphenated UUID, generating one when no example is given.
func UUID(example ...string) UUIDMatcher {
	m := UUIDMatcher{Format: UUIDLowerCase}
	if len(example) > 0 {
		m.Example = &example[0]
	}
	return m
}

func (m UUIDMatcher) WithFormat(format UUIDFormat) UUIDMatcher {
	m.Format = format
	return m
}

// FromProviderState matches by type and has the verifier derive the value from
// expression, e.g. "/users/${id}".
func FromProviderState(expression string, example any) ProviderStateMatcher {
	return ProviderStateMatcher{Expression: expression, Example: example}
}
