package match

import (
	"math"
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lucasjones/reggen"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	GenRandomInt         = "RandomInt"
	GenRandomDecimal     = "RandomDecimal"
	GenRandomHexadecimal = "RandomHexadecimal"
	GenRandomString      = "RandomString"
	GenRegex             = "Regex"
	GenUUID              = "Uuid"
	GenDate              = "Date"
	GenTime              = "Time"
	GenDateTime          = "DateTime"
	GenRandomBoolean     = "RandomBoolean"
	GenProviderState     = "ProviderState"
	GenMockServerURL     = "MockServerURL"
)

const regexRepeatLimit = 10

// Generator describes how an example value is produced when none is supplied.
// It is only ever serialized next to the matcher it belongs to.
type Generator struct {
	Type   string
	Params map[string]any
}

func RandomInt(min, max int64) Generator {
	return Generator{Type: GenRandomInt, Params: map[string]any{"min": min, "max": max}}
}

func RandomDecimal(digits int) Generator {
	return Generator{Type: GenRandomDecimal, Params: map[string]any{"digits": digits}}
}

func RandomHexadecimal(digits int) Generator {
	return Generator{Type: GenRandomHexadecimal, Params: map[string]any{"digits": digits}}
}

func RandomString(size int) Generator {
	return Generator{Type: GenRandomString, Params: map[string]any{"size": size}}
}

func RegexGenerator(pattern string) Generator {
	return Generator{Type: GenRegex, Params: map[string]any{"regex": pattern}}
}

func UUIDGenerator(format UUIDFormat) Generator {
	return Generator{Type: GenUUID, Params: map[string]any{"format": string(format)}}
}

// DateTimeGenerator returns the Date, Time or DateTime generator for kind.
func DateTimeGenerator(kind DateTimeKind, format string) Generator {
	t := GenDateTime
	switch kind {
	case KindDate:
		t = GenDate
	case KindTime:
		t = GenTime
	}
	return Generator{Type: t, Params: map[string]any{"format": format}}
}

func RandomBoolean() Generator {
	return Generator{Type: GenRandomBoolean}
}

func ProviderStateGenerator(expression string) Generator {
	return Generator{Type: GenProviderState, Params: map[string]any{"expression": expression, "dataType": "RAW"}}
}

func MockServerURLGenerator(pattern, example string) Generator {
	return Generator{Type: GenMockServerURL, Params: map[string]any{"regex": pattern, "example": example}}
}

// IntegrationJSON returns the generator fields merged into a matcher's integration form.
func (g Generator) IntegrationJSON() map[string]any {
	out := map[string]any{"pact:generator:type": g.Type}
	for k, v := range g.Params {
		out[k] = v
	}
	return out
}

// RuleJSON returns the generator as written in a pact file's generators section.
func (g Generator) RuleJSON() map[string]any {
	out := map[string]any{"type": g.Type}
	for k, v := range g.Params {
		out[k] = v
	}
	return out
}

// GeneratorFromRule parses the pact file form produced by RuleJSON.
func GeneratorFromRule(rule map[string]any) (Generator, error) {
	t, ok := rule["type"].(string)
	if !ok || t == "" {
		return Generator{}, errors.New("generator without a type")
	}
	g := Generator{Type: t}
	for k, v := range rule {
		if k == "type" {
			continue
		}
		if g.Params == nil {
			g.Params = map[string]any{}
		}
		g.Params[k] = v
	}
	return g, nil
}

// replacesExample reports whether the generator stands in for a missing example.
// Provider state and mock server URL generators are resolved by the verifier
// and always sit next to one.
func (g Generator) replacesExample() bool {
	return g.Type != GenProviderState && g.Type != GenMockServerURL
}

// Generate produces a value for the generator.
func (g Generator) Generate() (any, error) {
	switch g.Type {
	case GenRandomInt:
		min, max, err := intBounds(g.Params)
		if err != nil {
			return nil, err
		}
		return random.between(min, max), nil
	case GenRandomDecimal:
		return randomDecimal(paramInt(g.Params, "digits", 6))
	case GenRandomHexadecimal:
		return random.stringOf("0123456789abcdef", paramInt(g.Params, "digits", 10)), nil
	case GenRandomString:
		return random.stringOf("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789", paramInt(g.Params, "size", 10)), nil
	case GenRegex:
		pattern, _ := g.Params["regex"].(string)
		return generateRegex(pattern)
	case GenUUID:
		format, _ := g.Params["format"].(string)
		return formatUUID(uuid.New(), UUIDFormat(format)), nil
	case GenDate, GenTime, GenDateTime:
		format, _ := g.Params["format"].(string)
		if format == "" {
			format = map[string]string{GenDate: DefaultDateFormat, GenTime: DefaultTimeFormat}[g.Type]
		}
		if format == "" {
			format = DefaultDateTimeFormat
		}
		layout, err := goLayout(format)
		if err != nil {
			return nil, err
		}
		return time.Now().UTC().Format(layout), nil
	case GenRandomBoolean:
		return random.int63n(2) == 1, nil
	case GenMockServerURL:
		example, _ := g.Params["example"].(string)
		return example, nil
	case GenProviderState:
		return nil, errors.Errorf("%s generator needs provider state parameters and only runs during verification", g.Type)
	}
	return nil, errors.Errorf("unknown generator type %q", g.Type)
}

// intBounds reads the RandomInt range. A missing bound sits ten away from the
// other one, saturating at the int64 limits.
func intBounds(params map[string]any) (int64, int64, error) {
	min, hasMin := toInt(params["min"])
	max, hasMax := toInt(params["max"])
	switch {
	case !hasMin && !hasMax:
		return 0, 10, nil
	case !hasMax:
		if max = min + 10; max < min {
			max = math.MaxInt64
		}
	case !hasMin:
		if min = max - 10; min > max {
			min = math.MinInt64
		}
	}
	if max < min {
		return 0, 0, errors.Errorf("RandomInt: min %d is greater than max %d", min, max)
	}
	return min, max, nil
}

func generateRegex(pattern string) (string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", errors.Wrapf(err, "compile regex %q", pattern)
	}
	g, err := reggen.NewGenerator(pattern)
	if err != nil {
		return "", errors.Wrapf(err, "regex generator for %q", pattern)
	}
	for i := 0; i < 10; i++ {
		s := g.Generate(regexRepeatLimit)
		if re.MatchString(s) {
			return s, nil
		}
	}
	return "", errors.Errorf("unable to generate a value matching %q", pattern)
}

func randomDecimal(digits int) (float64, error) {
	if digits < 2 {
		digits = 2
	}
	var b strings.Builder
	b.WriteByte(byte('1' + random.int63n(9)))
	split := 1 + int(random.int63n(int64(digits-1)))
	for i := 1; i < digits; i++ {
		if i == split {
			b.WriteByte('.')
		}
		if i == digits-1 {
			b.WriteByte(byte('1' + random.int63n(9)))
			continue
		}
		b.WriteByte(byte('0' + random.int63n(10)))
	}
	d, err := decimal.NewFromString(b.String())
	if err != nil {
		return 0, errors.Wrap(err, "random decimal")
	}
	return d.InexactFloat64(), nil
}

func formatUUID(id uuid.UUID, format UUIDFormat) string {
	switch format {
	case UUIDSimple:
		return strings.ReplaceAll(id.String(), "-", "")
	case UUIDUpperCase:
		return strings.ToUpper(id.String())
	case UUIDURN:
		return id.URN()
	}
	return id.String()
}

func paramInt(params map[string]any, key string, fallback int) int {
	if v, ok := toInt(params[key]); ok && v > 0 {
		return int(v)
	}
	return fallback
}

type lockedRand struct {
	mu  sync.Mutex
	src *rand.Rand
}

var random = &lockedRand{src: rand.New(rand.NewSource(time.Now().UnixNano()))}

func (r *lockedRand) int63n(n int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.src.Int63n(n)
}

// between returns a value in [lo, hi], which may span the whole int64 range.
func (r *lockedRand) between(lo, hi int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	span := uint64(hi) - uint64(lo)
	if span == math.MaxUint64 {
		return int64(r.src.Uint64())
	}
	n := span + 1
	var v uint64
	if n <= math.MaxInt64 {
		v = uint64(r.src.Int63n(int64(n)))
	} else {
		for v = r.src.Uint64(); v >= n; v = r.src.Uint64() {
		}
	}
	return int64(uint64(lo) + v)
}

func (r *lockedRand) stringOf(alphabet string, size int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := make([]byte, size)
	for i := range b {
		b[i] = alphabet[r.src.Intn(len(alphabet))]
	}
	return string(b)
}
