package match

// Patterns of the common string formats. Go regular expressions have no
// lookaround, so each is written as a plain alternation anchored at both ends.
const (
	IPAddressPattern   = `^(\d{1,3}\.)+\d{1,3}$`
	HexadecimalPattern = `^[0-9a-fA-F]+$`
	TimestampPattern   = `^\d{4}-(0[1-9]|1[0-2])-(0[1-9]|[12]\d|3[01])T([01]\d|2[0-3]):[0-5]\d:[0-5]\d(\.\d+)?(Z|[+-]([01]\d|2[0-3]):?[0-5]\d)?$`
	IPv6AddressPattern = `^(` +
		`([0-9a-fA-F]{1,4}:){7}[0-9a-fA-F]{1,4}|` +
		`([0-9a-fA-F]{1,4}:){1,7}:|` +
		`([0-9a-fA-F]{1,4}:){1,6}:[0-9a-fA-F]{1,4}|` +
		`([0-9a-fA-F]{1,4}:){1,5}(:[0-9a-fA-F]{1,4}){1,2}|` +
		`([0-9a-fA-F]{1,4}:){1,4}(:[0-9a-fA-F]{1,4}){1,3}|` +
		`([0-9a-fA-F]{1,4}:){1,3}(:[0-9a-fA-F]{1,4}){1,4}|` +
		`([0-9a-fA-F]{1,4}:){1,2}(:[0-9a-fA-F]{1,4}){1,5}|` +
		`[0-9a-fA-F]{1,4}:(:[0-9a-fA-F]{1,4}){1,6}|` +
		`:((:[0-9a-fA-F]{1,4}){1,7}|:)|` +
		`::(ffff(:0{1,4})?:)?((25[0-5]|(2[0-4]|1?\d)?\d)\.){3}(25[0-5]|(2[0-4]|1?\d)?\d)|` +
		`([0-9a-fA-F]{1,4}:){1,4}:((25[0-5]|(2[0-4]|1?\d)?\d)\.){3}(25[0-5]|(2[0-4]|1?\d)?\d)` +
		`)$`
)

// IPAddress matches a dotted IPv4 address.
func IPAddress(example ...string) RegexMatcher {
	return formatted(IPAddressPattern, "127.0.0.1", example)
}

func IPv6Address(example ...string) RegexMatcher {
	return formatted(IPv6AddressPattern, "::ffff:192.0.2.128", example)
}

// Timestamp matches an ISO 8601 timestamp such as 2000-02-01T12:30:00Z.
func Timestamp(example ...string) RegexMatcher {
	return formatted(TimestampPattern, "2000-02-01T12:30:00", example)
}

func Hexadecimal(example ...string) RegexMatcher {
	return formatted(HexadecimalPattern, "3F", example)
}

// AnyHexadecimal matches a hexadecimal string and generates one of digits digits.
func AnyHexadecimal(digits int) RegexMatcher {
	g := RandomHexadecimal(digits)
	return RegexMatcher{Pattern: HexadecimalPattern, Generator: &g}
}

func formatted(pattern, fallback string, example []string) RegexMatcher {
	if len(example) > 0 {
		fallback = example[0]
	}
	return Regex(pattern, fallback)
}
