package mismatch

import (
	"fmt"
	"strings"
)

// Error reports a set of mismatches as a single error, for callers that want
// to fail on them.
type Error struct {
	Mismatches []Mismatch
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d mismatch(es):", len(e.Mismatches))
	for i, m := range e.Mismatches {
		fmt.Fprintf(&b, "\n  (%d) %s", i+1, strings.ReplaceAll(m.String(), "\n", "\n  "))
	}
	return b.String()
}

// Summary renders mismatches one per line, numbered from 1.
func Summary(mismatches []Mismatch) string {
	lines := make([]string, len(mismatches))
	for i, m := range mismatches {
		lines[i] = fmt.Sprintf("%d) %s", i+1, m.String())
	}
	return strings.Join(lines, "\n")
}
