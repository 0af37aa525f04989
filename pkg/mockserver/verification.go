package mockserver

import (
	"regexp"
	"strings"

	"github.com/form3tech-oss/pact-kit/pkg/mismatch"
)

var requestLine = regexp.MustCompile(`^([A-Za-z]+)\s+(\S+)(?:\s+\((.*)\))?$`)

// parseVerificationText reads the plain text report of a failed verification:
//
//	Missing requests:
//		GET /users/1
//
//	Unexpected requests:
//		POST /users
//
// Text it cannot read becomes a single GenericMismatch.
func parseVerificationText(text string) []mismatch.Mismatch {
	var (
		out     []mismatch.Mismatch
		section string
	)
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		switch line {
		case "Missing requests:", "Unexpected requests:", "Incorrect requests:":
			section = line
			continue
		case "":
			continue
		}
		if section == "" || !strings.HasPrefix(raw, "\t") && !strings.HasPrefix(raw, " ") {
			section = ""
			continue
		}
		m := requestLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		method, path, detail := strings.ToUpper(m[1]), m[2], m[3]
		switch section {
		case "Missing requests:":
			out = append(out, mismatch.MissingRequest{Method: method, Path: path})
		case "Unexpected requests:":
			out = append(out, mismatch.RequestNotFound{Method: method, Path: path})
		case "Incorrect requests:":
			rm := mismatch.RequestMismatch{Method: method, Path: path}
			if detail != "" {
				rm.Mismatches = []mismatch.Mismatch{
					mismatch.GenericMismatch{Fields: map[string]any{"mismatch": detail}},
				}
			}
			out = append(out, rm)
		}
	}
	if len(out) == 0 && strings.TrimSpace(text) != "" {
		out = append(out, mismatch.GenericMismatch{Fields: map[string]any{"mismatch": strings.TrimSpace(text)}})
	}
	return out
}
