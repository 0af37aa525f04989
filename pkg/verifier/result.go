package verifier

import (
	"strings"

	"github.com/form3tech-oss/pact-kit/pkg/mismatch"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// InteractionResult is the outcome of verifying one interaction.
type InteractionResult struct {
	Description string
	Consumer    string
	Passed      bool
	Pending     bool
	Mismatches  []mismatch.Mismatch
	Message     string
}

type Result struct {
	ExitCode     int
	Interactions []InteractionResult
	// Logs is the engine output without its Ruby backtraces.
	Logs string
}

// Passed reports whether the engine succeeded and every interaction passed.
// Pending interactions do not fail a verification.
func (r *Result) Passed() bool {
	if r == nil || r.ExitCode != 0 {
		return false
	}
	for _, i := range r.Interactions {
		if !i.Passed && !i.Pending {
			return false
		}
	}
	return true
}

// Failed returns the interactions that did not pass.
func (r *Result) Failed() []InteractionResult {
	var out []InteractionResult
	for _, i := range r.Interactions {
		if !i.Passed && !i.Pending {
			out = append(out, i)
		}
	}
	return out
}

const (
	headerPrefix   = "Verifying a pact between "
	responseSuffix = " returns a response which"
)

// parseResults reads the engine's RSpec JSON report. The engine reports one
// example per expectation (status, headers, body), grouped here by the
// interaction they belong to.
func parseResults(data []byte, provider string) ([]InteractionResult, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("verifier results are not valid JSON")
	}

	var (
		out   []InteractionResult
		index = map[string]int{}
	)
	gjson.GetBytes(data, "examples").ForEach(func(_, ex gjson.Result) bool {
		own := ex.Get("description").String()
		context := strings.TrimSpace(strings.TrimSuffix(ex.Get("full_description").String(), own))
		consumer, description := splitContext(context, provider)

		key := consumer + "\x00" + description
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, InteractionResult{Description: description, Consumer: consumer, Passed: true})
		}

		r := &out[i]
		switch ex.Get("status").String() {
		case "passed":
		case "pending":
			r.Pending = true
			r.Passed = false
		default:
			r.Passed = false
			msg := strings.TrimSpace(ex.Get("exception.message").String())
			r.Message = strings.TrimSpace(r.Message + "\n" + msg)
			r.Mismatches = append(r.Mismatches, mismatch.GenericMismatch{Fields: map[string]any{
				"type":        "VerificationFailure",
				"expectation": own,
				"mismatch":    msg,
			}})
		}
		return true
	})
	return out, nil
}

// splitContext takes "Verifying a pact between <consumer> and <provider>
// <interaction> returns a response which" apart.
func splitContext(context, provider string) (consumer, description string) {
	description = strings.TrimSuffix(context, responseSuffix)
	if !strings.HasPrefix(description, headerPrefix) {
		return "", description
	}
	rest := strings.TrimPrefix(description, headerPrefix)
	sep := " and " + provider
	at := strings.Index(rest, sep)
	if at < 0 {
		return "", rest
	}
	return rest[:at], strings.TrimSpace(rest[at+len(sep):])
}
