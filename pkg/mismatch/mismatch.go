// Package mismatch describes the ways an actual interaction can fail to conform
// to the expected one, as reported by a mock server or verifier.
package mismatch

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	TypeMissingRequest   = "MissingRequest"
	TypeRequestNotFound  = "RequestNotFound"
	TypeRequestMismatch  = "RequestMismatch"
	TypeMethodMismatch   = "MethodMismatch"
	TypePathMismatch     = "PathMismatch"
	TypeStatusMismatch   = "StatusMismatch"
	TypeQueryMismatch    = "QueryMismatch"
	TypeHeaderMismatch   = "HeaderMismatch"
	TypeBodyTypeMismatch = "BodyTypeMismatch"
	TypeBodyMismatch     = "BodyMismatch"
	TypeMetadataMismatch = "MetadataMismatch"
)

// Mismatch is one way an interaction failed to match.
type Mismatch interface {
	Type() string
	String() string
	isMismatch()
}

// MissingRequest is an expected request the mock server never received.
type MissingRequest struct {
	Method  string
	Path    string
	Request map[string]any
}

// RequestNotFound is a received request that no interaction expected.
type RequestNotFound struct {
	Method  string
	Path    string
	Request map[string]any
}

// RequestMismatch is a received request that partially matched an interaction.
// It is the only variant holding other mismatches.
type RequestMismatch struct {
	Method     string
	Path       string
	Mismatches []Mismatch
}

type MethodMismatch struct {
	Expected string
	Actual   string
}

type PathMismatch struct {
	Expected string
	Actual   string
	Mismatch string
}

type StatusMismatch struct {
	Expected int
	Actual   int
	Mismatch string
}

type QueryMismatch struct {
	Parameter string
	Expected  string
	Actual    string
	Mismatch  string
}

type HeaderMismatch struct {
	Key      string
	Expected string
	Actual   string
	Mismatch string
}

type BodyTypeMismatch struct {
	Expected     string
	Actual       string
	Mismatch     string
	ExpectedBody any
	ActualBody   any
}

type BodyMismatch struct {
	Path     string
	Expected any
	Actual   any
	Mismatch string
}

type MetadataMismatch struct {
	Key      string
	Expected string
	Actual   string
	Mismatch string
}

// GenericMismatch carries a record whose type is not known to this package.
type GenericMismatch struct {
	Fields map[string]any
}

func (MissingRequest) Type() string   { return TypeMissingRequest }
func (RequestNotFound) Type() string  { return TypeRequestNotFound }
func (RequestMismatch) Type() string  { return TypeRequestMismatch }
func (MethodMismatch) Type() string   { return TypeMethodMismatch }
func (PathMismatch) Type() string     { return TypePathMismatch }
func (StatusMismatch) Type() string   { return TypeStatusMismatch }
func (QueryMismatch) Type() string    { return TypeQueryMismatch }
func (HeaderMismatch) Type() string   { return TypeHeaderMismatch }
func (BodyTypeMismatch) Type() string { return TypeBodyTypeMismatch }
func (BodyMismatch) Type() string     { return TypeBodyMismatch }
func (MetadataMismatch) Type() string { return TypeMetadataMismatch }

func (m GenericMismatch) Type() string {
	if t, ok := m.Fields["type"].(string); ok && t != "" {
		return t
	}
	return "UnknownMismatchType"
}

func (MissingRequest) isMismatch()   {}
func (RequestNotFound) isMismatch()  {}
func (RequestMismatch) isMismatch()  {}
func (MethodMismatch) isMismatch()   {}
func (PathMismatch) isMismatch()     {}
func (StatusMismatch) isMismatch()   {}
func (QueryMismatch) isMismatch()    {}
func (HeaderMismatch) isMismatch()   {}
func (BodyTypeMismatch) isMismatch() {}
func (BodyMismatch) isMismatch()     {}
func (MetadataMismatch) isMismatch() {}
func (GenericMismatch) isMismatch()  {}

func (m MissingRequest) String() string {
	return fmt.Sprintf("Missing request: %s %s: %s", m.Method, m.Path, render(withoutKeys(m.Request, "method", "path")))
}

func (m RequestNotFound) String() string {
	return fmt.Sprintf("Request not found: %s %s: %s", m.Method, m.Path, render(withoutKeys(m.Request, "method", "path")))
}

func (m RequestMismatch) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Request mismatch: %s %s", m.Method, m.Path)
	for i, sub := range m.Mismatches {
		fmt.Fprintf(&b, "\n    (%d) %s", i+1, indent(sub.String()))
	}
	return b.String()
}

func (m MethodMismatch) String() string {
	return fmt.Sprintf("Method mismatch: expected %s, got %s", m.Expected, m.Actual)
}

func (m PathMismatch) String() string {
	return fmt.Sprintf("Path mismatch: expected %s, got %s (%s)", m.Expected, m.Actual, m.Mismatch)
}

func (m StatusMismatch) String() string {
	return fmt.Sprintf("Status mismatch: expected %d, got %d (%s)", m.Expected, m.Actual, m.Mismatch)
}

func (m QueryMismatch) String() string {
	return fmt.Sprintf("Query mismatch: %s: expected %s, got %s (%s)", m.Parameter, m.Expected, m.Actual, m.Mismatch)
}

func (m HeaderMismatch) String() string {
	return fmt.Sprintf("Header mismatch: %s: expected %s, got %s (%s)", m.Key, m.Expected, m.Actual, m.Mismatch)
}

func (m BodyTypeMismatch) String() string {
	return fmt.Sprintf("Body type mismatch: expected %s, got %s (%s)", m.Expected, m.Actual, m.Mismatch)
}

func (m BodyMismatch) String() string {
	return fmt.Sprintf("Body mismatch: %s: %s", m.Path, m.Mismatch)
}

func (m MetadataMismatch) String() string {
	return fmt.Sprintf("Metadata mismatch: %s: expected %s, got %s (%s)", m.Key, m.Expected, m.Actual, m.Mismatch)
}

func (m GenericMismatch) String() string {
	return fmt.Sprintf("Generic mismatch (%s): %s", m.Type(), render(withoutKeys(m.Fields, "type")))
}

func withoutKeys(in map[string]any, keys ...string) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// render writes v as compact JSON. Map keys are sorted, which keeps the output stable.
func render(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func indent(s string) string {
	return strings.ReplaceAll(s, "\n", "\n    ")
}
