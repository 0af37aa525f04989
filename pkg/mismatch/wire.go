package mismatch

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// FromWire converts an untyped mismatch record into its typed variant. The
// "type" discriminator is matched ignoring case and punctuation, so both
// "HeaderMismatch" and "header-mismatch" are accepted. Unknown or missing
// types become a GenericMismatch. The record is not modified.
func FromWire(record map[string]any) Mismatch {
	tag, _ := record["type"].(string)
	switch normalise(tag) {
	case "missingrequest":
		return MissingRequest{Method: str(record, "method"), Path: str(record, "path"), Request: object(record, "request")}
	case "requestnotfound":
		return RequestNotFound{Method: str(record, "method"), Path: str(record, "path"), Request: object(record, "request")}
	case "requestmismatch":
		m := RequestMismatch{Method: str(record, "method"), Path: str(record, "path")}
		if items, ok := record["mismatches"].([]any); ok {
			for _, item := range items {
				m.Mismatches = append(m.Mismatches, fromAny(item))
			}
		}
		return m
	case "methodmismatch":
		return MethodMismatch{Expected: str(record, "expected"), Actual: str(record, "actual")}
	case "pathmismatch":
		return PathMismatch{Expected: str(record, "expected"), Actual: str(record, "actual"), Mismatch: str(record, "mismatch")}
	case "statusmismatch":
		return StatusMismatch{Expected: num(record, "expected"), Actual: num(record, "actual"), Mismatch: str(record, "mismatch")}
	case "querymismatch":
		return QueryMismatch{Parameter: str(record, "parameter"), Expected: str(record, "expected"), Actual: str(record, "actual"), Mismatch: str(record, "mismatch")}
	case "headermismatch":
		return HeaderMismatch{Key: str(record, "key"), Expected: str(record, "expected"), Actual: str(record, "actual"), Mismatch: str(record, "mismatch")}
	case "bodytypemismatch":
		return BodyTypeMismatch{
			Expected:     str(record, "expected"),
			Actual:       str(record, "actual"),
			Mismatch:     str(record, "mismatch"),
			ExpectedBody: first(record, "expectedBody", "expected_body"),
			ActualBody:   first(record, "actualBody", "actual_body"),
		}
	case "bodymismatch":
		return BodyMismatch{Path: str(record, "path"), Expected: record["expected"], Actual: record["actual"], Mismatch: str(record, "mismatch")}
	case "metadatamismatch":
		return MetadataMismatch{Key: str(record, "key"), Expected: str(record, "expected"), Actual: str(record, "actual"), Mismatch: str(record, "mismatch")}
	}

	log.WithField("type", tag).Debug("unknown mismatch type")
	fields := make(map[string]any, len(record))
	for k, v := range record {
		fields[k] = v
	}
	return GenericMismatch{Fields: fields}
}

// FromJSON decodes a JSON array of mismatch records, a single record, or an
// object holding them under "mismatches".
func FromJSON(data []byte) ([]Mismatch, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "decode mismatches")
	}
	switch v := raw.(type) {
	case []any:
		return fromList(v), nil
	case map[string]any:
		if items, ok := v["mismatches"].([]any); ok && v["type"] == nil {
			return fromList(items), nil
		}
		return []Mismatch{FromWire(v)}, nil
	}
	return nil, errors.Errorf("unexpected mismatch document of type %T", raw)
}

func fromList(items []any) []Mismatch {
	out := make([]Mismatch, 0, len(items))
	for _, item := range items {
		out = append(out, fromAny(item))
	}
	return out
}

func fromAny(v any) Mismatch {
	if record, ok := v.(map[string]any); ok {
		return FromWire(record)
	}
	return GenericMismatch{Fields: map[string]any{"value": v}}
}

func normalise(tag string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '-', '_', ' ', '.':
			return -1
		}
		return r
	}, strings.ToLower(tag))
}

func str(record map[string]any, key string) string {
	switch v := record[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool, int, int64:
		return fmt.Sprintf("%v", v)
	default:
		return render(v)
	}
}

func num(record map[string]any, key string) int {
	switch v := record[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

func object(record map[string]any, key string) map[string]any {
	if v, ok := record[key].(map[string]any); ok {
		return v
	}
	return map[string]any{}
}

func first(record map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := record[k]; ok {
			return v
		}
	}
	return nil
}
