package llm

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/kaptinlin/jsonrepair"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ParseErrorKind classifies why a completion response could not be decoded.
type ParseErrorKind int

const (
	// ParseEmpty means the response was empty or whitespace.
	ParseEmpty ParseErrorKind = iota
	// ParseNoJSON means the response contained no JSON object.
	ParseNoJSON
	// ParseMalformed means a JSON object was found but could not be decoded
	// even after repair, or lacked required fields.
	ParseMalformed
	// ParseServiceFailure means the response is the fallback payload produced
	// when the completion call itself failed.
	ParseServiceFailure
)

func (k ParseErrorKind) String() string {
	switch k {
	case ParseEmpty:
		return "empty"
	case ParseNoJSON:
		return "no_json"
	case ParseMalformed:
		return "malformed"
	case ParseServiceFailure:
		return "service_failure"
	default:
		return "unknown"
	}
}

// ParseError is returned by the Decode functions.
type ParseError struct {
	Kind   ParseErrorKind
	Detail string
	Err    error
}

func (e *ParseError) Error() string {
	msg := "decode completion: " + e.Kind.String()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseErrorKindOf returns the kind of a *ParseError in err's chain.
func ParseErrorKindOf(err error) (ParseErrorKind, bool) {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return 0, false
}

// Intent is the decoded intent identification response.
type Intent struct {
	QueryType string `json:"query_type"`
	Entity    string `json:"entity"`
	Goal      string `json:"goal"`
}

// Answer is the decoded synthesis response.
type Answer struct {
	Answer      string  `json:"answer"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
}

// DecodeIntent decodes an intent response. At least one of query_type and
// entity must be present.
func DecodeIntent(raw string) (*Intent, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}

	intent := &Intent{
		QueryType: stringField(obj, "query_type", "queryType", "type"),
		Entity:    stringField(obj, "entity", "key_entity", "entity_name"),
		Goal:      stringField(obj, "goal", "target", "objective"),
	}
	if intent.QueryType == "" && intent.Entity == "" {
		return nil, &ParseError{Kind: ParseMalformed, Detail: "intent has neither query_type nor entity"}
	}
	return intent, nil
}

// DecodeAnswer decodes a synthesis response. The answer field is required;
// confidence may be a number or a numeric string and is clamped to [0, 1].
func DecodeAnswer(raw string) (*Answer, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}

	answer := stringField(obj, "answer")
	if answer == "" {
		return nil, &ParseError{Kind: ParseMalformed, Detail: "answer field missing"}
	}

	return &Answer{
		Answer:      answer,
		Confidence:  clampConfidence(numberField(obj["confidence"])),
		Explanation: stringField(obj, "explanation"),
	}, nil
}

// decodeObject finds and decodes the first JSON object in raw. A payload
// carrying a non-empty "error" field is reported as ParseServiceFailure.
func decodeObject(raw string) (map[string]interface{}, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, &ParseError{Kind: ParseEmpty}
	}

	candidate := extractJSON(text)
	if !strings.HasPrefix(candidate, "{") {
		return nil, &ParseError{Kind: ParseNoJSON, Detail: truncate(text, 80)}
	}

	obj, err := parseLenient(candidate)
	if err != nil {
		return nil, &ParseError{Kind: ParseMalformed, Err: err}
	}

	if msg := stringField(obj, "error"); msg != "" {
		return obj, &ParseError{Kind: ParseServiceFailure, Detail: msg}
	}
	return obj, nil
}

// parseLenient decodes s as-is, then with a closing brace appended, then
// after running it through jsonrepair.
func parseLenient(s string) (map[string]interface{}, error) {
	var obj map[string]interface{}
	err := json.UnmarshalFromString(s, &obj)
	if err == nil && obj != nil {
		return obj, nil
	}
	originalErr := err
	if originalErr == nil {
		originalErr = errors.New("not a JSON object")
	}

	obj = nil
	if err := json.UnmarshalFromString(s+"}", &obj); err == nil && obj != nil {
		return obj, nil
	}

	repaired, err := repairJSON(s)
	if err != nil {
		return nil, originalErr
	}
	obj = nil
	if err := json.UnmarshalFromString(repaired, &obj); err == nil && obj != nil {
		return obj, nil
	}
	return nil, originalErr
}

var errRepairFailed = errors.New("json repair failed")

// repairJSON runs jsonrepair over s. The repairer indexes past the end of
// some truncated inputs (a trailing backslash); those panics are reported
// as errRepairFailed.
func repairJSON(s string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = "", fmt.Errorf("%w: %v", errRepairFailed, r)
		}
	}()

	out, err = jsonrepair.JSONRepair(s)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errRepairFailed, err)
	}
	return out, nil
}

// extractJSON extracts the first balanced JSON object from text that may
// contain markdown fences or prose around it. When no complete object is
// found it returns the text from the first brace, or the text unchanged when
// there is no brace at all.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return text
	}

	braceCount := 0
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		char := text[i]

		if escape {
			escape = false
			continue
		}
		if char == '\\' {
			escape = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}

		if !inString {
			switch char {
			case '{':
				braceCount++
			case '}':
				braceCount--
				if braceCount == 0 {
					return text[start : i+1]
				}
			}
		}
	}

	// Unbalanced: hand the tail to the repair step.
	return text[start:]
}

// stringField returns the first non-empty string value under any of keys.
func stringField(obj map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := obj[k].(string); ok {
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// numberField converts a JSON number or numeric string to float64.
func numberField(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err == nil {
			return f
		}
	}
	return 0
}

func clampConfidence(c float64) float64 {
	if math.IsNaN(c) {
		return 0
	}
	return min(1, max(0, c))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
