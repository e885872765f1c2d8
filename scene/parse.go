package scene

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/scenetag/scenetag/internal/validator"
)

// ParseError reports a model response that could not be turned into a
// Result. Raw carries the original model text so callers can log or
// surface it.
type ParseError struct {
	Reason string
	Raw    string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse scene result: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("parse scene result: %s", e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parse decodes the raw text a vision model returned into a validated
// Result. Markdown code fences around the JSON are tolerated; anything
// else non-conforming fails. There is exactly one parse attempt.
func Parse(raw string) (*Result, error) {
	text := StripFences(raw)
	if text == "" {
		return nil, &ParseError{Reason: "empty response", Raw: raw}
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.DisallowUnknownFields()

	var result Result
	if err := dec.Decode(&result); err != nil {
		return nil, &ParseError{Reason: "invalid JSON", Raw: raw, Err: err}
	}
	if dec.More() {
		return nil, &ParseError{Reason: "trailing data after JSON object", Raw: raw}
	}

	if err := validator.Validate(&result.Scenarios); err != nil {
		return nil, &ParseError{Reason: "incomplete scenarios", Raw: raw, Err: err}
	}
	if err := validator.Validate(&result.CriticalObjects); err != nil {
		return nil, &ParseError{Reason: "incomplete critical_objects", Raw: raw, Err: err}
	}

	return &result, nil
}

// StripFences removes a surrounding markdown code fence, with or
// without a language tag, from a model response.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	// Drop the opening fence line ("```" or "```json").
	if idx := strings.Index(s, "\n"); idx != -1 {
		s = s[idx+1:]
	} else {
		return strings.TrimSpace(strings.Trim(s, "`"))
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
