package generate

import (
	"encoding/json"
	"errors"
)

// ErrParse means model output contained no usable JSON. Callers treat it as
// a degradation signal, never as a job failure on its own.
var ErrParse = errors.New("no JSON object found in model output")

// ExtractJSON locates the first balanced top-level {...} span in free-form
// model output and returns it verbatim. Remote generators wrap JSON in
// prose, code fences, or both; none of that can be assumed well-formed.
func ExtractJSON(s string) (json.RawMessage, error) {
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				candidate := s[start : i+1]
				if json.Valid([]byte(candidate)) {
					return json.RawMessage(candidate), nil
				}
				// Keep scanning; there may be a valid object later.
				start = -1
			}
		}
	}
	return nil, ErrParse
}

// DecodeJSON extracts and unmarshals in one step.
func DecodeJSON(s string, v any) error {
	raw, err := ExtractJSON(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
