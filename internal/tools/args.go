package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseStage records which decoder accepted a tool call's arguments.
type ParseStage int

const (
	StageFailed ParseStage = iota
	StageStrict
	StageLenient
)

func (s ParseStage) String() string {
	switch s {
	case StageStrict:
		return "strict"
	case StageLenient:
		return "lenient"
	default:
		return "failed"
	}
}

// EscapingHint is appended to argument parse failures so the model can
// correct its next attempt.
const EscapingHint = `Hint: make sure special characters inside strings are escaped (a backslash \ must be written as \\, a newline as \n, a double quote as \").`

// ArgumentError reports that neither decoding stage could read the arguments
// of a tool call.
type ArgumentError struct {
	Tool       string
	Raw        string
	StrictErr  error
	LenientErr error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %v", e.Tool, e.StrictErr)
}

func (e *ArgumentError) Unwrap() error { return e.StrictErr }

// Message renders the error as a tool result for the transcript.
func (e *ArgumentError) Message() string {
	return fmt.Sprintf("❌ Failed to parse tool arguments: %v\n%s", e.StrictErr, EscapingHint)
}

// ArgumentResult is the outcome of ParseArguments. Err is set exactly when
// Stage is StageFailed.
type ArgumentResult struct {
	Args  map[string]any
	Stage ParseStage
	Err   *ArgumentError
}

// ParseArguments decodes the raw argument text of a tool call. Strict JSON is
// tried first; on failure the text is repaired (stray backslashes, raw control
// characters inside strings) and decoded again, falling back to a YAML flow
// mapping decode which also accepts single-quoted keys and values.
func ParseArguments(tool, raw string) ArgumentResult {
	if strings.TrimSpace(raw) == "" {
		return ArgumentResult{Args: map[string]any{}, Stage: StageStrict}
	}

	args, strictErr := decodeJSONObject(raw)
	if strictErr == nil {
		return ArgumentResult{Args: args, Stage: StageStrict}
	}

	repaired := repairJSONStrings(raw)
	if args, err := decodeJSONObject(repaired); err == nil {
		return ArgumentResult{Args: args, Stage: StageLenient}
	}

	args, lenientErr := decodeYAMLMapping(raw)
	if lenientErr == nil {
		return ArgumentResult{Args: args, Stage: StageLenient}
	}
	if args, err := decodeYAMLMapping(repaired); err == nil {
		return ArgumentResult{Args: args, Stage: StageLenient}
	}

	return ArgumentResult{
		Stage: StageFailed,
		Err: &ArgumentError{
			Tool:       tool,
			Raw:        raw,
			StrictErr:  strictErr,
			LenientErr: lenientErr,
		},
	}
}

func decodeJSONObject(text string) (map[string]any, error) {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("arguments must be a JSON object, got %T", v)
	}
	return m, nil
}

func decodeYAMLMapping(text string) (map[string]any, error) {
	var v any
	if err := yaml.Unmarshal([]byte(text), &v); err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("arguments must be a mapping, got %T", v)
	}
	return m, nil
}

// repairJSONStrings escapes backslashes that do not start a valid JSON escape
// and raw control characters that appear inside double-quoted strings.
func repairJSONStrings(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 16)
	inString := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			continue
		}
		switch c {
		case '"':
			inString = false
			b.WriteByte(c)
		case '\\':
			if isJSONEscape(text[i+1:]) {
				b.WriteByte(c)
				b.WriteByte(text[i+1])
				i++
			} else {
				b.WriteString(`\\`)
			}
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// isJSONEscape reports whether rest, the text after a backslash, starts a
// valid JSON escape. \u needs four hex digits.
func isJSONEscape(rest string) bool {
	if rest == "" {
		return false
	}
	switch rest[0] {
	case '"', '\\', '/', 'b', 'f', 'n', 'r', 't':
		return true
	case 'u':
		if len(rest) < 5 {
			return false
		}
		for i := 1; i < 5; i++ {
			if !isHexDigit(rest[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func isHexDigit(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}
