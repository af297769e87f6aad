// Package respjson pulls a JSON object out of model output that may be
// wrapped in prose or markdown fences.
package respjson

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/fairyhunter13/airdrop-analyzer/internal/domain"
)

const snippetLen = 200

var trailingComma = regexp.MustCompile(`,(\s*[}\]])`)

// Error reports content from which no JSON object could be recovered.
// It matches domain.ErrMalformedResponse under errors.Is.
type Error struct {
	Snippet string
	Reason  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("no JSON object in model output (%s): %q", e.Reason, e.Snippet)
}

func (e *Error) Is(target error) bool { return target == domain.ErrMalformedResponse }

// Extract returns the first parseable JSON object in content. Candidates are
// tried in order: the trimmed content, the span from the first '{' to the
// last '}', the first balanced object, and the span with trailing commas
// removed.
func Extract(content string) ([]byte, error) {
	s := stripFences(strings.TrimSpace(content))
	if s == "" {
		return nil, &Error{Reason: "empty"}
	}
	if isObject(s) {
		return []byte(s), nil
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, &Error{Snippet: snip(s), Reason: "no braces"}
	}
	span := s[start : end+1]
	if isObject(span) {
		return []byte(span), nil
	}
	if b := balanced(s[start:]); b != "" && isObject(b) {
		return []byte(b), nil
	}
	if fixed := trailingComma.ReplaceAllString(span, "$1"); isObject(fixed) {
		return []byte(fixed), nil
	}
	return nil, &Error{Snippet: snip(s), Reason: "invalid JSON"}
}

// Decode extracts and unmarshals into v.
func Decode(content string, v any) error {
	b, err := Extract(content)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return &Error{Snippet: snip(string(b)), Reason: err.Error()}
	}
	return nil
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func isObject(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "{") && json.Valid([]byte(s))
}

// balanced returns the first brace-balanced prefix of s, honouring strings.
func balanced(s string) string {
	depth := 0
	inStr, esc := false, false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case ch == '\\':
				esc = true
			case ch == '"':
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}

func snip(s string) string {
	if len(s) > snippetLen {
		return s[:snippetLen]
	}
	return s
}
