// Package textgen wraps a text-generation model behind a small interface.
// Business features outside the state core (reminder drafts, payment
// summaries) ask it for text; the store itself never depends on it.
package textgen

import (
	"context"
	"strings"
)

// Generator produces model text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ExtractJSON pulls the first JSON object or array out of model output.
// Models often wrap JSON in markdown fences or prose; this strips fences
// and trims to the outermost matching braces. Returns the input unchanged
// when no JSON payload is found.
func ExtractJSON(s string) string {
	s = strings.TrimSpace(s)

	// Strip a ```json ... ``` fence if present.
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}

	open := s[start]
	var close byte = '}'
	if open == '[' {
		close = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
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
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}

	return s[start:]
}
