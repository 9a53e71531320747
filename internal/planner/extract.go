package planner

import (
	"regexp"
	"strings"
)

var fencedBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// extractJSONObject returns the first embedded JSON object in text,
// preferring a fenced ```json code block and otherwise falling back to
// the widest brace-balanced {...} span, per spec.md §4.7.
func extractJSONObject(text string) (string, bool) {
	if m := fencedBlockPattern.FindStringSubmatch(text); m != nil {
		return m[1], true
	}
	return widestBraceSpan(text)
}

// widestBraceSpan scans for the outermost balanced {...} span, returning
// the text between the first '{' and its matching '}'.
func widestBraceSpan(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
