package ddl

import "strings"

// ValidateSyntax performs a light structural check over generated statement
// text: non-empty, balanced parentheses and string quoting, and a trailing
// statement terminator. It is not a SQL parser; it exists to catch truncated
// or mangled text before it reaches an executor.
func ValidateSyntax(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}

	depth := 0
	inQuote := false
	inDouble := false
	for _, r := range trimmed {
		switch {
		case r == '\'' && !inDouble:
			inQuote = !inQuote
		case r == '"' && !inQuote:
			inDouble = !inDouble
		case inQuote || inDouble:
		case r == '(':
			depth++
		case r == ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	if depth != 0 || inQuote || inDouble {
		return false
	}
	return strings.HasSuffix(trimmed, ";")
}
