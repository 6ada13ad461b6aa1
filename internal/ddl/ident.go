package ddl

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxIdentLen is the identifier byte-length limit of the target dialect.
const maxIdentLen = 30

// reservedWords are names that cannot be used for tables, columns, or
// constraints. The list is intentionally the short set that actually breaks
// statement generation, not a full keyword inventory.
var reservedWords = map[string]struct{}{
	"TABLE": {}, "COLUMN": {}, "INDEX": {}, "SELECT": {}, "INSERT": {},
	"UPDATE": {}, "DELETE": {}, "FROM": {}, "WHERE": {}, "ORDER": {},
	"GROUP": {}, "BY": {}, "CREATE": {}, "ALTER": {}, "DROP": {},
	"GRANT": {}, "REVOKE": {}, "PARTITION": {}, "TABLESPACE": {},
	"CONSTRAINT": {}, "PRIMARY": {}, "UNIQUE": {}, "CHECK": {},
	"REFERENCES": {}, "DEFAULT": {}, "NULL": {}, "NOT": {}, "AND": {},
	"OR": {}, "IN": {}, "IS": {}, "AS": {}, "ON": {}, "USER": {},
	"LEVEL": {}, "ROWID": {}, "ROWNUM": {}, "SYSDATE": {},
}

// checkIdent validates a single identifier: non-empty, NFC-normalized ASCII
// letters/digits/underscore, leading letter, within the length limit, and not
// a reserved word. Returns a human-readable problem description or "".
func checkIdent(name string) string {
	if strings.TrimSpace(name) == "" {
		return "identifier must not be empty"
	}
	if norm.NFC.String(name) != name {
		return "identifier must be NFC-normalized"
	}
	if len(name) > maxIdentLen {
		return fmt.Sprintf("identifier %q exceeds %d bytes", name, maxIdentLen)
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '_' || r == '$' || r == '#'):
		default:
			return fmt.Sprintf("identifier %q contains illegal character %q", name, r)
		}
	}
	if _, ok := reservedWords[strings.ToUpper(name)]; ok {
		return fmt.Sprintf("identifier %q is a reserved word", name)
	}
	return ""
}

// SuggestIdent folds an arbitrary display name (possibly with diacritics or
// spaces) into a legal identifier candidate. It strips combining marks via NFD
// decomposition, lowercases, and replaces every remaining illegal rune with an
// underscore. The result is truncated to the identifier limit. It is a
// convenience for callers deriving descriptor names from external metadata;
// the validator still has the final word.
func SuggestIdent(display string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, display)
	if err != nil {
		folded = display
	}
	var sb strings.Builder
	for i, r := range strings.ToLower(strings.TrimSpace(folded)) {
		switch {
		case r >= 'a' && r <= 'z':
			sb.WriteRune(r)
		case i > 0 && r >= '0' && r <= '9':
			sb.WriteRune(r)
		default:
			if i > 0 {
				sb.WriteByte('_')
			}
		}
	}
	out := strings.Trim(sb.String(), "_")
	if len(out) > maxIdentLen {
		out = out[:maxIdentLen]
	}
	return out
}

// quoteIdent double-quotes an identifier segment, escaping embedded quotes:
//
//	quoteIdent(`pcv`)        => `"pcv"`
//	quoteIdent(`weird"name`) => `"weird""name"`
func quoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// quoteIdents quotes each identifier and joins them with ", ".
func quoteIdents(ids []string) string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = quoteIdent(id)
	}
	return strings.Join(out, ", ")
}

// QuoteLiteral renders s as a single-quoted SQL string literal with embedded
// quotes doubled. Used for comments and other values that must never be
// interpreted as expressions.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Sanitizer checks an untrusted raw expression before it is interpolated into
// statement text. A non-nil error rejects the definition.
type Sanitizer func(expr string) error

// StrictSanitizer is the default Sanitizer. It rejects statement separators,
// comment tokens, unbalanced quoting, and unbalanced parentheses, the
// constructs that let a raw expression escape its clause. It does not attempt
// to parse the expression.
func StrictSanitizer(expr string) error {
	var inQuote bool
	depth := 0
	prev := rune(0)
	for _, r := range expr {
		switch {
		case r == '\'':
			inQuote = !inQuote
		case inQuote:
			// quoted text is inert
		case r == ';':
			return fmt.Errorf("expression %q contains a statement separator", expr)
		case r == '-' && prev == '-':
			return fmt.Errorf("expression %q contains a comment token", expr)
		case r == '*' && prev == '/':
			return fmt.Errorf("expression %q contains a comment token", expr)
		case r == '(':
			depth++
		case r == ')':
			depth--
			if depth < 0 {
				return fmt.Errorf("expression %q closes an enclosing parenthesis", expr)
			}
		}
		prev = r
	}
	if inQuote {
		return fmt.Errorf("expression %q has an unterminated string literal", expr)
	}
	if depth != 0 {
		return fmt.Errorf("expression %q has unbalanced parentheses", expr)
	}
	return nil
}
