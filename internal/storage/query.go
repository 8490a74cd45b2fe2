package storage

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrInvalidQuery is returned for search text containing control
// characters or invalid UTF-8
var ErrInvalidQuery = errors.New("invalid search query")

// ValidateQuery rejects text that cannot be matched safely. Whitespace
// such as tabs and newlines is allowed.
func ValidateQuery(query string) error {
	if !utf8.ValidString(query) {
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidQuery)
	}
	for _, r := range query {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return fmt.Errorf("%w: control character %U", ErrInvalidQuery, r)
		}
	}
	return nil
}

// MatchQuery turns free text into an FTS5 expression. Each whitespace
// separated term becomes a quoted string so punctuation is matched
// literally; a trailing * is kept as a prefix operator. Terms are ANDed.
func MatchQuery(query string) string {
	var parts []string
	for _, term := range strings.Fields(query) {
		prefix := strings.HasSuffix(term, "*")
		term = strings.TrimRight(term, "*")
		if term == "" {
			continue
		}

		quoted := `"` + strings.ReplaceAll(term, `"`, `""`) + `"`
		if prefix {
			quoted += "*"
		}
		parts = append(parts, quoted)
	}
	return strings.Join(parts, " ")
}

// escapeLike escapes LIKE wildcards for use with ESCAPE '\'
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
