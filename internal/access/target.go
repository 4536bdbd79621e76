package access

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	digitsRe   = regexp.MustCompile(`^\d+$`)
	idPrefixRe = regexp.MustCompile(`(?i)^id\s*[:\s]\s*(\d+)$`)
)

// ExtractUserID parses a bare number ("42") or an explicit "id: 42" / "ID 42"
// form. Names that merely contain digits, like "idris99", are not IDs.
func ExtractUserID(arg string) (int64, bool) {
	arg = strings.TrimSpace(arg)
	digits := ""
	switch {
	case digitsRe.MatchString(arg):
		digits = arg
	default:
		m := idPrefixRe.FindStringSubmatch(arg)
		if m == nil {
			return 0, false
		}
		digits = m[1]
	}
	id, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// TrimMention strips whitespace and a leading "@".
func TrimMention(arg string) string {
	return strings.TrimPrefix(strings.TrimSpace(arg), "@")
}
