package validators

import (
	"strings"
	"unicode"
)

// SanitizeString trims the input, drops control characters, collapses runs of
// whitespace to one space and cuts the result to maxLen runes. Accented
// city and business names keep every character up to the limit.
func SanitizeString(input string, maxLen int) string {
	var b strings.Builder
	b.Grow(len(input))
	count := 0
	pendingSpace := false
	for _, r := range input {
		if unicode.IsSpace(r) {
			pendingSpace = count > 0
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		need := 1
		if pendingSpace {
			need = 2
		}
		if maxLen > 0 && count+need > maxLen {
			break
		}
		if pendingSpace {
			b.WriteByte(' ')
			count++
			pendingSpace = false
		}
		b.WriteRune(r)
		count++
	}
	return b.String()
}
