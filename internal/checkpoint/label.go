package checkpoint

import (
	"strings"
	"unicode"
)

const (
	maxLabelLength = 40
	emptyLabel     = "unknown"
)

// SanitizeLabel turns free text into a directory-safe label: lower-cased
// letters and digits, every other run of characters collapsed to a single
// dash, at most 40 characters.
func SanitizeLabel(s string) string {
	var b strings.Builder
	pendingDash := false
	count := 0

	for _, r := range strings.ToLower(s) {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			pendingDash = count > 0
			continue
		}
		if pendingDash {
			if count+1 >= maxLabelLength {
				break
			}
			b.WriteRune('-')
			count++
			pendingDash = false
		}
		b.WriteRune(r)
		count++
		if count >= maxLabelLength {
			break
		}
	}

	if b.Len() == 0 {
		return emptyLabel
	}
	return b.String()
}
