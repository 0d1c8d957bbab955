package epub

import (
	"regexp"
	"strings"
)

var (
	nonWordPattern    = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

const maxFilenameRunes = 80

// FilenameFromTitle derives a stable, human-readable file slug from an
// article title: lower-cased, non-word characters stripped, whitespace runs
// collapsed to single hyphens, trimmed, and truncated to 80 characters at a
// hyphen boundary. It is a pure function of the title alone.
func FilenameFromTitle(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = nonWordPattern.ReplaceAllString(s, "")
	s = whitespacePattern.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if runes := []rune(s); len(runes) > maxFilenameRunes {
		cut := string(runes[:maxFilenameRunes])
		if i := strings.LastIndex(cut, "-"); i > 0 {
			cut = cut[:i]
		}
		s = cut
	}
	if s == "" {
		return "post"
	}
	return s
}
