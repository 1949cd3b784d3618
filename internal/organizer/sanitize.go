package organizer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Placeholder replaces any component that sanitizes to nothing.
const Placeholder = "Unknown"

// Default length limits, in runes.
const (
	DefaultMaxFilenameLength = 120
	DefaultMaxDirnameLength  = 80
)

var multiDash = regexp.MustCompile(`-{2,}`)

func illegal(r rune) bool {
	switch r {
	case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
		return true
	}
	return unicode.IsControl(r)
}

// Sanitize makes s safe as a single path component on FAT32 and NTFS volumes and
// bounds it to maxLength runes. The result is never empty.
func Sanitize(s string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = DefaultMaxFilenameLength
	}

	s = norm.NFKD.String(s)
	s = strings.Map(func(r rune) rune {
		if illegal(r) {
			return -1
		}
		return r
	}, s)
	s = strings.ReplaceAll(s, "&", "and")
	s = strings.Join(strings.Fields(s), " ")
	s = multiDash.ReplaceAllString(s, "-")
	s = strings.Trim(s, ". ")
	s = truncate(s, maxLength)

	if s == "" {
		return truncate(Placeholder, maxLength)
	}
	return s
}

// SanitizeDirname is [Sanitize] with the directory default length.
func SanitizeDirname(s string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = DefaultMaxDirnameLength
	}
	return Sanitize(s, maxLength)
}

// truncate cuts s to n runes and drops a dangling dot or space left at the cut.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimRight(string(runes[:n]), ". ")
}
