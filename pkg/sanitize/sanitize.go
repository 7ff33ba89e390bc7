// Package sanitize cleans user supplied text before it is stored.
package sanitize

import (
	"path"
	"strings"
	"unicode"
)

// Filename reduces a client supplied name to its last path element and
// removes control characters. Both slash styles count as separators.
func Filename(filename string) string {
	filename = strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/")
	filename = StripControlCharacters(path.Base(filename))
	if filename == "." || filename == ".." || filename == "/" {
		return ""
	}
	return filename
}

// MessageText removes control characters except line breaks and tabs
func MessageText(input string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, input)
}

// StripControlCharacters removes control characters from string
func StripControlCharacters(input string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, input)
}
