package ocr

import (
	"strings"
	"unicode/utf8"
)

// logText puts recognized text on one line and cuts it to at most max
// bytes, never inside a multi-byte rune.
func logText(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
