// Package stringutil holds small string helpers for terminal output and
// flag values.
package stringutil

import "strings"

// Ellipsis flattens s to a single trimmed line and shortens it to at most
// maxLength runes, ending in "..." when truncated. With maxLength of 3 or
// less the string is cut without an ellipsis.
func Ellipsis(s string, maxLength int) string {
	if maxLength < 0 {
		return ""
	}
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", " ")

	runes := []rune(s)
	if len(runes) <= maxLength {
		return s
	}
	if maxLength <= 3 {
		return string(runes[:maxLength])
	}
	return string(runes[:maxLength-3]) + "..."
}
