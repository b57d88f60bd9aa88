// Package stringutil provides common string utility functions.
package stringutil

// Truncate returns at most maxRunes runes of s. It never splits a UTF-8 sequence.
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	n := 0
	for i := range s {
		if n == maxRunes {
			return s[:i]
		}
		n++
	}
	return s
}

// TruncateEllipsis truncates s to maxRunes runes and appends "..." when it was cut.
func TruncateEllipsis(s string, maxRunes int) string {
	t := Truncate(s, maxRunes)
	if len(t) < len(s) {
		return t + "..."
	}
	return t
}
