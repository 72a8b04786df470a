package normalize

import "strings"

// Content returns a normalized form of message text suitable for
// storage. Normalization currently trims surrounding whitespace;
// inner whitespace is preserved as typed.
func Content(s string) string {
	return strings.TrimSpace(s)
}

// GroupName normalizes a group conversation name: surrounding
// whitespace is trimmed and runs of inner whitespace collapse to a
// single space.
func GroupName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
