package alert

import "strings"

// Normalize is the single normalization applied to keywords on write and to
// message text before matching.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
