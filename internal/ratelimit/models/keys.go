package models

import "strings"

// SanitizeKeySegment escapes the key delimiter so a caller-controlled segment
// cannot address a neighbouring bucket.
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}
