package domain

import "strings"

// SanitizeFilename strips characters that are invalid in file and folder
// names on common filesystems.
func SanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			return -1
		}
		return r
	}, name)
}
