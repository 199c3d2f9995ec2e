// Package utils provides utility functions for the application.
package utils

import (
	"strings"
)

func ToPtr[T any](v T) *T {
	return &v
}

func IsTrue(b *bool) bool {
	return b != nil && *b
}

// NormalizeKey lowercases and trims a catalog key (vehicle make, model) for case-insensitive matching
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
