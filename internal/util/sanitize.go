// Package util provides shared utility functions for the CLI.
package util

import (
	"regexp"
	"strings"
)

var (
	// disallowedChars matches anything not in [a-z0-9-].
	disallowedChars = regexp.MustCompile(`[^a-z0-9\-]`)
	// multiHyphen collapses consecutive hyphens.
	multiHyphen = regexp.MustCompile(`-{2,}`)
)

// Domainify converts a string into a DNS-label-safe hostname component.
//   - Lowercases
//   - Replaces spaces and underscores with hyphens
//   - Strips all characters not in [a-z0-9-]
//   - Collapses consecutive hyphens
//   - Trims leading/trailing hyphens
//
// Example: "My App (Beta)" → "my-app-beta"
func Domainify(name string) string {
	s := strings.ToLower(name)
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "_", "-")
	s = disallowedChars.ReplaceAllString(s, "")
	s = multiHyphen.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	return s
}
