package schema

import (
	"regexp"
	"strings"
)

var nonWordChars = regexp.MustCompile(`[^A-Za-z0-9_]`)

// CleanName rewrites an identifier to [A-Za-z0-9_]+: every other character
// becomes an underscore and leading underscores are removed. The result is
// empty when nothing usable remains.
func CleanName(name string) string {
	cleaned := nonWordChars.ReplaceAllString(strings.TrimSpace(name), "_")
	return strings.TrimLeft(cleaned, "_")
}
