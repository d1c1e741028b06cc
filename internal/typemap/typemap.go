// Package typemap maps logical column types to MySQL physical types.
package typemap

import (
	"regexp"
	"strings"
)

// Fallback is returned for empty or unknown logical types
const Fallback = "VARCHAR(255)"

var logical = map[string]string{
	"STRING":    "VARCHAR(255)",
	"TEXT":      "VARCHAR(255)",
	"CHAR":      "VARCHAR(255)",
	"VARCHAR":   "VARCHAR(255)",
	"INT":       "INT",
	"INTEGER":   "INT",
	"BIGINT":    "BIGINT",
	"SMALLINT":  "SMALLINT",
	"DECIMAL":   "DECIMAL(18,2)",
	"NUMERIC":   "DECIMAL(18,2)",
	"FLOAT":     "FLOAT",
	"DOUBLE":    "DOUBLE",
	"BOOLEAN":   "BOOLEAN",
	"BOOL":      "BOOLEAN",
	"DATE":      "DATE",
	"DATETIME":  "DATETIME",
	"TIMESTAMP": "TIMESTAMP",
	"UUID":      "CHAR(36)",
	"JSON":      "JSON",
	"JSONB":     "JSON",
}

// Map returns the canonical physical type for a logical type name.
// Matching is case-insensitive on the base token, so "varchar(40)" maps
// like "VARCHAR". The result never carries constraint fragments.
func Map(logicalType string) string {
	if physical, ok := logical[BaseToken(logicalType)]; ok {
		return physical
	}
	return Fallback
}

// BaseToken returns the upper-cased type name without parameters or modifiers
func BaseToken(typ string) string {
	base := strings.ToUpper(strings.TrimSpace(typ))
	if i := strings.IndexAny(base, "( \t"); i >= 0 {
		base = base[:i]
	}
	return base
}

var (
	stripFragments = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bDEFAULT\b.*$`),
		regexp.MustCompile(`(?i)\bAUTO_INCREMENT\b`),
		regexp.MustCompile(`(?i)\bNOT\s+NULL\b`),
		regexp.MustCompile(`(?i)\bNULL\b`),
	}
	integerWord = regexp.MustCompile(`\bINTEGER\b`)
	spaces      = regexp.MustCompile(`\s+`)
	parenSpaces = regexp.MustCompile(`\s*([(),])\s*`)

	allowed = []*regexp.Regexp{
		regexp.MustCompile(`^(INT|BIGINT|SMALLINT|TINYINT)(\(\d+\))?( UNSIGNED)?$`),
		regexp.MustCompile(`^VARCHAR\(\d+\)$`),
		regexp.MustCompile(`^DECIMAL\(\d+(,\d+)?\)$`),
		regexp.MustCompile(`^(DATE|DATETIME|TIMESTAMP|BOOLEAN)$`),
	}
	integerFamily = regexp.MustCompile(`^(INT|BIGINT|SMALLINT|TINYINT)(\(\d+\))?( UNSIGNED)?$`)
)

// Sanitize normalizes a physical type expression: embedded DEFAULT,
// AUTO_INCREMENT, NULL and NOT NULL fragments are removed, INTEGER becomes
// INT and whitespace is collapsed.
func Sanitize(typ string) string {
	out := typ
	for _, re := range stripFragments {
		out = re.ReplaceAllString(out, " ")
	}
	out = strings.ToUpper(out)
	out = integerWord.ReplaceAllString(out, "INT")
	out = spaces.ReplaceAllString(strings.TrimSpace(out), " ")
	return parenSpaces.ReplaceAllString(out, "$1")
}

// IsAllowed reports whether a sanitized type belongs to the families the
// DDL emitter accepts.
func IsAllowed(typ string) bool {
	for _, re := range allowed {
		if re.MatchString(typ) {
			return true
		}
	}
	return false
}

// IsInteger reports whether a sanitized type is an integer family type
func IsInteger(typ string) bool {
	return integerFamily.MatchString(typ)
}

// Resolve sanitizes a candidate type and falls back to the mapping of the
// logical type when the candidate is outside the allowed families.
func Resolve(candidate, logicalType string) string {
	if typ := Sanitize(candidate); IsAllowed(typ) {
		return typ
	}
	return Map(logicalType)
}
