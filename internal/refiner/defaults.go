package refiner

import (
	"regexp"
	"strings"

	"github.com/tordrt/physgen/internal/typemap"
)

var (
	quotedString = regexp.MustCompile(`^'([^']|'')*'$`)
	numeric      = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
	integer      = regexp.MustCompile(`^-?\d+$`)
)

// NormalizeDefault validates a default literal against the whitelist and
// the column type. It returns the canonical literal and whether it is usable.
func NormalizeDefault(value, exactType string) (string, bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", false
	}

	upper := strings.Join(strings.Fields(strings.ToUpper(v)), " ")
	typ := typemap.BaseToken(exactType)
	temporal := typ == "TIMESTAMP" || typ == "DATETIME"

	switch {
	case upper == CurrentTimestamp || upper == CurrentTimestampOnUpdate:
		return upper, temporal
	case upper == CurrentDate:
		return upper, typ == "DATE"
	case upper == "TRUE" || upper == "FALSE":
		return upper, typ == "BOOLEAN" || typemap.IsInteger(exactType)
	case numeric.MatchString(v):
		switch {
		case typemap.IsInteger(exactType):
			return v, integer.MatchString(v)
		case typ == "BOOLEAN":
			return v, v == "0" || v == "1"
		case typ == "DECIMAL" || typ == "VARCHAR" || typ == "FLOAT" || typ == "DOUBLE":
			return v, true
		}
		return "", false
	case quotedString.MatchString(v):
		return v, typ == "VARCHAR" || typ == "CHAR" || typ == "DATE" || temporal
	}
	return "", false
}

// inputDefault keeps a metadata default when it is a usable literal.
// Plain text on textual or temporal columns is quoted; anything else is dropped.
func inputDefault(value, exactType string) *string {
	if v, ok := NormalizeDefault(value, exactType); ok {
		return &v
	}
	quoted := QuoteString(strings.TrimSpace(value))
	if v, ok := NormalizeDefault(quoted, exactType); ok && quoted != "''" {
		return &v
	}
	return nil
}

// QuoteString renders s as a single-quoted SQL string literal
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
