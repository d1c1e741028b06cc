package refiner

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/cast"
	"github.com/tordrt/physgen/internal/schema"
	"github.com/tordrt/physgen/internal/typemap"
	"go.uber.org/zap"
)

// Suggestion field names
const (
	FieldExactType     = "exactType"
	FieldNullable      = "nullable"
	FieldUnique        = "unique"
	FieldDefault       = "default"
	FieldCheck         = "checkConstraint"
	FieldAutoIncrement = "autoIncrement"
	FieldCleanName     = "cleanName"
)

var (
	identifier   = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,63}$`)
	outerCheck   = regexp.MustCompile(`(?i)^\s*CHECK\s*\(`)
	forbiddenSQL = regexp.MustCompile(`(?i)(;|--|/\*|\*/|\bSELECT\b|\bDROP\b|\bINSERT\b|\bUPDATE\b|\bDELETE\b)`)
)

func (r *Refiner) merge(s *schema.Schema, resp map[string]any, res *Result) {
	tables := lookupTables(resp)

	for _, t := range s.Tables() {
		entry, ok := findKey(tables, t.Name, t.CleanName)
		if !ok {
			continue
		}
		columns := asMap(entry)
		if nested, ok := columns["columns"]; ok {
			if m := asMap(nested); m != nil {
				columns = m
			}
		}

		keys := make([]string, 0, len(columns))
		for key := range columns {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if t.Column(key) == nil {
				r.reject(res, t.CleanName, key, "", "unknown column")
			}
		}

		for _, c := range t.Columns {
			raw, ok := findKey(columns, c.Name, c.CleanName)
			if !ok {
				continue
			}
			fields := asMap(raw)
			if fields == nil {
				r.reject(res, t.CleanName, c.CleanName, "", "suggestion is not an object")
				continue
			}
			r.mergeColumn(s, t, c, fields, res)
		}
	}
}

// mergeColumn validates each field independently; fields are applied in a
// fixed order so the default is checked against the final type.
func (r *Refiner) mergeColumn(s *schema.Schema, t *schema.Table, c *schema.Column, fields map[string]any, res *Result) {
	accept := func() {
		c.Enhanced = true
		res.Accepted++
		res.Enhanced = true
	}
	audit := c.System || schema.IsAuditColumn(c.CleanName)

	if v, ok := fields[FieldExactType]; ok && v != nil {
		if err := r.validateType(c, referencedColumn(s, t, c), v, audit); err != nil {
			r.reject(res, t.CleanName, c.CleanName, FieldExactType, err.Error())
		} else if typ := typemap.Sanitize(cast.ToString(v)); typ != c.ExactType {
			c.ExactType = typ
			if c.Default != nil {
				if _, ok := NormalizeDefault(*c.Default, typ); !ok {
					c.Default = nil
				}
			}
			accept()
		}
	}

	if v, ok := fields[FieldNullable]; ok && v != nil {
		nullable, err := cast.ToBoolE(v)
		switch {
		case err != nil:
			r.reject(res, t.CleanName, c.CleanName, FieldNullable, "not a boolean")
		case nullable && !c.Nullable:
			r.reject(res, t.CleanName, c.CleanName, FieldNullable, "cannot relax NOT NULL")
		case !nullable && c.Nullable:
			c.Nullable = false
			accept()
		}
	}

	if v, ok := fields[FieldUnique]; ok && v != nil {
		unique, err := cast.ToBoolE(v)
		switch {
		case err != nil:
			r.reject(res, t.CleanName, c.CleanName, FieldUnique, "not a boolean")
		case unique && (c.ForeignKey || audit):
			r.reject(res, t.CleanName, c.CleanName, FieldUnique, "not allowed on this column")
		case unique && !c.Unique:
			c.Unique = true
			accept()
		}
	}

	if v, ok := fields[FieldDefault]; ok && v != nil {
		literal, err := cast.ToStringE(v)
		switch {
		case err != nil || strings.TrimSpace(literal) == "":
			r.reject(res, t.CleanName, c.CleanName, FieldDefault, "not a literal")
		case audit:
			r.reject(res, t.CleanName, c.CleanName, FieldDefault, "audit defaults are fixed")
		case c.AutoIncrement:
			r.reject(res, t.CleanName, c.CleanName, FieldDefault, "auto-increment columns take no default")
		default:
			if norm, ok := NormalizeDefault(literal, c.ExactType); !ok {
				r.reject(res, t.CleanName, c.CleanName, FieldDefault,
					fmt.Sprintf("%q is not a valid default for %s", literal, c.ExactType))
			} else if c.Default == nil || *c.Default != norm {
				c.Default = &norm
				accept()
			}
		}
	}

	if v, ok := fields[FieldCheck]; ok && v != nil {
		expr := strings.TrimSpace(cast.ToString(v))
		switch {
		case expr == "":
		case c.Check != "":
			r.reject(res, t.CleanName, c.CleanName, FieldCheck, "column already has a check")
		default:
			if err := ValidateCheck(expr); err != nil {
				r.reject(res, t.CleanName, c.CleanName, FieldCheck, err.Error())
			} else {
				c.Check = expr
				accept()
			}
		}
	}

	if v, ok := fields[FieldAutoIncrement]; ok && v != nil {
		auto, err := cast.ToBoolE(v)
		switch {
		case err != nil:
			r.reject(res, t.CleanName, c.CleanName, FieldAutoIncrement, "not a boolean")
		case !auto:
		case !c.PrimaryKey || c.ForeignKey || len(t.PrimaryKeys()) != 1 || !typemap.IsInteger(c.ExactType):
			r.reject(res, t.CleanName, c.CleanName, FieldAutoIncrement, "only a single integer primary key may auto-increment")
		case c.Default != nil:
			r.reject(res, t.CleanName, c.CleanName, FieldAutoIncrement, "column already has a default")
		case !c.AutoIncrement:
			c.AutoIncrement = true
			accept()
		}
	}

	if v, ok := fields[FieldCleanName]; ok && v != nil {
		name := strings.TrimSpace(cast.ToString(v))
		switch {
		case name == "" || name == c.CleanName:
		case audit:
			r.reject(res, t.CleanName, c.CleanName, FieldCleanName, "audit columns cannot be renamed")
		case !identifier.MatchString(name):
			r.reject(res, t.CleanName, c.CleanName, FieldCleanName, "not a valid identifier")
		case collides(t, c, name):
			r.reject(res, t.CleanName, c.CleanName, FieldCleanName, "collides with another column")
		default:
			if c.Check != "" {
				c.Check = strings.ReplaceAll(c.Check, "`"+c.CleanName+"`", "`"+name+"`")
			}
			c.CleanName = name
			accept()
		}
	}
}

func (r *Refiner) validateType(c, ref *schema.Column, v any, audit bool) error {
	raw, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Errorf("not a type expression")
	}
	typ := typemap.Sanitize(raw)
	switch {
	case audit:
		return fmt.Errorf("audit column types are fixed")
	case !typemap.IsAllowed(typ):
		return fmt.Errorf("%s is outside the allowed type families", typ)
	case (c.ForeignKey || c.PrimaryKey || strings.EqualFold(c.CleanName, "quantity")) && !typemap.IsInteger(typ):
		return fmt.Errorf("%s must stay an integer type", c.CleanName)
	case c.AutoIncrement && !typemap.IsInteger(typ):
		return fmt.Errorf("auto-increment requires an integer type")
	}
	if ref != nil && ref.ExactType != typ {
		return fmt.Errorf("%s must match referenced column type %s", typ, ref.ExactType)
	}
	return nil
}

// referencedColumn returns the column a foreign key points at, or nil when
// the reference does not resolve to a usable key.
func referencedColumn(s *schema.Schema, t *schema.Table, c *schema.Column) *schema.Column {
	if !c.ForeignKey {
		return nil
	}
	for _, fk := range s.ResolveTableForeignKeys(t) {
		if fk.Column == c && fk.Valid() {
			return fk.RefColumn
		}
	}
	return nil
}

// ValidateCheck accepts a bare boolean SQL expression
func ValidateCheck(expr string) error {
	if outerCheck.MatchString(expr) {
		return fmt.Errorf("expression must not be wrapped in CHECK()")
	}
	if forbiddenSQL.MatchString(expr) {
		return fmt.Errorf("expression contains a forbidden token")
	}
	depth := 0
	inString := false
	for _, ch := range expr {
		switch {
		case ch == '\'':
			inString = !inString
		case inString:
		case ch == '(':
			depth++
		case ch == ')':
			depth--
			if depth < 0 {
				return fmt.Errorf("unbalanced parentheses")
			}
		}
	}
	if depth != 0 || inString {
		return fmt.Errorf("unbalanced parentheses or quotes")
	}
	return nil
}

func (r *Refiner) reject(res *Result, table, column, field, reason string) {
	res.Rejections = append(res.Rejections, Rejection{Table: table, Column: column, Field: field, Reason: reason})
	r.logger.Debug("dropped LLM suggestion",
		zap.String("table", table),
		zap.String("column", column),
		zap.String("field", field),
		zap.String("reason", reason))
}

func collides(t *schema.Table, self *schema.Column, name string) bool {
	for _, c := range t.Columns {
		if c == self {
			continue
		}
		if strings.EqualFold(c.CleanName, name) || strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

// lookupTables accepts both {"tables": {...}} and a bare table map
func lookupTables(resp map[string]any) map[string]any {
	if nested, ok := resp["tables"]; ok {
		if m := asMap(nested); m != nil {
			return m
		}
	}
	return resp
}

func asMap(v any) map[string]any {
	m, err := cast.ToStringMapE(v)
	if err != nil || len(m) == 0 {
		return nil
	}
	return m
}

func findKey(m map[string]any, names ...string) (any, bool) {
	for _, n := range names {
		if v, ok := m[n]; ok {
			return v, true
		}
	}
	for k, v := range m {
		for _, n := range names {
			if strings.EqualFold(k, n) {
				return v, true
			}
		}
	}
	return nil, false
}
