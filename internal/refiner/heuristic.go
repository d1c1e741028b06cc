package refiner

import (
	"fmt"
	"strings"

	"github.com/tordrt/physgen/internal/schema"
	"github.com/tordrt/physgen/internal/typemap"
)

// Default literals
const (
	CurrentTimestamp         = "CURRENT_TIMESTAMP"
	CurrentTimestampOnUpdate = "CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP"
	CurrentDate              = "CURRENT_DATE"
)

var checks = map[string]string{
	"quantity": "> 0",
	"price":    ">= 0",
	"total":    ">= 0",
}

func (r *Refiner) applyHeuristics(t *schema.Table) {
	pks := t.PrimaryKeys()

	for _, c := range t.Columns {
		name := strings.ToLower(c.CleanName)

		c.ExactType = typemap.Resolve(c.DataType, c.DataType)
		c.AutoIncrement = false

		switch {
		case c.ForeignKey:
			c.ExactType = "INT"
			if strings.Contains(strings.ToUpper(c.DataType), "BIGINT") {
				c.ExactType = "BIGINT"
			}
			c.Nullable = false
			c.Unique = false
		case c.PrimaryKey:
			c.ExactType = "INT"
			c.Nullable = false
			c.AutoIncrement = len(pks) == 1
		}

		if r.required[name] {
			c.Nullable = false
		}
		if name == "email" && !c.ForeignKey {
			c.Unique = true
		}
		if name == "quantity" && !typemap.IsInteger(c.ExactType) {
			c.ExactType = "INT"
		}
		if op, ok := checks[name]; ok {
			c.Check = CheckExpr(c.CleanName, op)
		}

		if c.Default != nil {
			c.Default = inputDefault(*c.Default, c.ExactType)
		}
		if name == "order_date" && c.ExactType == "DATE" && c.Default == nil {
			c.Default = strPtr(CurrentDate)
		}

		if schema.IsAuditColumn(name) {
			applyAudit(c)
		}
	}
}

// alignForeignKeyTypes gives every resolvable foreign key the integer type of
// the column it references, so widening a key carries over to its links.
func alignForeignKeyTypes(s *schema.Schema) {
	for _, fk := range s.ResolveForeignKeys() {
		if !fk.Valid() || !typemap.IsInteger(fk.RefColumn.ExactType) {
			continue
		}
		fk.Column.ExactType = fk.RefColumn.ExactType
	}
}

// ensureAuditColumns appends created_at and updated_at when absent
func ensureAuditColumns(t *schema.Table) {
	for _, name := range []string{schema.AuditCreatedAt, schema.AuditUpdatedAt} {
		if t.Column(name) != nil {
			continue
		}
		c := &schema.Column{
			Name:      name,
			CleanName: name,
			DataType:  "TIMESTAMP",
			System:    true,
		}
		applyAudit(c)
		t.Columns = append(t.Columns, c)
	}
}

func applyAudit(c *schema.Column) {
	c.ExactType = "TIMESTAMP"
	c.Nullable = false
	c.Unique = false
	c.AutoIncrement = false
	if strings.EqualFold(c.CleanName, schema.AuditUpdatedAt) {
		c.Default = strPtr(CurrentTimestampOnUpdate)
	} else {
		c.Default = strPtr(CurrentTimestamp)
	}
}

// CheckExpr builds a check expression over a backtick-quoted column
func CheckExpr(column, op string) string {
	return fmt.Sprintf("`%s` %s", column, op)
}

func strPtr(s string) *string {
	return &s
}
