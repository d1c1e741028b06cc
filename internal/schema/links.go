package schema

import (
	"fmt"
	"strings"
)

// ForeignKey is a foreign-key column resolved against the schema.
// Problem is empty when the reference can be emitted as a constraint.
type ForeignKey struct {
	Table     *Table
	Column    *Column
	RefTable  *Table
	RefColumn *Column
	Problem   string
}

// Valid reports whether the foreign key resolves to a usable target
func (fk ForeignKey) Valid() bool {
	return fk.Problem == ""
}

// ResolveForeignKeys resolves every foreign-key column in table order
func (s *Schema) ResolveForeignKeys() []ForeignKey {
	var links []ForeignKey
	for _, t := range s.tables {
		links = append(links, s.ResolveTableForeignKeys(t)...)
	}
	return links
}

// ResolveTableForeignKeys resolves the foreign-key columns of one table
func (s *Schema) ResolveTableForeignKeys(t *Table) []ForeignKey {
	var links []ForeignKey
	for _, c := range t.ForeignKeys() {
		links = append(links, s.resolve(t, c))
	}
	return links
}

func (s *Schema) resolve(t *Table, c *Column) ForeignKey {
	fk := ForeignKey{Table: t, Column: c}

	ref := c.References
	if ref == nil || ref.Table == "" || ref.Column == "" {
		fk.Problem = "foreign key has no complete reference"
		return fk
	}

	target := s.Table(ref.Table)
	if target == nil {
		fk.Problem = fmt.Sprintf("references unknown table %s", ref.Table)
		return fk
	}
	fk.RefTable = target

	if target == t {
		fk.Problem = "references its own table"
		return fk
	}

	targetCol := target.Column(ref.Column)
	if targetCol == nil {
		fk.Problem = fmt.Sprintf("references unknown column %s.%s", target.CleanName, ref.Column)
		return fk
	}
	fk.RefColumn = targetCol

	if !targetCol.PrimaryKey && !targetCol.Unique {
		fk.Problem = fmt.Sprintf("referenced column %s.%s is neither a primary key nor unique",
			target.CleanName, targetCol.CleanName)
	}

	return fk
}

// RefTableName returns the physical name of the referenced table, falling
// back to the cleaned declared name when the table does not exist.
func (fk ForeignKey) RefTableName() string {
	if fk.RefTable != nil {
		return fk.RefTable.CleanName
	}
	if fk.Column.References == nil {
		return ""
	}
	return CleanName(fk.Column.References.Table)
}

// RefColumnName returns the physical name of the referenced column
func (fk ForeignKey) RefColumnName() string {
	if fk.RefColumn != nil {
		return fk.RefColumn.CleanName
	}
	if fk.Column.References == nil {
		return ""
	}
	return CleanName(fk.Column.References.Column)
}

// IsAuditColumn reports whether a cleaned name is one of the audit columns
func IsAuditColumn(cleanName string) bool {
	name := strings.ToLower(cleanName)
	return name == AuditCreatedAt || name == AuditUpdatedAt
}

// Audit column names
const (
	AuditCreatedAt = "created_at"
	AuditUpdatedAt = "updated_at"
)
