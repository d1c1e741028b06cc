// Package analysis computes the lineage, impact and insight documents of a
// refined schema.
package analysis

import (
	"strings"

	"github.com/tordrt/physgen/internal/ordered"
	"github.com/tordrt/physgen/internal/schema"
)

// Lineage origins
const (
	OriginSource  = "source_metadata"
	OriginSystem  = "system_generated"
	OriginUnknown = "unknown"
)

// Lineage maps every physical column back to its metadata row
type Lineage struct {
	FileID     string                      `json:"fileId"`
	SourceFile string                      `json:"sourceFile,omitempty"`
	Tables     *ordered.Map[*TableLineage] `json:"tables"`
}

// TableLineage holds the column records of one table
type TableLineage struct {
	PhysicalName string                       `json:"physicalName"`
	SourceTable  string                       `json:"sourceTable"`
	Columns      *ordered.Map[*ColumnLineage] `json:"columns"`
}

// ColumnLineage is the lineage record of one physical column
type ColumnLineage struct {
	PhysicalName   string `json:"physicalName"`
	PhysicalType   string `json:"physicalType"`
	Origin         string `json:"origin"`
	SourceRow      *int   `json:"sourceRow,omitempty"`
	SourceTable    string `json:"sourceTable,omitempty"`
	SourceColumn   string `json:"sourceColumn,omitempty"`
	SourceDataType string `json:"sourceDataType,omitempty"`
}

// BuildLineage resolves one record per column of the refined schema.
// Rows are matched on table and column name, case-insensitively; the first
// matching row wins.
func BuildLineage(s *schema.Schema, rows []schema.Row, sourceFile string) *Lineage {
	byName := make(map[string]schema.Row, len(rows))
	for _, row := range rows {
		key := rowKey(row.Table, row.Column.ColumnName)
		if _, exists := byName[key]; !exists {
			byName[key] = row
		}
	}

	l := &Lineage{
		FileID:     s.ID,
		SourceFile: sourceFile,
		Tables:     ordered.NewMap[*TableLineage](),
	}

	for _, t := range s.Tables() {
		tl := &TableLineage{
			PhysicalName: t.CleanName,
			SourceTable:  t.Name,
			Columns:      ordered.NewMap[*ColumnLineage](),
		}

		for _, c := range t.Columns {
			rec := &ColumnLineage{
				PhysicalName: c.CleanName,
				PhysicalType: c.ExactType,
				Origin:       OriginUnknown,
			}

			if row, ok := byName[rowKey(t.Name, c.Name)]; ok && !schema.IsAuditColumn(c.CleanName) {
				idx := row.Index
				rec.Origin = OriginSource
				rec.SourceRow = &idx
				rec.SourceTable = row.Table
				rec.SourceColumn = row.Column.ColumnName
				rec.SourceDataType = row.Column.DataType
			} else if schema.IsAuditColumn(c.CleanName) {
				rec.Origin = OriginSystem
			}

			tl.Columns.Set(c.CleanName, rec)
		}

		l.Tables.Set(t.CleanName, tl)
	}

	return l
}

func rowKey(table, column string) string {
	return strings.ToLower(table) + "\x00" + strings.ToLower(column)
}
