package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

// ErrInvalidInput is wrapped by every InputError
var ErrInvalidInput = errors.New("invalid metadata input")

// InputError reports metadata that cannot be turned into a schema
type InputError struct {
	Table  string
	Column string
	Reason string
}

func (e *InputError) Error() string {
	switch {
	case e.Column != "":
		return fmt.Sprintf("%s: %s.%s: %s", ErrInvalidInput, e.Table, e.Column, e.Reason)
	case e.Table != "":
		return fmt.Sprintf("%s: table %s: %s", ErrInvalidInput, e.Table, e.Reason)
	default:
		return fmt.Sprintf("%s: %s", ErrInvalidInput, e.Reason)
	}
}

func (e *InputError) Unwrap() error {
	return ErrInvalidInput
}

// Build creates the in-memory schema from a metadata document.
// Only structural problems are rejected here; semantic checks belong to
// the refiner and the insight rules.
func Build(doc *Document) (*Schema, error) {
	if doc == nil {
		return nil, &InputError{Reason: "document is nil"}
	}
	if strings.TrimSpace(doc.FileID) == "" {
		return nil, &InputError{Reason: "fileId is required"}
	}
	if len(doc.Metadata.Tables) == 0 {
		return nil, &InputError{Reason: "metadata contains no tables"}
	}

	s := New(doc.FileID)
	cleaned := make(map[string]bool)
	for ti, tm := range doc.Metadata.Tables {
		if strings.TrimSpace(tm.Name) == "" {
			return nil, &InputError{Reason: fmt.Sprintf("table #%d has no name", ti+1)}
		}
		if len(tm.Columns) == 0 {
			return nil, &InputError{Table: tm.Name, Reason: "no columns"}
		}

		table := &Table{
			Name:        tm.Name,
			CleanName:   cleanOrFallback(tm.Name, "table", ti+1),
			Description: tm.Description,
		}

		seen := make(map[string]bool)
		for ci, cm := range tm.Columns {
			if strings.TrimSpace(cm.ColumnName) == "" {
				return nil, &InputError{Table: tm.Name, Reason: fmt.Sprintf("column #%d has no columnName", ci+1)}
			}
			col, err := buildColumn(cm, ci+1)
			if err != nil {
				return nil, &InputError{Table: tm.Name, Column: cm.ColumnName, Reason: err.Error()}
			}
			key := strings.ToLower(col.CleanName)
			if seen[key] {
				return nil, &InputError{Table: tm.Name, Column: cm.ColumnName, Reason: "duplicate column"}
			}
			seen[key] = true
			table.Columns = append(table.Columns, col)
		}

		if !s.AddTable(table) {
			return nil, &InputError{Table: tm.Name, Reason: "duplicate table"}
		}
		key := strings.ToLower(table.CleanName)
		if cleaned[key] {
			return nil, &InputError{Table: tm.Name, Reason: "duplicate table after cleaning"}
		}
		cleaned[key] = true
	}

	return s, nil
}

func buildColumn(cm ColumnMetadata, ordinal int) (*Column, error) {
	col := &Column{
		Name:        cm.ColumnName,
		CleanName:   cleanOrFallback(cm.ColumnName, "column", ordinal),
		DataType:    strings.TrimSpace(cm.DataType),
		PrimaryKey:  cm.IsPrimaryKey,
		ForeignKey:  cm.IsForeignKey,
		Nullable:    cm.Nullable != nil && *cm.Nullable,
		Unique:      cm.IsUnique,
		Description: cm.Description,
	}

	if cm.ReferencesTable != "" || cm.ReferencesColumn != "" {
		col.References = &Reference{
			Table:  strings.TrimSpace(cm.ReferencesTable),
			Column: strings.TrimSpace(cm.ReferencesColumn),
		}
	}

	if cm.DefaultValue != nil {
		v, err := cast.ToStringE(cm.DefaultValue)
		if err != nil {
			return nil, fmt.Errorf("unsupported defaultValue: %w", err)
		}
		if v != "" {
			col.Default = &v
		}
	}

	return col, nil
}

func cleanOrFallback(name, kind string, ordinal int) string {
	if cleaned := CleanName(name); cleaned != "" {
		return cleaned
	}
	return fmt.Sprintf("%s_%d", kind, ordinal)
}
