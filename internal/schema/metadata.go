package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Document is the normalized metadata document handed over by ingestion.
type Document struct {
	FileID       string   `json:"fileId"`
	OriginalName string   `json:"originalName,omitempty"`
	Metadata     Metadata `json:"metadata"`
}

// Metadata holds the per-table column rows
type Metadata struct {
	Tables TableList `json:"tables"`
}

// TableList keeps tables in the order they appear in the source object.
type TableList []TableMetadata

// TableMetadata describes one table of the metadata document
type TableMetadata struct {
	Name        string
	Description string
	Columns     []ColumnMetadata
}

// ColumnMetadata is one metadata row
type ColumnMetadata struct {
	ColumnName       string `json:"columnName"`
	DataType         string `json:"dataType,omitempty"`
	IsPrimaryKey     bool   `json:"isPrimaryKey,omitempty"`
	IsForeignKey     bool   `json:"isForeignKey,omitempty"`
	Nullable         *bool  `json:"nullable,omitempty"`
	IsUnique         bool   `json:"isUnique,omitempty"`
	DefaultValue     any    `json:"defaultValue,omitempty"`
	ReferencesTable  string `json:"referencesTable,omitempty"`
	ReferencesColumn string `json:"referencesColumn,omitempty"`
	Description      string `json:"description,omitempty"`
	SourceRow        *int   `json:"_sourceRow,omitempty"`
}

// Row is a metadata row with its resolved source position
type Row struct {
	Index  int
	Table  string
	Column ColumnMetadata
}

type tableBody struct {
	Description string           `json:"description,omitempty"`
	Columns     []ColumnMetadata `json:"columns"`
}

// UnmarshalJSON decodes the tables object while preserving key order.
func (l *TableList) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*l = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("tables must be a JSON object")
	}

	var tables TableList
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected table key %v", keyTok)
		}
		var body tableBody
		if err := dec.Decode(&body); err != nil {
			return fmt.Errorf("failed to decode table %s: %w", name, err)
		}
		tables = append(tables, TableMetadata{
			Name:        name,
			Description: body.Description,
			Columns:     body.Columns,
		})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*l = tables
	return nil
}

// MarshalJSON encodes the tables as an object in list order.
func (l TableList) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, t := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(t.Name)
		if err != nil {
			return nil, err
		}
		body, err := json.Marshal(tableBody{Description: t.Description, Columns: t.Columns})
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(body)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Rows flattens the document into metadata rows. The row index is the
// explicit _sourceRow when present, otherwise the 0-based position of the
// row in the document.
func (d *Document) Rows() []Row {
	var rows []Row
	pos := 0
	for _, t := range d.Metadata.Tables {
		for _, c := range t.Columns {
			idx := pos
			if c.SourceRow != nil {
				idx = *c.SourceRow
			}
			rows = append(rows, Row{Index: idx, Table: t.Name, Column: c})
			pos++
		}
	}
	return rows
}
