package schema

import "strings"

// Schema represents a physical data model derived from column metadata.
// Tables keep their insertion order; lookups are case-insensitive.
type Schema struct {
	ID     string
	tables []*Table
	index  map[string]*Table
}

// Table represents a database table
type Table struct {
	Name        string // as declared in the metadata
	CleanName   string
	Description string
	Columns     []*Column
}

// Column represents a table column together with its refinement annotations
type Column struct {
	Name        string // as declared in the metadata
	CleanName   string
	DataType    string // logical type from the metadata
	PrimaryKey  bool
	ForeignKey  bool
	Nullable    bool
	Unique      bool
	Default     *string
	References  *Reference
	Description string

	// Set by the refiner
	ExactType     string
	Check         string
	AutoIncrement bool
	Enhanced      bool
	System        bool // appended by the refiner, not present in the metadata
}

// Reference is the target of a foreign key
type Reference struct {
	Table  string
	Column string
}

// New creates an empty schema
func New(id string) *Schema {
	return &Schema{
		ID:    id,
		index: make(map[string]*Table),
	}
}

// AddTable appends a table. It returns false when a table with the same
// name (compared case-insensitively) already exists.
func (s *Schema) AddTable(t *Table) bool {
	key := strings.ToLower(t.Name)
	if _, exists := s.index[key]; exists {
		return false
	}
	s.index[key] = t
	s.tables = append(s.tables, t)
	return true
}

// Table looks up a table by declared or cleaned name, case-insensitively
func (s *Schema) Table(name string) *Table {
	if t, ok := s.index[strings.ToLower(name)]; ok {
		return t
	}
	for _, t := range s.tables {
		if strings.EqualFold(t.CleanName, name) {
			return t
		}
	}
	return nil
}

// Tables returns the tables in insertion order
func (s *Schema) Tables() []*Table {
	return s.tables
}

// TableCount returns the number of tables
func (s *Schema) TableCount() int {
	return len(s.tables)
}

// TotalColumns returns the number of columns across all tables
func (s *Schema) TotalColumns() int {
	total := 0
	for _, t := range s.tables {
		total += len(t.Columns)
	}
	return total
}

// Column looks up a column by declared or cleaned name, case-insensitively
func (t *Table) Column(name string) *Column {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) || strings.EqualFold(c.CleanName, name) {
			return c
		}
	}
	return nil
}

// PrimaryKeys returns the primary-key columns in declaration order
func (t *Table) PrimaryKeys() []*Column {
	var pks []*Column
	for _, c := range t.Columns {
		if c.PrimaryKey {
			pks = append(pks, c)
		}
	}
	return pks
}

// ForeignKeys returns the foreign-key columns in declaration order
func (t *Table) ForeignKeys() []*Column {
	var fks []*Column
	for _, c := range t.Columns {
		if c.ForeignKey {
			fks = append(fks, c)
		}
	}
	return fks
}
