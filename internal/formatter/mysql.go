package formatter

import (
	"fmt"
	"hash/fnv"
	"io"
	"strings"
	"time"

	"github.com/tordrt/physgen/internal/schema"
)

// TableSuffix closes every CREATE TABLE statement
const TableSuffix = "ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci"

// MaxIdentifierLength is MySQL's limit for constraint and index names
const MaxIdentifierLength = 64

var cascadeMarkers = []string{"order_item", "orderitem", "item"}

// MySQLFormatter writes a refined schema as a MySQL DDL script
type MySQLFormatter struct {
	writer io.Writer
	now    func() time.Time
}

// NewMySQLFormatter creates a new MySQL DDL formatter
func NewMySQLFormatter(w io.Writer) *MySQLFormatter {
	return &MySQLFormatter{writer: w, now: time.Now}
}

// WithClock sets the clock used for the header timestamp
func (f *MySQLFormatter) WithClock(now func() time.Time) *MySQLFormatter {
	f.now = now
	return f
}

// Format writes the script. Output is deterministic apart from the
// generation timestamp in the header.
func (f *MySQLFormatter) Format(s *schema.Schema) error {
	var b strings.Builder

	b.WriteString("-- MySQL physical model\n")
	if s.ID != "" {
		fmt.Fprintf(&b, "-- Schema: %s\n", s.ID)
	}
	fmt.Fprintf(&b, "-- Generated: %s\n\n", f.now().UTC().Format(time.RFC3339))

	tables := s.Tables()

	b.WriteString("SET FOREIGN_KEY_CHECKS = 0;\n")
	for i := len(tables) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "DROP TABLE IF EXISTS %s;\n", quote(tables[i].CleanName))
	}
	b.WriteString("SET FOREIGN_KEY_CHECKS = 1;\n")

	for _, t := range tables {
		b.WriteString("\n")
		writeCreateTable(&b, t)
	}

	links := validLinks(s)
	if len(links) > 0 {
		b.WriteString("\n")
	}
	for _, fk := range links {
		fmt.Fprintf(&b, "ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s) %s;\n",
			quote(fk.Table.CleanName),
			quote(ConstraintName("fk", fk.Table.CleanName, fk.Column.CleanName)),
			quote(fk.Column.CleanName),
			quote(fk.RefTable.CleanName),
			quote(fk.RefColumn.CleanName),
			ReferentialAction(fk.Table.CleanName))
	}

	var indexes []string
	for _, fk := range links {
		indexes = append(indexes, fmt.Sprintf("CREATE INDEX %s ON %s (%s);",
			quote(ConstraintName("idx", fk.Table.CleanName, fk.Column.CleanName)),
			quote(fk.Table.CleanName),
			quote(fk.Column.CleanName)))
	}
	for _, t := range tables {
		for _, c := range t.Columns {
			if strings.EqualFold(c.CleanName, "email") && c.Unique {
				indexes = append(indexes, fmt.Sprintf("CREATE UNIQUE INDEX %s ON %s (%s);",
					quote(ConstraintName("uk", t.CleanName, "email")),
					quote(t.CleanName),
					quote(c.CleanName)))
			}
		}
	}
	if len(indexes) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.Join(indexes, "\n"))
		b.WriteString("\n")
	}

	_, err := io.WriteString(f.writer, b.String())
	return err
}

func writeCreateTable(b *strings.Builder, t *schema.Table) {
	fmt.Fprintf(b, "CREATE TABLE %s (\n", quote(t.CleanName))

	lines := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		lines = append(lines, "  "+ColumnDefinition(c))
	}
	if pks := t.PrimaryKeys(); len(pks) > 0 {
		names := make([]string, len(pks))
		for i, c := range pks {
			names[i] = quote(c.CleanName)
		}
		lines = append(lines, fmt.Sprintf("  PRIMARY KEY (%s)", strings.Join(names, ", ")))
	}

	b.WriteString(strings.Join(lines, ",\n"))
	fmt.Fprintf(b, "\n) %s;\n", TableSuffix)
}

// ColumnDefinition renders one column line without indentation
func ColumnDefinition(c *schema.Column) string {
	parts := []string{quote(c.CleanName), c.ExactType}
	if !c.Nullable {
		parts = append(parts, "NOT NULL")
	}
	if c.Unique {
		parts = append(parts, "UNIQUE")
	}
	if c.AutoIncrement {
		parts = append(parts, "AUTO_INCREMENT")
	}
	if c.Default != nil {
		parts = append(parts, "DEFAULT "+defaultLiteral(*c.Default))
	}
	if c.Check != "" {
		parts = append(parts, fmt.Sprintf("CHECK (%s)", c.Check))
	}
	return strings.Join(parts, " ")
}

// ReferentialAction returns the ON DELETE/ON UPDATE clause for a child table
func ReferentialAction(childTable string) string {
	name := strings.ToLower(childTable)
	for _, marker := range cascadeMarkers {
		if strings.Contains(name, marker) {
			return "ON DELETE CASCADE ON UPDATE CASCADE"
		}
	}
	return "ON DELETE RESTRICT ON UPDATE CASCADE"
}

// ConstraintName builds <prefix>_<table>_<column>. Names over the MySQL
// limit are truncated and suffixed with a hash of the full name.
func ConstraintName(prefix, table, column string) string {
	name := prefix + "_" + table + "_" + column
	if len(name) <= MaxIdentifierLength {
		return name
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	suffix := fmt.Sprintf("_%08x", h.Sum32())
	return name[:MaxIdentifierLength-len(suffix)] + suffix
}

func defaultLiteral(v string) string {
	if strings.EqualFold(v, "CURRENT_DATE") {
		return "(CURRENT_DATE)"
	}
	return v
}

// validLinks returns the foreign keys that can be emitted as constraints
func validLinks(s *schema.Schema) []schema.ForeignKey {
	var out []schema.ForeignKey
	for _, fk := range s.ResolveForeignKeys() {
		if fk.Valid() {
			out = append(out, fk)
		}
	}
	return out
}

func quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}
