package formatter

import (
	"fmt"
	"io"
	"strings"

	"github.com/tordrt/physgen/internal/schema"
)

var mermaidType = strings.NewReplacer("(", "_", ")", "", ",", "_", " ", "_")

// MermaidFormatter writes a refined schema as a Mermaid erDiagram
type MermaidFormatter struct {
	writer io.Writer
}

// NewMermaidFormatter creates a new Mermaid ERD formatter
func NewMermaidFormatter(w io.Writer) *MermaidFormatter {
	return &MermaidFormatter{writer: w}
}

// Format writes one entity per table followed by one relationship per
// emitted foreign key
func (f *MermaidFormatter) Format(s *schema.Schema) error {
	var b strings.Builder
	b.WriteString("erDiagram\n")

	for _, t := range s.Tables() {
		fmt.Fprintf(&b, "\n    %s {\n", entityName(t.CleanName))
		for _, c := range t.Columns {
			fmt.Fprintf(&b, "        %s\n", mermaidColumn(c))
		}
		b.WriteString("    }\n")
	}

	links := validLinks(s)
	if len(links) > 0 {
		b.WriteString("\n")
	}
	for _, fk := range links {
		action := strings.TrimSuffix(ReferentialAction(fk.Table.CleanName), " ON UPDATE CASCADE")
		fmt.Fprintf(&b, "    %s ||--o{ %s : \"FK, %s\"\n",
			entityName(fk.RefTable.CleanName), entityName(fk.Table.CleanName), action)
	}

	_, err := io.WriteString(f.writer, b.String())
	return err
}

func mermaidColumn(c *schema.Column) string {
	line := mermaidType.Replace(c.ExactType) + " " + c.CleanName

	var keys []string
	if c.PrimaryKey {
		keys = append(keys, "PK")
	}
	if c.ForeignKey {
		keys = append(keys, "FK")
	}
	if len(keys) > 0 {
		line += " " + strings.Join(keys, ", ")
	}

	var constraints []string
	if c.AutoIncrement {
		constraints = append(constraints, "AUTO_INCREMENT")
	}
	if !c.Nullable {
		constraints = append(constraints, "NOT NULL")
	}
	if c.Unique {
		constraints = append(constraints, "UNIQUE")
	}
	if c.Default != nil {
		constraints = append(constraints, "DEFAULT "+strings.ReplaceAll(*c.Default, `"`, `'`))
	}
	if c.ForeignKey {
		constraints = append(constraints, "INDEX")
	}
	if len(constraints) > 0 {
		line += fmt.Sprintf(" \"%s\"", strings.Join(constraints, ", "))
	}
	return line
}

func entityName(name string) string {
	return strings.ToUpper(name)
}
