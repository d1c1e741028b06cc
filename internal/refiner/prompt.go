package refiner

import (
	"fmt"
	"strings"

	"github.com/tordrt/physgen/internal/schema"
)

const promptHeader = `Refine the MySQL physical model below.
Allowed exactType families: INT, BIGINT, SMALLINT, TINYINT, VARCHAR(n), DECIMAL(p,s), DATE, DATETIME, TIMESTAMP, BOOLEAN.
Allowed defaults: quoted string, number, TRUE, FALSE, CURRENT_TIMESTAMP, CURRENT_DATE, CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP.
checkConstraint must be a bare expression without the CHECK keyword.
Answer with JSON only:
{"tables": {"<table>": {"<column>": {"exactType": "", "nullable": false, "unique": false, "default": null, "checkConstraint": null, "autoIncrement": false, "cleanName": ""}}}}

`

// BuildPrompt describes every table and column with its current flags
func BuildPrompt(s *schema.Schema) string {
	var b strings.Builder
	b.WriteString(promptHeader)

	for _, t := range s.Tables() {
		fmt.Fprintf(&b, "TABLE %s", t.CleanName)
		if t.Description != "" {
			fmt.Fprintf(&b, " -- %s", oneLine(t.Description))
		}
		b.WriteString("\n")

		for _, c := range t.Columns {
			fmt.Fprintf(&b, "  %s %s", c.CleanName, orDash(c.DataType))
			if c.ExactType != "" {
				fmt.Fprintf(&b, " current=%s", c.ExactType)
			}
			flags := columnFlags(c)
			if len(flags) > 0 {
				fmt.Fprintf(&b, " [%s]", strings.Join(flags, ","))
			}
			if c.References != nil {
				fmt.Fprintf(&b, " -> %s.%s", c.References.Table, c.References.Column)
			}
			if c.Description != "" {
				fmt.Fprintf(&b, " -- %s", oneLine(c.Description))
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

func columnFlags(c *schema.Column) []string {
	var flags []string
	if c.PrimaryKey {
		flags = append(flags, "PK")
	}
	if c.ForeignKey {
		flags = append(flags, "FK")
	}
	if c.Nullable {
		flags = append(flags, "NULL")
	} else {
		flags = append(flags, "NOT NULL")
	}
	if c.Unique {
		flags = append(flags, "UNIQUE")
	}
	if c.System {
		flags = append(flags, "SYSTEM")
	}
	return flags
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
