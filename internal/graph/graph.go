// Package graph derives the table dependency graph of a schema.
package graph

import (
	"github.com/tordrt/physgen/internal/ordered"
	"github.com/tordrt/physgen/internal/schema"
)

// Node is one table of the graph
type Node struct {
	Dependencies []string `json:"dependencies"`
	Dependents   []string `json:"dependents"`
	Columns      []string `json:"columns"`
	Placeholder  bool     `json:"placeholder,omitempty"`
}

// Edge is a declared foreign key. Problem is set when the reference cannot
// be emitted as a constraint.
type Edge struct {
	FromTable  string `json:"fromTable"`
	FromColumn string `json:"fromColumn"`
	ToTable    string `json:"toTable"`
	ToColumn   string `json:"toColumn"`
	Problem    string `json:"problem,omitempty"`
}

// Graph is the table-level dependency graph
type Graph struct {
	Tables      *ordered.Map[*Node] `json:"tables"`
	ForeignKeys []Edge              `json:"foreignKeys"`
}

// Build derives the graph from a refined schema. Nodes follow the schema's
// table order; tables referenced but not defined are appended as placeholder
// nodes. Self references appear as edges only.
func Build(s *schema.Schema) *Graph {
	g := &Graph{
		Tables:      ordered.NewMap[*Node](),
		ForeignKeys: []Edge{},
	}

	for _, t := range s.Tables() {
		cols := make([]string, 0, len(t.Columns))
		for _, c := range t.Columns {
			cols = append(cols, c.CleanName)
		}
		g.Tables.Set(t.CleanName, &Node{
			Dependencies: []string{},
			Dependents:   []string{},
			Columns:      cols,
		})
	}

	for _, fk := range s.ResolveForeignKeys() {
		to := fk.RefTableName()
		if to == "" {
			continue
		}
		from := fk.Table.CleanName

		g.ForeignKeys = append(g.ForeignKeys, Edge{
			FromTable:  from,
			FromColumn: fk.Column.CleanName,
			ToTable:    to,
			ToColumn:   fk.RefColumnName(),
			Problem:    fk.Problem,
		})

		target, ok := g.Tables.Get(to)
		if !ok {
			target = &Node{Dependencies: []string{}, Dependents: []string{}, Columns: []string{}, Placeholder: true}
			g.Tables.Set(to, target)
		}
		if to == from {
			continue
		}

		source, _ := g.Tables.Get(from)
		source.Dependencies = appendUnique(source.Dependencies, to)
		target.Dependents = appendUnique(target.Dependents, from)
	}

	return g
}

// Node returns the node for a table
func (g *Graph) Node(name string) (*Node, bool) {
	return g.Tables.Get(name)
}

// EdgesFrom returns the edges leaving a table in declaration order
func (g *Graph) EdgesFrom(table string) []Edge {
	var out []Edge
	for _, e := range g.ForeignKeys {
		if e.FromTable == table {
			out = append(out, e)
		}
	}
	return out
}

// EdgesTo returns the edges pointing at a table in declaration order
func (g *Graph) EdgesTo(table string) []Edge {
	var out []Edge
	for _, e := range g.ForeignKeys {
		if e.ToTable == table {
			out = append(out, e)
		}
	}
	return out
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
