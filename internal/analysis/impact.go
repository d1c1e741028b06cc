package analysis

import (
	"github.com/tordrt/physgen/internal/graph"
	"github.com/tordrt/physgen/internal/ordered"
)

// Impact is the per-table drop safety report. Dependencies may name
// referenced tables that do not exist in the schema; those names are listed
// in Placeholders and have no entry in Tables.
type Impact struct {
	FileID       string                     `json:"fileId"`
	Tables       *ordered.Map[*TableImpact] `json:"tables"`
	Placeholders []string                   `json:"placeholders"`
}

// TableImpact reports the dependency exposure of one table
type TableImpact struct {
	Dependencies  []string `json:"dependencies"`
	Dependents    []string `json:"dependents"`
	CanSafelyDrop bool     `json:"canSafelyDrop"`
}

// BuildImpact projects the graph onto drop safety
func BuildImpact(fileID string, g *graph.Graph) *Impact {
	im := &Impact{FileID: fileID, Tables: ordered.NewMap[*TableImpact](), Placeholders: []string{}}

	for _, name := range g.Tables.Keys() {
		node, _ := g.Node(name)
		if node.Placeholder {
			im.Placeholders = append(im.Placeholders, name)
			continue
		}
		im.Tables.Set(name, &TableImpact{
			Dependencies:  node.Dependencies,
			Dependents:    node.Dependents,
			CanSafelyDrop: len(node.Dependencies) == 0 && len(node.Dependents) == 0,
		})
	}

	return im
}
