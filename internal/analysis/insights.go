package analysis

import (
	"fmt"
	"strings"

	"github.com/tordrt/physgen/internal/graph"
	"github.com/tordrt/physgen/internal/ordered"
	"github.com/tordrt/physgen/internal/schema"
)

// Issue types
const (
	IssuePrimaryKey = "pk"
	IssueAudit      = "audit"
	IssueType       = "type"
	IssueReference  = "ref"
)

// Insights is the rule-based quality report
type Insights struct {
	FileID  string                        `json:"fileId"`
	Summary Summary                       `json:"summary"`
	Tables  *ordered.Map[*TableChecklist] `json:"tables"`
	Issues  []Issue                       `json:"issues"`
}

// Summary holds the report totals
type Summary struct {
	TableCount      int `json:"tableCount"`
	ColumnCount     int `json:"columnCount"`
	ForeignKeyCount int `json:"foreignKeyCount"`
	IssueCount      int `json:"issueCount"`
}

// TableChecklist holds the per-table flags
type TableChecklist struct {
	PrimaryKey      []string `json:"primaryKey"`
	HasPrimaryKey   bool     `json:"hasPrimaryKey"`
	HasAuditColumns bool     `json:"hasAuditColumns"`
	FkCount         int      `json:"fkCount"`
	IncomingFkCount int      `json:"incomingFkCount"`
	IssueCount      int      `json:"issueCount"`
}

// Issue is one rule violation
type Issue struct {
	Table   string `json:"table"`
	Column  string `json:"column,omitempty"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Rule inspects one table
type Rule struct {
	Name  string
	Check func(t *schema.Table, links []schema.ForeignKey) []Issue
}

// Rules is the ordered rule registry
var Rules = []Rule{
	{Name: "primary-key", Check: checkPrimaryKey},
	{Name: "audit-columns", Check: checkAuditColumns},
	{Name: "monetary-type", Check: checkMonetaryType},
	{Name: "quantity-type", Check: checkQuantityType},
	{Name: "references", Check: checkReferences},
}

var monetaryColumns = map[string]bool{"price": true, "amount": true, "total": true, "cost": true}

// BuildInsights runs every rule over the refined schema
func BuildInsights(s *schema.Schema, g *graph.Graph) *Insights {
	in := &Insights{
		FileID: s.ID,
		Tables: ordered.NewMap[*TableChecklist](),
		Issues: []Issue{},
	}

	for _, t := range s.Tables() {
		links := s.ResolveTableForeignKeys(t)

		pk := []string{}
		for _, c := range t.PrimaryKeys() {
			pk = append(pk, c.CleanName)
		}

		var issues []Issue
		for _, rule := range Rules {
			issues = append(issues, rule.Check(t, links)...)
		}

		in.Tables.Set(t.CleanName, &TableChecklist{
			PrimaryKey:      pk,
			HasPrimaryKey:   len(pk) > 0,
			HasAuditColumns: t.Column(schema.AuditCreatedAt) != nil && t.Column(schema.AuditUpdatedAt) != nil,
			FkCount:         len(g.EdgesFrom(t.CleanName)),
			IncomingFkCount: len(g.EdgesTo(t.CleanName)),
			IssueCount:      len(issues),
		})
		in.Issues = append(in.Issues, issues...)
	}

	in.Summary = Summary{
		TableCount:      s.TableCount(),
		ColumnCount:     s.TotalColumns(),
		ForeignKeyCount: len(g.ForeignKeys),
		IssueCount:      len(in.Issues),
	}

	return in
}

func checkPrimaryKey(t *schema.Table, _ []schema.ForeignKey) []Issue {
	switch n := len(t.PrimaryKeys()); n {
	case 1:
		return nil
	case 0:
		return []Issue{{Table: t.CleanName, Type: IssuePrimaryKey, Message: "table has no primary key"}}
	default:
		return []Issue{{Table: t.CleanName, Type: IssuePrimaryKey,
			Message: fmt.Sprintf("table has a composite primary key of %d columns", n)}}
	}
}

func checkAuditColumns(t *schema.Table, _ []schema.ForeignKey) []Issue {
	var issues []Issue
	for _, name := range []string{schema.AuditCreatedAt, schema.AuditUpdatedAt} {
		if t.Column(name) == nil {
			issues = append(issues, Issue{Table: t.CleanName, Column: name, Type: IssueAudit,
				Message: fmt.Sprintf("missing audit column %s", name)})
		}
	}
	return issues
}

func checkMonetaryType(t *schema.Table, _ []schema.ForeignKey) []Issue {
	var issues []Issue
	for _, c := range t.Columns {
		if monetaryColumns[strings.ToLower(c.CleanName)] && !strings.HasPrefix(c.ExactType, "DECIMAL") {
			issues = append(issues, Issue{Table: t.CleanName, Column: c.CleanName, Type: IssueType,
				Message: fmt.Sprintf("monetary column should be DECIMAL, found %s", orNone(c.ExactType))})
		}
	}
	return issues
}

func checkQuantityType(t *schema.Table, _ []schema.ForeignKey) []Issue {
	var issues []Issue
	for _, c := range t.Columns {
		if strings.EqualFold(c.CleanName, "quantity") && !strings.HasPrefix(c.ExactType, "INT") {
			issues = append(issues, Issue{Table: t.CleanName, Column: c.CleanName, Type: IssueType,
				Message: fmt.Sprintf("quantity column should be INT, found %s", orNone(c.ExactType))})
		}
	}
	return issues
}

func checkReferences(t *schema.Table, links []schema.ForeignKey) []Issue {
	var issues []Issue
	for _, fk := range links {
		if !fk.Valid() {
			issues = append(issues, Issue{Table: t.CleanName, Column: fk.Column.CleanName, Type: IssueReference,
				Message: fk.Problem})
		}
	}
	return issues
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
