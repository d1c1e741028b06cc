package formatter

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tordrt/physgen/internal/report"
)

// MarkdownFormatter renders a run report as markdown
type MarkdownFormatter struct {
	writer io.Writer
}

// NewMarkdownFormatter creates a new markdown formatter
func NewMarkdownFormatter(w io.Writer) *MarkdownFormatter {
	return &MarkdownFormatter{writer: w}
}

// Format writes the report
func (f *MarkdownFormatter) Format(r *report.Report) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# Physical model run `%s`\n\n", r.FileID)
	fmt.Fprintf(&b, "- **Run:** %s\n", r.RunID)
	if !r.StartedAt.IsZero() {
		fmt.Fprintf(&b, "- **Started:** %s\n", r.StartedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	}
	if !r.FinishedAt.IsZero() && !r.StartedAt.IsZero() {
		fmt.Fprintf(&b, "- **Duration:** %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
	b.WriteString("\n## Steps\n\n")
	b.WriteString("| Step | Status | Artifact | Size | Detail |\n")
	b.WriteString("|------|--------|----------|------|--------|\n")

	for _, s := range r.Steps {
		artifact := ""
		if s.Artifact != "" {
			artifact = "`" + s.Artifact + "`"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			s.Step, statusBadge(s.Status), artifact, byteCount(s), escapePipes(detail(s)))
	}

	if len(r.Warnings) > 0 {
		b.WriteString("\n## Warnings\n\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}

	_, err := io.WriteString(f.writer, b.String())
	return err
}

func statusBadge(s report.Status) string {
	switch s {
	case report.StatusOK:
		return "✓ ok"
	case report.StatusFailed:
		return "✗ failed"
	default:
		return "– " + string(s)
	}
}

func byteCount(s report.StepResult) string {
	if s.Artifact == "" || s.Status == report.StatusFailed {
		return ""
	}
	return fmt.Sprintf("%d", s.Size)
}

func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
