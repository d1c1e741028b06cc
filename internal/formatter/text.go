package formatter

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/tordrt/physgen/internal/report"
)

// TextFormatter renders a run report as a terminal table
type TextFormatter struct {
	writer io.Writer
}

// NewTextFormatter creates a new text formatter
func NewTextFormatter(w io.Writer) *TextFormatter {
	return &TextFormatter{writer: w}
}

// Format writes the report
func (f *TextFormatter) Format(r *report.Report) error {
	_, _ = fmt.Fprintf(f.writer, "Run %s for %s\n", r.RunID, r.FileID)

	t := table.NewWriter()
	t.SetOutputMirror(f.writer)
	style := table.StyleLight
	style.Format.Footer = text.FormatDefault
	t.SetStyle(style)
	t.AppendHeader(table.Row{"Step", "Status", "Artifact", "Size", "Modified", "Detail"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
	})

	for _, s := range r.Steps {
		t.AppendRow(table.Row{s.Step, string(s.Status), s.Artifact, sizeCell(s), modifiedCell(s), detail(s)})
	}

	counts := r.Counts()
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d ok / %d skipped / %d failed",
		counts[report.StatusOK], counts[report.StatusSkipped], counts[report.StatusFailed])})
	t.Render()

	for _, w := range r.Warnings {
		_, _ = fmt.Fprintf(f.writer, "warning: %s\n", w)
	}
	return nil
}

func sizeCell(s report.StepResult) string {
	if s.Artifact == "" || s.Status == report.StatusFailed {
		return ""
	}
	return humanize.Bytes(uint64(s.Size))
}

func modifiedCell(s report.StepResult) string {
	if s.Modified.IsZero() {
		return ""
	}
	return s.Modified.UTC().Format("2006-01-02 15:04:05")
}

func detail(s report.StepResult) string {
	if s.Error != "" {
		return s.Error
	}
	return s.Reason
}
