package formatter

import (
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/tordrt/physgen/internal/ledger"
)

// RunsFormatter renders ledger history as a terminal table
type RunsFormatter struct {
	writer io.Writer
}

// NewRunsFormatter creates a new runs formatter
func NewRunsFormatter(w io.Writer) *RunsFormatter {
	return &RunsFormatter{writer: w}
}

// Format writes one row per run, newest first as given
func (f *RunsFormatter) Format(fileID string, runs []ledger.Run) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintf(f.writer, "No runs recorded for %s\n", fileID)
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(f.writer)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Run", "Started", "Duration", "Status", "OK", "Skipped", "Failed", "Warnings"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})

	for _, r := range runs {
		t.AppendRow(table.Row{
			r.ID,
			r.StartedAt.UTC().Format("2006-01-02 15:04:05"),
			r.FinishedAt.Sub(r.StartedAt).String(),
			string(r.Status),
			strconv.Itoa(r.OK),
			strconv.Itoa(r.Skipped),
			strconv.Itoa(r.Failed),
			strconv.Itoa(len(r.Warnings)),
		})
	}
	t.Render()
	return nil
}
