package physgen

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tordrt/physgen/internal/artifact"
	"github.com/tordrt/physgen/internal/ledger"
	"github.com/tordrt/physgen/internal/llm/llmtest"
	"github.com/tordrt/physgen/internal/report"
)

func TestLoadDocument(t *testing.T) {
	doc, err := LoadDocument(DocumentPath("testdata", "sales"))
	if err != nil {
		t.Fatalf("LoadDocument failed: %v", err)
	}

	if doc.FileID != "sales" {
		t.Errorf("Expected fileId sales, got %s", doc.FileID)
	}
	if len(doc.Metadata.Tables) != 2 {
		t.Fatalf("Expected 2 tables, got %d", len(doc.Metadata.Tables))
	}
	// file order, not alphabetical
	if doc.Metadata.Tables[0].Name != "orders" || doc.Metadata.Tables[1].Name != "customers" {
		t.Errorf("Expected tables [orders customers], got [%s %s]",
			doc.Metadata.Tables[0].Name, doc.Metadata.Tables[1].Name)
	}

	if _, err := LoadDocument(filepath.Join("testdata", "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestGenerate(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		fileID     string
		wantErr    bool
		wantSteps  int
		wantFailed []string
	}{
		{
			name:      "complete document",
			fileID:    "sales",
			wantSteps: 8,
		},
		{
			name:       "document without tables",
			fileID:     "empty",
			wantSteps:  1,
			wantFailed: []string{"schema"},
		},
		{
			name:    "unknown file id",
			fileID:  "nope",
			wantErr: true,
		},
		{
			name:    "empty file id",
			fileID:  " ",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep, err := Generate(ctx, tt.fileID, &Options{InputDir: "testdata", OutputDir: t.TempDir()})
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			if len(rep.Steps) != tt.wantSteps {
				t.Errorf("Expected %d steps, got %d", tt.wantSteps, len(rep.Steps))
			}
			var failed []string
			for _, e := range rep.Errors() {
				failed = append(failed, e.Step)
			}
			if strings.Join(failed, ",") != strings.Join(tt.wantFailed, ",") {
				t.Errorf("Expected failed steps %v, got %v", tt.wantFailed, failed)
			}
		})
	}
}

func TestGenerateWritesArtifacts(t *testing.T) {
	out := t.TempDir()
	rep, err := Generate(context.Background(), "sales", &Options{InputDir: "testdata", OutputDir: out})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if rep.Err() != nil {
		t.Fatalf("Unexpected step errors: %v", rep.Err())
	}

	dir := artifact.Dir{Base: out, FileID: "sales"}
	ddl, err := os.ReadFile(dir.Path(artifact.DDLFile))
	if err != nil {
		t.Fatalf("Failed to read DDL: %v", err)
	}

	for _, want := range []string{
		"CREATE TABLE `orders`",
		"`order_date` DATE NOT NULL DEFAULT (CURRENT_DATE)",
		"`Full_Name` VARCHAR(255) NOT NULL",
		"`status` VARCHAR(255) DEFAULT 'active'",
		"`email` VARCHAR(255) NOT NULL UNIQUE",
		"CHECK (`total` >= 0)",
		"ADD CONSTRAINT `fk_orders_customer_id` FOREIGN KEY (`customer_id`) REFERENCES `customers` (`id`)",
		"CREATE UNIQUE INDEX `uk_customers_email`",
	} {
		if !strings.Contains(string(ddl), want) {
			t.Errorf("Expected DDL to contain %q", want)
		}
	}
	// constraints follow every CREATE TABLE
	if strings.Index(string(ddl), "CREATE TABLE `customers`") > strings.Index(string(ddl), "ALTER TABLE") {
		t.Error("Expected CREATE TABLE statements before ALTER TABLE")
	}

	lineage, err := os.ReadFile(dir.Path(artifact.LineageFile))
	if err != nil {
		t.Fatalf("Failed to read lineage: %v", err)
	}
	if !strings.Contains(string(lineage), `"sourceRow": 7`) {
		t.Error("Expected lineage to carry _sourceRow values")
	}
}

func TestGenerateIdempotent(t *testing.T) {
	out := t.TempDir()
	opts := &Options{InputDir: "testdata", OutputDir: out}

	if _, err := Generate(context.Background(), "sales", opts); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	rep, err := Generate(context.Background(), "sales", opts)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if got := rep.Counts()[report.StatusSkipped]; got != 5 {
		t.Errorf("Expected 5 skipped artifact steps, got %d", got)
	}
	if !rep.Succeeded() {
		t.Error("Expected rerun to count as succeeded")
	}
}

func TestGenerateLLMUnavailable(t *testing.T) {
	rep, err := Generate(context.Background(), "sales", &Options{
		InputDir:  "testdata",
		OutputDir: t.TempDir(),
		Prompter:  &llmtest.Static{Err: errors.New("503 service unavailable")},
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if rep.Err() != nil {
		t.Errorf("Expected no step errors, got %v", rep.Err())
	}
	if len(rep.Warnings) != 1 || !strings.Contains(rep.Warnings[0], "503") {
		t.Errorf("Expected one LLM warning, got %v", rep.Warnings)
	}
}

func TestGenerateRecordsLedger(t *testing.T) {
	ctx := context.Background()
	store, err := ledger.Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "ledger.db"), nil)
	if err != nil {
		t.Fatalf("Failed to open ledger: %v", err)
	}
	defer store.Close()

	rep, err := Generate(ctx, "sales", &Options{InputDir: "testdata", OutputDir: t.TempDir(), Ledger: store})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	runs, err := store.Runs(ctx, "sales", 0)
	if err != nil {
		t.Fatalf("Failed to list runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != rep.RunID {
		t.Fatalf("Expected run %s in ledger, got %+v", rep.RunID, runs)
	}
	if runs[0].Status != ledger.RunSucceeded || runs[0].OK != 8 {
		t.Errorf("Expected succeeded run with 8 ok steps, got %s/%d", runs[0].Status, runs[0].OK)
	}
}
