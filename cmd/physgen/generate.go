package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tordrt/physgen"
	"github.com/tordrt/physgen/internal/config"
	"github.com/tordrt/physgen/internal/formatter"
	"github.com/tordrt/physgen/internal/ledger"
	"github.com/tordrt/physgen/internal/llm"
	"github.com/tordrt/physgen/internal/logging"
	"github.com/tordrt/physgen/internal/report"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func (c *cli) generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <fileId> [fileId...]",
		Short: "Generate physical artifacts for one or more file ids",
		Long: `Reads <input-dir>/<fileId>/metadata.json and writes the physical model to
<output-dir>/<fileId>/physical/. Existing artifacts are kept unless --force is set.`,
		Args: cobra.MinimumNArgs(1),
		RunE: c.runGenerate,
	}

	flags := cmd.Flags()
	flags.StringP("input-dir", "i", "", "Directory holding <fileId>/metadata.json (default: artifacts)")
	flags.StringP("output-dir", "o", "", "Artifact base directory (default: artifacts)")
	flags.BoolP("force", "f", false, "Regenerate artifacts that already exist")
	flags.Bool("generate-sql", true, "Write mysql.sql")
	flags.Bool("generate-erd", true, "Write erd_mysql.mmd")
	flags.String("ledger-url", "", "Record runs in sqlite://, mysql:// or postgres:// ledger")
	flags.IntP("concurrency", "j", 1, "File ids processed in parallel")
	flags.Bool("llm", false, "Enable LLM refinement")
	flags.String("llm-model", "", "LLM model name")
	flags.Duration("llm-timeout", 0, "LLM call timeout (default: 30s)")
	flags.StringVar(&c.format, "format", "text", "Report format: text or markdown")

	return cmd
}

func (c *cli) runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(c.cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	render, err := c.reportRenderer()
	if err != nil {
		return err
	}

	logger, err := logging.NewWithWriter(cfg.LogLevel, cfg.LogFormat, c.stderr)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := &physgen.Options{
		InputDir:        cfg.InputDir,
		OutputDir:       cfg.OutputDir,
		Force:           cfg.Force,
		SkipSQL:         !cfg.GenerateSQL,
		SkipERD:         !cfg.GenerateERD,
		RequiredNotNull: cfg.Refiner.RequiredNotNull,
		LLMTimeout:      cfg.LLM.Timeout,
		Logger:          logger,
	}

	if cfg.LLM.Enabled {
		client, err := llm.NewOpenAI(llm.OpenAIConfig{
			APIKey:     cfg.LLM.APIKey,
			BaseURL:    cfg.LLM.BaseURL,
			Model:      cfg.LLM.Model,
			MaxRetries: cfg.LLM.MaxRetries,
		})
		if err != nil {
			return fmt.Errorf("failed to create LLM client: %w", err)
		}
		opts.Prompter = client
	}

	if cfg.LedgerURL != "" {
		store, err := ledger.Open(ctx, cfg.LedgerURL, logger)
		if err != nil {
			return fmt.Errorf("failed to open ledger: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Warn("failed to close ledger", zap.Error(err))
			}
		}()
		opts.Ledger = store
	}

	reports, err := generateAll(ctx, args, cfg.Concurrency, opts)
	for _, rep := range reports {
		if rep == nil {
			continue
		}
		if rerr := render(rep); rerr != nil {
			err = multierr.Append(err, rerr)
		}
	}
	if err != nil {
		return err
	}
	if reportsFailed(reports) {
		return errRunFailed
	}
	return nil
}

// generateAll runs the file ids with bounded concurrency. Load errors are
// combined; the report slice is indexed like fileIDs.
func generateAll(ctx context.Context, fileIDs []string, concurrency int, opts *physgen.Options) ([]*report.Report, error) {
	reports := make([]*report.Report, len(fileIDs))
	errs := make([]error, len(fileIDs))

	var g errgroup.Group
	if concurrency < 1 {
		concurrency = 1
	}
	g.SetLimit(concurrency)

	for i, id := range fileIDs {
		g.Go(func() error {
			rep, err := physgen.Generate(ctx, id, opts)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", id, err)
				return nil
			}
			reports[i] = rep
			return nil
		})
	}
	_ = g.Wait()

	return reports, multierr.Combine(errs...)
}

func (c *cli) reportRenderer() (func(*report.Report) error, error) {
	switch c.format {
	case "text":
		return formatter.NewTextFormatter(c.stdout).Format, nil
	case "markdown":
		return formatter.NewMarkdownFormatter(c.stdout).Format, nil
	default:
		return nil, fmt.Errorf("invalid format: %s (must be 'text' or 'markdown')", c.format)
	}
}
