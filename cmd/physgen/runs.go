package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tordrt/physgen/internal/config"
	"github.com/tordrt/physgen/internal/formatter"
	"github.com/tordrt/physgen/internal/ledger"
	"github.com/tordrt/physgen/internal/logging"
)

func (c *cli) runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs <fileId>",
		Short: "List recorded runs of a file id",
		Args:  cobra.ExactArgs(1),
		RunE:  c.runRuns,
	}
	cmd.Flags().String("ledger-url", "", "Ledger to read (sqlite://, mysql:// or postgres://)")
	cmd.Flags().IntVarP(&c.limit, "limit", "n", ledger.DefaultLimit, "Maximum number of runs")
	return cmd
}

func (c *cli) runRuns(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(c.cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.LedgerURL == "" {
		return fmt.Errorf("no ledger configured (set --ledger-url or ledger_url)")
	}

	logger, err := logging.NewWithWriter(cfg.LogLevel, cfg.LogFormat, c.stderr)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	store, err := ledger.Open(cmd.Context(), cfg.LedgerURL, logger)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer func() { _ = store.Close() }()

	runs, err := store.Runs(cmd.Context(), args[0], c.limit)
	if err != nil {
		return err
	}
	return formatter.NewRunsFormatter(c.stdout).Format(args[0], runs)
}
