package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/tordrt/physgen/internal/report"
)

var version = "dev"

// errRunFailed signals a failed run whose details were already printed
var errRunFailed = errors.New("run failed")

type cli struct {
	cfgFile string
	format  string
	limit   int
	stdout  io.Writer
	stderr  io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "physgen",
		Short: "Generate a MySQL physical model from table metadata",
		Long: `physgen turns a normalized metadata document into a MySQL DDL script, a Mermaid ER
diagram and JSON lineage, impact and insight reports, refining column types and
constraints with heuristics and an optional LLM pass.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVarP(&c.cfgFile, "config", "c", "", "Config file (default: physgen.yaml in the working directory)")
	root.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().String("log-format", "", "Log format: console or json")

	root.AddCommand(c.generateCmd(), c.runsCmd(), c.versionCmd())
	return root
}

func (c *cli) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "physgen %s\n", version)
		},
	}
}

// exitCode maps the outcome of a command to a process exit status
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}

// reportsFailed reports whether any run produced nothing usable
func reportsFailed(reports []*report.Report) bool {
	for _, rep := range reports {
		if rep == nil || !rep.Succeeded() {
			return true
		}
	}
	return false
}

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)

	err := root.Execute()
	if err != nil && !errors.Is(err, errRunFailed) {
		_, _ = fmt.Fprintf(stderr, "error: %v\n", err)
	}
	return exitCode(err)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
