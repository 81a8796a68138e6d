// Package cmd implements the a11ycrawl command-line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates the root command and attaches subcommands.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "a11ycrawl",
		Short: "Crawl a website and audit every page for accessibility issues.",
		Long: `a11ycrawl walks a single site breadth-first from a start URL, runs an
accessibility analyzer against every page it reaches, and writes a JSON and
Markdown report summarizing the errors, warnings and notices found.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML)")
	cmd.AddCommand(newCrawlCmd())
	return cmd
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "a11ycrawl:", err)
		os.Exit(1)
	}
}
