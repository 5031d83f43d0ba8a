// Command mew is a small, non-interactive operations tool for the
// engine's durable state: journal replay, checkpointing, and a metrics
// endpoint. The lexer, parser, and any interactive REPL are external
// collaborators and out of scope here, matching cmd/bd's
// command-per-file cobra layout (SPEC_FULL.md §A.6).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	formatFlag string
)

var rootCmd = &cobra.Command{
	Use:   "mew",
	Short: "mew - operations tool for a mew engine's durable journal",
	Long:  `mew replays, checkpoints, and reports on a mew engine's write-ahead journal.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&formatFlag, "format", "json", "output format: json or yaml")
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(checkpointCmd)
	rootCmd.AddCommand(diagnosticsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
