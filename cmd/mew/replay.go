package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mewdb/mew/internal/mewui"
	"github.com/mewdb/mew/internal/store"
	"github.com/mewdb/mew/internal/wal"
)

var schemaFlag string

var replayCmd = &cobra.Command{
	Use:   "replay <wal-file>",
	Short: "Replay a journal and report recovery stats",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&schemaFlag, "schema", "", "TOML schema file describing the journal's types/edge types (required)")
}

func runReplay(cmd *cobra.Command, args []string) error {
	path := args[0]
	if schemaFlag == "" {
		return fmt.Errorf("replay: --schema is required")
	}

	reg, err := loadRegistry(schemaFlag)
	if err != nil {
		return err
	}

	w, err := wal.Open(path)
	if err != nil {
		return fmt.Errorf("replay: opening %s: %w", path, err)
	}
	defer w.Close()

	records, err := w.Records()
	if err != nil {
		return fmt.Errorf("replay: reading records: %w", err)
	}

	bar := mewui.NewProgressBar(cmd.ErrOrStderr(), len(records), fmt.Sprintf("replaying %s", path))

	start := time.Now()
	g := store.New()
	stats, err := wal.Replay(w, g, reg)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	_ = bar.Add(len(records))
	elapsed := time.Since(start)

	if info, statErr := os.Stat(path); statErr == nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "replayed %s in %s\n", humanize.Bytes(uint64(info.Size())), elapsed)
	}

	return printResult(cmd, stats)
}

func printResult(cmd *cobra.Command, v any) error {
	switch formatFlag {
	case "yaml":
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		defer enc.Close()
		return enc.Encode(v)
	default:
		return printJSON(cmd, v)
	}
}
