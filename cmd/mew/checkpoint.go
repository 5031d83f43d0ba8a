package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mewdb/mew/internal/wal"
)

var (
	archivePathFlag string
	maxSizeMBFlag   int
	maxBackupsFlag  int
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint <wal-file>",
	Short: "Archive and truncate a journal's fully-applied records",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckpoint,
}

func init() {
	checkpointCmd.Flags().StringVar(&archivePathFlag, "archive", "", "rotating archive file path (default: <wal-file>.archive)")
	checkpointCmd.Flags().IntVar(&maxSizeMBFlag, "max-size-mb", 100, "archive rotation size in MB")
	checkpointCmd.Flags().IntVar(&maxBackupsFlag, "max-backups", 5, "number of rotated archive segments to keep")
}

func runCheckpoint(cmd *cobra.Command, args []string) error {
	path := args[0]
	archivePath := archivePathFlag
	if archivePath == "" {
		archivePath = path + ".archive"
	}

	w, err := wal.Open(path)
	if err != nil {
		return fmt.Errorf("checkpoint: opening %s: %w", path, err)
	}
	defer w.Close()

	records, err := w.Records()
	if err != nil {
		return fmt.Errorf("checkpoint: reading records: %w", err)
	}
	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "journal is empty, nothing to checkpoint")
		return nil
	}
	upToLSN := records[len(records)-1].LSN

	cp := wal.NewCheckpointer(archivePath, maxSizeMBFlag, maxBackupsFlag)
	defer cp.Close()

	if err := cp.Archive(w, upToLSN); err != nil {
		return fmt.Errorf("checkpoint: archiving: %w", err)
	}

	return printResult(cmd, map[string]any{
		"archived_through_lsn": upToLSN,
		"records_archived":     len(records),
		"archive_path":         archivePath,
	})
}
