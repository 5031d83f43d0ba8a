package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/mewdb/mew/internal/wal"
)

func TestRunReplayPrintsStats(t *testing.T) {
	dir := t.TempDir()
	journalPath := filepath.Join(dir, "journal.db")

	w, err := wal.Open(journalPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Append("txn-1", "BEGIN", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Append("txn-1", "SPAWN", wal.SpawnPayload{Type: "Issue", OldNodeID: 1, Attrs: nil}); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Append("txn-1", "COMMIT", nil); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	schemaPath := writeSchema(t, "[[types]]\nid = 1\nname = \"Issue\"\n")

	schemaFlag = schemaPath
	formatFlag = "json"
	defer func() { schemaFlag = ""; formatFlag = "json" }()

	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})

	if err := runReplay(cmd, []string{journalPath}); err != nil {
		t.Fatal(err)
	}

	var stats wal.ReplayStats
	if err := json.Unmarshal(out.Bytes(), &stats); err != nil {
		t.Fatalf("expected valid JSON, got %q: %v", out.String(), err)
	}
	if stats.TxnsCommitted != 1 || stats.NodesCreated != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestRunReplayRequiresSchema(t *testing.T) {
	schemaFlag = ""
	dir := t.TempDir()
	journalPath := filepath.Join(dir, "journal.db")
	w, err := wal.Open(journalPath)
	if err != nil {
		t.Fatal(err)
	}
	w.Close()

	cmd := &cobra.Command{}
	cmd.SetOut(&bytes.Buffer{})
	if err := runReplay(cmd, []string{journalPath}); err == nil {
		t.Fatal("expected an error when --schema is not set")
	}
}
