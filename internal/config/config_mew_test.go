package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mewdb/mew/internal/engine"
)

func TestLoadDefaultsWithNoFileOrEnv(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatal(err)
	}
	want := Defaults()
	if *cfg != want {
		t.Fatalf("expected defaults %+v, got %+v", want, *cfg)
	}
}

func TestLoadAppliesTomlFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mew.toml")
	body := "[engine]\nmax_depth = 8\nmax_actions = 500\n\n[wal]\npath = \"/tmp/journal.db\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Engine.MaxDepth != 8 || cfg.Engine.MaxActions != 500 {
		t.Fatalf("expected toml overrides applied, got %+v", cfg.Engine)
	}
	if cfg.WAL.Path != "/tmp/journal.db" {
		t.Fatalf("expected wal.path override, got %q", cfg.WAL.Path)
	}
	// Fields the file didn't mention keep their defaults.
	if cfg.WAL.CheckpointIntervalOps != Defaults().WAL.CheckpointIntervalOps {
		t.Fatalf("expected untouched field to keep its default, got %d", cfg.WAL.CheckpointIntervalOps)
	}
}

func TestLoadEnvOverridesTomlFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mew.toml")
	if err := os.WriteFile(path, []byte("[engine]\nmax_depth = 8\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("MEW_ENGINE_MAX_DEPTH", "32")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Engine.MaxDepth != 32 {
		t.Fatalf("expected env var to win over toml file, got %d", cfg.Engine.MaxDepth)
	}
}

func TestApplyLeavesExplicitJournalPathUntouched(t *testing.T) {
	cfg := Defaults()
	cfg.WAL.Path = "/var/mew/journal.db"
	cfg.Engine.MaxPatternCost = 200

	opts := engine.Options{JournalPath: "/explicit/path.db"}
	cfg.Apply(&opts)

	require.Equal(t, "/explicit/path.db", opts.JournalPath, "explicit JournalPath must survive Apply")
	require.Equal(t, 200, opts.MaxPatternCost)
	require.Equal(t, cfg.Engine.MaxDepth, opts.RuleLimits.MaxDepth)
}
