package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSchema(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schema.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadRegistryBuildsTypesAndEdgeTypes(t *testing.T) {
	path := writeSchema(t, `
[[types]]
id = 1
name = "Issue"

[[edge_types]]
id = 1
name = "depends_on"

  [[edge_types.params]]
  name = "from"
  type = "Issue"
  max = -1

  [[edge_types.params]]
  name = "to"
  type = "Issue"
  max = -1
`)

	reg, err := loadRegistry(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := reg.TypeByName("Issue"); !ok {
		t.Fatal("expected Issue type to be registered")
	}
	et, ok := reg.EdgeTypeByName("depends_on")
	if !ok {
		t.Fatal("expected depends_on edge type to be registered")
	}
	if len(et.Params) != 2 {
		t.Fatalf("expected 2 params, got %d", len(et.Params))
	}
}

func TestLoadRegistryMissingFile(t *testing.T) {
	if _, err := loadRegistry(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected an error for a missing schema file")
	}
}
