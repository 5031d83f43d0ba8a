package txn

import (
	"testing"

	"github.com/mewdb/mew/internal/mewerr"
	"github.com/mewdb/mew/internal/store"
	"github.com/mewdb/mew/internal/value"
)

const typeIssue int32 = 1

func TestBeginCommitClearsBuffer(t *testing.T) {
	g := store.New()
	m := New(g, nil, nil, nil, false)

	tx, err := m.Begin()
	if err != nil {
		t.Fatal(err)
	}
	n := g.CreateNode(typeIssue, map[string]value.Value{"title": value.String("a")})
	m.RecordCreateNode(tx, n.ID)

	if _, err := m.Commit(); err != nil {
		t.Fatal(err)
	}
	if m.Active() {
		t.Fatal("manager should be inactive after commit")
	}
	if _, ok := g.GetNode(n.ID); !ok {
		t.Fatal("committed node should remain in the store")
	}
}

func TestRollbackUndoesCreatedNode(t *testing.T) {
	g := store.New()
	m := New(g, nil, nil, nil, false)

	tx, err := m.Begin()
	if err != nil {
		t.Fatal(err)
	}
	n := g.CreateNode(typeIssue, map[string]value.Value{"title": value.String("a")})
	m.RecordCreateNode(tx, n.ID)

	if err := m.Rollback(); err != nil {
		t.Fatal(err)
	}
	if _, ok := g.GetNode(n.ID); ok {
		t.Fatal("rolled-back node should no longer exist")
	}
}

func TestRollbackRestoresDeletedNode(t *testing.T) {
	g := store.New()
	m := New(g, nil, nil, nil, false)
	n := g.CreateNode(typeIssue, map[string]value.Value{"title": value.String("keep me")})

	tx, err := m.Begin()
	if err != nil {
		t.Fatal(err)
	}
	snapshot := &store.Node{ID: n.ID, TypeID: n.TypeID, Attrs: map[string]value.Value{"title": value.String("keep me")}}
	g.DeleteNode(n.ID)
	m.RecordDeleteNode(tx, snapshot)

	if err := m.Rollback(); err != nil {
		t.Fatal(err)
	}
	restored, ok := g.GetNode(n.ID)
	if !ok {
		t.Fatal("deleted node should be restored by rollback")
	}
	if restored.Attrs["title"].AsString() != "keep me" {
		t.Fatalf("restored node lost its attributes: %+v", restored)
	}
}

func TestSavepointRollbackToKeepsEarlierWrites(t *testing.T) {
	g := store.New()
	m := New(g, nil, nil, nil, false)

	tx, err := m.Begin()
	if err != nil {
		t.Fatal(err)
	}
	first := g.CreateNode(typeIssue, nil)
	m.RecordCreateNode(tx, first.ID)

	if err := m.Savepoint("sp1"); err != nil {
		t.Fatal(err)
	}

	second := g.CreateNode(typeIssue, nil)
	m.RecordCreateNode(tx, second.ID)

	if err := m.RollbackTo("sp1"); err != nil {
		t.Fatal(err)
	}
	if _, ok := g.GetNode(first.ID); !ok {
		t.Fatal("node created before the savepoint should survive ROLLBACK TO")
	}
	if _, ok := g.GetNode(second.ID); ok {
		t.Fatal("node created after the savepoint should be undone")
	}
}

func TestBeginTwiceFails(t *testing.T) {
	g := store.New()
	m := New(g, nil, nil, nil, false)
	if _, err := m.Begin(); err != nil {
		t.Fatal(err)
	}
	_, err := m.Begin()
	if !mewerr.Is(err, mewerr.AlreadyActive) {
		t.Fatalf("expected AlreadyActive, got %v", err)
	}
}

func TestCommitWithoutBeginFails(t *testing.T) {
	g := store.New()
	m := New(g, nil, nil, nil, false)
	_, err := m.Commit()
	if !mewerr.Is(err, mewerr.NoActiveTransaction) {
		t.Fatalf("expected NoActiveTransaction, got %v", err)
	}
}

func TestCommitRollsBackOnHardViolation(t *testing.T) {
	g := store.New()
	deferred := func(touched TouchedSet) (mewerr.ViolationList, error) {
		return mewerr.ViolationList{{Name: "required:title", Severity: mewerr.SeverityHard, Message: "missing"}}, nil
	}
	m := New(g, nil, deferred, nil, false)

	tx, err := m.Begin()
	if err != nil {
		t.Fatal(err)
	}
	n := g.CreateNode(typeIssue, nil)
	m.RecordCreateNode(tx, n.ID)

	_, err = m.Commit()
	if err == nil {
		t.Fatal("expected commit to fail on a hard violation")
	}
	if _, ok := g.GetNode(n.ID); ok {
		t.Fatal("node should be rolled back after a failed commit")
	}
	if m.Active() {
		t.Fatal("manager should be inactive after a rolled-back commit")
	}
}
