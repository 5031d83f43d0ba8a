// Package txn implements the transaction manager (spec.md §4.7):
// single-writer, read-committed, writes applied directly to the graph
// store with undo entries recorded so rollback can reverse them.
// Rollback pre-images store full node/edge snapshots, not just ids (see
// DESIGN.md's resolution of spec.md §9(a)).
package txn

import (
	"github.com/google/uuid"

	"github.com/mewdb/mew/internal/mewerr"
	"github.com/mewdb/mew/internal/mewlog"
	"github.com/mewdb/mew/internal/obs"
	"github.com/mewdb/mew/internal/store"
	"github.com/mewdb/mew/internal/value"
)

var logger = mewlog.For("txn")

// State is a transaction's lifecycle state.
type State int

const (
	StateInactive State = iota
	StateActive
	StateRollingBack
)

// OpKind tags one undo-log entry's shape.
type OpKind int

const (
	OpCreatedNode OpKind = iota
	OpCreatedEdge
	OpDeletedNode
	OpDeletedEdge
	OpSetNodeAttr
	OpSetEdgeAttr
)

// UndoEntry is one reversible operation recorded during a transaction.
// Deleted-entity entries carry a full pre-image snapshot so Rollback can
// reinsert the exact record (resolves spec.md §9(a): "the current
// implementation stores only identifiers for deletes" is explicitly NOT
// what this engine does).
type UndoEntry struct {
	Kind OpKind

	NodeID int64
	EdgeID int64

	DeletedNode *store.Node
	DeletedEdge *store.Edge

	Attr     string
	OldValue value.Value
}

// Savepoint marks a position in the undo log plus a name for
// ROLLBACK TO / SAVEPOINT lookups (spec.md §4.7).
type Savepoint struct {
	ID      string
	Name    string
	LogMark int
}

// WAL is the subset of the journal's append API the transaction manager
// needs; internal/wal.Writer satisfies it. Kept as an interface here so
// txn has no import-time dependency on the bbolt-backed journal.
type WAL interface {
	Append(txnID string, kind string, payload any) (lsn uint64, err error)
	Sync() error
}

// DeferredCheck runs every deferred constraint against the union of
// entities touched by the transaction, returning violations. Bound by
// internal/engine to internal/constraint.Checker.CheckAll plus the
// touched-entity set this transaction accumulated.
type DeferredCheck func(touched TouchedSet) (mewerr.ViolationList, error)

// RuleFire runs the rule engine to quiescence after the transaction's
// primary mutations (spec.md §4.6). Bound by internal/engine.
type RuleFire func() (actionsTaken int, err error)

// TouchedSet is the set of entities a transaction created, mutated, or
// had incident-to-deleted (spec.md §4.7 commit step 1).
type TouchedSet struct {
	Nodes map[int64]bool
	Edges map[int64]bool
}

func newTouchedSet() TouchedSet {
	return TouchedSet{Nodes: map[int64]bool{}, Edges: map[int64]bool{}}
}

// Txn is one active transaction.
type Txn struct {
	ID         string
	State      State
	undoLog    []UndoEntry
	savepoints []Savepoint
	touched    TouchedSet
}

func (t *Txn) touchNode(id int64) { t.touched.Nodes[id] = true }
func (t *Txn) touchEdge(id int64) { t.touched.Edges[id] = true }

// record appends an undo entry to the active transaction's log.
func (t *Txn) record(e UndoEntry) { t.undoLog = append(t.undoLog, e) }

// Manager is the single-writer transaction manager (spec.md §4.7). At
// most one Txn is active at a time.
type Manager struct {
	Graph      *store.Graph
	WAL        WAL
	Defer      DeferredCheck
	Fire       RuleFire
	autoCommit bool

	// Metrics, when non-nil, is incremented on every commit and
	// rollback (SPEC_FULL.md §A.5). Left nil in tests that don't care
	// about observability.
	Metrics *obs.Metrics

	active *Txn
}

// New constructs a Manager. autoCommit controls whether operations with
// no explicit BEGIN are wrapped in a single-statement transaction
// (spec.md §4.7 "Auto-commit").
func New(g *store.Graph, w WAL, deferred DeferredCheck, fire RuleFire, autoCommit bool) *Manager {
	return &Manager{Graph: g, WAL: w, Defer: deferred, Fire: fire, autoCommit: autoCommit}
}

// Active reports whether a transaction is currently open.
func (m *Manager) Active() bool { return m.active != nil }

// ActiveTxn returns the currently open transaction, or nil. Used by the
// rule engine's Production closures, which run mutations against
// whichever transaction triggered the firing pass (spec.md §4.6).
func (m *Manager) ActiveTxn() *Txn { return m.active }

// Begin starts a new transaction. Fails AlreadyActive if one is already
// open (spec.md §7).
func (m *Manager) Begin() (*Txn, error) {
	if m.active != nil {
		return nil, mewerr.New(mewerr.AlreadyActive, "a transaction is already active")
	}
	id := uuid.NewString()
	if m.WAL != nil {
		if _, err := m.WAL.Append(id, "BEGIN", nil); err != nil {
			return nil, mewerr.Wrap(mewerr.IoError, err, "appending BEGIN record")
		}
	}
	t := &Txn{ID: id, State: StateActive, touched: newTouchedSet()}
	m.active = t
	logger.Debug("begin", "txn", id)
	return t, nil
}

// requireActive returns the active transaction or NoActiveTransaction.
func (m *Manager) requireActive() (*Txn, error) {
	if m.active == nil {
		return nil, mewerr.New(mewerr.NoActiveTransaction, "no transaction is active")
	}
	return m.active, nil
}

// Commit runs deferred constraints, then fires rules to quiescence, and
// on success appends a COMMIT record and clears the buffer (spec.md §2:
// "on commit, deferred constraints fire, rules run to quiescence, WAL
// records are appended and synced"). On violation it rolls back and
// returns the violations as an error.
func (m *Manager) Commit() (mewerr.ViolationList, error) {
	t, err := m.requireActive()
	if err != nil {
		return nil, err
	}

	var violations mewerr.ViolationList
	if m.Defer != nil {
		violations, err = m.Defer(t.touched)
		if err != nil {
			m.rollbackTxn(t)
			return nil, err
		}
	}
	if violations.HasHard() {
		m.rollbackTxn(t)
		return violations, violations.Hard()
	}

	if m.Fire != nil {
		if _, err := m.Fire(); err != nil {
			m.rollbackTxn(t)
			return nil, err
		}
	}

	if m.WAL != nil {
		if _, err := m.WAL.Append(t.ID, "COMMIT", nil); err != nil {
			return violations, mewerr.Wrap(mewerr.IoError, err, "appending COMMIT record")
		}
		if err := m.WAL.Sync(); err != nil {
			return violations, mewerr.Wrap(mewerr.IoError, err, "syncing WAL")
		}
	}

	m.active = nil
	if m.Metrics != nil {
		m.Metrics.TxnCommits.Inc()
	}
	logger.Debug("commit", "txn", t.ID, "violations", len(violations))
	return violations, nil
}

// Rollback reverses every recorded operation in the active transaction,
// in reverse order, then clears the buffer (spec.md §4.7).
func (m *Manager) Rollback() error {
	t, err := m.requireActive()
	if err != nil {
		return err
	}
	m.rollbackTxn(t)
	return nil
}

func (m *Manager) rollbackTxn(t *Txn) {
	t.State = StateRollingBack
	m.undoTo(t, 0)
	if m.WAL != nil {
		_, _ = m.WAL.Append(t.ID, "ABORT", nil)
	}
	m.active = nil
	if m.Metrics != nil {
		m.Metrics.TxnRollbacks.Inc()
	}
	logger.Debug("rollback", "txn", t.ID)
}

// undoTo reverses every undo entry after index mark, in reverse order.
func (m *Manager) undoTo(t *Txn, mark int) {
	for i := len(t.undoLog) - 1; i >= mark; i-- {
		m.undo(t.undoLog[i])
	}
	t.undoLog = t.undoLog[:mark]
}

func (m *Manager) undo(e UndoEntry) {
	switch e.Kind {
	case OpCreatedNode:
		m.Graph.DeleteNode(e.NodeID)
	case OpCreatedEdge:
		m.Graph.DeleteEdge(e.EdgeID)
	case OpDeletedNode:
		m.Graph.Restore(e.DeletedNode)
	case OpDeletedEdge:
		m.Graph.RestoreEdge(e.DeletedEdge)
	case OpSetNodeAttr:
		m.Graph.SetNodeAttr(e.NodeID, e.Attr, e.OldValue)
	case OpSetEdgeAttr:
		m.Graph.SetEdgeAttr(e.EdgeID, e.Attr, e.OldValue)
	}
}

// Savepoint records a named savepoint at the current undo-log position
// (spec.md §4.7).
func (m *Manager) Savepoint(name string) error {
	t, err := m.requireActive()
	if err != nil {
		return err
	}
	t.savepoints = append(t.savepoints, Savepoint{ID: uuid.NewString(), Name: name, LogMark: len(t.undoLog)})
	if m.WAL != nil {
		_, _ = m.WAL.Append(t.ID, "SAVEPOINT", name)
	}
	return nil
}

// RollbackTo undoes every operation recorded after the named savepoint,
// keeping the savepoint itself active (spec.md §4.7).
func (m *Manager) RollbackTo(name string) error {
	t, err := m.requireActive()
	if err != nil {
		return err
	}
	idx := -1
	for i := len(t.savepoints) - 1; i >= 0; i-- {
		if t.savepoints[i].Name == name {
			idx = i
			break
		}
	}
	if idx == -1 {
		return mewerr.New(mewerr.SavepointNotFound, "no savepoint named %q", name)
	}
	mark := t.savepoints[idx].LogMark
	m.undoTo(t, mark)
	t.savepoints = t.savepoints[:idx+1]
	return nil
}

// --- Mutation recording hooks, called by internal/mutate as it performs
// each store operation, so the buffer's undo log stays current.

// RecordCreateNode records that a node was just created.
func (m *Manager) RecordCreateNode(t *Txn, id int64) {
	t.record(UndoEntry{Kind: OpCreatedNode, NodeID: id})
	t.touchNode(id)
}

// RecordCreateEdge records that an edge was just created.
func (m *Manager) RecordCreateEdge(t *Txn, id int64) {
	t.record(UndoEntry{Kind: OpCreatedEdge, EdgeID: id})
	t.touchEdge(id)
}

// RecordDeleteNode records a node's pre-image before deletion so
// rollback can reinsert it.
func (m *Manager) RecordDeleteNode(t *Txn, snapshot *store.Node) {
	t.record(UndoEntry{Kind: OpDeletedNode, NodeID: snapshot.ID, DeletedNode: snapshot})
	t.touchNode(snapshot.ID)
}

// RecordDeleteEdge records an edge's pre-image before deletion.
func (m *Manager) RecordDeleteEdge(t *Txn, snapshot *store.Edge) {
	t.record(UndoEntry{Kind: OpDeletedEdge, EdgeID: snapshot.ID, DeletedEdge: snapshot})
	t.touchEdge(snapshot.ID)
}

// RecordSetNodeAttr records a node attribute's old value before
// overwriting it.
func (m *Manager) RecordSetNodeAttr(t *Txn, id int64, attr string, old value.Value) {
	t.record(UndoEntry{Kind: OpSetNodeAttr, NodeID: id, Attr: attr, OldValue: old})
	t.touchNode(id)
}

// RecordSetEdgeAttr records an edge attribute's old value before
// overwriting it.
func (m *Manager) RecordSetEdgeAttr(t *Txn, id int64, attr string, old value.Value) {
	t.record(UndoEntry{Kind: OpSetEdgeAttr, EdgeID: id, Attr: attr, OldValue: old})
	t.touchEdge(id)
}

// RunAutoCommit wraps fn in a single-statement transaction when no
// explicit transaction is active and auto-commit is enabled (spec.md
// §4.7). If a transaction is already active, fn just runs inside it.
func (m *Manager) RunAutoCommit(fn func(t *Txn) error) error {
	if m.active != nil {
		return fn(m.active)
	}
	if !m.autoCommit {
		return mewerr.New(mewerr.NoActiveTransaction, "no transaction is active and auto-commit is disabled")
	}
	t, err := m.Begin()
	if err != nil {
		return err
	}
	if err := fn(t); err != nil {
		m.rollbackTxn(t)
		return err
	}
	_, err = m.Commit()
	return err
}
