package wal

import (
	"github.com/tidwall/gjson"

	"github.com/mewdb/mew/internal/mewerr"
	"github.com/mewdb/mew/internal/registry"
	"github.com/mewdb/mew/internal/store"
	"github.com/mewdb/mew/internal/value"
)

// ReplayStats summarizes one Replay run. Ids are not guaranteed stable
// across a restart (spec.md §9(c)): replay allocates fresh ids via
// store.CreateNode/CreateEdge in record order, so a graph replayed from
// an empty store lands on the same ids only when no transaction aborted
// mid-run and consumed an id the original run didn't keep.
type ReplayStats struct {
	TxnsCommitted   int
	TxnsAborted     int
	TxnsDangling    int // began but neither committed nor aborted (crash mid-transaction)
	EntriesReplayed int // records actually applied to the store, across all committed transactions
	NodesCreated    int
	NodesDeleted    int
	EdgesCreated    int
	EdgesDeleted    int
	AttrsUpdated    int
}

// Replay rebuilds graph state by re-applying every record belonging to a
// committed transaction, in LSN order, skipping transactions that never
// reached COMMIT (spec.md §4.8 "two-pass replay": pass one classifies
// transaction outcomes, pass two applies only the committed ones).
func Replay(w *Writer, g *store.Graph, reg *registry.Registry) (*ReplayStats, error) {
	records, err := w.Records()
	if err != nil {
		return nil, err
	}

	outcome := map[string]string{} // txnID -> "COMMIT" | "ABORT"
	for _, r := range records {
		switch r.Kind {
		case "COMMIT", "ABORT":
			outcome[r.TxnID] = r.Kind
		}
	}

	stats := &ReplayStats{}
	nodeIDs := map[int64]int64{}
	edgeIDs := map[int64]int64{}

	for _, r := range records {
		switch r.Kind {
		case "BEGIN":
			if _, ok := outcome[r.TxnID]; !ok {
				stats.TxnsDangling++
			}
			continue
		case "COMMIT":
			stats.TxnsCommitted++
			continue
		case "ABORT":
			stats.TxnsAborted++
			continue
		case "SAVEPOINT":
			continue
		}
		if outcome[r.TxnID] != "COMMIT" {
			continue
		}
		if err := applyRecord(r, g, reg, nodeIDs, edgeIDs, stats); err != nil {
			return stats, err
		}
		stats.EntriesReplayed++
	}
	return stats, nil
}

func applyRecord(r Record, g *store.Graph, reg *registry.Registry, nodeIDs, edgeIDs map[int64]int64, stats *ReplayStats) error {
	switch r.Kind {
	case "SPAWN":
		typeName := r.Payload.Get("type").String()
		t, ok := reg.TypeByName(typeName)
		if !ok {
			return mewerr.New(mewerr.UnknownType, "replay: unknown type %q", typeName)
		}
		attrs := decodeAttrs(r.Payload, "attrs")
		n := g.CreateNode(t.ID, attrs)
		nodeIDs[r.Payload.Get("old_node_id").Int()] = n.ID
		stats.NodesCreated++

	case "LINK":
		edgeName := r.Payload.Get("edge_type").String()
		et, ok := reg.EdgeTypeByName(edgeName)
		if !ok {
			return mewerr.New(mewerr.UnknownEdgeType, "replay: unknown edge type %q", edgeName)
		}
		var targets []store.EntityID
		for _, tv := range r.Payload.Get("targets").Array() {
			kind := tv.Get("kind").String()
			old := tv.Get("old_id").Int()
			if kind == "edge" {
				targets = append(targets, store.EntityID{Kind: store.KindEdge, ID: edgeIDs[old]})
			} else {
				targets = append(targets, store.EntityID{Kind: store.KindNode, ID: nodeIDs[old]})
			}
		}
		attrs := decodeAttrs(r.Payload, "attrs")
		e := g.CreateEdge(et.ID, targets, attrs)
		edgeIDs[r.Payload.Get("old_edge_id").Int()] = e.ID
		stats.EdgesCreated++

	case "UNLINK":
		old := r.Payload.Get("old_edge_id").Int()
		g.DeleteEdge(edgeIDs[old])
		stats.EdgesDeleted++

	case "KILL_NODE":
		old := r.Payload.Get("old_node_id").Int()
		g.DeleteNode(nodeIDs[old])
		stats.NodesDeleted++

	case "SET":
		kind := r.Payload.Get("kind").String()
		old := r.Payload.Get("old_id").Int()
		attr := r.Payload.Get("attr").String()
		v := decodeValue(r.Payload.Get("value"))
		if kind == "edge" {
			g.SetEdgeAttr(edgeIDs[old], attr, v)
		} else {
			g.SetNodeAttr(nodeIDs[old], attr, v)
		}
		stats.AttrsUpdated++
	}
	return nil
}

func decodeAttrs(result gjson.Result, path string) map[string]value.Value {
	attrs := map[string]value.Value{}
	result.Get(path).ForEach(func(key, val gjson.Result) bool {
		attrs[key.String()] = decodeValue(val)
		return true
	})
	return attrs
}
