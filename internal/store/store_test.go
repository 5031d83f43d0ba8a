package store

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mewdb/mew/internal/value"
)

const (
	typeIssue  int32 = 1
	edgeBlocks int32 = 1
)

func TestCreateNodeIndexesType(t *testing.T) {
	g := New()
	n := g.CreateNode(typeIssue, map[string]value.Value{"title": value.String("fix bug")})
	if n.ID == 0 {
		t.Fatal("expected a nonzero id")
	}
	ids := g.NodesOfType(typeIssue)
	if len(ids) != 1 || ids[0] != n.ID {
		t.Fatalf("type index: got %v", ids)
	}
}

func TestExactIndexLookup(t *testing.T) {
	g := New()
	n1 := g.CreateNode(typeIssue, map[string]value.Value{"status": value.String("open")})
	g.CreateNode(typeIssue, map[string]value.Value{"status": value.String("closed")})

	ids, ok := g.LookupExact(typeIssue, "status", value.String("open"))
	if !ok {
		t.Fatal("expected String to be hashable")
	}
	if len(ids) != 1 || ids[0] != n1.ID {
		t.Fatalf("exact index: got %v", ids)
	}
}

func TestFloatNotExactIndexed(t *testing.T) {
	g := New()
	g.CreateNode(typeIssue, map[string]value.Value{"score": value.Float(1.5)})
	_, ok := g.LookupExact(typeIssue, "score", value.Float(1.5))
	if ok {
		t.Fatal("Float must not participate in the exact-match index")
	}
}

func TestRangeIndexOnInt(t *testing.T) {
	g := New()
	a := g.CreateNode(typeIssue, map[string]value.Value{"priority": value.Int(1)})
	g.CreateNode(typeIssue, map[string]value.Value{"priority": value.Int(5)})
	c := g.CreateNode(typeIssue, map[string]value.Value{"priority": value.Int(3)})

	ids := g.LookupRange(typeIssue, "priority", 1, 3)
	set := map[int64]bool{}
	for _, id := range ids {
		set[id] = true
	}
	if !set[a.ID] || !set[c.ID] || len(set) != 2 {
		t.Fatalf("range index: got %v", ids)
	}
}

func TestDeleteNodeCascadesIncidentEdges(t *testing.T) {
	g := New()
	a := g.CreateNode(typeIssue, nil)
	b := g.CreateNode(typeIssue, nil)
	e := g.CreateEdge(edgeBlocks, []EntityID{{Kind: KindNode, ID: a.ID}, {Kind: KindNode, ID: b.ID}}, map[string]value.Value{})

	g.DeleteNode(a.ID)

	if _, ok := g.GetEdge(e.ID); ok {
		t.Fatal("edge should be cascade-deleted when an endpoint is killed")
	}
	if ids := g.Inbound(b.ID, edgeBlocks); len(ids) != 0 {
		t.Fatalf("b's inbound index should be empty after cascade, got %v", ids)
	}
}

func TestDeleteEdgeCascadesHigherOrder(t *testing.T) {
	g := New()
	a := g.CreateNode(typeIssue, nil)
	b := g.CreateNode(typeIssue, nil)
	e1 := g.CreateEdge(edgeBlocks, []EntityID{{Kind: KindNode, ID: a.ID}, {Kind: KindNode, ID: b.ID}}, map[string]value.Value{})
	e2 := g.CreateEdge(edgeBlocks, []EntityID{{Kind: KindEdge, ID: e1.ID}, {Kind: KindNode, ID: b.ID}}, map[string]value.Value{})

	g.DeleteEdge(e1.ID)

	if _, ok := g.GetEdge(e2.ID); ok {
		t.Fatal("higher-order edge should be deleted when its target edge is deleted")
	}
}

func TestSetNodeAttrReindexes(t *testing.T) {
	g := New()
	n := g.CreateNode(typeIssue, map[string]value.Value{"status": value.String("open")})
	g.SetNodeAttr(n.ID, "status", value.String("closed"))

	if ids, _ := g.LookupExact(typeIssue, "status", value.String("open")); len(ids) != 0 {
		t.Fatalf("stale index entry should be removed, got %v", ids)
	}
	ids, _ := g.LookupExact(typeIssue, "status", value.String("closed"))
	if len(ids) != 1 || ids[0] != n.ID {
		t.Fatalf("new index entry missing, got %v", ids)
	}
}

func TestRestoreReinsertsExactSnapshot(t *testing.T) {
	g := New()
	n := g.CreateNode(typeIssue, map[string]value.Value{"title": value.String("fix bug")})
	snapshot := &Node{ID: n.ID, TypeID: n.TypeID, Attrs: map[string]value.Value{"title": value.String("fix bug")}}
	g.DeleteNode(n.ID)

	g.Restore(snapshot)
	got, ok := g.GetNode(n.ID)
	if !ok {
		t.Fatal("expected restored node to exist")
	}
	if diff := cmp.Diff(snapshot, got); diff != "" {
		t.Fatalf("restored node diverges from snapshot (-want +got):\n%s", diff)
	}
}

func TestFsckCleanStorePasses(t *testing.T) {
	g := New()
	a := g.CreateNode(typeIssue, map[string]value.Value{"title": value.String("a")})
	b := g.CreateNode(typeIssue, nil)
	g.CreateEdge(edgeBlocks, []EntityID{{Kind: KindNode, ID: a.ID}, {Kind: KindNode, ID: b.ID}}, map[string]value.Value{})

	report := g.Fsck(context.Background())
	if !report.TypeIndexOK || !report.EdgeTypeIndexOK || !report.AttrIndexOK || !report.AdjacencyOK {
		t.Fatalf("unexpected fsck failure: %+v", report)
	}
	if len(report.Errors) != 0 {
		t.Fatalf("expected no errors, got %v", report.Errors)
	}
}
