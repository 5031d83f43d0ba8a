package wal

import (
	"github.com/tidwall/sjson"

	"github.com/mewdb/mew/internal/value"
)

// SpawnPayload records a SPAWN so replay can reconstruct the node
// (spec.md §4.5). OldNodeID lets LINK/SET/KILL records from the same
// run refer back to it even though replay assigns fresh ids.
type SpawnPayload struct {
	Type      string
	OldNodeID int64
	Attrs     map[string]value.Value
}

// EntityRef is one LINK target, tagged so replay knows which id map to
// resolve it through.
type EntityRef struct {
	Kind  string // "node" or "edge"
	OldID int64
}

// LinkPayload records a LINK.
type LinkPayload struct {
	EdgeType  string
	OldEdgeID int64
	Targets   []EntityRef
	Attrs     map[string]value.Value
}

// UnlinkPayload records an UNLINK.
type UnlinkPayload struct {
	OldEdgeID int64
}

// KillNodePayload records a node-targeted KILL.
type KillNodePayload struct {
	OldNodeID int64
	Cascade   bool
}

// SetPayload records a SET.
type SetPayload struct {
	Kind  string // "node" or "edge"
	OldID int64
	Attr  string
	Value value.Value
}

func encodeSpawn(json string, p SpawnPayload) (string, error) {
	var err error
	json, err = sjson.Set(json, "payload.type", p.Type)
	if err != nil {
		return "", err
	}
	json, err = sjson.Set(json, "payload.old_node_id", p.OldNodeID)
	if err != nil {
		return "", err
	}
	return encodeAttrs(json, "payload.attrs", p.Attrs)
}

func encodeLink(json string, p LinkPayload) (string, error) {
	var err error
	json, err = sjson.Set(json, "payload.edge_type", p.EdgeType)
	if err != nil {
		return "", err
	}
	json, err = sjson.Set(json, "payload.old_edge_id", p.OldEdgeID)
	if err != nil {
		return "", err
	}
	json, err = sjson.Set(json, "payload.targets", []any{})
	if err != nil {
		return "", err
	}
	for i, t := range p.Targets {
		base := "payload.targets." + itoa(i)
		json, err = sjson.Set(json, base+".kind", t.Kind)
		if err != nil {
			return "", err
		}
		json, err = sjson.Set(json, base+".old_id", t.OldID)
		if err != nil {
			return "", err
		}
	}
	return encodeAttrs(json, "payload.attrs", p.Attrs)
}

func encodeSet(json string, p SetPayload) (string, error) {
	var err error
	json, err = sjson.Set(json, "payload.kind", p.Kind)
	if err != nil {
		return "", err
	}
	json, err = sjson.Set(json, "payload.old_id", p.OldID)
	if err != nil {
		return "", err
	}
	json, err = sjson.Set(json, "payload.attr", p.Attr)
	if err != nil {
		return "", err
	}
	return encodeValue(json, "payload.value", p.Value)
}

func encodeAttrs(json, path string, attrs map[string]value.Value) (string, error) {
	var err error
	json, err = sjson.Set(json, path, map[string]any{})
	if err != nil {
		return "", err
	}
	for name, v := range attrs {
		json, err = encodeValue(json, path+"."+sjsonEscape(name), v)
		if err != nil {
			return "", err
		}
	}
	return json, nil
}

// sjsonEscape guards attribute names that contain sjson path metacharacters
// ('.', '*', '?') by wrapping them in the library's escape syntax.
func sjsonEscape(name string) string {
	needsEscape := false
	for _, r := range name {
		if r == '.' || r == '*' || r == '?' {
			needsEscape = true
			break
		}
	}
	if !needsEscape {
		return name
	}
	out := make([]rune, 0, len(name)+2)
	for _, r := range name {
		if r == '.' || r == '*' || r == '?' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
