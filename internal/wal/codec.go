package wal

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/mewdb/mew/internal/value"
)

// encodeValue renders a value.Value as a {"k": kind, "v": raw} JSON
// fragment so replay can reconstruct the exact Kind instead of guessing
// from JSON's native number/string/bool types.
func encodeValue(json, path string, v value.Value) (string, error) {
	var err error
	json, err = sjson.Set(json, path+".k", v.Kind().String())
	if err != nil {
		return "", err
	}
	switch v.Kind() {
	case value.KindNull:
		return sjson.Set(json, path+".v", nil)
	case value.KindBool:
		return sjson.Set(json, path+".v", v.AsBool())
	case value.KindInt, value.KindNodeRef, value.KindEdgeRef, value.KindTimestamp, value.KindDuration:
		return sjson.Set(json, path+".v", v.AsInt())
	case value.KindFloat:
		return sjson.Set(json, path+".v", v.AsFloat())
	case value.KindString:
		return sjson.Set(json, path+".v", v.AsString())
	case value.KindList:
		items := v.AsList()
		json, err = sjson.Set(json, path+".v", []any{})
		if err != nil {
			return "", err
		}
		for i, item := range items {
			itemPath := path + ".v." + itoa(i)
			json, err = encodeValue(json, itemPath, item)
			if err != nil {
				return "", err
			}
		}
		return json, nil
	default:
		return sjson.Set(json, path+".v", nil)
	}
}

// decodeValue is encodeValue's inverse: node is the {"k","v"} fragment
// itself (e.g. the result of a prior .Get("value") or a ForEach value).
func decodeValue(node gjson.Result) value.Value {
	kind := node.Get("k").String()
	raw := node.Get("v")
	switch kind {
	case "Bool":
		return value.Bool(raw.Bool())
	case "Int":
		return value.Int(raw.Int())
	case "Float":
		return value.Float(raw.Float())
	case "String":
		return value.String(raw.String())
	case "NodeRef":
		return value.NodeRef(raw.Int())
	case "EdgeRef":
		return value.EdgeRef(raw.Int())
	case "Timestamp":
		return value.TimestampMillis(raw.Int())
	case "Duration":
		return value.DurationMillis(raw.Int())
	case "List":
		items := raw.Array()
		out := make([]value.Value, len(items))
		for i, item := range items {
			out[i] = decodeValue(item)
		}
		return value.List(out)
	default:
		return value.Null
	}
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
