package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Request is the wire form of an outgoing call.
type Request struct {
	Method string `json:"method"`
	Params any    `json:"params"`
	ID     uint64 `json:"id"`
}

// Frame is a decoded incoming message.
//
// Values inside Params, Result and Error are normalized so that both encodings
// look the same to callers: integers are int64, other numbers float64,
// documents map[string]any, arrays []any and binary payloads []byte.
type Frame struct {
	ID       uint64
	HasID    bool
	Method   string
	Params   map[string]any
	Result   any
	Error    any
	HasError bool
}

// EncodeRequest renders a request as a JSON text frame.
func EncodeRequest(id uint64, method string, params any) ([]byte, error) {
	if params == nil {
		params = struct{}{}
	}
	data, err := json.Marshal(Request{Method: method, Params: params, ID: id})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", method, err)
	}
	return data, nil
}

// DecodeFrame decodes one websocket message. binary selects BSON decoding,
// otherwise data is parsed as a JSON object.
func DecodeFrame(binary bool, data []byte) (Frame, error) {
	var raw map[string]any
	if binary {
		if err := bson.Unmarshal(data, &raw); err != nil {
			return Frame{}, fmt.Errorf("failed to decode binary frame: %w", err)
		}
	} else {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return Frame{}, fmt.Errorf("failed to decode text frame: %w", err)
		}
		if raw == nil {
			return Frame{}, fmt.Errorf("failed to decode text frame: not an object")
		}
	}

	doc, _ := Normalize(raw).(map[string]any)
	return frameFromDocument(doc), nil
}

func frameFromDocument(doc map[string]any) Frame {
	var f Frame

	if v, ok := doc["id"]; ok && v != nil {
		f.HasID = true
		// Ids we never issued stay at 0 so they match nothing.
		f.ID, _ = toID(v)
	}
	if v, ok := doc["method"].(string); ok {
		f.Method = v
	}
	if v, ok := doc["params"].(map[string]any); ok {
		f.Params = v
	}
	f.Result = doc["result"]
	if v, ok := doc["error"]; ok {
		f.HasError = true
		f.Error = v
	}
	return f
}

func toID(v any) (uint64, bool) {
	switch n := v.(type) {
	case int64:
		if n > 0 {
			return uint64(n), true
		}
	case float64:
		if n > 0 && n == math.Trunc(n) && n <= math.MaxUint64 {
			return uint64(n), true
		}
	}
	return 0, false
}

// Normalize converts decoder-specific value types into plain Go values.
func Normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, err := t.Float64()
		if err != nil {
			return t.String()
		}
		return f
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case float32:
		return float64(t)
	case bson.Binary:
		return t.Data
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = Normalize(e.Value)
		}
		return m
	case bson.M:
		return normalizeMap(t)
	case map[string]any:
		return normalizeMap(t)
	case bson.A:
		return normalizeSlice(t)
	case []any:
		return normalizeSlice(t)
	default:
		return v
	}
}

func normalizeMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = Normalize(v)
	}
	return out
}

func normalizeSlice(in []any) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = Normalize(v)
	}
	return out
}

// DecodeValue copies a normalized value into a typed destination.
// Binary payloads survive as []byte fields.
func DecodeValue(in any, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to re-encode value: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode value into %T: %w", out, err)
	}
	return nil
}
