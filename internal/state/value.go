package state

import (
	"encoding/json"
	"log"
	"reflect"
)

// State trees are plain JSON-shaped values: map[string]any, []any and
// primitives. Clone and Equal normalize through encoding/json so that a
// tree built from Go literals compares equal to the same tree after a trip
// over the wire.

// Clone deep-copies a JSON-shaped value via a marshal round trip.
func Clone(v any) any {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("state: clone marshal failed: %v", err)
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		log.Printf("state: clone unmarshal failed: %v", err)
		return v
	}
	return out
}

// CloneMap is Clone for object roots.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out, ok := Clone(m).(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return out
}

// Equal compares two JSON-shaped values after normalization, so int 1 and
// float64 1 at the same path are equal.
func Equal(a, b any) bool {
	return reflect.DeepEqual(Clone(a), Clone(b))
}

// Number coerces any JSON numeric representation to float64.
func Number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	}
	return 0
}

// String coerces a value to string, returning "" for non-strings.
func String(v any) string {
	s, _ := v.(string)
	return s
}

// Bool coerces a value to bool, returning false for non-bools.
func Bool(v any) bool {
	b, _ := v.(bool)
	return b
}
