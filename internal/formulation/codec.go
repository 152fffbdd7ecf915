package formulation

import (
	"encoding/json"
	"errors"
	"fmt"
)

// TypeTag is the state-map key recording which implementation produced a
// serialized state. It exists for debugging checkpoints; restore paths must
// ignore it.
const TypeTag = "__type"

// EncodeState serializes a state into a plain map suitable for wire payloads
// and checkpoints. States implementing Mapper control their own shape; other
// states fall back to a JSON round-trip over their exported fields.
func EncodeState(s State) (map[string]any, error) {
	if s == nil {
		return nil, errors.New("state is required")
	}

	if m, ok := s.(Mapper); ok {
		src := m.StateMap()
		out := make(map[string]any, len(src)+1)
		for k, v := range src {
			out[k] = v
		}
		out[TypeTag] = fmt.Sprintf("%T", s)
		return out, nil
	}

	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("state does not serialize to an object: %w", err)
	}
	out[TypeTag] = fmt.Sprintf("%T", s)
	return out, nil
}

// CloneStateMap copies a serialized state map, dropping the TypeTag entry.
// Restore implementations use it to work on their own copy of checkpoint
// data.
func CloneStateMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if k == TypeTag {
			continue
		}
		out[k] = v
	}
	return out
}

// IntFrom reads an integer entry from a state map, tolerating the float64
// values JSON decoding produces.
func IntFrom(m map[string]any, key string, def int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// FloatFrom reads a numeric entry from a state map.
func FloatFrom(m map[string]any, key string, def float64) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

// StringFrom reads a string entry from a state map.
func StringFrom(m map[string]any, key, def string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return def
}

// BoolFrom reads a boolean entry from a state map.
func BoolFrom(m map[string]any, key string, def bool) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return def
}

// IntArg reads operator argument i as an integer. Arguments decoded from
// JSON arrive as float64; transitions use this instead of asserting types.
func IntArg(args []any, i int) (int, error) {
	if i < 0 || i >= len(args) {
		return 0, fmt.Errorf("missing argument %d", i)
	}
	switch v := args[i].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	}
	return 0, fmt.Errorf("argument %d is not a number", i)
}
