package luarules

import (
	"math"

	"github.com/Shopify/go-lua"
)

// pushValue translates a Go value onto the Lua stack. Values outside the
// state-map vocabulary (scalars, string-keyed maps, slices) push nil.
func pushValue(l *lua.State, v any) {
	switch v := v.(type) {
	case nil:
		l.PushNil()
	case bool:
		l.PushBoolean(v)
	case int:
		l.PushInteger(v)
	case int64:
		l.PushInteger(int(v))
	case float64:
		l.PushNumber(v)
	case string:
		l.PushString(v)
	case []any:
		l.NewTable()
		for i, item := range v {
			pushValue(l, item)
			l.RawSetInt(-2, i+1)
		}
	case map[string]any:
		pushMap(l, v)
	default:
		l.PushNil()
	}
}

// pushMap pushes m as a fresh Lua table.
func pushMap(l *lua.State, m map[string]any) {
	l.NewTable()
	for k, v := range m {
		pushValue(l, v)
		l.SetField(-2, k)
	}
}

// goValue reads the Lua value at index into a Go value. Functions, userdata,
// and threads have no state-map representation and read as nil.
func goValue(l *lua.State, index int) any {
	switch l.TypeOf(index) {
	case lua.TypeString:
		s, _ := l.ToString(index)
		return s
	case lua.TypeNumber:
		n, _ := l.ToNumber(index)
		return numberValue(n)
	case lua.TypeBoolean:
		return l.ToBoolean(index)
	case lua.TypeTable:
		return goTable(l, index)
	default:
		return nil
	}
}

// goTable reads a Lua table as a []any when it is a dense 1..n array, and as
// a map[string]any otherwise.
func goTable(l *lua.State, index int) any {
	index = l.AbsIndex(index)

	length := 0
	entries := 0
	dense := true
	l.PushNil()
	for l.Next(index) {
		if dense {
			if l.TypeOf(-2) != lua.TypeNumber {
				dense = false
			} else if i, ok := l.ToInteger(-2); ok && i > 0 {
				entries++
				if i > length {
					length = i
				}
			} else {
				dense = false
			}
		}
		l.Pop(1)
	}

	if dense && entries > 0 && length == entries {
		out := make([]any, 0, length)
		for i := 1; i <= length; i++ {
			l.RawGetInt(index, i)
			out = append(out, goValue(l, -1))
			l.Pop(1)
		}
		return out
	}
	return goMap(l, index)
}

// goMap reads the string-keyed entries of the Lua table at index.
func goMap(l *lua.State, index int) map[string]any {
	out := map[string]any{}
	if l.TypeOf(index) != lua.TypeTable {
		return out
	}

	index = l.AbsIndex(index)
	l.PushNil()
	for l.Next(index) {
		if l.TypeOf(-2) == lua.TypeString {
			key, _ := l.ToString(-2)
			out[key] = goValue(l, -1)
		}
		l.Pop(1)
	}
	return out
}

// numberValue keeps whole Lua numbers as Go ints so counters and role
// numbers survive the round trip without turning into floats.
func numberValue(n float64) any {
	if math.Mod(n, 1) == 0 {
		return int(n)
	}
	return n
}
