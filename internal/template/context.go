package template

import (
	"strconv"
	"strings"
)

// Value is one node of the typed template context tree.
// Params: Kind selects one payload among S/N/B/M.
// Returns: strict typed value resolved by dotted-path lookups.
type Value struct {
	Kind string
	S    *string
	N    *float64
	B    *bool
	M    map[string]Value
}

// String builds a string leaf.
// Params: string payload.
// Returns: typed value node.
func String(value string) Value {
	return Value{Kind: "s", S: &value}
}

// Number builds a numeric leaf.
// Params: float payload.
// Returns: typed value node.
func Number(value float64) Value {
	return Value{Kind: "n", N: &value}
}

// Boolean builds a boolean leaf.
// Params: bool payload.
// Returns: typed value node.
func Boolean(value bool) Value {
	return Value{Kind: "b", B: &value}
}

// Tree builds a nested map node.
// Params: child values keyed by path segment.
// Returns: typed value node.
func Tree(children map[string]Value) Value {
	return Value{Kind: "m", M: children}
}

// Resolve walks one dotted path through the context tree.
// Params: path such as "alert.name"; empty segments never match.
// Returns: resolved value and true, or zero value and false when any segment
// is absent. Pure function, no side effects.
func (v Value) Resolve(path string) (Value, bool) {
	current := v
	for _, segment := range strings.Split(path, ".") {
		if segment == "" || current.Kind != "m" {
			return Value{}, false
		}
		child, ok := current.M[segment]
		if !ok {
			return Value{}, false
		}
		current = child
	}
	return current, true
}

// Text renders the value as template output.
// Params: none.
// Returns: stringified leaf payload; map nodes and empty variants render empty.
func (v Value) Text() string {
	switch v.Kind {
	case "s":
		if v.S == nil {
			return ""
		}
		return *v.S
	case "n":
		if v.N == nil {
			return ""
		}
		return strconv.FormatFloat(*v.N, 'f', -1, 64)
	case "b":
		if v.B == nil {
			return ""
		}
		return strconv.FormatBool(*v.B)
	default:
		return ""
	}
}
