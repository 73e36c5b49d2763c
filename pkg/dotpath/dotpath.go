// Package dotpath resolves "a.b.c"-style paths against the generic
// map[string]interface{} trees produced by unmarshalling JSON messages,
// the shape routing and partitioning both match against.
package dotpath

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Get walks path segment by segment through nested maps. It returns
// ok=false as soon as a segment is missing or the current value is not a
// map, matching the spec's "field absent => no match" rule.
func Get(data interface{}, path string) (interface{}, bool) {
	if path == "" {
		return data, true
	}

	cur := data
	for _, segment := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		v, ok := m[segment]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// GetString resolves path and coerces the result to its string form:
// strings pass through verbatim, everything else is JSON-encoded.
func GetString(data interface{}, path string) (string, bool) {
	v, ok := Get(data, path)
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v), true
	}
	return string(b), true
}
