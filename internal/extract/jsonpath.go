package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/IshaanNene/gleaner/internal/types"
)

// DecodeJSON decodes a JSON document into generic values.
func DecodeJSON(body []byte) (any, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON document")
	}
	return v, nil
}

// Lookup walks a dotted path through decoded JSON. Segments may carry indices:
// "data.items[0].name", "results[*].id". A [*] segment maps the rest of the
// path over every element. Missing keys, out-of-range indices, type mismatches
// and JSON null all yield Absent.
func Lookup(v any, path string) any {
	out, ok := walk(v, splitPath(path))
	if !ok || out == nil {
		return types.Absent
	}
	return out
}

type step struct {
	key   string
	index int // -1: none, -2: wildcard
}

func splitPath(path string) []step {
	var steps []step
	for _, seg := range strings.Split(strings.TrimPrefix(path, "$."), ".") {
		if seg == "" || seg == "$" {
			continue
		}
		key := seg
		var idx []string
		if i := strings.IndexByte(seg, '['); i >= 0 {
			key = seg[:i]
			for _, part := range strings.Split(seg[i+1:], "[") {
				idx = append(idx, strings.TrimSuffix(part, "]"))
			}
		}
		if key != "" {
			steps = append(steps, step{key: key, index: -1})
		}
		for _, s := range idx {
			if s == "*" {
				steps = append(steps, step{index: -2})
				continue
			}
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				// Unparseable index can never match.
				steps = append(steps, step{key: "[" + s + "]", index: -1})
				continue
			}
			steps = append(steps, step{index: n})
		}
	}
	return steps
}

func walk(v any, steps []step) (any, bool) {
	for i, s := range steps {
		switch {
		case s.index == -2:
			arr, ok := v.([]any)
			if !ok {
				return nil, false
			}
			var out []any
			for _, elem := range arr {
				if got, ok := walk(elem, steps[i+1:]); ok && got != nil {
					out = append(out, got)
				}
			}
			if len(out) == 0 {
				return nil, false
			}
			return out, true
		case s.index >= 0:
			arr, ok := v.([]any)
			if !ok || s.index >= len(arr) {
				return nil, false
			}
			v = arr[s.index]
		default:
			obj, ok := v.(map[string]any)
			if !ok {
				return nil, false
			}
			v, ok = obj[s.key]
			if !ok {
				return nil, false
			}
		}
	}
	return v, true
}

// Stringify renders a scalar JSON value as an identifier string.
func Stringify(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case json.Number:
		return val.String()
	default:
		return ""
	}
}
