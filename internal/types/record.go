package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// AbsentMarker is the serialised form of Absent. Decoding cannot tell the two
// apart, so a field whose real value is the literal string "<TBD>" comes back
// from the progress store as Absent.
const AbsentMarker = "<TBD>"

type absent struct{}

func (absent) String() string { return AbsentMarker }

func (absent) MarshalJSON() ([]byte, error) { return []byte(`"` + AbsentMarker + `"`), nil }

// MarshalJSON encodes v like json.Marshal without HTML escaping, so the
// absence marker is written as <TBD> rather than \u003cTBD\u003e.
func MarshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Absent marks a field the extractor looked for and could not locate. It is
// stored in place of the value so consumers can tell "not found" apart from
// "not applicable" (the field is missing from the record altogether).
var Absent = absent{}

// IsAbsent reports whether v is the absence sentinel or its serialised form.
// A string equal to AbsentMarker always counts as absent.
func IsAbsent(v any) bool {
	switch val := v.(type) {
	case absent:
		return true
	case string:
		return val == AbsentMarker
	}
	return false
}

// Record is the structured output of extraction for one identifier. Values are
// scalars, nested map[string]any records, slices of those, or Absent.
type Record struct {
	// ID is the identifier the record was extracted for.
	ID string `json:"id"`

	// Fields stores the extracted key-value data.
	Fields map[string]any `json:"fields"`

	// Relevant is false when a relevance gate rejected the record.
	Relevant bool `json:"relevant"`

	// Reason explains a negative relevance decision.
	Reason string `json:"reason,omitempty"`
}

// NewRecord creates an empty record that is relevant until a gate says otherwise.
func NewRecord(id string) *Record {
	return &Record{
		ID:       id,
		Fields:   make(map[string]any),
		Relevant: true,
	}
}

// Set sets a field value.
func (r *Record) Set(key string, value any) {
	if r.Fields == nil {
		r.Fields = make(map[string]any)
	}
	r.Fields[key] = value
}

// Get retrieves a field value.
func (r *Record) Get(key string) (any, bool) {
	v, ok := r.Fields[key]
	return v, ok
}

// GetString retrieves a field value as a string. Absent and non-string values
// yield "".
func (r *Record) GetString(key string) string {
	v, ok := r.Fields[key]
	if !ok || IsAbsent(v) {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// Has returns true if the field exists and is not Absent.
func (r *Record) Has(key string) bool {
	v, ok := r.Fields[key]
	return ok && !IsAbsent(v)
}

// Delete removes a field.
func (r *Record) Delete(key string) {
	delete(r.Fields, key)
}

// Reject marks the record as not relevant.
func (r *Record) Reject(reason string) {
	r.Relevant = false
	r.Reason = reason
}

// Keys returns all field names in sorted order.
func (r *Record) Keys() []string {
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Plain returns a deep copy of the fields with Absent replaced by its marker,
// suitable for encoders that do not know about the sentinel (BSON, CSV).
func (r *Record) Plain() map[string]any {
	out, _ := plain(r.Fields).(map[string]any)
	if out == nil {
		out = make(map[string]any)
	}
	return out
}

// ToFlatMap returns a flat map suitable for CSV export.
func (r *Record) ToFlatMap() map[string]string {
	flat := make(map[string]string, len(r.Fields)+1)
	flat["_id"] = r.ID

	for k, v := range r.Fields {
		switch val := v.(type) {
		case string:
			flat[k] = val
		case absent:
			flat[k] = AbsentMarker
		case int:
			flat[k] = strconv.Itoa(val)
		case float64:
			flat[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			flat[k] = strconv.FormatBool(val)
		case nil:
			flat[k] = ""
		default:
			b, err := MarshalJSON(plain(val))
			if err != nil {
				flat[k] = fmt.Sprint(val)
				continue
			}
			flat[k] = string(b)
		}
	}
	return flat
}

// Clone creates a deep copy of the record.
func (r *Record) Clone() *Record {
	clone := &Record{
		ID:       r.ID,
		Fields:   make(map[string]any, len(r.Fields)),
		Relevant: r.Relevant,
		Reason:   r.Reason,
	}
	for k, v := range r.Fields {
		clone.Fields[k] = deepCopy(v)
	}
	return clone
}

// UnmarshalJSON restores Absent markers so a record survives a round trip
// through the progress store unchanged.
func (r *Record) UnmarshalJSON(data []byte) error {
	type alias Record
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = Record(a)
	for k, v := range r.Fields {
		r.Fields[k] = restore(v)
	}
	return nil
}

func restore(v any) any {
	switch val := v.(type) {
	case string:
		if val == AbsentMarker {
			return Absent
		}
		return val
	case map[string]any:
		for k, inner := range val {
			val[k] = restore(inner)
		}
		return val
	case []any:
		for i, inner := range val {
			val[i] = restore(inner)
		}
		return val
	}
	return v
}

func plain(v any) any {
	switch val := v.(type) {
	case absent:
		return AbsentMarker
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = plain(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = plain(inner)
		}
		return out
	}
	return v
}

func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = deepCopy(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = deepCopy(inner)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	}
	return v
}
