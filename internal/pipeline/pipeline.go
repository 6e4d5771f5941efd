package pipeline

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/IshaanNene/gleaner/internal/config"
	"github.com/IshaanNene/gleaner/internal/types"
)

// Middleware processes a record and returns the (possibly modified) record.
// Returning nil rejects the record: it is kept in the progress store but
// marked not relevant.
type Middleware interface {
	// Name returns the middleware's identifier.
	Name() string

	// Process transforms a record. Return nil to reject it.
	Process(rec *types.Record) (*types.Record, error)
}

// Pipeline chains middleware processors together.
type Pipeline struct {
	middlewares []Middleware
	logger      *slog.Logger
}

// NewPipeline creates an empty Pipeline.
func NewPipeline(logger *slog.Logger) *Pipeline {
	return &Pipeline{
		logger: logger.With("component", "pipeline"),
	}
}

// New builds the chain described by the pipeline.* configuration keys.
// Values are cleaned and normalised first, then renamed, validated and
// defaulted; required fields, word counts and the field filter come last.
func New(pc config.PipelineConfig, logger *slog.Logger) (*Pipeline, error) {
	p := NewPipeline(logger)

	if pc.SanitizeHTML {
		p.Use(NewHTMLSanitizeMiddleware())
	}
	if pc.Trim {
		p.Use(&TrimMiddleware{})
	}
	if pc.Collapse {
		p.Use(NewCollapseMiddleware())
	}
	if len(pc.Dates) > 0 {
		p.Use(NewDateNormalizeMiddleware(pc.Dates, pc.DateFormat))
	}
	if len(pc.Currency) > 0 {
		p.Use(NewCurrencyNormalizeMiddleware(pc.Currency))
	}
	if len(pc.Coerce) > 0 {
		p.Use(NewTypeCoercionMiddleware(pc.Coerce))
	}
	if pc.RedactPII {
		p.Use(NewPIIRedactMiddleware(logger))
	}
	if len(pc.Rename) > 0 {
		p.Use(&FieldRenameMiddleware{Mapping: pc.Rename})
	}
	if len(pc.Validate) > 0 {
		mw, err := NewFieldValidateMiddleware(pc.Validate)
		if err != nil {
			return nil, &types.ConfigError{Field: "pipeline.validate", Err: err}
		}
		p.Use(mw)
	}
	if len(pc.Defaults) > 0 {
		defaults := make(map[string]any, len(pc.Defaults))
		for k, v := range pc.Defaults {
			defaults[k] = v
		}
		p.Use(&DefaultValueMiddleware{Defaults: defaults})
	}
	if len(pc.Required) > 0 {
		p.Use(&RequiredFieldsMiddleware{Fields: pc.Required})
	}
	if len(pc.WordCount) > 0 {
		p.Use(NewWordCountMiddleware(pc.WordCount))
	}
	if len(pc.Keep) > 0 {
		p.Use(NewFieldFilterMiddleware(pc.Keep))
	}
	return p, nil
}

// Use adds a middleware to the pipeline chain.
func (p *Pipeline) Use(mw Middleware) {
	p.middlewares = append(p.middlewares, mw)
	p.logger.Debug("middleware added", "name", mw.Name(), "position", len(p.middlewares))
}

// Process runs the record through all middleware in order. A middleware that
// returns nil rejects the record; the remaining stages still run so the
// stored record is cleaned the same way.
func (p *Pipeline) Process(rec *types.Record) (*types.Record, error) {
	current := rec

	for _, mw := range p.middlewares {
		result, err := mw.Process(current)
		if err != nil {
			return nil, &types.PipelineError{
				Stage: mw.Name(),
				ID:    rec.ID,
				Err:   err,
			}
		}
		if result == nil {
			if current.Relevant {
				current.Reject("rejected by " + mw.Name())
			}
			p.logger.Debug("record rejected", "stage", mw.Name(), "id", rec.ID)
			continue
		}
		current = result
	}

	return current, nil
}

// Len returns the number of middleware in the chain.
func (p *Pipeline) Len() int {
	return len(p.middlewares)
}

// Names lists the middleware in chain order.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.middlewares))
	for i, mw := range p.middlewares {
		names[i] = mw.Name()
	}
	return names
}

// --- Built-in Middleware ---

// FieldFilterMiddleware keeps only specified fields.
type FieldFilterMiddleware struct {
	Fields map[string]bool
}

// NewFieldFilterMiddleware keeps the named fields and drops the rest.
func NewFieldFilterMiddleware(fields []string) *FieldFilterMiddleware {
	keep := make(map[string]bool, len(fields))
	for _, f := range fields {
		keep[f] = true
	}
	return &FieldFilterMiddleware{Fields: keep}
}

func (m *FieldFilterMiddleware) Name() string { return "field_filter" }

func (m *FieldFilterMiddleware) Process(rec *types.Record) (*types.Record, error) {
	if len(m.Fields) == 0 {
		return rec, nil
	}
	for _, key := range rec.Keys() {
		if !m.Fields[key] {
			rec.Delete(key)
		}
	}
	return rec, nil
}

// FieldRenameMiddleware renames fields.
type FieldRenameMiddleware struct {
	Mapping map[string]string // old name -> new name
}

func (m *FieldRenameMiddleware) Name() string { return "field_rename" }

func (m *FieldRenameMiddleware) Process(rec *types.Record) (*types.Record, error) {
	olds := make([]string, 0, len(m.Mapping))
	for k := range m.Mapping {
		olds = append(olds, k)
	}
	sort.Strings(olds)

	for _, oldKey := range olds {
		newKey := m.Mapping[oldKey]
		if val, ok := rec.Get(oldKey); ok {
			rec.Delete(oldKey)
			rec.Set(newKey, val)
		}
	}
	return rec, nil
}

// RequiredFieldsMiddleware rejects records missing a required field. Absent
// and empty-string values count as missing.
type RequiredFieldsMiddleware struct {
	Fields []string
}

func (m *RequiredFieldsMiddleware) Name() string { return "required_fields" }

func (m *RequiredFieldsMiddleware) Process(rec *types.Record) (*types.Record, error) {
	for _, field := range m.Fields {
		if !rec.Has(field) {
			rec.Reject(fmt.Sprintf("missing required field %s", field))
			return rec, nil
		}
		val, _ := rec.Get(field)
		if s, ok := val.(string); ok && strings.TrimSpace(s) == "" {
			rec.Reject(fmt.Sprintf("missing required field %s", field))
			return rec, nil
		}
	}
	return rec, nil
}

// DefaultValueMiddleware sets default values for missing or Absent fields.
type DefaultValueMiddleware struct {
	Defaults map[string]any
}

func (m *DefaultValueMiddleware) Name() string { return "default_values" }

func (m *DefaultValueMiddleware) Process(rec *types.Record) (*types.Record, error) {
	for key, defaultVal := range m.Defaults {
		if !rec.Has(key) {
			rec.Set(key, defaultVal)
		}
	}
	return rec, nil
}

// TrimMiddleware trims whitespace from all string values, nested ones
// included.
type TrimMiddleware struct{}

func (m *TrimMiddleware) Name() string { return "trim" }

func (m *TrimMiddleware) Process(rec *types.Record) (*types.Record, error) {
	mapStrings(rec, strings.TrimSpace)
	return rec, nil
}

// mapStrings applies fn to every string value of rec, descending into nested
// records and lists. Absent values are left alone.
func mapStrings(rec *types.Record, fn func(string) string) {
	for _, key := range rec.Keys() {
		v, _ := rec.Get(key)
		rec.Set(key, mapValue(v, fn))
	}
}

func mapValue(v any, fn func(string) string) any {
	if types.IsAbsent(v) {
		return v
	}
	switch val := v.(type) {
	case string:
		return fn(val)
	case map[string]any:
		for k, inner := range val {
			val[k] = mapValue(inner, fn)
		}
		return val
	case []any:
		for i, inner := range val {
			val[i] = mapValue(inner, fn)
		}
		return val
	case []string:
		for i, inner := range val {
			val[i] = fn(inner)
		}
		return val
	default:
		return v
	}
}
