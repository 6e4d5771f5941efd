// Package extract turns raw content into records. Extractors are pure: the
// same content always yields the same outcome, and no lookup is allowed to
// panic or error past Extract. Missing nodes become types.Absent.
package extract

import (
	"fmt"
	"log/slog"

	"github.com/IshaanNene/gleaner/internal/config"
	"github.com/IshaanNene/gleaner/internal/types"
)

// Extractor produces an Outcome from raw content.
type Extractor interface {
	Extract(c *types.Content) types.Outcome
}

// Gate is a pure relevance check that runs after structural extraction.
type Gate interface {
	Name() string
	Check(rec *types.Record) (ok bool, reason string)
}

// Gated runs an extractor and then its gates. The first gate that rejects the
// record turns the outcome into NotRelevant; the record keeps its fields.
type Gated struct {
	inner Extractor
	gates []Gate
}

// WithGates wraps e with gates, evaluated in order.
func WithGates(e Extractor, gates ...Gate) *Gated {
	return &Gated{inner: e, gates: gates}
}

// Extract implements Extractor.
func (g *Gated) Extract(c *types.Content) types.Outcome {
	out := Safe(g.inner, c)
	if out.Kind != types.OutcomeExtracted {
		return out
	}
	for _, gate := range g.gates {
		if ok, reason := gate.Check(out.Record); !ok {
			return types.NotRelevant(out.Record, gate.Name()+": "+reason)
		}
	}
	return out
}

// Safe calls e.Extract and converts a panic into a Failed outcome.
func Safe(e Extractor, c *types.Content) (out types.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = types.ExtractionFailed(c.ID, "extractor panic", fmt.Errorf("%v", r))
		}
	}()
	return e.Extract(c)
}

// New builds the extractor selected by extract.kind together with the pure
// gates that the configuration enables.
func New(ec config.ExtractConfig, logger *slog.Logger) (Extractor, error) {
	var base Extractor
	switch ec.Kind {
	case "article":
		base = NewArticleExtractor(ec.Article, logger)
	case "json":
		base = NewJSONExtractor(ec.Rules, logger)
	case "rules", "":
		re, err := NewRuleExtractor(ec.Rules, ec.Readability, logger)
		if err != nil {
			return nil, err
		}
		base = re
	default:
		return nil, fmt.Errorf("unknown extractor kind %q", ec.Kind)
	}

	var gates []Gate
	if ec.MinLength > 0 {
		gates = append(gates, MinLengthGate{Field: ec.LengthField, Min: ec.MinLength})
	}
	if len(ec.Keywords) > 0 {
		fields := ec.KeywordFields
		if len(fields) == 0 {
			fields = []string{"title", "text"}
		}
		gates = append(gates, NewKeywordGate(fields, ec.Keywords))
	}
	return WithGates(base, gates...), nil
}
