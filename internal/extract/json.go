package extract

import (
	"log/slog"

	"github.com/IshaanNene/gleaner/internal/config"
	"github.com/IshaanNene/gleaner/internal/types"
)

// JSONExtractor maps declared paths of an API document to fields. A body that
// is not JSON is an extraction failure; a path that is not present is Absent.
type JSONExtractor struct {
	rules  []config.ParseRule
	logger *slog.Logger
}

// NewJSONExtractor creates a JSON extractor. Only the name and path of each
// rule are used.
func NewJSONExtractor(rules []config.ParseRule, logger *slog.Logger) *JSONExtractor {
	return &JSONExtractor{
		rules:  rules,
		logger: logger.With("component", "json_extractor"),
	}
}

// Extract implements Extractor.
func (e *JSONExtractor) Extract(c *types.Content) types.Outcome {
	v, err := DecodeJSON(c.Body)
	if err != nil {
		return types.ExtractionFailed(c.ID, "malformed JSON", err)
	}

	rec := types.NewRecord(c.ID)
	for _, rule := range e.rules {
		path := rule.Path
		if path == "" {
			path = rule.Name
		}
		rec.Set(rule.Name, Lookup(v, path))
	}
	return types.Extracted(rec)
}
