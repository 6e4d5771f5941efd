package extract

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/IshaanNene/gleaner/internal/types"
)

// MinLengthGate rejects records whose Field holds fewer than Min characters.
type MinLengthGate struct {
	Field string
	Min   int
}

func (g MinLengthGate) Name() string { return "min_length" }

func (g MinLengthGate) Check(rec *types.Record) (bool, string) {
	n := utf8.RuneCountInString(strings.TrimSpace(rec.GetString(g.Field)))
	if n < g.Min {
		return false, fmt.Sprintf("%s has %d characters, need %d", g.Field, n, g.Min)
	}
	return true, ""
}

// KeywordGate accepts a record when any of its fields contains a word from
// the vocabulary, ignoring case.
type KeywordGate struct {
	fields     []string
	vocabulary []string
}

// NewKeywordGate creates a keyword gate over the given fields.
func NewKeywordGate(fields, vocabulary []string) *KeywordGate {
	words := make([]string, 0, len(vocabulary))
	for _, w := range vocabulary {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			words = append(words, w)
		}
	}
	return &KeywordGate{fields: fields, vocabulary: words}
}

func (g *KeywordGate) Name() string { return "keywords" }

func (g *KeywordGate) Check(rec *types.Record) (bool, string) {
	for _, f := range g.fields {
		text := strings.ToLower(rec.GetString(f))
		if text == "" {
			continue
		}
		for _, w := range g.vocabulary {
			if strings.Contains(text, w) {
				return true, ""
			}
		}
	}
	return false, "no keyword in " + strings.Join(g.fields, ", ")
}
