package classify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/IshaanNene/gleaner/internal/config"
	"github.com/IshaanNene/gleaner/internal/types"
)

// DefaultSummaryPrompt asks for a grounded summary of at most MaxWords words.
const DefaultSummaryPrompt = `Based only on the following text, write a concise summary of at most {{.MaxWords}} words.
Do not invent anything that is not stated in the text.
Be objective and reflect the overall content of the text.

Here is the text:
---
{{.Text}}
---

Summary:`

// Summarizer writes "<field>_summary" onto relevant records. It never fails
// a record: when the service cannot produce a summary the field is set to
// the absence marker.
type Summarizer struct {
	*runner
	maxWords int
	target   string
}

// NewSummarizer builds a summarizer from config.
func NewSummarizer(c Completer, cc config.ClassifyConfig, logger *slog.Logger, opts ...Option) (*Summarizer, error) {
	sc := cc.Summarize
	prompt := sc.Prompt
	if prompt == "" {
		prompt = DefaultSummaryPrompt
	}
	cc.Field = sc.Field
	r, err := newRunner(c, "summarize", prompt, cc, opts)
	if err != nil {
		return nil, err
	}
	r.logger = logger.With("component", "summarizer")
	return &Summarizer{
		runner:   r,
		maxWords: sc.MaxWords,
		target:   sc.Field + "_summary",
	}, nil
}

func (s *Summarizer) Name() string { return "summarizer" }

// Field returns the name of the field the summary is written to.
func (s *Summarizer) Field() string { return s.target }

// Apply implements Stage.
func (s *Summarizer) Apply(ctx context.Context, rec *types.Record) error {
	if !rec.Relevant {
		return nil
	}
	if !rec.Has(s.field) {
		rec.Set(s.target, types.Absent)
		return nil
	}

	prompt, err := s.render(rec, s.field, s.maxWords)
	if err != nil {
		rec.Set(s.target, types.Absent)
		s.logger.Warn("summary prompt failed", "id", rec.ID, "error", err)
		return nil
	}

	resp, err := s.call(ctx, rec.ID, prompt, func(resp string) error {
		if strings.TrimSpace(resp) == "" {
			return fmt.Errorf("%w: empty summary", types.ErrUninterpretable)
		}
		return nil
	})
	if err != nil {
		if IsCancelled(err) {
			return err
		}
		rec.Set(s.target, types.Absent)
		s.logger.Warn("summary failed", "id", rec.ID, "error", err)
		return nil
	}

	rec.Set(s.target, strings.TrimSpace(resp))
	return nil
}

var _ Stage = (*Summarizer)(nil)
