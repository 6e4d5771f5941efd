package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/IshaanNene/gleaner/internal/config"
	"github.com/IshaanNene/gleaner/internal/fetcher"
	"github.com/IshaanNene/gleaner/internal/types"
)

// DefaultPrompt asks for a bare 0/1 verdict on whether the text is about Topic.
const DefaultPrompt = `You are a classifier. Your task is to decide if the following text is
DIRECTLY related to {{.Topic}}.

Important rules:
- Answer 1 if it is directly related.
- Answer 0 if it is not related, or only mentions the topic in passing.
- Do not explain. Do not output anything else besides 0 or 1.

Text:
----------------
{{.Text}}
----------------

Your answer (only 0 or 1):`

// Stage is a post-extraction step that calls out to a completion service.
type Stage interface {
	Name() string
	Apply(ctx context.Context, rec *types.Record) error
}

// promptData is what prompt templates see.
type promptData struct {
	ID       string
	Topic    string
	Title    string
	Text     string
	MaxWords int
	Fields   map[string]any
}

// Option configures a Classifier or Summarizer.
type Option func(*runner)

// WithSleep replaces the delay between attempts.
func WithSleep(sleep fetcher.SleepFunc) Option {
	return func(r *runner) { r.sleep = sleep }
}

// runner holds what the classifier and summarizer share: the completer, the
// retry contract and prompt rendering.
type runner struct {
	completer Completer
	tmpl      *template.Template
	field     string
	maxChars  int
	topic     string
	policy    fetcher.Policy
	sleep     fetcher.SleepFunc
	logger    *slog.Logger
}

func newRunner(c Completer, name, prompt string, cc config.ClassifyConfig, opts []Option) (*runner, error) {
	tmpl, err := template.New(name).Option("missingkey=zero").Parse(prompt)
	if err != nil {
		return nil, &types.ConfigError{Field: "classify.prompt", Err: err}
	}
	r := &runner{
		completer: c,
		tmpl:      tmpl,
		field:     cc.Field,
		maxChars:  cc.MaxChars,
		topic:     cc.Topic,
		policy:    fetcher.FixedPolicy(cc.Attempts, cc.Delay),
		sleep:     fetcher.Sleep,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// render builds the prompt for rec. The output depends only on the record.
func (r *runner) render(rec *types.Record, field string, maxWords int) (string, error) {
	data := promptData{
		ID:       rec.ID,
		Topic:    r.topic,
		Title:    rec.GetString("title"),
		Text:     truncate(rec.GetString(field), r.maxChars),
		MaxWords: maxWords,
		Fields:   rec.Plain(),
	}
	var sb strings.Builder
	if err := r.tmpl.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// call runs the completion under the retry policy. parse decides whether a
// response is usable; a rejected response is retried like a failed call.
func (r *runner) call(ctx context.Context, id, prompt string, parse func(string) error) (string, error) {
	var last string
	attempts, err := fetcher.Retry(ctx, r.policy, r.sleep,
		func(error) bool { return ctx.Err() == nil },
		func(ctx context.Context, attempt int) error {
			resp, err := r.completer.Complete(ctx, prompt)
			if err != nil {
				r.logger.Debug("completion failed", "id", id, "attempt", attempt, "error", err)
				return err
			}
			last = resp
			if err := parse(resp); err != nil {
				r.logger.Debug("unusable completion", "id", id, "attempt", attempt, "response", resp)
				return err
			}
			return nil
		})
	if err != nil {
		return last, &types.ClassificationError{ID: id, Response: last, Attempts: attempts, Err: err}
	}
	return last, nil
}

// Classifier is the binary relevance step.
type Classifier struct {
	*runner
}

// NewClassifier builds a classifier from config. An empty classify.prompt
// uses DefaultPrompt.
func NewClassifier(c Completer, cc config.ClassifyConfig, logger *slog.Logger, opts ...Option) (*Classifier, error) {
	prompt := cc.Prompt
	if prompt == "" {
		prompt = DefaultPrompt
	}
	r, err := newRunner(c, "classify", prompt, cc, opts)
	if err != nil {
		return nil, err
	}
	r.logger = logger.With("component", "classifier")
	return &Classifier{runner: r}, nil
}

func (c *Classifier) Name() string { return "classifier" }

// Prompt renders the classification prompt for rec.
func (c *Classifier) Prompt(rec *types.Record) (string, error) {
	return c.render(rec, c.field, 0)
}

// Classify asks the completion service whether rec is relevant.
func (c *Classifier) Classify(ctx context.Context, rec *types.Record) (bool, error) {
	prompt, err := c.Prompt(rec)
	if err != nil {
		return false, &types.ClassificationError{ID: rec.ID, Err: err}
	}

	var verdict bool
	_, err = c.call(ctx, rec.ID, prompt, func(resp string) error {
		v, err := ParseBinary(resp)
		verdict = v
		return err
	})
	if err != nil {
		return false, err
	}
	return verdict, nil
}

// Apply rejects rec when the verdict is 0. A classification error also
// rejects it and is returned so it lands in the progress entry.
func (c *Classifier) Apply(ctx context.Context, rec *types.Record) error {
	if !rec.Relevant {
		return nil
	}
	ok, err := c.Classify(ctx, rec)
	if err != nil {
		rec.Reject("classification failed")
		return err
	}
	if !ok {
		rec.Reject("classifier: not related to " + c.topicLabel())
	}
	return nil
}

func (c *Classifier) topicLabel() string {
	if c.topic == "" {
		return "topic"
	}
	return c.topic
}

// ParseBinary accepts exactly "0" or "1", ignoring surrounding whitespace.
func ParseBinary(resp string) (bool, error) {
	switch strings.TrimSpace(resp) {
	case "1":
		return true, nil
	case "0":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q", types.ErrUninterpretable, resp)
}

// IsCancelled reports whether err came from the caller's context rather
// than the completion service.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var _ Stage = (*Classifier)(nil)

