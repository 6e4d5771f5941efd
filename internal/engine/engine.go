// Package engine drives a run: it enumerates work items, skips what the
// progress store already finished, and pushes everything else through
// fetch, extract, classification and clean-up before recording the outcome.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/IshaanNene/gleaner/internal/config"
	"github.com/IshaanNene/gleaner/internal/observability"
	"github.com/IshaanNene/gleaner/internal/progress"
	"github.com/IshaanNene/gleaner/internal/types"
)

// State represents the engine's lifecycle state.
type State int32

const (
	StateIdle    State = 0
	StateRunning State = 1
	StateStopped State = 2
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Fetcher retrieves raw content for a work item. It never fails outright;
// failures are carried in the result.
type Fetcher interface {
	Fetch(ctx context.Context, item types.WorkItem) types.FetchResult
}

// Extractor turns raw content into a record.
type Extractor interface {
	Extract(c *types.Content) types.Outcome
}

// Stage is a post-extraction step backed by a completion service, such as
// the binary classifier or the summarizer.
type Stage interface {
	Name() string
	Apply(ctx context.Context, rec *types.Record) error
}

// Pipeline cleans a record before it is persisted.
type Pipeline interface {
	Process(rec *types.Record) (*types.Record, error)
}

// Sink receives the final set of relevant records.
type Sink interface {
	Store(records []*types.Record) error
	Close() error
	Name() string
}

// Summary reports the outcome of a run over the enumerated identifiers.
type Summary struct {
	Enumerated   int           `json:"enumerated"`
	Resumed      int           `json:"resumed"`
	Done         int           `json:"done"`
	Relevant     int           `json:"relevant"`
	NotRelevant  int           `json:"not_relevant"`
	Failed       int           `json:"failed"`
	Skipped      int           `json:"skipped"`
	Pending      int           `json:"pending"`
	NotAttempted int           `json:"not_attempted"`
	Written      int           `json:"written"`
	Fetches      int64         `json:"fetches"`
	Retries      int64         `json:"retries"`
	Bytes        int64         `json:"bytes"`
	CapReached   bool          `json:"cap_reached"`
	Interrupted  bool          `json:"interrupted"`
	Elapsed      time.Duration `json:"elapsed"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithStages appends classification stages, run in order.
func WithStages(stages ...Stage) Option {
	return func(e *Engine) { e.stages = append(e.stages, stages...) }
}

// WithPipeline sets the record clean-up pipeline.
func WithPipeline(p Pipeline) Option {
	return func(e *Engine) { e.pipeline = p }
}

// WithSink sets the output sink.
func WithSink(s Sink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithFilters appends pre-filters.
func WithFilters(filters ...Filter) Option {
	return func(e *Engine) { e.filters = append(e.filters, filters...) }
}

// WithEnumerator replaces the enumerator built from configuration.
func WithEnumerator(en *Enumerator) Option {
	return func(e *Engine) { e.enumerator = en }
}

// WithMetrics shares a metrics instance, e.g. one served over HTTP.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine is the driver. A single Engine performs a single Run.
type Engine struct {
	cfg        *config.Config
	logger     *slog.Logger
	fetcher    Fetcher
	extractor  Extractor
	store      progress.Store
	enumerator *Enumerator
	stages     []Stage
	pipeline   Pipeline
	sink       Sink
	filters    []Filter
	metrics    *observability.Metrics

	state    atomic.Int32
	relevant atomic.Int64
}

// New creates an Engine.
func New(cfg *config.Config, logger *slog.Logger, fetcher Fetcher, extractor Extractor, store progress.Store, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:       cfg,
		logger:    logger.With("component", "engine"),
		fetcher:   fetcher,
		extractor: extractor,
		store:     store,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.metrics == nil {
		e.metrics = observability.NewMetrics(logger)
	}
	if e.enumerator == nil {
		en, err := NewEnumerator(cfg.Enumerate, fetcher, logger)
		if err != nil {
			return nil, err
		}
		e.enumerator = en
	}
	e.enumerator.SetListingStore(store)
	return e, nil
}

// Metrics returns the run counters.
func (e *Engine) Metrics() *observability.Metrics {
	return e.metrics
}

// GetState returns the current engine state.
func (e *Engine) GetState() State {
	return State(e.state.Load())
}

// Run processes seeds to completion, to the relevant cap, or until ctx is
// cancelled. Cancellation is not an error: the summary is marked
// Interrupted. Only configuration problems and progress store write failures
// are returned as errors.
func (e *Engine) Run(ctx context.Context, seeds []string) (*Summary, error) {
	if !e.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return nil, fmt.Errorf("engine is in state %s, cannot run", State(e.state.Load()))
	}
	defer e.state.Store(int32(StateStopped))

	e.logger.Info("engine starting",
		"workers", e.cfg.Engine.Workers,
		"max_relevant", e.cfg.Engine.MaxRelevant,
		"expand_depth", e.cfg.Enumerate.ExpandDepth,
		"stages", len(e.stages),
		"filters", len(e.filters),
	)

	if err := e.store.Load(ctx); err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}

	items, err := e.enumerator.Enumerate(ctx, seeds)
	if err != nil {
		if ctx.Err() != nil {
			e.logger.Warn("run interrupted during enumeration")
			return e.summarize(nil, 0, true), nil
		}
		return nil, fmt.Errorf("enumerate: %w", err)
	}
	e.metrics.Enumerated.Add(int64(len(items)))
	e.logger.Info("enumerated", "items", len(items), "seeds", len(seeds))

	e.relevant.Store(int64(e.countRelevant(items)))
	if e.capped() {
		e.logger.Info("relevant cap already reached", "relevant", e.relevant.Load())
	}

	err = e.schedule(ctx, items)
	interrupted := ctx.Err() != nil
	if err != nil && !interrupted {
		return nil, err
	}
	if interrupted {
		e.logger.Warn("run interrupted, progress is saved")
	}

	written, err := e.emit(items)
	if err != nil {
		return nil, err
	}

	summary := e.summarize(items, written, interrupted)
	e.logger.Info("engine stopped", "stats", e.metrics.Snapshot())
	return summary, nil
}

// process runs one work item through the state machine
// Pending -> Fetching -> Extracting -> Done and records the outcome. Only a
// progress store failure, cancellation or the relevant cap stop it early.
func (e *Engine) process(ctx context.Context, item types.WorkItem) error {
	if e.store.Has(item.ID) {
		e.metrics.Resumed.Add(1)
		return nil
	}
	if e.capped() {
		return errCapReached
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	logger := e.logger.With("id", item.ID)

	for _, f := range e.filters {
		if ok, reason := f.Allow(ctx, item); !ok {
			e.metrics.Skipped.Add(1)
			logger.Info("skipped", "filter", f.Name(), "reason", reason)
			skipped := e.newEntry(item, types.StatusSkipped)
			skipped.LastError = reason
			return e.record(ctx, skipped)
		}
	}

	entry := e.newEntry(item, types.StatusPending)
	if err := e.record(ctx, entry); err != nil {
		return err
	}

	res, reused := e.enumerator.Take(item.ID)
	if !reused {
		res = e.fetcher.Fetch(ctx, item)
	}
	e.metrics.Fetches.Add(int64(res.Attempts))
	if res.Attempts > 1 {
		e.metrics.FetchRetries.Add(int64(res.Attempts - 1))
	}
	if !res.OK() {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.metrics.FetchFailures.Add(1)
		return e.fail(ctx, entry, res.Attempts, res.Err)
	}
	e.metrics.BytesDownloaded.Add(int64(len(res.Content.Body)))

	out := e.extractor.Extract(res.Content)
	if out.Kind == types.OutcomeFailed {
		return e.fail(ctx, entry, res.Attempts, out.Err)
	}
	rec := out.Record

	var lastErr string
	for _, stage := range e.stages {
		if !rec.Relevant {
			break
		}
		e.metrics.Classifications.Add(1)
		if err := stage.Apply(ctx, rec); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.metrics.ClassificationErrors.Add(1)
			lastErr = err.Error()
			logger.Warn("classification failed", "stage", stage.Name(), "reason", err)
		}
	}

	if e.pipeline != nil {
		processed, err := e.pipeline.Process(rec)
		switch {
		case err != nil:
			rec.Reject(err.Error())
			logger.Warn("pipeline rejected record", "reason", err)
		case processed != nil:
			rec = processed
		}
	}

	entry.Status = types.StatusDone
	entry.Record = rec
	entry.Attempts = res.Attempts
	entry.LastError = lastErr
	if err := e.record(ctx, entry); err != nil {
		return err
	}

	switch {
	case entry.Relevant():
		e.metrics.Done.Add(1)
		e.metrics.Relevant.Add(1)
		n := e.relevant.Add(1)
		logger.Info("relevant", "relevant_total", n)
		if limit := e.cfg.Engine.MaxRelevant; limit > 0 && n == int64(limit) {
			e.logger.Info("relevant cap reached, stopping dispatch", "max_relevant", limit)
		}
	case entry.Failed():
		e.metrics.Failed.Add(1)
	default:
		e.metrics.Done.Add(1)
		e.metrics.NotRelevant.Add(1)
		logger.Debug("not relevant", "reason", rec.Reason)
	}
	return nil
}

// newEntry starts the entry for item, keeping links recorded while expanding
// it.
func (e *Engine) newEntry(item types.WorkItem, status types.Status) types.ProgressEntry {
	entry := types.ProgressEntry{ID: item.ID, Order: item.Order, Status: status}
	if prev, ok := e.store.Get(item.ID); ok && prev.Expanded {
		entry.Expanded = true
		entry.Children = prev.Children
	}
	return entry
}

// fail records a terminal failure for entry.
func (e *Engine) fail(ctx context.Context, entry types.ProgressEntry, attempts int, cause error) error {
	e.metrics.Failed.Add(1)
	e.logger.Warn("item failed", "id", entry.ID, "attempts", attempts, "reason", cause)

	entry.Status = types.StatusDone
	entry.Attempts = attempts
	entry.LastError = cause.Error()
	return e.record(ctx, entry)
}

// record makes entry durable. Failing to do so is fatal for the run.
func (e *Engine) record(ctx context.Context, entry types.ProgressEntry) error {
	if err := e.store.Record(ctx, entry); err != nil {
		return fmt.Errorf("record progress for %s: %w", entry.ID, err)
	}
	e.metrics.ProgressWrites.Add(1)
	return nil
}

func (e *Engine) capped() bool {
	limit := e.cfg.Engine.MaxRelevant
	return limit > 0 && e.relevant.Load() >= int64(limit)
}

func (e *Engine) countRelevant(items []types.WorkItem) int {
	n := 0
	for _, item := range items {
		if entry, ok := e.store.Get(item.ID); ok && entry.Relevant() {
			n++
		}
	}
	return n
}

// Records returns the Done and relevant records of items in enumeration
// order, truncated to the relevant cap.
func (e *Engine) Records(items []types.WorkItem) []*types.Record {
	var records []*types.Record
	for _, item := range items {
		entry, ok := e.store.Get(item.ID)
		if !ok || !entry.Relevant() {
			continue
		}
		records = append(records, entry.Record)
		if limit := e.cfg.Engine.MaxRelevant; limit > 0 && len(records) >= limit {
			break
		}
	}
	return records
}

// emit hands the output records to the sink.
func (e *Engine) emit(items []types.WorkItem) (int, error) {
	records := e.Records(items)
	if e.sink == nil {
		return len(records), nil
	}
	if err := e.sink.Store(records); err != nil {
		return 0, fmt.Errorf("write output: %w", err)
	}
	if err := e.sink.Close(); err != nil {
		return 0, fmt.Errorf("close output: %w", err)
	}
	e.logger.Info("output written", "sink", e.sink.Name(), "records", len(records))
	return len(records), nil
}

func (e *Engine) summarize(items []types.WorkItem, written int, interrupted bool) *Summary {
	entries := make([]types.ProgressEntry, 0, len(items))
	for _, item := range items {
		if entry, ok := e.store.Get(item.ID); ok {
			entries = append(entries, entry)
		}
	}
	counts := progress.Count(entries)

	return &Summary{
		Enumerated:   len(items),
		Resumed:      int(e.metrics.Resumed.Load()),
		Done:         counts.Done,
		Relevant:     counts.Relevant,
		NotRelevant:  counts.Done - counts.Relevant,
		Failed:       counts.Failed,
		Skipped:      counts.Skipped,
		Pending:      counts.Pending,
		NotAttempted: len(items) - len(entries),
		Written:      written,
		Fetches:      e.metrics.Fetches.Load(),
		Retries:      e.metrics.FetchRetries.Load(),
		Bytes:        e.metrics.BytesDownloaded.Load(),
		CapReached:   e.capped(),
		Interrupted:  interrupted,
		Elapsed:      e.metrics.Elapsed(),
	}
}
