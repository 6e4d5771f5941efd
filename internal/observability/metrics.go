package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// Metrics tracks the counters of one run. The driver updates them and the
// metrics endpoint and the end-of-run summary read them.
type Metrics struct {
	// Identifier metrics
	Enumerated  atomic.Int64
	Resumed     atomic.Int64
	Done        atomic.Int64
	Relevant    atomic.Int64
	NotRelevant atomic.Int64
	Failed      atomic.Int64
	Skipped     atomic.Int64

	// Fetch metrics
	Fetches         atomic.Int64
	FetchRetries    atomic.Int64
	FetchFailures   atomic.Int64
	BytesDownloaded atomic.Int64

	// Classification metrics
	Classifications      atomic.Int64
	ClassificationErrors atomic.Int64

	// Store metrics
	ProgressWrites atomic.Int64

	// Engine metrics
	ActiveWorkers atomic.Int32

	StartTime time.Time

	logger *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		StartTime: time.Now(),
		logger:    logger.With("component", "metrics"),
	}
}

type metric struct {
	name  string
	help  string
	kind  string
	value int64
}

func (m *Metrics) metrics() []metric {
	return []metric{
		{"gleaner_items_enumerated_total", "Identifiers produced by enumeration", "counter", m.Enumerated.Load()},
		{"gleaner_items_resumed_total", "Identifiers skipped because a previous run finished them", "counter", m.Resumed.Load()},
		{"gleaner_items_done_total", "Identifiers recorded as done", "counter", m.Done.Load()},
		{"gleaner_items_relevant_total", "Done identifiers with a relevant record", "counter", m.Relevant.Load()},
		{"gleaner_items_not_relevant_total", "Done identifiers rejected by a relevance gate", "counter", m.NotRelevant.Load()},
		{"gleaner_items_failed_total", "Done identifiers that ended in an error", "counter", m.Failed.Load()},
		{"gleaner_items_skipped_total", "Identifiers excluded by a pre-filter", "counter", m.Skipped.Load()},
		{"gleaner_fetches_total", "Fetch attempts", "counter", m.Fetches.Load()},
		{"gleaner_fetch_retries_total", "Fetch attempts beyond the first", "counter", m.FetchRetries.Load()},
		{"gleaner_fetch_failures_total", "Fetches that ended transient or permanent", "counter", m.FetchFailures.Load()},
		{"gleaner_bytes_downloaded_total", "Bytes of raw content received", "counter", m.BytesDownloaded.Load()},
		{"gleaner_classifications_total", "Records sent to the classification stages", "counter", m.Classifications.Load()},
		{"gleaner_classification_errors_total", "Classification stages that returned an error", "counter", m.ClassificationErrors.Load()},
		{"gleaner_progress_writes_total", "Durable progress store writes", "counter", m.ProgressWrites.Load()},
		{"gleaner_active_workers", "Currently active workers", "gauge", int64(m.ActiveWorkers.Load())},
	}
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	for _, metric := range m.metrics() {
		fmt.Fprintf(w, "# HELP %s %s\n", metric.name, metric.help)
		fmt.Fprintf(w, "# TYPE %s %s\n", metric.name, metric.kind)
		fmt.Fprintf(w, "%s %d\n", metric.name, metric.value)
	}
}

// Handler returns a mux serving the metrics at path and a /health probe.
func (m *Metrics) Handler(path string) http.Handler {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})
	return mux
}

// StartServer serves the metrics on addr until ctx is done.
func (m *Metrics) StartServer(ctx context.Context, addr, path string) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           m.Handler(path),
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.logger.Info("metrics server starting", "addr", addr, "path", path)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

// Snapshot returns all metrics as a map.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"enumerated":            m.Enumerated.Load(),
		"resumed":               m.Resumed.Load(),
		"done":                  m.Done.Load(),
		"relevant":              m.Relevant.Load(),
		"not_relevant":          m.NotRelevant.Load(),
		"failed":                m.Failed.Load(),
		"skipped":               m.Skipped.Load(),
		"fetches":               m.Fetches.Load(),
		"fetch_retries":         m.FetchRetries.Load(),
		"fetch_failures":        m.FetchFailures.Load(),
		"bytes_downloaded":      m.BytesDownloaded.Load(),
		"classifications":       m.Classifications.Load(),
		"classification_errors": m.ClassificationErrors.Load(),
		"progress_writes":       m.ProgressWrites.Load(),
		"active_workers":        int64(m.ActiveWorkers.Load()),
	}
}

// Elapsed returns the time since the metrics were created.
func (m *Metrics) Elapsed() time.Duration {
	return time.Since(m.StartTime)
}
