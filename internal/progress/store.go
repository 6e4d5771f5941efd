// Package progress persists the outcome of every identifier so that an
// interrupted run can resume where it stopped. All backends share the same
// in-memory index; the backend only decides how an entry reaches disk.
package progress

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/IshaanNene/gleaner/internal/config"
	"github.com/IshaanNene/gleaner/internal/types"
)

// Store is the durable progress record.
type Store interface {
	// Load reads persisted entries. A store that cannot be read back starts
	// empty; that is logged, not returned.
	Load(ctx context.Context) error

	// Has reports whether id has a terminal entry (Done or Skipped).
	Has(id string) bool

	// Get returns the entry for id.
	Get(id string) (types.ProgressEntry, bool)

	// Record upserts an entry and makes it durable before returning.
	Record(ctx context.Context, entry types.ProgressEntry) error

	// All returns every entry ordered by enumeration order.
	All() []types.ProgressEntry

	// Close releases resources.
	Close() error
}

// New opens the configured backend.
func New(ctx context.Context, cfg *config.Config, runID string, logger *slog.Logger) (Store, error) {
	switch cfg.Progress.Backend {
	case "file", "":
		return NewFileStore(cfg.Progress.Path, runID, logger), nil
	case "mongo":
		return NewMongoStore(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Progress.Collection, logger)
	case "postgres":
		return NewPostgresStore(ctx, cfg.Progress.DSN, cfg.Progress.Table, logger)
	default:
		return nil, &types.ConfigError{Field: "progress.backend", Err: fmt.Errorf("unknown backend %q", cfg.Progress.Backend)}
	}
}

// index holds one entry per identifier in insertion order.
type index struct {
	mu      sync.RWMutex
	pos     map[string]int
	entries []types.ProgressEntry
}

func newIndex() *index {
	return &index{pos: make(map[string]int)}
}

// reset replaces the contents with loaded entries. A duplicated identifier
// keeps its first position and its last value.
func (ix *index) reset(entries []types.ProgressEntry) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.pos = make(map[string]int, len(entries))
	ix.entries = ix.entries[:0]
	for _, e := range entries {
		if i, ok := ix.pos[e.ID]; ok {
			ix.entries[i] = e
			continue
		}
		ix.pos[e.ID] = len(ix.entries)
		ix.entries = append(ix.entries, e)
	}
}

// put merges e over any existing entry and returns the stored value.
// Attempts accumulate across writes; everything else is last-write-wins.
func (ix *index) put(e types.ProgressEntry) types.ProgressEntry {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now().UTC()
	}
	if i, ok := ix.pos[e.ID]; ok {
		e.Attempts += ix.entries[i].Attempts
		ix.entries[i] = e
		return e
	}
	ix.pos[e.ID] = len(ix.entries)
	ix.entries = append(ix.entries, e)
	return e
}

func (ix *index) get(id string) (types.ProgressEntry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	i, ok := ix.pos[id]
	if !ok {
		return types.ProgressEntry{}, false
	}
	return ix.entries[i], true
}

func (ix *index) has(id string) bool {
	e, ok := ix.get(id)
	return ok && e.Status.Terminal()
}

// snapshot returns a copy in insertion order.
func (ix *index) snapshot() []types.ProgressEntry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return append([]types.ProgressEntry(nil), ix.entries...)
}

// ordered returns a copy sorted by enumeration order.
func (ix *index) ordered() []types.ProgressEntry {
	out := ix.snapshot()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Counts summarises a set of entries.
type Counts struct {
	Total    int `json:"total"`
	Done     int `json:"done"`
	Relevant int `json:"relevant"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
	Pending  int `json:"pending"`
}

// Count tallies entries. Done counts successful completions only; failures
// are Done entries with an error and are counted under Failed. Listing pages
// are not work items and are left out.
func Count(entries []types.ProgressEntry) Counts {
	var c Counts
	for _, e := range entries {
		if e.Status == types.StatusListed {
			continue
		}
		c.Total++
		switch {
		case e.Status == types.StatusSkipped:
			c.Skipped++
		case e.Failed():
			c.Failed++
		case e.Status == types.StatusDone:
			c.Done++
			if e.Relevant() {
				c.Relevant++
			}
		default:
			c.Pending++
		}
	}
	return c
}
