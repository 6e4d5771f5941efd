package progress

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/gleaner/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func done(id string, order int, rec *types.Record) types.ProgressEntry {
	return types.ProgressEntry{ID: id, Order: order, Status: types.StatusDone, Record: rec, Attempts: 1}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	ctx := context.Background()

	s := NewFileStore(path, "run-1", testLogger)
	require.NoError(t, s.Load(ctx))

	rec := types.NewRecord("https://x.test/a")
	rec.Set("title", "A")
	rec.Set("date", types.Absent)
	rec.Set("nested", map[string]any{"place": types.Absent, "n": float64(3)})

	require.NoError(t, s.Record(ctx, types.ProgressEntry{ID: "https://x.test/a", Order: 0, Status: types.StatusPending}))
	assert.False(t, s.Has("https://x.test/a"), "pending is not terminal")

	require.NoError(t, s.Record(ctx, done("https://x.test/a", 0, rec)))
	require.NoError(t, s.Record(ctx, types.ProgressEntry{ID: "https://x.test/b", Order: 1, Status: types.StatusSkipped, LastError: "robots.txt"}))
	require.NoError(t, s.Record(ctx, types.ProgressEntry{ID: "https://x.test/c", Order: 2, Status: types.StatusPending}))

	reloaded := NewFileStore(path, "run-2", testLogger)
	require.NoError(t, reloaded.Load(ctx))

	assert.True(t, reloaded.Has("https://x.test/a"))
	assert.True(t, reloaded.Has("https://x.test/b"))
	assert.False(t, reloaded.Has("https://x.test/c"))
	assert.False(t, reloaded.Has("https://x.test/unknown"))

	got, ok := reloaded.Get("https://x.test/a")
	require.True(t, ok)
	assert.Equal(t, types.StatusDone, got.Status)
	assert.Equal(t, "A", got.Record.GetString("title"))
	assert.True(t, types.IsAbsent(got.Record.Fields["date"]))
	assert.True(t, types.IsAbsent(got.Record.Fields["nested"].(map[string]any)["place"]))
	assert.Equal(t, rec.Fields, got.Record.Fields)

	all := reloaded.All()
	require.Len(t, all, 3)
	assert.Equal(t, []string{"https://x.test/a", "https://x.test/b", "https://x.test/c"},
		[]string{all[0].ID, all[1].ID, all[2].ID})

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must not be left behind")
}

func TestFileStoreOnDiskLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "progress.json")
	s := NewFileStore(path, "run-42", testLogger)
	require.NoError(t, s.Load(context.Background()))
	rec := types.NewRecord("id-1")
	rec.Set("period", types.Absent)
	require.NoError(t, s.Record(context.Background(), done("id-1", 0, rec)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, float64(documentVersion), doc["version"])
	assert.Equal(t, "run-42", doc["run_id"])
	entries := doc["entries"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, "id-1", entries[0].(map[string]any)["identifier"])
	assert.Equal(t, "done", entries[0].(map[string]any)["status"])

	entry := entries[0].(map[string]any)
	lastErr, present := entry["last_error"]
	assert.True(t, present, "last_error is always written")
	assert.Nil(t, lastErr)
	assert.Contains(t, string(data), `"period": "<TBD>"`)
	assert.NotContains(t, string(data), `\u003c`)
}

func TestFileStoreKeepsExpansion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	ctx := context.Background()

	s := NewFileStore(path, "run-1", testLogger)
	require.NoError(t, s.Load(ctx))
	require.NoError(t, s.Record(ctx, types.ProgressEntry{
		ID: "https://x.test/list", Order: -1, Status: types.StatusListed,
		Expanded: true, Children: []string{"https://x.test/a", "https://x.test/b"},
	}))
	require.NoError(t, s.Record(ctx, types.ProgressEntry{ID: "https://x.test/empty", Order: -1, Status: types.StatusListed, Expanded: true}))

	reloaded := NewFileStore(path, "run-2", testLogger)
	require.NoError(t, reloaded.Load(ctx))

	got, ok := reloaded.Get("https://x.test/list")
	require.True(t, ok)
	assert.True(t, got.Expanded)
	assert.Equal(t, []string{"https://x.test/a", "https://x.test/b"}, got.Children)
	assert.False(t, reloaded.Has("https://x.test/list"), "a listing is not a finished work item")

	empty, ok := reloaded.Get("https://x.test/empty")
	require.True(t, ok)
	assert.True(t, empty.Expanded, "an expansion without links is still remembered")
	assert.Empty(t, empty.Children)
}

func TestFileStoreCorruptStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "progress.json")
	ctx := context.Background()

	s := NewFileStore(path, "run-1", testLogger)
	require.NoError(t, s.Load(ctx))
	require.NoError(t, s.Record(ctx, done("a", 0, types.NewRecord("a"))))
	require.NoError(t, s.Record(ctx, done("b", 1, types.NewRecord("b"))))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)/2], 0o644))

	recovered := NewFileStore(path, "run-2", testLogger)
	require.NoError(t, recovered.Load(ctx), "corruption is recovered, not returned")
	assert.Empty(t, recovered.All())
	assert.False(t, recovered.Has("a"))

	aside, err := os.ReadFile(path + ".corrupt")
	require.NoError(t, err, "corrupt document is kept for inspection")
	assert.Equal(t, data[:len(data)/2], aside)

	require.NoError(t, recovered.Record(ctx, done("c", 0, types.NewRecord("c"))))
	again := NewFileStore(path, "run-3", testLogger)
	require.NoError(t, again.Load(ctx))
	assert.True(t, again.Has("c"))
}

func TestIndexAccumulatesAttempts(t *testing.T) {
	ix := newIndex()
	ix.put(types.ProgressEntry{ID: "a", Status: types.StatusPending})
	ix.put(types.ProgressEntry{ID: "a", Status: types.StatusDone, Attempts: 3, LastError: "HTTP 503"})
	ix.put(types.ProgressEntry{ID: "b", Order: 1, Status: types.StatusDone, Attempts: 1})

	e, _ := ix.get("a")
	assert.Equal(t, 3, e.Attempts)
	assert.True(t, e.Failed())

	e = ix.put(types.ProgressEntry{ID: "a", Status: types.StatusDone, Attempts: 1})
	assert.Equal(t, 4, e.Attempts)
	assert.False(t, e.Failed())
	assert.Len(t, ix.snapshot(), 2, "one entry per identifier")
}

func TestCount(t *testing.T) {
	relevant := types.NewRecord("r")
	rejected := types.NewRecord("n")
	rejected.Reject("gate")

	c := Count([]types.ProgressEntry{
		done("r", 0, relevant),
		done("n", 1, rejected),
		{ID: "f", Status: types.StatusDone, LastError: "HTTP 404"},
		{ID: "s", Status: types.StatusSkipped},
		{ID: "p", Status: types.StatusPending},
		{ID: "l", Order: -1, Status: types.StatusListed, Expanded: true},
	})
	assert.Equal(t, Counts{Total: 5, Done: 2, Relevant: 1, Failed: 1, Skipped: 1, Pending: 1}, c)
}
