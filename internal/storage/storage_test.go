package storage

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/gleaner/internal/config"
	"github.com/IshaanNene/gleaner/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func sampleRecords() []*types.Record {
	a := types.NewRecord("https://x.test/treaty-a")
	a.Set("title", "Treaty A")
	a.Set("signed", types.Absent)
	a.Set("parties", []any{"France", "Spain"})

	b := types.NewRecord("https://x.test/treaty-b")
	b.Set("title", "Treaty B")
	b.Set("signed", "1648")
	return []*types.Record{a, b}
}

func TestJSONStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "records.json")
	s, err := NewJSONStorage(path, testLogger)
	require.NoError(t, err)
	require.NoError(t, s.Store(sampleRecords()))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got []map[string]any
	require.NoError(t, json.Unmarshal(data, &got))

	require.Len(t, got, 2)
	assert.Equal(t, "https://x.test/treaty-a", got[0]["_id"])
	assert.Equal(t, types.AbsentMarker, got[0]["signed"])
	assert.Equal(t, []any{"France", "Spain"}, got[0]["parties"])
	assert.Equal(t, "1648", got[1]["signed"])

	_, err = os.Stat(path + ".tmp")
	assert.True(t, errors.Is(err, os.ErrNotExist), "temporary file should be renamed away")
}

func TestJSONLStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.jsonl")
	s, err := NewJSONLStorage(path, testLogger)
	require.NoError(t, err)
	require.NoError(t, s.Store(sampleRecords()))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "Treaty A", first["title"])
}

func TestCSVStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.csv")
	s, err := NewCSVStorage(path, testLogger)
	require.NoError(t, err)
	require.NoError(t, s.Store(sampleRecords()))
	require.NoError(t, s.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, []string{"_id", "parties", "signed", "title"}, rows[0])
	assert.Equal(t, []string{"https://x.test/treaty-a", `["France","Spain"]`, types.AbsentMarker, "Treaty A"}, rows[1])
	assert.Equal(t, []string{"https://x.test/treaty-b", "", "1648", "Treaty B"}, rows[2])
}

type failingStorage struct{ closed bool }

func (f *failingStorage) Store([]*types.Record) error { return errors.New("disk full") }
func (f *failingStorage) Close() error                { f.closed = true; return nil }
func (f *failingStorage) Name() string                { return "failing" }

func TestMultiStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.json")
	js, err := NewJSONStorage(path, testLogger)
	require.NoError(t, err)
	bad := &failingStorage{}

	m := NewMultiStorage([]Storage{bad, js}, testLogger)
	err = m.Store(sampleRecords())
	var se *types.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "failing", se.Backend)

	require.NoError(t, m.Close())
	assert.True(t, bad.closed)
	_, err = os.Stat(path)
	assert.NoError(t, err, "healthy backends still write")
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Output.Path = t.TempDir()
	cfg.Output.Formats = []string{"json", "csv"}

	s, err := New(context.Background(), cfg, testLogger)
	require.NoError(t, err)
	assert.Equal(t, "multi", s.Name())
	require.NoError(t, s.Store(sampleRecords()))
	require.NoError(t, s.Close())

	for _, name := range []string{"records.json", "records.csv"} {
		_, err := os.Stat(filepath.Join(cfg.Output.Path, name))
		assert.NoError(t, err, name)
	}

	cfg.Output.Formats = []string{"xml"}
	_, err = New(context.Background(), cfg, testLogger)
	assert.Error(t, err)

	cfg.Output.Formats = nil
	_, err = New(context.Background(), cfg, testLogger)
	var ce *types.ConfigError
	assert.ErrorAs(t, err, &ce)
}
