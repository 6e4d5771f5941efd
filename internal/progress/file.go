package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/IshaanNene/gleaner/internal/types"
)

// documentVersion is bumped when the on-disk layout changes.
const documentVersion = 1

// document is the on-disk layout of a FileStore.
type document struct {
	Version   int                   `json:"version"`
	RunID     string                `json:"run_id"`
	UpdatedAt time.Time             `json:"updated_at"`
	Entries   []types.ProgressEntry `json:"entries"`
}

// FileStore keeps progress in a single JSON document. Every Record rewrites
// the whole document to a temp file and renames it over the old one, so the
// file on disk is always either the previous or the new complete document.
type FileStore struct {
	*index
	path   string
	runID  string
	writeM sync.Mutex
	logger *slog.Logger
}

// NewFileStore creates a file-backed store. Nothing is read until Load.
func NewFileStore(path, runID string, logger *slog.Logger) *FileStore {
	return &FileStore{
		index:  newIndex(),
		path:   path,
		runID:  runID,
		logger: logger.With("component", "file_progress"),
	}
}

// Load reads the document. A missing file is an empty store. A document that
// cannot be decoded is moved aside to <path>.corrupt and the store starts
// empty.
func (s *FileStore) Load(_ context.Context) error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.reset(nil)
		return nil
	}
	if err != nil {
		s.quarantine(err)
		return nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.quarantine(err)
		return nil
	}
	if doc.Version > documentVersion {
		s.quarantine(fmt.Errorf("unsupported document version %d", doc.Version))
		return nil
	}

	s.reset(doc.Entries)
	s.logger.Info("progress loaded",
		"path", s.path,
		"entries", len(doc.Entries),
		"previous_run", doc.RunID,
	)
	return nil
}

func (s *FileStore) quarantine(cause error) {
	err := &types.StoreCorruptionError{Path: s.path, Err: cause}
	aside := s.path + ".corrupt"
	if rerr := os.Rename(s.path, aside); rerr != nil && !errors.Is(rerr, fs.ErrNotExist) {
		s.logger.Warn("could not move corrupt progress file aside", "path", s.path, "error", rerr)
		aside = ""
	}
	s.logger.Warn("progress store unreadable, starting empty", "error", err, "moved_to", aside)
	s.reset(nil)
}

// Record implements Store.
func (s *FileStore) Record(_ context.Context, entry types.ProgressEntry) error {
	s.writeM.Lock()
	defer s.writeM.Unlock()

	s.put(entry)
	if err := s.write(); err != nil {
		return &types.StorageError{Backend: "file", Err: err}
	}
	return nil
}

// write replaces the document on disk: write to <path>.tmp, fsync, rename.
func (s *FileStore) write() error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create progress dir: %w", err)
		}
	}

	doc := document{
		Version:   documentVersion,
		RunID:     s.runID,
		UpdatedAt: time.Now().UTC(),
		Entries:   s.snapshot(),
	}

	tmpPath := s.path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create progress file: %w", err)
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		f.Close()
		return fmt.Errorf("encode progress: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync progress file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close progress file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename progress file: %w", err)
	}
	return nil
}

func (s *FileStore) Has(id string) bool                        { return s.has(id) }
func (s *FileStore) Get(id string) (types.ProgressEntry, bool) { return s.get(id) }
func (s *FileStore) All() []types.ProgressEntry                { return s.ordered() }
func (s *FileStore) Close() error                              { return nil }

// Path returns the document path.
func (s *FileStore) Path() string { return s.path }
