package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/IshaanNene/gleaner/internal/config"
	"github.com/IshaanNene/gleaner/internal/types"
)

// Storage is the structured output sink. It receives the final set of
// relevant records, in enumeration order.
type Storage interface {
	// Store persists a batch of records.
	Store(records []*types.Record) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the storage backend identifier.
	Name() string
}

// New builds the sinks named in output.formats. Several formats fan out
// through a MultiStorage.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Storage, error) {
	var backends []Storage
	for _, format := range cfg.Output.Formats {
		var (
			s   Storage
			err error
		)
		switch format {
		case "mongo":
			s, err = NewMongoStorage(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Output.Collection, logger)
		default:
			path := filepath.Join(cfg.Output.Path, cfg.Output.Name+"."+format)
			s, err = NewFileStorage(format, path, logger)
		}
		if err != nil {
			closeAll(backends)
			return nil, &types.StorageError{Backend: format, Err: err}
		}
		backends = append(backends, s)
	}

	switch len(backends) {
	case 0:
		return nil, &types.ConfigError{Field: "output.formats", Err: fmt.Errorf("no output format configured")}
	case 1:
		return backends[0], nil
	default:
		return NewMultiStorage(backends, logger), nil
	}
}

// document is the output shape of one record: its fields plus "_id".
func document(rec *types.Record) map[string]any {
	doc := rec.Plain()
	doc["_id"] = rec.ID
	return doc
}

func closeAll(backends []Storage) {
	for _, b := range backends {
		_ = b.Close()
	}
}
