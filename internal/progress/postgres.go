package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/IshaanNene/gleaner/internal/types"
)

const createTable = `CREATE TABLE IF NOT EXISTS %s (
	identifier TEXT PRIMARY KEY,
	ord        INTEGER NOT NULL,
	status     TEXT NOT NULL,
	record     JSONB,
	attempts   INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL,
	expanded   BOOLEAN NOT NULL DEFAULT false,
	children   JSONB
)`

// Tables created before expansion was recorded lack the last two columns.
const addExpansionColumns = `ALTER TABLE %s
	ADD COLUMN IF NOT EXISTS expanded BOOLEAN NOT NULL DEFAULT false,
	ADD COLUMN IF NOT EXISTS children JSONB`

const upsertEntry = `INSERT INTO %s
	(identifier, ord, status, record, attempts, last_error, updated_at, expanded, children)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (identifier) DO UPDATE SET
		ord = EXCLUDED.ord,
		status = EXCLUDED.status,
		record = EXCLUDED.record,
		attempts = EXCLUDED.attempts,
		last_error = EXCLUDED.last_error,
		updated_at = EXCLUDED.updated_at,
		expanded = EXCLUDED.expanded,
		children = EXCLUDED.children`

// pgRow is one row of the progress table.
type pgRow struct {
	types.ProgressEntry
	RecordJSON   []byte `db:"record"`
	ChildrenJSON []byte `db:"children"`
}

// PostgresStore keeps one row per identifier.
type PostgresStore struct {
	*index
	db     *sqlx.DB
	table  string
	logger *slog.Logger
}

// NewPostgresStore connects and creates the table if it does not exist. The
// table name is validated by config.Validate.
func NewPostgresStore(ctx context.Context, dsn, table string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	for _, stmt := range []string{createTable, addExpansionColumns} {
		if _, err := db.ExecContext(ctx, fmt.Sprintf(stmt, table)); err != nil {
			db.Close()
			return nil, fmt.Errorf("create progress table: %w", err)
		}
	}
	return &PostgresStore{
		index:  newIndex(),
		db:     db,
		table:  table,
		logger: logger.With("component", "postgres_progress"),
	}, nil
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context) error {
	var rows []pgRow
	err := s.db.SelectContext(ctx, &rows, fmt.Sprintf(
		`SELECT identifier, ord, status, record, attempts, last_error, updated_at, expanded, children
		FROM %s ORDER BY ord`, s.table))
	if err != nil {
		return &types.StorageError{Backend: "postgres", Err: fmt.Errorf("load progress: %w", err)}
	}

	entries := make([]types.ProgressEntry, 0, len(rows))
	for _, row := range rows {
		e := row.ProgressEntry
		if len(row.RecordJSON) > 0 {
			var rec types.Record
			if err := json.Unmarshal(row.RecordJSON, &rec); err != nil {
				s.logger.Warn("skipping unreadable progress row", "id", e.ID, "error", &types.StoreCorruptionError{Path: s.table, Err: err})
				continue
			}
			e.Record = &rec
		}
		if len(row.ChildrenJSON) > 0 {
			if err := json.Unmarshal(row.ChildrenJSON, &e.Children); err != nil {
				s.logger.Warn("ignoring unreadable children", "id", e.ID, "error", &types.StoreCorruptionError{Path: s.table, Err: err})
				e.Expanded, e.Children = false, nil
			}
		}
		entries = append(entries, e)
	}

	s.reset(entries)
	s.logger.Info("progress loaded", "table", s.table, "entries", len(entries))
	return nil
}

// Record implements Store.
func (s *PostgresStore) Record(ctx context.Context, entry types.ProgressEntry) error {
	merged := s.put(entry)

	var record any
	if merged.Record != nil {
		b, err := types.MarshalJSON(merged.Record)
		if err != nil {
			return &types.StorageError{Backend: "postgres", Err: fmt.Errorf("encode record %s: %w", merged.ID, err)}
		}
		record = string(b)
	}
	var children any
	if merged.Expanded {
		b, err := json.Marshal(append([]string{}, merged.Children...))
		if err != nil {
			return &types.StorageError{Backend: "postgres", Err: fmt.Errorf("encode children %s: %w", merged.ID, err)}
		}
		children = string(b)
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(wctx, fmt.Sprintf(upsertEntry, s.table),
		merged.ID, merged.Order, string(merged.Status), record, merged.Attempts, merged.LastError, merged.UpdatedAt, merged.Expanded, children)
	if err != nil {
		return &types.StorageError{Backend: "postgres", Err: fmt.Errorf("upsert %s: %w", merged.ID, err)}
	}
	return nil
}

func (s *PostgresStore) Has(id string) bool                        { return s.has(id) }
func (s *PostgresStore) Get(id string) (types.ProgressEntry, bool) { return s.get(id) }
func (s *PostgresStore) All() []types.ProgressEntry                { return s.ordered() }

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
