// Package state persists catalog responses in a local SQLite database so
// that lineage can be explored offline and refetched lazily.
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver (pure Go)

	"github.com/leapstack-labs/leaplineage/internal/catalog"
	"github.com/leapstack-labs/leaplineage/internal/lineage"
)

// ErrNotFound is returned when no fresh row exists for a key.
var ErrNotFound = fmt.Errorf("state: not found: %w", catalog.ErrCacheMiss)

var errNotOpened = errors.New("database not opened")

var _ catalog.Cache = (*SQLiteStore)(nil)

// GraphRecord describes a stored lineage response.
type GraphRecord struct {
	Key       catalog.GraphKey `json:"key"`
	EntityID  string           `json:"entityId"`
	FetchedAt time.Time        `json:"fetchedAt"`
}

// SQLiteStore stores lineage graphs and entity columns.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithTTL makes rows older than ttl read as missing. Zero keeps rows forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *SQLiteStore) { s.ttl = ttl }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *SQLiteStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewWithDB wraps an already opened database. Migrations are not run.
func NewWithDB(db *sql.DB, opts ...Option) *SQLiteStore {
	s := &SQLiteStore{
		db:     db,
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens (creating if needed) the database at path and migrates it.
// Use ":memory:" for an in-memory database.
func Open(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create state directory: %w", err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if path == ":memory:" {
		// every connection to :memory: is a different database
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s := NewWithDB(db, opts...)
	s.path = path
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.logger.Debug("state store opened", "path", path)
	return s, nil
}

// Path returns the database path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveGraph stores g under key, replacing any previous response.
func (s *SQLiteStore) SaveGraph(ctx context.Context, key catalog.GraphKey, g lineage.Graph) error {
	if s.db == nil {
		return errNotOpened
	}
	payload, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to encode graph: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO lineage_graphs (entity_type, fqn, upstream_depth, downstream_depth, entity_id, payload, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (entity_type, fqn, upstream_depth, downstream_depth)
		 DO UPDATE SET entity_id = excluded.entity_id, payload = excluded.payload, fetched_at = excluded.fetched_at`,
		string(key.Type), key.FQN, key.UpstreamDepth, key.DownstreamDepth, g.Entity.ID, string(payload), s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save graph %s: %w", key, err)
	}
	return nil
}

// GetGraph returns the graph stored under key.
func (s *SQLiteStore) GetGraph(ctx context.Context, key catalog.GraphKey) (lineage.Graph, error) {
	if s.db == nil {
		return lineage.Graph{}, errNotOpened
	}

	var payload string
	var fetchedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, fetched_at FROM lineage_graphs
		 WHERE entity_type = ? AND fqn = ? AND upstream_depth = ? AND downstream_depth = ?`,
		string(key.Type), key.FQN, key.UpstreamDepth, key.DownstreamDepth,
	).Scan(&payload, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return lineage.Graph{}, ErrNotFound
	}
	if err != nil {
		return lineage.Graph{}, fmt.Errorf("failed to get graph %s: %w", key, err)
	}
	if s.expired(fetchedAt) {
		return lineage.Graph{}, ErrNotFound
	}

	var g lineage.Graph
	if err := json.Unmarshal([]byte(payload), &g); err != nil {
		return lineage.Graph{}, fmt.Errorf("failed to decode graph %s: %w", key, err)
	}
	return g, nil
}

// ListGraphs returns every stored graph, most recently fetched first.
func (s *SQLiteStore) ListGraphs(ctx context.Context) ([]GraphRecord, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT entity_type, fqn, upstream_depth, downstream_depth, entity_id, fetched_at
		 FROM lineage_graphs ORDER BY fetched_at DESC, fqn`)
	if err != nil {
		return nil, fmt.Errorf("failed to list graphs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []GraphRecord
	for rows.Next() {
		var r GraphRecord
		var entityType string
		var fetchedAt int64
		if err := rows.Scan(&entityType, &r.Key.FQN, &r.Key.UpstreamDepth, &r.Key.DownstreamDepth, &r.EntityID, &fetchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan graph: %w", err)
		}
		r.Key.Type = lineage.EntityType(entityType)
		r.FetchedAt = time.UnixMilli(fetchedAt).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// ClearGraphs deletes every stored graph. Columns are kept.
func (s *SQLiteStore) ClearGraphs(ctx context.Context) error {
	if s.db == nil {
		return errNotOpened
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM lineage_graphs`); err != nil {
		return fmt.Errorf("failed to clear graphs: %w", err)
	}
	return nil
}

// SaveColumns stores the columns of an entity.
func (s *SQLiteStore) SaveColumns(ctx context.Context, entityID string, cols []lineage.Column) error {
	if s.db == nil {
		return errNotOpened
	}
	payload, err := json.Marshal(cols)
	if err != nil {
		return fmt.Errorf("failed to encode columns: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entity_columns (entity_id, payload, fetched_at) VALUES (?, ?, ?)
		 ON CONFLICT (entity_id) DO UPDATE SET payload = excluded.payload, fetched_at = excluded.fetched_at`,
		entityID, string(payload), s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save columns of %s: %w", entityID, err)
	}
	return nil
}

// GetColumns returns the stored columns of an entity.
func (s *SQLiteStore) GetColumns(ctx context.Context, entityID string) ([]lineage.Column, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	var payload string
	var fetchedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, fetched_at FROM entity_columns WHERE entity_id = ?`, entityID,
	).Scan(&payload, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get columns of %s: %w", entityID, err)
	}
	if s.expired(fetchedAt) {
		return nil, ErrNotFound
	}

	var cols []lineage.Column
	if err := json.Unmarshal([]byte(payload), &cols); err != nil {
		return nil, fmt.Errorf("failed to decode columns of %s: %w", entityID, err)
	}
	return cols, nil
}

func (s *SQLiteStore) expired(fetchedAtMillis int64) bool {
	if s.ttl <= 0 {
		return false
	}
	return s.now().Sub(time.UnixMilli(fetchedAtMillis)) > s.ttl
}
