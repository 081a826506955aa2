package interaction

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"lifeboard/internal/logging"
)

// SQLiteStore is a local Store implementation. It backs the engine when
// the dashboard backend is unreachable or for standalone use, with the
// same append/delete-only contract as the remote store.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

var _ Store = (*SQLiteStore)(nil)
var _ ReadMarker = (*SQLiteStore)(nil)

// NewSQLiteStore initializes the SQLite database at the given path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db, dbPath: path}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initialize creates the required tables.
// The seq column preserves insertion order for equal-timestamp rows.
func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS interactions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		interaction_type TEXT NOT NULL,
		content TEXT NOT NULL,
		metadata TEXT,
		is_read INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_interactions_created ON interactions(created_at, seq);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// List returns the full log in (created_at, seq) order.
func (s *SQLiteStore) List(ctx context.Context) ([]Interaction, error) {
	timer := logging.StartTimer(logging.CategoryStore, "SQLiteStore.List")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, interaction_type, content, metadata, created_at
		 FROM interactions
		 ORDER BY created_at ASC, seq ASC`)
	if err != nil {
		logging.StoreError("Failed to query interactions: %v", err)
		return nil, err
	}
	defer rows.Close()

	var out []Interaction
	for rows.Next() {
		var it Interaction
		var typ string
		var metaJSON sql.NullString
		if err := rows.Scan(&it.ID, &typ, &it.Content, &metaJSON, &it.CreatedAt); err != nil {
			return nil, err
		}
		it.Type = Type(typ)
		if metaJSON.Valid && metaJSON.String != "" {
			var meta map[string]any
			if err := json.Unmarshal([]byte(metaJSON.String), &meta); err == nil {
				it.Metadata = Metadata(meta)
			}
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	logging.StoreDebug("Listed %d interactions from sqlite", len(out))
	return out, nil
}

// Create appends one interaction, assigning an ID and timestamp if unset.
func (s *SQLiteStore) Create(ctx context.Context, it Interaction) (Interaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Now().UTC()
	}

	var metaJSON any
	if it.Metadata != nil {
		data, err := json.Marshal(it.Metadata)
		if err != nil {
			return Interaction{}, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metaJSON = string(data)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interactions (id, interaction_type, content, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		it.ID, string(it.Type), it.Content, metaJSON, it.CreatedAt)
	if err != nil {
		logging.StoreError("Failed to insert interaction %s: %v", it.ID, err)
		return Interaction{}, err
	}

	logging.StoreDebug("Created interaction id=%s type=%s content_len=%d",
		it.ID, it.Type, len(it.Content))
	return it, nil
}

// BulkDelete removes the records with the given IDs.
func (s *SQLiteStore) BulkDelete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	_, err := s.db.ExecContext(ctx,
		"DELETE FROM interactions WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		logging.StoreError("Failed to bulk-delete %d interactions: %v", len(ids), err)
		return err
	}

	logging.StoreDebug("Bulk-deleted %d interactions", len(ids))
	return nil
}

// DeleteAll clears the log.
func (s *SQLiteStore) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM interactions")
	if err != nil {
		logging.StoreError("Failed to delete all interactions: %v", err)
		return err
	}
	return nil
}

// MarkAllRead flags every interaction as read.
func (s *SQLiteStore) MarkAllRead(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "UPDATE interactions SET is_read = 1 WHERE is_read = 0")
	return err
}
