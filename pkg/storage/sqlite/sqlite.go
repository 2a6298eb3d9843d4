// Package sqlite provides a single-file storage.HistoryStore backed by
// modernc.org/sqlite. It needs no external database and suits single-node
// deployments that must survive restarts.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rhuss/steward/pkg/api"
	"github.com/rhuss/steward/pkg/storage"
)

const schema = `
	CREATE TABLE IF NOT EXISTS conversations (
		tenant_id  TEXT NOT NULL DEFAULT '',
		id         TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (tenant_id, id)
	);

	CREATE TABLE IF NOT EXISTS conversation_turns (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id       TEXT NOT NULL DEFAULT '',
		conversation_id TEXT NOT NULL,
		role            TEXT NOT NULL,
		content         TEXT NOT NULL,
		created_at      TEXT NOT NULL,
		CHECK (role IN ('user', 'assistant')),
		FOREIGN KEY (tenant_id, conversation_id) REFERENCES conversations (tenant_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_turns_conversation
		ON conversation_turns (tenant_id, conversation_id, id);
`

// Store is a SQLite-backed HistoryStore.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ storage.HistoryStore = (*Store)(nil)

// New opens (or creates) the database at path and ensures the schema.
// Parent directories are created if needed.
func New(path string) (*Store, error) {
	logger := slog.Default().With("component", "history")

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("sqlite history store initialized", "path", path)
	return &Store{db: db, logger: logger}, nil
}

// GetMessages returns up to limit of the most recent turns, oldest first.
func (s *Store) GetMessages(ctx context.Context, conversationID string, limit int) ([]api.Turn, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, created_at
		FROM conversation_turns
		WHERE tenant_id = ? AND conversation_id = ?
		ORDER BY id DESC
		LIMIT ?`, storage.GetTenant(ctx), conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()

	var turns []api.Turn
	for rows.Next() {
		var role, content, created string
		if err := rows.Scan(&role, &content, &created); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("parsing turn timestamp %q: %w", created, err)
		}
		turns = append(turns, api.Turn{Role: api.Role(role), Content: content, CreatedAt: ts})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating turns: %w", err)
	}

	slices.Reverse(turns)
	return turns, nil
}

// AddMessage appends a turn, creating the conversation row on first use.
func (s *Store) AddMessage(ctx context.Context, conversationID string, role api.Role, content string) error {
	if err := storage.ValidateTurn(conversationID, role); err != nil {
		return err
	}
	tenantID := storage.GetTenant(ctx)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (tenant_id, id, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (tenant_id, id) DO UPDATE SET updated_at = excluded.updated_at`,
		tenantID, conversationID, now, now); err != nil {
		return fmt.Errorf("upserting conversation: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversation_turns (tenant_id, conversation_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		tenantID, conversationID, string(role), content, now); err != nil {
		return fmt.Errorf("inserting turn: %w", err)
	}
	return tx.Commit()
}

// HealthCheck verifies the database is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
