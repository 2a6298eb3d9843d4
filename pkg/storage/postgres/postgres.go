// Package postgres provides a PostgreSQL implementation of
// storage.HistoryStore. It uses pgx/v5 for connection pooling; each turn is
// one row in conversation_turns, ordered by its serial id.
package postgres

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/steward/pkg/api"
	"github.com/rhuss/steward/pkg/storage"
)

// Store is a PostgreSQL-backed HistoryStore.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.HistoryStore = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// GetMessages returns up to limit of the most recent turns, oldest first.
func (s *Store) GetMessages(ctx context.Context, conversationID string, limit int) ([]api.Turn, error) {
	query := `
		SELECT role, content, created_at
		FROM conversation_turns
		WHERE tenant_id = $1 AND conversation_id = $2
		ORDER BY id DESC`
	args := []any{storage.GetTenant(ctx), conversationID}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	turns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (api.Turn, error) {
		var (
			t    api.Turn
			role string
		)
		err := row.Scan(&role, &t.Content, &t.CreatedAt)
		t.Role = api.Role(role)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("reading turns: %w", err)
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
	now := time.Now().UTC()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO conversations (tenant_id, id, created_at, updated_at)
			VALUES ($1, $2, $3, $3)
			ON CONFLICT (tenant_id, id) DO UPDATE SET updated_at = EXCLUDED.updated_at
		`, tenantID, conversationID, now); err != nil {
			return fmt.Errorf("upserting conversation: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO conversation_turns (tenant_id, conversation_id, role, content, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, tenantID, conversationID, string(role), content, now); err != nil {
			return fmt.Errorf("inserting turn: %w", err)
		}
		return nil
	})
	return err
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
