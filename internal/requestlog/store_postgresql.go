package requestlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresInsert = `INSERT INTO ai_requests (` + insertColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	ON CONFLICT (id) DO NOTHING`

// PostgreSQLStore implements Store for PostgreSQL databases.
type PostgreSQLStore struct {
	pool          *pgxpool.Pool
	retentionDays int
	stopCleanup   chan struct{}
	closeOnce     sync.Once
}

// NewPostgreSQLStore creates the ai_requests table if needed and starts the
// cleanup loop when retention is configured.
func NewPostgreSQLStore(ctx context.Context, pool *pgxpool.Pool, retentionDays int) (*PostgreSQLStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS ai_requests (
			id UUID PRIMARY KEY,
			request_id TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			requested_model TEXT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			prompt_tokens INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			provider_cost_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
			cencori_charge_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
			markup_percentage DOUBLE PRECISION NOT NULL DEFAULT 0,
			latency_ms BIGINT NOT NULL DEFAULT 0,
			finish_reason TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			streamed BOOLEAN NOT NULL DEFAULT FALSE,
			prompt_hash TEXT NOT NULL DEFAULT ''
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create ai_requests table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_ai_requests_timestamp ON ai_requests(timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_ai_requests_request_id ON ai_requests(request_id)",
		"CREATE INDEX IF NOT EXISTS idx_ai_requests_provider ON ai_requests(provider)",
		"CREATE INDEX IF NOT EXISTS idx_ai_requests_user_id ON ai_requests(user_id)",
	}
	for _, idx := range indexes {
		if _, err := pool.Exec(ctx, idx); err != nil {
			slog.Warn("failed to create index", "error", err)
		}
	}

	store := &PostgreSQLStore{
		pool:          pool,
		retentionDays: retentionDays,
		stopCleanup:   make(chan struct{}),
	}
	if retentionDays > 0 {
		go RunCleanupLoop(store.stopCleanup, store.cleanup)
	}
	return store, nil
}

func entryArgs(e *Entry) []any {
	return []any{
		e.ID, e.RequestID, e.Timestamp, e.Provider, e.Model, e.RequestedModel, e.UserID,
		e.PromptTokens, e.CompletionTokens, e.TotalTokens,
		e.ProviderCostUSD, e.CencoriChargeUSD, e.MarkupPercentage,
		e.LatencyMs, e.FinishReason, e.Status, e.ErrorMessage, e.Streamed, e.PromptHash,
	}
}

// WriteBatch sends all inserts in one pgx batch inside a transaction.
func (s *PostgreSQLStore) WriteBatch(ctx context.Context, entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(postgresInsert, entryArgs(e)...)
	}

	results := tx.SendBatch(ctx, batch)
	var errs []error
	for _, e := range entries {
		if _, err := results.Exec(); err != nil {
			errs = append(errs, fmt.Errorf("insert %s: %w", e.ID, err))
		}
	}
	if err := results.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to insert %d request log entries: %w", len(entries), errors.Join(errs...))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Flush is a no-op for PostgreSQL as writes are synchronous.
func (s *PostgreSQLStore) Flush(_ context.Context) error {
	return nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (s *PostgreSQLStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCleanup)
	})
	return nil
}

func (s *PostgreSQLStore) cleanup() {
	if s.retentionDays <= 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	result, err := s.pool.Exec(ctx, "DELETE FROM ai_requests WHERE timestamp < $1", cutoff)
	if err != nil {
		slog.Error("failed to clean up old request log entries", "error", err)
		return
	}
	if result.RowsAffected() > 0 {
		slog.Info("cleaned up old request log entries", "deleted", result.RowsAffected())
	}
}
