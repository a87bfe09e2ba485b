package requestlog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// SQLite binds at most 999 parameters per statement.
const (
	maxSQLiteParams    = 999
	columnsPerEntry    = 19
	maxEntriesPerBatch = maxSQLiteParams / columnsPerEntry
)

const insertColumns = `id, request_id, timestamp, provider, model, requested_model, user_id,
	prompt_tokens, completion_tokens, total_tokens,
	provider_cost_usd, cencori_charge_usd, markup_percentage,
	latency_ms, finish_reason, status, error_message, streamed, prompt_hash`

// SQLiteStore implements Store for SQLite databases.
type SQLiteStore struct {
	db            *sql.DB
	retentionDays int
	stopCleanup   chan struct{}
	closeOnce     sync.Once
}

// NewSQLiteStore creates the ai_requests table if needed and starts the
// cleanup loop when retention is configured.
func NewSQLiteStore(db *sql.DB, retentionDays int) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ai_requests (
			id TEXT PRIMARY KEY,
			request_id TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			requested_model TEXT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			prompt_tokens INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			provider_cost_usd REAL NOT NULL DEFAULT 0,
			cencori_charge_usd REAL NOT NULL DEFAULT 0,
			markup_percentage REAL NOT NULL DEFAULT 0,
			latency_ms INTEGER NOT NULL DEFAULT 0,
			finish_reason TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			streamed INTEGER NOT NULL DEFAULT 0,
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
		if _, err := db.Exec(idx); err != nil {
			slog.Warn("failed to create index", "error", err)
		}
	}

	store := &SQLiteStore{
		db:            db,
		retentionDays: retentionDays,
		stopCleanup:   make(chan struct{}),
	}
	if retentionDays > 0 {
		go RunCleanupLoop(store.stopCleanup, store.cleanup)
	}
	return store, nil
}

// WriteBatch inserts entries in chunks that fit SQLite's parameter limit.
func (s *SQLiteStore) WriteBatch(ctx context.Context, entries []*Entry) error {
	for i := 0; i < len(entries); i += maxEntriesPerBatch {
		end := min(i+maxEntriesPerBatch, len(entries))
		chunk := entries[i:end]

		placeholders := make([]string, len(chunk))
		values := make([]any, 0, len(chunk)*columnsPerEntry)
		for j, e := range chunk {
			placeholders[j] = "(?" + strings.Repeat(", ?", columnsPerEntry-1) + ")"
			values = append(values,
				e.ID,
				e.RequestID,
				e.Timestamp.UTC().Format(time.RFC3339Nano),
				e.Provider,
				e.Model,
				e.RequestedModel,
				e.UserID,
				e.PromptTokens,
				e.CompletionTokens,
				e.TotalTokens,
				e.ProviderCostUSD,
				e.CencoriChargeUSD,
				e.MarkupPercentage,
				e.LatencyMs,
				e.FinishReason,
				e.Status,
				e.ErrorMessage,
				e.Streamed,
				e.PromptHash,
			)
		}

		query := "INSERT OR IGNORE INTO ai_requests (" + insertColumns + ") VALUES " + strings.Join(placeholders, ",")
		if _, err := s.db.ExecContext(ctx, query, values...); err != nil {
			return fmt.Errorf("failed to insert request log batch %d: %w", i/maxEntriesPerBatch, err)
		}
	}
	return nil
}

// Flush is a no-op for SQLite as writes are synchronous.
func (s *SQLiteStore) Flush(_ context.Context) error {
	return nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (s *SQLiteStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCleanup)
	})
	return nil
}

func (s *SQLiteStore) cleanup() {
	if s.retentionDays <= 0 {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays).UTC().Format(time.RFC3339Nano)
	result, err := s.db.Exec("DELETE FROM ai_requests WHERE timestamp < ?", cutoff)
	if err != nil {
		slog.Error("failed to clean up old request log entries", "error", err)
		return
	}
	if n, err := result.RowsAffected(); err == nil && n > 0 {
		slog.Info("cleaned up old request log entries", "deleted", n)
	}
}
