package requestlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cencori/config"
	"cencori/internal/storage"
)

// Result holds the logger and the storage it owns.
// The caller must call Close during shutdown.
type Result struct {
	Logger  LoggerInterface
	Storage storage.Storage
}

// Close releases the logger and any storage it owns. Safe to call multiple times.
func (r *Result) Close() error {
	var errs []error
	if r.Logger != nil {
		if err := r.Logger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("logger close: %w", err))
		}
	}
	if r.Storage != nil {
		if err := r.Storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}

// New opens the configured storage and returns a logger writing to it.
// A disabled request log returns a NoopLogger and no storage.
func New(ctx context.Context, cfg *config.Config) (*Result, error) {
	if !cfg.RequestLog.Enabled {
		return &Result{Logger: NoopLogger{}}, nil
	}

	store, err := storage.New(ctx, StorageConfig(cfg.Storage))
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	res, err := NewWithSharedStorage(ctx, cfg, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	res.Storage = store
	return res, nil
}

// NewWithSharedStorage returns a logger over a connection owned by the caller.
func NewWithSharedStorage(ctx context.Context, cfg *config.Config, store storage.Storage) (*Result, error) {
	if !cfg.RequestLog.Enabled {
		return &Result{Logger: NoopLogger{}}, nil
	}
	if store == nil {
		return nil, fmt.Errorf("storage is required when the request log is enabled")
	}

	logStore, err := NewStore(ctx, store, cfg.RequestLog.RetentionDays)
	if err != nil {
		return nil, err
	}
	return &Result{Logger: NewLogger(logStore, LoggerConfig(cfg.RequestLog))}, nil
}

// NewStore creates the Store matching the active storage backend.
func NewStore(ctx context.Context, store storage.Storage, retentionDays int) (Store, error) {
	switch store.Type() {
	case storage.TypeSQLite:
		return NewSQLiteStore(store.SQLiteDB(), retentionDays)
	case storage.TypePostgreSQL:
		return NewPostgreSQLStore(ctx, store.PostgreSQLPool(), retentionDays)
	case storage.TypeMongoDB:
		return NewMongoDBStore(ctx, store.MongoDatabase(), retentionDays)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", store.Type())
	}
}

// StorageConfig converts the storage section, applying defaults.
func StorageConfig(c config.StorageConfig) storage.Config {
	cfg := storage.DefaultConfig()
	if c.Type != "" {
		cfg.Type = c.Type
	}
	if c.SQLite.Path != "" {
		cfg.SQLite.Path = c.SQLite.Path
	}
	cfg.PostgreSQL.URL = c.PostgreSQL.URL
	if c.PostgreSQL.MaxConns > 0 {
		cfg.PostgreSQL.MaxConns = c.PostgreSQL.MaxConns
	}
	cfg.MongoDB.URL = c.MongoDB.URL
	if c.MongoDB.Database != "" {
		cfg.MongoDB.Database = c.MongoDB.Database
	}
	return cfg
}

// LoggerConfig converts the request_log section, applying defaults.
func LoggerConfig(c config.RequestLogConfig) Config {
	cfg := DefaultConfig()
	cfg.Enabled = c.Enabled
	cfg.RetentionDays = c.RetentionDays
	if c.BufferSize > 0 {
		cfg.BufferSize = c.BufferSize
	}
	if c.FlushInterval > 0 {
		cfg.FlushInterval = time.Duration(c.FlushInterval) * time.Second
	}
	return cfg
}
