package requestlog

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// BatchFlushThreshold is the number of buffered entries that triggers a write
// without waiting for the flush interval.
const BatchFlushThreshold = 100

// LoggerInterface is implemented by Logger and NoopLogger.
type LoggerInterface interface {
	Write(entry *Entry)
	Config() Config
	Close() error
}

// Logger provides async buffered logging with batch writes.
// Entries are flushed when the batch is full or at every flush interval.
type Logger struct {
	store         Store
	config        Config
	buffer        chan *Entry
	done          chan struct{}
	wg            sync.WaitGroup
	writes        sync.WaitGroup // in-flight Write calls
	flushInterval time.Duration
	closed        atomic.Bool
}

// NewLogger creates a Logger and starts its flush goroutine.
func NewLogger(store Store, cfg Config) *Logger {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	l := &Logger{
		store:         store,
		config:        cfg,
		buffer:        make(chan *Entry, cfg.BufferSize),
		done:          make(chan struct{}),
		flushInterval: cfg.FlushInterval,
	}

	l.wg.Add(1)
	go l.flushLoop()

	return l
}

// Write queues entry without blocking. The entry is dropped with a warning
// when the buffer is full or the logger is closed.
func (l *Logger) Write(entry *Entry) {
	if entry == nil || l.closed.Load() {
		return
	}

	l.writes.Add(1)
	defer l.writes.Done()

	// Close may have started between the first check and Add.
	if l.closed.Load() {
		return
	}

	select {
	case l.buffer <- entry:
	default:
		requestID := entry.RequestID
		if requestID == "" {
			requestID = "unknown"
		}
		slog.Warn("request log buffer full, dropping entry",
			"request_id", requestID,
			"provider", entry.Provider,
			"model", entry.Model,
		)
	}
}

// Config returns the logger configuration
func (l *Logger) Config() Config {
	return l.config
}

// Close stops the logger, writes the remaining entries and closes the store.
// It is idempotent.
func (l *Logger) Close() error {
	if l.closed.Swap(true) {
		return nil
	}

	l.writes.Wait()
	close(l.done)
	l.wg.Wait()

	return l.store.Close()
}

func (l *Logger) flushLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()

	batch := make([]*Entry, 0, BatchFlushThreshold)

	for {
		select {
		case entry := <-l.buffer:
			batch = append(batch, entry)
			if len(batch) >= BatchFlushThreshold {
				l.flushBatch(batch)
				batch = make([]*Entry, 0, BatchFlushThreshold)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				l.flushBatch(batch)
				batch = make([]*Entry, 0, BatchFlushThreshold)
			}

		case <-l.done:
			close(l.buffer)
			for entry := range l.buffer {
				batch = append(batch, entry)
			}
			if len(batch) > 0 {
				l.flushBatch(batch)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := l.store.Flush(ctx); err != nil {
				slog.Error("failed to flush request log store", "error", err)
			}
			cancel()
			return
		}
	}
}

func (l *Logger) flushBatch(batch []*Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := l.store.WriteBatch(ctx, batch); err != nil {
		slog.Error("failed to write request log batch",
			"error", err,
			"count", len(batch),
		)
	}
}

// NoopLogger discards entries. It is used when the request log is disabled.
type NoopLogger struct{}

// Write does nothing
func (NoopLogger) Write(*Entry) {}

// Config returns a disabled config
func (NoopLogger) Config() Config {
	return Config{Enabled: false}
}

// Close does nothing
func (NoopLogger) Close() error {
	return nil
}
