// Package circuitbreaker tracks upstream health per provider and stops sending
// traffic to a provider after repeated failures.
//
// A circuit opens after FailureThreshold failures, moves to half-open once
// OpenTimeout has elapsed since the last failure, closes on the next success and
// reopens on the next failure.
package circuitbreaker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// State is the position of a circuit.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

const (
	DefaultFailureThreshold = 5
	DefaultOpenTimeout      = 60 * time.Second
)

// Circuit is the persisted state of one provider's circuit.
type Circuit struct {
	State       State     `json:"state"`
	Failures    int       `json:"failures"`
	LastFailure time.Time `json:"last_failure"`
	LastSuccess time.Time `json:"last_success"`
}

// Store persists circuits. Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the circuit for provider; ok is false when none is stored.
	Get(ctx context.Context, provider string) (c Circuit, ok bool, err error)
	Set(ctx context.Context, provider string, c Circuit) error
}

// Config holds breaker thresholds.
type Config struct {
	FailureThreshold int
	OpenTimeout      time.Duration
}

// Breaker guards providers. State is always mirrored in memory so reads keep
// working when the shared store is unavailable.
type Breaker struct {
	cfg    Config
	store  Store
	memory *MemoryStore
	mu     sync.Mutex
	now    func() time.Time
}

// New creates a breaker. A nil store keeps state in memory only.
func New(cfg Config, store Store) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultOpenTimeout
	}
	return &Breaker{
		cfg:    cfg,
		store:  store,
		memory: NewMemoryStore(),
		now:    time.Now,
	}
}

func (b *Breaker) load(ctx context.Context, provider string) Circuit {
	if b.store != nil {
		c, ok, err := b.store.Get(ctx, provider)
		if err != nil {
			slog.Warn("circuit store read failed, using memory", "provider", provider, "error", err)
		} else if ok {
			return c
		}
	}
	if c, ok, _ := b.memory.Get(ctx, provider); ok {
		return c
	}
	return Circuit{State: StateClosed, LastSuccess: b.now()}
}

func (b *Breaker) save(ctx context.Context, provider string, c Circuit) {
	_ = b.memory.Set(ctx, provider, c)
	if b.store == nil {
		return
	}
	if err := b.store.Set(ctx, provider, c); err != nil {
		slog.Warn("circuit store write failed", "provider", provider, "error", err)
	}
}

// Allow reports whether a request to provider may proceed. An open circuit whose
// timeout has elapsed transitions to half-open and lets the request through.
func (b *Breaker) Allow(ctx context.Context, provider string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.load(ctx, provider)
	if c.State != StateOpen {
		return true
	}
	if b.now().Sub(c.LastFailure) >= b.cfg.OpenTimeout {
		c.State = StateHalfOpen
		b.save(ctx, provider, c)
		slog.Info("circuit half-open", "provider", provider)
		return true
	}
	return false
}

// RecordSuccess closes a half-open circuit and resets the failure count.
func (b *Breaker) RecordSuccess(ctx context.Context, provider string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.load(ctx, provider)
	if c.State == StateHalfOpen {
		slog.Info("circuit closed", "provider", provider)
	}
	c.State = StateClosed
	c.Failures = 0
	c.LastSuccess = b.now()
	b.save(ctx, provider, c)
}

// RecordFailure counts a failure and opens the circuit when the threshold is
// reached or a half-open probe fails.
func (b *Breaker) RecordFailure(ctx context.Context, provider string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.load(ctx, provider)
	c.Failures++
	c.LastFailure = b.now()

	switch {
	case c.State == StateHalfOpen:
		c.State = StateOpen
		slog.Warn("circuit reopened", "provider", provider)
	case c.State == StateClosed && c.Failures >= b.cfg.FailureThreshold:
		c.State = StateOpen
		slog.Warn("circuit opened", "provider", provider, "failures", c.Failures)
	}
	b.save(ctx, provider, c)
}

// Status returns the current circuit for provider.
func (b *Breaker) Status(ctx context.Context, provider string) Circuit {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.load(ctx, provider)
}

// Reset forces the circuit for provider closed.
func (b *Breaker) Reset(ctx context.Context, provider string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.save(ctx, provider, Circuit{State: StateClosed, LastSuccess: b.now()})
}

// Snapshot returns every circuit this instance has seen.
func (b *Breaker) Snapshot() map[string]Circuit {
	return b.memory.All()
}
