package circuitbreaker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemoryStore keeps circuits in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	circuits map[string]Circuit
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{circuits: make(map[string]Circuit)}
}

func (s *MemoryStore) Get(_ context.Context, provider string) (Circuit, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.circuits[provider]
	return c, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, provider string, c Circuit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.circuits[provider] = c
	return nil
}

// All returns a copy of every stored circuit.
func (s *MemoryStore) All() map[string]Circuit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Circuit, len(s.circuits))
	for k, v := range s.circuits {
		out[k] = v
	}
	return out
}

const (
	// DefaultRedisPrefix namespaces circuit keys in Redis.
	DefaultRedisPrefix = "circuit:"
	// DefaultRedisTTL expires circuits nobody has touched for an hour.
	DefaultRedisTTL = time.Hour
)

// RedisStore shares circuits between gateway instances.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore wraps an existing client. The client is owned by the caller.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: DefaultRedisPrefix, ttl: DefaultRedisTTL}
}

func (s *RedisStore) Get(ctx context.Context, provider string) (Circuit, bool, error) {
	data, err := s.client.Get(ctx, s.prefix+provider).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Circuit{}, false, nil
		}
		return Circuit{}, false, fmt.Errorf("failed to read circuit: %w", err)
	}
	var c Circuit
	if err := json.Unmarshal(data, &c); err != nil {
		return Circuit{}, false, fmt.Errorf("failed to parse circuit: %w", err)
	}
	return c, true, nil
}

func (s *RedisStore) Set(ctx context.Context, provider string, c Circuit) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal circuit: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+provider, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write circuit: %w", err)
	}
	return nil
}
