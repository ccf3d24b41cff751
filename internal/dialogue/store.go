package dialogue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long an abandoned conversation is kept
const DefaultTTL = 24 * time.Hour

// Store keeps the current state of each identity
type Store interface {
	// Get returns nil when the identity is idle
	Get(ctx context.Context, id int64) (State, error)
	Set(ctx context.Context, id int64, s State) error
	Clear(ctx context.Context, id int64) error
}

// RedisStore keeps states in redis under dialogue:<id>
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a redis-backed store
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func stateKey(id int64) string {
	return fmt.Sprintf("dialogue:%d", id)
}

// Get reads the state of id
func (s *RedisStore) Get(ctx context.Context, id int64) (State, error) {
	raw, err := s.client.Get(ctx, stateKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get dialogue state: %w", err)
	}
	state, err := Decode(raw)
	if err != nil {
		// states of kinds this build does not know are dropped
		if errors.Is(err, ErrUnknownKind) {
			return nil, s.Clear(ctx, id)
		}
		return nil, err
	}
	return state, nil
}

// Set writes the state of id and refreshes its TTL. A nil state clears it.
func (s *RedisStore) Set(ctx context.Context, id int64, state State) error {
	if state == nil {
		return s.Clear(ctx, id)
	}
	data, err := Encode(state)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, stateKey(id), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set dialogue state: %w", err)
	}
	return nil
}

// Clear drops the state of id
func (s *RedisStore) Clear(ctx context.Context, id int64) error {
	if err := s.client.Del(ctx, stateKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to clear dialogue state: %w", err)
	}
	return nil
}

// memoryPruneThreshold is the entry count above which Set drops every expired state
const memoryPruneThreshold = 1000

type memoryEntry struct {
	state    State
	deadline time.Time
}

// MemoryStore keeps states in process memory. Used when no redis is configured.
// Entries expire after the TTL like redis keys do.
type MemoryStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	states map[int64]memoryEntry
}

// NewMemoryStore creates an in-memory store
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl, now: time.Now, states: make(map[int64]memoryEntry)}
}

// Get reads the state of id
func (s *MemoryStore) Get(_ context.Context, id int64) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.states[id]
	if !ok {
		return nil, nil
	}
	if !s.now().Before(e.deadline) {
		delete(s.states, id)
		return nil, nil
	}
	return e.state, nil
}

// Set writes the state of id and refreshes its deadline. A nil state clears it.
func (s *MemoryStore) Set(_ context.Context, id int64, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state == nil {
		delete(s.states, id)
		return nil
	}
	now := s.now()
	if len(s.states) > memoryPruneThreshold {
		for k, e := range s.states {
			if !now.Before(e.deadline) {
				delete(s.states, k)
			}
		}
	}
	s.states[id] = memoryEntry{state: state, deadline: now.Add(s.ttl)}
	return nil
}

// Clear drops the state of id
func (s *MemoryStore) Clear(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, id)
	return nil
}
