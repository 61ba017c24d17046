package oauth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// StateStore records issued state values until they are consumed or expire.
type StateStore interface {
	Save(ctx context.Context, state string, ttl time.Duration) error
	// Consume deletes state and returns ErrInvalidState when it was never
	// saved, already consumed or expired.
	Consume(ctx context.Context, state string) error
}

// MemoryStateStore keeps states in process memory.
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[string]time.Time
	now    func() time.Time
}

// NewMemoryStateStore returns an empty MemoryStateStore.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]time.Time), now: time.Now}
}

// Save implements StateStore. Expired entries are pruned on every save.
func (m *MemoryStateStore) Save(_ context.Context, state string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, exp := range m.states {
		if !now.Before(exp) {
			delete(m.states, k)
		}
	}
	m.states[state] = now.Add(ttl)
	return nil
}

// Consume implements StateStore.
func (m *MemoryStateStore) Consume(_ context.Context, state string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.states[state]
	if !ok {
		return ErrInvalidState
	}
	delete(m.states, state)
	if !m.now().Before(exp) {
		return ErrInvalidState
	}
	return nil
}

// RedisStateStore keeps states as expiring Redis keys.
type RedisStateStore struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisStateStore returns a store writing keys under prefix, which
// defaults to "authcore:oauth_state".
func NewRedisStateStore(rdb redis.UniversalClient, prefix string) *RedisStateStore {
	if prefix == "" {
		prefix = "authcore:oauth_state"
	}
	return &RedisStateStore{rdb: rdb, prefix: prefix}
}

// Save implements StateStore.
func (r *RedisStateStore) Save(ctx context.Context, state string, ttl time.Duration) error {
	if err := r.rdb.Set(ctx, r.key(state), 1, ttl).Err(); err != nil {
		return errors.Join(ErrStateStore, err)
	}
	return nil
}

// Consume implements StateStore. GETDEL makes the read and the delete one
// step, so a state can be consumed once.
func (r *RedisStateStore) Consume(ctx context.Context, state string) error {
	err := r.rdb.GetDel(ctx, r.key(state)).Err()
	if errors.Is(err, redis.Nil) {
		return ErrInvalidState
	}
	if err != nil {
		return errors.Join(ErrStateStore, err)
	}
	return nil
}

func (r *RedisStateStore) key(state string) string {
	return r.prefix + ":" + state
}
