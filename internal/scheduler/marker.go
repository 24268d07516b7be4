package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Marker is the "dispatch in progress" flag. Acquire reports false when
// another dispatcher already holds the booking.
type Marker interface {
	Acquire(ctx context.Context, bookingID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, bookingID string) error
}

// MemoryMarker guards dispatches within one process.
type MemoryMarker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryMarker() *MemoryMarker {
	return &MemoryMarker{held: make(map[string]struct{})}
}

func (m *MemoryMarker) Acquire(_ context.Context, bookingID string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.held[bookingID]; ok {
		return false, nil
	}
	m.held[bookingID] = struct{}{}
	return true, nil
}

func (m *MemoryMarker) Release(_ context.Context, bookingID string) error {
	m.mu.Lock()
	delete(m.held, bookingID)
	m.mu.Unlock()
	return nil
}

// releaseScript deletes the key only if this process still owns it.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisMarker guards dispatches across processes sharing one Redis. The ttl
// bounds how long a crashed dispatcher can block a booking.
type RedisMarker struct {
	rdb    *redis.Client
	prefix string

	mu     sync.Mutex
	tokens map[string]string
}

func NewRedisMarker(rdb *redis.Client, prefix string) *RedisMarker {
	if prefix == "" {
		prefix = "garage:reminder:"
	}
	return &RedisMarker{rdb: rdb, prefix: prefix, tokens: make(map[string]string)}
}

func (m *RedisMarker) Acquire(ctx context.Context, bookingID string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	ok, err := m.rdb.SetNX(ctx, m.prefix+bookingID, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	if ok {
		m.mu.Lock()
		m.tokens[bookingID] = token
		m.mu.Unlock()
	}
	return ok, nil
}

func (m *RedisMarker) Release(ctx context.Context, bookingID string) error {
	m.mu.Lock()
	token, ok := m.tokens[bookingID]
	delete(m.tokens, bookingID)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	if err := releaseScript.Run(ctx, m.rdb, []string{m.prefix + bookingID}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("redis release: %w", err)
	}
	return nil
}

// NewRedisClient connects to addr and pings it. It returns nil when addr is
// empty or the server is unreachable, so callers fall back to MemoryMarker.
func NewRedisClient(addr, password string) *redis.Client {
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("scheduler: redis unreachable, using in-process marker: %v", err)
		_ = client.Close()
		return nil
	}
	return client
}
