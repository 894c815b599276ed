package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Tuning constants shared by every component that touches the
// coordination store. These mirror the reference implementation exactly.
const (
	FreshWindow      = 15 * time.Second
	HeartbeatPeriod  = 5 * time.Second
	ReserveTTL       = 60 * time.Second
	PreheatK         = 2
	PreheatTTL       = 300 * time.Second
	PreheatLockTTL   = 10 * time.Second
	DefaultRedisAddr = "redis://127.0.0.1:6379/0"
)

const (
	keyPodsActive = "pods:active"
)

func keyPodHash(id string) string     { return "pod:" + id }
func keyPodBusy(id string) string     { return "pod:" + id + ":busy" }
func keyPreheat(fileKey string) string { return "preheat:" + fileKey }
func keyPreheatLock(fileKey string) string {
	return "preheat:" + fileKey + ":lock"
}
func keyDigest(path string) string { return "md5:" + path }

// Store is a thin, typed wrapper around a Redis client scoped to the key
// layout above. It holds no state of its own beyond the client handle.
type Store struct {
	rdb *redis.Client
}

// New opens a coordination-store connection from a redis:// URL.
func New(redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Store{rdb: redis.NewClient(opts)}, nil
}

// NewFromClient wraps an already-constructed client, used by tests to
// inject a miniredis-backed client.
func NewFromClient(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Client exposes the underlying Redis client for packages that build
// additional atomic primitives on top of the same connection (e.g.
// pkg/reserve's origin rate limiter), so they don't open a second pool.
func (s *Store) Client() *redis.Client {
	return s.rdb
}

// Ping verifies connectivity to the coordination store.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.rdb.Close()
}
