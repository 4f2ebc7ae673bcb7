// Package idempotency guards the completion hook's forward-to-sink
// step against at-least-once redelivery (spec §1 Non-goals: "at-least
// -once is accepted; the persistence layer de-duplicates"). Grounded
// in the teacher's control_plane/idempotency/store.go: a Redis-backed
// store with an in-memory fallback so the dispatcher still runs
// without Redis configured.
package idempotency

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ttl is how long a seen-key marker is retained. One day comfortably
// exceeds any plausible postback retry window.
const ttl = 24 * time.Hour

// Store records which (commitURL, delivId) pairs have already had
// their result forwarded to the sink.
type Store struct {
	client *redis.Client // nil selects the in-memory fallback
	mem    sync.Map
}

// NewMemoryStore builds a Store with no Redis backend, used by tests
// and single-process runs.
func NewMemoryStore() *Store {
	return &Store{}
}

// NewRedisStore builds a Store backed by Redis at addr.
func NewRedisStore(addr, password string, db int) *Store {
	return &Store{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// SeenAndMark reports whether key was already marked, and marks it if
// not — an atomic check-and-set so two racing redeliveries can't both
// observe "not seen".
func (s *Store) SeenAndMark(ctx context.Context, key string) bool {
	if s.client == nil {
		_, loaded := s.mem.LoadOrStore(key, time.Now())
		return loaded
	}

	ok, err := s.client.SetNX(ctx, redisKey(key), "1", ttl).Result()
	if err != nil {
		log.Printf("idempotency: redis error checking %s: %v", key, err)
		// Fail open: a sink forwarding a duplicate is a logged
		// no-op on a well-behaved sink, not data loss.
		return false
	}
	// SetNX returns true when the key was newly set, i.e. not seen before.
	return !ok
}

func redisKey(key string) string {
	return "dispatcher:idempotency:" + key
}
