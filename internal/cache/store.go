// Package cache provides the in-memory store behind the index caches.
package cache

import (
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// NoExpiration keeps entries until they are flushed.
const NoExpiration = gocache.NoExpiration

// DefaultCleanupInterval is how often expired entries are purged when a TTL is set.
const DefaultCleanupInterval = 30 * time.Minute

// Store is a concurrency-safe keyed cache. Values are read back with Get.
type Store struct {
	name   string
	cache  *gocache.Cache
	logger *slog.Logger
}

// New creates a store whose entries live for ttl. A ttl of zero or
// NoExpiration keeps entries until Flush.
func New(name string, ttl time.Duration, logger *slog.Logger) *Store {
	cleanup := DefaultCleanupInterval
	if ttl <= 0 {
		ttl = NoExpiration
		cleanup = 0
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		name:   name,
		cache:  gocache.New(ttl, cleanup),
		logger: logger,
	}
}

// Get retrieves the value stored under key as a V.
// A value of the wrong type is reported as a miss.
func Get[V any](s *Store, key string) (V, bool) {
	var zero V

	value, found := s.cache.Get(key)
	if !found {
		return zero, false
	}

	v, ok := value.(V)
	if !ok {
		s.logger.Error("wrong type assertion when getting value", "cache", s.name, "key", key)
		return zero, false
	}

	return v, true
}

// Set stores value under key with the store's default TTL.
func (s *Store) Set(key string, value any) {
	s.cache.SetDefault(key, value)
}

// SetUntil stores value under key until deadline. A zero deadline never
// expires. A deadline already in the past stores nothing.
func (s *Store) SetUntil(key string, value any, deadline time.Time) {
	if deadline.IsZero() {
		s.cache.Set(key, value, NoExpiration)
		return
	}
	d := time.Until(deadline)
	if d <= 0 {
		return
	}
	s.cache.Set(key, value, d)
}

// Expiration reports when the entry under key expires. The time is zero
// for entries that never expire. Missing and expired entries report false.
func (s *Store) Expiration(key string) (time.Time, bool) {
	_, deadline, found := s.cache.GetWithExpiration(key)
	return deadline, found
}

// Delete removes keys.
func (s *Store) Delete(keys ...string) {
	for _, key := range keys {
		s.cache.Delete(key)
	}
}

// Flush removes every entry.
func (s *Store) Flush() {
	s.cache.Flush()
}

// Len returns the number of entries, including expired ones not yet purged.
func (s *Store) Len() int {
	return s.cache.ItemCount()
}
