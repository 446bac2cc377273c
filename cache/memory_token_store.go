package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryTokenStore implements TokenStore using ttlcache.
type MemoryTokenStore struct {
	cache *ttlcache.Cache[string, *TokenEntry]
}

// NewMemoryTokenStore creates a new in-memory token store with automatic
// cleanup of expired entries.
//
//nolint:ireturn
func NewMemoryTokenStore(cleanupInterval time.Duration) TokenStore {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *TokenEntry](cleanupInterval),
		ttlcache.WithDisableTouchOnHit[string, *TokenEntry](),
	)

	// Start the cleanup process
	go cache.Start()

	return &MemoryTokenStore{
		cache: cache,
	}
}

// Set implements TokenStore.Set. Entries already past their expiry are not
// admitted.
func (s *MemoryTokenStore) Set(_ context.Context, entry *TokenEntry) error {
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	s.cache.Set(entry.TokenHash, entry, ttl)
	return nil
}

// Get implements TokenStore.Get. The expiry stored in the entry is
// authoritative even when the ttlcache janitor has not run yet.
func (s *MemoryTokenStore) Get(_ context.Context, tokenHash string) (*TokenEntry, error) {
	item := s.cache.Get(tokenHash)
	if item == nil {
		return nil, ErrEntryNotFound
	}

	entry := item.Value()
	if !time.Now().Before(entry.ExpiresAt) {
		s.cache.Delete(tokenHash)
		return nil, ErrEntryNotFound
	}
	entry.LastUsedAt = time.Now()

	return entry, nil
}

// Delete removes a token from the cache.
func (s *MemoryTokenStore) Delete(_ context.Context, tokenHash string) error {
	s.cache.Delete(tokenHash)

	return nil
}

// DeleteExpired removes all expired tokens from the cache.
func (s *MemoryTokenStore) DeleteExpired(_ context.Context) error {
	s.cache.DeleteExpired()

	return nil
}

// Clear removes all tokens from the cache.
func (s *MemoryTokenStore) Clear(_ context.Context) error {
	s.cache.DeleteAll()

	return nil
}

// Count counts the number of tokens in the cache.
func (s *MemoryTokenStore) Count(_ context.Context) int {
	return s.cache.Len()
}

// Close stops the cleanup goroutine.
func (s *MemoryTokenStore) Close() error {
	s.cache.Stop()

	return nil
}
