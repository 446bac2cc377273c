package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/gatekey-io/gatekey/domain"
	gkerrors "github.com/gatekey-io/gatekey/errors"
)

// TokenStore implements domain.TokenRepository in memory. A single mutex
// guards both the token records and the per-config mint counters, which
// makes ReserveUse atomic against concurrent mints.
type TokenStore struct {
	mu     sync.Mutex
	byID   map[string]*domain.AccessToken
	byHash map[string]string
	usage  map[string]int64
}

// NewTokenStore creates a new TokenStore.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		byID:   make(map[string]*domain.AccessToken),
		byHash: make(map[string]string),
		usage:  make(map[string]int64),
	}
}

// Store saves a minted token.
func (s *TokenStore) Store(_ context.Context, token *domain.AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := token.Clone()
	stored.TokenValue = ""
	s.byID[stored.ID] = stored
	s.byHash[stored.TokenHash] = stored.ID

	return nil
}

// GetByID retrieves a token by its ID.
func (s *TokenStore) GetByID(_ context.Context, id string) (*domain.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.byID[id]
	if !ok {
		return nil, gkerrors.NewNotFound("token", id)
	}

	return token.Clone(), nil
}

// GetByHash retrieves a token by its value fingerprint.
func (s *TokenStore) GetByHash(_ context.Context, tokenHash string) (*domain.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byHash[tokenHash]
	if !ok {
		return nil, gkerrors.NewNotFound("token", tokenHash)
	}

	return s.byID[id].Clone(), nil
}

// UpdateExpiry moves the token's expiry. The hash keeps the lookup index
// bound to the token value, which renewal does not rotate.
func (s *TokenStore) UpdateExpiry(_ context.Context, id string, expiresAt time.Time, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.byID[id]
	if !ok {
		return gkerrors.NewNotFound("token", id)
	}

	delete(s.byHash, token.TokenHash)
	token.ExpiresAt = expiresAt
	token.TokenHash = tokenHash
	s.byHash[tokenHash] = id

	return nil
}

// TouchUse records one authenticated use of the token.
func (s *TokenStore) TouchUse(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.byID[id]
	if !ok {
		return gkerrors.NewNotFound("token", id)
	}

	token.UsesCount++
	token.LastUsedAt = at

	return nil
}

// Revoke marks a token revoked. Already-revoked tokens are left as is.
func (s *TokenStore) Revoke(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.byID[id]
	if !ok {
		return gkerrors.NewNotFound("token", id)
	}

	token.Revoked = true

	return nil
}

// RevokeByConfig soft-invalidates every outstanding token of a config.
func (s *TokenStore) RevokeByConfig(_ context.Context, configID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, token := range s.byID {
		if token.ConfigID == configID {
			token.Revoked = true
		}
	}

	return nil
}

// DeleteExpired removes tokens expired before the given instant.
func (s *TokenStore) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for id, token := range s.byID {
		if token.ExpiresAt.Before(before) {
			delete(s.byHash, token.TokenHash)
			delete(s.byID, id)
			removed++
		}
	}

	return removed, nil
}

// ReserveUse atomically increments the config's mint counter. With the
// counter at or past a positive limit no increment happens and
// ErrUsageLimitReached is returned, so at most limit reservations ever
// succeed regardless of caller interleaving.
func (s *TokenStore) ReserveUse(_ context.Context, configID string, limit int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.usage[configID]
	if limit > 0 && current >= limit {
		return current, gkerrors.ErrUsageLimitReached
	}

	s.usage[configID] = current + 1

	return current + 1, nil
}

// ReleaseUse undoes a reservation after a failed mint.
func (s *TokenStore) ReleaseUse(_ context.Context, configID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.usage[configID] > 0 {
		s.usage[configID]--
	}

	return nil
}

// UsageCount reports the config's mint counter.
func (s *TokenStore) UsageCount(_ context.Context, configID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.usage[configID], nil
}

// ClearUsage drops the mint counter of a deleted config.
func (s *TokenStore) ClearUsage(_ context.Context, configID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.usage, configID)

	return nil
}
