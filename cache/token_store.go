package cache

import (
	"context"
	"errors"
	"time"
)

// ErrEntryNotFound is returned by Get when no live entry exists for a token.
var ErrEntryNotFound = errors.New("cache: token entry not found")

// TokenEntry is the cached projection of an issued access token. It carries
// just enough to serve verification without a repository round trip; the
// owning config's state is always re-checked by the caller. Raw token
// values are never cached, entries are addressed by HashToken fingerprint.
type TokenEntry struct {
	ID             string    `redis:"id"`              // Token identifier
	ConfigID       string    `redis:"config_id"`       // Issuing method config
	OwnerID        string    `redis:"owner_id"`        // Config owner
	ServiceAccount string    `redis:"service_account"` // Authenticated principal
	Project        string    `redis:"project"`         // Principal's project
	TokenHash      string    `redis:"token_hash"`      // Value fingerprint, the entry key
	IssuedAt       time.Time `redis:"issued_at"`       // Original issuance time
	ExpiresAt      time.Time `redis:"expires_at"`      // Expiration timestamp
	LastUsedAt     time.Time `redis:"last_used_at"`    // Last verification time
}

//go:generate mockgen -source=$GOFILE -destination=../mocks/mock_$GOPACKAGE/mock_$GOFILE -package=mock_$GOPACKAGE
type TokenStore interface {
	Set(ctx context.Context, entry *TokenEntry) error
	Get(ctx context.Context, tokenHash string) (*TokenEntry, error)
	Delete(ctx context.Context, tokenHash string) error
	DeleteExpired(ctx context.Context) error
	Clear(ctx context.Context) error
	Count(ctx context.Context) int
	Close() error
}
