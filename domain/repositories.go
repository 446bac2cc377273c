package domain

import (
	"context"
	"time"
)

// MethodRepository persists authentication-method configurations. A single
// document/row holds a whole config, so concurrent readers observe either
// fully-pre-write or fully-post-write state; write serialization per
// (owner, method type) is enforced one level up, in the config service.
type MethodRepository interface {
	// Upsert creates the config or replaces the mutable fields of the
	// existing (owner, method type) record. ID and CreatedAt survive
	// replacement; UpdatedAt is bumped. Returns the stored state.
	Upsert(ctx context.Context, cfg *MethodConfig) (*MethodConfig, error)
	GetByOwner(ctx context.Context, ownerID string, mt MethodType) (*MethodConfig, error)
	GetByID(ctx context.Context, id string) (*MethodConfig, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*MethodConfig, error)
	// SetActive toggles activation and returns the stored state.
	SetActive(ctx context.Context, id string, active bool) (*MethodConfig, error)
	Delete(ctx context.Context, id string) error
}

//go:generate mockgen -source=$GOFILE -destination=../mocks/mock_$GOPACKAGE/mock_$GOFILE -package=mock_$GOPACKAGE

// TokenRepository is the ledger of minted tokens and per-config mint
// counters. It is the single source of truth the uses-limit decision reads
// from, so ReserveUse must be atomic with respect to concurrent mints.
type TokenRepository interface {
	Store(ctx context.Context, token *AccessToken) error
	GetByID(ctx context.Context, id string) (*AccessToken, error)
	GetByHash(ctx context.Context, tokenHash string) (*AccessToken, error)
	// UpdateExpiry moves the token's expiry. Renewal extends the existing
	// token value, so the hash only re-binds the lookup index.
	UpdateExpiry(ctx context.Context, id string, expiresAt time.Time, tokenHash string) error
	// TouchUse records one authenticated use of the token.
	TouchUse(ctx context.Context, id string, at time.Time) error
	// Revoke marks the token revoked. Revoking an already-revoked token is
	// a no-op, not an error.
	Revoke(ctx context.Context, id string) error
	// RevokeByConfig soft-invalidates every outstanding token of a config,
	// used when the config is deactivated or deleted.
	RevokeByConfig(ctx context.Context, configID string) error
	// DeleteExpired removes tokens whose expiry is before the given
	// instant. Liveness checks never rely on this sweep; they read
	// ExpiresAt/Revoked directly.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)

	// ReserveUse atomically increments the config's mint counter, failing
	// with errors.ErrUsageLimitReached when limit > 0 and the counter
	// already reached it. Returns the counter value after the increment.
	ReserveUse(ctx context.Context, configID string, limit int64) (int64, error)
	// ReleaseUse undoes a reservation when the mint could not complete.
	ReleaseUse(ctx context.Context, configID string) error
	UsageCount(ctx context.Context, configID string) (int64, error)
	// ClearUsage drops the mint counter, used when the owning config is
	// deleted.
	ClearUsage(ctx context.Context, configID string) error
}
