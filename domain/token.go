package domain

import "time"

// AccessToken is the ledger record for a minted machine-identity token.
// The signed value itself is never persisted; the ledger keeps a sha256
// fingerprint and the jti.
type AccessToken struct {
	ID             string `bson:"_id" json:"id"`
	ConfigID       string `bson:"config_id" json:"config_id"`
	OwnerID        string `bson:"owner_id" json:"owner_id"`
	ServiceAccount string `bson:"service_account" json:"service_account"`
	Project        string `bson:"project,omitempty" json:"project,omitempty"`
	TokenHash      string `bson:"token_hash" json:"-"`

	// TokenValue carries the signed token on mint responses only. Renewal
	// extends the value the caller already holds, so it is never echoed back.
	TokenValue string `bson:"-" json:"access_token,omitempty"`

	IssuedAt   time.Time `bson:"issued_at" json:"issued_at"`
	ExpiresAt  time.Time `bson:"expires_at" json:"expires_at"`
	UsesCount  int64     `bson:"uses_count" json:"uses_count"`
	LastUsedAt time.Time `bson:"last_used_at" json:"last_used_at"`
	Revoked    bool      `bson:"revoked" json:"revoked"`
}

// Expired reports whether the token is past its expiry at the given instant.
func (t *AccessToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Clone returns a copy so stores never hand out aliased records.
func (t *AccessToken) Clone() *AccessToken {
	if t == nil {
		return nil
	}
	dup := *t
	return &dup
}
