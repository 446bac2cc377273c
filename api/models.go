package api

import "time"

// SSOConfigRequest is the PUT /sso-config body. Upserts always land as
// drafts; activation is a separate call.
type SSOConfigRequest struct {
	OwnerID     string `json:"owner_id"`
	Provider    string `json:"provider"`
	EntryPoint  string `json:"entry_point"`
	Issuer      string `json:"issuer"`
	Certificate string `json:"certificate"`
}

// MachineAuthConfigRequest is the PUT /machine-auth/config body. Durations
// are seconds; zero TTL fields take the documented defaults.
type MachineAuthConfigRequest struct {
	OwnerID                 string   `json:"owner_id"`
	AccessTokenTTL          int64    `json:"access_token_ttl"`
	AccessTokenMaxTTL       int64    `json:"access_token_max_ttl"`
	AccessTokenNumUsesLimit int64    `json:"access_token_num_uses_limit"`
	AccessTokenTrustedIPs   []string `json:"access_token_trusted_ips"`
	AllowedServiceAccounts  []string `json:"allowed_service_accounts"`
	AllowedProjects         []string `json:"allowed_projects"`
	Active                  bool     `json:"active"`
}

// AuthenticateRequest carries a machine-identity proof. OwnerID is only
// read on the owner-scoped route; RequestedTTL is seconds and optional.
type AuthenticateRequest struct {
	OwnerID      string `json:"owner_id,omitempty"`
	Proof        string `json:"proof"`
	RequestedTTL int64  `json:"requested_ttl,omitempty"`
}

// TokenActionRequest addresses a ledger token by its ID.
type TokenActionRequest struct {
	TokenID string `json:"token_id"`
}

// VerifyRequest carries a signed token value for liveness verification.
type VerifyRequest struct {
	AccessToken string `json:"access_token"`
}

// TokenResponse is returned on mint and renew. AccessToken is only present
// on mint; renewal extends the value the caller already holds.
type TokenResponse struct {
	TokenID     string    `json:"token_id"`
	AccessToken string    `json:"access_token,omitempty"`
	TokenType   string    `json:"token_type"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	ExpiresIn   int64     `json:"expires_in"`
}

// TokenInfoResponse is returned by verification endpoints for a live token.
type TokenInfoResponse struct {
	TokenID        string    `json:"token_id"`
	ConfigID       string    `json:"config_id"`
	OwnerID        string    `json:"owner_id"`
	ServiceAccount string    `json:"service_account"`
	Project        string    `json:"project,omitempty"`
	IssuedAt       time.Time `json:"issued_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	Active         bool      `json:"active"`
}

// ErrorResponse is the uniform error body. Reason carries the denial reason
// on 401s and the validation message on 400s.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
	Field  string `json:"field,omitempty"`
}
