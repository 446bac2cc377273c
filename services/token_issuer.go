package services

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gatekey-io/gatekey/cache"
	"github.com/gatekey-io/gatekey/domain"
	gkerrors "github.com/gatekey-io/gatekey/errors"
	"github.com/gatekey-io/gatekey/internal/audit"
	"github.com/gatekey-io/gatekey/internal/metrics"
	"github.com/gatekey-io/gatekey/policy"
)

// TokenIssuer mints, renews, revokes and verifies machine identity access
// tokens. Every mint passes the constraint policy and an atomic quota
// reservation; every liveness decision re-reads token and config state, so a
// deactivated config invalidates its tokens at the next check regardless of
// remaining TTL.
type TokenIssuer struct {
	methods domain.MethodRepository
	tokens  domain.TokenRepository
	cache   cache.TokenStore
	signer  *TokenSigner
	proofs  domain.ProofVerifier
	issuer  string
}

// NewTokenIssuer creates a new TokenIssuer instance.
func NewTokenIssuer(
	methods domain.MethodRepository,
	tokens domain.TokenRepository,
	tokenCache cache.TokenStore,
	signer *TokenSigner,
	proofs domain.ProofVerifier,
	issuer string,
) *TokenIssuer {
	return &TokenIssuer{
		methods: methods,
		tokens:  tokens,
		cache:   tokenCache,
		signer:  signer,
		proofs:  proofs,
		issuer:  issuer,
	}
}

// toCacheEntry converts a domain.AccessToken to a cache.TokenEntry.
func toCacheEntry(t *domain.AccessToken) *cache.TokenEntry {
	return &cache.TokenEntry{
		ID:             t.ID,
		ConfigID:       t.ConfigID,
		OwnerID:        t.OwnerID,
		ServiceAccount: t.ServiceAccount,
		Project:        t.Project,
		TokenHash:      t.TokenHash,
		IssuedAt:       t.IssuedAt,
		ExpiresAt:      t.ExpiresAt,
	}
}

// fromCacheEntry rebuilds the token fields a cache entry carries. UsesCount
// and LastUsedAt live only in the ledger and stay zero here.
func fromCacheEntry(entry *cache.TokenEntry) *domain.AccessToken {
	return &domain.AccessToken{
		ID:             entry.ID,
		ConfigID:       entry.ConfigID,
		OwnerID:        entry.OwnerID,
		ServiceAccount: entry.ServiceAccount,
		Project:        entry.Project,
		TokenHash:      entry.TokenHash,
		IssuedAt:       entry.IssuedAt,
		ExpiresAt:      entry.ExpiresAt,
	}
}

func (s *TokenIssuer) deny(action, owner, target string, reason gkerrors.AuthReason, detail string) error {
	metrics.AuthDenialsTotal.WithLabelValues(string(reason)).Inc()
	audit.Log("token_issuer", action, owner, target, string(reason), false, nil)
	return gkerrors.NewAuthError(reason, detail)
}

// Authenticate runs the machine identity flow for an owner: resolve the
// cloud-iam config, verify the proof, evaluate constraints, reserve quota
// and mint a bounded token.
func (s *TokenIssuer) Authenticate(ctx context.Context, ownerID string, att domain.Attempt) (*domain.AccessToken, error) {
	cfg, err := s.methods.GetByOwner(ctx, ownerID, domain.MethodCloudIAM)
	if err != nil {
		if gkerrors.IsNotFound(err) {
			return nil, s.deny("authenticate", ownerID, "", gkerrors.ReasonConfigNotFound, "no machine identity config for owner")
		}
		return nil, err
	}

	return s.authenticate(ctx, cfg, att)
}

// AuthenticateConfig is Authenticate addressed by config ID.
func (s *TokenIssuer) AuthenticateConfig(ctx context.Context, configID string, att domain.Attempt) (*domain.AccessToken, error) {
	cfg, err := s.methods.GetByID(ctx, configID)
	if err != nil {
		if gkerrors.IsNotFound(err) {
			return nil, s.deny("authenticate", "", configID, gkerrors.ReasonConfigNotFound, "unknown config")
		}
		return nil, err
	}

	return s.authenticate(ctx, cfg, att)
}

func (s *TokenIssuer) authenticate(ctx context.Context, cfg *domain.MethodConfig, att domain.Attempt) (*domain.AccessToken, error) {
	if cfg.MethodType != domain.MethodCloudIAM || cfg.Machine == nil {
		return nil, s.deny("authenticate", cfg.OwnerID, cfg.ID, gkerrors.ReasonConfigNotFound, "not a machine identity config")
	}
	if !cfg.IsActive {
		return nil, s.deny("authenticate", cfg.OwnerID, cfg.ID, gkerrors.ReasonConfigInactive, "config is not active")
	}

	principal, err := s.proofs.VerifyProof(ctx, att.Proof)
	if err != nil {
		log.Debug().Err(err).Str("owner", cfg.OwnerID).Msg("proof verification failed")
		return nil, s.deny("authenticate", cfg.OwnerID, cfg.ID, gkerrors.ReasonPrincipalNotAllowed, "identity proof rejected")
	}

	usage, err := s.tokens.UsageCount(ctx, cfg.ID)
	if err != nil {
		return nil, err
	}

	dec := policy.Evaluate(cfg.Machine, att, *principal, usage)
	if !dec.Allowed {
		return nil, s.deny("authenticate", cfg.OwnerID, cfg.ID, dec.Reason, dec.Detail)
	}

	// The policy verdict used a snapshot of the counter; the reservation is
	// the atomic word on quota under concurrent mints.
	if _, err := s.tokens.ReserveUse(ctx, cfg.ID, cfg.Machine.AccessTokenNumUsesLimit); err != nil {
		if errors.Is(err, gkerrors.ErrUsageLimitReached) {
			return nil, s.deny("authenticate", cfg.OwnerID, cfg.ID, gkerrors.ReasonUsesLimitExceeded, "token uses limit reached")
		}
		return nil, err
	}

	token, err := s.mint(ctx, cfg, *principal, dec.EffectiveTTL)
	if err != nil {
		if relErr := s.tokens.ReleaseUse(ctx, cfg.ID); relErr != nil {
			log.Error().Err(relErr).Str("configID", cfg.ID).Msg("failed to release quota reservation after mint failure")
		}
		return nil, err
	}

	metrics.TokensIssuedTotal.Inc()
	audit.Log("token_issuer", "authenticate", cfg.OwnerID, token.ID, "", true, nil)

	return token, nil
}

// mint signs and stores a new access token. The JWT deliberately carries no
// exp claim, the ledger's ExpiresAt is the one source of truth for lifetime
// and renewals extend it without rotating the token value.
func (s *TokenIssuer) mint(ctx context.Context, cfg *domain.MethodConfig, principal domain.Principal, ttl time.Duration) (*domain.AccessToken, error) {
	now := time.Now().UTC()
	tokenID := uuid.NewString()

	claims := jwt.MapClaims{
		"iss":     s.issuer,
		"sub":     principal.ServiceAccount,
		"aud":     jwt.ClaimStrings{cfg.OwnerID},
		"project": principal.Project,
		"cfg":     cfg.ID,
		"iat":     jwt.NewNumericDate(now).Unix(),
		"nbf":     jwt.NewNumericDate(now).Unix(),
		"jti":     tokenID,
	}

	signedToken, err := s.signer.Sign(claims, "")
	if err != nil {
		return nil, err
	}

	token := &domain.AccessToken{
		ID:             tokenID,
		ConfigID:       cfg.ID,
		OwnerID:        cfg.OwnerID,
		ServiceAccount: principal.ServiceAccount,
		Project:        principal.Project,
		TokenHash:      cache.HashToken(signedToken),
		TokenValue:     signedToken,
		IssuedAt:       now,
		ExpiresAt:      now.Add(ttl),
	}
	if err := s.tokens.Store(ctx, token); err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, toCacheEntry(token)); err != nil {
		log.Warn().Err(err).Msg("failed to cache token")
	}

	return token, nil
}

// Renew extends a token's expiry by the config TTL, capped at the max
// lifetime measured from original issuance. The quota check is re-run but
// never incremented, renewals are not mints.
func (s *TokenIssuer) Renew(ctx context.Context, tokenID string) (*domain.AccessToken, error) {
	token, err := s.tokens.GetByID(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	if token.Revoked {
		return nil, s.deny("renew", token.OwnerID, token.ID, gkerrors.ReasonTokenRevoked, "token is revoked")
	}

	now := time.Now().UTC()
	if token.Expired(now) {
		return nil, s.deny("renew", token.OwnerID, token.ID, gkerrors.ReasonTokenExpired, "token is expired")
	}

	cfg, err := s.methods.GetByID(ctx, token.ConfigID)
	if err != nil {
		if gkerrors.IsNotFound(err) {
			return nil, s.deny("renew", token.OwnerID, token.ID, gkerrors.ReasonConfigNotFound, "issuing config no longer exists")
		}
		return nil, err
	}
	if !cfg.IsActive {
		return nil, s.deny("renew", token.OwnerID, token.ID, gkerrors.ReasonConfigInactive, "issuing config is not active")
	}
	if cfg.Machine == nil {
		return nil, s.deny("renew", token.OwnerID, token.ID, gkerrors.ReasonConfigNotFound, "issuing config has no machine settings")
	}

	usage, err := s.tokens.UsageCount(ctx, cfg.ID)
	if err != nil {
		return nil, err
	}
	if policy.UsesLimitReached(cfg.Machine, usage) {
		return nil, s.deny("renew", token.OwnerID, token.ID, gkerrors.ReasonUsesLimitExceeded, "token uses limit reached")
	}

	expiresAt, ok := policy.RenewalExpiry(cfg.Machine, token.IssuedAt, now)
	if !ok {
		return nil, s.deny("renew", token.OwnerID, token.ID, gkerrors.ReasonTokenExpired, "max token lifetime consumed")
	}

	if err := s.tokens.UpdateExpiry(ctx, token.ID, expiresAt, token.TokenHash); err != nil {
		return nil, err
	}
	token.ExpiresAt = expiresAt

	// A cached entry still carries the shorter pre-renewal expiry; that can
	// only under-validate, and verification re-caches past it.
	metrics.TokensRenewedTotal.Inc()
	audit.Log("token_issuer", "renew", token.OwnerID, token.ID, "", true, nil)

	return token, nil
}

// Revoke marks a token revoked and purges its cache entry. Revoking an
// already-revoked token succeeds.
func (s *TokenIssuer) Revoke(ctx context.Context, tokenID string) error {
	token, err := s.tokens.GetByID(ctx, tokenID)
	if err != nil {
		return err
	}

	if err := s.tokens.Revoke(ctx, tokenID); err != nil {
		return err
	}

	if err := s.cache.Delete(ctx, token.TokenHash); err != nil {
		log.Error().Err(err).Str("tokenID", tokenID).Msg("failed to purge revoked token from cache")
	}

	metrics.TokensRevokedTotal.Inc()
	audit.Log("token_issuer", "revoke", token.OwnerID, token.ID, "", true, nil)

	return nil
}

// Verify answers a consumer liveness check for a presented token value. A
// cache hit skips the ledger read but never the config re-check, so a
// cascade revocation (config deactivated or deleted) is always caught; an
// individually revoked token was purged from the cache by Revoke.
func (s *TokenIssuer) Verify(ctx context.Context, tokenValue string) (*domain.AccessToken, error) {
	if _, err := s.signer.Parse(tokenValue); err != nil {
		log.Debug().Err(err).Msg("token signature rejected")
		return nil, gkerrors.NewNotFound("token", cache.Fingerprint(tokenValue))
	}

	tokenHash := cache.HashToken(tokenValue)
	now := time.Now().UTC()

	if entry, cacheErr := s.cache.Get(ctx, tokenHash); cacheErr == nil {
		metrics.TokenCacheHitsTotal.Inc()
		token := fromCacheEntry(entry)
		if err := s.checkConfigLive(ctx, "verify", token); err != nil {
			return nil, err
		}
		s.touch(ctx, token.ID, now)
		metrics.TokenVerificationsTotal.Inc()
		return token, nil
	}
	metrics.TokenCacheMissesTotal.Inc()

	token, err := s.tokens.GetByHash(ctx, tokenHash)
	if err != nil {
		return nil, err
	}

	if token.Revoked {
		return nil, s.deny("verify", token.OwnerID, token.ID, gkerrors.ReasonTokenRevoked, "token is revoked")
	}
	if token.Expired(now) {
		return nil, s.deny("verify", token.OwnerID, token.ID, gkerrors.ReasonTokenExpired, "token is expired")
	}

	if err := s.checkConfigLive(ctx, "verify", token); err != nil {
		return nil, err
	}

	s.touch(ctx, token.ID, now)

	if err := s.cache.Set(ctx, toCacheEntry(token)); err != nil {
		log.Warn().Err(err).Msg("failed to cache verified token")
	}

	metrics.TokenVerificationsTotal.Inc()

	return token, nil
}

// VerifyByID answers the liveness check for a token addressed by ID, used
// when the caller holds the identifier rather than the value.
func (s *TokenIssuer) VerifyByID(ctx context.Context, tokenID string) (*domain.AccessToken, error) {
	token, err := s.tokens.GetByID(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	if token.Revoked {
		return nil, s.deny("verify", token.OwnerID, token.ID, gkerrors.ReasonTokenRevoked, "token is revoked")
	}
	if token.Expired(time.Now().UTC()) {
		return nil, s.deny("verify", token.OwnerID, token.ID, gkerrors.ReasonTokenExpired, "token is expired")
	}

	if err := s.checkConfigLive(ctx, "verify", token); err != nil {
		return nil, err
	}

	return token, nil
}

func (s *TokenIssuer) checkConfigLive(ctx context.Context, action string, token *domain.AccessToken) error {
	cfg, err := s.methods.GetByID(ctx, token.ConfigID)
	if err != nil {
		if gkerrors.IsNotFound(err) {
			return s.deny(action, token.OwnerID, token.ID, gkerrors.ReasonConfigNotFound, "issuing config no longer exists")
		}
		return err
	}
	if !cfg.IsActive {
		return s.deny(action, token.OwnerID, token.ID, gkerrors.ReasonConfigInactive, "issuing config is not active")
	}

	return nil
}

func (s *TokenIssuer) touch(ctx context.Context, tokenID string, at time.Time) {
	if err := s.tokens.TouchUse(ctx, tokenID, at); err != nil {
		log.Warn().Err(err).Str("tokenID", tokenID).Msg("failed to record token use")
	}
}
