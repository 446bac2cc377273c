package services

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/gatekey-io/gatekey/domain"
	gkerrors "github.com/gatekey-io/gatekey/errors"
	"github.com/gatekey-io/gatekey/internal/audit"
	"github.com/gatekey-io/gatekey/internal/metrics"
)

// keyLocker hands out exclusive ownership of string keys without blocking.
// A writer that loses the race is told so immediately instead of queueing,
// which keeps config writes conflict-checked rather than silently ordered.
type keyLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newKeyLocker() *keyLocker {
	return &keyLocker{held: make(map[string]struct{})}
}

func (l *keyLocker) tryAcquire(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, taken := l.held[key]; taken {
		return false
	}
	l.held[key] = struct{}{}
	return true
}

func (l *keyLocker) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
}

// ConfigService manages authentication-method configurations. Writes to the
// same (owner, method type) key are serialized: one writer proceeds,
// concurrent ones receive a retryable ConflictError. Deactivation and
// deletion cascade onto outstanding tokens.
type ConfigService struct {
	methods domain.MethodRepository
	tokens  domain.TokenRepository
	locks   *keyLocker
}

// NewConfigService creates a new ConfigService instance.
func NewConfigService(methods domain.MethodRepository, tokens domain.TokenRepository) *ConfigService {
	return &ConfigService{
		methods: methods,
		tokens:  tokens,
		locks:   newKeyLocker(),
	}
}

// Upsert creates or replaces the config for (cfg.OwnerID, cfg.MethodType).
// Defaults are applied before validation; a validation failure leaves any
// existing record untouched. ID and CreatedAt survive replacement.
func (s *ConfigService) Upsert(ctx context.Context, cfg *domain.MethodConfig) (*domain.MethodConfig, error) {
	cfg = cfg.Clone()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	key := cfg.Key()
	if !s.locks.tryAcquire(key) {
		metrics.ConfigConflictsTotal.Inc()
		return nil, gkerrors.NewConflict(key)
	}
	defer s.locks.release(key)

	prev, err := s.methods.GetByOwner(ctx, cfg.OwnerID, cfg.MethodType)
	if err != nil && !gkerrors.IsNotFound(err) {
		return nil, err
	}

	stored, err := s.methods.Upsert(ctx, cfg)
	if err != nil {
		audit.Log("config", "upsert", cfg.OwnerID, key, "", false, err)
		return nil, err
	}

	metrics.ConfigWritesTotal.Inc()
	audit.Log("config", "upsert", stored.OwnerID, stored.ID, string(stored.MethodType), true, nil)

	// A replace that turns an active machine config inactive invalidates
	// its outstanding tokens, same as an explicit deactivation.
	if prev != nil && prev.IsActive && !stored.IsActive && stored.MethodType == domain.MethodCloudIAM {
		if err := s.tokens.RevokeByConfig(ctx, stored.ID); err != nil {
			log.Error().Err(err).Str("configID", stored.ID).Msg("failed to revoke tokens after deactivating replace")
			return nil, err
		}
	}

	return stored, nil
}

// Get retrieves the config for an (owner, method type) pair.
func (s *ConfigService) Get(ctx context.Context, ownerID string, mt domain.MethodType) (*domain.MethodConfig, error) {
	if ownerID == "" {
		return nil, gkerrors.NewValidation("owner_id", "must not be empty")
	}
	if !domain.KnownMethodType(mt) {
		return nil, gkerrors.NewValidation("method_type", "unknown method type")
	}

	return s.methods.GetByOwner(ctx, ownerID, mt)
}

// GetByID retrieves a config by its ID.
func (s *ConfigService) GetByID(ctx context.Context, configID string) (*domain.MethodConfig, error) {
	return s.methods.GetByID(ctx, configID)
}

// ListByOwner returns every config of an owner.
func (s *ConfigService) ListByOwner(ctx context.Context, ownerID string) ([]*domain.MethodConfig, error) {
	return s.methods.ListByOwner(ctx, ownerID)
}

// SetActive toggles activation of a config. Activating re-validates the
// activation invariants; deactivating a machine config revokes its
// outstanding tokens.
func (s *ConfigService) SetActive(ctx context.Context, configID string, active bool) (*domain.MethodConfig, error) {
	cfg, err := s.methods.GetByID(ctx, configID)
	if err != nil {
		return nil, err
	}

	key := cfg.Key()
	if !s.locks.tryAcquire(key) {
		metrics.ConfigConflictsTotal.Inc()
		return nil, gkerrors.NewConflict(key)
	}
	defer s.locks.release(key)

	// Re-read under the lock; the earlier read only located the key.
	cfg, err = s.methods.GetByID(ctx, configID)
	if err != nil {
		return nil, err
	}

	if active {
		check := cfg.Clone()
		check.IsActive = true
		if err := check.Validate(); err != nil {
			return nil, err
		}
	}

	stored, err := s.methods.SetActive(ctx, configID, active)
	if err != nil {
		audit.Log("config", "set_active", cfg.OwnerID, configID, "", false, err)
		return nil, err
	}

	metrics.ConfigWritesTotal.Inc()
	audit.Log("config", "set_active", stored.OwnerID, stored.ID, activationWord(active), true, nil)

	if !active && cfg.IsActive && cfg.MethodType == domain.MethodCloudIAM {
		if err := s.tokens.RevokeByConfig(ctx, configID); err != nil {
			log.Error().Err(err).Str("configID", configID).Msg("failed to revoke tokens after deactivation")
			return nil, err
		}
	}

	return stored, nil
}

// Delete removes a config. Outstanding tokens of a machine config are
// revoked and its mint counter cleared.
func (s *ConfigService) Delete(ctx context.Context, configID string) error {
	cfg, err := s.methods.GetByID(ctx, configID)
	if err != nil {
		return err
	}

	key := cfg.Key()
	if !s.locks.tryAcquire(key) {
		metrics.ConfigConflictsTotal.Inc()
		return gkerrors.NewConflict(key)
	}
	defer s.locks.release(key)

	if err := s.methods.Delete(ctx, configID); err != nil {
		audit.Log("config", "delete", cfg.OwnerID, configID, "", false, err)
		return err
	}

	if cfg.MethodType == domain.MethodCloudIAM {
		if err := s.tokens.RevokeByConfig(ctx, configID); err != nil {
			log.Error().Err(err).Str("configID", configID).Msg("failed to revoke tokens after config delete")
			return err
		}
		if err := s.tokens.ClearUsage(ctx, configID); err != nil {
			log.Error().Err(err).Str("configID", configID).Msg("failed to clear usage counter after config delete")
			return err
		}
	}

	metrics.ConfigWritesTotal.Inc()
	audit.Log("config", "delete", cfg.OwnerID, configID, string(cfg.MethodType), true, nil)

	return nil
}

// DeleteOwner removes every config of an owner, cascading like Delete.
// Document stores have no foreign keys, so owner teardown is an explicit
// operation here.
func (s *ConfigService) DeleteOwner(ctx context.Context, ownerID string) error {
	configs, err := s.methods.ListByOwner(ctx, ownerID)
	if err != nil {
		return err
	}

	for _, cfg := range configs {
		if err := s.Delete(ctx, cfg.ID); err != nil {
			if gkerrors.IsNotFound(err) {
				continue // already gone, keep tearing down
			}
			return err
		}
	}

	audit.Log("config", "delete_owner", ownerID, "", "", true, nil)

	return nil
}

func activationWord(active bool) string {
	if active {
		return "activated"
	}
	return "deactivated"
}
