// Package inmem provides map-backed repository implementations. They serve
// single-process deployments and tests; semantics mirror the mongodb
// package, including atomicity of the mint counter.
package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gatekey-io/gatekey/domain"
	gkerrors "github.com/gatekey-io/gatekey/errors"
)

// MethodStore implements domain.MethodRepository in memory.
type MethodStore struct {
	mu   sync.RWMutex
	byID map[string]*domain.MethodConfig
	// byKey maps owner/method-type keys to config IDs. One config per key.
	byKey map[string]string
}

// NewMethodStore creates a new MethodStore.
func NewMethodStore() *MethodStore {
	return &MethodStore{
		byID:  make(map[string]*domain.MethodConfig),
		byKey: make(map[string]string),
	}
}

// Upsert stores the config under its (owner, method type) key. The ID and
// CreatedAt of an existing record survive; everything else is replaced.
func (s *MethodStore) Upsert(_ context.Context, cfg *domain.MethodConfig) (*domain.MethodConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	stored := cfg.Clone()
	stored.UpdatedAt = now

	if id, ok := s.byKey[cfg.Key()]; ok {
		prev := s.byID[id]
		stored.ID = prev.ID
		stored.CreatedAt = prev.CreatedAt
	} else {
		if stored.ID == "" {
			stored.ID = uuid.NewString()
		}
		stored.CreatedAt = now
	}

	s.byID[stored.ID] = stored
	s.byKey[stored.Key()] = stored.ID

	return stored.Clone(), nil
}

// GetByOwner retrieves the config for an (owner, method type) pair.
func (s *MethodStore) GetByOwner(_ context.Context, ownerID string, mt domain.MethodType) (*domain.MethodConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[domain.MethodKey(ownerID, mt)]
	if !ok {
		return nil, gkerrors.NewNotFound("auth method config", domain.MethodKey(ownerID, mt))
	}

	return s.byID[id].Clone(), nil
}

// GetByID retrieves a config by its ID.
func (s *MethodStore) GetByID(_ context.Context, id string) (*domain.MethodConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.byID[id]
	if !ok {
		return nil, gkerrors.NewNotFound("auth method config", id)
	}

	return cfg.Clone(), nil
}

// ListByOwner returns every config of an owner, ordered by method type.
func (s *MethodStore) ListByOwner(_ context.Context, ownerID string) ([]*domain.MethodConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.MethodConfig
	for _, cfg := range s.byID {
		if cfg.OwnerID == ownerID {
			out = append(out, cfg.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MethodType < out[j].MethodType })

	return out, nil
}

// SetActive toggles the activation flag of a config.
func (s *MethodStore) SetActive(_ context.Context, id string, active bool) (*domain.MethodConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.byID[id]
	if !ok {
		return nil, gkerrors.NewNotFound("auth method config", id)
	}

	cfg.IsActive = active
	cfg.UpdatedAt = time.Now().UTC()

	return cfg.Clone(), nil
}

// Delete removes a config by ID.
func (s *MethodStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.byID[id]
	if !ok {
		return gkerrors.NewNotFound("auth method config", id)
	}

	delete(s.byKey, cfg.Key())
	delete(s.byID, id)

	return nil
}
