// Package iamproof provides verifiers for machine identity proofs. The wire
// protocol of real cloud-IAM attestations is out of scope here; deployments
// plug their own domain.ProofVerifier and these implementations cover
// static credential tables and development setups.
package iamproof

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/gatekey-io/gatekey/domain"
)

// ErrProofRejected is returned for unknown or malformed proofs.
var ErrProofRejected = errors.New("identity proof rejected")

// StaticVerifier resolves proofs against a pre-registered credential table.
type StaticVerifier struct {
	mu    sync.RWMutex
	creds map[string]domain.Principal
}

// NewStaticVerifier creates an empty StaticVerifier.
func NewStaticVerifier() *StaticVerifier {
	return &StaticVerifier{
		creds: make(map[string]domain.Principal),
	}
}

// Register binds a proof credential to a principal.
func (v *StaticVerifier) Register(proof string, principal domain.Principal) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.creds[proof] = principal
}

// VerifyProof implements domain.ProofVerifier.
func (v *StaticVerifier) VerifyProof(_ context.Context, proof string) (*domain.Principal, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	principal, ok := v.creds[proof]
	if !ok {
		return nil, ErrProofRejected
	}

	return &principal, nil
}

// InsecureVerifier accepts a JSON-encoded principal as its own proof. It
// exists for local development only and says so loudly at construction.
type InsecureVerifier struct{}

// NewInsecureVerifier creates an InsecureVerifier.
func NewInsecureVerifier() *InsecureVerifier {
	log.Warn().Msg("identity proofs are NOT being verified; insecure verifier is for development only")
	return &InsecureVerifier{}
}

// VerifyProof implements domain.ProofVerifier.
func (v *InsecureVerifier) VerifyProof(_ context.Context, proof string) (*domain.Principal, error) {
	var principal domain.Principal
	if err := json.Unmarshal([]byte(proof), &principal); err != nil {
		return nil, ErrProofRejected
	}

	principal.ServiceAccount = strings.TrimSpace(principal.ServiceAccount)
	principal.Project = strings.TrimSpace(principal.Project)
	if principal.ServiceAccount == "" || principal.Project == "" {
		return nil, ErrProofRejected
	}

	return &principal, nil
}

var (
	_ domain.ProofVerifier = (*StaticVerifier)(nil)
	_ domain.ProofVerifier = (*InsecureVerifier)(nil)
)
