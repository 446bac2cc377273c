package domain

import (
	"context"
	"time"
)

// Attempt carries the caller-supplied material of one authentication
// request: where it came from, the cloud-IAM proof, and an optional
// requested lifetime.
type Attempt struct {
	// ClientIP is the network origin of the caller as observed by the
	// transport, in textual form.
	ClientIP string
	// Proof is the opaque cloud-IAM identity proof. Its wire format and
	// verification live behind ProofVerifier.
	Proof string
	// RequestedTTL asks for a shorter lifetime than the config default.
	// Zero means "use the config's TTL". The effective lifetime never
	// exceeds the config's max TTL either way.
	RequestedTTL time.Duration
}

// Principal is the identity a proof resolves to: which service account, and
// from which project/tenant context it proved itself.
type Principal struct {
	ServiceAccount string `json:"service_account"`
	Project        string `json:"project"`
}

// ProofVerifier resolves a cloud-IAM proof into the principal it attests.
// Implementations own the provider-specific verification protocol; the
// engine only consumes the resolved principal.
type ProofVerifier interface {
	VerifyProof(ctx context.Context, proof string) (*Principal, error)
}
