// Package policy holds the pure decision logic that bounds machine-identity
// token issuance. It performs no I/O: callers feed it the config, the
// attempt and the current usage snapshot, and get a deterministic decision
// back, so every denial is reproducible in tests and audit logs.
package policy

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/gatekey-io/gatekey/domain"
	"github.com/gatekey-io/gatekey/errors"
)

// Decision is the outcome of a constraint evaluation. When Allowed is false,
// Reason carries the first failing check; checks run in a fixed order, so
// the same inputs always yield the same reason.
type Decision struct {
	Allowed      bool
	Reason       errors.AuthReason
	Detail       string
	EffectiveTTL time.Duration
}

func allow(ttl time.Duration) Decision {
	return Decision{Allowed: true, EffectiveTTL: ttl}
}

func deny(reason errors.AuthReason, detail string) Decision {
	return Decision{Allowed: false, Reason: reason, Detail: detail}
}

// Evaluate runs the constraint checks against one authentication attempt,
// in order: trusted IPs, service-account membership, project membership,
// uses limit. usageCount is the caller's snapshot of the config's mint
// counter; the ledger re-checks it atomically at reservation time, this
// check only makes the denial reason deterministic.
func Evaluate(cfg *domain.MachineAuthConfig, att domain.Attempt, principal domain.Principal, usageCount int64) Decision {
	if len(cfg.AccessTokenTrustedIPs) > 0 {
		prefixes, err := cfg.TrustedPrefixes()
		if err != nil {
			// A malformed stored range narrows, never widens, the
			// restriction.
			return deny(errors.ReasonIPNotTrusted, "trusted range unparseable")
		}
		addr, err := netip.ParseAddr(att.ClientIP)
		if err != nil {
			return deny(errors.ReasonIPNotTrusted, fmt.Sprintf("unparseable origin %q", att.ClientIP))
		}
		if !containedIn(prefixes, addr) {
			return deny(errors.ReasonIPNotTrusted, fmt.Sprintf("origin %s outside trusted ranges", addr))
		}
	}

	if !contains(cfg.AllowedServiceAccounts, principal.ServiceAccount) {
		return deny(errors.ReasonPrincipalNotAllowed, fmt.Sprintf("service account %q not allowed", principal.ServiceAccount))
	}

	if !contains(cfg.AllowedProjects, principal.Project) {
		return deny(errors.ReasonProjectNotAllowed, fmt.Sprintf("project %q not allowed", principal.Project))
	}

	if UsesLimitReached(cfg, usageCount) {
		return deny(errors.ReasonUsesLimitExceeded, fmt.Sprintf("mint quota %d reached", cfg.AccessTokenNumUsesLimit))
	}

	return allow(EffectiveTTL(cfg, att.RequestedTTL))
}

// EffectiveTTL resolves the lifetime of a token minted now: the requested
// TTL when one was asked for, the config default otherwise, capped at the
// config max either way.
func EffectiveTTL(cfg *domain.MachineAuthConfig, requested time.Duration) time.Duration {
	ttl := cfg.TTL()
	if requested > 0 {
		ttl = requested
	}
	if max := cfg.MaxTTL(); ttl > max {
		ttl = max
	}
	return ttl
}

// UsesLimitReached reports whether the config's mint quota is exhausted for
// the given counter snapshot. A zero limit means unlimited.
func UsesLimitReached(cfg *domain.MachineAuthConfig, usageCount int64) bool {
	return cfg.AccessTokenNumUsesLimit > 0 && usageCount >= cfg.AccessTokenNumUsesLimit
}

// RenewalExpiry computes the expiry a renewal at instant now may extend the
// token to: now plus the config TTL, never past issuedAt plus the config max
// TTL. ok is false when the max lifetime is already consumed.
func RenewalExpiry(cfg *domain.MachineAuthConfig, issuedAt, now time.Time) (expiresAt time.Time, ok bool) {
	ceiling := issuedAt.Add(cfg.MaxTTL())
	if !now.Before(ceiling) {
		return time.Time{}, false
	}
	expiresAt = now.Add(cfg.TTL())
	if expiresAt.After(ceiling) {
		expiresAt = ceiling
	}
	return expiresAt, true
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func containedIn(prefixes []netip.Prefix, addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
