package domain

import (
	"net/netip"
	"strings"
	"time"

	"github.com/gatekey-io/gatekey/errors"
)

// Default token lifetimes in seconds, applied when an upsert leaves the
// fields unspecified.
const (
	DefaultAccessTokenTTL    int64 = 7200
	DefaultAccessTokenMaxTTL int64 = 7200
)

// MachineAuthConfig is the machine-identity (cloud IAM) variant of a method
// configuration. It bounds every token minted under it: lifetime, mint
// quota and network origin.
type MachineAuthConfig struct {
	// AccessTokenTTL is the default token lifetime in seconds. Must be
	// positive and never exceed AccessTokenMaxTTL.
	AccessTokenTTL int64 `bson:"access_token_ttl" json:"access_token_ttl"`
	// AccessTokenMaxTTL caps both requested lifetimes and renewals,
	// measured from original issuance.
	AccessTokenMaxTTL int64 `bson:"access_token_max_ttl" json:"access_token_max_ttl"`
	// AccessTokenNumUsesLimit is the mint quota for this config; zero means
	// unlimited.
	AccessTokenNumUsesLimit int64 `bson:"access_token_num_uses_limit" json:"access_token_num_uses_limit"`
	// AccessTokenTrustedIPs restricts which source addresses may
	// authenticate. Entries are CIDR ranges; a bare address means a single
	// host. Empty means unrestricted.
	AccessTokenTrustedIPs []string `bson:"access_token_trusted_ips,omitempty" json:"access_token_trusted_ips,omitempty"`
	// AllowedServiceAccounts lists the cloud principals permitted to
	// authenticate under this config.
	AllowedServiceAccounts []string `bson:"allowed_service_accounts" json:"allowed_service_accounts"`
	// AllowedProjects scopes which project/tenant contexts the identity may
	// prove itself from.
	AllowedProjects []string `bson:"allowed_projects" json:"allowed_projects"`
}

func (m *MachineAuthConfig) normalize() {
	if m.AccessTokenTTL == 0 {
		m.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if m.AccessTokenMaxTTL == 0 {
		m.AccessTokenMaxTTL = DefaultAccessTokenMaxTTL
	}
}

func (m *MachineAuthConfig) validate() error {
	if m.AccessTokenTTL <= 0 {
		return errors.NewValidation("machine.access_token_ttl", "must be positive")
	}
	if m.AccessTokenMaxTTL <= 0 {
		return errors.NewValidation("machine.access_token_max_ttl", "must be positive")
	}
	if m.AccessTokenTTL > m.AccessTokenMaxTTL {
		return errors.NewValidation("machine.access_token_ttl", "must not exceed access_token_max_ttl")
	}
	if m.AccessTokenNumUsesLimit < 0 {
		return errors.NewValidation("machine.access_token_num_uses_limit", "must not be negative")
	}
	for _, cidr := range m.AccessTokenTrustedIPs {
		if _, err := ParseTrustedCIDR(cidr); err != nil {
			return errors.NewValidation("machine.access_token_trusted_ips", "invalid CIDR "+cidr)
		}
	}
	if len(m.AllowedServiceAccounts) == 0 {
		return errors.NewValidation("machine.allowed_service_accounts", "must not be empty")
	}
	if len(m.AllowedProjects) == 0 {
		return errors.NewValidation("machine.allowed_projects", "must not be empty")
	}
	return nil
}

func (m *MachineAuthConfig) clone() *MachineAuthConfig {
	dup := *m
	dup.AccessTokenTrustedIPs = append([]string(nil), m.AccessTokenTrustedIPs...)
	dup.AllowedServiceAccounts = append([]string(nil), m.AllowedServiceAccounts...)
	dup.AllowedProjects = append([]string(nil), m.AllowedProjects...)
	return &dup
}

// TTL returns the config's default token lifetime as a duration.
func (m *MachineAuthConfig) TTL() time.Duration {
	return time.Duration(m.AccessTokenTTL) * time.Second
}

// MaxTTL returns the config's maximum token lifetime as a duration.
func (m *MachineAuthConfig) MaxTTL() time.Duration {
	return time.Duration(m.AccessTokenMaxTTL) * time.Second
}

// TrustedPrefixes parses the trusted-IP list. Entries were validated at
// upsert time; malformed ones surface as an error rather than silently
// widening the restriction.
func (m *MachineAuthConfig) TrustedPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(m.AccessTokenTrustedIPs))
	for _, cidr := range m.AccessTokenTrustedIPs {
		p, err := ParseTrustedCIDR(cidr)
		if err != nil {
			return nil, err
		}
		prefixes = append(prefixes, p)
	}
	return prefixes, nil
}

// ParseTrustedCIDR parses a trusted-IP entry. A bare address is treated as a
// single-host range.
func ParseTrustedCIDR(s string) (netip.Prefix, error) {
	if strings.Contains(s, "/") {
		return netip.ParsePrefix(s)
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}
