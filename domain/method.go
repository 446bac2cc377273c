package domain

import (
	"time"

	"github.com/gatekey-io/gatekey/errors"
)

// MethodType identifies an authentication method family. An owner holds at
// most one configuration per method type.
type MethodType string

const (
	// MethodSAML is federated SSO delegated to an external SAML identity
	// provider.
	MethodSAML MethodType = "saml"
	// MethodCloudIAM is machine-identity authentication backed by a cloud
	// platform's IAM proof.
	MethodCloudIAM MethodType = "cloud-iam"
)

// KnownMethodType reports whether mt is one of the supported method types.
func KnownMethodType(mt MethodType) bool {
	switch mt {
	case MethodSAML, MethodCloudIAM:
		return true
	}
	return false
}

// MethodConfig is the envelope shared by every authentication-method
// configuration. Exactly one variant payload is set, matching MethodType.
// A config can exist fully stored yet inactive; activation is an explicit,
// separately toggled step.
type MethodConfig struct {
	ID         string     `bson:"_id,omitempty" json:"id"`
	OwnerID    string     `bson:"owner_id" json:"owner_id"`
	MethodType MethodType `bson:"method_type" json:"method_type"`
	IsActive   bool       `bson:"is_active" json:"is_active"`

	SAML    *SAMLConfig        `bson:"saml,omitempty" json:"saml,omitempty"`
	Machine *MachineAuthConfig `bson:"machine,omitempty" json:"machine,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// MethodKey is the serialization key for configuration writes: at most one
// in-flight mutation per (owner, method type) pair.
func MethodKey(ownerID string, mt MethodType) string {
	return ownerID + "/" + string(mt)
}

// Key returns the config's own serialization key.
func (c *MethodConfig) Key() string {
	return MethodKey(c.OwnerID, c.MethodType)
}

// Normalize fills variant defaults in place. It is applied before validation
// on every upsert so that unspecified numeric fields materialize as their
// documented defaults.
func (c *MethodConfig) Normalize() {
	if c.Machine != nil {
		c.Machine.normalize()
	}
}

// Validate checks the envelope and the variant payload against the config's
// requested IsActive value. Violations are reported as ValidationError and
// must keep the record out of storage.
func (c *MethodConfig) Validate() error {
	if c.OwnerID == "" {
		return errors.NewValidation("owner_id", "must not be empty")
	}
	if !KnownMethodType(c.MethodType) {
		return errors.NewValidation("method_type", "unknown method type")
	}
	switch c.MethodType {
	case MethodSAML:
		if c.SAML == nil {
			return errors.NewValidation("saml", "missing saml payload")
		}
		if c.Machine != nil {
			return errors.NewValidation("machine", "unexpected machine payload on saml method")
		}
		return c.SAML.validate(c.IsActive)
	case MethodCloudIAM:
		if c.Machine == nil {
			return errors.NewValidation("machine", "missing machine payload")
		}
		if c.SAML != nil {
			return errors.NewValidation("saml", "unexpected saml payload on cloud-iam method")
		}
		return c.Machine.validate()
	}
	return errors.NewValidation("method_type", "unknown method type")
}

// Clone returns a deep copy. Stores hand out clones so callers can never
// mutate persisted state in place.
func (c *MethodConfig) Clone() *MethodConfig {
	if c == nil {
		return nil
	}
	dup := *c
	if c.SAML != nil {
		saml := *c.SAML
		dup.SAML = &saml
	}
	if c.Machine != nil {
		dup.Machine = c.Machine.clone()
	}
	return &dup
}
