package domain

import "github.com/gatekey-io/gatekey/errors"

// SAMLConfig is the federated-SSO variant of a method configuration. Drafts
// may be saved with blank fields; activation requires the entry point, the
// issuer and the signing certificate to be present.
type SAMLConfig struct {
	ProviderKind SAMLProviderKind `bson:"provider_kind" json:"provider_kind"`
	// EntryPoint is the identity provider's SSO URL, in the provider's own
	// format.
	EntryPoint string `bson:"entry_point" json:"entry_point"`
	// Issuer is the identity provider's issuer identifier.
	Issuer string `bson:"issuer" json:"issuer"`
	// Certificate is the PEM-encoded IdP signing certificate. Assertion
	// signature verification against it happens outside this engine.
	Certificate string `bson:"certificate" json:"certificate"`
}

func (s *SAMLConfig) validate(forActive bool) error {
	if !KnownSAMLProviderKind(s.ProviderKind) {
		return errors.NewValidation("saml.provider_kind", "unknown provider kind")
	}
	if !forActive {
		return nil
	}
	if s.EntryPoint == "" {
		return errors.NewValidation("saml.entry_point", "required for activation")
	}
	if s.Issuer == "" {
		return errors.NewValidation("saml.issuer", "required for activation")
	}
	if s.Certificate == "" {
		return errors.NewValidation("saml.certificate", "required for activation")
	}
	return nil
}
