package domain

// SAMLProviderKind names a supported federated-SSO vendor.
type SAMLProviderKind string

const (
	ProviderOktaSAML      SAMLProviderKind = "okta-saml"
	ProviderAzureSAML     SAMLProviderKind = "azure-saml"
	ProviderJumpCloudSAML SAMLProviderKind = "jumpcloud-saml"
	ProviderGoogleSAML    SAMLProviderKind = "google-saml"
)

// KnownSAMLProviderKind reports whether kind is in the supported set.
func KnownSAMLProviderKind(kind SAMLProviderKind) bool {
	_, ok := providerProfiles[kind]
	return ok
}

// ProviderProfile carries the vendor-specific field labels and placeholders
// used when displaying or collecting a SAML configuration. It is display
// metadata only: neither the constraint policy nor the token issuer ever
// consults it.
type ProviderProfile struct {
	ACSUrlLabel           string `json:"acs_url_label"`
	EntityIDLabel         string `json:"entity_id_label"`
	EntryPointLabel       string `json:"entry_point_label"`
	EntryPointPlaceholder string `json:"entry_point_placeholder"`
	IssuerLabel           string `json:"issuer_label"`
	IssuerPlaceholder     string `json:"issuer_placeholder"`
}

var genericProfile = ProviderProfile{
	ACSUrlLabel:           "ACS URL",
	EntityIDLabel:         "SP Entity ID",
	EntryPointLabel:       "IdP SSO URL",
	EntryPointPlaceholder: "https://idp.example.com/sso/saml",
	IssuerLabel:           "IdP Issuer",
	IssuerPlaceholder:     "https://idp.example.com",
}

// providerProfiles is the per-vendor lookup table. Adding a vendor means
// adding a row here; nothing else in the engine changes.
var providerProfiles = map[SAMLProviderKind]ProviderProfile{
	ProviderOktaSAML: {
		ACSUrlLabel:           "Single sign-on URL",
		EntityIDLabel:         "Audience URI (SP Entity ID)",
		EntryPointLabel:       "Identity Provider Single Sign-On URL",
		EntryPointPlaceholder: "https://your-org.okta.com/app/app-id/sso/saml",
		IssuerLabel:           "Identity Provider Issuer",
		IssuerPlaceholder:     "http://www.okta.com/exk1a2b3c4d5e6f7g8h9",
	},
	ProviderAzureSAML: {
		ACSUrlLabel:           "Reply URL (Assertion Consumer Service URL)",
		EntityIDLabel:         "Identifier (Entity ID)",
		EntryPointLabel:       "Login URL",
		EntryPointPlaceholder: "https://login.microsoftonline.com/tenant-id/saml2",
		IssuerLabel:           "Microsoft Entra Identifier",
		IssuerPlaceholder:     "https://sts.windows.net/tenant-id/",
	},
	ProviderJumpCloudSAML: {
		ACSUrlLabel:           "ACS URL",
		EntityIDLabel:         "SP Entity ID",
		EntryPointLabel:       "IDP URL",
		EntryPointPlaceholder: "https://sso.jumpcloud.com/saml2/your-app",
		IssuerLabel:           "IdP Entity ID",
		IssuerPlaceholder:     "JumpCloud",
	},
	ProviderGoogleSAML: {
		ACSUrlLabel:           "ACS URL",
		EntityIDLabel:         "Entity ID",
		EntryPointLabel:       "SSO URL",
		EntryPointPlaceholder: "https://accounts.google.com/o/saml2/idp?idpid=idp-id",
		IssuerLabel:           "Entity ID (IdP)",
		IssuerPlaceholder:     "https://accounts.google.com/o/saml2?idpid=idp-id",
	},
}

// ProfileFor returns the display profile for a provider kind. Unknown kinds
// get the generic fallback rather than an error, so records written by a
// newer version still render.
func ProfileFor(kind SAMLProviderKind) ProviderProfile {
	if p, ok := providerProfiles[kind]; ok {
		return p
	}
	return genericProfile
}
