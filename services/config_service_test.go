package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatekey-io/gatekey/domain"
	gkerrors "github.com/gatekey-io/gatekey/errors"
	"github.com/gatekey-io/gatekey/inmem"
)

func machineConfig(owner string) *domain.MethodConfig {
	return &domain.MethodConfig{
		OwnerID:    owner,
		MethodType: domain.MethodCloudIAM,
		IsActive:   true,
		Machine: &domain.MachineAuthConfig{
			AccessTokenTTL:         3600,
			AccessTokenMaxTTL:      7200,
			AllowedServiceAccounts: []string{"svc-builder@proj-a.iam.example.com"},
			AllowedProjects:        []string{"proj-a"},
		},
	}
}

func samlConfig(owner string) *domain.MethodConfig {
	return &domain.MethodConfig{
		OwnerID:    owner,
		MethodType: domain.MethodSAML,
		SAML: &domain.SAMLConfig{
			ProviderKind: domain.ProviderOktaSAML,
			EntryPoint:   "https://acme.okta.com/app/gatekey/sso/saml",
			Issuer:       "http://www.okta.com/exk7281",
			Certificate:  "-----BEGIN CERTIFICATE-----\nMIIBszCCARug\n-----END CERTIFICATE-----",
		},
	}
}

func newConfigService() (*ConfigService, *inmem.MethodStore, *inmem.TokenStore) {
	methods := inmem.NewMethodStore()
	tokens := inmem.NewTokenStore()
	return NewConfigService(methods, tokens), methods, tokens
}

func TestConfigService_UpsertAppliesDefaults(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newConfigService()

	cfg := machineConfig("org-1")
	cfg.Machine.AccessTokenTTL = 0
	cfg.Machine.AccessTokenMaxTTL = 0

	stored, err := svc.Upsert(ctx, cfg)
	require.NoError(t, err)
	assert.EqualValues(t, 7200, stored.Machine.AccessTokenTTL)
	assert.EqualValues(t, 7200, stored.Machine.AccessTokenMaxTTL)
	assert.EqualValues(t, 0, stored.Machine.AccessTokenNumUsesLimit)
	assert.Empty(t, stored.Machine.AccessTokenTrustedIPs)

	got, err := svc.Get(ctx, "org-1", domain.MethodCloudIAM)
	require.NoError(t, err)
	assert.Equal(t, stored, got, "get returns the upserted record field for field")
}

func TestConfigService_UpsertValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newConfigService()

	good := machineConfig("org-1")
	stored, err := svc.Upsert(ctx, good)
	require.NoError(t, err)

	t.Run("ttl above max rejected and prior record kept", func(t *testing.T) {
		bad := machineConfig("org-1")
		bad.Machine.AccessTokenTTL = 9000
		bad.Machine.AccessTokenMaxTTL = 7200

		_, err := svc.Upsert(ctx, bad)
		require.True(t, gkerrors.IsValidation(err))

		got, err := svc.Get(ctx, "org-1", domain.MethodCloudIAM)
		require.NoError(t, err)
		assert.Equal(t, stored.Machine, got.Machine)
	})

	t.Run("bad cidr rejected", func(t *testing.T) {
		bad := machineConfig("org-1")
		bad.Machine.AccessTokenTrustedIPs = []string{"10.0.0.0/8", "not-a-cidr"}

		_, err := svc.Upsert(ctx, bad)
		assert.True(t, gkerrors.IsValidation(err))
	})

	t.Run("empty allowlists rejected", func(t *testing.T) {
		bad := machineConfig("org-1")
		bad.Machine.AllowedServiceAccounts = nil

		_, err := svc.Upsert(ctx, bad)
		assert.True(t, gkerrors.IsValidation(err))
	})

	t.Run("unknown method type rejected", func(t *testing.T) {
		bad := machineConfig("org-1")
		bad.MethodType = domain.MethodType("kerberos")

		_, err := svc.Upsert(ctx, bad)
		assert.True(t, gkerrors.IsValidation(err))
	})
}

func TestConfigService_UpsertKeepsIdentityAcrossReplace(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newConfigService()

	first, err := svc.Upsert(ctx, machineConfig("org-1"))
	require.NoError(t, err)

	replacement := machineConfig("org-1")
	replacement.Machine.AccessTokenNumUsesLimit = 5
	second, err := svc.Upsert(ctx, replacement)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.EqualValues(t, 5, second.Machine.AccessTokenNumUsesLimit)
}

func TestConfigService_UpsertConflict(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newConfigService()

	cfg := machineConfig("org-1")
	require.True(t, svc.locks.tryAcquire(cfg.Key()), "simulate a writer holding the key")
	defer svc.locks.release(cfg.Key())

	_, err := svc.Upsert(ctx, cfg)
	assert.True(t, gkerrors.IsConflict(err))
}

func TestConfigService_SAMLActivation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newConfigService()

	t.Run("draft may be blank", func(t *testing.T) {
		draft := samlConfig("org-1")
		draft.SAML.EntryPoint = ""
		draft.SAML.Certificate = ""

		stored, err := svc.Upsert(ctx, draft)
		require.NoError(t, err)
		assert.False(t, stored.IsActive)
	})

	t.Run("activation requires complete provider fields", func(t *testing.T) {
		stored, err := svc.Get(ctx, "org-1", domain.MethodSAML)
		require.NoError(t, err)

		_, err = svc.SetActive(ctx, stored.ID, true)
		require.True(t, gkerrors.IsValidation(err))

		complete := samlConfig("org-1")
		stored, err = svc.Upsert(ctx, complete)
		require.NoError(t, err)

		activated, err := svc.SetActive(ctx, stored.ID, true)
		require.NoError(t, err)
		assert.True(t, activated.IsActive)
	})

	t.Run("active upsert with blank fields rejected", func(t *testing.T) {
		blank := samlConfig("org-2")
		blank.IsActive = true
		blank.SAML.Issuer = ""

		_, err := svc.Upsert(ctx, blank)
		assert.True(t, gkerrors.IsValidation(err))
	})
}

func TestConfigService_DeactivationRevokesTokens(t *testing.T) {
	ctx := context.Background()
	svc, _, tokens := newConfigService()

	stored, err := svc.Upsert(ctx, machineConfig("org-1"))
	require.NoError(t, err)

	now := time.Now().UTC()
	outstanding := &domain.AccessToken{
		ID:        "tok-1",
		ConfigID:  stored.ID,
		OwnerID:   "org-1",
		TokenHash: "hash-1",
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, tokens.Store(ctx, outstanding))

	deactivated, err := svc.SetActive(ctx, stored.ID, false)
	require.NoError(t, err)
	assert.False(t, deactivated.IsActive)

	got, err := tokens.GetByID(ctx, "tok-1")
	require.NoError(t, err)
	assert.True(t, got.Revoked, "outstanding tokens are invalidated on deactivation")
}

func TestConfigService_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	svc, _, tokens := newConfigService()

	stored, err := svc.Upsert(ctx, machineConfig("org-1"))
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, tokens.Store(ctx, &domain.AccessToken{
		ID: "tok-1", ConfigID: stored.ID, OwnerID: "org-1",
		TokenHash: "hash-1", IssuedAt: now, ExpiresAt: now.Add(time.Hour),
	}))
	_, err = tokens.ReserveUse(ctx, stored.ID, 0)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, stored.ID))

	_, err = svc.Get(ctx, "org-1", domain.MethodCloudIAM)
	assert.True(t, gkerrors.IsNotFound(err))

	got, err := tokens.GetByID(ctx, "tok-1")
	require.NoError(t, err)
	assert.True(t, got.Revoked)

	count, err := tokens.UsageCount(ctx, stored.ID)
	require.NoError(t, err)
	assert.Zero(t, count, "usage counter cleared with the config")

	assert.True(t, gkerrors.IsNotFound(svc.Delete(ctx, stored.ID)))
}

func TestConfigService_DeleteOwner(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newConfigService()

	_, err := svc.Upsert(ctx, machineConfig("org-1"))
	require.NoError(t, err)
	_, err = svc.Upsert(ctx, samlConfig("org-1"))
	require.NoError(t, err)
	other, err := svc.Upsert(ctx, machineConfig("org-2"))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteOwner(ctx, "org-1"))

	_, err = svc.Get(ctx, "org-1", domain.MethodCloudIAM)
	assert.True(t, gkerrors.IsNotFound(err))
	_, err = svc.Get(ctx, "org-1", domain.MethodSAML)
	assert.True(t, gkerrors.IsNotFound(err))

	kept, err := svc.GetByID(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, "org-2", kept.OwnerID)
}

func TestConfigService_GetValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newConfigService()

	_, err := svc.Get(ctx, "", domain.MethodSAML)
	assert.True(t, gkerrors.IsValidation(err))

	_, err = svc.Get(ctx, "org-1", domain.MethodType("kerberos"))
	assert.True(t, gkerrors.IsValidation(err))

	_, err = svc.Get(ctx, "org-1", domain.MethodSAML)
	assert.True(t, gkerrors.IsNotFound(err))
}
