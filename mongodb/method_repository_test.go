package mongodb

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatekey-io/gatekey/domain"
	gkerrors "github.com/gatekey-io/gatekey/errors"
	"github.com/gatekey-io/gatekey/mongodb/testutil"
)

func testMachineConfig(ownerID string) *domain.MethodConfig {
	return &domain.MethodConfig{
		OwnerID:    ownerID,
		MethodType: domain.MethodCloudIAM,
		IsActive:   true,
		Machine: &domain.MachineAuthConfig{
			AccessTokenTTL:          3600,
			AccessTokenMaxTTL:       7200,
			AccessTokenNumUsesLimit: 0,
			AccessTokenTrustedIPs:   []string{"10.0.0.0/8"},
			AllowedServiceAccounts:  []string{"svc-builder@proj-a.iam.example.com"},
			AllowedProjects:         []string{"proj-a"},
		},
	}
}

func testSAMLConfig(ownerID string) *domain.MethodConfig {
	return &domain.MethodConfig{
		OwnerID:    ownerID,
		MethodType: domain.MethodSAML,
		IsActive:   false,
		SAML: &domain.SAMLConfig{
			ProviderKind: domain.ProviderOktaSAML,
			EntryPoint:   "https://idp.example.com/sso/saml",
			Issuer:       "urn:gatekey:sp",
			Certificate:  "-----BEGIN CERTIFICATE-----\nMIIB\n-----END CERTIFICATE-----",
		},
	}
}

func TestMethodRepositoryMongo_Integration(t *testing.T) {
	db, cleanup := testutil.SetupTestMongoDB(t, "test_gatekey_methods")
	defer cleanup()

	ctx := context.Background()
	repo, err := NewMethodRepositoryMongo(ctx, db)
	require.NoError(t, err, "Failed to create MethodRepositoryMongo")

	var createdID string

	t.Run("Upsert creates", func(t *testing.T) {
		stored, err := repo.Upsert(ctx, testMachineConfig("org-1"))
		require.NoError(t, err)
		require.NotEmpty(t, stored.ID)
		assert.WithinDuration(t, time.Now(), stored.CreatedAt, 5*time.Second)
		assert.False(t, stored.UpdatedAt.Before(stored.CreatedAt))
		createdID = stored.ID
	})

	t.Run("GetByOwner round trip", func(t *testing.T) {
		got, err := repo.GetByOwner(ctx, "org-1", domain.MethodCloudIAM)
		require.NoError(t, err)
		assert.Equal(t, createdID, got.ID)
		require.NotNil(t, got.Machine)
		assert.EqualValues(t, 3600, got.Machine.AccessTokenTTL)
		assert.Equal(t, []string{"10.0.0.0/8"}, got.Machine.AccessTokenTrustedIPs)

		_, err = repo.GetByOwner(ctx, "org-1", domain.MethodSAML)
		assert.True(t, gkerrors.IsNotFound(err))
	})

	t.Run("Upsert replaces keeping identity", func(t *testing.T) {
		replacement := testMachineConfig("org-1")
		replacement.Machine.AccessTokenNumUsesLimit = 5

		stored, err := repo.Upsert(ctx, replacement)
		require.NoError(t, err)
		assert.Equal(t, createdID, stored.ID, "replacement keeps the document ID")
		assert.EqualValues(t, 5, stored.Machine.AccessTokenNumUsesLimit)

		got, err := repo.GetByID(ctx, createdID)
		require.NoError(t, err)
		assert.EqualValues(t, 5, got.Machine.AccessTokenNumUsesLimit)
	})

	t.Run("concurrent upserts keep one document per key", func(t *testing.T) {
		const callers = 8

		var wg sync.WaitGroup
		results := make(chan error, callers)

		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(limit int64) {
				defer wg.Done()
				cfg := testMachineConfig("org-race")
				cfg.Machine.AccessTokenNumUsesLimit = limit
				_, err := repo.Upsert(ctx, cfg)
				results <- err
			}(int64(i + 1))
		}
		wg.Wait()
		close(results)

		var succeeded int
		for err := range results {
			if err == nil {
				succeeded++
			} else {
				require.True(t, gkerrors.IsConflict(err), "losers fail with Conflict, got %v", err)
			}
		}
		assert.GreaterOrEqual(t, succeeded, 1, "at least the first writer wins")

		configs, err := repo.ListByOwner(ctx, "org-race")
		require.NoError(t, err)
		require.Len(t, configs, 1, "unique index holds one document per key")
		assert.Positive(t, configs[0].Machine.AccessTokenNumUsesLimit, "stored state is one writer's whole config")
	})

	t.Run("ListByOwner orders by method type", func(t *testing.T) {
		_, err := repo.Upsert(ctx, testSAMLConfig("org-1"))
		require.NoError(t, err)
		_, err = repo.Upsert(ctx, testMachineConfig("org-2"))
		require.NoError(t, err)

		configs, err := repo.ListByOwner(ctx, "org-1")
		require.NoError(t, err)
		require.Len(t, configs, 2)
		assert.Equal(t, domain.MethodCloudIAM, configs[0].MethodType)
		assert.Equal(t, domain.MethodSAML, configs[1].MethodType)

		none, err := repo.ListByOwner(ctx, "org-none")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("SetActive toggles", func(t *testing.T) {
		got, err := repo.SetActive(ctx, createdID, false)
		require.NoError(t, err)
		assert.False(t, got.IsActive)

		got, err = repo.SetActive(ctx, createdID, true)
		require.NoError(t, err)
		assert.True(t, got.IsActive)

		_, err = repo.SetActive(ctx, "unknown-id", true)
		assert.True(t, gkerrors.IsNotFound(err))
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, createdID))

		_, err := repo.GetByID(ctx, createdID)
		assert.True(t, gkerrors.IsNotFound(err))

		err = repo.Delete(ctx, createdID)
		assert.True(t, gkerrors.IsNotFound(err))
	})
}
