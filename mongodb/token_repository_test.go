package mongodb

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatekey-io/gatekey/cache"
	"github.com/gatekey-io/gatekey/domain"
	gkerrors "github.com/gatekey-io/gatekey/errors"
	"github.com/gatekey-io/gatekey/mongodb/testutil"
)

func testAccessToken(id, configID string, expiresIn time.Duration) *domain.AccessToken {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &domain.AccessToken{
		ID:             id,
		ConfigID:       configID,
		OwnerID:        "org-1",
		ServiceAccount: "svc-builder@proj-a.iam.example.com",
		Project:        "proj-a",
		TokenHash:      cache.HashToken("value-" + id),
		TokenValue:     "value-" + id,
		IssuedAt:       now,
		ExpiresAt:      now.Add(expiresIn),
	}
}

func TestTokenRepositoryMongo_Integration(t *testing.T) {
	db, cleanup := testutil.SetupTestMongoDB(t, "test_gatekey_tokens")
	defer cleanup()

	ctx := context.Background()
	repo, err := NewTokenRepositoryMongo(ctx, db)
	require.NoError(t, err, "Failed to create TokenRepositoryMongo")

	t.Run("Store and retrieve", func(t *testing.T) {
		token := testAccessToken("tok-1", "cfg-1", time.Hour)
		require.NoError(t, repo.Store(ctx, token))

		byID, err := repo.GetByID(ctx, "tok-1")
		require.NoError(t, err)
		assert.Equal(t, token.TokenHash, byID.TokenHash)
		assert.Empty(t, byID.TokenValue, "signed value never reaches the collection")
		assert.True(t, byID.ExpiresAt.Equal(token.ExpiresAt))

		byHash, err := repo.GetByHash(ctx, token.TokenHash)
		require.NoError(t, err)
		assert.Equal(t, "tok-1", byHash.ID)

		_, err = repo.GetByID(ctx, "tok-none")
		assert.True(t, gkerrors.IsNotFound(err))
		_, err = repo.GetByHash(ctx, cache.HashToken("value-none"))
		assert.True(t, gkerrors.IsNotFound(err))
	})

	t.Run("UpdateExpiry", func(t *testing.T) {
		token := testAccessToken("tok-renew", "cfg-1", time.Hour)
		require.NoError(t, repo.Store(ctx, token))

		extended := token.IssuedAt.Add(2 * time.Hour)
		require.NoError(t, repo.UpdateExpiry(ctx, "tok-renew", extended, token.TokenHash))

		got, err := repo.GetByID(ctx, "tok-renew")
		require.NoError(t, err)
		assert.True(t, got.ExpiresAt.Equal(extended))

		err = repo.UpdateExpiry(ctx, "tok-none", extended, token.TokenHash)
		assert.True(t, gkerrors.IsNotFound(err))
	})

	t.Run("TouchUse accumulates", func(t *testing.T) {
		token := testAccessToken("tok-used", "cfg-1", time.Hour)
		require.NoError(t, repo.Store(ctx, token))

		at := time.Now().UTC().Truncate(time.Millisecond)
		require.NoError(t, repo.TouchUse(ctx, "tok-used", at))
		require.NoError(t, repo.TouchUse(ctx, "tok-used", at.Add(time.Second)))

		got, err := repo.GetByID(ctx, "tok-used")
		require.NoError(t, err)
		assert.EqualValues(t, 2, got.UsesCount)
		assert.True(t, got.LastUsedAt.Equal(at.Add(time.Second)))
	})

	t.Run("Revoke is idempotent", func(t *testing.T) {
		token := testAccessToken("tok-revoked", "cfg-1", time.Hour)
		require.NoError(t, repo.Store(ctx, token))

		require.NoError(t, repo.Revoke(ctx, "tok-revoked"))
		require.NoError(t, repo.Revoke(ctx, "tok-revoked"))

		got, err := repo.GetByID(ctx, "tok-revoked")
		require.NoError(t, err)
		assert.True(t, got.Revoked)

		err = repo.Revoke(ctx, "tok-none")
		assert.True(t, gkerrors.IsNotFound(err))
	})

	t.Run("RevokeByConfig sweeps outstanding tokens", func(t *testing.T) {
		require.NoError(t, repo.Store(ctx, testAccessToken("tok-c2-a", "cfg-2", time.Hour)))
		require.NoError(t, repo.Store(ctx, testAccessToken("tok-c2-b", "cfg-2", time.Hour)))
		require.NoError(t, repo.Store(ctx, testAccessToken("tok-c3", "cfg-3", time.Hour)))

		require.NoError(t, repo.RevokeByConfig(ctx, "cfg-2"))

		for _, id := range []string{"tok-c2-a", "tok-c2-b"} {
			got, err := repo.GetByID(ctx, id)
			require.NoError(t, err)
			assert.True(t, got.Revoked, "token %s should be revoked", id)
		}
		untouched, err := repo.GetByID(ctx, "tok-c3")
		require.NoError(t, err)
		assert.False(t, untouched.Revoked)
	})

	t.Run("DeleteExpired", func(t *testing.T) {
		require.NoError(t, repo.Store(ctx, testAccessToken("tok-old", "cfg-4", -time.Hour)))
		require.NoError(t, repo.Store(ctx, testAccessToken("tok-live", "cfg-4", time.Hour)))

		removed, err := repo.DeleteExpired(ctx, time.Now().UTC())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, removed, int64(1))

		_, err = repo.GetByID(ctx, "tok-old")
		assert.True(t, gkerrors.IsNotFound(err))
		_, err = repo.GetByID(ctx, "tok-live")
		assert.NoError(t, err)
	})
}

func TestTokenRepositoryMongo_UsageCounters(t *testing.T) {
	db, cleanup := testutil.SetupTestMongoDB(t, "test_gatekey_usage")
	defer cleanup()

	ctx := context.Background()
	repo, err := NewTokenRepositoryMongo(ctx, db)
	require.NoError(t, err, "Failed to create TokenRepositoryMongo")

	t.Run("ReserveUse enforces the limit", func(t *testing.T) {
		for i := int64(1); i <= 3; i++ {
			count, err := repo.ReserveUse(ctx, "cfg-limited", 3)
			require.NoError(t, err)
			assert.Equal(t, i, count)
		}

		count, err := repo.ReserveUse(ctx, "cfg-limited", 3)
		require.ErrorIs(t, err, gkerrors.ErrUsageLimitReached)
		assert.EqualValues(t, 3, count)

		usage, err := repo.UsageCount(ctx, "cfg-limited")
		require.NoError(t, err)
		assert.EqualValues(t, 3, usage)
	})

	t.Run("ReleaseUse frees a slot", func(t *testing.T) {
		require.NoError(t, repo.ReleaseUse(ctx, "cfg-limited"))

		count, err := repo.ReserveUse(ctx, "cfg-limited", 3)
		require.NoError(t, err)
		assert.EqualValues(t, 3, count)
	})

	t.Run("zero limit is unlimited", func(t *testing.T) {
		for i := int64(1); i <= 10; i++ {
			count, err := repo.ReserveUse(ctx, "cfg-open", 0)
			require.NoError(t, err)
			assert.Equal(t, i, count)
		}
	})

	t.Run("ClearUsage resets the counter", func(t *testing.T) {
		require.NoError(t, repo.ClearUsage(ctx, "cfg-limited"))

		usage, err := repo.UsageCount(ctx, "cfg-limited")
		require.NoError(t, err)
		assert.Zero(t, usage)
	})

	t.Run("concurrent reservations never exceed the limit", func(t *testing.T) {
		const limit = 10
		const callers = limit + 5

		var wg sync.WaitGroup
		results := make(chan error, callers)

		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.ReserveUse(ctx, "cfg-race", limit)
				results <- err
			}()
		}
		wg.Wait()
		close(results)

		var granted, denied int
		for err := range results {
			if err == nil {
				granted++
			} else {
				require.ErrorIs(t, err, gkerrors.ErrUsageLimitReached)
				denied++
			}
		}

		assert.Equal(t, limit, granted, "exactly limit reservations succeed")
		assert.Equal(t, callers-limit, denied)

		usage, err := repo.UsageCount(ctx, "cfg-race")
		require.NoError(t, err)
		assert.EqualValues(t, limit, usage)
	})

	t.Run("counters are isolated per config", func(t *testing.T) {
		for i := 0; i < 4; i++ {
			_, err := repo.ReserveUse(ctx, fmt.Sprintf("cfg-iso-%d", i%2), 0)
			require.NoError(t, err)
		}

		a, err := repo.UsageCount(ctx, "cfg-iso-0")
		require.NoError(t, err)
		b, err := repo.UsageCount(ctx, "cfg-iso-1")
		require.NoError(t, err)
		assert.EqualValues(t, 2, a)
		assert.EqualValues(t, 2, b)
	})
}
