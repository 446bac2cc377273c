package inmem

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatekey-io/gatekey/domain"
	gkerrors "github.com/gatekey-io/gatekey/errors"
)

func TestMethodStore_UpsertKeepsIdentity(t *testing.T) {
	ctx := context.Background()
	store := NewMethodStore()

	first, err := store.Upsert(ctx, &domain.MethodConfig{
		OwnerID:    "org-1",
		MethodType: domain.MethodCloudIAM,
		Machine:    &domain.MachineAuthConfig{AccessTokenTTL: 3600, AccessTokenMaxTTL: 7200},
	})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	second, err := store.Upsert(ctx, &domain.MethodConfig{
		OwnerID:    "org-1",
		MethodType: domain.MethodCloudIAM,
		Machine:    &domain.MachineAuthConfig{AccessTokenTTL: 60, AccessTokenMaxTTL: 7200},
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "replacement keeps the record identity")
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.EqualValues(t, 60, second.Machine.AccessTokenTTL)

	got, err := store.GetByOwner(ctx, "org-1", domain.MethodCloudIAM)
	require.NoError(t, err)
	assert.EqualValues(t, 60, got.Machine.AccessTokenTTL)
}

func TestMethodStore_NotFound(t *testing.T) {
	ctx := context.Background()
	store := NewMethodStore()

	_, err := store.GetByOwner(ctx, "org-x", domain.MethodCloudIAM)
	assert.True(t, gkerrors.IsNotFound(err))

	_, err = store.SetActive(ctx, "missing", true)
	assert.True(t, gkerrors.IsNotFound(err))

	err = store.Delete(ctx, "missing")
	assert.True(t, gkerrors.IsNotFound(err))
}

func TestTokenStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewTokenStore()
	now := time.Now().UTC()

	token := &domain.AccessToken{
		ID:        "tok-1",
		ConfigID:  "cfg-1",
		OwnerID:   "org-1",
		TokenHash: "hash-1",
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, store.Store(ctx, token))

	t.Run("lookup by id and hash", func(t *testing.T) {
		byID, err := store.GetByID(ctx, "tok-1")
		require.NoError(t, err)
		assert.Equal(t, "cfg-1", byID.ConfigID)

		byHash, err := store.GetByHash(ctx, "hash-1")
		require.NoError(t, err)
		assert.Equal(t, "tok-1", byHash.ID)
	})

	t.Run("update expiry rebinds hash", func(t *testing.T) {
		later := now.Add(2 * time.Hour)
		require.NoError(t, store.UpdateExpiry(ctx, "tok-1", later, "hash-2"))

		_, err := store.GetByHash(ctx, "hash-1")
		assert.True(t, gkerrors.IsNotFound(err))

		got, err := store.GetByHash(ctx, "hash-2")
		require.NoError(t, err)
		assert.True(t, got.ExpiresAt.Equal(later))
	})

	t.Run("touch accumulates uses", func(t *testing.T) {
		require.NoError(t, store.TouchUse(ctx, "tok-1", now))
		require.NoError(t, store.TouchUse(ctx, "tok-1", now.Add(time.Minute)))

		got, err := store.GetByID(ctx, "tok-1")
		require.NoError(t, err)
		assert.EqualValues(t, 2, got.UsesCount)
	})

	t.Run("revoke is idempotent", func(t *testing.T) {
		require.NoError(t, store.Revoke(ctx, "tok-1"))
		require.NoError(t, store.Revoke(ctx, "tok-1"))

		got, err := store.GetByID(ctx, "tok-1")
		require.NoError(t, err)
		assert.True(t, got.Revoked)
	})

	t.Run("delete expired sweeps", func(t *testing.T) {
		stale := &domain.AccessToken{ID: "tok-old", ConfigID: "cfg-1", TokenHash: "hash-old", ExpiresAt: now.Add(-time.Hour)}
		require.NoError(t, store.Store(ctx, stale))

		removed, err := store.DeleteExpired(ctx, now)
		require.NoError(t, err)
		assert.EqualValues(t, 1, removed)

		_, err = store.GetByID(ctx, "tok-old")
		assert.True(t, gkerrors.IsNotFound(err))
	})
}

func TestTokenStore_ReserveUse(t *testing.T) {
	ctx := context.Background()
	store := NewTokenStore()

	t.Run("counts up to the limit", func(t *testing.T) {
		n1, err := store.ReserveUse(ctx, "cfg-a", 2)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n1)

		n2, err := store.ReserveUse(ctx, "cfg-a", 2)
		require.NoError(t, err)
		assert.EqualValues(t, 2, n2)

		_, err = store.ReserveUse(ctx, "cfg-a", 2)
		assert.ErrorIs(t, err, gkerrors.ErrUsageLimitReached)
	})

	t.Run("release makes room again", func(t *testing.T) {
		require.NoError(t, store.ReleaseUse(ctx, "cfg-a"))

		_, err := store.ReserveUse(ctx, "cfg-a", 2)
		assert.NoError(t, err)
	})

	t.Run("zero limit never rejects", func(t *testing.T) {
		for i := 0; i < 100; i++ {
			_, err := store.ReserveUse(ctx, "cfg-b", 0)
			require.NoError(t, err)
		}
		count, err := store.UsageCount(ctx, "cfg-b")
		require.NoError(t, err)
		assert.EqualValues(t, 100, count)
	})
}

// Hammering ReserveUse from many goroutines must admit exactly limit mints.
func TestTokenStore_ReserveUseConcurrent(t *testing.T) {
	ctx := context.Background()
	store := NewTokenStore()

	const limit = 50
	const callers = limit + 25

	var wg sync.WaitGroup
	granted := make(chan struct{}, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.ReserveUse(ctx, "cfg-race", limit); err == nil {
				granted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(granted)

	assert.Len(t, granted, limit)

	count, err := store.UsageCount(ctx, "cfg-race")
	require.NoError(t, err)
	assert.EqualValues(t, limit, count)
}
