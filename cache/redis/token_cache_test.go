package redis_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatekey-io/gatekey/cache"
	rediscache "github.com/gatekey-io/gatekey/cache/redis"
)

// setupRedisStore connects to the Redis named by TEST_REDIS_ADDR and returns
// a store under a unique prefix. Cleanup clears the prefix.
func setupRedisStore(t *testing.T) *rediscache.TokenStore {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("Skipping Redis integration test: TEST_REDIS_ADDR not set")
	}

	client := goredis.NewClient(&goredis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Ping(ctx).Err(), "failed to ping Redis at %s", addr)

	prefix := fmt.Sprintf("gatekey_test_%d", time.Now().UnixNano())
	store := rediscache.NewTokenStore(client, prefix)

	t.Cleanup(func() {
		cleanupCtx, cancelCleanup := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelCleanup()
		_ = store.Clear(cleanupCtx)
		_ = client.Close()
	})

	return store
}

// testEntry builds a cache entry with second-precision times, matching the
// precision Redis round trips.
func testEntry(id string, expiresIn time.Duration) *cache.TokenEntry {
	now := time.Now().UTC().Truncate(time.Second)
	return &cache.TokenEntry{
		ID:             id,
		ConfigID:       "cfg-" + id,
		OwnerID:        "owner-1",
		ServiceAccount: "svc-builder@proj-a.iam.example.com",
		Project:        "proj-a",
		TokenHash:      cache.HashToken("value-" + id),
		IssuedAt:       now,
		ExpiresAt:      now.Add(expiresIn),
		LastUsedAt:     now,
	}
}

func TestRedisTokenStore_Integration(t *testing.T) {
	store := setupRedisStore(t)
	ctx := context.Background()

	t.Run("set and get round trip", func(t *testing.T) {
		entry := testEntry("tok-1", time.Hour)
		require.NoError(t, store.Set(ctx, entry))

		got, err := store.Get(ctx, entry.TokenHash)
		require.NoError(t, err)
		assert.Equal(t, entry.ID, got.ID)
		assert.Equal(t, entry.ConfigID, got.ConfigID)
		assert.Equal(t, entry.OwnerID, got.OwnerID)
		assert.Equal(t, entry.ServiceAccount, got.ServiceAccount)
		assert.Equal(t, entry.Project, got.Project)
		assert.Equal(t, entry.TokenHash, got.TokenHash)
		assert.Equal(t, entry.IssuedAt.Unix(), got.IssuedAt.Unix())
		assert.Equal(t, entry.ExpiresAt.Unix(), got.ExpiresAt.Unix())
	})

	t.Run("get unknown hash returns not found", func(t *testing.T) {
		_, err := store.Get(ctx, cache.HashToken("never-stored"))
		assert.ErrorIs(t, err, cache.ErrEntryNotFound)
	})

	t.Run("already expired entry is never stored", func(t *testing.T) {
		entry := testEntry("tok-expired", -time.Minute)
		require.NoError(t, store.Set(ctx, entry))

		_, err := store.Get(ctx, entry.TokenHash)
		assert.ErrorIs(t, err, cache.ErrEntryNotFound)
	})

	t.Run("delete removes entry", func(t *testing.T) {
		entry := testEntry("tok-del", time.Hour)
		require.NoError(t, store.Set(ctx, entry))

		require.NoError(t, store.Delete(ctx, entry.TokenHash))
		_, err := store.Get(ctx, entry.TokenHash)
		assert.ErrorIs(t, err, cache.ErrEntryNotFound)

		// Deleting a missing entry is not an error.
		assert.NoError(t, store.Delete(ctx, entry.TokenHash))
	})

	t.Run("clear and count", func(t *testing.T) {
		require.NoError(t, store.Clear(ctx))

		for i := 0; i < 3; i++ {
			require.NoError(t, store.Set(ctx, testEntry(fmt.Sprintf("tok-c%d", i), time.Hour)))
		}
		assert.Equal(t, 3, store.Count(ctx))

		require.NoError(t, store.Clear(ctx))
		assert.Equal(t, 0, store.Count(ctx))
	})
}
