package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEntry(value string, ttl time.Duration) *TokenEntry {
	now := time.Now()
	return &TokenEntry{
		ID:             "tok-1",
		ConfigID:       "cfg-1",
		OwnerID:        "org-1",
		ServiceAccount: "svc@proj.iam.example.com",
		Project:        "proj",
		TokenHash:      HashToken(value),
		IssuedAt:       now,
		ExpiresAt:      now.Add(ttl),
	}
}

func TestMemoryTokenStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryTokenStore(time.Minute)
	defer store.Close()

	t.Run("set and get round trip", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, newEntry("ey.one", time.Hour)))

		got, err := store.Get(ctx, HashToken("ey.one"))
		require.NoError(t, err)
		assert.Equal(t, "cfg-1", got.ConfigID)
		assert.Equal(t, HashToken("ey.one"), got.TokenHash)
		assert.False(t, got.LastUsedAt.IsZero())
	})

	t.Run("miss", func(t *testing.T) {
		_, err := store.Get(ctx, HashToken("never-stored"))
		assert.ErrorIs(t, err, ErrEntryNotFound)
	})

	t.Run("delete purges entry", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, newEntry("ey.two", time.Hour)))
		require.NoError(t, store.Delete(ctx, HashToken("ey.two")))

		_, err := store.Get(ctx, HashToken("ey.two"))
		assert.ErrorIs(t, err, ErrEntryNotFound)
	})

	t.Run("expired entry never admitted", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, newEntry("ey.stale", -time.Second)))

		_, err := store.Get(ctx, HashToken("ey.stale"))
		assert.ErrorIs(t, err, ErrEntryNotFound)
	})

	t.Run("clear empties the store", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, newEntry("ey.three", time.Hour)))
		require.NoError(t, store.Clear(ctx))
		assert.Zero(t, store.Count(ctx))
	})
}

func TestHashToken(t *testing.T) {
	assert.Len(t, HashToken("abc"), 64)
	assert.Equal(t, HashToken("abc"), HashToken("abc"))
	assert.NotEqual(t, HashToken("abc"), HashToken("abd"))

	assert.Len(t, Fingerprint("abc"), 12)
}
