package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/gatekey-io/gatekey/cache"
)

// TokenStore implements the cache.TokenStore interface using Redis. Entries
// are keyed by token fingerprint, raw token values never appear in Redis.
type TokenStore struct {
	client *redis.Client
	prefix string // Optional prefix for keys
}

// NewTokenStore creates a new [TokenStore] instance. The Redis client is
// owned by the caller.
func NewTokenStore(client *redis.Client, prefix string) *TokenStore {
	return &TokenStore{
		client: client,
		prefix: prefix,
	}
}

// redisKey returns the Redis key for a given token fingerprint.
func (r *TokenStore) redisKey(tokenHash string) string {
	return fmt.Sprintf("%s:token:%s", r.prefix, tokenHash)
}

// Set stores a token entry in Redis with expiry matching the token's.
func (r *TokenStore) Set(ctx context.Context, entry *cache.TokenEntry) error {
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	key := r.redisKey(entry.TokenHash)
	fields := map[string]interface{}{
		"id":              entry.ID,
		"config_id":       entry.ConfigID,
		"owner_id":        entry.OwnerID,
		"service_account": entry.ServiceAccount,
		"project":         entry.Project,
		"token_hash":      entry.TokenHash,
		"issued_at":       entry.IssuedAt.Unix(),
		"expires_at":      entry.ExpiresAt.Unix(),
		"last_used_at":    entry.LastUsedAt.Unix(),
	}

	if _, err := r.client.HSet(ctx, key, fields).Result(); err != nil {
		return fmt.Errorf("failed to set token in Redis: %w", err)
	}

	if _, err := r.client.Expire(ctx, key, ttl).Result(); err != nil {
		return fmt.Errorf("failed to set expiry for token in Redis: %w", err)
	}

	return nil
}

// Get retrieves a token entry from Redis.
func (r *TokenStore) Get(ctx context.Context, tokenHash string) (*cache.TokenEntry, error) {
	key := r.redisKey(tokenHash)

	res, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get token from Redis: %w", err)
	}
	if len(res) == 0 {
		return nil, cache.ErrEntryNotFound
	}

	issuedAt, err := strconv.ParseInt(res["issued_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt issued_at for cached token: %w", err)
	}
	expiresAt, err := strconv.ParseInt(res["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt expires_at for cached token: %w", err)
	}
	lastUsedAt, err := strconv.ParseInt(res["last_used_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt last_used_at for cached token: %w", err)
	}

	entry := &cache.TokenEntry{
		ID:             res["id"],
		ConfigID:       res["config_id"],
		OwnerID:        res["owner_id"],
		ServiceAccount: res["service_account"],
		Project:        res["project"],
		TokenHash:      res["token_hash"],
		IssuedAt:       time.Unix(issuedAt, 0),
		ExpiresAt:      time.Unix(expiresAt, 0),
		LastUsedAt:     time.Unix(lastUsedAt, 0),
	}

	if !time.Now().Before(entry.ExpiresAt) {
		return nil, cache.ErrEntryNotFound
	}

	// Update last_used_at, but don't fail the Get operation over it.
	if _, err := r.client.HSet(ctx, key, "last_used_at", time.Now().Unix()).Result(); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("failed to update last_used_at for cached token")
	}

	return entry, nil
}

// Delete removes a token from Redis.
func (r *TokenStore) Delete(ctx context.Context, tokenHash string) error {
	if _, err := r.client.Del(ctx, r.redisKey(tokenHash)).Result(); err != nil {
		return fmt.Errorf("failed to delete token from Redis: %w", err)
	}
	return nil
}

// DeleteExpired removes entries whose stored expiry has passed. Redis key
// TTLs already evict entries on time; this sweeps stragglers whose key TTL
// was lost, e.g. after a restore.
func (r *TokenStore) DeleteExpired(ctx context.Context) error {
	var cursor uint64
	pattern := fmt.Sprintf("%s:token:*", r.prefix)

	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan for expired tokens: %w", err)
		}

		for _, key := range keys {
			res, err := r.client.HGet(ctx, key, "expires_at").Result()
			if err == redis.Nil {
				continue // Key vanished between scan and read
			} else if err != nil {
				log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("failed to read expiry during sweep")
				continue
			}

			expiresAt, err := strconv.ParseInt(res, 10, 64)
			if err != nil {
				log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("corrupt expiry during sweep")
				continue
			}

			if time.Unix(expiresAt, 0).Before(time.Now()) {
				if _, err := r.client.Del(ctx, key).Result(); err != nil {
					log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("failed to delete expired token")
				}
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Clear removes all token entries under this store's prefix.
func (r *TokenStore) Clear(ctx context.Context) error {
	var cursor uint64
	pattern := fmt.Sprintf("%s:token:*", r.prefix)

	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan for tokens to clear: %w", err)
		}

		if len(keys) > 0 {
			if _, err := r.client.Del(ctx, keys...).Result(); err != nil {
				return fmt.Errorf("failed to delete tokens: %w", err)
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Count returns the number of token entries under this store's prefix.
func (r *TokenStore) Count(ctx context.Context) int {
	var count int
	var cursor uint64
	pattern := fmt.Sprintf("%s:token:*", r.prefix)

	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("failed to scan token keys for count")
			return count
		}
		count += len(keys)

		cursor = next
		if cursor == 0 {
			return count
		}
	}
}

// Close implements TokenStore. The underlying client is shared and stays
// open.
func (r *TokenStore) Close() error {
	return nil
}
