package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/gatekey-io/gatekey/domain"
	gkerrors "github.com/gatekey-io/gatekey/errors"
)

// TokenRepositoryMongo implements the domain.TokenRepository interface using
// MongoDB. Token records and per-config mint counters live in separate
// collections; the counter document is the serialization point for the
// uses-limit decision.
type TokenRepositoryMongo struct {
	tokens *mongo.Collection
	usage  *mongo.Collection
}

// usageDoc is the per-config mint counter document.
type usageDoc struct {
	ConfigID string `bson:"_id"`
	Uses     int64  `bson:"uses"`
}

// NewTokenRepositoryMongo creates a new TokenRepositoryMongo.
// It also ensures that the necessary indexes are created on the collection.
func NewTokenRepositoryMongo(ctx context.Context, db *mongo.Database) (domain.TokenRepository, error) { //nolint:ireturn
	repo := &TokenRepositoryMongo{
		tokens: db.Collection(AccessTokensCollection),
		usage:  db.Collection(ConfigUsageCollection),
	}

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token_hash", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "config_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "expires_at", Value: 1}},
		},
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	_, err := repo.tokens.Indexes().CreateMany(timeoutCtx, indexModels)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create indexes for access_tokens collection")
		return nil, err
	}
	log.Info().Msg("Indexes for access_tokens collection ensured.")
	return repo, nil
}

// Store saves a minted token. The signed value carries a bson:"-" tag, so
// only the fingerprint reaches the collection.
func (r *TokenRepositoryMongo) Store(ctx context.Context, token *domain.AccessToken) error {
	_, err := r.tokens.InsertOne(ctx, token)
	if err != nil {
		log.Error().Err(err).Str("tokenID", token.ID).Msg("Error inserting access token into MongoDB")
		return err
	}
	return nil
}

// GetByID retrieves a token by its ID.
func (r *TokenRepositoryMongo) GetByID(ctx context.Context, id string) (*domain.AccessToken, error) {
	var token domain.AccessToken
	err := r.tokens.FindOne(ctx, bson.M{"_id": id}).Decode(&token)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, gkerrors.NewNotFound("token", id)
		}
		log.Error().Err(err).Str("tokenID", id).Msg("Error retrieving access token from MongoDB")
		return nil, err
	}
	return &token, nil
}

// GetByHash retrieves a token by its value fingerprint.
func (r *TokenRepositoryMongo) GetByHash(ctx context.Context, tokenHash string) (*domain.AccessToken, error) {
	var token domain.AccessToken
	err := r.tokens.FindOne(ctx, bson.M{"token_hash": tokenHash}).Decode(&token)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, gkerrors.NewNotFound("token", tokenHash)
		}
		log.Error().Err(err).Msg("Error retrieving access token by hash from MongoDB")
		return nil, err
	}
	return &token, nil
}

// UpdateExpiry moves the token's expiry after a renewal.
func (r *TokenRepositoryMongo) UpdateExpiry(ctx context.Context, id string, expiresAt time.Time, tokenHash string) error {
	update := bson.M{"$set": bson.M{
		"expires_at": expiresAt,
		"token_hash": tokenHash,
	}}
	result, err := r.tokens.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		log.Error().Err(err).Str("tokenID", id).Msg("Error updating access token expiry in MongoDB")
		return err
	}
	if result.MatchedCount == 0 {
		return gkerrors.NewNotFound("token", id)
	}
	return nil
}

// TouchUse records one authenticated use of the token.
func (r *TokenRepositoryMongo) TouchUse(ctx context.Context, id string, at time.Time) error {
	update := bson.M{
		"$inc": bson.M{"uses_count": int64(1)},
		"$set": bson.M{"last_used_at": at},
	}
	result, err := r.tokens.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		log.Error().Err(err).Str("tokenID", id).Msg("Error recording access token use in MongoDB")
		return err
	}
	if result.MatchedCount == 0 {
		return gkerrors.NewNotFound("token", id)
	}
	return nil
}

// Revoke marks a token revoked. Already-revoked tokens are left as is.
func (r *TokenRepositoryMongo) Revoke(ctx context.Context, id string) error {
	result, err := r.tokens.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"revoked": true}})
	if err != nil {
		log.Error().Err(err).Str("tokenID", id).Msg("Error revoking access token in MongoDB")
		return err
	}
	if result.MatchedCount == 0 {
		return gkerrors.NewNotFound("token", id)
	}
	return nil
}

// RevokeByConfig soft-invalidates every outstanding token of a config.
func (r *TokenRepositoryMongo) RevokeByConfig(ctx context.Context, configID string) error {
	_, err := r.tokens.UpdateMany(ctx, bson.M{"config_id": configID}, bson.M{"$set": bson.M{"revoked": true}})
	if err != nil {
		log.Error().Err(err).Str("configID", configID).Msg("Error revoking access tokens by config in MongoDB")
	}
	return err
}

// DeleteExpired removes tokens expired before the given instant.
func (r *TokenRepositoryMongo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.tokens.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lt": before}})
	if err != nil {
		log.Error().Err(err).Msg("Error deleting expired access tokens from MongoDB")
		return 0, err
	}
	return result.DeletedCount, nil
}

// ReserveUse atomically increments the config's mint counter. The limit
// guard sits in the filter of a single FindOneAndUpdate, so concurrent
// reservations can never push the counter past a positive limit.
func (r *TokenRepositoryMongo) ReserveUse(ctx context.Context, configID string, limit int64) (int64, error) {
	filter := bson.M{"_id": configID}
	if limit > 0 {
		filter["uses"] = bson.M{"$lt": limit}
	}
	update := bson.M{"$inc": bson.M{"uses": int64(1)}}

	var doc usageDoc
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := r.usage.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == nil {
		return doc.Uses, nil
	}

	// The upsert collides with the existing _id both when the guard failed
	// the match and when a concurrent reservation inserted the counter a
	// moment ago. Retrying once without upsert tells the two apart.
	if mongo.IsDuplicateKeyError(err) {
		retryOpts := options.FindOneAndUpdate().SetReturnDocument(options.After)
		retryErr := r.usage.FindOneAndUpdate(ctx, filter, update, retryOpts).Decode(&doc)
		if retryErr == nil {
			return doc.Uses, nil
		}
		if errors.Is(retryErr, mongo.ErrNoDocuments) {
			current, countErr := r.UsageCount(ctx, configID)
			if countErr != nil {
				return 0, countErr
			}
			return current, gkerrors.ErrUsageLimitReached
		}
		log.Error().Err(retryErr).Str("configID", configID).Msg("Error reserving config usage in MongoDB")
		return 0, retryErr
	}

	log.Error().Err(err).Str("configID", configID).Msg("Error reserving config usage in MongoDB")
	return 0, err
}

// ReleaseUse undoes a reservation after a failed mint. A counter already at
// zero is left alone.
func (r *TokenRepositoryMongo) ReleaseUse(ctx context.Context, configID string) error {
	filter := bson.M{"_id": configID, "uses": bson.M{"$gt": 0}}
	_, err := r.usage.UpdateOne(ctx, filter, bson.M{"$inc": bson.M{"uses": int64(-1)}})
	if err != nil {
		log.Error().Err(err).Str("configID", configID).Msg("Error releasing config usage in MongoDB")
	}
	return err
}

// UsageCount reports the config's mint counter.
func (r *TokenRepositoryMongo) UsageCount(ctx context.Context, configID string) (int64, error) {
	var doc usageDoc
	err := r.usage.FindOne(ctx, bson.M{"_id": configID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		log.Error().Err(err).Str("configID", configID).Msg("Error reading config usage from MongoDB")
		return 0, err
	}
	return doc.Uses, nil
}

// ClearUsage drops the mint counter of a deleted config.
func (r *TokenRepositoryMongo) ClearUsage(ctx context.Context, configID string) error {
	_, err := r.usage.DeleteOne(ctx, bson.M{"_id": configID})
	if err != nil {
		log.Error().Err(err).Str("configID", configID).Msg("Error clearing config usage in MongoDB")
	}
	return err
}

// Ensure TokenRepositoryMongo implements domain.TokenRepository
var _ domain.TokenRepository = (*TokenRepositoryMongo)(nil)
