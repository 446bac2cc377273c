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

// MethodRepositoryMongo implements the domain.MethodRepository interface
// using MongoDB. One document holds one (owner, method type) configuration,
// so every read observes a whole config.
type MethodRepositoryMongo struct {
	collection *mongo.Collection
}

// NewMethodRepositoryMongo creates a new MethodRepositoryMongo.
// It also ensures that the necessary indexes are created on the collection.
// The unique (owner_id, method_type) index backs the one-config-per-pair
// rule across processes, so index creation failure is fatal here.
func NewMethodRepositoryMongo(ctx context.Context, db *mongo.Database) (domain.MethodRepository, error) { //nolint:ireturn
	repo := &MethodRepositoryMongo{
		collection: db.Collection(MethodConfigsCollection),
	}

	indexModels := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "owner_id", Value: 1},
				{Key: "method_type", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "owner_id", Value: 1}},
		},
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	_, err := repo.collection.Indexes().CreateMany(timeoutCtx, indexModels)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create indexes for auth_method_configs collection")
		return nil, err
	}
	log.Info().Msg("Indexes for auth_method_configs collection ensured.")
	return repo, nil
}

// Upsert creates the config or replaces the mutable fields of the existing
// (owner, method type) document, keeping its ID and CreatedAt.
func (r *MethodRepositoryMongo) Upsert(ctx context.Context, cfg *domain.MethodConfig) (*domain.MethodConfig, error) {
	now := time.Now().UTC()
	stored := cfg.Clone()
	stored.UpdatedAt = now

	var prev domain.MethodConfig
	err := r.collection.FindOne(ctx, bson.M{
		"owner_id":    cfg.OwnerID,
		"method_type": cfg.MethodType,
	}).Decode(&prev)

	switch {
	case err == nil:
		stored.ID = prev.ID
		stored.CreatedAt = prev.CreatedAt
		// Match on the observed updated_at so a writer from another process
		// that slipped in since the read loses cleanly instead of being
		// silently overwritten.
		filter := bson.M{"_id": prev.ID, "updated_at": prev.UpdatedAt}
		res, replErr := r.collection.ReplaceOne(ctx, filter, stored)
		if replErr != nil {
			log.Error().Err(replErr).Str("key", stored.Key()).Msg("Error replacing auth method config in MongoDB")
			return nil, replErr
		}
		if res.MatchedCount == 0 {
			return nil, gkerrors.NewConflict(stored.Key())
		}
	case errors.Is(err, mongo.ErrNoDocuments):
		stored.ID = NewObjectID()
		stored.CreatedAt = now
		if _, insErr := r.collection.InsertOne(ctx, stored); insErr != nil {
			// A concurrent creator from another process won the unique
			// (owner_id, method_type) index.
			if mongo.IsDuplicateKeyError(insErr) {
				return nil, gkerrors.NewConflict(stored.Key())
			}
			log.Error().Err(insErr).Str("key", stored.Key()).Msg("Error inserting auth method config into MongoDB")
			return nil, insErr
		}
	default:
		log.Error().Err(err).Str("key", cfg.Key()).Msg("Error reading auth method config from MongoDB")
		return nil, err
	}

	return stored, nil
}

// GetByOwner retrieves the owner's configuration for one method type.
func (r *MethodRepositoryMongo) GetByOwner(ctx context.Context, ownerID string, mt domain.MethodType) (*domain.MethodConfig, error) {
	var cfg domain.MethodConfig
	err := r.collection.FindOne(ctx, bson.M{
		"owner_id":    ownerID,
		"method_type": mt,
	}).Decode(&cfg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, gkerrors.NewNotFound("auth method config", domain.MethodKey(ownerID, mt))
		}
		log.Error().Err(err).Str("ownerID", ownerID).Msg("Error retrieving auth method config from MongoDB")
		return nil, err
	}
	return &cfg, nil
}

// GetByID retrieves a configuration by its ID.
func (r *MethodRepositoryMongo) GetByID(ctx context.Context, id string) (*domain.MethodConfig, error) {
	var cfg domain.MethodConfig
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&cfg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, gkerrors.NewNotFound("auth method config", id)
		}
		log.Error().Err(err).Str("configID", id).Msg("Error retrieving auth method config by ID from MongoDB")
		return nil, err
	}
	return &cfg, nil
}

// ListByOwner retrieves every configuration of the owner, ordered by
// method type.
func (r *MethodRepositoryMongo) ListByOwner(ctx context.Context, ownerID string) ([]*domain.MethodConfig, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "method_type", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{"owner_id": ownerID}, findOptions)
	if err != nil {
		log.Error().Err(err).Str("ownerID", ownerID).Msg("Error listing auth method configs from MongoDB")
		return nil, err
	}
	defer cursor.Close(ctx)

	var configs []*domain.MethodConfig
	if err = cursor.All(ctx, &configs); err != nil {
		log.Error().Err(err).Str("ownerID", ownerID).Msg("Error decoding listed auth method configs from MongoDB")
		return nil, err
	}
	return configs, nil
}

// SetActive toggles the activation flag and returns the stored state.
func (r *MethodRepositoryMongo) SetActive(ctx context.Context, id string, active bool) (*domain.MethodConfig, error) {
	update := bson.M{"$set": bson.M{
		"is_active":  active,
		"updated_at": time.Now().UTC(),
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var cfg domain.MethodConfig
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&cfg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, gkerrors.NewNotFound("auth method config", id)
		}
		log.Error().Err(err).Str("configID", id).Msg("Error toggling auth method config in MongoDB")
		return nil, err
	}
	return &cfg, nil
}

// Delete removes a configuration by its ID.
func (r *MethodRepositoryMongo) Delete(ctx context.Context, id string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		log.Error().Err(err).Str("configID", id).Msg("Error deleting auth method config from MongoDB")
		return err
	}
	if result.DeletedCount == 0 {
		return gkerrors.NewNotFound("auth method config", id)
	}
	return nil
}

// Ensure MethodRepositoryMongo implements domain.MethodRepository
var _ domain.MethodRepository = (*MethodRepositoryMongo)(nil)
