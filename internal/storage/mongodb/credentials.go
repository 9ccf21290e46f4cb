package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/passkeyhq/passkey-backend/internal/domain"
	"github.com/passkeyhq/passkey-backend/internal/storage"
)

// CredentialStore implements MongoDB passkey credential storage
type CredentialStore struct {
	collection *mongo.Collection
}

func (s *CredentialStore) Create(ctx context.Context, credential *domain.Credential) error {
	_, err := s.collection.InsertOne(ctx, credential)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create credential: %w", err)
	}
	return nil
}

func (s *CredentialStore) GetByID(ctx context.Context, id string) (*domain.Credential, error) {
	var credential domain.Credential
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&credential)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	return &credential, nil
}

func (s *CredentialStore) GetAllByUser(ctx context.Context, userID domain.UserID) ([]*domain.Credential, error) {
	cursor, err := s.collection.Find(ctx, bson.M{"user_id.id": userID.String()})
	if err != nil {
		return nil, fmt.Errorf("failed to get credentials: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var credentials []*domain.Credential
	if err := cursor.All(ctx, &credentials); err != nil {
		return nil, fmt.Errorf("failed to decode credentials: %w", err)
	}
	return credentials, nil
}

func (s *CredentialStore) UpdateSignCount(ctx context.Context, id string, signCount uint32) error {
	// Single filtered update: the $lt guard makes the counter update a
	// compare-and-set, so concurrent authentications with the same stale
	// counter cannot both succeed.
	result, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": id, "sign_count": bson.M{"$lt": signCount}},
		bson.M{"$set": bson.M{
			"sign_count":        signCount,
			"counter_monotonic": true,
			"last_used_at":      time.Now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to update sign count: %w", err)
	}

	if result.MatchedCount == 0 {
		// Distinguish a missing credential from a failed guard.
		count, err := s.collection.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return fmt.Errorf("failed to check credential: %w", err)
		}
		if count == 0 {
			return storage.ErrNotFound
		}
		return storage.ErrStaleCounter
	}
	return nil
}

func (s *CredentialStore) TouchLastUsed(ctx context.Context, id string) error {
	result, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"last_used_at": time.Now()}},
	)
	if err != nil {
		return fmt.Errorf("failed to update last used: %w", err)
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *CredentialStore) Revoke(ctx context.Context, id string) error {
	result, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"revoked": true}},
	)
	if err != nil {
		return fmt.Errorf("failed to revoke credential: %w", err)
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}
