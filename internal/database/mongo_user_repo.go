package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"signaler-bot/internal/database/models"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	userCollectionName = "users"
	// maxUpdateAttempts bounds optimistic retries when two writers race on one record.
	maxUpdateAttempts = 5
)

var errVersionConflict = errors.New("version conflict")

// MongoUserRepository implements UserRepository for MongoDB.
// Updates are optimistic: the replace only matches the version that was read.
type MongoUserRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

// NewMongoUserRepository creates a new MongoDB user repository.
func NewMongoUserRepository(db *mongo.Database) *MongoUserRepository {
	return &MongoUserRepository{
		collection: db.Collection(userCollectionName),
		now:        time.Now,
	}
}

// EnsureIndexes creates the unique external ID index and the lookup indexes.
func (r *MongoUserRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "external_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "display_name", Value: 1}}},
		{Keys: bson.D{{Key: "is_owner", Value: 1}, {Key: "join_date", Value: 1}}},
		{Keys: bson.D{{Key: "is_allowed", Value: 1}}},
	})
	if err != nil {
		return StoreError("create user indexes", err)
	}
	return nil
}

// GetUser retrieves a single user by external ID.
// It returns ErrUserNotFound if no user matches.
func (r *MongoUserRepository) GetUser(ctx context.Context, externalID int64) (*models.User, error) {
	var user models.User
	err := r.collection.FindOne(ctx, bson.M{"external_id": externalID}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, StoreError(fmt.Sprintf("find user %d", externalID), err)
	}
	return &user, nil
}

// GetUserByName retrieves the oldest user carrying the display name.
func (r *MongoUserRepository) GetUserByName(ctx context.Context, name string) (*models.User, error) {
	var user models.User
	findOptions := options.FindOne().SetSort(bson.D{{Key: "join_date", Value: 1}})
	err := r.collection.FindOne(ctx, bson.M{"display_name": name}, findOptions).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, StoreError(fmt.Sprintf("find user by name %q", name), err)
	}
	return &user, nil
}

// CreateUser inserts a fresh Pending record.
func (r *MongoUserRepository) CreateUser(ctx context.Context, externalID int64, displayName string) (*models.User, error) {
	user := NewUser(externalID, displayName, r.now())
	if _, err := r.collection.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrUserExists
		}
		return nil, StoreError(fmt.Sprintf("insert user %d", externalID), err)
	}
	return &user, nil
}

// UpdateUser reads the record, applies mutate and replaces it guarded by the
// version read. A concurrent writer forces a re-read and another attempt.
func (r *MongoUserRepository) UpdateUser(ctx context.Context, externalID int64, mutate UserMutation) (*models.User, error) {
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		current, err := r.GetUser(ctx, externalID)
		if err != nil {
			return nil, err
		}
		next := current.Clone()
		if err := mutate(&next); err != nil {
			if errors.Is(err, ErrSkipUpdate) {
				return current, nil
			}
			return nil, err
		}
		next.ID = current.ID
		next.ExternalID = current.ExternalID
		next.JoinDate = current.JoinDate
		next.Version = current.Version + 1

		filter := bson.M{"external_id": externalID, "version": current.Version}
		result, err := r.collection.ReplaceOne(ctx, filter, next)
		if err != nil {
			return nil, StoreError(fmt.Sprintf("replace user %d", externalID), err)
		}
		if result.MatchedCount == 1 {
			return &next, nil
		}
		log.Printf("[Registry User:%d] Concurrent update detected (attempt %d/%d), retrying", externalID, attempt, maxUpdateAttempts)
	}
	return nil, StoreError(fmt.Sprintf("update user %d", externalID), errVersionConflict)
}

// DeleteUser removes a user from the database by external ID.
func (r *MongoUserRepository) DeleteUser(ctx context.Context, externalID int64) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"external_id": externalID})
	if err != nil {
		return StoreError(fmt.Sprintf("delete user %d", externalID), err)
	}
	if result.DeletedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *MongoUserRepository) ListUsers(ctx context.Context) ([]models.User, error) {
	return r.find(ctx, bson.M{})
}

func (r *MongoUserRepository) ListOwners(ctx context.Context) ([]models.User, error) {
	return r.find(ctx, bson.M{"is_owner": true})
}

func (r *MongoUserRepository) ListAllowedUsers(ctx context.Context) ([]models.User, error) {
	return r.find(ctx, bson.M{"is_allowed": true})
}

func (r *MongoUserRepository) ListUsersByName(ctx context.Context, name string) ([]models.User, error) {
	return r.find(ctx, bson.M{"display_name": name})
}

func (r *MongoUserRepository) find(ctx context.Context, filter bson.M) ([]models.User, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "join_date", Value: 1}, {Key: "external_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, StoreError("find users", err)
	}
	defer cursor.Close(ctx)

	users := []models.User{}
	if err = cursor.All(ctx, &users); err != nil {
		return nil, StoreError("decode users", err)
	}
	return users, nil
}

var _ UserRepository = (*MongoUserRepository)(nil)
