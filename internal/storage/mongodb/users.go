package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"collabtodo/internal/models"
	"collabtodo/internal/storage"
)

// UpsertUser creates the user or renames an existing one.
func (s *Store) UpsertUser(ctx context.Context, id, name string) (models.User, error) {
	now := s.now()
	_, err := s.users.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set":         bson.M{"user_name": name, "updated_at": now},
		"$setOnInsert": bson.M{"created_at": now, "shared_tasks": bson.A{}},
	}, options.Update().SetUpsert(true))
	if err != nil {
		return models.User{}, fmt.Errorf("upsert user: %w", classify(err))
	}
	return s.GetUser(ctx, id)
}

// GetUser fetches a user by external identity.
func (s *Store) GetUser(ctx context.Context, id string) (models.User, error) {
	var u models.User
	if err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return models.User{}, notFound(err, "user", id)
	}
	if u.SharedTasks == nil {
		u.SharedTasks = []string{}
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

// DeleteUser removes a directory entry.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.users.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete user: %w", classify(err))
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("user %s: %w", id, storage.ErrNotFound)
	}
	return nil
}
