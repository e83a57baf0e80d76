package mongodb

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"collabtodo/internal/models"
	"collabtodo/internal/storage"
)

func normalizeTask(t *models.Task) {
	if t.Collaborators == nil {
		t.Collaborators = []string{}
	}
	if t.DueDate != nil {
		due := t.DueDate.UTC()
		t.DueDate = &due
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
}

// CreateTask inserts a task with an empty collaborator set.
func (s *Store) CreateTask(ctx context.Context, t models.Task) (models.Task, error) {
	now := s.now()
	t.CreatedAt, t.UpdatedAt = now, now
	t.Collaborators = []string{}

	if _, err := s.tasks.InsertOne(ctx, t); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.Task{}, fmt.Errorf("%w: %v", storage.ErrCodeConflict, err)
		}
		return models.Task{}, fmt.Errorf("insert task: %w", classify(err))
	}
	return t, nil
}

// GetTask fetches a task by id.
func (s *Store) GetTask(ctx context.Context, id string) (models.Task, error) {
	var t models.Task
	if err := s.tasks.FindOne(ctx, bson.M{"_id": id}).Decode(&t); err != nil {
		return models.Task{}, notFound(err, "task", id)
	}
	normalizeTask(&t)
	return t, nil
}

// ListTasks returns tasks matching the filter, newest first.
func (s *Store) ListTasks(ctx context.Context, f storage.TaskFilter) ([]models.Task, error) {
	filter := bson.M{}
	if f.Member != "" {
		filter["$or"] = bson.A{
			bson.M{"created_by": f.Member},
			bson.M{"collaborators": f.Member},
		}
	}
	if f.Owner != "" {
		filter["created_by"] = f.Owner
	}
	if f.Shareable != nil {
		filter["is_shareable"] = *f.Shareable
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := s.tasks.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", classify(err))
	}

	tasks := []models.Task{}
	if err := cursor.All(ctx, &tasks); err != nil {
		return nil, fmt.Errorf("decode tasks: %w", classify(err))
	}
	for i := range tasks {
		normalizeTask(&tasks[i])
	}
	return tasks, nil
}

// UpdateTask writes the scalar fields of a task.
func (s *Store) UpdateTask(ctx context.Context, t models.Task) (models.Task, error) {
	res, err := s.tasks.UpdateOne(ctx, bson.M{"_id": t.ID}, bson.M{"$set": bson.M{
		"title":       t.Title,
		"description": t.Description,
		"priority":    t.Priority,
		"status":      t.Status,
		"due_date":    t.DueDate,
		"updated_by":  t.UpdatedBy,
		"updated_at":  s.now(),
	}})
	if err != nil {
		return models.Task{}, fmt.Errorf("update task: %w", classify(err))
	}
	if res.MatchedCount == 0 {
		return models.Task{}, fmt.Errorf("task %s: %w", t.ID, storage.ErrNotFound)
	}
	return s.GetTask(ctx, t.ID)
}

// EnableSharing stores a fresh invite code and marks the task shareable.
func (s *Store) EnableSharing(ctx context.Context, taskID, code, updatedBy string) (models.Task, error) {
	res, err := s.tasks.UpdateOne(ctx, bson.M{"_id": taskID}, bson.M{"$set": bson.M{
		"is_shareable": true,
		"unique_code":  code,
		"updated_by":   updatedBy,
		"updated_at":   s.now(),
	}})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.Task{}, fmt.Errorf("%w: %v", storage.ErrCodeConflict, err)
		}
		return models.Task{}, fmt.Errorf("enable sharing: %w", classify(err))
	}
	if res.MatchedCount == 0 {
		return models.Task{}, fmt.Errorf("task %s: %w", taskID, storage.ErrNotFound)
	}
	return s.GetTask(ctx, taskID)
}

// DisableSharing pulls the task from every collaborator's shared_tasks
// first, then clears the task. A crash between the two steps leaves the
// collaborators on the task and a retry finishes the job.
func (s *Store) DisableSharing(ctx context.Context, taskID, updatedBy string) (models.Task, []string, error) {
	current, err := s.GetTask(ctx, taskID)
	if err != nil {
		return models.Task{}, nil, err
	}

	if err := s.unlinkSharedTask(ctx, taskID); err != nil {
		return models.Task{}, nil, err
	}

	_, err = s.tasks.UpdateOne(ctx, bson.M{"_id": taskID}, bson.M{
		"$set": bson.M{
			"is_shareable":  false,
			"collaborators": bson.A{},
			"updated_by":    updatedBy,
			"updated_at":    s.now(),
		},
		"$unset": bson.M{"unique_code": ""},
	})
	if err != nil {
		return models.Task{}, nil, fmt.Errorf("disable sharing: %w", classify(err))
	}

	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return models.Task{}, nil, err
	}
	return task, current.Collaborators, nil
}

// AddCollaborator admits userID to the task, then records the task in the
// user's shared_tasks. The directory write runs after the task commits and
// its failure is logged rather than returned.
func (s *Store) AddCollaborator(ctx context.Context, taskID, userID string) (models.Task, error) {
	res, err := s.tasks.UpdateOne(ctx,
		bson.M{"_id": taskID, "created_by": bson.M{"$ne": userID}},
		bson.M{
			"$addToSet": bson.M{"collaborators": userID},
			"$set":      bson.M{"updated_at": s.now()},
		})
	if err != nil {
		return models.Task{}, fmt.Errorf("add collaborator: %w", classify(err))
	}
	if res.MatchedCount == 0 {
		if _, err := s.GetTask(ctx, taskID); err != nil {
			return models.Task{}, err
		}
		return models.Task{}, storage.ErrOwnerCollaborator
	}

	_, err = s.users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$addToSet": bson.M{"shared_tasks": taskID}})
	if err != nil {
		s.logger.Warn("shared_tasks append failed",
			slog.String("task_id", taskID),
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
	}
	return s.GetTask(ctx, taskID)
}

// DeleteTask removes directory references, then todos, then the task
// itself, so a partial failure never leaves a referenced but missing task.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	if _, err := s.GetTask(ctx, id); err != nil {
		return err
	}
	if err := s.unlinkSharedTask(ctx, id); err != nil {
		return err
	}
	if _, err := s.todos.DeleteMany(ctx, bson.M{"task_id": id}); err != nil {
		return fmt.Errorf("delete todos: %w", classify(err))
	}
	res, err := s.tasks.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete task: %w", classify(err))
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("task %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// unlinkSharedTask removes taskID from every user's shared_tasks, not only
// the current collaborators, so earlier drift is repaired too.
func (s *Store) unlinkSharedTask(ctx context.Context, taskID string) error {
	_, err := s.users.UpdateMany(ctx, bson.M{"shared_tasks": taskID}, bson.M{"$pull": bson.M{"shared_tasks": taskID}})
	if err != nil {
		return fmt.Errorf("unlink shared task: %w", classify(err))
	}
	return nil
}
