package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"collabtodo/internal/models"
	"collabtodo/internal/storage"
)

func normalizeTodo(t *models.Todo) {
	if t.DueDate != nil {
		due := t.DueDate.UTC()
		t.DueDate = &due
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
}

// CreateTodo inserts a todo after checking that its task exists.
func (s *Store) CreateTodo(ctx context.Context, t models.Todo) (models.Todo, error) {
	n, err := s.tasks.CountDocuments(ctx, bson.M{"_id": t.TaskID})
	if err != nil {
		return models.Todo{}, fmt.Errorf("check task: %w", classify(err))
	}
	if n == 0 {
		return models.Todo{}, fmt.Errorf("task %s: %w", t.TaskID, storage.ErrNotFound)
	}

	now := s.now()
	t.CreatedAt, t.UpdatedAt = now, now
	if _, err := s.todos.InsertOne(ctx, t); err != nil {
		return models.Todo{}, fmt.Errorf("insert todo: %w", classify(err))
	}
	return t, nil
}

// GetTodo fetches a todo by id.
func (s *Store) GetTodo(ctx context.Context, id string) (models.Todo, error) {
	var t models.Todo
	if err := s.todos.FindOne(ctx, bson.M{"_id": id}).Decode(&t); err != nil {
		return models.Todo{}, notFound(err, "todo", id)
	}
	normalizeTodo(&t)
	return t, nil
}

// ListTodos returns the todos of a task, newest first.
func (s *Store) ListTodos(ctx context.Context, taskID string) ([]models.Todo, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := s.todos.Find(ctx, bson.M{"task_id": taskID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", classify(err))
	}

	todos := []models.Todo{}
	if err := cursor.All(ctx, &todos); err != nil {
		return nil, fmt.Errorf("decode todos: %w", classify(err))
	}
	for i := range todos {
		normalizeTodo(&todos[i])
	}
	return todos, nil
}

// UpdateTodo writes the mutable fields of a todo. task_id is never written.
func (s *Store) UpdateTodo(ctx context.Context, t models.Todo) (models.Todo, error) {
	res, err := s.todos.UpdateOne(ctx, bson.M{"_id": t.ID}, bson.M{"$set": bson.M{
		"title":        t.Title,
		"description":  t.Description,
		"is_completed": t.IsCompleted,
		"priority":     t.Priority,
		"due_date":     t.DueDate,
		"updated_by":   t.UpdatedBy,
		"updated_at":   s.now(),
	}})
	if err != nil {
		return models.Todo{}, fmt.Errorf("update todo: %w", classify(err))
	}
	if res.MatchedCount == 0 {
		return models.Todo{}, fmt.Errorf("todo %s: %w", t.ID, storage.ErrNotFound)
	}
	return s.GetTodo(ctx, t.ID)
}

// DeleteTodo removes a todo by id.
func (s *Store) DeleteTodo(ctx context.Context, id string) error {
	res, err := s.todos.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete todo: %w", classify(err))
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("todo %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// CountTodos returns completed and total todo counts for a task.
func (s *Store) CountTodos(ctx context.Context, taskID string) (int, int, error) {
	total, err := s.todos.CountDocuments(ctx, bson.M{"task_id": taskID})
	if err != nil {
		return 0, 0, fmt.Errorf("count todos: %w", classify(err))
	}
	done, err := s.todos.CountDocuments(ctx, bson.M{"task_id": taskID, "is_completed": true})
	if err != nil {
		return 0, 0, fmt.Errorf("count completed todos: %w", classify(err))
	}
	return int(done), int(total), nil
}
