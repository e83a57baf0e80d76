package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"collabtodo/internal/models"
	"collabtodo/internal/storage"
)

const todoColumns = `id, task_id, title, description, is_completed, priority, due_date,
        created_by, updated_by, created_at, updated_at`

func scanTodo(row rowScanner) (models.Todo, error) {
	var (
		t   models.Todo
		due sql.NullTime
	)
	err := row.Scan(&t.ID, &t.TaskID, &t.Title, &t.Description, &t.IsCompleted, &t.Priority, &due,
		&t.CreatedBy, &t.UpdatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return models.Todo{}, err
	}
	t.DueDate = timePtr(due)
	return t, nil
}

// CreateTodo inserts a todo under an existing task.
func (s *Store) CreateTodo(ctx context.Context, t models.Todo) (models.Todo, error) {
	now := s.now()
	_, err := s.db.ExecContext(ctx, `INSERT INTO todos(id, task_id, title, description, is_completed, priority,
            due_date, created_by, updated_by, created_at, updated_at)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.TaskID, t.Title, t.Description, t.IsCompleted, t.Priority,
		t.DueDate, t.CreatedBy, t.UpdatedBy, now, now)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey {
			return models.Todo{}, fmt.Errorf("task %s: %w", t.TaskID, storage.ErrNotFound)
		}
		return models.Todo{}, fmt.Errorf("insert todo: %w", err)
	}
	return s.GetTodo(ctx, t.ID)
}

// GetTodo retrieves a todo by id.
func (s *Store) GetTodo(ctx context.Context, id string) (models.Todo, error) {
	t, err := scanTodo(s.db.QueryRowContext(ctx, `SELECT `+todoColumns+` FROM todos WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Todo{}, fmt.Errorf("todo %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return models.Todo{}, fmt.Errorf("get todo: %w", err)
	}
	return t, nil
}

// ListTodos returns the todos of a task, newest first.
func (s *Store) ListTodos(ctx context.Context, taskID string) ([]models.Todo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+todoColumns+` FROM todos WHERE task_id = ?
        ORDER BY created_at DESC, id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	defer rows.Close()

	todos := []models.Todo{}
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan todo: %w", err)
		}
		todos = append(todos, t)
	}
	return todos, rows.Err()
}

// UpdateTodo writes the mutable fields of a todo. task_id is never written.
func (s *Store) UpdateTodo(ctx context.Context, t models.Todo) (models.Todo, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE todos SET title = ?, description = ?, is_completed = ?, priority = ?,
            due_date = ?, updated_by = ?, updated_at = ? WHERE id = ?`,
		t.Title, t.Description, t.IsCompleted, t.Priority, t.DueDate, t.UpdatedBy, s.now(), t.ID)
	if err != nil {
		return models.Todo{}, fmt.Errorf("update todo: %w", err)
	}
	if err := requireAffected(res, "todo", t.ID); err != nil {
		return models.Todo{}, err
	}
	return s.GetTodo(ctx, t.ID)
}

// DeleteTodo removes a todo by id.
func (s *Store) DeleteTodo(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM todos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete todo: %w", err)
	}
	return requireAffected(res, "todo", id)
}

// CountTodos returns completed and total todo counts for a task.
func (s *Store) CountTodos(ctx context.Context, taskID string) (int, int, error) {
	var done, total int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(is_completed), 0), COUNT(*) FROM todos WHERE task_id = ?`, taskID).
		Scan(&done, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("count todos: %w", err)
	}
	return done, total, nil
}
