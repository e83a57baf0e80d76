package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"collabtodo/internal/models"
	"collabtodo/internal/storage"
)

const taskColumns = `t.id, t.title, t.description, t.priority, t.status, t.due_date, t.is_shareable,
        t.unique_code, t.created_by, t.updated_by, t.created_at, t.updated_at`

func scanTask(row rowScanner) (models.Task, error) {
	var (
		t    models.Task
		due  sql.NullTime
		code sql.NullString
	)
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Priority, &t.Status, &due, &t.IsShareable,
		&code, &t.CreatedBy, &t.UpdatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return models.Task{}, err
	}
	t.DueDate = timePtr(due)
	t.UniqueCode = code.String
	t.Collaborators = []string{}
	return t, nil
}

// CreateTask persists a new task. Collaborators on the input are ignored.
func (s *Store) CreateTask(ctx context.Context, t models.Task) (models.Task, error) {
	now := s.now()
	_, err := s.db.ExecContext(ctx, `INSERT INTO tasks(id, title, description, priority, status, due_date,
            is_shareable, unique_code, created_by, updated_by, created_at, updated_at)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, t.Priority, t.Status, t.DueDate,
		t.IsShareable, nullString(t.UniqueCode), t.CreatedBy, t.UpdatedBy, now, now)
	if err != nil {
		return models.Task{}, fmt.Errorf("insert task: %w", translate(err))
	}
	return s.GetTask(ctx, t.ID)
}

// GetTask retrieves a task with its collaborators.
func (s *Store) GetTask(ctx context.Context, id string) (models.Task, error) {
	return getTask(ctx, s.db, id)
}

func getTask(ctx context.Context, q querier, id string) (models.Task, error) {
	t, err := scanTask(q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Task{}, fmt.Errorf("task %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("get task: %w", err)
	}

	collaborators, err := loadCollaborators(ctx, q, []string{id})
	if err != nil {
		return models.Task{}, err
	}
	if c, ok := collaborators[id]; ok {
		t.Collaborators = c
	}
	return t, nil
}

// ListTasks returns tasks matching the filter, newest first.
func (s *Store) ListTasks(ctx context.Context, f storage.TaskFilter) ([]models.Task, error) {
	var (
		where []string
		args  []any
	)
	if f.Member != "" {
		where = append(where, `(t.created_by = ? OR EXISTS (
            SELECT 1 FROM task_collaborators c WHERE c.task_id = t.id AND c.user_id = ?))`)
		args = append(args, f.Member, f.Member)
	}
	if f.Owner != "" {
		where = append(where, `t.created_by = ?`)
		args = append(args, f.Owner)
	}
	if f.Shareable != nil {
		where = append(where, `t.is_shareable = ?`)
		args = append(args, *f.Shareable)
	}

	query := `SELECT ` + taskColumns + ` FROM tasks t`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY t.created_at DESC, t.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	var ids []string
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
		ids = append(ids, t.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	collaborators, err := loadCollaborators(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		if c, ok := collaborators[tasks[i].ID]; ok {
			tasks[i].Collaborators = c
		}
	}
	return tasks, nil
}

// UpdateTask writes the scalar fields of a task.
func (s *Store) UpdateTask(ctx context.Context, t models.Task) (models.Task, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET title = ?, description = ?, priority = ?, status = ?,
            due_date = ?, updated_by = ?, updated_at = ? WHERE id = ?`,
		t.Title, t.Description, t.Priority, t.Status, t.DueDate, t.UpdatedBy, s.now(), t.ID)
	if err != nil {
		return models.Task{}, fmt.Errorf("update task: %w", err)
	}
	if err := requireAffected(res, "task", t.ID); err != nil {
		return models.Task{}, err
	}
	return s.GetTask(ctx, t.ID)
}

// EnableSharing stores a fresh invite code and marks the task shareable.
func (s *Store) EnableSharing(ctx context.Context, taskID, code, updatedBy string) (models.Task, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET is_shareable = 1, unique_code = ?, updated_by = ?, updated_at = ?
        WHERE id = ?`, code, updatedBy, s.now(), taskID)
	if err != nil {
		return models.Task{}, fmt.Errorf("enable sharing: %w", translate(err))
	}
	if err := requireAffected(res, "task", taskID); err != nil {
		return models.Task{}, err
	}
	return s.GetTask(ctx, taskID)
}

// DisableSharing makes the task private and drops all collaborators in one
// transaction. shared_tasks is derived from task_collaborators, so the
// directory follows automatically.
func (s *Store) DisableSharing(ctx context.Context, taskID, updatedBy string) (models.Task, []string, error) {
	var (
		task    models.Task
		removed []string
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getTask(ctx, tx, taskID)
		if err != nil {
			return err
		}
		removed = current.Collaborators

		if _, err := tx.ExecContext(ctx, `DELETE FROM task_collaborators WHERE task_id = ?`, taskID); err != nil {
			return fmt.Errorf("clear collaborators: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE tasks SET is_shareable = 0, unique_code = NULL, updated_by = ?, updated_at = ?
            WHERE id = ?`, updatedBy, s.now(), taskID); err != nil {
			return fmt.Errorf("disable sharing: %w", err)
		}

		task, err = getTask(ctx, tx, taskID)
		return err
	})
	if err != nil {
		return models.Task{}, nil, err
	}
	return task, removed, nil
}

// AddCollaborator admits userID to the task. Re-adding is a no-op.
func (s *Store) AddCollaborator(ctx context.Context, taskID, userID string) (models.Task, error) {
	var task models.Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getTask(ctx, tx, taskID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO task_collaborators(task_id, user_id, joined_at) VALUES(?, ?, ?)
            ON CONFLICT(task_id, user_id) DO NOTHING`, taskID, userID, s.now())
		if err != nil {
			return fmt.Errorf("add collaborator: %w", translate(err))
		}
		task, err = getTask(ctx, tx, taskID)
		return err
	})
	return task, err
}

// DeleteTask removes collaborator links, todos and the task in one
// transaction, task row last.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM task_collaborators WHERE task_id = ?`, id); err != nil {
			return fmt.Errorf("delete collaborators: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM todos WHERE task_id = ?`, id); err != nil {
			return fmt.Errorf("delete todos: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		return requireAffected(res, "task", id)
	})
}

func loadCollaborators(ctx context.Context, q querier, taskIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(taskIDs))
	if len(taskIDs) == 0 {
		return out, nil
	}

	args := make([]any, len(taskIDs))
	for i, id := range taskIDs {
		args[i] = id
	}
	rows, err := q.QueryContext(ctx, `SELECT task_id, user_id FROM task_collaborators
        WHERE task_id IN (`+placeholders(len(taskIDs))+`) ORDER BY joined_at, user_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list collaborators: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var taskID, userID string
		if err := rows.Scan(&taskID, &userID); err != nil {
			return nil, fmt.Errorf("scan collaborator: %w", err)
		}
		out[taskID] = append(out[taskID], userID)
	}
	return out, rows.Err()
}

func requireAffected(res sql.Result, kind, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, storage.ErrNotFound)
	}
	return nil
}
