package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"collabtodo/internal/models"
	"collabtodo/internal/storage"
)

// UpsertUser creates the user or renames an existing one.
func (s *Store) UpsertUser(ctx context.Context, id, name string) (models.User, error) {
	now := s.now()
	_, err := s.db.ExecContext(ctx, `INSERT INTO users(id, name, created_at, updated_at) VALUES(?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at`, id, name, now, now)
	if err != nil {
		return models.User{}, fmt.Errorf("upsert user: %w", err)
	}
	return s.GetUser(ctx, id)
}

// GetUser fetches a user and the tasks shared with them.
func (s *Store) GetUser(ctx context.Context, id string) (models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx, `SELECT id, name, created_at, updated_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, fmt.Errorf("user %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("get user: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT task_id FROM task_collaborators WHERE user_id = ? ORDER BY joined_at, task_id`, id)
	if err != nil {
		return models.User{}, fmt.Errorf("list shared tasks: %w", err)
	}
	defer rows.Close()

	u.SharedTasks = []string{}
	for rows.Next() {
		var taskID string
		if err := rows.Scan(&taskID); err != nil {
			return models.User{}, fmt.Errorf("scan shared task: %w", err)
		}
		u.SharedTasks = append(u.SharedTasks, taskID)
	}
	return u, rows.Err()
}

// DeleteUser removes a directory entry. Collaborations are kept so the
// owner still sees who had access.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return requireAffected(res, "user", id)
}
