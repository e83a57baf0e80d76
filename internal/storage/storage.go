// Package storage defines the persistence contract shared by the SQLite and
// MongoDB backends.
package storage

import (
	"context"
	"errors"

	"collabtodo/internal/models"
)

var (
	// ErrNotFound is returned when a task, todo or user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrCodeConflict is returned when a generated invite code collides
	// with the code of another task.
	ErrCodeConflict = errors.New("invite code already in use")
	// ErrOwnerCollaborator is returned when a write would add a task's
	// owner to its own collaborator set.
	ErrOwnerCollaborator = errors.New("owner cannot be a collaborator")
	// ErrUnavailable is returned when the backend cannot be reached or
	// timed out. The operation may be retried.
	ErrUnavailable = errors.New("storage unavailable")
)

// TaskFilter narrows ListTasks. Zero-valued fields are ignored.
type TaskFilter struct {
	// Member matches tasks the user owns or collaborates on.
	Member string
	// Owner matches tasks created by the user.
	Owner string
	// Shareable matches on the sharing flag when set.
	Shareable *bool
}

// Store persists tasks, todos and the user directory.
//
// Multi-record writes (DisableSharing, AddCollaborator, DeleteTask) must
// never expose a task that is referenced but missing: backends either run
// them in one transaction or order the steps so a retry converges.
type Store interface {
	CreateTask(ctx context.Context, task models.Task) (models.Task, error)
	GetTask(ctx context.Context, id string) (models.Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]models.Task, error)
	// UpdateTask writes the scalar fields of the task: title, description,
	// priority, status, due date and updated_by. Sharing state and
	// collaborators are left untouched.
	UpdateTask(ctx context.Context, task models.Task) (models.Task, error)
	// EnableSharing sets is_shareable and stores code, keeping collaborators.
	EnableSharing(ctx context.Context, taskID, code, updatedBy string) (models.Task, error)
	// DisableSharing clears the code and every collaborator, removing the
	// task from their shared_tasks. It returns the removed collaborators.
	DisableSharing(ctx context.Context, taskID, updatedBy string) (models.Task, []string, error)
	// AddCollaborator admits userID and records the task in the user's
	// shared_tasks. It is idempotent.
	AddCollaborator(ctx context.Context, taskID, userID string) (models.Task, error)
	// DeleteTask removes the task, its todos and every directory reference.
	DeleteTask(ctx context.Context, id string) error

	CreateTodo(ctx context.Context, todo models.Todo) (models.Todo, error)
	GetTodo(ctx context.Context, id string) (models.Todo, error)
	// ListTodos returns the todos of a task, newest first.
	ListTodos(ctx context.Context, taskID string) ([]models.Todo, error)
	UpdateTodo(ctx context.Context, todo models.Todo) (models.Todo, error)
	DeleteTodo(ctx context.Context, id string) error
	// CountTodos returns how many todos of the task are completed and in total.
	CountTodos(ctx context.Context, taskID string) (done, total int, err error)

	UpsertUser(ctx context.Context, id, name string) (models.User, error)
	GetUser(ctx context.Context, id string) (models.User, error)
	DeleteUser(ctx context.Context, id string) error

	Ping(ctx context.Context) error
	Close() error
}
