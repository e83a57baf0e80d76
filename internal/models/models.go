package models

import (
	"errors"
	"time"
)

// ErrValidation marks input that fails field-level checks.
var ErrValidation = errors.New("validation failed")

// Priority ranks tasks and todos.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is one of the supported priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Status is the progress of a task. It is normally derived from todo
// completion, see DeriveStatus.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

// Valid reports whether s is one of the supported statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// User is a directory entry mirrored from the identity provider.
type User struct {
	ID          string    `json:"user_id" bson:"_id"`
	Name        string    `json:"user_name" bson:"user_name"`
	SharedTasks []string  `json:"shared_tasks" bson:"shared_tasks"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at"`
}

// Task is the top-level unit of work. It has one owner and any number of
// collaborators admitted through an invite code.
type Task struct {
	ID            string     `json:"id" bson:"_id"`
	Title         string     `json:"title" bson:"title"`
	Description   string     `json:"description" bson:"description"`
	Priority      Priority   `json:"priority" bson:"priority"`
	Status        Status     `json:"status" bson:"status"`
	DueDate       *time.Time `json:"due_date,omitempty" bson:"due_date,omitempty"`
	IsShareable   bool       `json:"is_shareable" bson:"is_shareable"`
	UniqueCode    string     `json:"unique_code,omitempty" bson:"unique_code,omitempty"`
	CreatedBy     string     `json:"created_by" bson:"created_by"`
	UpdatedBy     string     `json:"updated_by,omitempty" bson:"updated_by,omitempty"`
	Collaborators []string   `json:"collaborators" bson:"collaborators"`
	CreatedAt     time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" bson:"updated_at"`
}

// SharedTask is a Task listed in the shared view, carrying its invite link.
type SharedTask struct {
	Task
	ShareableLink string `json:"shareableLink"`
}

// Todo is a checklist item owned by exactly one task.
type Todo struct {
	ID          string     `json:"id" bson:"_id"`
	TaskID      string     `json:"task_id" bson:"task_id"`
	Title       string     `json:"title" bson:"title"`
	Description string     `json:"description" bson:"description"`
	IsCompleted bool       `json:"is_completed" bson:"is_completed"`
	Priority    Priority   `json:"priority" bson:"priority"`
	DueDate     *time.Time `json:"due_date,omitempty" bson:"due_date,omitempty"`
	CreatedBy   string     `json:"created_by" bson:"created_by"`
	UpdatedBy   string     `json:"updated_by,omitempty" bson:"updated_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" bson:"updated_at"`
}

// DeriveStatus computes a task status from the completion counts of its todos.
func DeriveStatus(done, total int) Status {
	switch {
	case total > 0 && done >= total:
		return StatusCompleted
	case done > 0:
		return StatusInProgress
	default:
		return StatusPending
	}
}
