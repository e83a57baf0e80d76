// Package access decides what a caller may do with a task and its todos.
package access

import (
	"errors"

	"collabtodo/internal/models"
)

// ErrForbidden is returned when the caller lacks the required relationship
// to the task.
var ErrForbidden = errors.New("forbidden")

// Operation names an action that is checked against a task.
type Operation int

const (
	// ReadTask covers fetching a task and listing its todos.
	ReadTask Operation = iota
	// WriteTask covers update and manual completion.
	WriteTask
	// WriteTodo covers todo create, update, delete and toggle.
	WriteTodo
	// JoinTopic covers subscribing to the task's realtime events.
	JoinTopic
	// DeleteTask is owner only.
	DeleteTask
	// ManageSharing covers enabling and disabling sharing. Owner only.
	ManageSharing
)

func (op Operation) String() string {
	switch op {
	case ReadTask:
		return "read task"
	case WriteTask:
		return "write task"
	case WriteTodo:
		return "write todo"
	case JoinTopic:
		return "join topic"
	case DeleteTask:
		return "delete task"
	case ManageSharing:
		return "manage sharing"
	}
	return "unknown"
}

// IsOwner reports whether callerID created the task.
func IsOwner(task models.Task, callerID string) bool {
	return callerID != "" && task.CreatedBy == callerID
}

// IsCollaborator reports whether callerID is in the task's collaborator set.
func IsCollaborator(task models.Task, callerID string) bool {
	return callerID != "" && task.HasCollaborator(callerID)
}

// CanReadOrWrite reports whether callerID is the owner or a collaborator.
func CanReadOrWrite(task models.Task, callerID string) bool {
	return IsOwner(task, callerID) || IsCollaborator(task, callerID)
}

// Allowed reports whether callerID may perform op on task.
func Allowed(task models.Task, callerID string, op Operation) bool {
	switch op {
	case DeleteTask, ManageSharing:
		return IsOwner(task, callerID)
	case ReadTask, WriteTask, WriteTodo, JoinTopic:
		return CanReadOrWrite(task, callerID)
	}
	return false
}

// Authorize returns ErrForbidden when callerID may not perform op on task.
func Authorize(task models.Task, callerID string, op Operation) error {
	if !Allowed(task, callerID, op) {
		return ErrForbidden
	}
	return nil
}
