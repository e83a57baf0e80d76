package models

import (
	"fmt"
	"strings"
	"time"
)

// TaskPatch lists the task fields a caller may change. Ownership, sharing
// and membership fields are not patchable.
type TaskPatch struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Priority    *Priority  `json:"priority"`
	Status      *Status    `json:"status"`
	DueDate     *time.Time `json:"due_date"`
}

// Apply validates the patch and merges it into t.
func (p TaskPatch) Apply(t *Task) error {
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return fmt.Errorf("%w: title must not be empty", ErrValidation)
		}
		t.Title = title
	}
	if p.Description != nil {
		t.Description = strings.TrimSpace(*p.Description)
	}
	if p.Priority != nil {
		if !p.Priority.Valid() {
			return fmt.Errorf("%w: unknown priority %q", ErrValidation, *p.Priority)
		}
		t.Priority = *p.Priority
	}
	if p.Status != nil {
		if !p.Status.Valid() {
			return fmt.Errorf("%w: unknown status %q", ErrValidation, *p.Status)
		}
		t.Status = *p.Status
	}
	if p.DueDate != nil {
		due := p.DueDate.UTC()
		t.DueDate = &due
	}
	return nil
}

// TodoPatch lists the todo fields a caller may change. task_id is immutable.
type TodoPatch struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	IsCompleted *bool      `json:"is_completed"`
	Priority    *Priority  `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
}

// Apply validates the patch and merges it into t. It reports whether the
// completion flag changed.
func (p TodoPatch) Apply(t *Todo) (bool, error) {
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return false, fmt.Errorf("%w: title must not be empty", ErrValidation)
		}
		t.Title = title
	}
	if p.Description != nil {
		t.Description = strings.TrimSpace(*p.Description)
	}
	if p.Priority != nil {
		if !p.Priority.Valid() {
			return false, fmt.Errorf("%w: unknown priority %q", ErrValidation, *p.Priority)
		}
		t.Priority = *p.Priority
	}
	if p.DueDate != nil {
		due := p.DueDate.UTC()
		t.DueDate = &due
	}
	toggled := false
	if p.IsCompleted != nil && *p.IsCompleted != t.IsCompleted {
		t.IsCompleted = *p.IsCompleted
		toggled = true
	}
	return toggled, nil
}
