package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"collabtodo/internal/access"
	"collabtodo/internal/models"
	"collabtodo/internal/realtime"
	"collabtodo/internal/storage"
)

// CreateTaskInput carries the fields accepted when creating a task.
type CreateTaskInput struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Priority    models.Priority `json:"priority"`
	DueDate     *time.Time      `json:"due_date"`
	IsShareable bool            `json:"is_shareable"`
}

// deletedPayload is the body of *_deleted events.
type deletedPayload struct {
	ID string `json:"id"`
}

// CreateTask makes callerID the owner of a new task. A task created
// shareable starts with a fresh invite code.
func (s *Service) CreateTask(ctx context.Context, callerID string, in CreateTaskInput) (models.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return models.Task{}, fmt.Errorf("%w: title is required", ErrValidation)
	}
	priority := in.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !priority.Valid() {
		return models.Task{}, fmt.Errorf("%w: unknown priority %q", ErrValidation, priority)
	}

	task := models.Task{
		ID:            s.newID(),
		Title:         title,
		Description:   strings.TrimSpace(in.Description),
		Priority:      priority,
		Status:        models.StatusPending,
		CreatedBy:     callerID,
		UpdatedBy:     callerID,
		Collaborators: []string{},
	}
	if in.DueDate != nil {
		due := in.DueDate.UTC()
		task.DueDate = &due
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if !in.IsShareable {
		created, err := s.store.CreateTask(ctx, task)
		return created, wrap("create task", err)
	}
	created, err := s.withFreshCode("", func(code string) (models.Task, error) {
		task.EnableSharing(code)
		return s.store.CreateTask(ctx, task)
	})
	return created, wrap("create task", err)
}

// ListMine returns every task callerID owns or collaborates on.
func (s *Service) ListMine(ctx context.Context, callerID string) ([]models.Task, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tasks, err := s.store.ListTasks(ctx, storage.TaskFilter{Member: callerID})
	return tasks, wrap("list tasks", err)
}

// ListPersonal returns the private tasks callerID owns.
func (s *Service) ListPersonal(ctx context.Context, callerID string) ([]models.Task, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	shareable := false
	tasks, err := s.store.ListTasks(ctx, storage.TaskFilter{Owner: callerID, Shareable: &shareable})
	return tasks, wrap("list personal tasks", err)
}

// ListShared returns shareable tasks callerID owns or collaborates on, each
// with its invite link.
func (s *Service) ListShared(ctx context.Context, callerID string) ([]models.SharedTask, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	shareable := true
	tasks, err := s.store.ListTasks(ctx, storage.TaskFilter{Member: callerID, Shareable: &shareable})
	if err != nil {
		return nil, wrap("list shared tasks", err)
	}

	out := make([]models.SharedTask, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, s.withLink(t))
	}
	return out, nil
}

// GetTask returns a task callerID owns or collaborates on.
func (s *Service) GetTask(ctx context.Context, callerID, taskID string) (models.Task, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.authorizedTask(ctx, callerID, taskID, access.ReadTask)
}

// AuthorizeTopic checks that callerID may subscribe to the task's events.
func (s *Service) AuthorizeTopic(ctx context.Context, callerID, taskID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.authorizedTask(ctx, callerID, taskID, access.JoinTopic)
	return err
}

// UpdateTask applies an allow-listed patch.
func (s *Service) UpdateTask(ctx context.Context, callerID, taskID string, patch models.TaskPatch) (models.Task, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	unlock, err := s.lockTask(ctx, taskID)
	if err != nil {
		return models.Task{}, err
	}
	defer unlock()

	task, err := s.authorizedTask(ctx, callerID, taskID, access.WriteTask)
	if err != nil {
		return models.Task{}, err
	}
	if err := patch.Apply(&task); err != nil {
		return models.Task{}, err
	}
	task.UpdatedBy = callerID

	updated, err := s.store.UpdateTask(ctx, task)
	if err != nil {
		return models.Task{}, wrap("update task", err)
	}
	s.publish(ctx, taskID, realtime.EventTaskUpdated, updated)
	return updated, nil
}

// CompleteTask marks the task completed. The next todo toggle derives the
// status again.
func (s *Service) CompleteTask(ctx context.Context, callerID, taskID string) (models.Task, error) {
	completed := models.StatusCompleted
	return s.UpdateTask(ctx, callerID, taskID, models.TaskPatch{Status: &completed})
}

// DeleteTask removes the task, its todos and every collaborator link. Owner
// only.
func (s *Service) DeleteTask(ctx context.Context, callerID, taskID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	unlock, err := s.lockTask(ctx, taskID)
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := s.authorizedTask(ctx, callerID, taskID, access.DeleteTask); err != nil {
		return err
	}
	if err := s.store.DeleteTask(ctx, taskID); err != nil {
		return wrap("delete task", err)
	}
	s.publish(ctx, taskID, realtime.EventTaskDeleted, deletedPayload{ID: taskID})
	s.revoke(ctx, taskID)
	return nil
}

// authorizedTask loads the task and checks op. A missing task is reported
// before any authorization failure.
func (s *Service) authorizedTask(ctx context.Context, callerID, taskID string, op access.Operation) (models.Task, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return models.Task{}, wrap("get task", err)
	}
	if err := access.Authorize(task, callerID, op); err != nil {
		return models.Task{}, fmt.Errorf("%s %s: %w", op, taskID, err)
	}
	return task, nil
}

// ShareableLink builds the invite URL for an enabled task.
func (s *Service) ShareableLink(task models.Task) string {
	enabled, ok := task.Sharing().(models.SharingEnabled)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s/invite/%s?code=%s",
		strings.TrimRight(s.frontendURL, "/"), url.PathEscape(task.ID), url.QueryEscape(enabled.Code))
}

func (s *Service) withLink(t models.Task) models.SharedTask {
	return models.SharedTask{Task: t, ShareableLink: s.ShareableLink(t)}
}
