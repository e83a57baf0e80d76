package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"collabtodo/internal/access"
	"collabtodo/internal/models"
	"collabtodo/internal/realtime"
)

// CreateTodoInput carries the fields accepted when creating a todo.
type CreateTodoInput struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Priority    models.Priority `json:"priority"`
	DueDate     *time.Time      `json:"due_date"`
}

// ToggleResult is a todo together with the task status derived after its
// completion changed. It is also the todo_toggled event payload.
type ToggleResult struct {
	Todo       models.Todo   `json:"todo"`
	TaskStatus models.Status `json:"task_status"`
}

// CreateTodo adds a todo to a task callerID owns or collaborates on.
func (s *Service) CreateTodo(ctx context.Context, callerID, taskID string, in CreateTodoInput) (models.Todo, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return models.Todo{}, fmt.Errorf("%w: title is required", ErrValidation)
	}
	priority := in.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !priority.Valid() {
		return models.Todo{}, fmt.Errorf("%w: unknown priority %q", ErrValidation, priority)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	unlock, err := s.lockTask(ctx, taskID)
	if err != nil {
		return models.Todo{}, err
	}
	defer unlock()

	if _, err := s.authorizedTask(ctx, callerID, taskID, access.WriteTodo); err != nil {
		return models.Todo{}, err
	}

	todo := models.Todo{
		ID:          s.newID(),
		TaskID:      taskID,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Priority:    priority,
		CreatedBy:   callerID,
		UpdatedBy:   callerID,
	}
	if in.DueDate != nil {
		due := in.DueDate.UTC()
		todo.DueDate = &due
	}

	created, err := s.store.CreateTodo(ctx, todo)
	if err != nil {
		return models.Todo{}, wrap("create todo", err)
	}
	s.publish(ctx, taskID, realtime.EventTodoCreated, created)
	return created, nil
}

// ListTodos returns the todos of a task, newest first.
func (s *Service) ListTodos(ctx context.Context, callerID, taskID string) ([]models.Todo, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.authorizedTask(ctx, callerID, taskID, access.ReadTask); err != nil {
		return nil, err
	}
	todos, err := s.store.ListTodos(ctx, taskID)
	return todos, wrap("list todos", err)
}

// UpdateTodo applies an allow-listed patch. When the patch changes
// completion the task status is derived again, as for ToggleTodo.
func (s *Service) UpdateTodo(ctx context.Context, callerID, todoID string, patch models.TodoPatch) (ToggleResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	todo, task, unlock, err := s.lockedTodo(ctx, callerID, todoID)
	if err != nil {
		return ToggleResult{}, err
	}
	defer unlock()

	toggled, err := patch.Apply(&todo)
	if err != nil {
		return ToggleResult{}, err
	}
	if !toggled {
		todo.UpdatedBy = callerID
		updated, err := s.store.UpdateTodo(ctx, todo)
		if err != nil {
			return ToggleResult{}, wrap("update todo", err)
		}
		s.publish(ctx, task.ID, realtime.EventTodoUpdated, updated)
		return ToggleResult{Todo: updated, TaskStatus: task.Status}, nil
	}
	return s.saveToggled(ctx, callerID, task, todo)
}

// ToggleTodo flips completion and derives the task status from the new
// completion counts before announcing both.
func (s *Service) ToggleTodo(ctx context.Context, callerID, todoID string) (ToggleResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	todo, task, unlock, err := s.lockedTodo(ctx, callerID, todoID)
	if err != nil {
		return ToggleResult{}, err
	}
	defer unlock()

	todo.IsCompleted = !todo.IsCompleted
	return s.saveToggled(ctx, callerID, task, todo)
}

// DeleteTodo removes a todo. It does not change the task status.
func (s *Service) DeleteTodo(ctx context.Context, callerID, todoID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	todo, task, unlock, err := s.lockedTodo(ctx, callerID, todoID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.store.DeleteTodo(ctx, todo.ID); err != nil {
		return wrap("delete todo", err)
	}
	s.publish(ctx, task.ID, realtime.EventTodoDeleted, deletedPayload{ID: todo.ID})
	return nil
}

// lockedTodo finds the todo, locks its task and re-reads both under the
// lock. The caller must release the returned unlock.
func (s *Service) lockedTodo(ctx context.Context, callerID, todoID string) (models.Todo, models.Task, func(), error) {
	todo, err := s.store.GetTodo(ctx, todoID)
	if err != nil {
		return models.Todo{}, models.Task{}, nil, wrap("get todo", err)
	}

	unlock, err := s.lockTask(ctx, todo.TaskID)
	if err != nil {
		return models.Todo{}, models.Task{}, nil, err
	}

	todo, err = s.store.GetTodo(ctx, todoID)
	if err != nil {
		unlock()
		return models.Todo{}, models.Task{}, nil, wrap("get todo", err)
	}
	task, err := s.authorizedTask(ctx, callerID, todo.TaskID, access.WriteTodo)
	if err != nil {
		unlock()
		return models.Todo{}, models.Task{}, nil, err
	}
	return todo, task, unlock, nil
}

// saveToggled persists a todo whose completion changed, derives the task
// status from the fresh counts and publishes todo_toggled. The task lock
// must be held.
func (s *Service) saveToggled(ctx context.Context, callerID string, task models.Task, todo models.Todo) (ToggleResult, error) {
	todo.UpdatedBy = callerID
	updated, err := s.store.UpdateTodo(ctx, todo)
	if err != nil {
		return ToggleResult{}, wrap("update todo", err)
	}

	done, total, err := s.store.CountTodos(ctx, task.ID)
	if err != nil {
		return ToggleResult{}, wrap("count todos", err)
	}
	status := models.DeriveStatus(done, total)
	if status != task.Status {
		task.Status = status
		task.UpdatedBy = callerID
		if _, err := s.store.UpdateTask(ctx, task); err != nil {
			return ToggleResult{}, wrap("update task status", err)
		}
	}

	result := ToggleResult{Todo: updated, TaskStatus: status}
	s.publish(ctx, task.ID, realtime.EventTodoToggled, result)
	return result, nil
}
