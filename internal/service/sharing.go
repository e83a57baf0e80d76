package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"collabtodo/internal/access"
	"collabtodo/internal/models"
	"collabtodo/internal/realtime"
	"collabtodo/internal/storage"
)

// EnableSharing rotates the invite code and marks the task shareable.
// Existing collaborators are kept. Owner only.
func (s *Service) EnableSharing(ctx context.Context, callerID, taskID string) (models.SharedTask, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	unlock, err := s.lockTask(ctx, taskID)
	if err != nil {
		return models.SharedTask{}, err
	}
	defer unlock()

	task, err := s.authorizedTask(ctx, callerID, taskID, access.ManageSharing)
	if err != nil {
		return models.SharedTask{}, err
	}

	updated, err := s.withFreshCode(task.UniqueCode, func(code string) (models.Task, error) {
		return s.store.EnableSharing(ctx, taskID, code, callerID)
	})
	if err != nil {
		return models.SharedTask{}, wrap("enable sharing", err)
	}

	s.publish(ctx, taskID, realtime.EventTaskUpdated, updated)
	return s.withLink(updated), nil
}

// DisableSharing makes the task private, clears its code and removes every
// collaborator. Realtime subscribers other than the owner are evicted before
// the update is announced. Disabling a private task is a no-op. Owner only.
func (s *Service) DisableSharing(ctx context.Context, callerID, taskID string) (models.Task, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	unlock, err := s.lockTask(ctx, taskID)
	if err != nil {
		return models.Task{}, err
	}
	defer unlock()

	if _, err := s.authorizedTask(ctx, callerID, taskID, access.ManageSharing); err != nil {
		return models.Task{}, err
	}

	updated, removed, err := s.store.DisableSharing(ctx, taskID, callerID)
	if err != nil {
		return models.Task{}, wrap("disable sharing", err)
	}
	if len(removed) > 0 {
		s.logger.Info("sharing disabled",
			slog.String("task_id", taskID),
			slog.Int("removed_collaborators", len(removed)))
	}

	s.revoke(ctx, taskID, updated.CreatedBy)
	s.publish(ctx, taskID, realtime.EventTaskUpdated, updated)
	return updated, nil
}

// AcceptInvitation admits callerID as a collaborator when code matches the
// task's current invite code.
func (s *Service) AcceptInvitation(ctx context.Context, callerID, taskID, code string) (models.Task, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	unlock, err := s.lockTask(ctx, taskID)
	if err != nil {
		return models.Task{}, err
	}
	defer unlock()

	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return models.Task{}, wrap("get task", err)
	}

	enabled, ok := task.Sharing().(models.SharingEnabled)
	if !ok {
		return models.Task{}, fmt.Errorf("accept %s: %w", taskID, ErrTaskPrivate)
	}
	if code == "" || code != enabled.Code {
		return models.Task{}, fmt.Errorf("accept %s: %w", taskID, ErrInvalidInviteCode)
	}
	if access.IsOwner(task, callerID) {
		return models.Task{}, fmt.Errorf("accept %s: %w", taskID, ErrOwnerCannotJoin)
	}
	if access.IsCollaborator(task, callerID) {
		return models.Task{}, fmt.Errorf("accept %s: %w", taskID, ErrAlreadyCollaborator)
	}

	updated, err := s.store.AddCollaborator(ctx, taskID, callerID)
	if errors.Is(err, storage.ErrOwnerCollaborator) {
		return models.Task{}, fmt.Errorf("accept %s: %w", taskID, ErrOwnerCannotJoin)
	}
	if err != nil {
		return models.Task{}, wrap("add collaborator", err)
	}

	s.logger.Info("invitation accepted", slog.String("task_id", taskID), slog.String("user_id", callerID))
	s.publish(ctx, taskID, realtime.EventTaskUpdated, updated)
	return updated, nil
}

// withFreshCode calls write with new invite codes until one is not taken by
// another task. previous is never reused.
func (s *Service) withFreshCode(previous string, write func(code string) (models.Task, error)) (models.Task, error) {
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code := s.newCode()
		if code == "" || code == previous {
			continue
		}
		task, err := write(code)
		if errors.Is(err, storage.ErrCodeConflict) {
			s.logger.Debug("invite code collision", slog.Int("attempt", attempt))
			continue
		}
		return task, err
	}
	return models.Task{}, fmt.Errorf("%w: no free invite code after %d attempts", ErrUnavailable, maxCodeAttempts)
}
