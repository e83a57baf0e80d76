package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"collabtodo/internal/identity"
	"collabtodo/internal/models"
)

// Identity provider event types.
const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
)

// HandleIdentityEvent mirrors a user lifecycle event into the directory.
// Unknown event types are acknowledged and ignored.
func (s *Service) HandleIdentityEvent(ctx context.Context, ev identity.Event) error {
	userID := strings.TrimSpace(ev.Data.ID)

	switch ev.Type {
	case EventUserCreated, EventUserUpdated, EventUserDeleted:
		if userID == "" {
			return fmt.Errorf("%w: %s event without user id", ErrValidation, ev.Type)
		}
	default:
		s.logger.Info("ignoring identity event", slog.String("type", ev.Type))
		return nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if ev.Type == EventUserDeleted {
		err := s.store.DeleteUser(ctx, userID)
		if errors.Is(err, ErrNotFound) {
			s.logger.Debug("deleted user was not in the directory", slog.String("user_id", userID))
			return nil
		}
		if err != nil {
			return wrap("delete user", err)
		}
		s.logger.Info("user removed from directory", slog.String("user_id", userID))
		return nil
	}

	user, err := s.store.UpsertUser(ctx, userID, ev.Data.DisplayName())
	if err != nil {
		return wrap("upsert user", err)
	}
	s.logger.Info("user synced", slog.String("type", ev.Type), slog.String("user_id", user.ID))
	return nil
}

// GetUser returns a directory entry with the tasks shared with the user.
func (s *Service) GetUser(ctx context.Context, userID string) (models.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	user, err := s.store.GetUser(ctx, userID)
	return user, wrap("get user", err)
}
