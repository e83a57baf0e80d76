package service

import (
	"errors"

	"collabtodo/internal/access"
	"collabtodo/internal/models"
	"collabtodo/internal/storage"
)

// Error kinds returned by Service. Callers match them with errors.Is.
var (
	ErrNotFound   = storage.ErrNotFound
	ErrForbidden  = access.ErrForbidden
	ErrValidation = models.ErrValidation

	ErrInvalidInviteCode   = errors.New("invalid invite code")
	ErrAlreadyCollaborator = errors.New("already a collaborator")
	ErrOwnerCannotJoin     = errors.New("owner cannot join their own task")
	ErrTaskPrivate         = errors.New("task is private")
	ErrUnavailable         = errors.New("temporarily unavailable")
)
