package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"collabtodo/internal/identity"
	"collabtodo/internal/service"
)

const maxBodyBytes = 1 << 20

type errorKind struct {
	err    error
	status int
	code   string
}

// errorKinds maps service errors to responses. Order matters: the first
// match wins.
var errorKinds = []errorKind{
	{service.ErrUnavailable, http.StatusServiceUnavailable, "unavailable"},
	{service.ErrTaskPrivate, http.StatusNotFound, "task_private"},
	{service.ErrNotFound, http.StatusNotFound, "not_found"},
	{service.ErrForbidden, http.StatusForbidden, "forbidden"},
	{service.ErrInvalidInviteCode, http.StatusBadRequest, "invalid_invite_code"},
	{service.ErrAlreadyCollaborator, http.StatusConflict, "already_collaborator"},
	{service.ErrOwnerCannotJoin, http.StatusConflict, "owner_cannot_join"},
	{service.ErrValidation, http.StatusBadRequest, "validation_failed"},
	{identity.ErrInvalidSignature, http.StatusUnauthorized, "unauthorized"},
}

// respondError maps err to a status and code. Unexpected errors are logged
// with request context and hidden from the client.
func (s *Server) respondError(c *gin.Context, err error) {
	for _, kind := range errorKinds {
		if !errors.Is(err, kind.err) {
			continue
		}
		msg := kind.err.Error()
		if kind.err == service.ErrValidation {
			msg = err.Error()
		}
		if kind.status == http.StatusServiceUnavailable {
			s.logger.Warn("request unavailable",
				slog.String("method", c.Request.Method),
				slog.String("path", c.FullPath()),
				slog.String("error", err.Error()))
		}
		c.AbortWithStatusJSON(kind.status, gin.H{"error": msg, "code": kind.code})
		return
	}

	s.logger.Error("request failed",
		slog.String("method", c.Request.Method),
		slog.String("path", c.FullPath()),
		slog.String("caller_id", identity.CallerID(c)),
		slog.String("error", err.Error()))
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "code": "internal"})
}

// decodeJSON strictly decodes the request body into v. Unknown fields, which
// include every immutable field, are rejected.
func decodeJSON(c *gin.Context, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", service.ErrValidation, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return fmt.Errorf("%w: request body is required", service.ErrValidation)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", service.ErrValidation, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: unexpected data after JSON body", service.ErrValidation)
	}
	return nil
}
