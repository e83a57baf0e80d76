package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"collabtodo/internal/identity"
	"collabtodo/internal/service"
)

func (s *Server) handleGetUser(c *gin.Context) {
	user, err := s.svc.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"user": user})
}

// handleIdentityWebhook syncs the user directory from a signed provider
// event. The raw body is needed for signature verification.
func (s *Server) handleIdentityWebhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		s.respondError(c, fmt.Errorf("%w: read body: %v", service.ErrValidation, err))
		return
	}
	if err := s.webhooks.Verify(c.Request.Header, body); err != nil {
		s.logger.Warn("rejected identity webhook", slog.String("error", err.Error()))
		s.respondError(c, err)
		return
	}

	var ev identity.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		s.respondError(c, fmt.Errorf("%w: %v", service.ErrValidation, err))
		return
	}
	if err := s.svc.HandleIdentityEvent(c.Request.Context(), ev); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "ok"})
}
