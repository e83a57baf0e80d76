package server

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"collabtodo/internal/identity"
)

// handleRealtime upgrades to a websocket. Clients then join task topics
// they own or collaborate on.
func (s *Server) handleRealtime(c *gin.Context) {
	caller := identity.CallerID(c)
	if err := s.hub.ServeWS(c.Writer, c.Request, caller, s.svc.AuthorizeTopic); err != nil {
		s.logger.Warn("websocket upgrade failed",
			slog.String("caller_id", caller),
			slog.String("error", err.Error()))
	}
}
