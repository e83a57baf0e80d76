package identity

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const callerKey = "identity.caller"

// Middleware rejects requests without a valid bearer token and stores the
// caller id on the context. The token may also come from the token query
// parameter, which browsers need for websocket upgrades.
func Middleware(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, err := v.Verify(tokenFromRequest(c.Request))
		if err != nil {
			msg := "invalid token"
			switch {
			case errors.Is(err, ErrMissingToken):
				msg = "authentication required"
			case errors.Is(err, ErrExpiredToken):
				msg = "token has expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg, "code": "unauthorized"})
			return
		}
		c.Set(callerKey, caller)
		c.Next()
	}
}

// CallerID returns the verified caller for the request, or "".
func CallerID(c *gin.Context) string {
	return c.GetString(callerKey)
}

func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}
