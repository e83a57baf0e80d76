package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"collabtodo/internal/identity"
	"collabtodo/internal/metrics"
	"collabtodo/internal/realtime"
	"collabtodo/internal/service"
)

// Options holds optional server settings.
type Options struct {
	// StaticDir holds the built frontend. Empty means API only.
	StaticDir string
	// Webhooks verifies identity provider webhooks. When nil the webhook
	// endpoint is not mounted.
	Webhooks *identity.WebhookVerifier
}

// Server provides HTTP handlers for the collaborative task backend.
type Server struct {
	engine    *gin.Engine
	svc       *service.Service
	hub       *realtime.Hub
	auth      *identity.Verifier
	webhooks  *identity.WebhookVerifier
	logger    *slog.Logger
	staticDir string
}

// New constructs the HTTP server with routes and middleware configured.
func New(svc *service.Service, hub *realtime.Hub, auth *identity.Verifier, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(accessLog(logger, "/api/healthz", "/metrics"))
	router.Use(observeRequests())

	srv := &Server{
		engine:    router,
		svc:       svc,
		hub:       hub,
		auth:      auth,
		webhooks:  opts.Webhooks,
		logger:    logger,
		staticDir: opts.StaticDir,
	}

	srv.registerRoutes()
	return srv
}

// Engine exposes the underlying Gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// registerRoutes wires all API and static handlers together.
func (s *Server) registerRoutes() {
	s.engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := s.engine.Group("/api")
	{
		api.GET("/healthz", s.handleHealth)
		if s.webhooks != nil {
			api.POST("/webhooks/identity", s.handleIdentityWebhook)
		}

		authed := api.Group("", identity.Middleware(s.auth))
		{
			authed.GET("/ws", s.handleRealtime)

			tasks := authed.Group("/tasks")
			{
				tasks.GET("", s.handleListTasks)
				tasks.POST("", s.handleCreateTask)
				tasks.GET("/personal", s.handleListPersonalTasks)
				tasks.GET("/shared", s.handleListSharedTasks)
				tasks.GET("/:id", s.handleGetTask)
				tasks.PUT("/:id", s.handleUpdateTask)
				tasks.DELETE("/:id", s.handleDeleteTask)
				tasks.POST("/:id/complete", s.handleCompleteTask)
				tasks.POST("/:id/share/enable", s.handleEnableSharing)
				tasks.POST("/:id/share/disable", s.handleDisableSharing)
				tasks.POST("/:id/accept", s.handleAcceptInvitation)
				tasks.GET("/:id/todos", s.handleListTodos)
				tasks.POST("/:id/todos", s.handleCreateTodo)
			}

			todos := authed.Group("/todos")
			{
				todos.PUT("/:id", s.handleUpdateTodo)
				todos.DELETE("/:id", s.handleDeleteTodo)
				todos.PATCH("/:id/toggle", s.handleToggleTodo)
			}

			authed.GET("/users/:id", s.handleGetUser)
		}
	}

	s.mountStatic()
}

// handleHealth reports readiness, including store reachability.
func (s *Server) handleHealth(c *gin.Context) {
	if err := s.svc.Ping(c.Request.Context()); err != nil {
		s.logger.Warn("health check failed", slog.String("error", err.Error()))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// respondSuccess wraps a payload in a JSON envelope for consistency.
func respondSuccess(c *gin.Context, status int, payload any) {
	if payload == nil {
		c.Status(status)
		return
	}
	c.JSON(status, payload)
}

// accessLog logs one line per request through logger. Only the path is
// recorded since query strings carry bearer tokens and invite codes.
func accessLog(logger *slog.Logger, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		if _, ok := skipped[path]; ok {
			return
		}
		logger.Info("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", c.Writer.Status()),
			slog.Int64("latency_ms", time.Since(start).Milliseconds()),
			slog.String("client_ip", c.ClientIP()))
	}
}

// observeRequests records request counts and latency per route.
func observeRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
