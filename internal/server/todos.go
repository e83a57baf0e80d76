package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"collabtodo/internal/identity"
	"collabtodo/internal/models"
	"collabtodo/internal/service"
)

// handleListTodos fetches todos for a task.
func (s *Server) handleListTodos(c *gin.Context) {
	todos, err := s.svc.ListTodos(c.Request.Context(), identity.CallerID(c), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"todos": todos})
}

// handleCreateTodo inserts a new todo under a task.
func (s *Server) handleCreateTodo(c *gin.Context) {
	var req service.CreateTodoInput
	if err := decodeJSON(c, &req); err != nil {
		s.respondError(c, err)
		return
	}

	todo, err := s.svc.CreateTodo(c.Request.Context(), identity.CallerID(c), c.Param("id"), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"todo": todo})
}

// handleUpdateTodo updates allow-listed todo fields.
func (s *Server) handleUpdateTodo(c *gin.Context) {
	var patch models.TodoPatch
	if err := decodeJSON(c, &patch); err != nil {
		s.respondError(c, err)
		return
	}

	res, err := s.svc.UpdateTodo(c.Request.Context(), identity.CallerID(c), c.Param("id"), patch)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"todo": res.Todo, "task_status": res.TaskStatus})
}

func (s *Server) handleDeleteTodo(c *gin.Context) {
	if err := s.svc.DeleteTodo(c.Request.Context(), identity.CallerID(c), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}

// handleToggleTodo flips completion and returns the derived task status.
func (s *Server) handleToggleTodo(c *gin.Context) {
	res, err := s.svc.ToggleTodo(c.Request.Context(), identity.CallerID(c), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"todo": res.Todo, "task_status": res.TaskStatus})
}
