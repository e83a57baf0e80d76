package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"collabtodo/internal/identity"
	"collabtodo/internal/models"
	"collabtodo/internal/service"
)

// handleListTasks lists tasks the caller owns or collaborates on.
func (s *Server) handleListTasks(c *gin.Context) {
	tasks, err := s.svc.ListMine(c.Request.Context(), identity.CallerID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"tasks": tasks})
}

func (s *Server) handleListPersonalTasks(c *gin.Context) {
	tasks, err := s.svc.ListPersonal(c.Request.Context(), identity.CallerID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"tasks": tasks})
}

func (s *Server) handleListSharedTasks(c *gin.Context) {
	tasks, err := s.svc.ListShared(c.Request.Context(), identity.CallerID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"tasks": tasks})
}

// handleCreateTask makes the caller the owner of a new task.
func (s *Server) handleCreateTask(c *gin.Context) {
	var req service.CreateTaskInput
	if err := decodeJSON(c, &req); err != nil {
		s.respondError(c, err)
		return
	}

	task, err := s.svc.CreateTask(c.Request.Context(), identity.CallerID(c), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"task": task})
}

func (s *Server) handleGetTask(c *gin.Context) {
	task, err := s.svc.GetTask(c.Request.Context(), identity.CallerID(c), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": task})
}

// handleUpdateTask updates allow-listed task fields.
func (s *Server) handleUpdateTask(c *gin.Context) {
	var patch models.TaskPatch
	if err := decodeJSON(c, &patch); err != nil {
		s.respondError(c, err)
		return
	}

	task, err := s.svc.UpdateTask(c.Request.Context(), identity.CallerID(c), c.Param("id"), patch)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": task})
}

// handleDeleteTask removes a task with its todos and collaborator links.
func (s *Server) handleDeleteTask(c *gin.Context) {
	if err := s.svc.DeleteTask(c.Request.Context(), identity.CallerID(c), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}

func (s *Server) handleCompleteTask(c *gin.Context) {
	task, err := s.svc.CompleteTask(c.Request.Context(), identity.CallerID(c), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": task})
}

// handleEnableSharing rotates the invite code and returns the invite link.
func (s *Server) handleEnableSharing(c *gin.Context) {
	shared, err := s.svc.EnableSharing(c.Request.Context(), identity.CallerID(c), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": shared.Task, "shareableLink": shared.ShareableLink})
}

func (s *Server) handleDisableSharing(c *gin.Context) {
	task, err := s.svc.DisableSharing(c.Request.Context(), identity.CallerID(c), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": task})
}

// handleAcceptInvitation joins the caller to a task using ?code=.
func (s *Server) handleAcceptInvitation(c *gin.Context) {
	task, err := s.svc.AcceptInvitation(c.Request.Context(), identity.CallerID(c), c.Param("id"), c.Query("code"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": task})
}
