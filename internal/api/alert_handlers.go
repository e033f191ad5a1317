package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"homesense.dev/backend/internal/alerts"
)

type createAlertRequest struct {
	ReadingID uint   `json:"reading_id" binding:"required"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

func (s *Server) handleCreateAlert(c *gin.Context) {
	var req createAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "reading_id is required")
		return
	}

	alert, err := s.alerts.Create(c.Request.Context(), currentUser(c).ID, alerts.CreateParams{
		ReadingID: req.ReadingID,
		Type:      req.Type,
		Status:    req.Status,
		Message:   req.Message,
	})
	if err != nil {
		s.rejectOwnership(c, "reading", err)
		return
	}

	if s.metrics != nil {
		s.metrics.AlertsCreated.WithLabelValues(alert.Type).Inc()
	}

	c.JSON(http.StatusCreated, alert)
}

func (s *Server) handleListAlerts(c *gin.Context) {
	list, err := s.alerts.List(c.Request.Context(), currentUser(c).ID, queryLimit(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) handleGetAlert(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		badRequest(c, "invalid alert id")
		return
	}

	alert, err := s.alerts.Get(c.Request.Context(), currentUser(c).ID, id)
	if err != nil {
		s.rejectOwnership(c, "alert", err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

type updateAlertRequest struct {
	Type    *string `json:"type"`
	Message *string `json:"message"`
	Status  *string `json:"status"`
}

func (s *Server) handleUpdateAlert(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		badRequest(c, "invalid alert id")
		return
	}

	var req updateAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	alert, err := s.alerts.Update(c.Request.Context(), currentUser(c).ID, id, alerts.UpdateParams{
		Type:    req.Type,
		Message: req.Message,
		Status:  req.Status,
	})
	if err != nil {
		s.rejectOwnership(c, "alert", err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

type resolveAlertRequest struct {
	Status string `json:"status" binding:"required"`
}

func (s *Server) handleResolveAlert(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		badRequest(c, "invalid alert id")
		return
	}

	var req resolveAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "status is required")
		return
	}

	alert, err := s.alerts.Transition(c.Request.Context(), currentUser(c).ID, id, req.Status)
	if err != nil {
		s.rejectOwnership(c, "alert", err)
		return
	}

	if s.metrics != nil {
		s.metrics.AlertTransitions.WithLabelValues(alert.Status).Inc()
	}

	c.JSON(http.StatusOK, gin.H{"message": "alert " + alert.Status, "alert": alert})
}

func (s *Server) handleDeleteAlert(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		badRequest(c, "invalid alert id")
		return
	}

	if err := s.alerts.Delete(c.Request.Context(), currentUser(c).ID, id); err != nil {
		s.rejectOwnership(c, "alert", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "alert deleted"})
}
