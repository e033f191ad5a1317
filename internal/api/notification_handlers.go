package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"homesense.dev/backend/internal/notify"
)

type createNotificationRequest struct {
	AlertID uint   `json:"alert_id" binding:"required"`
	Channel string `json:"channel" binding:"required"`
	Status  string `json:"status"`
}

func (s *Server) handleCreateNotification(c *gin.Context) {
	var req createNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "alert_id and channel are required")
		return
	}

	notification, err := s.notify.Record(c.Request.Context(), currentUser(c).ID, req.AlertID, req.Channel, req.Status)
	if err != nil {
		s.rejectOwnership(c, "alert", err)
		return
	}

	if s.metrics != nil {
		s.metrics.NotificationsSent.WithLabelValues(notification.Channel).Inc()
	}

	c.JSON(http.StatusCreated, notification)
}

func (s *Server) handleListNotifications(c *gin.Context) {
	list, err := s.notify.List(c.Request.Context(), currentUser(c).ID, queryLimit(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) handleGetNotification(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		badRequest(c, "invalid notification id")
		return
	}

	notification, err := s.notify.Get(c.Request.Context(), currentUser(c).ID, id)
	if err != nil {
		s.rejectOwnership(c, "notification", err)
		return
	}
	c.JSON(http.StatusOK, notification)
}

type updateNotificationRequest struct {
	Channel *string `json:"channel"`
	Status  *string `json:"status"`
}

func (s *Server) handleUpdateNotification(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		badRequest(c, "invalid notification id")
		return
	}

	var req updateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	notification, err := s.notify.Update(c.Request.Context(), currentUser(c).ID, id, notify.UpdateParams{
		Channel: req.Channel,
		Status:  req.Status,
	})
	if err != nil {
		s.rejectOwnership(c, "notification", err)
		return
	}
	c.JSON(http.StatusOK, notification)
}

func (s *Server) handleMarkNotificationRead(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		badRequest(c, "invalid notification id")
		return
	}

	notification, err := s.notify.MarkRead(c.Request.Context(), currentUser(c).ID, id)
	if err != nil {
		s.rejectOwnership(c, "notification", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "notification marked as read", "notification": notification})
}

func (s *Server) handleDeleteNotification(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		badRequest(c, "invalid notification id")
		return
	}

	if err := s.notify.Delete(c.Request.Context(), currentUser(c).ID, id); err != nil {
		s.rejectOwnership(c, "notification", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "notification deleted"})
}
