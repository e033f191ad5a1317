package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"homesense.dev/backend/internal/store"
)

func (s *Server) handleGetSensor(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		badRequest(c, "invalid sensor id")
		return
	}

	sensor, err := s.owner.Sensor(c.Request.Context(), currentUser(c).ID, id)
	if err != nil {
		s.rejectOwnership(c, "sensor", err)
		return
	}

	c.JSON(http.StatusOK, sensor)
}

type updateSensorRequest struct {
	Name      *string  `json:"name"`
	Threshold *float64 `json:"threshold"`
}

// handleUpdateSensor changes a sensor's name or threshold. Type and
// unit are fixed at provisioning and not mutable here.
func (s *Server) handleUpdateSensor(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		badRequest(c, "invalid sensor id")
		return
	}

	var req updateSensorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	ctx := c.Request.Context()
	sensor, err := s.owner.Sensor(ctx, currentUser(c).ID, id)
	if err != nil {
		s.rejectOwnership(c, "sensor", err)
		return
	}

	updates := map[string]any{}
	if req.Name != nil {
		if *req.Name == "" || len(*req.Name) > 100 {
			badRequest(c, "sensor name must be 1-100 characters")
			return
		}
		updates["name"] = *req.Name
	}
	if req.Threshold != nil {
		updates["threshold"] = *req.Threshold
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&store.Sensor{}).Where("id = ?", sensor.ID).Updates(updates).Error; err != nil {
			s.writeError(c, err)
			return
		}
	}

	var updated store.Sensor
	if err := s.db.WithContext(ctx).First(&updated, sensor.ID).Error; err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, updated)
}
