package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"homesense.dev/backend/internal/store"
)

const (
	defaultReadingLimit = 100
	maxReadingLimit     = 500
)

type createReadingRequest struct {
	SensorID uint     `json:"sensor_id" binding:"required"`
	Value    *float64 `json:"value" binding:"required"`
}

func (s *Server) handleCreateReading(c *gin.Context) {
	var req createReadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "sensor_id and value are required")
		return
	}

	ctx := c.Request.Context()
	sensor, err := s.owner.Sensor(ctx, currentUser(c).ID, req.SensorID)
	if err != nil {
		s.rejectOwnership(c, "sensor", err)
		return
	}

	reading := store.SensorReading{
		SensorID: sensor.ID,
		Value:    *req.Value,
	}
	if err := s.db.WithContext(ctx).Create(&reading).Error; err != nil {
		s.writeError(c, err)
		return
	}

	if s.metrics != nil {
		s.metrics.ReadingsIngested.WithLabelValues(sensor.Type, "api").Inc()
	}

	c.JSON(http.StatusCreated, reading)
}

func (s *Server) handleListReadings(c *gin.Context) {
	ctx := c.Request.Context()

	readingIDs, err := s.owner.OwnedReadingIDs(ctx, currentUser(c).ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if len(readingIDs) == 0 {
		c.JSON(http.StatusOK, []store.SensorReading{})
		return
	}

	limit := queryLimit(c)
	if limit <= 0 {
		limit = defaultReadingLimit
	}
	if limit > maxReadingLimit {
		limit = maxReadingLimit
	}

	var readings []store.SensorReading
	err = s.db.WithContext(ctx).
		Where("id IN ?", readingIDs).
		Order("created_at DESC").
		Limit(limit).
		Preload("Sensor.Device").
		Find(&readings).Error
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, readings)
}

func (s *Server) handleSensorReadings(c *gin.Context) {
	sensorID, ok := pathID(c, "sensorId")
	if !ok {
		badRequest(c, "invalid sensor id")
		return
	}

	ctx := c.Request.Context()
	sensor, err := s.owner.Sensor(ctx, currentUser(c).ID, sensorID)
	if err != nil {
		s.rejectOwnership(c, "sensor", err)
		return
	}

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	limit := queryLimit(c)
	if limit <= 0 {
		limit = defaultReadingLimit
	}
	if limit > maxReadingLimit {
		limit = maxReadingLimit
	}

	var readings []store.SensorReading
	err = s.db.WithContext(ctx).
		Where("sensor_id = ?", sensor.ID).
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&readings).Error
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sensor_id": sensor.ID,
		"page":      page,
		"readings":  readings,
	})
}

func (s *Server) handleDeleteReading(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		badRequest(c, "invalid reading id")
		return
	}

	ctx := c.Request.Context()
	reading, err := s.owner.Reading(ctx, currentUser(c).ID, id)
	if err != nil {
		s.rejectOwnership(c, "reading", err)
		return
	}

	if err := store.DeleteReadingCascade(s.db.WithContext(ctx), reading.ID); err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "reading deleted"})
}
