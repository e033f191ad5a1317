package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"homesense.dev/backend/internal/store"
)

type createDeviceRequest struct {
	Name string `json:"name" binding:"required"`
}

func (s *Server) handleCreateDevice(c *gin.Context) {
	var req createDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name is required")
		return
	}

	user := currentUser(c)
	device, err := s.provisioner.ProvisionDevice(c.Request.Context(), user.ID, req.Name)
	if err != nil {
		if s.metrics != nil {
			s.metrics.ProvisioningErrors.Inc()
		}
		s.writeError(c, err)
		return
	}

	if s.metrics != nil {
		s.metrics.DevicesProvisioned.Inc()
	}

	c.JSON(http.StatusCreated, device)
}

func (s *Server) handleListDevices(c *gin.Context) {
	user := currentUser(c)

	var devices []store.Device
	err := s.db.WithContext(c.Request.Context()).
		Where("user_id = ?", user.ID).
		Order("created_at DESC").
		Find(&devices).Error
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, devices)
}

func (s *Server) handleGetDevice(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		badRequest(c, "invalid device id")
		return
	}

	device, err := s.owner.Device(c.Request.Context(), currentUser(c).ID, id)
	if err != nil {
		s.rejectOwnership(c, "device", err)
		return
	}

	c.JSON(http.StatusOK, device)
}

type updateDeviceRequest struct {
	Name string `json:"name" binding:"required"`
}

func (s *Server) handleUpdateDevice(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		badRequest(c, "invalid device id")
		return
	}

	var req updateDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name is required")
		return
	}

	ctx := c.Request.Context()
	device, err := s.owner.Device(ctx, currentUser(c).ID, id)
	if err != nil {
		s.rejectOwnership(c, "device", err)
		return
	}

	if err := s.db.WithContext(ctx).Model(&store.Device{}).Where("id = ?", device.ID).Update("name", req.Name).Error; err != nil {
		s.writeError(c, err)
		return
	}
	device.Name = req.Name

	c.JSON(http.StatusOK, device)
}

func (s *Server) handleDeleteDevice(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		badRequest(c, "invalid device id")
		return
	}

	ctx := c.Request.Context()
	device, err := s.owner.Device(ctx, currentUser(c).ID, id)
	if err != nil {
		s.rejectOwnership(c, "device", err)
		return
	}

	if err := store.DeleteDeviceCascade(s.db.WithContext(ctx), device.ID); err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "device deleted"})
}

func (s *Server) handleRegenerateKey(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		badRequest(c, "invalid device id")
		return
	}

	device, err := s.provisioner.RotateAccessKey(c.Request.Context(), currentUser(c).ID, id)
	if err != nil {
		s.rejectOwnership(c, "device", err)
		return
	}

	c.JSON(http.StatusOK, device)
}

func (s *Server) handleDeviceSensors(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		badRequest(c, "invalid device id")
		return
	}

	ctx := c.Request.Context()
	device, err := s.owner.Device(ctx, currentUser(c).ID, id)
	if err != nil {
		s.rejectOwnership(c, "device", err)
		return
	}

	var sensors []store.Sensor
	err = s.db.WithContext(ctx).
		Where("device_id = ?", device.ID).
		Order("created_at ASC").
		Find(&sensors).Error
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, sensors)
}

func (s *Server) handleDeviceSensorsStructured(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		badRequest(c, "invalid device id")
		return
	}

	ctx := c.Request.Context()
	device, err := s.owner.Device(ctx, currentUser(c).ID, id)
	if err != nil {
		s.rejectOwnership(c, "device", err)
		return
	}

	var sensors []store.Sensor
	if err := s.db.WithContext(ctx).Where("device_id = ?", device.ID).Find(&sensors).Error; err != nil {
		s.writeError(c, err)
		return
	}

	structured := gin.H{
		store.SensorTypeTemperature: nil,
		store.SensorTypeGas:         nil,
		store.SensorTypeMagnetic:    nil,
	}
	for i := range sensors {
		structured[sensors[i].Type] = sensors[i]
	}

	c.JSON(http.StatusOK, structured)
}

func (s *Server) handleDeviceSensorsWithReadings(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		badRequest(c, "invalid device id")
		return
	}

	ctx := c.Request.Context()
	device, err := s.owner.Device(ctx, currentUser(c).ID, id)
	if err != nil {
		s.rejectOwnership(c, "device", err)
		return
	}

	var sensors []store.Sensor
	if err := s.db.WithContext(ctx).Where("device_id = ?", device.ID).Find(&sensors).Error; err != nil {
		s.writeError(c, err)
		return
	}

	type sensorWithReadings struct {
		ID           uint                  `json:"id"`
		Type         string                `json:"type"`
		LastReadings []store.SensorReading `json:"last_readings"`
	}

	out := make([]sensorWithReadings, 0, len(sensors))
	for i := range sensors {
		var readings []store.SensorReading
		err := s.db.WithContext(ctx).
			Where("sensor_id = ?", sensors[i].ID).
			Order("created_at DESC").
			Limit(5).
			Find(&readings).Error
		if err != nil {
			s.writeError(c, err)
			return
		}
		out = append(out, sensorWithReadings{
			ID:           sensors[i].ID,
			Type:         sensors[i].Type,
			LastReadings: readings,
		})
	}

	c.JSON(http.StatusOK, gin.H{"device_id": device.ID, "sensors": out})
}

// rejectOwnership counts ownership rejections before writing the
// uniform not-found response.
func (s *Server) rejectOwnership(c *gin.Context, kind string, err error) {
	if s.metrics != nil && store.IsNotFound(err) {
		s.metrics.OwnershipRejections.WithLabelValues(kind).Inc()
	}
	s.writeError(c, err)
}
