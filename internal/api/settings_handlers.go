package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"homesense.dev/backend/internal/notify"
	"homesense.dev/backend/internal/store"
)

type createSettingsRequest struct {
	DeviceID             uint     `json:"device_id" binding:"required"`
	NotificationMethod   string   `json:"notification_method"`
	SMSEnabled           *bool    `json:"sms_enabled"`
	CallEnabled          *bool    `json:"call_enabled"`
	RepetitionDelay      *int     `json:"repetition_delay"`
	MaxOpenTime          *int     `json:"max_open_time"`
	GasThreshold         *float64 `json:"gas_threshold"`
	TemperatureThreshold *float64 `json:"temperature_threshold"`
}

func (s *Server) handleCreateSettings(c *gin.Context) {
	var req createSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "device_id is required")
		return
	}

	ctx := c.Request.Context()
	device, err := s.owner.Device(ctx, currentUser(c).ID, req.DeviceID)
	if err != nil {
		s.rejectOwnership(c, "device", err)
		return
	}

	method := req.NotificationMethod
	if method == "" {
		method = notify.DefaultNotificationMethod
	}
	if !store.ValidChannel(method) {
		s.writeError(c, fmt.Errorf("%w: unknown notification method %q", store.ErrInvalidInput, method))
		return
	}

	// At most one settings row per device; duplicates are a Conflict.
	var existing store.Setting
	err = s.db.WithContext(ctx).Where("device_id = ?", device.ID).First(&existing).Error
	if err == nil {
		s.writeError(c, fmt.Errorf("%w: settings already exist for device %d", store.ErrConflict, device.ID))
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.writeError(c, err)
		return
	}

	setting := store.Setting{
		DeviceID:             device.ID,
		NotificationMethod:   method,
		RepetitionDelay:      notify.DefaultRepetitionDelay,
		MaxOpenTime:          notify.DefaultMaxOpenTime,
		GasThreshold:         req.GasThreshold,
		TemperatureThreshold: req.TemperatureThreshold,
	}
	if req.SMSEnabled != nil {
		setting.SMSEnabled = *req.SMSEnabled
	}
	if req.CallEnabled != nil {
		setting.CallEnabled = *req.CallEnabled
	}
	if req.RepetitionDelay != nil && *req.RepetitionDelay > 0 {
		setting.RepetitionDelay = *req.RepetitionDelay
	}
	if req.MaxOpenTime != nil && *req.MaxOpenTime > 0 {
		setting.MaxOpenTime = *req.MaxOpenTime
	}

	if err := s.db.WithContext(ctx).Create(&setting).Error; err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, setting)
}

func (s *Server) handleListSettings(c *gin.Context) {
	var settings []store.Setting
	err := s.db.WithContext(c.Request.Context()).
		Joins("JOIN devices ON devices.id = settings.device_id").
		Where("devices.user_id = ?", currentUser(c).ID).
		Order("settings.id ASC").
		Preload("Device").
		Find(&settings).Error
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (s *Server) handleGetSettings(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		badRequest(c, "invalid settings id")
		return
	}

	setting, err := s.owner.Setting(c.Request.Context(), currentUser(c).ID, id)
	if err != nil {
		s.rejectOwnership(c, "setting", err)
		return
	}
	c.JSON(http.StatusOK, setting)
}

type updateSettingsRequest struct {
	NotificationMethod   *string  `json:"notification_method"`
	SMSEnabled           *bool    `json:"sms_enabled"`
	CallEnabled          *bool    `json:"call_enabled"`
	RepetitionDelay      *int     `json:"repetition_delay"`
	MaxOpenTime          *int     `json:"max_open_time"`
	GasThreshold         *float64 `json:"gas_threshold"`
	TemperatureThreshold *float64 `json:"temperature_threshold"`
}

func (s *Server) handleUpdateSettings(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		badRequest(c, "invalid settings id")
		return
	}

	var req updateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	ctx := c.Request.Context()
	setting, err := s.owner.Setting(ctx, currentUser(c).ID, id)
	if err != nil {
		s.rejectOwnership(c, "setting", err)
		return
	}

	updates := map[string]any{}
	if req.NotificationMethod != nil {
		if !store.ValidChannel(*req.NotificationMethod) {
			s.writeError(c, fmt.Errorf("%w: unknown notification method %q", store.ErrInvalidInput, *req.NotificationMethod))
			return
		}
		updates["notification_method"] = *req.NotificationMethod
	}
	if req.SMSEnabled != nil {
		updates["sms_enabled"] = *req.SMSEnabled
	}
	if req.CallEnabled != nil {
		updates["call_enabled"] = *req.CallEnabled
	}
	if req.RepetitionDelay != nil && *req.RepetitionDelay > 0 {
		updates["repetition_delay"] = *req.RepetitionDelay
	}
	if req.MaxOpenTime != nil && *req.MaxOpenTime > 0 {
		updates["max_open_time"] = *req.MaxOpenTime
	}
	if req.GasThreshold != nil {
		updates["gas_threshold"] = *req.GasThreshold
	}
	if req.TemperatureThreshold != nil {
		updates["temperature_threshold"] = *req.TemperatureThreshold
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&store.Setting{}).Where("id = ?", setting.ID).Updates(updates).Error; err != nil {
			s.writeError(c, err)
			return
		}
	}

	var updated store.Setting
	if err := s.db.WithContext(ctx).First(&updated, setting.ID).Error; err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleDeleteSettings(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		badRequest(c, "invalid settings id")
		return
	}

	ctx := c.Request.Context()
	setting, err := s.owner.Setting(ctx, currentUser(c).ID, id)
	if err != nil {
		s.rejectOwnership(c, "setting", err)
		return
	}

	if err := s.db.WithContext(ctx).Delete(&store.Setting{}, setting.ID).Error; err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "settings deleted"})
}
