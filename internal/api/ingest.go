package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"homesense.dev/backend/internal/alerts"
	"homesense.dev/backend/internal/notify"
	"homesense.dev/backend/internal/store"
)

const deviceKeyHeader = "X-Device-Key"

// AlertTypeThresholdExceeded is the alert type raised by the ingest
// path on a threshold breach.
const AlertTypeThresholdExceeded = "threshold_exceeded"

type ingestRequest struct {
	SensorType string   `json:"sensor_type" binding:"required"`
	Value      *float64 `json:"value" binding:"required"`
}

// handleIngest accepts a reading pushed by a physical device,
// authenticated by its access key. On a threshold breach it raises an
// alert (or reuses the open one for the same sensor type) and fans out
// notifications per the device's effective settings, honoring the
// repetition delay. Transport happens in the dispatcher worker; this
// handler only records and enqueues.
func (s *Server) handleIngest(c *gin.Context) {
	key := c.GetHeader(deviceKeyHeader)
	if key == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "authentication required"})
		return
	}

	ctx := c.Request.Context()
	device, err := s.owner.DeviceByAccessKey(ctx, key)
	if err != nil {
		if store.IsNotFound(err) {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid credentials"})
			return
		}
		s.writeError(c, err)
		return
	}

	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "sensor_type and value are required")
		return
	}

	var sensor store.Sensor
	err = s.db.WithContext(ctx).
		Where("device_id = ? AND type = ?", device.ID, req.SensorType).
		First(&sensor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.writeError(c, fmt.Errorf("%w: unknown sensor type %q", store.ErrInvalidInput, req.SensorType))
		return
	}
	if err != nil {
		s.writeError(c, err)
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
		s.metrics.ReadingsIngested.WithLabelValues(sensor.Type, "device").Inc()
	}

	settings, err := s.notify.EffectiveSettings(ctx, device.ID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	threshold := effectiveThreshold(&sensor, settings)
	if threshold == nil || !breached(sensor.Type, reading.Value, *threshold) {
		c.JSON(http.StatusCreated, gin.H{"reading": reading, "alert": nil})
		return
	}

	alert, created, err := s.alertForBreach(c, device, &sensor, &reading, *threshold)
	if err != nil {
		s.writeError(c, err)
		return
	}

	notified := s.fanOut(c, device, alert, settings)

	c.JSON(http.StatusCreated, gin.H{
		"reading":       reading,
		"alert":         alert,
		"alert_created": created,
		"notified":      notified,
	})
}

// alertForBreach reuses the open alert for the same device and type if
// one exists, so a flapping sensor does not pile up duplicates;
// otherwise it raises a fresh one.
func (s *Server) alertForBreach(c *gin.Context, device *store.Device, sensor *store.Sensor, reading *store.SensorReading, threshold float64) (*store.Alert, bool, error) {
	ctx := c.Request.Context()

	var open store.Alert
	err := s.db.WithContext(ctx).
		Where("device_id = ? AND type = ? AND status = ?", device.ID, AlertTypeThresholdExceeded, store.AlertStatusActive).
		Joins("JOIN sensor_readings ON sensor_readings.id = alerts.reading_id").
		Where("sensor_readings.sensor_id = ?", sensor.ID).
		Order("alerts.id DESC").
		First(&open).Error
	if err == nil {
		return &open, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	alert, err := s.alerts.Create(ctx, device.UserID, alerts.CreateParams{
		ReadingID: reading.ID,
		Type:      AlertTypeThresholdExceeded,
		Message:   fmt.Sprintf("%s reading %.2f exceeded threshold %.2f on %s", sensor.Name, reading.Value, threshold, device.Name),
	})
	if err != nil {
		return nil, false, err
	}

	if s.metrics != nil {
		s.metrics.AlertsCreated.WithLabelValues(alert.Type).Inc()
	}
	return alert, true, nil
}

// fanOut records and enqueues one notification per configured channel,
// skipping channels still inside the repetition delay window.
func (s *Server) fanOut(c *gin.Context, device *store.Device, alert *store.Alert, settings *store.Setting) []string {
	ctx := c.Request.Context()
	now := time.Now().UTC()

	var notified []string
	for _, channel := range notify.Channels(settings) {
		lastSent, err := s.notify.LastSentAt(ctx, alert.ID, channel)
		if err != nil {
			s.logger.Error("failed to query last notification", "error", err, "channel", channel)
			continue
		}

		if notify.ShouldSuppress(lastSent, settings, now) {
			if s.metrics != nil {
				s.metrics.SuppressedDispatch.WithLabelValues(channel).Inc()
			}
			s.logger.Debug("notification suppressed by repetition delay",
				"alert_id", alert.ID,
				"channel", channel,
			)
			continue
		}

		notification, err := s.notify.Record(ctx, device.UserID, alert.ID, channel, "")
		if err != nil {
			s.logger.Error("failed to record notification", "error", err, "channel", channel)
			continue
		}

		if s.metrics != nil {
			s.metrics.NotificationsSent.WithLabelValues(channel).Inc()
		}

		if err := s.notify.Dispatch(ctx, notification, alert); err != nil {
			s.logger.Error("failed to enqueue dispatch job", "error", err, "channel", channel)
		}

		notified = append(notified, channel)
	}
	return notified
}

// effectiveThreshold applies the settings override for gas and
// temperature sensors, falling back to the sensor's own threshold.
func effectiveThreshold(sensor *store.Sensor, settings *store.Setting) *float64 {
	switch sensor.Type {
	case store.SensorTypeGas:
		if settings.GasThreshold != nil {
			return settings.GasThreshold
		}
	case store.SensorTypeTemperature:
		if settings.TemperatureThreshold != nil {
			return settings.TemperatureThreshold
		}
	}
	return sensor.Threshold
}

// breached reports whether a value crosses the threshold. The magnetic
// sensor is boolean-valued, so reaching the threshold counts.
func breached(sensorType string, value, threshold float64) bool {
	if sensorType == store.SensorTypeMagnetic {
		return value >= threshold
	}
	return value > threshold
}
