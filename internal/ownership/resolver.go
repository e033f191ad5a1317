// Package ownership answers one question: does this entity belong,
// transitively, to this user? Ownership is proven by joining up the
// chain Reading -> Sensor -> Device -> User (or the shorter chains for
// entities closer to the root); it is re-evaluated from durable storage
// on every call, never cached, so concurrent deletes are always seen.
package ownership

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"homesense.dev/backend/internal/store"
)

// Resolver resolves entity ownership through chain joins.
type Resolver struct {
	db *gorm.DB
}

// NewResolver creates a new Resolver.
func NewResolver(db *gorm.DB) (*Resolver, error) {
	if db == nil {
		return nil, errors.New("database cannot be nil")
	}
	return &Resolver{db: db}, nil
}

// notFound translates record absence into the shared taxonomy. An
// entity that exists but belongs to another user surfaces exactly the
// same way; callers cannot tell the two apart.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return err
}

// Device returns the device if it belongs to the user.
func (r *Resolver) Device(ctx context.Context, userID, deviceID uint) (*store.Device, error) {
	var device store.Device
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", deviceID, userID).
		First(&device).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &device, nil
}

// DeviceByAccessKey returns the device that holds the given access key.
// This is the ingest path's credential; no user identity is involved.
func (r *Resolver) DeviceByAccessKey(ctx context.Context, accessKey string) (*store.Device, error) {
	var device store.Device
	err := r.db.WithContext(ctx).
		Where("access_key = ?", accessKey).
		First(&device).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &device, nil
}

// Sensor returns the sensor if its device belongs to the user.
func (r *Resolver) Sensor(ctx context.Context, userID, sensorID uint) (*store.Sensor, error) {
	var sensor store.Sensor
	err := r.db.WithContext(ctx).
		Joins("JOIN devices ON devices.id = sensors.device_id").
		Where("sensors.id = ? AND devices.user_id = ?", sensorID, userID).
		First(&sensor).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &sensor, nil
}

// Reading returns the reading if its sensor's device belongs to the user.
func (r *Resolver) Reading(ctx context.Context, userID, readingID uint) (*store.SensorReading, error) {
	var reading store.SensorReading
	err := r.db.WithContext(ctx).
		Joins("JOIN sensors ON sensors.id = sensor_readings.sensor_id").
		Joins("JOIN devices ON devices.id = sensors.device_id").
		Where("sensor_readings.id = ? AND devices.user_id = ?", readingID, userID).
		First(&reading).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &reading, nil
}

// Alert returns the alert if its reading's chain ends at the user.
func (r *Resolver) Alert(ctx context.Context, userID, alertID uint) (*store.Alert, error) {
	var alert store.Alert
	err := r.db.WithContext(ctx).
		Joins("JOIN sensor_readings ON sensor_readings.id = alerts.reading_id").
		Joins("JOIN sensors ON sensors.id = sensor_readings.sensor_id").
		Joins("JOIN devices ON devices.id = sensors.device_id").
		Where("alerts.id = ? AND devices.user_id = ?", alertID, userID).
		First(&alert).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &alert, nil
}

// Notification returns the notification if its denormalized user id
// matches.
func (r *Resolver) Notification(ctx context.Context, userID, notificationID uint) (*store.Notification, error) {
	var notification store.Notification
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		First(&notification).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &notification, nil
}

// Setting returns the settings row if its device belongs to the user.
func (r *Resolver) Setting(ctx context.Context, userID, settingID uint) (*store.Setting, error) {
	var setting store.Setting
	err := r.db.WithContext(ctx).
		Joins("JOIN devices ON devices.id = settings.device_id").
		Where("settings.id = ? AND devices.user_id = ?", settingID, userID).
		First(&setting).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &setting, nil
}

// OwnedReadingIDs returns the ids of every reading reachable from the
// user through Device -> Sensor -> Reading. A user with zero devices or
// zero sensors gets an empty set, not an error, so downstream queries
// can short-circuit.
func (r *Resolver) OwnedReadingIDs(ctx context.Context, userID uint) ([]uint, error) {
	db := r.db.WithContext(ctx)

	var deviceIDs []uint
	if err := db.Model(&store.Device{}).Where("user_id = ?", userID).Pluck("id", &deviceIDs).Error; err != nil {
		return nil, err
	}
	if len(deviceIDs) == 0 {
		return []uint{}, nil
	}

	var sensorIDs []uint
	if err := db.Model(&store.Sensor{}).Where("device_id IN ?", deviceIDs).Pluck("id", &sensorIDs).Error; err != nil {
		return nil, err
	}
	if len(sensorIDs) == 0 {
		return []uint{}, nil
	}

	var readingIDs []uint
	if err := db.Model(&store.SensorReading{}).Where("sensor_id IN ?", sensorIDs).Pluck("id", &readingIDs).Error; err != nil {
		return nil, err
	}
	if readingIDs == nil {
		readingIDs = []uint{}
	}
	return readingIDs, nil
}
