// Package provision creates devices together with their fixed sensor
// set. A device and its three sensors persist atomically or not at
// all; a device without sensors must never be observable.
package provision

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"homesense.dev/backend/internal/ownership"
	"homesense.dev/backend/internal/store"
)

// defaultSensors is the fixed set every device is provisioned with.
var defaultSensors = []store.Sensor{
	{Name: "Temperature", Type: store.SensorTypeTemperature, Unit: "°C", Threshold: floatPtr(35.0)},
	{Name: "Gas", Type: store.SensorTypeGas, Unit: "PPM", Threshold: floatPtr(50.0)},
	{Name: "Magnetic", Type: store.SensorTypeMagnetic, Unit: "boolean", Threshold: floatPtr(1.0)},
}

func floatPtr(f float64) *float64 { return &f }

// NewAccessKey returns a fresh opaque device credential: 32 random
// bytes, hex encoded.
func NewAccessKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate access key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Provisioner creates and maintains devices.
type Provisioner struct {
	logger *slog.Logger
	db     *gorm.DB
	owner  *ownership.Resolver
}

// NewProvisioner creates a new Provisioner.
func NewProvisioner(logger *slog.Logger, db *gorm.DB) (*Provisioner, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if db == nil {
		return nil, errors.New("database cannot be nil")
	}

	owner, err := ownership.NewResolver(db)
	if err != nil {
		return nil, err
	}

	return &Provisioner{
		logger: logger,
		db:     db,
		owner:  owner,
	}, nil
}

// ProvisionDevice allocates a device under the user and creates its
// three sensors in a single transaction. Any failure rolls the device
// back.
func (p *Provisioner) ProvisionDevice(ctx context.Context, userID uint, name string) (*store.Device, error) {
	if name == "" || len(name) > 100 {
		return nil, fmt.Errorf("%w: device name must be 1-100 characters", store.ErrInvalidInput)
	}

	accessKey, err := NewAccessKey()
	if err != nil {
		return nil, err
	}

	device := store.Device{
		Name:      name,
		UserID:    userID,
		AccessKey: accessKey,
	}

	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&device).Error; err != nil {
			return fmt.Errorf("failed to create device: %w", err)
		}

		sensors := make([]store.Sensor, len(defaultSensors))
		for i, s := range defaultSensors {
			sensors[i] = s
			sensors[i].DeviceID = device.ID
		}

		if err := tx.Create(&sensors).Error; err != nil {
			return fmt.Errorf("failed to create sensors: %w", err)
		}

		device.Sensors = sensors
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info("device provisioned",
		"device_id", device.ID,
		"user_id", userID,
		"sensors", len(device.Sensors),
	)

	return &device, nil
}

// RotateAccessKey replaces the device's access key with a fresh one.
func (p *Provisioner) RotateAccessKey(ctx context.Context, userID, deviceID uint) (*store.Device, error) {
	device, err := p.owner.Device(ctx, userID, deviceID)
	if err != nil {
		return nil, err
	}

	accessKey, err := NewAccessKey()
	if err != nil {
		return nil, err
	}

	if err := p.db.WithContext(ctx).Model(&store.Device{}).Where("id = ?", device.ID).Update("access_key", accessKey).Error; err != nil {
		return nil, fmt.Errorf("failed to rotate access key for device %d: %w", device.ID, err)
	}

	device.AccessKey = accessKey

	p.logger.Info("device access key rotated", "device_id", device.ID)
	return device, nil
}
