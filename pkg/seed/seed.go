// Package seed populates a database with demo accounts, devices and
// sensor history for local development and demos.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"gorm.io/gorm"

	"homesense.dev/backend/internal/auth"
	"homesense.dev/backend/internal/provision"
	"homesense.dev/backend/internal/store"
)

// Config controls how much demo data the seeder creates.
type Config struct {
	Users          int
	DevicesPerUser int
	ReadingHours   int // Hours of history per sensor
	Password       string
}

// Seeder writes demo data using the same provisioning and alert paths
// the API uses, so seeded rows obey the ownership chain.
type Seeder struct {
	logger *slog.Logger
	db     *gorm.DB
}

// New creates a Seeder.
func New(logger *slog.Logger, db *gorm.DB) *Seeder {
	return &Seeder{logger: logger, db: db}
}

// Run generates the configured number of users, each with provisioned
// devices, reading history and any alerts the history triggered.
func (s *Seeder) Run(ctx context.Context, cfg Config) error {
	if cfg.Users <= 0 {
		cfg.Users = 2
	}
	if cfg.DevicesPerUser <= 0 {
		cfg.DevicesPerUser = 2
	}
	if cfg.ReadingHours <= 0 {
		cfg.ReadingHours = 24
	}
	if cfg.Password == "" {
		cfg.Password = "homesense-demo"
	}

	hash, err := auth.HashPassword(cfg.Password)
	if err != nil {
		return fmt.Errorf("failed to hash demo password: %w", err)
	}

	provisioner, err := provision.NewProvisioner(s.logger, s.db)
	if err != nil {
		return fmt.Errorf("failed to create provisioner: %w", err)
	}

	for i := 0; i < cfg.Users; i++ {
		user := store.User{
			Name:         gofakeit.Name(),
			Email:        gofakeit.Email(),
			PasswordHash: hash,
			PhoneNumber:  gofakeit.Phone(),
		}
		if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
			return fmt.Errorf("failed to create demo user: %w", err)
		}

		s.logger.Info("seeded user", "email", user.Email, "password", cfg.Password)

		for j := 0; j < cfg.DevicesPerUser; j++ {
			name := fmt.Sprintf("%s %s", gofakeit.RandomString(roomNames), gofakeit.PetName())
			device, err := provisioner.ProvisionDevice(ctx, user.ID, name)
			if err != nil {
				return fmt.Errorf("failed to provision demo device: %w", err)
			}

			if err := s.seedHistory(ctx, device, cfg.ReadingHours); err != nil {
				return err
			}
		}
	}

	return nil
}

var roomNames = []string{"Kitchen", "Garage", "Living Room", "Basement", "Bedroom", "Office"}

// seedHistory writes hourly readings for each of the device's sensors
// and records alerts for the readings that breach thresholds.
func (s *Seeder) seedHistory(ctx context.Context, device *store.Device, hours int) error {
	var sensors []store.Sensor
	if err := s.db.WithContext(ctx).Where("device_id = ?", device.ID).Find(&sensors).Error; err != nil {
		return fmt.Errorf("failed to load sensors: %w", err)
	}

	start := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	for _, sensor := range sensors {
		gen := newSignal(sensor.Type)

		for h := 0; h < hours; h++ {
			at := start.Add(time.Duration(h) * time.Hour)
			value := gen.at(at)

			reading := store.SensorReading{
				SensorID:  sensor.ID,
				Value:     value,
				CreatedAt: at,
			}
			if err := s.db.WithContext(ctx).Create(&reading).Error; err != nil {
				return fmt.Errorf("failed to create demo reading: %w", err)
			}

			if sensor.Threshold != nil && value > *sensor.Threshold {
				notified := at
				alert := store.Alert{
					ReadingID:  reading.ID,
					DeviceID:   device.ID,
					Type:       sensor.Type,
					Message:    fmt.Sprintf("%s reading %.2f exceeded threshold %.2f", sensor.Type, value, *sensor.Threshold),
					Status:     store.AlertStatusActive,
					NotifiedAt: &notified,
				}
				// Most seeded alerts are already handled.
				if rand.Float64() < 0.8 {
					alert.Status = store.AlertStatusResolved
					resolved := at.Add(time.Duration(5+rand.Intn(55)) * time.Minute)
					alert.ResolvedAt = &resolved
				}
				if err := s.db.WithContext(ctx).Create(&alert).Error; err != nil {
					return fmt.Errorf("failed to create demo alert: %w", err)
				}
			}
		}
	}

	s.logger.Info("seeded device history",
		"device", device.Name,
		"sensors", len(sensors),
		"hours", hours,
	)

	return nil
}

// signal produces plausible hourly values for one sensor type.
type signal struct {
	sensorType string
	baseline   float64
	noise      float64
}

func newSignal(sensorType string) *signal {
	switch sensorType {
	case store.SensorTypeTemperature:
		return &signal{sensorType: sensorType, baseline: 20 + rand.Float64()*8, noise: 2}
	case store.SensorTypeGas:
		return &signal{sensorType: sensorType, baseline: 10 + rand.Float64()*20, noise: 5}
	default:
		return &signal{sensorType: sensorType, baseline: 0, noise: 0}
	}
}

// at returns the signal value for the given time.
func (g *signal) at(t time.Time) float64 {
	if g.sensorType == store.SensorTypeMagnetic {
		// Door/window contact: mostly closed, occasionally open.
		if rand.Float64() < 0.1 {
			return 1
		}
		return 0
	}

	hour := float64(t.Hour())

	// Daily cycle (peak mid-afternoon)
	dailyCycle := 3 * math.Sin((hour-6)*math.Pi/12)

	// Random noise
	noise := (rand.Float64() - 0.5) * g.noise

	// Occasional anomalies (5% chance)
	anomaly := 0.0
	if rand.Float64() < 0.05 {
		anomaly = rand.Float64() * g.noise * 10
	}

	value := g.baseline + dailyCycle + noise + anomaly
	return math.Round(value*100) / 100
}
