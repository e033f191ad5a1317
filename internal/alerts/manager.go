// Package alerts implements the alert lifecycle: creation from owned
// readings, the active -> resolved / false_alarm state machine, and
// ownership-scoped listing and deletion.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"homesense.dev/backend/internal/ownership"
	"homesense.dev/backend/internal/store"
)

const (
	// DefaultListLimit applies when the caller does not supply a limit.
	DefaultListLimit = 50

	// MaxListLimit caps caller-supplied limits.
	MaxListLimit = 500
)

// Manager drives the alert state machine over the persistence layer.
type Manager struct {
	logger *slog.Logger
	db     *gorm.DB
	owner  *ownership.Resolver
}

// NewManager creates a new Manager.
func NewManager(logger *slog.Logger, db *gorm.DB) (*Manager, error) {
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

	return &Manager{
		logger: logger,
		db:     db,
		owner:  owner,
	}, nil
}

// CreateParams describes a new alert. Status is optional; the default
// path always starts active, an explicit terminal status is accepted
// for import scenarios.
type CreateParams struct {
	ReadingID uint
	Type      string
	Message   string
	Status    string
}

// validStatus reports whether s is a known alert status.
func validStatus(s string) bool {
	switch s {
	case store.AlertStatusActive, store.AlertStatusResolved, store.AlertStatusFalseAlarm:
		return true
	}
	return false
}

// Create raises an alert from a reading the user owns. The device id is
// derived from the reading's sensor and notified_at is set to the
// creation time. Dispatching notifications is the caller's concern.
func (m *Manager) Create(ctx context.Context, userID uint, p CreateParams) (*store.Alert, error) {
	status := p.Status
	if status == "" {
		status = store.AlertStatusActive
	}
	if !validStatus(status) {
		return nil, fmt.Errorf("%w: unknown alert status %q", store.ErrInvalidInput, p.Status)
	}

	reading, err := m.owner.Reading(ctx, userID, p.ReadingID)
	if err != nil {
		return nil, err
	}

	var sensor store.Sensor
	if err := m.db.WithContext(ctx).First(&sensor, reading.SensorID).Error; err != nil {
		return nil, fmt.Errorf("failed to load sensor %d: %w", reading.SensorID, err)
	}

	now := time.Now().UTC()
	alert := store.Alert{
		ReadingID:  reading.ID,
		DeviceID:   sensor.DeviceID,
		Type:       p.Type,
		Status:     status,
		Message:    p.Message,
		NotifiedAt: &now,
	}
	if alert.Terminal() {
		alert.ResolvedAt = &now
	}

	if err := m.db.WithContext(ctx).Create(&alert).Error; err != nil {
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}

	m.logger.Info("alert created",
		"alert_id", alert.ID,
		"reading_id", alert.ReadingID,
		"device_id", alert.DeviceID,
		"type", alert.Type,
		"status", alert.Status,
	)

	return &alert, nil
}

// Transition moves an alert to a terminal status. Only resolved and
// false_alarm are accepted. Re-transitioning an already-terminal alert
// is idempotent: the new status and a fresh resolved_at win, no error
// is raised. No lock is taken; concurrent resolutions race to
// last-write-wins at the storage layer.
func (m *Manager) Transition(ctx context.Context, userID, alertID uint, newStatus string) (*store.Alert, error) {
	if newStatus != store.AlertStatusResolved && newStatus != store.AlertStatusFalseAlarm {
		return nil, fmt.Errorf("%w: status must be %q or %q",
			store.ErrInvalidState, store.AlertStatusResolved, store.AlertStatusFalseAlarm)
	}

	alert, err := m.owner.Alert(ctx, userID, alertID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	updates := map[string]any{
		"status":      newStatus,
		"resolved_at": now,
	}
	if err := m.db.WithContext(ctx).Model(&store.Alert{}).Where("id = ?", alert.ID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to transition alert %d: %w", alert.ID, err)
	}

	alert.Status = newStatus
	alert.ResolvedAt = &now

	m.logger.Info("alert transitioned",
		"alert_id", alert.ID,
		"status", newStatus,
	)

	return alert, nil
}

// UpdateParams carries the mutable alert fields. Nil pointers leave the
// field untouched.
type UpdateParams struct {
	Type    *string
	Message *string
	Status  *string
}

// Update changes type, message and/or status of an owned alert. A
// terminal status sets resolved_at, an explicit active status clears it
// so that status and resolved_at never disagree.
func (m *Manager) Update(ctx context.Context, userID, alertID uint, p UpdateParams) (*store.Alert, error) {
	alert, err := m.owner.Alert(ctx, userID, alertID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if p.Type != nil {
		updates["type"] = *p.Type
	}
	if p.Message != nil {
		updates["message"] = *p.Message
	}
	if p.Status != nil {
		if !validStatus(*p.Status) {
			return nil, fmt.Errorf("%w: unknown alert status %q", store.ErrInvalidInput, *p.Status)
		}
		updates["status"] = *p.Status
		if *p.Status == store.AlertStatusActive {
			updates["resolved_at"] = nil
		} else {
			updates["resolved_at"] = time.Now().UTC()
		}
	}

	if len(updates) == 0 {
		return alert, nil
	}

	if err := m.db.WithContext(ctx).Model(&store.Alert{}).Where("id = ?", alert.ID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update alert %d: %w", alert.ID, err)
	}

	var updated store.Alert
	if err := m.db.WithContext(ctx).First(&updated, alert.ID).Error; err != nil {
		return nil, fmt.Errorf("failed to reload alert %d: %w", alert.ID, err)
	}
	return &updated, nil
}

// Get returns an owned alert with its reading chain populated.
func (m *Manager) Get(ctx context.Context, userID, alertID uint) (*store.Alert, error) {
	alert, err := m.owner.Alert(ctx, userID, alertID)
	if err != nil {
		return nil, err
	}

	var full store.Alert
	err = m.db.WithContext(ctx).
		Preload("Reading.Sensor.Device").
		First(&full, alert.ID).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load alert %d: %w", alert.ID, err)
	}
	return &full, nil
}

// List returns the user's alerts ordered by descending id, most recent
// creation first; ids are monotonically assigned so id order is a
// stable proxy for creation order. A user without readings gets an
// empty list and no alert query is issued.
func (m *Manager) List(ctx context.Context, userID uint, limit int) ([]store.Alert, error) {
	readingIDs, err := m.owner.OwnedReadingIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(readingIDs) == 0 {
		return []store.Alert{}, nil
	}

	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	var alerts []store.Alert
	err = m.db.WithContext(ctx).
		Where("reading_id IN ?", readingIDs).
		Order("id DESC").
		Limit(limit).
		Preload("Reading.Sensor.Device").
		Find(&alerts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}

// Delete hard-deletes an owned alert, cascading to its notifications.
func (m *Manager) Delete(ctx context.Context, userID, alertID uint) error {
	alert, err := m.owner.Alert(ctx, userID, alertID)
	if err != nil {
		return err
	}

	if err := store.DeleteAlertCascade(m.db.WithContext(ctx), alert.ID); err != nil {
		return fmt.Errorf("failed to delete alert %d: %w", alert.ID, err)
	}

	m.logger.Info("alert deleted", "alert_id", alert.ID)
	return nil
}
