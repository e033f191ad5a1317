// Package notify keeps notification records and decides dispatch
// policy: which channels an alert fans out to, whether a repeat is
// suppressed by the repetition delay, and when an active alert counts
// as overdue. Actual transport is not done here; recorded
// notifications are handed to RabbitMQ as dispatch jobs and delivered
// by the dispatcher worker.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"homesense.dev/backend/internal/ownership"
	"homesense.dev/backend/internal/store"
	"homesense.dev/backend/pkg/mq"
)

const (
	// DefaultListLimit applies when the caller does not supply a limit.
	DefaultListLimit = 50

	// MaxListLimit caps caller-supplied limits.
	MaxListLimit = 500
)

// Defaults used when a device has no settings row.
const (
	DefaultNotificationMethod = store.ChannelEmail
	DefaultRepetitionDelay    = 5  // minutes
	DefaultMaxOpenTime        = 10 // minutes
)

// DefaultSettings returns the settings applied to a device without a
// stored row: email only, sms and call disabled.
func DefaultSettings(deviceID uint) *store.Setting {
	return &store.Setting{
		DeviceID:           deviceID,
		NotificationMethod: DefaultNotificationMethod,
		SMSEnabled:         false,
		CallEnabled:        false,
		RepetitionDelay:    DefaultRepetitionDelay,
		MaxOpenTime:        DefaultMaxOpenTime,
	}
}

// DispatchJob is the JSON payload handed to the transport queue for
// one recorded notification.
type DispatchJob struct {
	NotificationID uint      `json:"notification_id"`
	AlertID        uint      `json:"alert_id"`
	UserID         uint      `json:"user_id"`
	Channel        string    `json:"channel"`
	Message        string    `json:"message"`
	QueuedAt       time.Time `json:"queued_at"`
}

// Policy records notifications and applies the dispatch rules.
type Policy struct {
	logger *slog.Logger
	db     *gorm.DB
	owner  *ownership.Resolver
	queue  mq.ClientInterface // nil means record-only, no transport handoff
}

// NewPolicy creates a new Policy. queue may be nil when no transport
// is configured; notifications are then recorded without a handoff.
func NewPolicy(logger *slog.Logger, db *gorm.DB, queue mq.ClientInterface) (*Policy, error) {
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

	return &Policy{
		logger: logger,
		db:     db,
		owner:  owner,
		queue:  queue,
	}, nil
}

// EffectiveSettings returns the device's stored settings, or the
// defaults when it has none.
func (p *Policy) EffectiveSettings(ctx context.Context, deviceID uint) (*store.Setting, error) {
	var setting store.Setting
	err := p.db.WithContext(ctx).Where("device_id = ?", deviceID).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DefaultSettings(deviceID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load settings for device %d: %w", deviceID, err)
	}
	return &setting, nil
}

// Channels returns the fan-out for the given settings: the configured
// method plus sms and call when enabled, without duplicates.
func Channels(settings *store.Setting) []string {
	method := settings.NotificationMethod
	if method == "" {
		method = DefaultNotificationMethod
	}

	out := []string{method}
	if settings.SMSEnabled && method != store.ChannelSMS {
		out = append(out, store.ChannelSMS)
	}
	if settings.CallEnabled && method != store.ChannelCall {
		out = append(out, store.ChannelCall)
	}
	return out
}

// Record persists a notification for an alert the user owns. Status
// defaults to "sent" and sent_at is the record time. Repetition
// suppression is deliberately NOT enforced here; callers that dispatch
// should consult LastSentAt/ShouldSuppress first.
func (p *Policy) Record(ctx context.Context, userID, alertID uint, channel, status string) (*store.Notification, error) {
	if !store.ValidChannel(channel) {
		return nil, fmt.Errorf("%w: unknown channel %q", store.ErrInvalidInput, channel)
	}

	alert, err := p.owner.Alert(ctx, userID, alertID)
	if err != nil {
		return nil, err
	}

	if status == "" {
		status = store.NotificationStatusSent
	}

	now := time.Now().UTC()
	notification := store.Notification{
		AlertID: alert.ID,
		UserID:  userID,
		Channel: channel,
		Status:  status,
		SentAt:  &now,
	}

	if err := p.db.WithContext(ctx).Create(&notification).Error; err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	p.logger.Info("notification recorded",
		"notification_id", notification.ID,
		"alert_id", alert.ID,
		"channel", channel,
	)

	return &notification, nil
}

// LastSentAt returns the sent_at of the most recent notification for
// the alert/channel pair, or nil when none exists.
func (p *Policy) LastSentAt(ctx context.Context, alertID uint, channel string) (*time.Time, error) {
	var notification store.Notification
	err := p.db.WithContext(ctx).
		Where("alert_id = ? AND channel = ?", alertID, channel).
		Order("id DESC").
		First(&notification).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last notification: %w", err)
	}
	return notification.SentAt, nil
}

// ShouldSuppress reports whether a new notification for the same
// alert/channel pair falls inside the repetition delay window.
func ShouldSuppress(lastSent *time.Time, settings *store.Setting, now time.Time) bool {
	if lastSent == nil {
		return false
	}
	delay := settings.RepetitionDelay
	if delay <= 0 {
		delay = DefaultRepetitionDelay
	}
	return now.Sub(*lastSent) < time.Duration(delay)*time.Minute
}

// IsOverdue reports whether an alert has remained active longer than
// the settings' max open time and is therefore eligible for
// escalation. Pure predicate; no scheduler runs here.
func IsOverdue(alert *store.Alert, settings *store.Setting, now time.Time) bool {
	if alert.Status != store.AlertStatusActive || alert.NotifiedAt == nil {
		return false
	}
	maxOpen := settings.MaxOpenTime
	if maxOpen <= 0 {
		maxOpen = DefaultMaxOpenTime
	}
	return now.Sub(*alert.NotifiedAt) > time.Duration(maxOpen)*time.Minute
}

// Dispatch hands a recorded notification to the transport queue. The
// send itself happens in the dispatcher worker; this call never blocks
// on an email/SMS/call gateway.
func (p *Policy) Dispatch(ctx context.Context, notification *store.Notification, alert *store.Alert) error {
	if p.queue == nil {
		p.logger.Debug("no transport queue configured, skipping dispatch",
			"notification_id", notification.ID)
		return nil
	}

	job := DispatchJob{
		NotificationID: notification.ID,
		AlertID:        alert.ID,
		UserID:         notification.UserID,
		Channel:        notification.Channel,
		Message:        alert.Message,
		QueuedAt:       time.Now().UTC(),
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch job: %w", err)
	}

	if err := p.queue.Push(ctx, data); err != nil {
		return fmt.Errorf("failed to enqueue dispatch job: %w", err)
	}

	p.logger.Info("dispatch job enqueued",
		"notification_id", notification.ID,
		"channel", notification.Channel,
	)
	return nil
}

// Get returns an owned notification with its alert chain populated.
func (p *Policy) Get(ctx context.Context, userID, notificationID uint) (*store.Notification, error) {
	notification, err := p.owner.Notification(ctx, userID, notificationID)
	if err != nil {
		return nil, err
	}

	var full store.Notification
	err = p.db.WithContext(ctx).
		Preload("Alert.Reading.Sensor.Device").
		First(&full, notification.ID).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load notification %d: %w", notification.ID, err)
	}
	return &full, nil
}

// List returns the user's notifications ordered by descending id with
// the alert chain populated.
func (p *Policy) List(ctx context.Context, userID uint, limit int) ([]store.Notification, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	var notifications []store.Notification
	err := p.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Preload("Alert.Reading.Sensor.Device").
		Find(&notifications).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}

// UpdateParams carries the mutable notification fields.
type UpdateParams struct {
	Channel *string
	Status  *string
}

// Update changes channel and/or status of an owned notification.
func (p *Policy) Update(ctx context.Context, userID, notificationID uint, params UpdateParams) (*store.Notification, error) {
	notification, err := p.owner.Notification(ctx, userID, notificationID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if params.Channel != nil {
		if !store.ValidChannel(*params.Channel) {
			return nil, fmt.Errorf("%w: unknown channel %q", store.ErrInvalidInput, *params.Channel)
		}
		updates["channel"] = *params.Channel
	}
	if params.Status != nil {
		updates["status"] = *params.Status
	}

	if len(updates) == 0 {
		return notification, nil
	}

	if err := p.db.WithContext(ctx).Model(&store.Notification{}).Where("id = ?", notification.ID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update notification %d: %w", notification.ID, err)
	}

	var updated store.Notification
	if err := p.db.WithContext(ctx).First(&updated, notification.ID).Error; err != nil {
		return nil, fmt.Errorf("failed to reload notification %d: %w", notification.ID, err)
	}
	return &updated, nil
}

// MarkRead sets the notification status to "read".
func (p *Policy) MarkRead(ctx context.Context, userID, notificationID uint) (*store.Notification, error) {
	status := store.NotificationStatusRead
	return p.Update(ctx, userID, notificationID, UpdateParams{Status: &status})
}

// Delete removes an owned notification. Notifications are leaves of
// the ownership tree, so nothing cascades below them.
func (p *Policy) Delete(ctx context.Context, userID, notificationID uint) error {
	notification, err := p.owner.Notification(ctx, userID, notificationID)
	if err != nil {
		return err
	}

	if err := p.db.WithContext(ctx).Delete(&store.Notification{}, notification.ID).Error; err != nil {
		return fmt.Errorf("failed to delete notification %d: %w", notification.ID, err)
	}

	p.logger.Info("notification deleted", "notification_id", notification.ID)
	return nil
}
