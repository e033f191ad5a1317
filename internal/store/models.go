// Package store provides the persistence layer: GORM models for the
// ownership tree (User > Device > Sensor > SensorReading > Alert >
// Notification, plus per-device Settings), database bootstrap, and the
// cascade-delete walks that keep the tree free of orphans.
package store

import (
	"time"
)

// Sensor types. Every device carries exactly one sensor of each type,
// created at provisioning time.
const (
	SensorTypeTemperature = "temperature"
	SensorTypeGas         = "gas"
	SensorTypeMagnetic    = "magnetic"
)

// Alert statuses. Active is the only non-terminal state.
const (
	AlertStatusActive     = "active"
	AlertStatusResolved   = "resolved"
	AlertStatusFalseAlarm = "false_alarm"
)

// Notification channels.
const (
	ChannelEmail = "email"
	ChannelPush  = "push"
	ChannelSMS   = "sms"
	ChannelCall  = "call"
)

// Notification statuses.
const (
	NotificationStatusSent      = "sent"
	NotificationStatusRead      = "read"
	NotificationStatusDelivered = "delivered"
	NotificationStatusFailed    = "failed"
)

// ValidChannel reports whether ch is a known notification channel.
func ValidChannel(ch string) bool {
	switch ch {
	case ChannelEmail, ChannelPush, ChannelSMS, ChannelCall:
		return true
	}
	return false
}

// User represents an account that owns devices.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"size:100" json:"name"`
	Email        string    `gorm:"size:100;uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	PhoneNumber  string    `gorm:"size:20" json:"phone_number"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for the User model.
func (User) TableName() string {
	return "users"
}

// Device represents a physical monitoring unit owned by a user.
// AccessKey is the opaque secret the unit itself uses to push readings;
// it is distinct from any user credential.
type Device struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	AccessKey string    `gorm:"size:64;uniqueIndex;not null" json:"access_key"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	Sensors   []Sensor  `gorm:"foreignKey:DeviceID" json:"sensors,omitempty"`
}

// TableName specifies the table name for the Device model.
func (Device) TableName() string {
	return "devices"
}

// Sensor belongs to a device. The three fixed sensors per device are
// provisioned together with the device; type never changes afterwards.
type Sensor struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	DeviceID  uint      `gorm:"index;not null" json:"device_id"`
	Type      string    `gorm:"size:20;not null" json:"type"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Unit      string    `gorm:"size:10" json:"unit"`
	Threshold *float64  `json:"threshold"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	Device    *Device   `gorm:"foreignKey:DeviceID" json:"device,omitempty"`
}

// TableName specifies the table name for the Sensor model.
func (Sensor) TableName() string {
	return "sensors"
}

// SensorReading is a single measurement. Immutable once created except
// for deletion; CreatedAt is server-assigned.
type SensorReading struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SensorID  uint      `gorm:"index;not null" json:"sensor_id"`
	Value     float64   `gorm:"not null" json:"value"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	Sensor    *Sensor   `gorm:"foreignKey:SensorID" json:"sensor,omitempty"`
}

// TableName specifies the table name for the SensorReading model.
func (SensorReading) TableName() string {
	return "sensor_readings"
}

// Alert is raised from a reading. DeviceID is denormalized from the
// reading's sensor at creation time for fast filtering and is never
// independently mutated.
type Alert struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	ReadingID  uint           `gorm:"index;not null" json:"reading_id"`
	DeviceID   uint           `gorm:"index;not null" json:"device_id"`
	Type       string         `gorm:"size:50" json:"type"`
	Status     string         `gorm:"size:20" json:"status"`
	Message    string         `gorm:"type:text" json:"message"`
	NotifiedAt *time.Time     `json:"notified_at"`
	ResolvedAt *time.Time     `json:"resolved_at"`
	Reading    *SensorReading `gorm:"foreignKey:ReadingID" json:"reading,omitempty"`
}

// TableName specifies the table name for the Alert model.
func (Alert) TableName() string {
	return "alerts"
}

// Terminal reports whether the alert is in a terminal status.
func (a *Alert) Terminal() bool {
	return a.Status == AlertStatusResolved || a.Status == AlertStatusFalseAlarm
}

// Notification records that a delivery on some channel was attempted
// for an alert. UserID denormalizes the owning user.
type Notification struct {
	ID      uint       `gorm:"primaryKey" json:"id"`
	AlertID uint       `gorm:"index;not null" json:"alert_id"`
	UserID  uint       `gorm:"index;not null" json:"user_id"`
	Channel string     `gorm:"size:20" json:"channel"`
	Status  string     `gorm:"size:20" json:"status"`
	SentAt  *time.Time `json:"sent_at"`
	Alert   *Alert     `gorm:"foreignKey:AlertID" json:"alert,omitempty"`
}

// TableName specifies the table name for the Notification model.
func (Notification) TableName() string {
	return "notifications"
}

// Setting holds per-device notification preferences. A device has at
// most one row; absence means defaults apply (see notify.DefaultSettings).
type Setting struct {
	ID                   uint     `gorm:"primaryKey" json:"id"`
	DeviceID             uint     `gorm:"index;not null" json:"device_id"`
	NotificationMethod   string   `gorm:"size:20;default:email" json:"notification_method"`
	SMSEnabled           bool     `gorm:"default:false" json:"sms_enabled"`
	CallEnabled          bool     `gorm:"default:false" json:"call_enabled"`
	RepetitionDelay      int      `gorm:"default:5" json:"repetition_delay"`
	MaxOpenTime          int      `gorm:"default:10" json:"max_open_time"`
	GasThreshold         *float64 `json:"gas_threshold"`
	TemperatureThreshold *float64 `json:"temperature_threshold"`
	Device               *Device  `gorm:"foreignKey:DeviceID" json:"device,omitempty"`
}

// TableName specifies the table name for the Setting model.
func (Setting) TableName() string {
	return "settings"
}
