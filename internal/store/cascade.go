package store

import (
	"errors"

	"gorm.io/gorm"
)

// Cascade deletes walk the dependency chain bottom-up inside one
// transaction: notifications before alerts, alerts before readings,
// readings before sensors, sensors and settings before the device.
// The order matters; reversing it would leave orphaned rows.

// DeleteDeviceCascade removes a device together with its sensors,
// readings, alerts, notifications and settings.
func DeleteDeviceCascade(db *gorm.DB, deviceID uint) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var sensorIDs []uint
		if err := tx.Model(&Sensor{}).Where("device_id = ?", deviceID).Pluck("id", &sensorIDs).Error; err != nil {
			return err
		}

		// Alerts carry the denormalized device id, which by invariant
		// equals the id derived through the reading chain.
		var alertIDs []uint
		if err := tx.Model(&Alert{}).Where("device_id = ?", deviceID).Pluck("id", &alertIDs).Error; err != nil {
			return err
		}

		if len(alertIDs) > 0 {
			if err := tx.Where("alert_id IN ?", alertIDs).Delete(&Notification{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", alertIDs).Delete(&Alert{}).Error; err != nil {
				return err
			}
		}

		if len(sensorIDs) > 0 {
			if err := tx.Where("sensor_id IN ?", sensorIDs).Delete(&SensorReading{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", sensorIDs).Delete(&Sensor{}).Error; err != nil {
				return err
			}
		}

		if err := tx.Where("device_id = ?", deviceID).Delete(&Setting{}).Error; err != nil {
			return err
		}

		res := tx.Where("id = ?", deviceID).Delete(&Device{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// DeleteSensorCascade removes a sensor with its readings, their alerts
// and those alerts' notifications.
func DeleteSensorCascade(db *gorm.DB, sensorID uint) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var readingIDs []uint
		if err := tx.Model(&SensorReading{}).Where("sensor_id = ?", sensorID).Pluck("id", &readingIDs).Error; err != nil {
			return err
		}

		if len(readingIDs) > 0 {
			if err := deleteAlertsForReadings(tx, readingIDs); err != nil {
				return err
			}
			if err := tx.Where("id IN ?", readingIDs).Delete(&SensorReading{}).Error; err != nil {
				return err
			}
		}

		res := tx.Where("id = ?", sensorID).Delete(&Sensor{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// DeleteReadingCascade removes a reading with its alerts and their
// notifications.
func DeleteReadingCascade(db *gorm.DB, readingID uint) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := deleteAlertsForReadings(tx, []uint{readingID}); err != nil {
			return err
		}

		res := tx.Where("id = ?", readingID).Delete(&SensorReading{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// DeleteAlertCascade removes an alert with its notifications.
func DeleteAlertCascade(db *gorm.DB, alertID uint) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("alert_id = ?", alertID).Delete(&Notification{}).Error; err != nil {
			return err
		}

		res := tx.Where("id = ?", alertID).Delete(&Alert{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func deleteAlertsForReadings(tx *gorm.DB, readingIDs []uint) error {
	var alertIDs []uint
	if err := tx.Model(&Alert{}).Where("reading_id IN ?", readingIDs).Pluck("id", &alertIDs).Error; err != nil {
		return err
	}
	if len(alertIDs) == 0 {
		return nil
	}
	if err := tx.Where("alert_id IN ?", alertIDs).Delete(&Notification{}).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", alertIDs).Delete(&Alert{}).Error
}

// IsNotFound reports whether err is the record-absence case, either
// from this package's taxonomy or straight from GORM.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}
