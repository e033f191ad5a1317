package ownership_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"homesense.dev/backend/internal/ownership"
	"homesense.dev/backend/internal/store"
	"homesense.dev/backend/internal/store/storetest"
)

var _ = Describe("Resolver", func() {
	var (
		db       *gorm.DB
		resolver *ownership.Resolver
		ctx      context.Context

		owner    store.User
		stranger store.User
		device   store.Device
		sensor   store.Sensor
		reading  store.SensorReading
		alert    store.Alert
	)

	BeforeEach(func() {
		var err error
		db, err = storetest.Open()
		Expect(err).NotTo(HaveOccurred())

		resolver, err = ownership.NewResolver(db)
		Expect(err).NotTo(HaveOccurred())

		ctx = context.Background()

		owner = store.User{Name: "Owner", Email: "owner@example.com", PasswordHash: "x"}
		Expect(db.Create(&owner).Error).NotTo(HaveOccurred())
		stranger = store.User{Name: "Stranger", Email: "stranger@example.com", PasswordHash: "x"}
		Expect(db.Create(&stranger).Error).NotTo(HaveOccurred())

		device = store.Device{Name: "Kitchen", UserID: owner.ID, AccessKey: "key-1"}
		Expect(db.Create(&device).Error).NotTo(HaveOccurred())
		sensor = store.Sensor{DeviceID: device.ID, Type: store.SensorTypeGas, Name: "Gas", Unit: "PPM"}
		Expect(db.Create(&sensor).Error).NotTo(HaveOccurred())
		reading = store.SensorReading{SensorID: sensor.ID, Value: 60}
		Expect(db.Create(&reading).Error).NotTo(HaveOccurred())

		now := time.Now().UTC()
		alert = store.Alert{
			ReadingID:  reading.ID,
			DeviceID:   device.ID,
			Type:       store.SensorTypeGas,
			Status:     store.AlertStatusActive,
			NotifiedAt: &now,
		}
		Expect(db.Create(&alert).Error).NotTo(HaveOccurred())
	})

	Describe("NewResolver", func() {
		It("should return error when db is nil", func() {
			r, err := ownership.NewResolver(nil)
			Expect(err).To(HaveOccurred())
			Expect(r).To(BeNil())
		})
	})

	Describe("Device", func() {
		It("should return the device for its owner", func() {
			got, err := resolver.Device(ctx, owner.ID, device.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(device.ID))
			Expect(got.Name).To(Equal("Kitchen"))
		})

		It("should report another user's device as not found", func() {
			got, err := resolver.Device(ctx, stranger.ID, device.ID)
			Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())
			Expect(got).To(BeNil())
		})

		It("should report a missing device as not found", func() {
			_, err := resolver.Device(ctx, owner.ID, 9999)
			Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())
		})
	})

	Describe("DeviceByAccessKey", func() {
		It("should resolve the device holding the key", func() {
			got, err := resolver.DeviceByAccessKey(ctx, "key-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(device.ID))
		})

		It("should report an unknown key as not found", func() {
			_, err := resolver.DeviceByAccessKey(ctx, "nope")
			Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())
		})
	})

	Describe("Sensor", func() {
		It("should walk the chain to the owner", func() {
			got, err := resolver.Sensor(ctx, owner.ID, sensor.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(sensor.ID))
		})

		It("should hide the sensor from other users", func() {
			_, err := resolver.Sensor(ctx, stranger.ID, sensor.ID)
			Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())
		})
	})

	Describe("Reading", func() {
		It("should walk two joins to the owner", func() {
			got, err := resolver.Reading(ctx, owner.ID, reading.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Value).To(Equal(60.0))
		})

		It("should hide the reading from other users", func() {
			_, err := resolver.Reading(ctx, stranger.ID, reading.ID)
			Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())
		})
	})

	Describe("Alert", func() {
		It("should walk three joins to the owner", func() {
			got, err := resolver.Alert(ctx, owner.ID, alert.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(alert.ID))
		})

		It("should hide the alert from other users", func() {
			_, err := resolver.Alert(ctx, stranger.ID, alert.ID)
			Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())
		})
	})

	Describe("Notification", func() {
		It("should match on the denormalized user id", func() {
			n := store.Notification{AlertID: alert.ID, UserID: owner.ID, Channel: store.ChannelEmail}
			Expect(db.Create(&n).Error).NotTo(HaveOccurred())

			got, err := resolver.Notification(ctx, owner.ID, n.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(n.ID))

			_, err = resolver.Notification(ctx, stranger.ID, n.ID)
			Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())
		})
	})

	Describe("Setting", func() {
		It("should resolve through the device", func() {
			s := store.Setting{DeviceID: device.ID, NotificationMethod: store.ChannelEmail}
			Expect(db.Create(&s).Error).NotTo(HaveOccurred())

			got, err := resolver.Setting(ctx, owner.ID, s.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.DeviceID).To(Equal(device.ID))

			_, err = resolver.Setting(ctx, stranger.ID, s.ID)
			Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())
		})
	})

	Describe("OwnedReadingIDs", func() {
		It("should return the owner's reading ids", func() {
			ids, err := resolver.OwnedReadingIDs(ctx, owner.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(ConsistOf(reading.ID))
		})

		It("should return an empty set for a user without devices", func() {
			ids, err := resolver.OwnedReadingIDs(ctx, stranger.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(BeEmpty())
		})

		It("should return an empty set when devices have no readings", func() {
			empty := store.Device{Name: "Garage", UserID: stranger.ID, AccessKey: "key-2"}
			Expect(db.Create(&empty).Error).NotTo(HaveOccurred())

			ids, err := resolver.OwnedReadingIDs(ctx, stranger.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(BeEmpty())
		})
	})
})
