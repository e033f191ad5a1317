package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"homesense.dev/backend/internal/notify"
	"homesense.dev/backend/internal/store"
	"homesense.dev/backend/internal/store/storetest"
	"homesense.dev/backend/pkg/mq/mock"
)

var _ = Describe("Policy", func() {
	var (
		logger *slog.Logger
		db     *gorm.DB
		queue  *mock.MockClient
		policy *notify.Policy
		ctx    context.Context

		owner   store.User
		device  store.Device
		sensor  store.Sensor
		reading store.SensorReading
		alert   store.Alert
	)

	BeforeEach(func() {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))

		var err error
		db, err = storetest.Open()
		Expect(err).NotTo(HaveOccurred())

		queue = &mock.MockClient{}
		policy, err = notify.NewPolicy(logger, db, queue)
		Expect(err).NotTo(HaveOccurred())

		ctx = context.Background()

		owner = store.User{Name: "Owner", Email: "owner@example.com", PasswordHash: "x"}
		Expect(db.Create(&owner).Error).NotTo(HaveOccurred())
		device = store.Device{Name: "Kitchen", UserID: owner.ID, AccessKey: "key-1"}
		Expect(db.Create(&device).Error).NotTo(HaveOccurred())
		sensor = store.Sensor{DeviceID: device.ID, Type: store.SensorTypeGas, Name: "Gas", Unit: "PPM"}
		Expect(db.Create(&sensor).Error).NotTo(HaveOccurred())
		reading = store.SensorReading{SensorID: sensor.ID, Value: 80}
		Expect(db.Create(&reading).Error).NotTo(HaveOccurred())

		now := time.Now().UTC()
		alert = store.Alert{
			ReadingID:  reading.ID,
			DeviceID:   device.ID,
			Type:       store.SensorTypeGas,
			Status:     store.AlertStatusActive,
			Message:    "gas high",
			NotifiedAt: &now,
		}
		Expect(db.Create(&alert).Error).NotTo(HaveOccurred())
	})

	Describe("EffectiveSettings", func() {
		It("should fall back to the defaults when the device has no row", func() {
			settings, err := policy.EffectiveSettings(ctx, device.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(settings.NotificationMethod).To(Equal(store.ChannelEmail))
			Expect(settings.SMSEnabled).To(BeFalse())
			Expect(settings.CallEnabled).To(BeFalse())
			Expect(settings.RepetitionDelay).To(Equal(notify.DefaultRepetitionDelay))
			Expect(settings.MaxOpenTime).To(Equal(notify.DefaultMaxOpenTime))
		})

		It("should return the stored row when present", func() {
			stored := store.Setting{DeviceID: device.ID, NotificationMethod: store.ChannelPush, RepetitionDelay: 30}
			Expect(db.Create(&stored).Error).NotTo(HaveOccurred())

			settings, err := policy.EffectiveSettings(ctx, device.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(settings.NotificationMethod).To(Equal(store.ChannelPush))
			Expect(settings.RepetitionDelay).To(Equal(30))
		})
	})

	Describe("Channels", func() {
		It("should return only the method by default", func() {
			Expect(notify.Channels(notify.DefaultSettings(device.ID))).To(Equal([]string{store.ChannelEmail}))
		})

		It("should append sms and call when enabled", func() {
			settings := &store.Setting{NotificationMethod: store.ChannelEmail, SMSEnabled: true, CallEnabled: true}
			Expect(notify.Channels(settings)).To(Equal([]string{store.ChannelEmail, store.ChannelSMS, store.ChannelCall}))
		})

		It("should not duplicate the method channel", func() {
			settings := &store.Setting{NotificationMethod: store.ChannelSMS, SMSEnabled: true}
			Expect(notify.Channels(settings)).To(Equal([]string{store.ChannelSMS}))
		})
	})

	Describe("Record", func() {
		It("should persist a sent notification with sent_at", func() {
			n, err := policy.Record(ctx, owner.ID, alert.ID, store.ChannelEmail, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(n.Status).To(Equal(store.NotificationStatusSent))
			Expect(n.SentAt).NotTo(BeNil())
			Expect(n.UserID).To(Equal(owner.ID))
		})

		It("should reject an unknown channel", func() {
			_, err := policy.Record(ctx, owner.ID, alert.ID, "pigeon", "")
			Expect(errors.Is(err, store.ErrInvalidInput)).To(BeTrue())
		})

		It("should hide another user's alert", func() {
			stranger := store.User{Name: "Stranger", Email: "s@example.com", PasswordHash: "x"}
			Expect(db.Create(&stranger).Error).NotTo(HaveOccurred())

			_, err := policy.Record(ctx, stranger.ID, alert.ID, store.ChannelEmail, "")
			Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())
		})
	})

	Describe("LastSentAt", func() {
		It("should return nil when nothing was sent", func() {
			last, err := policy.LastSentAt(ctx, alert.ID, store.ChannelEmail)
			Expect(err).NotTo(HaveOccurred())
			Expect(last).To(BeNil())
		})

		It("should return the most recent record for the channel", func() {
			_, err := policy.Record(ctx, owner.ID, alert.ID, store.ChannelEmail, "")
			Expect(err).NotTo(HaveOccurred())

			last, err := policy.LastSentAt(ctx, alert.ID, store.ChannelEmail)
			Expect(err).NotTo(HaveOccurred())
			Expect(last).NotTo(BeNil())

			other, err := policy.LastSentAt(ctx, alert.ID, store.ChannelSMS)
			Expect(err).NotTo(HaveOccurred())
			Expect(other).To(BeNil())
		})
	})

	Describe("ShouldSuppress", func() {
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		settings := &store.Setting{RepetitionDelay: 5}

		It("should never suppress the first notification", func() {
			Expect(notify.ShouldSuppress(nil, settings, now)).To(BeFalse())
		})

		It("should suppress inside the delay window", func() {
			last := now.Add(-2 * time.Minute)
			Expect(notify.ShouldSuppress(&last, settings, now)).To(BeTrue())
		})

		It("should allow once the window has passed", func() {
			last := now.Add(-5 * time.Minute)
			Expect(notify.ShouldSuppress(&last, settings, now)).To(BeFalse())
		})

		It("should apply the default delay when settings carry none", func() {
			last := now.Add(-3 * time.Minute)
			Expect(notify.ShouldSuppress(&last, &store.Setting{}, now)).To(BeTrue())
		})
	})

	Describe("IsOverdue", func() {
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		settings := &store.Setting{MaxOpenTime: 10}

		It("should report an alert open past the max open time", func() {
			notified := now.Add(-11 * time.Minute)
			a := &store.Alert{Status: store.AlertStatusActive, NotifiedAt: &notified}
			Expect(notify.IsOverdue(a, settings, now)).To(BeTrue())
		})

		It("should not report a fresh alert", func() {
			notified := now.Add(-5 * time.Minute)
			a := &store.Alert{Status: store.AlertStatusActive, NotifiedAt: &notified}
			Expect(notify.IsOverdue(a, settings, now)).To(BeFalse())
		})

		It("should never report a terminal alert", func() {
			notified := now.Add(-2 * time.Hour)
			a := &store.Alert{Status: store.AlertStatusResolved, NotifiedAt: &notified}
			Expect(notify.IsOverdue(a, settings, now)).To(BeFalse())
		})
	})

	Describe("Dispatch", func() {
		It("should enqueue a JSON job for the notification", func() {
			n, err := policy.Record(ctx, owner.ID, alert.ID, store.ChannelEmail, "")
			Expect(err).NotTo(HaveOccurred())

			Expect(policy.Dispatch(ctx, n, &alert)).To(Succeed())

			pushed := queue.Pushed()
			Expect(pushed).To(HaveLen(1))

			var job notify.DispatchJob
			Expect(json.Unmarshal(pushed[0], &job)).To(Succeed())
			Expect(job.NotificationID).To(Equal(n.ID))
			Expect(job.AlertID).To(Equal(alert.ID))
			Expect(job.Channel).To(Equal(store.ChannelEmail))
			Expect(job.Message).To(Equal("gas high"))
		})

		It("should surface queue failures", func() {
			queue.PushError = errors.New("broker down")

			n, err := policy.Record(ctx, owner.ID, alert.ID, store.ChannelEmail, "")
			Expect(err).NotTo(HaveOccurred())

			err = policy.Dispatch(ctx, n, &alert)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("broker down"))
		})

		It("should be a no-op without a queue", func() {
			recordOnly, err := notify.NewPolicy(logger, db, nil)
			Expect(err).NotTo(HaveOccurred())

			n, err := recordOnly.Record(ctx, owner.ID, alert.ID, store.ChannelEmail, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(recordOnly.Dispatch(ctx, n, &alert)).To(Succeed())
		})
	})

	Describe("MarkRead", func() {
		It("should flip the status to read", func() {
			n, err := policy.Record(ctx, owner.ID, alert.ID, store.ChannelEmail, "")
			Expect(err).NotTo(HaveOccurred())

			read, err := policy.MarkRead(ctx, owner.ID, n.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(read.Status).To(Equal(store.NotificationStatusRead))
		})
	})

	Describe("List", func() {
		It("should return the user's notifications newest first", func() {
			first, err := policy.Record(ctx, owner.ID, alert.ID, store.ChannelEmail, "")
			Expect(err).NotTo(HaveOccurred())
			second, err := policy.Record(ctx, owner.ID, alert.ID, store.ChannelSMS, "")
			Expect(err).NotTo(HaveOccurred())

			list, err := policy.List(ctx, owner.ID, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(2))
			Expect(list[0].ID).To(Equal(second.ID))
			Expect(list[1].ID).To(Equal(first.ID))
		})
	})

	Describe("Delete", func() {
		It("should remove the notification", func() {
			n, err := policy.Record(ctx, owner.ID, alert.ID, store.ChannelEmail, "")
			Expect(err).NotTo(HaveOccurred())

			Expect(policy.Delete(ctx, owner.ID, n.ID)).To(Succeed())

			_, err = policy.Get(ctx, owner.ID, n.ID)
			Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())
		})
	})
})
