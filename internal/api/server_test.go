package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"homesense.dev/backend/internal/api"
	"homesense.dev/backend/internal/notify"
	"homesense.dev/backend/internal/store"
	"homesense.dev/backend/internal/store/storetest"
	"homesense.dev/backend/pkg/mq/mock"
)

// doJSON drives one request through the router and decodes the JSON
// response into out when it is non-nil.
func doJSON(router *gin.Engine, method, path, token string, body any, out any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if out != nil && rec.Body.Len() > 0 {
		Expect(json.Unmarshal(rec.Body.Bytes(), out)).To(Succeed())
	}
	return rec
}

var _ = Describe("Server", func() {
	var (
		logger *slog.Logger
		db     *gorm.DB
		queue  *mock.MockClient
		router *gin.Engine
	)

	BeforeEach(func() {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))

		var err error
		db, err = storetest.Open()
		Expect(err).NotTo(HaveOccurred())

		queue = &mock.MockClient{}

		server, err := api.NewServer(&api.ServerConfig{
			Logger:    logger,
			DB:        db,
			Queue:     queue,
			JWTSecret: "test-secret",
			HTTPPort:  8080,
		})
		Expect(err).NotTo(HaveOccurred())

		router = server.Router()
	})

	register := func(email string) {
		rec := doJSON(router, http.MethodPost, "/api/auth/register", "", gin.H{
			"name":     "Tester",
			"email":    email,
			"password": "hunter2",
		}, nil)
		Expect(rec.Code).To(Equal(http.StatusCreated))
	}

	login := func(email string) string {
		var res struct {
			Token string `json:"token"`
		}
		rec := doJSON(router, http.MethodPost, "/api/auth/login", "", gin.H{
			"email":    email,
			"password": "hunter2",
		}, &res)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(res.Token).NotTo(BeEmpty())
		return res.Token
	}

	createDevice := func(token, name string) store.Device {
		var device store.Device
		rec := doJSON(router, http.MethodPost, "/api/devices", token, gin.H{"name": name}, &device)
		Expect(rec.Code).To(Equal(http.StatusCreated))
		Expect(device.Sensors).To(HaveLen(3))
		return device
	}

	Describe("NewServer", func() {
		It("should return error when config is nil", func() {
			s, err := api.NewServer(nil)
			Expect(err).To(HaveOccurred())
			Expect(s).To(BeNil())
		})

		It("should return error when the jwt secret is empty", func() {
			s, err := api.NewServer(&api.ServerConfig{Logger: logger, DB: db})
			Expect(err).To(HaveOccurred())
			Expect(s).To(BeNil())
		})
	})

	Describe("health and metrics", func() {
		It("should answer the health check", func() {
			rec := doJSON(router, http.MethodGet, "/healthz", "", nil, nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
		})
	})

	Describe("authentication", func() {
		It("should register, login and serve the profile", func() {
			register("ada@example.com")
			token := login("ada@example.com")

			var profile store.User
			rec := doJSON(router, http.MethodGet, "/api/auth/profile", token, nil, &profile)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(profile.Email).To(Equal("ada@example.com"))
		})

		It("should conflict on a duplicate email", func() {
			register("ada@example.com")
			rec := doJSON(router, http.MethodPost, "/api/auth/register", "", gin.H{
				"email":    "ada@example.com",
				"password": "other",
			}, nil)
			Expect(rec.Code).To(Equal(http.StatusConflict))
		})

		It("should reject protected routes without a token", func() {
			rec := doJSON(router, http.MethodGet, "/api/devices", "", nil, nil)
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})

		It("should answer 401 for wrong credentials without detail", func() {
			register("ada@example.com")
			var res map[string]any
			rec := doJSON(router, http.MethodPost, "/api/auth/login", "", gin.H{
				"email":    "ada@example.com",
				"password": "wrong",
			}, &res)
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			Expect(res["message"]).To(Equal("invalid credentials"))
		})
	})

	Describe("device lifecycle", func() {
		var token string

		BeforeEach(func() {
			register("ada@example.com")
			token = login("ada@example.com")
		})

		It("should provision a device with its three sensors and an access key", func() {
			device := createDevice(token, "Kitchen")
			Expect(device.Name).To(Equal("Kitchen"))
			Expect(device.AccessKey).To(HaveLen(64))
		})

		It("should list only the caller's devices", func() {
			createDevice(token, "Kitchen")

			register("bob@example.com")
			otherToken := login("bob@example.com")

			var devices []store.Device
			rec := doJSON(router, http.MethodGet, "/api/devices", otherToken, nil, &devices)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(devices).To(BeEmpty())
		})

		It("should answer 404 for another user's device", func() {
			device := createDevice(token, "Kitchen")

			register("bob@example.com")
			otherToken := login("bob@example.com")

			rec := doJSON(router, http.MethodGet, fmt.Sprintf("/api/devices/%d", device.ID), otherToken, nil, nil)
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})

		It("should regenerate the access key", func() {
			device := createDevice(token, "Kitchen")

			var rotated store.Device
			rec := doJSON(router, http.MethodPut, fmt.Sprintf("/api/devices/%d/regenerate-key", device.ID), token, nil, &rotated)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rotated.AccessKey).NotTo(Equal(device.AccessKey))
		})

		It("should delete the device and everything under it", func() {
			device := createDevice(token, "Kitchen")

			// Push one reading through ingest so the tree has depth.
			rec := doJSONWithDeviceKey(router, device.AccessKey, gin.H{
				"sensor_type": store.SensorTypeTemperature,
				"value":       40.0,
			})
			Expect(rec.Code).To(Equal(http.StatusCreated))

			rec = doJSON(router, http.MethodDelete, fmt.Sprintf("/api/devices/%d", device.ID), token, nil, nil)
			Expect(rec.Code).To(Equal(http.StatusOK))

			for _, model := range []any{
				&store.Device{}, &store.Sensor{}, &store.SensorReading{},
				&store.Alert{}, &store.Notification{}, &store.Setting{},
			} {
				var n int64
				Expect(db.Model(model).Count(&n).Error).NotTo(HaveOccurred())
				Expect(n).To(BeZero())
			}
		})
	})

	Describe("ingest", func() {
		var (
			token  string
			device store.Device
		)

		BeforeEach(func() {
			register("ada@example.com")
			token = login("ada@example.com")
			device = createDevice(token, "Kitchen")
		})

		It("should reject a missing device key", func() {
			rec := doJSONWithDeviceKey(router, "", gin.H{
				"sensor_type": store.SensorTypeTemperature,
				"value":       20.0,
			})
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})

		It("should reject an unknown device key", func() {
			rec := doJSONWithDeviceKey(router, "bogus", gin.H{
				"sensor_type": store.SensorTypeTemperature,
				"value":       20.0,
			})
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})

		It("should store a reading below the threshold without an alert", func() {
			var res struct {
				Alert *store.Alert `json:"alert"`
			}
			rec := doJSONWithDeviceKey(router, device.AccessKey, gin.H{
				"sensor_type": store.SensorTypeTemperature,
				"value":       20.0,
			})
			Expect(rec.Code).To(Equal(http.StatusCreated))
			Expect(json.Unmarshal(rec.Body.Bytes(), &res)).To(Succeed())
			Expect(res.Alert).To(BeNil())
			Expect(queue.Pushed()).To(BeEmpty())
		})

		It("should raise an alert, record a notification and enqueue a dispatch job on a breach", func() {
			var res struct {
				Alert    *store.Alert `json:"alert"`
				Created  bool         `json:"alert_created"`
				Notified []string     `json:"notified"`
			}
			rec := doJSONWithDeviceKey(router, device.AccessKey, gin.H{
				"sensor_type": store.SensorTypeTemperature,
				"value":       40.0,
			})
			Expect(rec.Code).To(Equal(http.StatusCreated))
			Expect(json.Unmarshal(rec.Body.Bytes(), &res)).To(Succeed())
			Expect(res.Alert).NotTo(BeNil())
			Expect(res.Alert.Status).To(Equal(store.AlertStatusActive))
			Expect(res.Created).To(BeTrue())
			Expect(res.Notified).To(Equal([]string{store.ChannelEmail}))

			pushed := queue.Pushed()
			Expect(pushed).To(HaveLen(1))
			var job notify.DispatchJob
			Expect(json.Unmarshal(pushed[0], &job)).To(Succeed())
			Expect(job.Channel).To(Equal(store.ChannelEmail))
		})

		It("should reuse the open alert and suppress the repeat notification", func() {
			first := doJSONWithDeviceKey(router, device.AccessKey, gin.H{
				"sensor_type": store.SensorTypeTemperature,
				"value":       40.0,
			})
			Expect(first.Code).To(Equal(http.StatusCreated))

			var res struct {
				Created  bool     `json:"alert_created"`
				Notified []string `json:"notified"`
			}
			second := doJSONWithDeviceKey(router, device.AccessKey, gin.H{
				"sensor_type": store.SensorTypeTemperature,
				"value":       41.0,
			})
			Expect(second.Code).To(Equal(http.StatusCreated))
			Expect(json.Unmarshal(second.Body.Bytes(), &res)).To(Succeed())
			Expect(res.Created).To(BeFalse())
			Expect(res.Notified).To(BeEmpty())

			var alertCount int64
			Expect(db.Model(&store.Alert{}).Count(&alertCount).Error).NotTo(HaveOccurred())
			Expect(alertCount).To(Equal(int64(1)))
			Expect(queue.Pushed()).To(HaveLen(1))
		})

		It("should treat a magnetic reading at the threshold as a breach", func() {
			var res struct {
				Alert *store.Alert `json:"alert"`
			}
			rec := doJSONWithDeviceKey(router, device.AccessKey, gin.H{
				"sensor_type": store.SensorTypeMagnetic,
				"value":       1.0,
			})
			Expect(rec.Code).To(Equal(http.StatusCreated))
			Expect(json.Unmarshal(rec.Body.Bytes(), &res)).To(Succeed())
			Expect(res.Alert).NotTo(BeNil())
		})

		It("should reject an unknown sensor type", func() {
			rec := doJSONWithDeviceKey(router, device.AccessKey, gin.H{
				"sensor_type": "humidity",
				"value":       50.0,
			})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("should honor the settings threshold override", func() {
			rec := doJSON(router, http.MethodPost, "/api/settings", token, gin.H{
				"device_id":             device.ID,
				"temperature_threshold": 25.0,
			}, nil)
			Expect(rec.Code).To(Equal(http.StatusCreated))

			var res struct {
				Alert *store.Alert `json:"alert"`
			}
			breach := doJSONWithDeviceKey(router, device.AccessKey, gin.H{
				"sensor_type": store.SensorTypeTemperature,
				"value":       30.0,
			})
			Expect(breach.Code).To(Equal(http.StatusCreated))
			Expect(json.Unmarshal(breach.Body.Bytes(), &res)).To(Succeed())
			Expect(res.Alert).NotTo(BeNil(), "30 exceeds the overridden threshold of 25")
		})
	})

	Describe("alert lifecycle over HTTP", func() {
		var (
			token  string
			device store.Device
			alert  store.Alert
		)

		BeforeEach(func() {
			register("ada@example.com")
			token = login("ada@example.com")
			device = createDevice(token, "Kitchen")

			var res struct {
				Alert *store.Alert `json:"alert"`
			}
			rec := doJSONWithDeviceKey(router, device.AccessKey, gin.H{
				"sensor_type": store.SensorTypeGas,
				"value":       80.0,
			})
			Expect(rec.Code).To(Equal(http.StatusCreated))
			Expect(json.Unmarshal(rec.Body.Bytes(), &res)).To(Succeed())
			Expect(res.Alert).NotTo(BeNil())
			alert = *res.Alert
		})

		It("should resolve an alert via PATCH", func() {
			var res struct {
				Alert store.Alert `json:"alert"`
			}
			rec := doJSON(router, http.MethodPatch, fmt.Sprintf("/api/alerts/%d/resolve", alert.ID), token,
				gin.H{"status": store.AlertStatusResolved}, &res)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(res.Alert.Status).To(Equal(store.AlertStatusResolved))
			Expect(res.Alert.ResolvedAt).NotTo(BeNil())
		})

		It("should reject resolving to an invalid status", func() {
			rec := doJSON(router, http.MethodPatch, fmt.Sprintf("/api/alerts/%d/resolve", alert.ID), token,
				gin.H{"status": "done"}, nil)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("should list alerts newest first", func() {
			var list []store.Alert
			rec := doJSON(router, http.MethodGet, "/api/alerts", token, nil, &list)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(list).To(HaveLen(1))
			Expect(list[0].ID).To(Equal(alert.ID))
		})

		It("should hide alerts from other users", func() {
			register("bob@example.com")
			otherToken := login("bob@example.com")

			rec := doJSON(router, http.MethodGet, fmt.Sprintf("/api/alerts/%d", alert.ID), otherToken, nil, nil)
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})

		It("should list the notifications recorded for the breach", func() {
			var list []store.Notification
			rec := doJSON(router, http.MethodGet, "/api/notifications", token, nil, &list)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(list).To(HaveLen(1))
			Expect(list[0].Channel).To(Equal(store.ChannelEmail))
			Expect(list[0].Status).To(Equal(store.NotificationStatusSent))
		})

		It("should mark a notification read", func() {
			var list []store.Notification
			doJSON(router, http.MethodGet, "/api/notifications", token, nil, &list)
			Expect(list).To(HaveLen(1))

			var res struct {
				Notification store.Notification `json:"notification"`
			}
			rec := doJSON(router, http.MethodPatch, fmt.Sprintf("/api/notifications/%d/read", list[0].ID), token, nil, &res)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(res.Notification.Status).To(Equal(store.NotificationStatusRead))
		})
	})

	Describe("settings", func() {
		var (
			token  string
			device store.Device
		)

		BeforeEach(func() {
			register("ada@example.com")
			token = login("ada@example.com")
			device = createDevice(token, "Kitchen")
		})

		It("should create settings with defaults applied", func() {
			var setting store.Setting
			rec := doJSON(router, http.MethodPost, "/api/settings", token, gin.H{
				"device_id": device.ID,
			}, &setting)
			Expect(rec.Code).To(Equal(http.StatusCreated))
			Expect(setting.NotificationMethod).To(Equal(store.ChannelEmail))
			Expect(setting.RepetitionDelay).To(Equal(notify.DefaultRepetitionDelay))
		})

		It("should conflict on a second settings row for the same device", func() {
			rec := doJSON(router, http.MethodPost, "/api/settings", token, gin.H{"device_id": device.ID}, nil)
			Expect(rec.Code).To(Equal(http.StatusCreated))

			rec = doJSON(router, http.MethodPost, "/api/settings", token, gin.H{"device_id": device.ID}, nil)
			Expect(rec.Code).To(Equal(http.StatusConflict))
		})

		It("should reject an unknown notification method", func() {
			rec := doJSON(router, http.MethodPost, "/api/settings", token, gin.H{
				"device_id":           device.ID,
				"notification_method": "pigeon",
			}, nil)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("should refuse settings for another user's device", func() {
			register("bob@example.com")
			otherToken := login("bob@example.com")

			rec := doJSON(router, http.MethodPost, "/api/settings", otherToken, gin.H{"device_id": device.ID}, nil)
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("readings", func() {
		var (
			token  string
			device store.Device
		)

		BeforeEach(func() {
			register("ada@example.com")
			token = login("ada@example.com")
			device = createDevice(token, "Kitchen")
		})

		It("should create a reading for an owned sensor", func() {
			var reading store.SensorReading
			rec := doJSON(router, http.MethodPost, "/api/readings", token, gin.H{
				"sensor_id": device.Sensors[0].ID,
				"value":     21.5,
			}, &reading)
			Expect(rec.Code).To(Equal(http.StatusCreated))
			Expect(reading.Value).To(Equal(21.5))
		})

		It("should refuse a sensor owned by another user", func() {
			register("bob@example.com")
			otherToken := login("bob@example.com")

			rec := doJSON(router, http.MethodPost, "/api/readings", otherToken, gin.H{
				"sensor_id": device.Sensors[0].ID,
				"value":     21.5,
			}, nil)
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})

		It("should page readings per sensor", func() {
			sensorID := device.Sensors[0].ID
			for i := 0; i < 7; i++ {
				rec := doJSON(router, http.MethodPost, "/api/readings", token, gin.H{
					"sensor_id": sensorID,
					"value":     float64(i),
				}, nil)
				Expect(rec.Code).To(Equal(http.StatusCreated))
			}

			var page struct {
				Page     int                   `json:"page"`
				Readings []store.SensorReading `json:"readings"`
			}
			rec := doJSON(router, http.MethodGet,
				fmt.Sprintf("/api/readings/sensor/%d?page=2&limit=3", sensorID), token, nil, &page)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(page.Page).To(Equal(2))
			Expect(page.Readings).To(HaveLen(3))
		})
	})
})

// doJSONWithDeviceKey posts to the ingest endpoint authenticated with
// the device access key instead of a user token.
func doJSONWithDeviceKey(router *gin.Engine, key string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())

	req := httptest.NewRequest(http.MethodPost, "/api/ingest", &buf)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-Device-Key", key)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}
