package logger_test

import (
	"bytes"
	"encoding/json"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"homesense.dev/backend/pkg/logger"
)

var _ = Describe("Logger", func() {
	Describe("New", func() {
		Context("with default config", func() {
			It("should create a non-nil logger", func() {
				log := logger.New(logger.DefaultConfig())
				Expect(log).NotTo(BeNil())
			})
		})

		Context("with nil config", func() {
			It("should create a non-nil logger with defaults", func() {
				log := logger.New(nil)
				Expect(log).NotTo(BeNil())
			})
		})

		Context("with custom level", func() {
			It("should create a logger with the specified level", func() {
				cfg := &logger.Config{
					Level:  slog.LevelDebug,
					Output: &bytes.Buffer{},
				}
				log := logger.New(cfg)
				Expect(log).NotTo(BeNil())
			})
		})
	})

	Describe("NewDefault", func() {
		It("should create a non-nil logger with default settings", func() {
			log := logger.NewDefault()
			Expect(log).NotTo(BeNil())
		})
	})

	Describe("NewWithLevel", func() {
		DescribeTable("should create loggers with different levels",
			func(level slog.Level) {
				log := logger.NewWithLevel(level)
				Expect(log).NotTo(BeNil())
			},
			Entry("debug level", slog.LevelDebug),
			Entry("info level", slog.LevelInfo),
			Entry("warn level", slog.LevelWarn),
			Entry("error level", slog.LevelError),
		)
	})

	Describe("ParseLevel", func() {
		DescribeTable("should parse level strings correctly",
			func(input string, expected slog.Level) {
				level := logger.ParseLevel(input)
				Expect(level).To(Equal(expected))
			},
			Entry("debug", "debug", slog.LevelDebug),
			Entry("info", "info", slog.LevelInfo),
			Entry("warn", "warn", slog.LevelWarn),
			Entry("warning", "warning", slog.LevelWarn),
			Entry("error", "error", slog.LevelError),
			Entry("invalid defaults to info", "invalid", slog.LevelInfo),
			Entry("empty string defaults to info", "", slog.LevelInfo),
		)
	})

	Describe("ForComponent", func() {
		It("should tag every record with the component name", func() {
			buf := &bytes.Buffer{}
			log := logger.New(&logger.Config{Level: slog.LevelInfo, Output: buf})

			logger.ForComponent(log, "dispatcher").Info("hello")

			var record map[string]any
			Expect(json.Unmarshal(buf.Bytes(), &record)).To(Succeed())
			Expect(record["component"]).To(Equal("dispatcher"))
			Expect(record["msg"]).To(Equal("hello"))
		})
	})

	Describe("output format", func() {
		It("should emit JSON with level and message", func() {
			buf := &bytes.Buffer{}
			log := logger.New(&logger.Config{Level: slog.LevelInfo, Output: buf})

			log.Info("reading stored", "sensor_id", 7)

			var record map[string]any
			Expect(json.Unmarshal(buf.Bytes(), &record)).To(Succeed())
			Expect(record["level"]).To(Equal("INFO"))
			Expect(record["msg"]).To(Equal("reading stored"))
			Expect(record["sensor_id"]).To(Equal(float64(7)))
		})

		It("should drop records below the configured level", func() {
			buf := &bytes.Buffer{}
			log := logger.New(&logger.Config{Level: slog.LevelWarn, Output: buf})

			log.Info("quiet")
			Expect(buf.Len()).To(BeZero())
		})
	})
})
