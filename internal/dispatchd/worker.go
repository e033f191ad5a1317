// Package dispatchd delivers recorded notifications. It consumes
// dispatch jobs from RabbitMQ and drives the channel gateways, keeping
// transport entirely off the API's synchronous path.
package dispatchd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"gorm.io/gorm"

	"homesense.dev/backend/internal/notify"
	"homesense.dev/backend/internal/store"
	"homesense.dev/backend/pkg/metrics"
	"homesense.dev/backend/pkg/mq"
)

// Worker consumes dispatch jobs and updates notification records with
// the delivery outcome.
type Worker struct {
	logger  *slog.Logger
	db      *gorm.DB
	queue   mq.ClientInterface
	metrics *metrics.DispatchMetrics // Optional metrics
	done    chan struct{}
}

// WorkerConfig holds the configuration for the Worker.
type WorkerConfig struct {
	Logger  *slog.Logger
	DB      *gorm.DB
	Queue   mq.ClientInterface
	Metrics *metrics.DispatchMetrics
}

// NewWorker creates a new Worker instance.
func NewWorker(cfg *WorkerConfig) (*Worker, error) {
	if cfg == nil {
		return nil, errors.New("worker config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.DB == nil {
		return nil, errors.New("database cannot be nil")
	}
	if cfg.Queue == nil {
		return nil, errors.New("queue cannot be nil")
	}

	return &Worker{
		logger:  cfg.Logger,
		db:      cfg.DB,
		queue:   cfg.Queue,
		metrics: cfg.Metrics,
		done:    make(chan struct{}),
	}, nil
}

// Start begins consuming dispatch jobs.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("starting dispatcher")

	deliveries, err := w.queue.Consume()
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	if w.metrics != nil {
		w.metrics.ActiveWorkers.Inc()
	}

	w.logger.Info("dispatcher started, waiting for jobs")

	go w.processJobs(ctx, deliveries)

	return nil
}

// Done is closed when the worker has stopped processing.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// processJobs drains the deliveries channel until shutdown.
func (w *Worker) processJobs(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer func() {
		if w.metrics != nil {
			w.metrics.ActiveWorkers.Dec()
		}
		close(w.done)
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("context canceled, stopping job processing")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("deliveries channel closed")
				return
			}
			w.handleDelivery(ctx, delivery)
		}
	}
}

// handleDelivery processes a single dispatch job.
func (w *Worker) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	var job notify.DispatchJob
	if err := json.Unmarshal(delivery.Body, &job); err != nil {
		w.logger.Error("failed to unmarshal dispatch job", "error", err)

		if w.metrics != nil {
			w.metrics.JobErrors.WithLabelValues("unmarshal").Inc()
		}

		// Malformed payloads are acknowledged to avoid reprocessing.
		if ackErr := delivery.Ack(false); ackErr != nil {
			w.logger.Error("failed to ack job", "error", ackErr)
		}
		return
	}

	start := time.Now()
	err := w.deliver(&job)
	if w.metrics != nil {
		w.metrics.ProcessingDuration.WithLabelValues(job.Channel).Observe(time.Since(start).Seconds())
	}

	status := store.NotificationStatusDelivered
	if err != nil {
		status = store.NotificationStatusFailed
		w.logger.Error("delivery failed",
			"notification_id", job.NotificationID,
			"channel", job.Channel,
			"error", err,
		)
	}

	if dbErr := w.db.WithContext(ctx).
		Model(&store.Notification{}).
		Where("id = ?", job.NotificationID).
		Update("status", status).Error; dbErr != nil {
		w.logger.Error("failed to update notification status",
			"notification_id", job.NotificationID,
			"error", dbErr,
		)

		if w.metrics != nil {
			w.metrics.JobErrors.WithLabelValues("db_update").Inc()
		}

		// Requeue so the status update is retried.
		if nackErr := delivery.Nack(false, true); nackErr != nil {
			w.logger.Error("failed to nack job", "error", nackErr)
		}
		return
	}

	if w.metrics != nil {
		w.metrics.JobsProcessed.WithLabelValues(job.Channel, status).Inc()
	}

	w.logger.Info("dispatch job processed",
		"notification_id", job.NotificationID,
		"channel", job.Channel,
		"status", status,
	)

	if ackErr := delivery.Ack(false); ackErr != nil {
		w.logger.Error("failed to ack job", "error", ackErr)
	}
}

// deliver hands the job to the channel gateway. Real email/SMS/call
// integrations plug in here; the built-in gateways only log.
func (w *Worker) deliver(job *notify.DispatchJob) error {
	switch job.Channel {
	case store.ChannelEmail, store.ChannelPush, store.ChannelSMS, store.ChannelCall:
		w.logger.Info("delivering notification",
			"notification_id", job.NotificationID,
			"channel", job.Channel,
			"user_id", job.UserID,
		)
		return nil
	default:
		return fmt.Errorf("unknown channel %q", job.Channel)
	}
}
