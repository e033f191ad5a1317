package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"homesense.dev/backend/internal/dispatchd"
	"homesense.dev/backend/internal/store"
	"homesense.dev/backend/pkg/metrics"
	"homesense.dev/backend/pkg/mq"
)

var dispatcherCmd = &cobra.Command{
	Use:   "dispatcher",
	Short: "Run the notification dispatcher",
	Long: `Run the dispatcher worker that:
- Consumes notification dispatch jobs from RabbitMQ
- Hands each job to its channel gateway
- Records the delivery outcome on the notification`,
	RunE: runDispatcher,
}

func init() {
	rootCmd.AddCommand(dispatcherCmd)

	// Dispatcher-specific flags
	dispatcherCmd.Flags().String("db-host", "localhost", "PostgreSQL host")
	dispatcherCmd.Flags().Int("db-port", 5432, "PostgreSQL port")
	dispatcherCmd.Flags().String("db-user", "postgres", "PostgreSQL user")
	dispatcherCmd.Flags().String("db-password", "", "PostgreSQL password")
	dispatcherCmd.Flags().String("db-name", "homesense", "PostgreSQL database name")
	dispatcherCmd.Flags().String("db-sslmode", "disable", "PostgreSQL SSL mode")
	dispatcherCmd.Flags().String("rabbitmq-url", "amqp://localhost:5672", "RabbitMQ URL")
	dispatcherCmd.Flags().String("queue-name", "notification-dispatch", "RabbitMQ queue name for dispatch jobs")

	// Bind flags to viper
	_ = viper.BindPFlag("dispatcher.db.host", dispatcherCmd.Flags().Lookup("db-host"))
	_ = viper.BindPFlag("dispatcher.db.port", dispatcherCmd.Flags().Lookup("db-port"))
	_ = viper.BindPFlag("dispatcher.db.user", dispatcherCmd.Flags().Lookup("db-user"))
	_ = viper.BindPFlag("dispatcher.db.password", dispatcherCmd.Flags().Lookup("db-password"))
	_ = viper.BindPFlag("dispatcher.db.name", dispatcherCmd.Flags().Lookup("db-name"))
	_ = viper.BindPFlag("dispatcher.db.sslmode", dispatcherCmd.Flags().Lookup("db-sslmode"))
	_ = viper.BindPFlag("dispatcher.rabbitmq.url", dispatcherCmd.Flags().Lookup("rabbitmq-url"))
	_ = viper.BindPFlag("dispatcher.rabbitmq.queue_name", dispatcherCmd.Flags().Lookup("queue-name"))
}

func runDispatcher(_ *cobra.Command, _ []string) error {
	logger := componentLogger("dispatcher")
	logger.Info("starting dispatcher service")

	db, err := store.NewDB(&store.DBConfig{
		Logger:   logger,
		Host:     viper.GetString("dispatcher.db.host"),
		Port:     viper.GetInt("dispatcher.db.port"),
		User:     viper.GetString("dispatcher.db.user"),
		Password: viper.GetString("dispatcher.db.password"),
		DBName:   viper.GetString("dispatcher.db.name"),
		SSLMode:  viper.GetString("dispatcher.db.sslmode"),
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return err
	}
	defer func() { _ = store.CloseDB(db, logger) }()

	queue := mq.New(
		viper.GetString("dispatcher.rabbitmq.queue_name"),
		viper.GetString("dispatcher.rabbitmq.url"),
		logger,
	)
	defer queue.Close()

	worker, err := dispatchd.NewWorker(&dispatchd.WorkerConfig{
		Logger:  logger,
		DB:      db,
		Queue:   queue,
		Metrics: metrics.NewDispatchMetrics("homesense"),
	})
	if err != nil {
		logger.Error("failed to create dispatcher", "error", err)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Wait for the mq client connection to be established
	time.Sleep(2 * time.Second)

	if err := worker.Start(ctx); err != nil {
		logger.Error("failed to start dispatcher", "error", err)
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case <-worker.Done():
		logger.Warn("dispatcher stopped on its own")
	}

	<-worker.Done()
	logger.Info("dispatcher stopped")
	return nil
}
