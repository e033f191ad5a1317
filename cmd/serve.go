package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"homesense.dev/backend/internal/api"
	"homesense.dev/backend/internal/store"
	"homesense.dev/backend/pkg/metrics"
	"homesense.dev/backend/pkg/mq"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Run the API server that:
- Serves the user-facing REST API with JWT authentication
- Accepts sensor readings pushed with a device access key
- Raises alerts on threshold breaches and records notifications
- Hands notification delivery off to RabbitMQ`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Serve-specific flags
	serveCmd.Flags().String("db-host", "localhost", "PostgreSQL host")
	serveCmd.Flags().Int("db-port", 5432, "PostgreSQL port")
	serveCmd.Flags().String("db-user", "postgres", "PostgreSQL user")
	serveCmd.Flags().String("db-password", "", "PostgreSQL password")
	serveCmd.Flags().String("db-name", "homesense", "PostgreSQL database name")
	serveCmd.Flags().String("db-sslmode", "disable", "PostgreSQL SSL mode")
	serveCmd.Flags().String("rabbitmq-url", "amqp://localhost:5672", "RabbitMQ URL")
	serveCmd.Flags().String("queue-name", "notification-dispatch", "RabbitMQ queue name for dispatch jobs")
	serveCmd.Flags().String("jwt-secret", "", "secret used to sign API tokens")
	serveCmd.Flags().Int("http-port", 8080, "HTTP server port")

	// Bind flags to viper
	_ = viper.BindPFlag("serve.db.host", serveCmd.Flags().Lookup("db-host"))
	_ = viper.BindPFlag("serve.db.port", serveCmd.Flags().Lookup("db-port"))
	_ = viper.BindPFlag("serve.db.user", serveCmd.Flags().Lookup("db-user"))
	_ = viper.BindPFlag("serve.db.password", serveCmd.Flags().Lookup("db-password"))
	_ = viper.BindPFlag("serve.db.name", serveCmd.Flags().Lookup("db-name"))
	_ = viper.BindPFlag("serve.db.sslmode", serveCmd.Flags().Lookup("db-sslmode"))
	_ = viper.BindPFlag("serve.rabbitmq.url", serveCmd.Flags().Lookup("rabbitmq-url"))
	_ = viper.BindPFlag("serve.rabbitmq.queue_name", serveCmd.Flags().Lookup("queue-name"))
	_ = viper.BindPFlag("serve.jwt.secret", serveCmd.Flags().Lookup("jwt-secret"))
	_ = viper.BindPFlag("serve.http.port", serveCmd.Flags().Lookup("http-port"))
}

func runServe(_ *cobra.Command, _ []string) error {
	logger := componentLogger("api")
	logger.Info("starting api service")

	db, err := store.NewDB(&store.DBConfig{
		Logger:   logger,
		Host:     viper.GetString("serve.db.host"),
		Port:     viper.GetInt("serve.db.port"),
		User:     viper.GetString("serve.db.user"),
		Password: viper.GetString("serve.db.password"),
		DBName:   viper.GetString("serve.db.name"),
		SSLMode:  viper.GetString("serve.db.sslmode"),
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return err
	}
	defer func() { _ = store.CloseDB(db, logger) }()

	queue := mq.New(
		viper.GetString("serve.rabbitmq.queue_name"),
		viper.GetString("serve.rabbitmq.url"),
		logger,
	)
	defer queue.Close()

	config := &api.ServerConfig{
		Logger:    logger,
		DB:        db,
		Queue:     queue,
		Metrics:   metrics.NewAPIMetrics("homesense"),
		JWTSecret: viper.GetString("serve.jwt.secret"),
		HTTPPort:  viper.GetInt("serve.http.port"),
	}

	server, err := api.NewServer(config)
	if err != nil {
		logger.Error("failed to create api server", "error", err)
		return err
	}

	logger.Info("api server configuration",
		"db_host", viper.GetString("serve.db.host"),
		"db_port", viper.GetInt("serve.db.port"),
		"db_name", viper.GetString("serve.db.name"),
		"rabbitmq_url", viper.GetString("serve.rabbitmq.url"),
		"dispatch_queue", viper.GetString("serve.rabbitmq.queue_name"),
		"http_port", viper.GetInt("serve.http.port"),
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("api server error", "error", err)
		return err
	}

	logger.Info("api server stopped")
	return nil
}
