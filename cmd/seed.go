package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"homesense.dev/backend/internal/store"
	"homesense.dev/backend/pkg/seed"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Populate the database with demo data",
	Long: `Create demo users, provisioned devices, sensor history and
alerts. Every seeded account shares the same password so demos can log
in with any of the printed emails.`,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)

	// Seed-specific flags
	seedCmd.Flags().String("db-host", "localhost", "PostgreSQL host")
	seedCmd.Flags().Int("db-port", 5432, "PostgreSQL port")
	seedCmd.Flags().String("db-user", "postgres", "PostgreSQL user")
	seedCmd.Flags().String("db-password", "", "PostgreSQL password")
	seedCmd.Flags().String("db-name", "homesense", "PostgreSQL database name")
	seedCmd.Flags().String("db-sslmode", "disable", "PostgreSQL SSL mode")
	seedCmd.Flags().Int("users", 2, "number of demo users")
	seedCmd.Flags().Int("devices", 2, "devices per user")
	seedCmd.Flags().Int("hours", 24, "hours of reading history per sensor")
	seedCmd.Flags().String("password", "homesense-demo", "password for all demo accounts")

	// Bind flags to viper
	_ = viper.BindPFlag("seed.db.host", seedCmd.Flags().Lookup("db-host"))
	_ = viper.BindPFlag("seed.db.port", seedCmd.Flags().Lookup("db-port"))
	_ = viper.BindPFlag("seed.db.user", seedCmd.Flags().Lookup("db-user"))
	_ = viper.BindPFlag("seed.db.password", seedCmd.Flags().Lookup("db-password"))
	_ = viper.BindPFlag("seed.db.name", seedCmd.Flags().Lookup("db-name"))
	_ = viper.BindPFlag("seed.db.sslmode", seedCmd.Flags().Lookup("db-sslmode"))
	_ = viper.BindPFlag("seed.users", seedCmd.Flags().Lookup("users"))
	_ = viper.BindPFlag("seed.devices", seedCmd.Flags().Lookup("devices"))
	_ = viper.BindPFlag("seed.hours", seedCmd.Flags().Lookup("hours"))
	_ = viper.BindPFlag("seed.password", seedCmd.Flags().Lookup("password"))
}

func runSeed(_ *cobra.Command, _ []string) error {
	logger := componentLogger("seed")
	logger.Info("seeding demo data")

	db, err := store.NewDB(&store.DBConfig{
		Logger:   logger,
		Host:     viper.GetString("seed.db.host"),
		Port:     viper.GetInt("seed.db.port"),
		User:     viper.GetString("seed.db.user"),
		Password: viper.GetString("seed.db.password"),
		DBName:   viper.GetString("seed.db.name"),
		SSLMode:  viper.GetString("seed.db.sslmode"),
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return err
	}
	defer func() { _ = store.CloseDB(db, logger) }()

	seeder := seed.New(logger, db)
	if err := seeder.Run(context.Background(), seed.Config{
		Users:          viper.GetInt("seed.users"),
		DevicesPerUser: viper.GetInt("seed.devices"),
		ReadingHours:   viper.GetInt("seed.hours"),
		Password:       viper.GetString("seed.password"),
	}); err != nil {
		logger.Error("seeding failed", "error", err)
		return err
	}

	logger.Info("seeding complete")
	return nil
}
