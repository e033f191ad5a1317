// Package storetest opens throwaway in-memory databases for unit
// tests. Production code connects through store.NewDB instead.
package storetest

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"homesense.dev/backend/internal/store"
)

// Open returns a migrated in-memory SQLite database. Each call gets an
// isolated database; the single-connection pool keeps it alive for the
// lifetime of the handle.
func Open() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open test database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := store.Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}
