package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"github.com/mankindli/sub-gateway/internal/accesslog"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes the access-log SQLite connection and migrates its
// schema. The customer store is a separate YAML document; this database only
// holds the append-only public access records.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&accesslog.AccessRecord{}); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("access log database initialized", zap.String("path", path))
	}

	return db, nil
}
