package database

import (
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/dailydiary/backend/internal/diary"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options describes the store to open and the owner seeded on first start.
type Options struct {
	Driver       string
	DSN          string
	DefaultOwner OwnerSeed
	Logger       *zap.Logger
}

// Open establishes a connection for the configured driver and performs schema migrations.
func Open(options Options) (*gorm.DB, error) {
	dsn := strings.TrimSpace(options.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(options.Driver)) {
	case DriverSQLite, "":
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", options.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		return nil, err
	}

	if dialector.Name() == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db, options.DefaultOwner, options.Logger); err != nil {
		return nil, err
	}

	if options.Logger != nil {
		options.Logger.Info("database initialized", zap.String("driver", dialector.Name()))
	}

	return db, nil
}

// Migrate creates the diary tables and applies pending data migrations.
func Migrate(db *gorm.DB, seed OwnerSeed, logger *zap.Logger) error {
	if err := db.AutoMigrate(&diary.Entry{}, &diary.Profile{}, &migrationRecord{}); err != nil {
		return err
	}
	return applyMigrations(db, seed, logger)
}
