package db

import (
	"log"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const DefaultSQLiteDSN = "tasks.db"

// Config selects the database. Type is "mysql" or "sqlite" (default).
type Config struct {
	Type     string
	DSN      string
	LogLevel logger.LogLevel
}

// NewGormDB opens the configured database.
func NewGormDB(cfg Config) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.Type {
	case "mysql":
		if cfg.DSN == "" {
			return nil, errors.New("DB_DSN is required for mysql")
		}
		dialector = mysql.Open(cfg.DSN)
	case "", "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = DefaultSQLiteDSN
		}
		dialector = sqlite.Open(dsn)
	default:
		return nil, errors.Newf("unsupported DB_TYPE %q", cfg.Type)
	}

	level := cfg.LogLevel
	if level == 0 {
		level = logger.Warn
	}
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{Logger: newLogger})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	return db, nil
}

// AutoMigrate performs auto-migration for the given GORM models.
func AutoMigrate(db *gorm.DB, models ...interface{}) error {
	if err := db.AutoMigrate(models...); err != nil {
		return errors.Wrap(err, "failed to auto-migrate database")
	}
	return nil
}
