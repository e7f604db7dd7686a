package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

type probe struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

func TestNewGormDB_SQLite(t *testing.T) {
	gormDB, err := NewGormDB(Config{DSN: filepath.Join(t.TempDir(), "probe.db"), LogLevel: logger.Silent})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(gormDB, &probe{}))

	require.NoError(t, gormDB.Create(&probe{Name: "a"}).Error)
	var count int64
	require.NoError(t, gormDB.Model(&probe{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestNewGormDB_Errors(t *testing.T) {
	_, err := NewGormDB(Config{Type: "oracle"})
	assert.ErrorContains(t, err, "unsupported DB_TYPE")

	_, err = NewGormDB(Config{Type: "mysql"})
	assert.ErrorContains(t, err, "DB_DSN is required")
}
