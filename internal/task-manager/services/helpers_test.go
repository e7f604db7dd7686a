package services

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"task-orchestration-service/internal/models"
	taskDB "task-orchestration-service/internal/task-manager/db"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "services_test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, gormDB.AutoMigrate(taskDB.All()...))
	t.Cleanup(func() {
		if sqlDB, err := gormDB.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return gormDB
}

func setupTemplateService(t *testing.T) (*TemplateService, *TargetStore) {
	t.Helper()
	gormDB := setupTestDB(t)
	targets := NewTargetStore(gormDB)
	return NewTemplateService(gormDB, targets, zap.NewNop().Sugar()), targets
}

func addTarget(t *testing.T, store *TargetStore, domain string, active bool) models.Target {
	t.Helper()
	target, err := store.SaveTarget(context.Background(), models.Target{Domain: domain, Name: domain, Active: active})
	require.NoError(t, err)
	return target
}

func simpleDefinition(key string, scheduling models.SchedulingType, interval int) TemplateDefinition {
	return TemplateDefinition{
		ModuleID:        "recon",
		UniqueKey:       key,
		Name:            key,
		Content:         models.TaskContent{Commands: []string{"echo {{TARGET_DOMAIN}}"}},
		IntervalSeconds: interval,
		SchedulingType:  scheduling,
	}
}
