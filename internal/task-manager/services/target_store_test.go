package services

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"task-orchestration-service/internal/models"
	taskDB "task-orchestration-service/internal/task-manager/db"
)

func overrideCount(t *testing.T, db *gorm.DB, targetID uint) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&taskDB.TargetTaskOverride{}).Where("target_id = ?", targetID).Count(&n).Error)
	return n
}

func TestDeleteTarget_RemovesOverrides(t *testing.T) {
	ctx := context.Background()
	svc, store := setupTemplateService(t)
	tmpl, err := svc.UpsertTemplate(ctx, simpleDefinition("ports", models.SchedulingTargetBased, 60))
	require.NoError(t, err)

	doomed := addTarget(t, store, "a.example.com", true)
	kept := addTarget(t, store, "b.example.com", true)
	_, err = svc.SetTargetOverride(ctx, doomed.ID, tmpl.ID, false)
	require.NoError(t, err)
	_, err = svc.SetTargetOverride(ctx, kept.ID, tmpl.ID, false)
	require.NoError(t, err)

	require.NoError(t, store.DeleteTarget(ctx, doomed.ID))

	_, err = store.GetTarget(ctx, doomed.ID)
	assert.True(t, errors.Is(err, ErrTargetNotFound))
	assert.Equal(t, int64(0), overrideCount(t, store.DB, doomed.ID))
	assert.Equal(t, int64(1), overrideCount(t, store.DB, kept.ID))

	ov, err := svc.GetTargetOverride(ctx, doomed.ID, tmpl.ID)
	require.NoError(t, err)
	assert.Nil(t, ov)
}
