package services

import (
	"context"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"

	taskDB "task-orchestration-service/internal/task-manager/db"
	"task-orchestration-service/internal/models"
)

var ErrTargetNotFound = errors.New("target not found")

// TargetProvider looks up the targets tasks run against.
type TargetProvider interface {
	GetTarget(ctx context.Context, id uint) (models.Target, error)
	ListActiveTargets(ctx context.Context) ([]models.Target, error)
}

// TargetStore is the gorm-backed TargetProvider.
type TargetStore struct {
	DB *gorm.DB
}

func NewTargetStore(db *gorm.DB) *TargetStore {
	return &TargetStore{DB: db}
}

func (s *TargetStore) GetTarget(ctx context.Context, id uint) (models.Target, error) {
	var row taskDB.Target
	if err := s.DB.WithContext(ctx).First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Target{}, errors.Wrapf(ErrTargetNotFound, "target %d", id)
		}
		return models.Target{}, errors.Wrapf(err, "load target %d", id)
	}
	return row.ToModel(), nil
}

func (s *TargetStore) ListActiveTargets(ctx context.Context) ([]models.Target, error) {
	var rows []taskDB.Target
	if err := s.DB.WithContext(ctx).Where("active = ?", true).Order("id").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "list active targets")
	}
	out := make([]models.Target, len(rows))
	for i, r := range rows {
		out[i] = r.ToModel()
	}
	return out, nil
}

// SaveTarget creates or updates a target row.
func (s *TargetStore) SaveTarget(ctx context.Context, t models.Target) (models.Target, error) {
	var row taskDB.Target
	if t.ID != 0 {
		if err := s.DB.WithContext(ctx).First(&row, t.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.Target{}, errors.Wrapf(ErrTargetNotFound, "target %d", t.ID)
			}
			return models.Target{}, errors.Wrapf(err, "load target %d", t.ID)
		}
	}
	row.Domain = t.Domain
	row.Name = t.Name
	row.Active = t.Active
	row.UserAgent = t.UserAgent
	row.CustomHeader = t.CustomHeader
	if err := s.DB.WithContext(ctx).Save(&row).Error; err != nil {
		return models.Target{}, errors.Wrap(err, "save target")
	}
	return row.ToModel(), nil
}

// DeleteTarget removes the target together with its activation overrides.
func (s *TargetStore) DeleteTarget(ctx context.Context, id uint) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("target_id = ?", id).Delete(&taskDB.TargetTaskOverride{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&taskDB.Target{}, id).Error
	})
	if err != nil {
		return errors.Wrapf(err, "delete target %d", id)
	}
	return nil
}
