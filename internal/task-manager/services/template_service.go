package services

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"task-orchestration-service/internal/logger"
	"task-orchestration-service/internal/models"
	taskDB "task-orchestration-service/internal/task-manager/db"
	"task-orchestration-service/pkg/validation"
)

var (
	ErrTemplateNotFound  = errors.New("task template not found")
	ErrInvalidInterval   = errors.New("interval must be positive for TARGET_BASED and GLOBAL templates")
	ErrInvalidDefinition = errors.New("invalid task template definition")
)

// TemplateDefinition is what a module supplies when it registers a template.
type TemplateDefinition struct {
	ModuleID        string
	UniqueKey       string
	Name            string
	Description     string
	Content         models.TaskContent
	IntervalSeconds int
	SchedulingType  models.SchedulingType
	Aggressive      bool
	ParamSchema     string
}

// TemplateUpdate carries operator changes. Nil fields are left alone.
type TemplateUpdate struct {
	Name            *string
	Description     *string
	Active          *bool
	IntervalSeconds *int
}

// ChangeHook is invoked after a template, its overrides or the target set
// changed. deleted is true when the template no longer exists.
type ChangeHook func(ctx context.Context, templateID uint, deleted bool)

// TemplateService owns the catalog of task templates and their per-target
// activation overrides.
type TemplateService struct {
	DB      *gorm.DB
	Targets TargetProvider

	log   *zap.SugaredLogger
	mu    sync.RWMutex
	hooks []ChangeHook
}

func NewTemplateService(db *gorm.DB, targets TargetProvider, log *zap.SugaredLogger) *TemplateService {
	return &TemplateService{DB: db, Targets: targets, log: logger.Component(log, "templates")}
}

// OnChange registers a hook fired after every successful mutation.
func (s *TemplateService) OnChange(h ChangeHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, h)
}

func (s *TemplateService) notify(ctx context.Context, templateID uint, deleted bool) {
	s.mu.RLock()
	hooks := append([]ChangeHook(nil), s.hooks...)
	s.mu.RUnlock()
	for _, h := range hooks {
		h(ctx, templateID, deleted)
	}
}

func validateDefinition(def TemplateDefinition) error {
	switch {
	case def.ModuleID == "" || def.UniqueKey == "":
		return errors.Wrap(ErrInvalidDefinition, "module id and unique key are required")
	case def.Name == "":
		return errors.Wrap(ErrInvalidDefinition, "name is required")
	case !def.SchedulingType.Valid():
		return errors.Wrapf(ErrInvalidDefinition, "unknown scheduling type %q", def.SchedulingType)
	case len(def.Content.Commands) == 0:
		return errors.Wrap(ErrInvalidDefinition, "content has no commands")
	}
	if def.SchedulingType != models.SchedulingCustom && def.IntervalSeconds <= 0 {
		return errors.Wrapf(ErrInvalidInterval, "got %d", def.IntervalSeconds)
	}
	if err := validation.ValidateSchema(def.ParamSchema); err != nil {
		return errors.Mark(errors.Wrap(err, "param schema"), ErrInvalidDefinition)
	}
	return nil
}

// UpsertTemplate creates or updates the template keyed by (ModuleID,
// UniqueKey). An interval an operator customized survives re-registration;
// otherwise the interval follows the module's new default. Activation is
// operator state and is never reset here.
func (s *TemplateService) UpsertTemplate(ctx context.Context, def TemplateDefinition) (taskDB.TaskTemplate, error) {
	if err := validateDefinition(def); err != nil {
		return taskDB.TaskTemplate{}, err
	}

	var tmpl taskDB.TaskTemplate
	created := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("module_id = ? AND unique_key = ?", def.ModuleID, def.UniqueKey).Limit(1).Find(&tmpl)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			created = true
			tmpl = taskDB.TaskTemplate{
				ModuleID:               def.ModuleID,
				UniqueKey:              def.UniqueKey,
				IntervalSeconds:        def.IntervalSeconds,
				DefaultIntervalSeconds: def.IntervalSeconds,
				Active:                 true,
			}
		} else if !tmpl.IntervalCustomized() {
			tmpl.IntervalSeconds = def.IntervalSeconds
		}
		tmpl.DefaultIntervalSeconds = def.IntervalSeconds
		tmpl.Name = def.Name
		tmpl.Description = def.Description
		tmpl.Content = def.Content.Clone()
		tmpl.SchedulingType = string(def.SchedulingType)
		tmpl.Aggressive = def.Aggressive
		tmpl.ParamSchema = def.ParamSchema
		return tx.Save(&tmpl).Error
	})
	if err != nil {
		return taskDB.TaskTemplate{}, errors.Wrapf(err, "upsert template %s/%s", def.ModuleID, def.UniqueKey)
	}

	s.log.Infow("Task template registered",
		logger.FieldTemplateID, tmpl.ID,
		"module_id", tmpl.ModuleID,
		"unique_key", tmpl.UniqueKey,
		"created", created,
		"interval_seconds", tmpl.IntervalSeconds,
		"interval_customized", tmpl.IntervalCustomized(),
	)
	s.notify(ctx, tmpl.ID, false)
	return tmpl, nil
}

func (s *TemplateService) GetTemplate(ctx context.Context, id uint) (taskDB.TaskTemplate, error) {
	var tmpl taskDB.TaskTemplate
	if err := s.DB.WithContext(ctx).First(&tmpl, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tmpl, errors.Wrapf(ErrTemplateNotFound, "template %d", id)
		}
		return tmpl, errors.Wrapf(err, "load template %d", id)
	}
	return tmpl, nil
}

func (s *TemplateService) GetTemplateByKey(ctx context.Context, moduleID, uniqueKey string) (taskDB.TaskTemplate, error) {
	var tmpl taskDB.TaskTemplate
	err := s.DB.WithContext(ctx).Where("module_id = ? AND unique_key = ?", moduleID, uniqueKey).First(&tmpl).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tmpl, errors.Wrapf(ErrTemplateNotFound, "template %s/%s", moduleID, uniqueKey)
		}
		return tmpl, errors.Wrapf(err, "load template %s/%s", moduleID, uniqueKey)
	}
	return tmpl, nil
}

func (s *TemplateService) ListTemplates(ctx context.Context) ([]taskDB.TaskTemplate, error) {
	var templates []taskDB.TaskTemplate
	if err := s.DB.WithContext(ctx).Order("id").Find(&templates).Error; err != nil {
		return nil, errors.Wrap(err, "list templates")
	}
	return templates, nil
}

// UpdateTemplate applies operator changes. Setting the interval marks it as
// customized so later module re-registrations keep it.
func (s *TemplateService) UpdateTemplate(ctx context.Context, id uint, upd TemplateUpdate) (taskDB.TaskTemplate, error) {
	tmpl, err := s.GetTemplate(ctx, id)
	if err != nil {
		return tmpl, err
	}
	if upd.IntervalSeconds != nil {
		if tmpl.Scheduling() != models.SchedulingCustom && *upd.IntervalSeconds <= 0 {
			return tmpl, errors.Wrapf(ErrInvalidInterval, "got %d", *upd.IntervalSeconds)
		}
		tmpl.IntervalSeconds = *upd.IntervalSeconds
	}
	if upd.Name != nil {
		tmpl.Name = *upd.Name
	}
	if upd.Description != nil {
		tmpl.Description = *upd.Description
	}
	if upd.Active != nil {
		tmpl.Active = *upd.Active
	}
	if err := s.DB.WithContext(ctx).Save(&tmpl).Error; err != nil {
		return tmpl, errors.Wrapf(err, "update template %d", id)
	}
	s.notify(ctx, tmpl.ID, false)
	return tmpl, nil
}

// DeleteTemplate removes a template and its overrides. Scheduled tasks are
// removed by the change hooks.
func (s *TemplateService) DeleteTemplate(ctx context.Context, id uint) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_template_id = ?", id).Delete(&taskDB.TargetTaskOverride{}).Error; err != nil {
			return err
		}
		res := tx.Unscoped().Delete(&taskDB.TaskTemplate{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errors.Wrapf(ErrTemplateNotFound, "template %d", id)
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "delete template %d", id)
	}
	s.log.Infow("Task template deleted", logger.FieldTemplateID, id)
	s.notify(ctx, id, true)
	return nil
}

// DeleteModuleTemplates removes every template owned by a module, as done
// when the module is unloaded.
func (s *TemplateService) DeleteModuleTemplates(ctx context.Context, moduleID string) (int, error) {
	var ids []uint
	if err := s.DB.WithContext(ctx).Model(&taskDB.TaskTemplate{}).Where("module_id = ?", moduleID).Pluck("id", &ids).Error; err != nil {
		return 0, errors.Wrapf(err, "list templates of module %s", moduleID)
	}
	for _, id := range ids {
		if err := s.DeleteTemplate(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

// SetTargetOverride creates or updates the activation override for one
// target and template.
func (s *TemplateService) SetTargetOverride(ctx context.Context, targetID, templateID uint, active bool) (taskDB.TargetTaskOverride, error) {
	if _, err := s.GetTemplate(ctx, templateID); err != nil {
		return taskDB.TargetTaskOverride{}, err
	}

	var ov taskDB.TargetTaskOverride
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("target_id = ? AND task_template_id = ?", targetID, templateID).Limit(1).Find(&ov)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			ov = taskDB.TargetTaskOverride{TargetID: targetID, TaskTemplateID: templateID}
		}
		ov.Active = active
		return tx.Save(&ov).Error
	})
	if err != nil {
		return ov, errors.Wrapf(err, "set override target=%d template=%d", targetID, templateID)
	}
	s.notify(ctx, templateID, false)
	return ov, nil
}

func (s *TemplateService) DeleteTargetOverride(ctx context.Context, targetID, templateID uint) error {
	err := s.DB.WithContext(ctx).
		Where("target_id = ? AND task_template_id = ?", targetID, templateID).
		Delete(&taskDB.TargetTaskOverride{}).Error
	if err != nil {
		return errors.Wrapf(err, "delete override target=%d template=%d", targetID, templateID)
	}
	s.notify(ctx, templateID, false)
	return nil
}

// GetTargetOverride returns the override for the pair, or nil when none exists.
func (s *TemplateService) GetTargetOverride(ctx context.Context, targetID, templateID uint) (*taskDB.TargetTaskOverride, error) {
	var ov taskDB.TargetTaskOverride
	res := s.DB.WithContext(ctx).Where("target_id = ? AND task_template_id = ?", targetID, templateID).Limit(1).Find(&ov)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "load override")
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &ov, nil
}

func (s *TemplateService) ListOverrides(ctx context.Context, templateID uint) ([]taskDB.TargetTaskOverride, error) {
	var out []taskDB.TargetTaskOverride
	if err := s.DB.WithContext(ctx).Where("task_template_id = ?", templateID).Order("target_id").Find(&out).Error; err != nil {
		return nil, errors.Wrapf(err, "list overrides of template %d", templateID)
	}
	return out, nil
}

// IsActiveForTarget resolves effective activation: an inactive template is
// inactive everywhere, otherwise an override wins over the template flag.
func (s *TemplateService) IsActiveForTarget(ctx context.Context, targetID, templateID uint) (bool, error) {
	tmpl, err := s.GetTemplate(ctx, templateID)
	if err != nil {
		return false, err
	}
	if !tmpl.Active {
		return false, nil
	}
	ov, err := s.GetTargetOverride(ctx, targetID, templateID)
	if err != nil {
		return false, err
	}
	if ov != nil {
		return ov.Active, nil
	}
	return tmpl.Active, nil
}

// GetTargetsForTask returns the active targets the template should run
// against: all active targets minus those with a disabling override.
func (s *TemplateService) GetTargetsForTask(ctx context.Context, templateID uint) ([]models.Target, error) {
	tmpl, err := s.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if !tmpl.Active {
		return nil, nil
	}
	targets, err := s.Targets.ListActiveTargets(ctx)
	if err != nil {
		return nil, err
	}
	overrides, err := s.ListOverrides(ctx, templateID)
	if err != nil {
		return nil, err
	}
	disabled := make(map[uint]bool, len(overrides))
	for _, ov := range overrides {
		if !ov.Active {
			disabled[ov.TargetID] = true
		}
	}

	out := make([]models.Target, 0, len(targets))
	for _, t := range targets {
		if !disabled[t.ID] {
			out = append(out, t)
		}
	}
	return out, nil
}

// NotifyTargetsChanged tells hooks that the target set changed, so every
// TARGET_BASED template is reconciled.
func (s *TemplateService) NotifyTargetsChanged(ctx context.Context) error {
	var ids []uint
	err := s.DB.WithContext(ctx).Model(&taskDB.TaskTemplate{}).
		Where("scheduling_type = ?", string(models.SchedulingTargetBased)).
		Order("id").Pluck("id", &ids).Error
	if err != nil {
		return errors.Wrap(err, "list target-based templates")
	}
	for _, id := range ids {
		s.notify(ctx, id, false)
	}
	s.log.Debugw("Targets changed", logger.FieldCount, len(ids))
	return nil
}
