package db

import (
	"time"

	"gorm.io/gorm"

	"task-orchestration-service/internal/models"
)

// TaskTemplate is a recurring task definition registered by a module.
// (ModuleID, UniqueKey) identifies it across module reloads.
type TaskTemplate struct {
	gorm.Model
	ModuleID               string             `json:"module_id" gorm:"uniqueIndex:idx_template_module_key;size:128"`
	UniqueKey              string             `json:"unique_key" gorm:"uniqueIndex:idx_template_module_key;size:191"`
	Name                   string             `json:"name"`
	Description            string             `json:"description"`
	Content                models.TaskContent `json:"content" gorm:"serializer:json"`
	IntervalSeconds        int                `json:"interval_seconds"`
	DefaultIntervalSeconds int                `json:"default_interval_seconds"` // last interval supplied by the module
	SchedulingType         string             `json:"scheduling_type" gorm:"index"`
	Active                 bool               `json:"active"`
	Aggressive             bool               `json:"aggressive"`
	ParamSchema            string             `json:"param_schema,omitempty"` // JSON schema for on-demand custom data
}

// IntervalCustomized reports whether an operator changed the interval away
// from the module default.
func (t TaskTemplate) IntervalCustomized() bool {
	return t.IntervalSeconds != t.DefaultIntervalSeconds
}

// Scheduling returns the typed scheduling mode.
func (t TaskTemplate) Scheduling() models.SchedulingType {
	return models.SchedulingType(t.SchedulingType)
}

// TargetTaskOverride is a per-target activation flag for one template.
type TargetTaskOverride struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	TargetID       uint      `json:"target_id" gorm:"uniqueIndex:idx_override_target_template"`
	TaskTemplateID uint      `json:"task_template_id" gorm:"uniqueIndex:idx_override_target_template;index"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Target is a host tasks are run against.
type Target struct {
	gorm.Model
	Domain       string `json:"domain" gorm:"index"`
	Name         string `json:"name"`
	Active       bool   `json:"active" gorm:"index"`
	UserAgent    string `json:"user_agent"`
	CustomHeader string `json:"custom_header"`
}

// ToModel converts the row to the value the compiler consumes.
func (t Target) ToModel() models.Target {
	return models.Target{
		ID:           t.ID,
		Domain:       t.Domain,
		Name:         t.Name,
		Active:       t.Active,
		UserAgent:    t.UserAgent,
		CustomHeader: t.CustomHeader,
	}
}

// All lists every model for AutoMigrate.
func All() []interface{} {
	return []interface{}{&TaskTemplate{}, &TargetTaskOverride{}, &Target{}}
}
