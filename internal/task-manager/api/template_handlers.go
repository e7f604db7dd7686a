package api

import (
	"context"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"go.uber.org/zap"

	"task-orchestration-service/internal/logger"
	"task-orchestration-service/internal/models"
	"task-orchestration-service/internal/task-manager/services"
)

type TaskTemplateHandler struct {
	Templates *services.TemplateService
	Scheduler *services.SchedulerService
	log       *zap.SugaredLogger
}

func NewTaskTemplateHandler(templates *services.TemplateService, sched *services.SchedulerService, log *zap.SugaredLogger) *TaskTemplateHandler {
	return &TaskTemplateHandler{Templates: templates, Scheduler: sched, log: logger.Component(log, "api")}
}

type CreateTaskTemplateRequest struct {
	ModuleID        string             `json:"module_id"`
	UniqueKey       string             `json:"unique_key"`
	Name            string             `json:"name"`
	Description     string             `json:"description"`
	Content         models.TaskContent `json:"content"`
	IntervalSeconds int                `json:"interval_seconds"`
	SchedulingType  string             `json:"scheduling_type"`
	Aggressive      bool               `json:"aggressive"`
	ParamSchema     string             `json:"param_schema,omitempty"` // JSON schema for on-demand custom data
}

type UpdateTaskTemplateRequest struct {
	Name            *string `json:"name"`
	Description     *string `json:"description"`
	Active          *bool   `json:"active"`
	IntervalSeconds *int    `json:"interval_seconds"`
}

type RunTaskTemplateRequest struct {
	TargetID *uint          `json:"target_id"`
	Data     map[string]any `json:"data"`
}

type OverrideRequest struct {
	Active bool `json:"active"`
}

// CreateTaskTemplate registers a template the way a module does: repeated
// calls with the same module_id and unique_key update it in place.
func (h *TaskTemplateHandler) CreateTaskTemplate(ctx context.Context, c *app.RequestContext) {
	var req CreateTaskTemplateRequest
	if err := c.BindAndValidate(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	tmpl, err := h.Scheduler.RegisterTemplate(ctx, services.TemplateDefinition{
		ModuleID:        req.ModuleID,
		UniqueKey:       req.UniqueKey,
		Name:            req.Name,
		Description:     req.Description,
		Content:         req.Content,
		IntervalSeconds: req.IntervalSeconds,
		SchedulingType:  models.SchedulingType(req.SchedulingType),
		Aggressive:      req.Aggressive,
		ParamSchema:     req.ParamSchema,
	}, nil)
	if err != nil {
		h.log.Warnw("Template registration rejected", "module_id", req.ModuleID, "unique_key", req.UniqueKey, logger.FieldError, err)
		writeError(c, err)
		return
	}
	h.log.Infow("Task template registered", logger.FieldTemplateID, tmpl.ID, "module_id", tmpl.ModuleID)
	c.JSON(http.StatusCreated, tmpl)
}

func (h *TaskTemplateHandler) GetTaskTemplates(ctx context.Context, c *app.RequestContext) {
	templates, err := h.Templates.ListTemplates(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, templates)
}

func (h *TaskTemplateHandler) GetTaskTemplateByID(ctx context.Context, c *app.RequestContext) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	tmpl, err := h.Templates.GetTemplate(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tmpl)
}

// UpdateTaskTemplate changes operator-owned fields. The scheduler picks the
// change up through the template change hook.
func (h *TaskTemplateHandler) UpdateTaskTemplate(ctx context.Context, c *app.RequestContext) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req UpdateTaskTemplateRequest
	if err := c.BindAndValidate(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	tmpl, err := h.Templates.UpdateTemplate(ctx, id, services.TemplateUpdate{
		Name:            req.Name,
		Description:     req.Description,
		Active:          req.Active,
		IntervalSeconds: req.IntervalSeconds,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	h.log.Infow("Task template updated", logger.FieldTemplateID, id)
	c.JSON(http.StatusOK, tmpl)
}

func (h *TaskTemplateHandler) DeleteTaskTemplate(ctx context.Context, c *app.RequestContext) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.Templates.DeleteTemplate(ctx, id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.H{"message": "Task template deleted"})
}

// RunTaskTemplate creates an on-demand execution.
func (h *TaskTemplateHandler) RunTaskTemplate(ctx context.Context, c *app.RequestContext) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req RunTaskTemplateRequest
	if len(c.Request.Body()) > 0 {
		if err := c.BindAndValidate(&req); err != nil {
			badRequest(c, "Invalid request payload: "+err.Error())
			return
		}
	}
	exec, err := h.Scheduler.RunNow(ctx, id, req.TargetID, req.Data)
	if err != nil {
		h.log.Warnw("Run-now rejected", logger.FieldTemplateID, id, logger.FieldError, err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, exec)
}

func (h *TaskTemplateHandler) GetTaskTemplateTargets(ctx context.Context, c *app.RequestContext) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	targets, err := h.Templates.GetTargetsForTask(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, targets)
}

func (h *TaskTemplateHandler) GetOverrides(ctx context.Context, c *app.RequestContext) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	overrides, err := h.Templates.ListOverrides(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, overrides)
}

func (h *TaskTemplateHandler) SetOverride(ctx context.Context, c *app.RequestContext) {
	targetID, ok := uintParam(c, "targetId")
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req OverrideRequest
	if err := c.BindAndValidate(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	ov, err := h.Templates.SetTargetOverride(ctx, targetID, id, req.Active)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ov)
}

func (h *TaskTemplateHandler) DeleteOverride(ctx context.Context, c *app.RequestContext) {
	targetID, ok := uintParam(c, "targetId")
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.Templates.DeleteTargetOverride(ctx, targetID, id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.H{"message": "Override removed"})
}
