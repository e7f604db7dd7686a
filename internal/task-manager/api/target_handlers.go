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

// TargetHandler manages targets. Every change re-reconciles TARGET_BASED
// templates.
type TargetHandler struct {
	Targets   *services.TargetStore
	Templates *services.TemplateService
	log       *zap.SugaredLogger
}

func NewTargetHandler(targets *services.TargetStore, templates *services.TemplateService, log *zap.SugaredLogger) *TargetHandler {
	return &TargetHandler{Targets: targets, Templates: templates, log: logger.Component(log, "api")}
}

type TargetRequest struct {
	Domain       string `json:"domain" vd:"len($)>0"`
	Name         string `json:"name"`
	Active       *bool  `json:"active"`
	UserAgent    string `json:"user_agent"`
	CustomHeader string `json:"custom_header"`
}

func (r TargetRequest) toModel(id uint) models.Target {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return models.Target{
		ID:           id,
		Domain:       r.Domain,
		Name:         r.Name,
		Active:       active,
		UserAgent:    r.UserAgent,
		CustomHeader: r.CustomHeader,
	}
}

func (h *TargetHandler) GetActiveTargets(ctx context.Context, c *app.RequestContext) {
	targets, err := h.Targets.ListActiveTargets(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, targets)
}

func (h *TargetHandler) GetTargetByID(ctx context.Context, c *app.RequestContext) {
	id, ok := uintParam(c, "targetId")
	if !ok {
		return
	}
	t, err := h.Targets.GetTarget(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *TargetHandler) CreateTarget(ctx context.Context, c *app.RequestContext) {
	var req TargetRequest
	if err := c.BindAndValidate(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	t, err := h.Targets.SaveTarget(ctx, req.toModel(0))
	if err != nil {
		writeError(c, err)
		return
	}
	h.targetsChanged(ctx)
	c.JSON(http.StatusCreated, t)
}

func (h *TargetHandler) UpdateTarget(ctx context.Context, c *app.RequestContext) {
	id, ok := uintParam(c, "targetId")
	if !ok {
		return
	}
	var req TargetRequest
	if err := c.BindAndValidate(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	t, err := h.Targets.SaveTarget(ctx, req.toModel(id))
	if err != nil {
		writeError(c, err)
		return
	}
	h.targetsChanged(ctx)
	c.JSON(http.StatusOK, t)
}

func (h *TargetHandler) DeleteTarget(ctx context.Context, c *app.RequestContext) {
	id, ok := uintParam(c, "targetId")
	if !ok {
		return
	}
	if err := h.Targets.DeleteTarget(ctx, id); err != nil {
		writeError(c, err)
		return
	}
	h.targetsChanged(ctx)
	c.JSON(http.StatusOK, utils.H{"message": "Target deleted"})
}

func (h *TargetHandler) targetsChanged(ctx context.Context) {
	if err := h.Templates.NotifyTargetsChanged(ctx); err != nil {
		h.log.Warnw("Failed to reconcile after target change", logger.FieldError, err)
	}
}
