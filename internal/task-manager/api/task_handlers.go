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

// WorkerDisconnector closes a live worker connection.
type WorkerDisconnector interface {
	Disconnect(workerID uint64) error
}

// TaskHandler exposes the scheduler's runtime state: executions, workers,
// scheduled tasks and counters.
type TaskHandler struct {
	Scheduler *services.SchedulerService
	Workers   WorkerDisconnector
	log       *zap.SugaredLogger
}

func NewTaskHandler(sched *services.SchedulerService, workers WorkerDisconnector, log *zap.SugaredLogger) *TaskHandler {
	return &TaskHandler{Scheduler: sched, Workers: workers, log: logger.Component(log, "api")}
}

func (h *TaskHandler) Ping(ctx context.Context, c *app.RequestContext) {
	c.JSON(http.StatusOK, utils.H{"message": "pong"})
}

func (h *TaskHandler) GetStatus(ctx context.Context, c *app.RequestContext) {
	c.JSON(http.StatusOK, h.Scheduler.Stats())
}

// RefreshScheduler rebuilds scheduled tasks from the stored templates.
func (h *TaskHandler) RefreshScheduler(ctx context.Context, c *app.RequestContext) {
	if err := h.Scheduler.ReconcileAll(ctx); err != nil {
		h.log.Errorw("Scheduler refresh failed", logger.FieldError, err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.H{"message": "Scheduler refreshed", "scheduled_tasks": len(h.Scheduler.ListScheduledTasks())})
}

// GetExecutions lists executions, optionally filtered by ?status=.
func (h *TaskHandler) GetExecutions(ctx context.Context, c *app.RequestContext) {
	status := models.ExecutionStatus(c.Query("status"))
	execs := h.Scheduler.ListExecutions()
	if status != "" {
		filtered := make([]models.TaskExecution, 0, len(execs))
		for _, e := range execs {
			if e.Status == status {
				filtered = append(filtered, e)
			}
		}
		execs = filtered
	}
	c.JSON(http.StatusOK, execs)
}

func (h *TaskHandler) GetExecutionByID(ctx context.Context, c *app.RequestContext) {
	id, ok := uint64Param(c, "id")
	if !ok {
		return
	}
	exec, found := h.Scheduler.GetExecution(id)
	if !found {
		c.JSON(http.StatusNotFound, utils.H{"error": "Execution not found"})
		return
	}
	c.JSON(http.StatusOK, exec)
}

func (h *TaskHandler) GetPendingQueue(ctx context.Context, c *app.RequestContext) {
	c.JSON(http.StatusOK, h.Scheduler.PendingQueue())
}

func (h *TaskHandler) GetScheduledTasks(ctx context.Context, c *app.RequestContext) {
	c.JSON(http.StatusOK, h.Scheduler.ListScheduledTasks())
}

// RunScheduledTask enqueues an execution for a scheduled task now, leaving
// its next execution time alone.
func (h *TaskHandler) RunScheduledTask(ctx context.Context, c *app.RequestContext) {
	id, ok := uint64Param(c, "id")
	if !ok {
		return
	}
	exec, err := h.Scheduler.CreateExecution(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, exec)
}

type LoadModuleRequest struct {
	ID      string `json:"id" vd:"len($)>0"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

func (h *TaskHandler) GetModules(ctx context.Context, c *app.RequestContext) {
	c.JSON(http.StatusOK, h.Scheduler.Registry.ListModules())
}

func (h *TaskHandler) LoadModule(ctx context.Context, c *app.RequestContext) {
	var req LoadModuleRequest
	if err := c.BindAndValidate(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	h.Scheduler.LoadModule(models.Module{ID: req.ID, Name: req.Name, Version: req.Version})
	m, _ := h.Scheduler.Registry.GetModule(req.ID)
	c.JSON(http.StatusCreated, m)
}

// UnloadModule removes the module and every template it registered.
func (h *TaskHandler) UnloadModule(ctx context.Context, c *app.RequestContext) {
	moduleID := c.Param("moduleId")
	if err := h.Scheduler.UnloadModule(ctx, moduleID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.H{"message": "Module unloaded"})
}

func (h *TaskHandler) GetWorkers(ctx context.Context, c *app.RequestContext) {
	c.JSON(http.StatusOK, h.Scheduler.ListWorkers())
}

// DisconnectWorker closes the worker's connection. Its running executions are
// requeued by the disconnect path.
func (h *TaskHandler) DisconnectWorker(ctx context.Context, c *app.RequestContext) {
	id, ok := uint64Param(c, "id")
	if !ok {
		return
	}
	if err := h.Workers.Disconnect(id); err != nil {
		writeError(c, err)
		return
	}
	h.log.Infow("Worker disconnected by operator", logger.FieldWorkerID, id)
	c.JSON(http.StatusOK, utils.H{"message": "Worker disconnected"})
}
