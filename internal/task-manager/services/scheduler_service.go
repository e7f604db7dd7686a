package services

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"task-orchestration-service/internal/logger"
	"task-orchestration-service/internal/models"
	taskDB "task-orchestration-service/internal/task-manager/db"
	"task-orchestration-service/internal/task-manager/registry"
	"task-orchestration-service/pkg/taskcontent"
	"task-orchestration-service/pkg/validation"
)

var (
	ErrExecutionInFlight = errors.New("scheduled task already has a pending or running execution")
	ErrParamsInvalid     = errors.New("custom data does not match the template's param schema")
)

const (
	sweepJobTag   = "scheduler_sweep"
	cleanupJobTag = "execution_cleanup"

	DefaultCleanupInterval = 10 * time.Minute
)

// Dispatcher delivers an execution to a connected worker. Implementations
// must not block.
type Dispatcher interface {
	SendTask(workerID uint64, exec models.TaskExecution) error
}

// ResultListener observes every applied result. Template completion
// callbacks have the same shape.
type ResultListener func(ctx context.Context, exec models.TaskExecution, result models.TaskResult) error

// RequeueListener observes executions forced back to pending after their
// worker disconnected.
type RequeueListener func(ctx context.Context, workerID uint64, execs []models.TaskExecution)

type SchedulerConfig struct {
	ToolsRoot       string
	SweepInterval   time.Duration
	CleanupInterval time.Duration
	Retention       time.Duration
}

// SchedulerService turns templates into scheduled tasks and executions and
// assigns executions to workers. Every mutation goes through mu.
type SchedulerService struct {
	Templates *TemplateService
	Registry  *registry.Registry
	Scheduler gocron.Scheduler

	cfg SchedulerConfig
	log *zap.SugaredLogger

	mu               sync.Mutex
	dispatcher       Dispatcher
	queue            []uint64
	listeners        []ResultListener
	requeueListeners []RequeueListener
	callbacks        map[uint]ResultListener
}

func NewSchedulerService(templates *TemplateService, reg *registry.Registry, cfg SchedulerConfig, log *zap.SugaredLogger) (*SchedulerService, error) {
	gs, err := gocron.NewScheduler()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create gocron scheduler")
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	s := &SchedulerService{
		Templates: templates,
		Registry:  reg,
		Scheduler: gs,
		cfg:       cfg,
		log:       logger.Component(log, "scheduler"),
		callbacks: make(map[uint]ResultListener),
	}
	templates.OnChange(s.onTemplateChanged)
	return s, nil
}

// SetDispatcher wires the transport. Assignment is a no-op until it is set.
func (s *SchedulerService) SetDispatcher(d Dispatcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatcher = d
}

func (s *SchedulerService) AddListener(l ResultListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *SchedulerService) AddRequeueListener(l RequeueListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requeueListeners = append(s.requeueListeners, l)
}

// Start rebuilds scheduled tasks from durable template state, then starts the
// sweep and cleanup jobs.
func (s *SchedulerService) Start(ctx context.Context) error {
	s.log.Info("SchedulerService starting...")
	if err := s.ReconcileAll(ctx); err != nil {
		return err
	}

	_, err := s.Scheduler.NewJob(
		gocron.DurationJob(s.cfg.SweepInterval),
		gocron.NewTask(func() { s.Sweep(ctx, time.Now()) }),
		gocron.WithName("sweep"),
		gocron.WithTags(sweepJobTag),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return errors.Wrap(err, "failed to schedule sweep job")
	}
	_, err = s.Scheduler.NewJob(
		gocron.DurationJob(s.cfg.CleanupInterval),
		gocron.NewTask(func() { s.CleanupExecutions(time.Now()) }),
		gocron.WithName("cleanup"),
		gocron.WithTags(cleanupJobTag),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return errors.Wrap(err, "failed to schedule cleanup job")
	}

	s.Scheduler.Start()
	s.log.Infow("SchedulerService started",
		"sweep_interval", s.cfg.SweepInterval,
		"cleanup_interval", s.cfg.CleanupInterval,
		"scheduled_tasks", len(s.Registry.ListScheduledTasks()),
	)
	return nil
}

func (s *SchedulerService) Stop() {
	s.log.Info("SchedulerService stopping...")
	if err := s.Scheduler.Shutdown(); err != nil {
		s.log.Errorw("Error shutting down gocron scheduler", logger.FieldError, err)
		return
	}
	s.log.Info("Gocron scheduler shut down successfully.")
}

// Modules

// LoadModule records a loaded module. Its templates are registered through
// RegisterTemplate.
func (s *SchedulerService) LoadModule(m models.Module) {
	s.Registry.RegisterModule(m)
	s.log.Infow("Module loaded", "module_id", m.ID, "version", m.Version)
}

// UnloadModule deletes the module's templates and, through the change hook,
// their scheduled tasks.
func (s *SchedulerService) UnloadModule(ctx context.Context, moduleID string) error {
	n, err := s.Templates.DeleteModuleTemplates(ctx, moduleID)
	if err != nil {
		return err
	}
	s.Registry.DeleteModule(moduleID)
	s.log.Infow("Module unloaded", "module_id", moduleID, logger.FieldCount, n)
	return nil
}

// RegisterTemplate is the registration call modules use. It upserts the
// template, reconciles its scheduled tasks and remembers the completion
// callback, if any.
func (s *SchedulerService) RegisterTemplate(ctx context.Context, def TemplateDefinition, callback ResultListener) (taskDB.TaskTemplate, error) {
	for _, t := range def.Content.RequiredTools {
		s.Registry.RegisterTool(t)
	}
	tmpl, err := s.Templates.UpsertTemplate(ctx, def)
	if err != nil {
		return tmpl, err
	}
	if callback != nil {
		s.mu.Lock()
		s.callbacks[tmpl.ID] = callback
		s.mu.Unlock()
	}
	return tmpl, nil
}

func (s *SchedulerService) onTemplateChanged(ctx context.Context, templateID uint, deleted bool) {
	if deleted {
		s.mu.Lock()
		s.removeScheduledTasksLocked(templateID)
		delete(s.callbacks, templateID)
		s.mu.Unlock()
		return
	}
	if err := s.ReconcileTemplate(ctx, templateID); err != nil {
		s.log.Errorw("Failed to reconcile template", logger.FieldTemplateID, templateID, logger.FieldError, err)
	}
}

// Reconciliation

func slotKey(targetID *uint) string {
	if targetID == nil {
		return "global"
	}
	return fmt.Sprintf("target:%d", *targetID)
}

// ReconcileTemplate makes the template's scheduled tasks match its
// scheduling type: one per effective target for TARGET_BASED, a singleton for
// GLOBAL and none for CUSTOM or inactive templates.
func (s *SchedulerService) ReconcileTemplate(ctx context.Context, templateID uint) error {
	tmpl, err := s.Templates.GetTemplate(ctx, templateID)
	if err != nil {
		if errors.Is(err, ErrTemplateNotFound) {
			s.mu.Lock()
			s.removeScheduledTasksLocked(templateID)
			s.mu.Unlock()
			return nil
		}
		return err
	}

	var slots []*uint
	if tmpl.Active && tmpl.IntervalSeconds > 0 {
		switch tmpl.Scheduling() {
		case models.SchedulingTargetBased:
			targets, err := s.Templates.GetTargetsForTask(ctx, templateID)
			if err != nil {
				return err
			}
			for _, t := range targets {
				id := t.ID
				slots = append(slots, &id)
			}
		case models.SchedulingGlobal:
			slots = append(slots, nil)
		}
	}
	desired := make(map[string]bool, len(slots))
	for _, slot := range slots {
		desired[slotKey(slot)] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	added, removed := 0, 0
	for _, st := range s.Registry.ListScheduledTasksByTemplate(templateID) {
		key := slotKey(st.TargetID)
		if !desired[key] {
			s.Registry.DeleteScheduledTask(st.ID)
			removed++
			continue
		}
		delete(desired, key)
		if st.IntervalSeconds != tmpl.IntervalSeconds || st.ModuleID != tmpl.ModuleID {
			_, _ = s.Registry.UpdateScheduledTask(st.ID, func(u *models.ScheduledTask) {
				u.IntervalSeconds = tmpl.IntervalSeconds
				u.ModuleID = tmpl.ModuleID
				if limit := now.Add(time.Duration(tmpl.IntervalSeconds) * time.Second); u.NextExecutionAt.After(limit) {
					u.NextExecutionAt = limit
				}
			})
		}
	}
	for _, slot := range slots {
		if !desired[slotKey(slot)] {
			continue
		}
		s.Registry.CreateScheduledTask(models.ScheduledTask{
			TemplateID:      templateID,
			ModuleID:        tmpl.ModuleID,
			TargetID:        slot,
			NextExecutionAt: now,
			IntervalSeconds: tmpl.IntervalSeconds,
		})
		added++
	}

	if added > 0 || removed > 0 {
		s.log.Infow("Scheduled tasks reconciled",
			logger.FieldTemplateID, templateID,
			"added", added,
			"removed", removed,
		)
	}
	return nil
}

// ReconcileAll reconciles every stored template and drops scheduled tasks
// whose template no longer exists.
func (s *SchedulerService) ReconcileAll(ctx context.Context) error {
	templates, err := s.Templates.ListTemplates(ctx)
	if err != nil {
		return err
	}
	known := make(map[uint]bool, len(templates))
	for _, tmpl := range templates {
		known[tmpl.ID] = true
		if err := s.ReconcileTemplate(ctx, tmpl.ID); err != nil {
			return errors.Wrapf(err, "reconcile template %d", tmpl.ID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.Registry.ListScheduledTasks() {
		if !known[st.TemplateID] {
			s.Registry.DeleteScheduledTask(st.ID)
		}
	}
	return nil
}

func (s *SchedulerService) removeScheduledTasksLocked(templateID uint) {
	for _, st := range s.Registry.ListScheduledTasksByTemplate(templateID) {
		s.Registry.DeleteScheduledTask(st.ID)
	}
}

// Sweep

// Sweep creates executions for every due scheduled task and then assigns
// pending work. It returns the number of executions created.
func (s *SchedulerService) Sweep(ctx context.Context, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := 0
	for _, st := range s.Registry.GetDueScheduledTasks(now) {
		_, err := s.createScheduledExecutionLocked(ctx, st)
		switch {
		case err == nil:
			created++
		case errors.Is(err, ErrExecutionInFlight):
			s.log.Debugw("Skipping slot, previous execution still in flight", logger.FieldScheduledID, st.ID)
		case errors.Is(err, ErrTemplateNotFound):
			s.Registry.DeleteScheduledTask(st.ID)
			continue
		default:
			s.log.Warnw("Failed to create execution",
				logger.FieldScheduledID, st.ID,
				logger.FieldTemplateID, st.TemplateID,
				logger.FieldError, err,
			)
		}
		s.advanceLocked(st, now)
	}

	s.assignLocked()
	return created
}

// advanceLocked moves the slot forward by one interval measured from its
// scheduled start. A slot that would still be due jumps to now+interval.
func (s *SchedulerService) advanceLocked(st models.ScheduledTask, now time.Time) {
	interval := time.Duration(st.IntervalSeconds) * time.Second
	if interval <= 0 {
		s.Registry.DeleteScheduledTask(st.ID)
		return
	}
	next := st.NextExecutionAt.Add(interval)
	if !next.After(now) {
		next = now.Add(interval)
	}
	_, _ = s.Registry.UpdateScheduledTask(st.ID, func(u *models.ScheduledTask) { u.NextExecutionAt = next })
}

// CreateExecution enqueues an execution for a scheduled task right away,
// without touching its next execution time.
func (s *SchedulerService) CreateExecution(ctx context.Context, scheduledTaskID uint64) (models.TaskExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.Registry.GetScheduledTask(scheduledTaskID)
	if !ok {
		return models.TaskExecution{}, errors.Wrapf(registry.ErrNotFound, "scheduled task %d", scheduledTaskID)
	}
	exec, err := s.createScheduledExecutionLocked(ctx, st)
	if err != nil {
		return exec, err
	}
	s.assignLocked()
	return s.getExecution(exec.ExecutionID), nil
}

func (s *SchedulerService) createScheduledExecutionLocked(ctx context.Context, st models.ScheduledTask) (models.TaskExecution, error) {
	if active, ok := s.Registry.ActiveExecutionForScheduledTask(st.ID); ok {
		return models.TaskExecution{}, errors.WithDetailf(
			errors.Wrapf(ErrExecutionInFlight, "scheduled task %d", st.ID),
			"execution %d is %s", active.ExecutionID, active.Status)
	}
	tmpl, err := s.Templates.GetTemplate(ctx, st.TemplateID)
	if err != nil {
		return models.TaskExecution{}, err
	}
	var target *models.Target
	if st.TargetID != nil {
		t, err := s.Templates.Targets.GetTarget(ctx, *st.TargetID)
		if err != nil {
			return models.TaskExecution{}, err
		}
		target = &t
	}
	id := st.ID
	return s.enqueueLocked(tmpl, &id, target, nil), nil
}

func (s *SchedulerService) enqueueLocked(tmpl taskDB.TaskTemplate, scheduledID *uint64, target *models.Target, data map[string]any) models.TaskExecution {
	exec := models.TaskExecution{
		ScheduledTaskID: scheduledID,
		TemplateID:      tmpl.ID,
		ModuleID:        tmpl.ModuleID,
		Content: taskcontent.Compile(tmpl.Content, taskcontent.Options{
			ToolsRoot: s.cfg.ToolsRoot,
			Target:    target,
			Data:      data,
		}),
		Status:     models.StatusPending,
		Aggressive: tmpl.Aggressive,
		CustomData: data,
	}
	if target != nil {
		id := target.ID
		exec.TargetID = &id
	}
	exec = s.Registry.CreateExecution(exec)
	s.queue = append(s.queue, exec.ExecutionID)

	s.log.Infow("Execution created",
		logger.FieldExecutionID, exec.ExecutionID,
		logger.FieldTemplateID, exec.TemplateID,
		logger.FieldTargetID, exec.TargetID,
	)
	return exec
}

// RunNow creates an on-demand execution, optionally bound to a target and
// carrying custom data validated against the template's param schema.
func (s *SchedulerService) RunNow(ctx context.Context, templateID uint, targetID *uint, data map[string]any) (models.TaskExecution, error) {
	tmpl, err := s.Templates.GetTemplate(ctx, templateID)
	if err != nil {
		return models.TaskExecution{}, err
	}
	if err := validation.ValidateParams(tmpl.ParamSchema, data); err != nil {
		return models.TaskExecution{}, errors.Mark(errors.Wrapf(err, "template %d", templateID), ErrParamsInvalid)
	}
	var target *models.Target
	if targetID != nil {
		t, err := s.Templates.Targets.GetTarget(ctx, *targetID)
		if err != nil {
			return models.TaskExecution{}, err
		}
		target = &t
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	exec := s.enqueueLocked(tmpl, nil, target, data)
	s.assignLocked()
	return s.getExecution(exec.ExecutionID), nil
}

func (s *SchedulerService) getExecution(id uint64) models.TaskExecution {
	exec, _ := s.Registry.GetExecution(id)
	return exec
}

// Assignment

// AssignNextTask hands pending executions to eligible workers and returns how
// many were dispatched.
func (s *SchedulerService) AssignNextTask() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assignLocked()
}

// assignLocked walks the pending queue from the head. Executions without an
// eligible worker stay queued in place; a send failure puts the execution
// back at the head and ends the pass.
func (s *SchedulerService) assignLocked() int {
	if s.dispatcher == nil {
		return 0
	}
	workers := s.Registry.ListWorkers()
	assigned := 0

	for i := 0; i < len(s.queue); {
		id := s.queue[i]
		exec, ok := s.Registry.GetExecution(id)
		if !ok || exec.Status != models.StatusPending {
			s.queue = slices.Delete(s.queue, i, i+1)
			continue
		}
		idx := pickWorker(workers, exec)
		if idx < 0 {
			i++
			continue
		}
		w := workers[idx]

		startedAt := time.Now()
		workerID := w.ID
		running, err := s.Registry.UpdateExecution(id, func(e *models.TaskExecution) {
			e.Status = models.StatusRunning
			e.WorkerID = &workerID
			e.StartedAt = &startedAt
		})
		if err != nil {
			s.queue = slices.Delete(s.queue, i, i+1)
			continue
		}
		updated, err := s.Registry.UpdateWorker(workerID, func(u *models.Worker) {
			u.CurrentTasks = append(u.CurrentTasks, id)
		})
		if err != nil {
			s.revertLocked(id, workerID)
			workers = slices.Delete(workers, idx, idx+1)
			continue
		}
		workers[idx] = updated

		msg := running
		msg.Content = taskcontent.WithInstallPrefix(running.Content, s.cfg.ToolsRoot, w.ToolIdentifiers())
		if err := s.dispatcher.SendTask(workerID, msg); err != nil {
			s.revertLocked(id, workerID)
			s.queue = slices.Delete(s.queue, i, i+1)
			s.queue = slices.Insert(s.queue, 0, id)
			s.log.Warnw("Failed to send execution, stopping assignment",
				logger.FieldExecutionID, id,
				logger.FieldWorkerID, workerID,
				logger.FieldError, err,
			)
			break
		}

		s.queue = slices.Delete(s.queue, i, i+1)
		assigned++
		s.log.Infow("Execution assigned",
			logger.FieldExecutionID, id,
			logger.FieldWorkerID, workerID,
			"effective_load", w.EffectiveLoad(),
		)
	}
	return assigned
}

func (s *SchedulerService) revertLocked(execID, workerID uint64) {
	_, _ = s.Registry.UpdateExecution(execID, func(e *models.TaskExecution) {
		e.Status = models.StatusPending
		e.WorkerID = nil
		e.StartedAt = nil
	})
	_, _ = s.Registry.UpdateWorker(workerID, func(w *models.Worker) {
		registry.RemoveTaskFromWorker(w, execID)
	})
}

// pickWorker returns the index of the eligible worker with the lowest
// effective load, the first one on ties, or -1.
func pickWorker(workers []models.Worker, exec models.TaskExecution) int {
	best := -1
	for i, w := range workers {
		if !w.HasCapacity() || (exec.Aggressive && !w.AggressiveEnabled) {
			continue
		}
		if best < 0 || w.EffectiveLoad() < workers[best].EffectiveLoad() {
			best = i
		}
	}
	return best
}

// Worker lifecycle

func (s *SchedulerService) HandleWorkerConnected(workerID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.Infow("Worker connected", logger.FieldWorkerID, workerID)
	s.assignLocked()
}

// HandleWorkerDisconnected deregisters the worker, puts its running
// executions back at the front of the queue in their original order and
// retries assignment.
func (s *SchedulerService) HandleWorkerDisconnected(ctx context.Context, workerID uint64) []models.TaskExecution {
	s.mu.Lock()
	s.Registry.RemoveWorker(workerID)

	var requeued []models.TaskExecution
	var ids []uint64
	for _, e := range s.Registry.ListExecutionsByWorker(workerID, models.StatusRunning) {
		u, err := s.Registry.UpdateExecution(e.ExecutionID, func(x *models.TaskExecution) {
			x.Status = models.StatusPending
			x.WorkerID = nil
			x.StartedAt = nil
		})
		if err != nil {
			continue
		}
		requeued = append(requeued, u)
		ids = append(ids, u.ExecutionID)
	}
	s.queue = slices.DeleteFunc(s.queue, func(id uint64) bool { return slices.Contains(ids, id) })
	s.queue = append(ids, s.queue...)

	s.log.Infow("Worker disconnected", logger.FieldWorkerID, workerID, logger.FieldCount, len(requeued))
	s.assignLocked()
	listeners := slices.Clone(s.requeueListeners)
	s.mu.Unlock()

	if len(requeued) > 0 {
		for _, l := range listeners {
			s.safeRequeue(ctx, l, workerID, requeued)
		}
	}
	return requeued
}

// Results

// HandleResult applies a worker's result. The worker's load factor and task
// list are refreshed in every case; the execution only changes when it is
// still running on the reporting worker. It reports whether the result was
// applied.
func (s *SchedulerService) HandleResult(ctx context.Context, workerID uint64, result models.TaskResult) bool {
	s.mu.Lock()

	_, _ = s.Registry.UpdateWorker(workerID, func(w *models.Worker) {
		registry.RemoveTaskFromWorker(w, result.ExecutionID)
		if result.LoadFactor != nil {
			w.LoadFactor = *result.LoadFactor
		}
		w.LastSeenAt = time.Now()
	})

	exec, ok := s.Registry.GetExecution(result.ExecutionID)
	if !ok || !exec.AssignedTo(workerID) || exec.Status != models.StatusRunning {
		s.log.Warnw("Ignoring stale result",
			logger.FieldExecutionID, result.ExecutionID,
			logger.FieldWorkerID, workerID,
			"known", ok,
			"status", exec.Status,
		)
		s.assignLocked()
		s.mu.Unlock()
		return false
	}

	finishedAt := time.Now()
	exec, _ = s.Registry.UpdateExecution(exec.ExecutionID, func(e *models.TaskExecution) {
		e.Status = models.StatusFailed
		if result.Success {
			e.Status = models.StatusCompleted
		}
		e.FinishedAt = &finishedAt
		e.Output = result.Output
		e.Error = result.Error
	})
	if result.Success && len(exec.Content.RequiredTools) > 0 {
		_, _ = s.Registry.UpdateWorker(workerID, func(w *models.Worker) {
			have := w.ToolIdentifiers()
			for _, t := range exec.Content.RequiredTools {
				if !have[t.Identifier()] {
					w.AvailableTools = append(w.AvailableTools, t)
					have[t.Identifier()] = true
				}
			}
		})
	}
	if result.ScheduledTaskID == nil {
		result.ScheduledTaskID = exec.ScheduledTaskID
	}

	s.log.Infow("Execution finished",
		logger.FieldExecutionID, exec.ExecutionID,
		logger.FieldWorkerID, workerID,
		"status", exec.Status,
	)

	listeners := slices.Clone(s.listeners)
	if cb, ok := s.callbacks[exec.TemplateID]; ok {
		listeners = append(listeners, cb)
	}
	s.assignLocked()
	s.mu.Unlock()

	for _, l := range listeners {
		s.safeNotify(ctx, l, exec, result)
	}
	return true
}

func (s *SchedulerService) safeNotify(ctx context.Context, l ResultListener, exec models.TaskExecution, result models.TaskResult) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorw("Result listener panicked", logger.FieldExecutionID, exec.ExecutionID, "panic", r)
		}
	}()
	if err := l(ctx, exec, result); err != nil {
		s.log.Warnw("Result listener failed", logger.FieldExecutionID, exec.ExecutionID, logger.FieldError, err)
	}
}

func (s *SchedulerService) safeRequeue(ctx context.Context, l RequeueListener, workerID uint64, execs []models.TaskExecution) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorw("Requeue listener panicked", logger.FieldWorkerID, workerID, "panic", r)
		}
	}()
	l(ctx, workerID, execs)
}

// CleanupExecutions evicts terminal executions older than the retention
// window.
func (s *SchedulerService) CleanupExecutions(now time.Time) int {
	if s.cfg.Retention <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.Registry.ClearOldExecutions(now.Add(-s.cfg.Retention))
	if n > 0 {
		s.log.Infow("Old executions evicted", logger.FieldCount, n)
	}
	return n
}

// Read side

func (s *SchedulerService) ListExecutions() []models.TaskExecution {
	return s.Registry.ListExecutions()
}

func (s *SchedulerService) GetExecution(id uint64) (models.TaskExecution, bool) {
	return s.Registry.GetExecution(id)
}

// PendingQueue returns the queued execution ids, head first.
func (s *SchedulerService) PendingQueue() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.queue)
}

func (s *SchedulerService) ListWorkers() []models.Worker {
	return s.Registry.ListWorkers()
}

func (s *SchedulerService) ListScheduledTasks() []models.ScheduledTask {
	return s.Registry.ListScheduledTasks()
}

// Stats is a point-in-time summary for operators.
type Stats struct {
	Workers        int `json:"workers"`
	ScheduledTasks int `json:"scheduledTasks"`
	Pending        int `json:"pending"`
	Running        int `json:"running"`
	Completed      int `json:"completed"`
	Failed         int `json:"failed"`
}

func (s *SchedulerService) Stats() Stats {
	st := Stats{
		Workers:        len(s.Registry.ListWorkers()),
		ScheduledTasks: len(s.Registry.ListScheduledTasks()),
	}
	for _, e := range s.Registry.ListExecutions() {
		switch e.Status {
		case models.StatusPending:
			st.Pending++
		case models.StatusRunning:
			st.Running++
		case models.StatusCompleted:
			st.Completed++
		case models.StatusFailed:
			st.Failed++
		}
	}
	return st
}
