// Package registry is the in-memory store of live entities: loaded modules,
// tools, scheduled tasks, executions and connected workers.
//
// Entities are stored by value. Get and List return copies, and updates go
// through a function applied to a copy that then replaces the stored value, so
// a reader never observes a half-applied change.
package registry

import (
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"task-orchestration-service/internal/models"
)

var (
	ErrNotFound = errors.New("registry: not found")
)

type Registry struct {
	mu sync.RWMutex

	modules        map[string]models.Module
	tools          map[string]models.Tool
	scheduledTasks map[uint64]models.ScheduledTask
	executions     map[uint64]models.TaskExecution
	workers        map[uint64]models.Worker

	nextScheduledID uint64
	nextExecutionID uint64
	nextWorkerID    uint64
}

func New() *Registry {
	return &Registry{
		modules:        make(map[string]models.Module),
		tools:          make(map[string]models.Tool),
		scheduledTasks: make(map[uint64]models.ScheduledTask),
		executions:     make(map[uint64]models.TaskExecution),
		workers:        make(map[uint64]models.Worker),
	}
}

// Modules

func (r *Registry) RegisterModule(m models.Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.LoadedAt.IsZero() {
		m.LoadedAt = time.Now()
	}
	r.modules[m.ID] = m
}

func (r *Registry) GetModule(id string) (models.Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[id]
	return m, ok
}

func (r *Registry) ListModules() []models.Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Module, 0, len(r.modules))
	for _, m := range r.modules {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) DeleteModule(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.modules, id)
}

// Tools

// RegisterTool stores a tool definition. Tools are immutable once defined, so
// re-registering the same name@version is a no-op.
func (r *Registry) RegisterTool(t models.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[t.Identifier()]; ok {
		return
	}
	r.tools[t.Identifier()] = t
}

func (r *Registry) GetTool(identifier string) (models.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[identifier]
	return t, ok
}

func (r *Registry) ListTools() []models.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier() < out[j].Identifier() })
	return out
}

func (r *Registry) DeleteTool(identifier string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, identifier)
}

// FindTools maps "name@version" identifiers to known tools. Identifiers that
// are unknown to the registry are parsed into a bare Tool so a worker's
// inventory is still recorded.
func (r *Registry) FindTools(identifiers []string) []models.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Tool, 0, len(identifiers))
	for _, id := range identifiers {
		if t, ok := r.tools[id]; ok {
			out = append(out, t)
			continue
		}
		if t, ok := parseIdentifier(id); ok {
			out = append(out, t)
		}
	}
	return out
}

func parseIdentifier(id string) (models.Tool, bool) {
	for i := len(id) - 1; i > 0; i-- {
		if id[i] == '@' {
			if i == len(id)-1 {
				return models.Tool{}, false
			}
			return models.Tool{Name: id[:i], Version: id[i+1:]}, true
		}
	}
	return models.Tool{}, false
}

// Scheduled tasks

func (r *Registry) CreateScheduledTask(st models.ScheduledTask) models.ScheduledTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextScheduledID++
	st.ID = r.nextScheduledID
	r.scheduledTasks[st.ID] = st
	return st
}

func (r *Registry) GetScheduledTask(id uint64) (models.ScheduledTask, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.scheduledTasks[id]
	return st, ok
}

func (r *Registry) ListScheduledTasks() []models.ScheduledTask {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedValues(r.scheduledTasks, func(st models.ScheduledTask) uint64 { return st.ID })
}

func (r *Registry) ListScheduledTasksByTemplate(templateID uint) []models.ScheduledTask {
	var out []models.ScheduledTask
	for _, st := range r.ListScheduledTasks() {
		if st.TemplateID == templateID {
			out = append(out, st)
		}
	}
	return out
}

func (r *Registry) UpdateScheduledTask(id uint64, fn func(*models.ScheduledTask)) (models.ScheduledTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.scheduledTasks[id]
	if !ok {
		return models.ScheduledTask{}, errors.Wrapf(ErrNotFound, "scheduled task %d", id)
	}
	fn(&st)
	st.ID = id
	r.scheduledTasks[id] = st
	return st, nil
}

func (r *Registry) DeleteScheduledTask(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.scheduledTasks, id)
}

// GetDueScheduledTasks returns tasks with NextExecutionAt <= now, in id order.
func (r *Registry) GetDueScheduledTasks(now time.Time) []models.ScheduledTask {
	var out []models.ScheduledTask
	for _, st := range r.ListScheduledTasks() {
		if !st.NextExecutionAt.After(now) {
			out = append(out, st)
		}
	}
	return out
}

// Executions

func (r *Registry) CreateExecution(e models.TaskExecution) models.TaskExecution {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextExecutionID++
	e.ExecutionID = r.nextExecutionID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.Status == "" {
		e.Status = models.StatusPending
	}
	r.executions[e.ExecutionID] = e
	return e
}

func (r *Registry) GetExecution(id uint64) (models.TaskExecution, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executions[id]
	return e, ok
}

func (r *Registry) ListExecutions() []models.TaskExecution {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedValues(r.executions, func(e models.TaskExecution) uint64 { return e.ExecutionID })
}

// ListExecutionsByWorker returns executions whose last-known assignee is
// workerID and whose status is st (any status when st is empty).
func (r *Registry) ListExecutionsByWorker(workerID uint64, st models.ExecutionStatus) []models.TaskExecution {
	var out []models.TaskExecution
	for _, e := range r.ListExecutions() {
		if e.AssignedTo(workerID) && (st == "" || e.Status == st) {
			out = append(out, e)
		}
	}
	return out
}

// ActiveExecutionForScheduledTask returns the pending or running execution
// occupying the scheduled task's slot, if any.
func (r *Registry) ActiveExecutionForScheduledTask(scheduledID uint64) (models.TaskExecution, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.executions {
		if e.ScheduledTaskID != nil && *e.ScheduledTaskID == scheduledID && e.Status.InFlight() {
			return e, true
		}
	}
	return models.TaskExecution{}, false
}

func (r *Registry) UpdateExecution(id uint64, fn func(*models.TaskExecution)) (models.TaskExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.executions[id]
	if !ok {
		return models.TaskExecution{}, errors.Wrapf(ErrNotFound, "execution %d", id)
	}
	e.Content = e.Content.Clone()
	fn(&e)
	e.ExecutionID = id
	r.executions[id] = e
	return e, nil
}

func (r *Registry) DeleteExecution(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.executions, id)
}

// ClearOldExecutions evicts terminal executions created before the cutoff and
// returns how many were removed.
func (r *Registry) ClearOldExecutions(before time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, e := range r.executions {
		if e.Status.Terminal() && e.CreatedAt.Before(before) {
			delete(r.executions, id)
			n++
		}
	}
	return n
}

// Workers

// AddWorker registers a newly connected worker and assigns its id.
func (r *Registry) AddWorker(w models.Worker) models.Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextWorkerID++
	w.ID = r.nextWorkerID
	now := time.Now()
	if w.ConnectedAt.IsZero() {
		w.ConnectedAt = now
	}
	if w.LastSeenAt.IsZero() {
		w.LastSeenAt = now
	}
	w = w.Clone()
	r.workers[w.ID] = w
	return w.Clone()
}

func (r *Registry) GetWorker(id uint64) (models.Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[id]
	return w.Clone(), ok
}

// ListWorkers returns workers in registration order.
func (r *Registry) ListWorkers() []models.Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := sortedValues(r.workers, func(w models.Worker) uint64 { return w.ID })
	for i := range out {
		out[i] = out[i].Clone()
	}
	return out
}

func (r *Registry) UpdateWorker(id uint64, fn func(*models.Worker)) (models.Worker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[id]
	if !ok {
		return models.Worker{}, errors.Wrapf(ErrNotFound, "worker %d", id)
	}
	w = w.Clone()
	fn(&w)
	w.ID = id
	r.workers[id] = w
	return w.Clone(), nil
}

func (r *Registry) RemoveWorker(id uint64) (models.Worker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[id]
	delete(r.workers, id)
	return w, ok
}

// RemoveTaskFromWorker drops executionID from the worker's current tasks.
func RemoveTaskFromWorker(w *models.Worker, executionID uint64) {
	w.CurrentTasks = slices.DeleteFunc(w.CurrentTasks, func(id uint64) bool { return id == executionID })
}

func sortedValues[T any](m map[uint64]T, key func(T) uint64) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return key(out[i]) < key(out[j]) })
	return out
}
