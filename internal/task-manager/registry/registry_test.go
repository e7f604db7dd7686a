package registry

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-orchestration-service/internal/models"
)

func TestScheduledTaskIDsAreMonotonic(t *testing.T) {
	r := New()
	a := r.CreateScheduledTask(models.ScheduledTask{TemplateID: 1})
	b := r.CreateScheduledTask(models.ScheduledTask{TemplateID: 1})
	r.DeleteScheduledTask(b.ID)
	c := r.CreateScheduledTask(models.ScheduledTask{TemplateID: 2})

	assert.Equal(t, uint64(1), a.ID)
	assert.Equal(t, uint64(2), b.ID)
	assert.Equal(t, uint64(3), c.ID)
	assert.Len(t, r.ListScheduledTasksByTemplate(1), 1)
}

func TestGetDueScheduledTasks(t *testing.T) {
	r := New()
	now := time.Now()
	due := r.CreateScheduledTask(models.ScheduledTask{TemplateID: 1, NextExecutionAt: now.Add(-time.Second)})
	exact := r.CreateScheduledTask(models.ScheduledTask{TemplateID: 1, NextExecutionAt: now})
	r.CreateScheduledTask(models.ScheduledTask{TemplateID: 1, NextExecutionAt: now.Add(time.Minute)})

	got := r.GetDueScheduledTasks(now)

	require.Len(t, got, 2)
	assert.Equal(t, due.ID, got[0].ID)
	assert.Equal(t, exact.ID, got[1].ID)
}

func TestUpdateExecution_ReplaceOnWrite(t *testing.T) {
	r := New()
	e := r.CreateExecution(models.TaskExecution{TemplateID: 1, Content: models.TaskContent{Commands: []string{"a"}}})
	assert.Equal(t, models.StatusPending, e.Status)

	before, _ := r.GetExecution(e.ExecutionID)
	_, err := r.UpdateExecution(e.ExecutionID, func(x *models.TaskExecution) {
		x.Status = models.StatusRunning
		x.Content.Commands[0] = "b"
	})
	require.NoError(t, err)

	after, _ := r.GetExecution(e.ExecutionID)
	assert.Equal(t, models.StatusPending, before.Status)
	assert.Equal(t, "a", before.Content.Commands[0])
	assert.Equal(t, models.StatusRunning, after.Status)
	assert.Equal(t, "b", after.Content.Commands[0])

	_, err = r.UpdateExecution(999, func(*models.TaskExecution) {})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestActiveExecutionForScheduledTask(t *testing.T) {
	r := New()
	stID := uint64(5)
	done := r.CreateExecution(models.TaskExecution{ScheduledTaskID: &stID, Status: models.StatusCompleted})
	_, ok := r.ActiveExecutionForScheduledTask(stID)
	assert.False(t, ok)

	running := r.CreateExecution(models.TaskExecution{ScheduledTaskID: &stID, Status: models.StatusRunning})
	got, ok := r.ActiveExecutionForScheduledTask(stID)
	assert.True(t, ok)
	assert.Equal(t, running.ExecutionID, got.ExecutionID)
	assert.NotEqual(t, done.ExecutionID, got.ExecutionID)
}

func TestClearOldExecutions(t *testing.T) {
	r := New()
	old := time.Now().Add(-2 * time.Hour)
	r.CreateExecution(models.TaskExecution{Status: models.StatusCompleted, CreatedAt: old})
	r.CreateExecution(models.TaskExecution{Status: models.StatusFailed, CreatedAt: old})
	keptPending := r.CreateExecution(models.TaskExecution{Status: models.StatusPending, CreatedAt: old})
	keptRecent := r.CreateExecution(models.TaskExecution{Status: models.StatusCompleted})

	n := r.ClearOldExecutions(time.Now().Add(-time.Hour))

	assert.Equal(t, 2, n)
	ids := []uint64{}
	for _, e := range r.ListExecutions() {
		ids = append(ids, e.ExecutionID)
	}
	assert.Equal(t, []uint64{keptPending.ExecutionID, keptRecent.ExecutionID}, ids)
}

func TestWorkers(t *testing.T) {
	r := New()
	w1 := r.AddWorker(models.Worker{IP: "10.0.0.1"})
	w2 := r.AddWorker(models.Worker{IP: "10.0.0.2"})

	_, err := r.UpdateWorker(w1.ID, func(w *models.Worker) { w.CurrentTasks = append(w.CurrentTasks, 7, 8) })
	require.NoError(t, err)
	_, err = r.UpdateWorker(w1.ID, func(w *models.Worker) { RemoveTaskFromWorker(w, 7) })
	require.NoError(t, err)

	list := r.ListWorkers()
	require.Len(t, list, 2)
	assert.Equal(t, w1.ID, list[0].ID)
	assert.Equal(t, []uint64{8}, list[0].CurrentTasks)
	assert.False(t, list[0].ConnectedAt.IsZero())

	list[0].CurrentTasks[0] = 99
	again, _ := r.GetWorker(w1.ID)
	assert.Equal(t, []uint64{8}, again.CurrentTasks, "listed copies must not alias stored state")

	removed, ok := r.RemoveWorker(w2.ID)
	assert.True(t, ok)
	assert.Equal(t, "10.0.0.2", removed.IP)
	w3 := r.AddWorker(models.Worker{IP: "10.0.0.2"})
	assert.Equal(t, uint64(3), w3.ID, "reconnecting worker gets a new id")
}

func TestFindTools(t *testing.T) {
	r := New()
	nuclei := models.Tool{Name: "nuclei", Version: "3.1.0", DownloadURL: "https://x/nuclei"}
	r.RegisterTool(nuclei)
	r.RegisterTool(models.Tool{Name: "nuclei", Version: "3.1.0", DownloadURL: "https://other"})

	got := r.FindTools([]string{"nuclei@3.1.0", "subfinder@2.6.0", "garbage", "trailing@"})

	require.Len(t, got, 2)
	assert.Equal(t, "https://x/nuclei", got[0].DownloadURL, "tools are immutable once defined")
	assert.Equal(t, models.Tool{Name: "subfinder", Version: "2.6.0"}, got[1])
	assert.Len(t, r.ListTools(), 1)
}

func TestModules(t *testing.T) {
	r := New()
	r.RegisterModule(models.Module{ID: "recon", Name: "Recon"})
	r.RegisterModule(models.Module{ID: "alpha", Name: "Alpha"})

	m, ok := r.GetModule("recon")
	assert.True(t, ok)
	assert.False(t, m.LoadedAt.IsZero())
	assert.Equal(t, "alpha", r.ListModules()[0].ID)

	r.DeleteModule("recon")
	_, ok = r.GetModule("recon")
	assert.False(t, ok)
}
