package workerpool

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"task-orchestration-service/internal/models"
	taskDB "task-orchestration-service/internal/task-manager/db"
	"task-orchestration-service/internal/task-manager/registry"
	"task-orchestration-service/internal/task-manager/services"
)

func TestEndToEnd_RunNowThroughWorker(t *testing.T) {
	gormDB, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "pool_test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, gormDB.AutoMigrate(taskDB.All()...))

	log := zap.NewNop().Sugar()
	reg := registry.New()
	templates := services.NewTemplateService(gormDB, services.NewTargetStore(gormDB), log)
	sched, err := services.NewSchedulerService(templates, reg, services.SchedulerConfig{ToolsRoot: "/opt/tools"}, log)
	require.NoError(t, err)

	pool := New(reg, sched, Config{Secret: testSecret}, log)
	sched.SetDispatcher(pool)
	srv := httptest.NewServer(pool.Handler())
	t.Cleanup(func() {
		_ = pool.Shutdown(context.Background())
		srv.Close()
	})

	ctx := context.Background()
	tmpl, err := sched.RegisterTemplate(ctx, services.TemplateDefinition{
		ModuleID:       "recon",
		UniqueKey:      "echo",
		Name:           "Echo",
		Content:        models.TaskContent{Commands: []string{"echo {{MSG}}"}},
		SchedulingType: models.SchedulingCustom,
	}, nil)
	require.NoError(t, err)

	conn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http")+Path, workerHeader(testSecret))
	send(t, conn, models.MessageToolsList, []string{})
	send(t, conn, models.MessageWorkerReady, models.WorkerReady{Count: 1})
	require.Eventually(t, func() bool {
		ws := reg.ListWorkers()
		return len(ws) == 1 && ws[0].Capacity == 1
	}, 2*time.Second, 10*time.Millisecond)

	exec, err := sched.RunNow(ctx, tmpl.ID, nil, map[string]any{"MSG": "hello"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, exec.Status)

	msg := readMessage(t, conn)
	require.Equal(t, models.MessageTaskStart, msg.Type)
	var started models.TaskExecution
	require.NoError(t, json.Unmarshal(msg.Data, &started))
	assert.Equal(t, exec.ExecutionID, started.ExecutionID)
	assert.Equal(t, []string{"echo hello"}, started.Content.Commands)

	send(t, conn, models.MessageTaskResult, models.TaskResult{ExecutionID: started.ExecutionID, Success: true, Output: "hello"})
	require.Eventually(t, func() bool {
		e, _ := sched.GetExecution(exec.ExecutionID)
		return e.Status == models.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	w := reg.ListWorkers()[0]
	assert.Empty(t, w.CurrentTasks)

	// A second execution waits for capacity and is requeued when the worker goes away.
	second, err := sched.RunNow(ctx, tmpl.ID, nil, map[string]any{"MSG": "again"})
	require.NoError(t, err)
	require.Equal(t, models.StatusRunning, second.Status)
	readMessage(t, conn)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		e, _ := sched.GetExecution(second.ExecutionID)
		return e.Status == models.StatusPending
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []uint64{second.ExecutionID}, sched.PendingQueue())
	assert.Empty(t, reg.ListWorkers())
}
