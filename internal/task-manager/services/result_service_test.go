package services

import (
	"context"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"task-orchestration-service/internal/models"
	"task-orchestration-service/internal/task-manager/events"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestResultService_PublishesCompletion(t *testing.T) {
	f := setupScheduler(t)
	ctx := context.Background()
	writer := &fakeWriter{}
	NewResultService(writer, zap.NewNop().Sugar()).Register(f.sched)

	tmpl, err := f.sched.RegisterTemplate(ctx, simpleDefinition("custom", models.SchedulingCustom, 0), nil)
	require.NoError(t, err)
	w := f.addWorker(models.Worker{Capacity: 1})
	exec, err := f.sched.RunNow(ctx, tmpl.ID, nil, nil)
	require.NoError(t, err)
	require.True(t, f.sched.HandleResult(ctx, w.ID, models.TaskResult{ExecutionID: exec.ExecutionID, Success: true, Output: "done"}))

	require.Len(t, writer.msgs, 1)
	msg := writer.msgs[0]
	assert.Equal(t, []byte("1"), msg.Key)
	assert.Equal(t, []kafka.Header{{Key: events.HeaderEventType, Value: []byte(events.TypeExecutionCompleted)}}, msg.Headers)

	decoded, err := events.Decode(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, "completed", decoded["status"])
	assert.Equal(t, "done", decoded["output"])
}

func TestResultService_PublishesRequeue(t *testing.T) {
	f := setupScheduler(t)
	ctx := context.Background()
	writer := &fakeWriter{}
	NewResultService(writer, zap.NewNop().Sugar()).Register(f.sched)

	tmpl, err := f.sched.RegisterTemplate(ctx, simpleDefinition("custom", models.SchedulingCustom, 0), nil)
	require.NoError(t, err)
	w := f.addWorker(models.Worker{Capacity: 2})
	_, err = f.sched.RunNow(ctx, tmpl.ID, nil, nil)
	require.NoError(t, err)
	_, err = f.sched.RunNow(ctx, tmpl.ID, nil, nil)
	require.NoError(t, err)

	f.sched.HandleWorkerDisconnected(ctx, w.ID)
	require.Len(t, writer.msgs, 1)
	decoded, err := events.Decode(writer.msgs[0].Value)
	require.NoError(t, err)
	assert.Equal(t, events.TypeExecutionsRequeued, decoded["type"])
	assert.Equal(t, []any{float64(1), float64(2)}, decoded["execution_ids"])
}

func TestResultService_WriteErrorIsReturned(t *testing.T) {
	writer := &fakeWriter{err: errors.New("broker down")}
	svc := NewResultService(writer, zap.NewNop().Sugar())

	err := svc.OnResult(context.Background(), models.TaskExecution{ExecutionID: 1, Status: models.StatusFailed}, models.TaskResult{})
	assert.ErrorContains(t, err, "broker down")
	svc.OnRequeue(context.Background(), 1, nil)
}
