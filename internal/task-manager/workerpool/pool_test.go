package workerpool

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"task-orchestration-service/internal/models"
	"task-orchestration-service/internal/task-manager/registry"
)

const testSecret = "s3cret"

type fakeScheduler struct {
	mu           sync.Mutex
	connected    []uint64
	disconnected []uint64
	results      []models.TaskResult
	resultFrom   []uint64
	assignCalls  int
}

func (f *fakeScheduler) HandleWorkerConnected(id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = append(f.connected, id)
}

func (f *fakeScheduler) HandleWorkerDisconnected(_ context.Context, id uint64) []models.TaskExecution {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = append(f.disconnected, id)
	return nil
}

func (f *fakeScheduler) HandleResult(_ context.Context, id uint64, r models.TaskResult) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, r)
	f.resultFrom = append(f.resultFrom, id)
	return true
}

func (f *fakeScheduler) AssignNextTask() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assignCalls++
	return 0
}

func (f *fakeScheduler) snapshot() fakeScheduler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fakeScheduler{
		connected:    append([]uint64(nil), f.connected...),
		disconnected: append([]uint64(nil), f.disconnected...),
		results:      append([]models.TaskResult(nil), f.results...),
		resultFrom:   append([]uint64(nil), f.resultFrom...),
		assignCalls:  f.assignCalls,
	}
}

type poolFixture struct {
	pool     *Pool
	registry *registry.Registry
	sched    *fakeScheduler
	url      string
}

func setupPool(t *testing.T, cfg Config) poolFixture {
	t.Helper()
	if cfg.Secret == "" {
		cfg.Secret = testSecret
	}
	reg := registry.New()
	sched := &fakeScheduler{}
	pool := New(reg, sched, cfg, zap.NewNop().Sugar())
	srv := httptest.NewServer(pool.Handler())
	t.Cleanup(func() {
		_ = pool.Shutdown(context.Background())
		srv.Close()
	})
	return poolFixture{
		pool:     pool,
		registry: reg,
		sched:    sched,
		url:      "ws" + strings.TrimPrefix(srv.URL, "http") + Path,
	}
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func workerHeader(secret string) http.Header {
	h := http.Header{}
	if secret != "" {
		h.Set(models.HeaderWorkerSecret, secret)
	}
	return h
}

func send(t *testing.T, conn *websocket.Conn, msgType string, data any) {
	t.Helper()
	msg, err := models.NewMessage(msgType, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(msg))
}

func readMessage(t *testing.T, conn *websocket.Conn) models.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg models.Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func closeCode(t *testing.T, conn *websocket.Conn) int {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	var ce *websocket.CloseError
	require.True(t, errors.As(err, &ce), "expected close error, got %v", err)
	return ce.Code
}

func TestHandshake_MissingSecret(t *testing.T) {
	f := setupPool(t, Config{})
	conn := dial(t, f.url, workerHeader(""))
	assert.Equal(t, models.CloseMissingSecret, closeCode(t, conn))
	assert.Empty(t, f.registry.ListWorkers())
	assert.Empty(t, f.sched.snapshot().connected)
}

func TestHandshake_InvalidSecret(t *testing.T) {
	f := setupPool(t, Config{})
	conn := dial(t, f.url, workerHeader("wrong"))
	assert.Equal(t, models.CloseInvalidSecret, closeCode(t, conn))
	assert.Empty(t, f.registry.ListWorkers())
}

func TestWorkerLifecycle(t *testing.T) {
	f := setupPool(t, Config{})
	f.registry.RegisterTool(models.Tool{Name: "nmap", Version: "7.94", DownloadURL: "https://example.com/nmap"})

	h := workerHeader(testSecret)
	h.Set(models.HeaderWorkerName, "scanner-1")
	h.Set(models.HeaderWorkerAggressive, "true")
	conn := dial(t, f.url, h)

	require.Eventually(t, func() bool { return len(f.sched.snapshot().connected) == 1 }, 2*time.Second, 10*time.Millisecond)
	workers := f.registry.ListWorkers()
	require.Len(t, workers, 1)
	w := workers[0]
	assert.Equal(t, "scanner-1", w.Name)
	assert.True(t, w.AggressiveEnabled)
	assert.Equal(t, 0, w.Capacity)
	assert.Equal(t, 1, f.pool.ConnectedCount())

	send(t, conn, models.MessageToolsList, []string{"nmap@7.94", "custom@1.0"})
	send(t, conn, models.MessageWorkerReady, models.WorkerReady{Count: 3})

	require.Eventually(t, func() bool { return f.sched.snapshot().assignCalls == 1 }, 2*time.Second, 10*time.Millisecond)
	got, ok := f.registry.GetWorker(w.ID)
	require.True(t, ok)
	assert.Equal(t, 3, got.Capacity)
	assert.Equal(t, map[string]bool{"nmap@7.94": true, "custom@1.0": true}, got.ToolIdentifiers())
	assert.Equal(t, "https://example.com/nmap", got.AvailableTools[0].DownloadURL, "known tools resolve to their definition")

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return len(f.sched.snapshot().disconnected) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []uint64{w.ID}, f.sched.snapshot().disconnected)
	assert.Equal(t, 0, f.pool.ConnectedCount())
}

func TestSendTask(t *testing.T) {
	f := setupPool(t, Config{})
	conn := dial(t, f.url, workerHeader(testSecret))
	require.Eventually(t, func() bool { return f.pool.ConnectedCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	w := f.registry.ListWorkers()[0]

	exec := models.TaskExecution{
		ExecutionID: 42,
		Content:     models.TaskContent{Commands: []string{"echo hi"}, ExtractResult: true},
		Status:      models.StatusRunning,
	}
	require.NoError(t, f.pool.SendTask(w.ID, exec))

	msg := readMessage(t, conn)
	assert.Equal(t, models.MessageTaskStart, msg.Type)
	var got models.TaskExecution
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, uint64(42), got.ExecutionID)
	assert.Equal(t, []string{"echo hi"}, got.Content.Commands)

	err := f.pool.SendTask(w.ID+100, exec)
	assert.True(t, errors.Is(err, ErrNoSuchWorker))
}

func TestTaskResultHandling(t *testing.T) {
	f := setupPool(t, Config{})
	conn := dial(t, f.url, workerHeader(testSecret))
	require.Eventually(t, func() bool { return f.pool.ConnectedCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	w := f.registry.ListWorkers()[0]

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"task:result","data":{"executionId":"abc","success":true}}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"task:result","data":{"success":true}}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"task:result","data":{"executionId":-3,"success":true}}`)))

	load := 0.4
	send(t, conn, models.MessageTaskResult, models.TaskResult{ExecutionID: 7, Success: true, Output: "ok", LoadFactor: &load})

	require.Eventually(t, func() bool { return len(f.sched.snapshot().results) == 1 }, 2*time.Second, 10*time.Millisecond)
	snap := f.sched.snapshot()
	assert.Equal(t, uint64(7), snap.results[0].ExecutionID)
	assert.Equal(t, "ok", snap.results[0].Output)
	assert.Equal(t, 0.4, *snap.results[0].LoadFactor)
	assert.Equal(t, []uint64{w.ID}, snap.resultFrom)
	assert.Equal(t, 1, f.pool.ConnectedCount(), "malformed frames do not close the connection")
}

func TestPingLiveness(t *testing.T) {
	f := setupPool(t, Config{PingInterval: 50 * time.Millisecond})
	conn := dial(t, f.url, workerHeader(testSecret))

	msg := readMessage(t, conn)
	assert.Equal(t, models.MessagePing, msg.Type)
	send(t, conn, models.MessagePong, nil)

	// A worker that stops answering is dropped after two intervals.
	require.Eventually(t, func() bool { return len(f.sched.snapshot().disconnected) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestDisconnectByOperator(t *testing.T) {
	f := setupPool(t, Config{})
	conn := dial(t, f.url, workerHeader(testSecret))
	require.Eventually(t, func() bool { return f.pool.ConnectedCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	w := f.registry.ListWorkers()[0]

	require.NoError(t, f.pool.Disconnect(w.ID))
	assert.Equal(t, websocket.CloseNormalClosure, closeCode(t, conn))
	require.Eventually(t, func() bool { return len(f.sched.snapshot().disconnected) == 1 }, 2*time.Second, 10*time.Millisecond)

	assert.True(t, errors.Is(f.pool.Disconnect(w.ID), ErrNoSuchWorker))
}

func TestEnqueue_FullBuffer(t *testing.T) {
	c := &workerConn{id: 1, send: make(chan []byte, 1), done: make(chan struct{})}
	require.NoError(t, c.enqueue([]byte("a")))
	assert.True(t, errors.Is(c.enqueue([]byte("b")), ErrSendBufferFull))

	c.close(websocket.CloseNormalClosure, "")
	assert.True(t, errors.Is(c.enqueue([]byte("c")), ErrNoSuchWorker))
}
