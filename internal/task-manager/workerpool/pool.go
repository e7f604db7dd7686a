// Package workerpool is the control plane's side of the worker connection:
// it authenticates workers, tracks them in the registry, relays their
// messages to the scheduler and delivers task:start frames.
package workerpool

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"task-orchestration-service/internal/logger"
	"task-orchestration-service/internal/models"
	"task-orchestration-service/internal/task-manager/registry"
)

var (
	ErrNoSuchWorker   = errors.New("worker is not connected")
	ErrSendBufferFull = errors.New("worker send buffer is full")
)

const (
	// Path the worker endpoint is mounted on.
	Path = "/ws/worker"

	writeWait      = 10 * time.Second
	maxMessageSize = 4 << 20
	sendBufferSize = 64
)

// Scheduler is what the pool reports worker events to.
type Scheduler interface {
	HandleWorkerConnected(workerID uint64)
	HandleWorkerDisconnected(ctx context.Context, workerID uint64) []models.TaskExecution
	HandleResult(ctx context.Context, workerID uint64, result models.TaskResult) bool
	AssignNextTask() int
}

type Config struct {
	Secret string
	// PingInterval is how often an application ping is sent. A worker that
	// stays silent for two intervals is dropped. Zero disables liveness.
	PingInterval time.Duration
}

type Pool struct {
	registry  *registry.Registry
	scheduler Scheduler
	cfg       Config
	log       *zap.SugaredLogger
	upgrader  websocket.Upgrader

	mu    sync.RWMutex
	conns map[uint64]*workerConn

	server *http.Server
}

func New(reg *registry.Registry, sched Scheduler, cfg Config, log *zap.SugaredLogger) *Pool {
	return &Pool{
		registry:  reg,
		scheduler: sched,
		cfg:       cfg,
		log:       logger.Component(log, "workerpool"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[uint64]*workerConn),
	}
}

// Handler returns the HTTP handler serving the worker endpoint.
func (p *Pool) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(Path, p.ServeHTTP)
	return mux
}

// ListenAndServe serves the worker endpoint until Shutdown.
func (p *Pool) ListenAndServe(addr string) error {
	p.mu.Lock()
	p.server = &http.Server{Addr: addr, Handler: p.Handler(), ReadHeaderTimeout: writeWait}
	srv := p.server
	p.mu.Unlock()

	p.log.Infow("Worker pool listening", "addr", addr, "path", Path)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "worker pool server")
	}
	return nil
}

// Shutdown stops accepting workers and closes every live connection.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.RLock()
	srv := p.server
	conns := make([]*workerConn, 0, len(p.conns))
	for _, c := range p.conns {
		conns = append(conns, c)
	}
	p.mu.RUnlock()

	for _, c := range conns {
		c.close(websocket.CloseGoingAway, "server shutting down")
	}
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (p *Pool) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	secret := r.Header.Get(models.HeaderWorkerSecret)

	ws, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.log.Warnw("WebSocket upgrade failed", "remote", r.RemoteAddr, logger.FieldError, err)
		return
	}

	switch {
	case secret == "":
		p.log.Warnw("Rejecting worker without secret", "remote", r.RemoteAddr)
		reject(ws, models.CloseMissingSecret, "missing worker secret")
		return
	case subtle.ConstantTimeCompare([]byte(secret), []byte(p.cfg.Secret)) != 1:
		p.log.Warnw("Rejecting worker with invalid secret", "remote", r.RemoteAddr)
		reject(ws, models.CloseInvalidSecret, "invalid worker secret")
		return
	}

	aggressive, _ := strconv.ParseBool(r.Header.Get(models.HeaderWorkerAggressive))
	worker := p.registry.AddWorker(models.Worker{
		Name:              r.Header.Get(models.HeaderWorkerName),
		IP:                remoteIP(r),
		AggressiveEnabled: aggressive,
	})

	c := &workerConn{
		id:   worker.ID,
		ws:   ws,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
	p.mu.Lock()
	p.conns[c.id] = c
	p.mu.Unlock()

	p.log.Infow("Worker connected",
		logger.FieldWorkerID, worker.ID,
		"name", worker.Name,
		"ip", worker.IP,
		"aggressive", worker.AggressiveEnabled,
	)

	go p.writePump(c)
	p.scheduler.HandleWorkerConnected(c.id)
	p.readPump(r.Context(), c)
}

func reject(ws *websocket.Conn, code int, reason string) {
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	_ = ws.Close()
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// SendTask queues a task:start frame for the worker. It never blocks: a
// full buffer is reported as a send failure.
func (p *Pool) SendTask(workerID uint64, exec models.TaskExecution) error {
	p.mu.RLock()
	c, ok := p.conns[workerID]
	p.mu.RUnlock()
	if !ok {
		return errors.Wrapf(ErrNoSuchWorker, "worker %d", workerID)
	}

	msg, err := models.NewMessage(models.MessageTaskStart, exec)
	if err != nil {
		return errors.Wrap(err, "encode task:start")
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "encode task:start")
	}
	return c.enqueue(frame)
}

// Disconnect closes a worker's connection. Its running executions are
// requeued by the scheduler once the read loop exits.
func (p *Pool) Disconnect(workerID uint64) error {
	p.mu.RLock()
	c, ok := p.conns[workerID]
	p.mu.RUnlock()
	if !ok {
		return errors.Wrapf(ErrNoSuchWorker, "worker %d", workerID)
	}
	c.close(websocket.CloseNormalClosure, "disconnected by operator")
	return nil
}

// ConnectedCount returns the number of live connections.
func (p *Pool) ConnectedCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.conns)
}

func (p *Pool) readPump(ctx context.Context, c *workerConn) {
	defer func() {
		p.mu.Lock()
		delete(p.conns, c.id)
		p.mu.Unlock()
		c.close(websocket.CloseNormalClosure, "")
		_ = c.ws.Close()

		requeued := p.scheduler.HandleWorkerDisconnected(context.WithoutCancel(ctx), c.id)
		p.log.Infow("Worker disconnected", logger.FieldWorkerID, c.id, "requeued", len(requeued))
	}()

	c.ws.SetReadLimit(maxMessageSize)
	p.extendDeadline(c)
	c.ws.SetPongHandler(func(string) error {
		p.extendDeadline(c)
		return nil
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				p.log.Warnw("Worker read error", logger.FieldWorkerID, c.id, logger.FieldError, err)
			}
			return
		}
		p.extendDeadline(c)
		p.handleFrame(ctx, c.id, raw)
	}
}

func (p *Pool) extendDeadline(c *workerConn) {
	if p.cfg.PingInterval <= 0 {
		_ = c.ws.SetReadDeadline(time.Time{})
		return
	}
	_ = c.ws.SetReadDeadline(time.Now().Add(2 * p.cfg.PingInterval))
}

func (p *Pool) handleFrame(ctx context.Context, workerID uint64, raw []byte) {
	var msg models.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		p.log.Warnw("Dropping malformed frame", logger.FieldWorkerID, workerID, logger.FieldError, err)
		return
	}

	_, _ = p.registry.UpdateWorker(workerID, func(w *models.Worker) { w.LastSeenAt = time.Now() })

	switch msg.Type {
	case models.MessageToolsList:
		var ids []string
		if err := json.Unmarshal(msg.Data, &ids); err != nil {
			p.log.Warnw("Dropping malformed tools:list", logger.FieldWorkerID, workerID, logger.FieldError, err)
			return
		}
		tools := p.registry.FindTools(ids)
		_, _ = p.registry.UpdateWorker(workerID, func(w *models.Worker) { w.AvailableTools = tools })
		p.log.Debugw("Worker tools updated", logger.FieldWorkerID, workerID, logger.FieldCount, len(tools))

	case models.MessageWorkerReady:
		var ready models.WorkerReady
		if err := json.Unmarshal(msg.Data, &ready); err != nil || ready.Count < 0 {
			p.log.Warnw("Dropping malformed worker:ready", logger.FieldWorkerID, workerID, logger.FieldError, err)
			return
		}
		_, _ = p.registry.UpdateWorker(workerID, func(w *models.Worker) { w.Capacity = ready.Count })
		p.log.Infow("Worker ready", logger.FieldWorkerID, workerID, "capacity", ready.Count)
		p.scheduler.AssignNextTask()

	case models.MessageTaskResult:
		var result models.TaskResult
		if err := json.Unmarshal(msg.Data, &result); err != nil || result.ExecutionID == 0 {
			p.log.Warnw("Dropping task:result without a valid executionId", logger.FieldWorkerID, workerID, logger.FieldError, err)
			return
		}
		p.scheduler.HandleResult(ctx, workerID, result)

	case models.MessagePong:

	default:
		p.log.Debugw("Ignoring unknown message type", logger.FieldWorkerID, workerID, "type", msg.Type)
	}
}

func (p *Pool) writePump(c *workerConn) {
	var tick <-chan time.Time
	if p.cfg.PingInterval > 0 {
		ticker := time.NewTicker(p.cfg.PingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	ping, _ := json.Marshal(models.Message{Type: models.MessagePing, Data: json.RawMessage(`{}`)})

	for {
		select {
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				p.log.Warnw("Worker write failed", logger.FieldWorkerID, c.id, logger.FieldError, err)
				_ = c.ws.Close()
				return
			}
		case <-tick:
			if err := c.write(websocket.TextMessage, ping); err != nil {
				_ = c.ws.Close()
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(c.closeCode, c.closeReason), time.Now().Add(writeWait))
			_ = c.ws.Close()
			return
		}
	}
}

type workerConn struct {
	id   uint64
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}

	closeOnce   sync.Once
	closeCode   int
	closeReason string
}

func (c *workerConn) enqueue(frame []byte) error {
	select {
	case <-c.done:
		return errors.Wrapf(ErrNoSuchWorker, "worker %d", c.id)
	default:
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return errors.Wrapf(ErrSendBufferFull, "worker %d", c.id)
	}
}

func (c *workerConn) write(messageType int, data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(messageType, data)
}

func (c *workerConn) close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		close(c.done)
	})
}
