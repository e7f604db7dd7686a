// Package runtime is the worker process: it keeps a connection to the
// manager, announces its tools and capacity, and runs assigned executions
// under a local concurrency ceiling.
package runtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"task-orchestration-service/internal/logger"
	"task-orchestration-service/internal/models"
	"task-orchestration-service/internal/task-worker/executors"
)

// ErrRejected is returned when the manager refused the worker's secret.
// Reconnecting will not help.
var ErrRejected = errors.New("manager rejected the worker")

const (
	DefaultReconnectMin = time.Second
	DefaultReconnectMax = time.Minute

	writeWait      = 10 * time.Second
	outboundBuffer = 64
)

type Config struct {
	ManagerURL    string
	Secret        string
	Name          string
	ToolsRoot     string
	MaxConcurrent int
	Aggressive    bool
	ReconnectMin  time.Duration
	ReconnectMax  time.Duration
}

// LoadFunc reports the worker's load factor given its running and maximum
// execution counts.
type LoadFunc func(running, max int) float64

type Client struct {
	cfg      Config
	executor executors.Executor
	load     LoadFunc
	log      *zap.SugaredLogger
	dialer   *websocket.Dialer

	sem     chan struct{}
	running atomic.Int32
}

func NewClient(cfg Config, executor executors.Executor, log *zap.SugaredLogger) *Client {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = DefaultReconnectMin
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = DefaultReconnectMax
	}
	return &Client{
		cfg:      cfg,
		executor: executor,
		load:     SystemLoad,
		log:      logger.Component(log, "worker"),
		dialer:   &websocket.Dialer{HandshakeTimeout: writeWait},
		sem:      make(chan struct{}, cfg.MaxConcurrent),
	}
}

// SetLoadFunc replaces the load factor source.
func (c *Client) SetLoadFunc(f LoadFunc) {
	c.load = f
}

// Running returns the number of executions currently running.
func (c *Client) Running() int {
	return int(c.running.Load())
}

// Run keeps a session with the manager until ctx is cancelled or the manager
// rejects the worker. Other failures reconnect with exponential backoff.
func (c *Client) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.ReconnectMin
	b.MaxInterval = c.cfg.ReconnectMax

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := c.session(ctx, b.Reset)
		switch {
		case ctx.Err() != nil:
			return struct{}{}, backoff.Permanent(ctx.Err())
		case errors.Is(err, ErrRejected):
			return struct{}{}, backoff.Permanent(err)
		case err == nil:
			err = errors.New("connection closed by manager")
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.log.Warnw("Connection to manager lost, reconnecting", logger.FieldError, err, "retry_in", wait)
		}),
	)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *Client) header() http.Header {
	h := http.Header{}
	h.Set(models.HeaderWorkerSecret, c.cfg.Secret)
	h.Set(models.HeaderWorkerAggressive, strconv.FormatBool(c.cfg.Aggressive))
	if c.cfg.Name != "" {
		h.Set(models.HeaderWorkerName, c.cfg.Name)
	}
	return h
}

// session runs one connection. Executions started in it are cancelled when it
// ends, since the manager requeues them on disconnect.
func (c *Client) session(ctx context.Context, onConnected func()) error {
	ws, _, err := c.dialer.DialContext(ctx, c.cfg.ManagerURL, c.header())
	if err != nil {
		return errors.Wrap(err, "dial manager")
	}
	onConnected()
	c.log.Infow("Connected to manager", "url", c.cfg.ManagerURL)

	sessCtx, cancel := context.WithCancel(ctx)
	out := make(chan models.Message, outboundBuffer)
	var tasks sync.WaitGroup
	writerDone := make(chan struct{})

	go c.writeLoop(sessCtx, ws, out, writerDone)
	defer func() {
		cancel()
		<-writerDone
		tasks.Wait()
	}()

	tools, err := ScanTools(c.cfg.ToolsRoot)
	if err != nil {
		c.log.Warnw("Failed to scan tools root", "root", c.cfg.ToolsRoot, logger.FieldError, err)
	}
	if !c.enqueue(sessCtx, out, models.MessageToolsList, tools) ||
		!c.enqueue(sessCtx, out, models.MessageWorkerReady, models.WorkerReady{Count: c.cfg.MaxConcurrent}) {
		return errors.New("session closed before announcing capacity")
	}

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) && (ce.Code == models.CloseMissingSecret || ce.Code == models.CloseInvalidSecret) {
				return errors.Wrapf(ErrRejected, "close code %d: %s", ce.Code, ce.Text)
			}
			return errors.Wrap(err, "read from manager")
		}

		var msg models.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Warnw("Dropping malformed frame", logger.FieldError, err)
			continue
		}
		switch msg.Type {
		case models.MessagePing:
			c.enqueue(sessCtx, out, models.MessagePong, nil)
		case models.MessageTaskStart:
			var task models.TaskExecution
			if err := json.Unmarshal(msg.Data, &task); err != nil || task.ExecutionID == 0 {
				c.log.Warnw("Dropping malformed task:start", logger.FieldError, err)
				continue
			}
			tasks.Add(1)
			go func() {
				defer tasks.Done()
				c.runTask(sessCtx, task, out)
			}()
		default:
			c.log.Debugw("Ignoring unknown message type", "type", msg.Type)
		}
	}
}

func (c *Client) runTask(ctx context.Context, task models.TaskExecution, out chan<- models.Message) {
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	c.running.Add(1)
	result := c.executor.Execute(ctx, task)
	running := int(c.running.Add(-1))
	<-c.sem

	load := c.load(running, c.cfg.MaxConcurrent)
	result.LoadFactor = &load
	if !c.enqueue(ctx, out, models.MessageTaskResult, result) {
		c.log.Warnw("Result dropped, session closed", logger.FieldExecutionID, task.ExecutionID)
	}
}

func (c *Client) enqueue(ctx context.Context, out chan<- models.Message, msgType string, data any) bool {
	msg, err := models.NewMessage(msgType, data)
	if err != nil {
		c.log.Errorw("Failed to encode message", "type", msgType, logger.FieldError, err)
		return false
	}
	select {
	case out <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

// writeLoop is the connection's only writer.
func (c *Client) writeLoop(ctx context.Context, ws *websocket.Conn, out <-chan models.Message, done chan<- struct{}) {
	defer close(done)
	defer ws.Close()
	for {
		select {
		case msg := <-out:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(msg); err != nil {
				c.log.Warnw("Write to manager failed", logger.FieldError, err)
				return
			}
		case <-ctx.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}
