package services

import (
	"context"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"task-orchestration-service/internal/logger"
	"task-orchestration-service/internal/models"
	"task-orchestration-service/internal/task-manager/events"
)

const publishTimeout = 10 * time.Second

// MessageWriter is the part of *kafka.Writer the ResultService needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// ResultService publishes execution outcomes and requeues to Kafka for
// consumers outside the control plane.
type ResultService struct {
	Writer MessageWriter
	log    *zap.SugaredLogger
}

func NewResultService(writer MessageWriter, log *zap.SugaredLogger) *ResultService {
	return &ResultService{Writer: writer, log: logger.Component(log, "results")}
}

// Register subscribes the service to the scheduler's listeners.
func (s *ResultService) Register(sched *SchedulerService) {
	sched.AddListener(s.OnResult)
	sched.AddRequeueListener(s.OnRequeue)
}

// OnResult publishes an execution.completed event keyed by execution id.
func (s *ResultService) OnResult(ctx context.Context, exec models.TaskExecution, _ models.TaskResult) error {
	payload, err := events.Encode(events.NewExecutionCompleted(exec))
	if err != nil {
		return err
	}
	return s.publish(ctx, events.TypeExecutionCompleted, strconv.FormatUint(exec.ExecutionID, 10), payload)
}

// OnRequeue publishes an executions.requeued event keyed by worker id.
func (s *ResultService) OnRequeue(ctx context.Context, workerID uint64, execs []models.TaskExecution) {
	ids := make([]uint64, len(execs))
	for i, e := range execs {
		ids[i] = e.ExecutionID
	}
	payload, err := events.Encode(events.ExecutionsRequeuedPayload{WorkerID: workerID, ExecutionIDs: ids, At: time.Now()})
	if err == nil {
		err = s.publish(ctx, events.TypeExecutionsRequeued, strconv.FormatUint(workerID, 10), payload)
	}
	if err != nil {
		s.log.Warnw("Failed to publish requeue event", logger.FieldWorkerID, workerID, logger.FieldError, err)
	}
}

func (s *ResultService) publish(ctx context.Context, eventType, key string, value []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	msg := kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Headers: []kafka.Header{{Key: events.HeaderEventType, Value: []byte(eventType)}},
	}
	if err := s.Writer.WriteMessages(writeCtx, msg); err != nil {
		return errors.Wrapf(err, "publish %s", eventType)
	}
	s.log.Debugw("Event published", "type", eventType, "key", key)
	return nil
}
