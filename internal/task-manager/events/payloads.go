package events

import (
	"time"

	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"task-orchestration-service/internal/models"
)

// Event types, carried in the Kafka "event-type" header and the payload.
const (
	TypeExecutionCompleted = "execution.completed"
	TypeExecutionsRequeued = "executions.requeued"

	HeaderEventType = "event-type"
)

// ExecutionCompletedPayload is published after a result was applied.
type ExecutionCompletedPayload struct {
	ExecutionID     uint64
	ScheduledTaskID *uint64
	TemplateID      uint
	ModuleID        string
	TargetID        *uint
	WorkerID        uint64
	Status          models.ExecutionStatus
	Output          string
	Error           string
	StartedAt       *time.Time
	FinishedAt      *time.Time
}

// NewExecutionCompleted builds the payload from the stored execution.
func NewExecutionCompleted(exec models.TaskExecution) ExecutionCompletedPayload {
	p := ExecutionCompletedPayload{
		ExecutionID:     exec.ExecutionID,
		ScheduledTaskID: exec.ScheduledTaskID,
		TemplateID:      exec.TemplateID,
		ModuleID:        exec.ModuleID,
		TargetID:        exec.TargetID,
		Status:          exec.Status,
		Output:          exec.Output,
		Error:           exec.Error,
		StartedAt:       exec.StartedAt,
		FinishedAt:      exec.FinishedAt,
	}
	if exec.WorkerID != nil {
		p.WorkerID = *exec.WorkerID
	}
	return p
}

func (p ExecutionCompletedPayload) fields() map[string]any {
	f := map[string]any{
		"type":         TypeExecutionCompleted,
		"execution_id": float64(p.ExecutionID),
		"template_id":  float64(p.TemplateID),
		"module_id":    p.ModuleID,
		"worker_id":    float64(p.WorkerID),
		"status":       string(p.Status),
		"output":       p.Output,
		"error":        p.Error,
	}
	if p.ScheduledTaskID != nil {
		f["scheduled_task_id"] = float64(*p.ScheduledTaskID)
	}
	if p.TargetID != nil {
		f["target_id"] = float64(*p.TargetID)
	}
	if p.StartedAt != nil {
		f["started_at"] = p.StartedAt.UTC().Format(time.RFC3339Nano)
	}
	if p.FinishedAt != nil {
		f["finished_at"] = p.FinishedAt.UTC().Format(time.RFC3339Nano)
	}
	return f
}

// ExecutionsRequeuedPayload is published when a disconnect put running
// executions back to pending.
type ExecutionsRequeuedPayload struct {
	WorkerID     uint64
	ExecutionIDs []uint64
	At           time.Time
}

func (p ExecutionsRequeuedPayload) fields() map[string]any {
	ids := make([]any, len(p.ExecutionIDs))
	for i, id := range p.ExecutionIDs {
		ids[i] = float64(id)
	}
	return map[string]any{
		"type":          TypeExecutionsRequeued,
		"worker_id":     float64(p.WorkerID),
		"execution_ids": ids,
		"at":            p.At.UTC().Format(time.RFC3339Nano),
	}
}

type payload interface {
	fields() map[string]any
}

// Encode serializes a payload as a protobuf Struct.
func Encode(p payload) ([]byte, error) {
	st, err := structpb.NewStruct(p.fields())
	if err != nil {
		return nil, errors.Wrap(err, "failed to build event struct")
	}
	b, err := proto.Marshal(st)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal event")
	}
	return b, nil
}

// Decode parses an encoded event back into a generic map.
func Decode(b []byte) (map[string]any, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(b, &st); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal event")
	}
	return st.AsMap(), nil
}
