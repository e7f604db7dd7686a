package models

import (
	"slices"
	"time"
)

// Tool is an installable binary a task may require. Identity is Name@Version.
type Tool struct {
	Name                string   `json:"name"`
	Version             string   `json:"version"`
	Description         string   `json:"description,omitempty"`
	DownloadURL         string   `json:"downloadUrl"`
	PreInstallCommands  []string `json:"preInstallCommands,omitempty"`
	PostInstallCommands []string `json:"postInstallCommands,omitempty"`
}

// Identifier returns the "name@version" form used in tools:list messages.
func (t Tool) Identifier() string {
	return t.Name + "@" + t.Version
}

// TaskContent is the abstract body of a task: shell commands with placeholders.
type TaskContent struct {
	Commands      []string `json:"commands"`
	RequiredTools []Tool   `json:"requiredTools,omitempty"`
	ExtractResult bool     `json:"extractResult,omitempty"`
}

// Clone returns a deep copy so derived content never aliases template storage.
func (c TaskContent) Clone() TaskContent {
	out := TaskContent{
		Commands:      slices.Clone(c.Commands),
		ExtractResult: c.ExtractResult,
	}
	if c.RequiredTools != nil {
		out.RequiredTools = make([]Tool, len(c.RequiredTools))
		for i, t := range c.RequiredTools {
			t.PreInstallCommands = slices.Clone(t.PreInstallCommands)
			t.PostInstallCommands = slices.Clone(t.PostInstallCommands)
			out.RequiredTools[i] = t
		}
	}
	return out
}

type SchedulingType string

const (
	SchedulingTargetBased SchedulingType = "TARGET_BASED"
	SchedulingGlobal      SchedulingType = "GLOBAL"
	SchedulingCustom      SchedulingType = "CUSTOM"
)

// Valid reports whether s is one of the known scheduling types.
func (s SchedulingType) Valid() bool {
	switch s {
	case SchedulingTargetBased, SchedulingGlobal, SchedulingCustom:
		return true
	}
	return false
}

type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "pending"
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s ExecutionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// InFlight reports whether the execution still occupies its ScheduledTask slot.
func (s ExecutionStatus) InFlight() bool {
	return s == StatusPending || s == StatusRunning
}

// ScheduledTask is a materialized recurring slot: template x target, or the
// template alone for GLOBAL scheduling.
type ScheduledTask struct {
	ID              uint64    `json:"id"`
	TemplateID      uint      `json:"templateId"`
	ModuleID        string    `json:"moduleId"`
	TargetID        *uint     `json:"targetId,omitempty"`
	NextExecutionAt time.Time `json:"nextExecutionAt"`
	IntervalSeconds int       `json:"intervalSeconds"`
}

// TaskExecution is one concrete run of a task, sent to exactly one worker.
type TaskExecution struct {
	ExecutionID     uint64          `json:"executionId"`
	ScheduledTaskID *uint64         `json:"scheduledTaskId,omitempty"`
	TemplateID      uint            `json:"templateId"`
	ModuleID        string          `json:"moduleId,omitempty"`
	TargetID        *uint           `json:"targetId,omitempty"`
	WorkerID        *uint64         `json:"workerId,omitempty"`
	Content         TaskContent     `json:"content"`
	Status          ExecutionStatus `json:"status"`
	Aggressive      bool            `json:"aggressive,omitempty"`
	CustomData      map[string]any  `json:"customData,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	StartedAt       *time.Time      `json:"startedAt,omitempty"`
	FinishedAt      *time.Time      `json:"finishedAt,omitempty"`
	Output          string          `json:"output,omitempty"`
	Error           string          `json:"error,omitempty"`
}

// AssignedTo reports whether the execution's last-known assignee is workerID.
func (e TaskExecution) AssignedTo(workerID uint64) bool {
	return e.WorkerID != nil && *e.WorkerID == workerID
}

// TaskResult is produced exactly once per execution by the worker that ran it,
// or synthesized by the scheduler on forced failure.
type TaskResult struct {
	ExecutionID     uint64   `json:"executionId"`
	ScheduledTaskID *uint64  `json:"scheduledTaskId,omitempty"`
	Success         bool     `json:"success"`
	Output          string   `json:"output,omitempty"`
	Error           string   `json:"error,omitempty"`
	LoadFactor      *float64 `json:"loadFactor,omitempty"`
}
