package executors

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"task-orchestration-service/internal/logger"
	"task-orchestration-service/internal/models"
	"task-orchestration-service/pkg/taskcontent"
)

const (
	DefaultShell = "/bin/bash"

	// waitDelay bounds how long Wait blocks on pipes held open by
	// grandchildren after the shell itself was killed.
	waitDelay = 5 * time.Second
)

// ShellExecutor runs an execution's commands as one AND-joined script.
type ShellExecutor struct {
	Shell   string
	WorkDir string
	TempDir string
	// RunID scopes temp files to this worker process.
	RunID   string
	Timeout time.Duration

	log *zap.SugaredLogger
}

func NewShellExecutor(shell, workDir, runID string, timeout time.Duration, log *zap.SugaredLogger) *ShellExecutor {
	if shell == "" {
		shell = DefaultShell
	}
	return &ShellExecutor{
		Shell:   shell,
		WorkDir: workDir,
		TempDir: os.TempDir(),
		RunID:   runID,
		Timeout: timeout,
		log:     logger.Component(log, "executor"),
	}
}

// Execute implements the Executor interface.
func (e *ShellExecutor) Execute(ctx context.Context, task models.TaskExecution) models.TaskResult {
	result := models.TaskResult{ExecutionID: task.ExecutionID, ScheduledTaskID: task.ScheduledTaskID}
	if len(task.Content.Commands) == 0 {
		result.Error = "execution has no commands"
		return result
	}

	scope := strconv.FormatUint(task.ExecutionID, 10)
	if e.RunID != "" {
		scope += "-" + e.RunID
	}
	commands := taskcontent.SubstituteTempFiles(task.Content.Commands, e.TempDir, scope)
	defer e.removeTempFiles(task.Content.Commands, scope)

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, e.Shell, "-c", taskcontent.Script(commands))
	cmd.Dir = e.WorkDir
	cmd.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.log.Infow("Executing task", logger.FieldExecutionID, task.ExecutionID, logger.FieldCount, len(commands))
	started := time.Now()
	err := cmd.Run()
	elapsed := time.Since(started)

	if err != nil {
		result.Output = stdout.String()
		switch {
		case ctx.Err() == context.DeadlineExceeded:
			result.Error = fmt.Sprintf("execution timed out after %s", e.Timeout)
		case ctx.Err() != nil:
			result.Error = fmt.Sprintf("execution cancelled: %v", ctx.Err())
		default:
			result.Error = err.Error()
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			result.Error += ": " + msg
		}
		e.log.Warnw("Task failed",
			logger.FieldExecutionID, task.ExecutionID,
			"elapsed", elapsed,
			logger.FieldError, result.Error,
		)
		return result
	}

	result.Success = true
	result.Output = stdout.String()
	if task.Content.ExtractResult {
		result.Output = ExtractResult(result.Output)
	}
	if stderr.Len() > 0 {
		e.log.Debugw("Task wrote to stderr", logger.FieldExecutionID, task.ExecutionID, "stderr", stderr.String())
	}
	e.log.Infow("Task completed", logger.FieldExecutionID, task.ExecutionID, "elapsed", elapsed)
	return result
}

func (e *ShellExecutor) removeTempFiles(commands []string, scope string) {
	for _, name := range taskcontent.TempFileNames(commands) {
		path := taskcontent.TempFilePath(e.TempDir, scope, name)
		if err := os.RemoveAll(path); err != nil {
			e.log.Warnw("Failed to remove temp file", "path", path, logger.FieldError, err)
		}
	}
}

var _ Executor = (*ShellExecutor)(nil)
