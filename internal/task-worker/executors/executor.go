package executors

import (
	"context"
	"strings"

	"task-orchestration-service/internal/models"
)

// Executor runs one execution and always produces its result, failures
// included.
type Executor interface {
	Execute(ctx context.Context, task models.TaskExecution) models.TaskResult
}

// ExtractResult returns the trimmed text between the result markers, or the
// whole stdout when the markers are missing or out of order.
func ExtractResult(stdout string) string {
	start := strings.Index(stdout, models.ResultStartMarker)
	if start < 0 {
		return stdout
	}
	rest := stdout[start+len(models.ResultStartMarker):]
	end := strings.Index(rest, models.ResultEndMarker)
	if end < 0 {
		return stdout
	}
	return strings.TrimSpace(rest[:end])
}
