package api

import (
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cockroachdb/errors"

	"task-orchestration-service/internal/task-manager/registry"
	"task-orchestration-service/internal/task-manager/services"
	"task-orchestration-service/internal/task-manager/workerpool"
)

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrTemplateNotFound),
		errors.Is(err, services.ErrTargetNotFound),
		errors.Is(err, registry.ErrNotFound),
		errors.Is(err, workerpool.ErrNoSuchWorker):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInvalidDefinition),
		errors.Is(err, services.ErrInvalidInterval),
		errors.Is(err, services.ErrParamsInvalid):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrExecutionInFlight):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(c *app.RequestContext, err error) {
	c.JSON(statusFor(err), utils.H{"error": err.Error()})
}

func badRequest(c *app.RequestContext, msg string) {
	c.JSON(http.StatusBadRequest, utils.H{"error": msg})
}
