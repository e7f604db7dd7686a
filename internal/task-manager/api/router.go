package api

import (
	"github.com/cloudwego/hertz/pkg/app/server"
)

// Handlers groups everything the operator API serves.
type Handlers struct {
	Templates *TaskTemplateHandler
	Tasks     *TaskHandler
	Targets   *TargetHandler
}

// Register mounts the operator routes on r.
func Register(r *server.Hertz, h Handlers) {
	r.GET("/ping", h.Tasks.Ping)
	r.GET("/status", h.Tasks.GetStatus)
	r.POST("/scheduler/refresh", h.Tasks.RefreshScheduler)

	templateGroup := r.Group("/templates")
	{
		templateGroup.POST("", h.Templates.CreateTaskTemplate)
		templateGroup.GET("", h.Templates.GetTaskTemplates)
		templateGroup.GET("/:id", h.Templates.GetTaskTemplateByID)
		templateGroup.PATCH("/:id", h.Templates.UpdateTaskTemplate)
		templateGroup.DELETE("/:id", h.Templates.DeleteTaskTemplate)
		templateGroup.POST("/:id/run", h.Templates.RunTaskTemplate)
		templateGroup.GET("/:id/targets", h.Templates.GetTaskTemplateTargets)
		templateGroup.GET("/:id/overrides", h.Templates.GetOverrides)
	}
	targetGroup := r.Group("/targets")
	{
		targetGroup.GET("", h.Targets.GetActiveTargets)
		targetGroup.POST("", h.Targets.CreateTarget)
		targetGroup.GET("/:targetId", h.Targets.GetTargetByID)
		targetGroup.PUT("/:targetId", h.Targets.UpdateTarget)
		targetGroup.DELETE("/:targetId", h.Targets.DeleteTarget)
		targetGroup.PUT("/:targetId/templates/:id/override", h.Templates.SetOverride)
		targetGroup.DELETE("/:targetId/templates/:id/override", h.Templates.DeleteOverride)
	}
	executionGroup := r.Group("/executions")
	{
		executionGroup.GET("", h.Tasks.GetExecutions)
		executionGroup.GET("/pending", h.Tasks.GetPendingQueue)
		executionGroup.GET("/:id", h.Tasks.GetExecutionByID)
	}
	r.GET("/scheduled-tasks", h.Tasks.GetScheduledTasks)
	r.POST("/scheduled-tasks/:id/run", h.Tasks.RunScheduledTask)
	moduleGroup := r.Group("/modules")
	{
		moduleGroup.GET("", h.Tasks.GetModules)
		moduleGroup.POST("", h.Tasks.LoadModule)
		moduleGroup.DELETE("/:moduleId", h.Tasks.UnloadModule)
	}
	workerGroup := r.Group("/workers")
	{
		workerGroup.GET("", h.Tasks.GetWorkers)
		workerGroup.DELETE("/:id", h.Tasks.DisconnectWorker)
	}
}
