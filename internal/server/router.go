package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/azhengyongqin/analysis-hub/internal/healthcheck"
	"github.com/azhengyongqin/analysis-hub/internal/logger"
	"github.com/azhengyongqin/analysis-hub/internal/middleware"
	"github.com/azhengyongqin/analysis-hub/internal/repository"
	"github.com/azhengyongqin/analysis-hub/internal/server/handler"
	"github.com/azhengyongqin/analysis-hub/internal/tasks"
)

type Deps struct {
	Service *tasks.Service

	// 可选：配置了 Postgres 时提供任务历史
	TaskRepo repository.TaskRepository

	// 可选：队列统计
	Inspector *asynq.Inspector
	Queue     string

	// HealthChecker 健康检查器
	HealthChecker *healthcheck.HealthChecker

	// 推送间隔，零值使用默认 2s / 3s
	TaskStreamInterval    time.Duration
	DatasetStreamInterval time.Duration

	// ShutdownCtx 结束时关闭所有推送连接
	ShutdownCtx context.Context
}

// NewRouter 提供 Gin HTTP API 与 WebSocket 推送
// @title Analysis-Hub API
// @version 1.0.0
// @description 数据集分析任务控制面 API
// @BasePath /api/v1
// @schemes http https
func NewRouter(deps Deps) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	// 全局中间件
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.PrometheusMiddleware())
	r.Use(middleware.LoggingMiddleware())
	r.Use(middleware.CORSMiddleware())

	shutdown := deps.ShutdownCtx
	if shutdown == nil {
		shutdown = context.Background()
	}

	// 创建各个 handler 实例
	healthHandler := handler.NewHealthHandler(deps.HealthChecker, deps.Service)
	analysisHandler := handler.NewAnalysisHandler(deps.Service)
	taskHandler := handler.NewTaskHandler(deps.Service)
	datasetHandler := handler.NewDatasetHandler(deps.Service, deps.TaskRepo)
	queueHandler := handler.NewQueueHandler(deps.Inspector, deps.Queue)
	streamHandler := handler.NewStreamHandler(deps.Service,
		handler.WithIntervals(deps.TaskStreamInterval, deps.DatasetStreamInterval),
		handler.WithShutdown(shutdown),
		handler.WithStreamLogger(logger.Component("stream")),
	)

	// 健康检查路由
	r.GET("/healthz", healthHandler.Liveness)
	r.GET("/readyz", healthHandler.Readiness)

	// Prometheus metrics 端点
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Swagger API 文档
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api/v1")
	api.Use(middleware.PayloadSizeLimit(middleware.MaxPayloadSize))
	{
		api.POST("/analysis/:dataset_id/:analysis_type",
			middleware.ValidateDatasetIDParam(), middleware.ValidateAnalysisTypeParam(), analysisHandler.Kickoff)

		api.GET("/tasks/:task_id", middleware.ValidateTaskIDParam(), taskHandler.GetTask)
		api.POST("/tasks/:task_id/report", middleware.ValidateTaskIDParam(), taskHandler.Report)
		api.POST("/tasks/:task_id/cancel", middleware.ValidateTaskIDParam(), taskHandler.Cancel)

		ds := api.Group("/datasets/:dataset_id", middleware.ValidateDatasetIDParam())
		ds.GET("/status", datasetHandler.GetStatus)
		ds.GET("/tasks", datasetHandler.ListTasks)
		ds.GET("/results/:analysis_type", middleware.ValidateAnalysisTypeParam(), datasetHandler.GetResult)
		ds.DELETE("/results", datasetHandler.ClearResults)

		api.GET("/queue/stats", queueHandler.GetQueueStats)
	}

	ws := r.Group("/ws")
	{
		ws.GET("/task/:task_id", middleware.ValidateTaskIDParam(), streamHandler.TaskStream)
		ws.GET("/dataset/:dataset_id", middleware.ValidateDatasetIDParam(), streamHandler.DatasetStream)
	}

	return r
}
