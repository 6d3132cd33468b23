package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	_ "github.com/azhengyongqin/analysis-hub/docs" // Swagger docs
	"github.com/azhengyongqin/analysis-hub/internal/cache"
	"github.com/azhengyongqin/analysis-hub/internal/config"
	"github.com/azhengyongqin/analysis-hub/internal/healthcheck"
	"github.com/azhengyongqin/analysis-hub/internal/logger"
	"github.com/azhengyongqin/analysis-hub/internal/metrics"
	asynqx "github.com/azhengyongqin/analysis-hub/internal/queue"
	"github.com/azhengyongqin/analysis-hub/internal/repository"
	httpserver "github.com/azhengyongqin/analysis-hub/internal/server"
	"github.com/azhengyongqin/analysis-hub/internal/storage/postgres"
	"github.com/azhengyongqin/analysis-hub/internal/tasks"
)

// @title Analysis-Hub API
// @version 1.0.0
// @description 数据集分析任务控制面：kickoff 去重、任务状态、数据集聚合状态与 WebSocket 推送
// @license.name MIT
// @BasePath /api/v1
// @schemes http https
// @host localhost:28080

func main() {
	if err := logger.Init(os.Getenv("PRODUCTION") == "true"); err != nil {
		logger.Fatal().Err(err).Msg("初始化日志失败")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("加载配置失败")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("配置验证失败")
	}
	logger.SetLevel(cfg.Log.Level)

	logger.Info().
		Str("http", cfg.HTTP.Addr).
		Str("queue", cfg.Tasks.Queue).
		Bool("postgres", cfg.Postgres.Enabled()).
		Msg("服务启动")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 结果缓存
	redisCache, err := cache.NewRedisCache(cfg.Redis.URI)
	if err != nil {
		logger.Fatal().Err(err).Msg("连接 Redis 失败")
	}
	defer redisCache.Close()

	results, err := cache.NewRedisResultStore(redisCache, cfg.Tasks.ResultTTL)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化结果存储失败")
	}

	// asynq：入队与队列统计
	queueClient, err := asynqx.NewClient(cfg.Redis.URI, cfg.Tasks.Queue)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化 asynq client 失败")
	}
	defer queueClient.Close()

	inspector, err := asynqx.NewInspector(cfg.Redis.URI)
	if err != nil {
		logger.Fatal().Err(err).Msg("创建队列 Inspector 失败")
	}
	defer inspector.Close()

	// Postgres 可选：任务历史与回收后的状态查询
	var (
		pool     *pgxpool.Pool
		taskRepo *repository.TaskRepo
		svcOpts  = []tasks.Option{tasks.WithLogger(logger.Component("tasks"))}
	)
	if cfg.Postgres.Enabled() {
		if err := postgres.Migrate(ctx, cfg.Postgres.DSN); err != nil {
			logger.Fatal().Err(err).Msg("数据库迁移失败")
		}
		pool, err = postgres.NewPool(ctx, cfg.Postgres.DSN, cfg.DBPool)
		if err != nil {
			logger.Fatal().Err(err).Msg("连接数据库失败")
		}
		defer pool.Close()

		taskRepo = repository.NewTaskRepo(pool)
		svcOpts = append(svcOpts, tasks.WithRecorder(taskRepo))
		logger.Info().Msg("已启用任务持久化")
	}

	store := tasks.NewStore()
	svc := tasks.NewService(store, results, queueClient, svcOpts...)

	deps := httpserver.Deps{
		Service:               svc,
		Inspector:             inspector,
		Queue:                 cfg.Tasks.Queue,
		HealthChecker:         healthcheck.NewHealthChecker(pool, inspector, redisCache),
		TaskStreamInterval:    cfg.Stream.TaskInterval,
		DatasetStreamInterval: cfg.Stream.DatasetInterval,
		ShutdownCtx:           ctx,
	}
	if taskRepo != nil {
		deps.TaskRepo = taskRepo
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpserver.NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTP.Addr).Msg("HTTP 服务监听")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		janitor := tasks.NewJanitor(store, cfg.Tasks.Retention, cfg.Tasks.GCInterval,
			logger.Component("janitor"))
		return janitor.Run(gctx)
	})

	if pool != nil {
		g.Go(func() error {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					metrics.UpdateDBPoolStats(postgres.PoolStats(pool))
				}
			}
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		// 推送连接由 ShutdownCtx 以 1001 关闭
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("服务异常退出")
		os.Exit(1)
	}
	logger.Info().Msg("服务已优雅关闭")
}
