package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/azhengyongqin/analysis-hub/internal/config"
	"github.com/azhengyongqin/analysis-hub/internal/logger"
	"github.com/azhengyongqin/analysis-hub/internal/runner"
)

// 分析 worker：消费 analysis:run，执行 DemoAnalyzer 并把进度上报到控制面。
// 真实的分析实现通过 runner.WithAnalyzer 按类型注册。

func main() {
	// .env 只补充未设置的环境变量，文件不存在时忽略
	_ = godotenv.Load()

	if err := logger.Init(os.Getenv("PRODUCTION") == "true"); err != nil {
		logger.Fatal().Err(err).Msg("初始化日志失败")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("加载配置失败")
	}
	logger.SetLevel(cfg.Log.Level)

	reporter := runner.Reporter{
		ControlPlaneURL: cfg.Worker.ControlPlaneURL,
		Logger:          logger.Component("reporter"),
	}

	r, err := runner.New(cfg.Redis.URI, reporter,
		runner.WithQueue(cfg.Tasks.Queue),
		runner.WithConcurrency(cfg.Worker.Concurrency),
		runner.WithReportEvery(cfg.Worker.ReportEvery),
		runner.WithEstimator(runner.NewEstimator()),
		runner.WithFallback(runner.DemoAnalyzer{Items: 100, Delay: 50 * time.Millisecond}),
		runner.WithLogger(logger.Component("runner")),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化 worker 失败")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("control_plane", cfg.Worker.ControlPlaneURL).
		Str("queue", cfg.Tasks.Queue).
		Int("concurrency", cfg.Worker.Concurrency).
		Msg("analysis worker 启动")

	if err := r.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("worker 异常退出")
	}
}
