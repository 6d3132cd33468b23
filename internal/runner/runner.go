package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/azhengyongqin/analysis-hub/internal/model"
	asynqx "github.com/azhengyongqin/analysis-hub/internal/queue"
	"github.com/azhengyongqin/analysis-hub/internal/server/dto"
)

// ReportClient 上报通道，Reporter 实现了该接口
type ReportClient interface {
	Report(ctx context.Context, taskID string, req dto.ReportRequest) (dto.ReportResponse, error)
}

// Runner 消费 analysis:run 任务，执行分析并把进度上报到控制面。
// 分析失败是终态，不交给 asynq 重试。
type Runner struct {
	redisURI    string
	queue       string
	concurrency int
	reportEvery int

	reporter  ReportClient
	analyzers map[model.AnalysisType]Analyzer
	fallback  Analyzer
	est       *Estimator
	logger    zerolog.Logger
}

type Option func(*Runner)

func WithQueue(q string) Option         { return func(r *Runner) { r.queue = q } }
func WithConcurrency(n int) Option      { return func(r *Runner) { r.concurrency = n } }
func WithReportEvery(n int) Option      { return func(r *Runner) { r.reportEvery = n } }
func WithEstimator(e *Estimator) Option { return func(r *Runner) { r.est = e } }
func WithLogger(l zerolog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithAnalyzer 为指定分析类型注册实现
func WithAnalyzer(t model.AnalysisType, a Analyzer) Option {
	return func(r *Runner) { r.analyzers[t] = a }
}

// WithFallback 没有注册实现的分析类型使用 a
func WithFallback(a Analyzer) Option {
	return func(r *Runner) { r.fallback = a }
}

func New(redisURI string, reporter ReportClient, opts ...Option) (*Runner, error) {
	if reporter == nil {
		return nil, errors.New("reporter is required")
	}
	r := &Runner{
		redisURI:    redisURI,
		queue:       "analysis",
		concurrency: 4,
		reportEvery: 10,
		reporter:    reporter,
		analyzers:   make(map[model.AnalysisType]Analyzer),
		logger:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(r)
	}
	if r.concurrency <= 0 {
		r.concurrency = 4
	}
	if r.reportEvery <= 0 {
		r.reportEvery = 10
	}
	if r.est == nil {
		r.est = NewEstimator()
	}
	return r, nil
}

// Run 阻塞直到 ctx 结束，然后等待进行中的分析退出
func (r *Runner) Run(ctx context.Context) error {
	opt, err := asynqx.RedisConnOpt(r.redisURI)
	if err != nil {
		return err
	}

	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency:     r.concurrency,
		Queues:          map[string]int{r.queue: 1},
		ShutdownTimeout: 10 * time.Second,
		Logger:          asynqLogger{r.logger.With().Str("component", "asynq").Logger()},
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(asynqx.TypeAnalysisRun, r.Handle)

	if err := srv.Start(mux); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	r.logger.Info().Str("queue", r.queue).Int("concurrency", r.concurrency).Msg("analysis worker 已启动")

	<-ctx.Done()
	srv.Shutdown()
	r.logger.Info().Msg("analysis worker 已停止")
	return nil
}

func (r *Runner) analyzerFor(t model.AnalysisType) Analyzer {
	if a, ok := r.analyzers[t]; ok {
		return a
	}
	return r.fallback
}

// Handle 处理一个 analysis:run 任务
func (r *Runner) Handle(ctx context.Context, t *asynq.Task) error {
	p, err := asynqx.ParseAnalysisPayload(t)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	job := Job{
		TaskID:       p.TaskID,
		DatasetID:    p.DatasetID,
		AnalysisType: model.AnalysisType(p.AnalysisType),
		TargetID:     p.TargetID,
		Force:        p.Force,
	}
	log := r.logger.With().
		Str("task_id", job.TaskID).
		Str("dataset_id", job.DatasetID).
		Str("task_type", p.AnalysisType).
		Logger()

	tp := &taskProgress{
		ctx:     ctx,
		r:       r,
		taskID:  job.TaskID,
		tracker: NewProgressTracker(r.est, job.AnalysisType, 1),
		log:     log,
	}

	a := r.analyzerFor(job.AnalysisType)
	if a == nil {
		tp.fail(fmt.Sprintf("no analyzer for %s", job.AnalysisType))
		return fmt.Errorf("no analyzer for %s: %w", job.AnalysisType, asynq.SkipRetry)
	}

	zero := 0.0
	reply, err := r.reporter.Report(ctx, job.TaskID, dto.ReportRequest{
		Status:   string(model.TaskStatusRunning),
		Progress: &zero,
		Message:  "Starting analysis",
	})
	switch {
	case errors.Is(err, ErrTaskFinished):
		log.Info().Msg("任务在控制面已结束，跳过")
		return nil
	case err != nil:
		// 控制面暂时不可达时仍然执行，后续上报会再尝试
		log.Warn().Err(err).Msg("上报开始失败")
	case reply.CancelRequested:
		tp.fail(ErrCancelled.Error())
		return nil
	}

	start := time.Now()
	log.Info().Msg("开始分析")
	result, err := a.Analyze(ctx, job, tp)
	if err != nil {
		switch {
		case errors.Is(err, ErrTaskFinished):
			log.Info().Msg("任务在控制面已结束，停止分析")
			return nil
		case errors.Is(err, ErrCancelled):
			log.Info().Msg("分析已取消")
			tp.fail(ErrCancelled.Error())
			return nil
		}
		log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("分析失败")
		tp.fail(err.Error())
		return fmt.Errorf("analysis %s: %v: %w", job.TaskID, err, asynq.SkipRetry)
	}

	fin := tp.tracker.Finish()
	one := 1.0
	if _, err := r.reporter.Report(ctx, job.TaskID, dto.ReportRequest{
		Status:   string(model.TaskStatusCompleted),
		Progress: &one,
		Message:  "Analysis completed",
		Metadata: fin.Metadata(),
		Result:   result,
	}); err != nil && !errors.Is(err, ErrTaskFinished) {
		log.Error().Err(err).Msg("上报结果失败")
		return fmt.Errorf("report result %s: %v: %w", job.TaskID, err, asynq.SkipRetry)
	}
	log.Info().Dur("elapsed", time.Since(start)).Msg("分析完成")
	return nil
}

// taskProgress 把分析进度转换成上报，每 reportEvery 个条目上报一次
type taskProgress struct {
	ctx     context.Context
	r       *Runner
	taskID  string
	tracker *ProgressTracker
	log     zerolog.Logger

	sinceReport int
}

func (p *taskProgress) Begin(total int, message string) error {
	p.tracker = NewProgressTracker(p.r.est, p.tracker.analysisType, total)
	return p.report(p.tracker.Status(), message)
}

func (p *taskProgress) Step(n int, message string) error {
	st := p.tracker.Update(n)
	p.sinceReport += n
	if p.sinceReport < p.r.reportEvery && st.Processed < st.Total {
		return nil
	}
	p.sinceReport = 0
	return p.report(st, message)
}

func (p *taskProgress) report(st ProgressStatus, message string) error {
	progress := st.Progress
	reply, err := p.r.reporter.Report(p.ctx, p.taskID, dto.ReportRequest{
		Status:   string(model.TaskStatusRunning),
		Progress: &progress,
		Message:  message,
		Metadata: st.Metadata(),
	})
	switch {
	case errors.Is(err, ErrTaskFinished):
		return err
	case err != nil:
		p.log.Warn().Err(err).Msg("上报进度失败")
		return nil
	case reply.CancelRequested:
		return ErrCancelled
	}
	return nil
}

// fail 以 failed 结束任务。ctx 可能已经取消，使用独立的超时。
func (p *taskProgress) fail(msg string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(p.ctx), 5*time.Second)
	defer cancel()
	if _, err := p.r.reporter.Report(ctx, p.taskID, dto.ReportRequest{
		Status:   string(model.TaskStatusFailed),
		Error:    msg,
		Metadata: p.tracker.Status().Metadata(),
	}); err != nil && !errors.Is(err, ErrTaskFinished) {
		p.log.Error().Err(err).Msg("上报失败状态失败")
	}
}

// asynqLogger asynq.Logger -> zerolog
type asynqLogger struct{ l zerolog.Logger }

func (a asynqLogger) Debug(args ...any) { a.l.Debug().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...any)  { a.l.Info().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...any)  { a.l.Warn().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...any) { a.l.Error().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...any) { a.l.Fatal().Msg(fmt.Sprint(args...)) }
