package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/azhengyongqin/analysis-hub/internal/cache"
	"github.com/azhengyongqin/analysis-hub/internal/metrics"
	"github.com/azhengyongqin/analysis-hub/internal/model"
	asynqx "github.com/azhengyongqin/analysis-hub/internal/queue"
)

var (
	ErrInvalidDataset      = errors.New("dataset_id 不能为空")
	ErrInvalidAnalysisType = errors.New("不支持的分析类型")
	ErrMissingTarget       = errors.New("drift 分析需要 target_id")
)

// DispositionStatus kickoff 答复类型
type DispositionStatus string

const (
	DispositionQueued         DispositionStatus = "queued"
	DispositionAlreadyRunning DispositionStatus = "already_running"
	DispositionCompleted      DispositionStatus = "completed"
)

// Enqueuer 把任务交给执行队列，*asynqx.Client 实现了该接口
type Enqueuer interface {
	EnqueueAnalysis(ctx context.Context, p asynqx.AnalysisPayload) error
}

// Recorder 任务持久化（可选），用于注册表回收后的快照读取
type Recorder interface {
	Upsert(ctx context.Context, t model.Task) error
	Get(ctx context.Context, taskID string) (model.Task, error)
}

// KickoffRequest 启动请求
type KickoffRequest struct {
	DatasetID    string
	AnalysisType model.AnalysisType
	TargetID     string
	Force        bool
}

// Disposition kickoff 的即时答复
type Disposition struct {
	Status  DispositionStatus
	TaskID  string
	Cached  bool
	Result  json.RawMessage
	Message string
}

// Report worker 上报
type Report struct {
	Status   model.TaskStatus
	Progress *float64
	Message  string
	Metadata map[string]any
	Error    string
	Result   json.RawMessage
}

// DatasetStatus 数据集聚合状态
type DatasetStatus struct {
	DatasetID       string
	RunningTasks    []model.Task
	CacheStatus     map[string]bool
	HasRunningTasks bool
}

// Service 控制面的任务协调：去重、缓存、状态上报
type Service struct {
	store    *Store
	results  cache.ResultStore
	queue    Enqueuer
	recorder Recorder
	logger   zerolog.Logger
}

type Option func(*Service)

func WithRecorder(r Recorder) Option { return func(s *Service) { s.recorder = r } }
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(store *Store, results cache.ResultStore, queue Enqueuer, opts ...Option) *Service {
	s := &Service{
		store:   store,
		results: results,
		queue:   queue,
		logger:  zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Store 底层注册表
func (s *Service) Store() *Store { return s.store }

func (r KickoffRequest) validate() error {
	if strings.TrimSpace(r.DatasetID) == "" {
		return ErrInvalidDataset
	}
	if !r.AnalysisType.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidAnalysisType, r.AnalysisType)
	}
	if r.AnalysisType.NeedsTarget() && r.TargetID == "" {
		return ErrMissingTarget
	}
	return nil
}

// Kickoff 幂等启动。force=false 时进行中任务优先于缓存结果，
// 这样 force 产生的后继任务在运行期间会覆盖缓存标记。
func (s *Service) Kickoff(ctx context.Context, req KickoffRequest) (Disposition, error) {
	if err := req.validate(); err != nil {
		metrics.RecordKickoff(string(req.AnalysisType), "rejected")
		return Disposition{}, err
	}
	if !req.AnalysisType.NeedsTarget() {
		req.TargetID = ""
	}

	key := model.TaskKey(req.DatasetID, req.AnalysisType, req.TargetID)
	log := s.logger.With().Str("task_key", key).Bool("force", req.Force).Logger()

	if !req.Force {
		if t, ok := s.store.Inflight(key); ok {
			metrics.RecordKickoff(string(req.AnalysisType), string(DispositionAlreadyRunning))
			log.Debug().Str("task_id", t.TaskID).Msg("任务已在执行")
			return Disposition{Status: DispositionAlreadyRunning, TaskID: t.TaskID}, nil
		}

		r, err := s.results.Get(ctx, req.DatasetID, req.AnalysisType, req.TargetID)
		switch {
		case err == nil:
			metrics.RecordKickoff(string(req.AnalysisType), string(DispositionCompleted))
			return Disposition{Status: DispositionCompleted, Cached: true, Result: r.Data}, nil
		case !errors.Is(err, cache.ErrResultNotFound):
			// 缓存不可用时按未命中处理
			log.Warn().Err(err).Msg("读取缓存结果失败")
			metrics.RecordError("results", "get")
		}
	}

	task, created := s.store.Reserve(model.Task{
		TaskID:       asynqx.NewTaskID(),
		DatasetID:    req.DatasetID,
		TargetID:     req.TargetID,
		AnalysisType: req.AnalysisType,
	}, req.Force)
	if !created {
		// 并发 kickoff：另一个请求先登记了
		metrics.RecordKickoff(string(req.AnalysisType), string(DispositionAlreadyRunning))
		return Disposition{Status: DispositionAlreadyRunning, TaskID: task.TaskID}, nil
	}

	err := s.queue.EnqueueAnalysis(ctx, asynqx.AnalysisPayload{
		TaskID:       task.TaskID,
		DatasetID:    task.DatasetID,
		AnalysisType: string(task.AnalysisType),
		TargetID:     task.TargetID,
		Force:        req.Force,
	})
	if err != nil {
		failed, _ := s.store.Apply(task.TaskID, Update{Status: model.TaskStatusFailed, Error: "enqueue failed"})
		s.record(ctx, failed)
		metrics.RecordKickoff(string(req.AnalysisType), "error")
		metrics.RecordError("queue", "enqueue")
		log.Error().Err(err).Str("task_id", task.TaskID).Msg("入队失败")
		return Disposition{}, fmt.Errorf("enqueue analysis: %w", err)
	}

	s.record(ctx, task)
	metrics.RecordKickoff(string(req.AnalysisType), string(DispositionQueued))
	log.Info().Str("task_id", task.TaskID).Msg("任务已入队")
	return Disposition{Status: DispositionQueued, TaskID: task.TaskID}, nil
}

// Status 任务快照。注册表已回收时回落到持久化记录。
func (s *Service) Status(ctx context.Context, taskID string) (model.Task, error) {
	if t, ok := s.store.Get(taskID); ok {
		return t, nil
	}
	if s.recorder != nil {
		t, err := s.recorder.Get(ctx, taskID)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, ErrTaskNotFound) {
			s.logger.Warn().Err(err).Str("task_id", taskID).Msg("读取持久化任务失败")
		}
	}
	return model.Task{}, ErrTaskNotFound
}

// Report 处理 worker 上报。返回更新后的任务；终态之后的上报返回 ErrTerminal。
func (s *Service) Report(ctx context.Context, taskID string, r Report) (model.Task, error) {
	if r.Status != "" && !r.Status.Valid() {
		return model.Task{}, fmt.Errorf("invalid status: %s", r.Status)
	}

	t, err := s.store.Apply(taskID, Update{
		Status:   r.Status,
		Progress: r.Progress,
		Message:  r.Message,
		Metadata: r.Metadata,
		Error:    r.Error,
	})
	if err != nil {
		return t, err
	}

	if !t.Status.Terminal() {
		return t, nil
	}

	if t.Status == model.TaskStatusCompleted && len(r.Result) > 0 {
		if s.store.IsLatest(t) {
			if err := s.results.Put(ctx, model.Result{
				DatasetID:    t.DatasetID,
				AnalysisType: t.AnalysisType,
				TargetID:     t.TargetID,
				TaskID:       t.TaskID,
				Data:         r.Result,
				CreatedAt:    time.Now(),
			}); err != nil {
				metrics.RecordError("results", "put")
				s.logger.Error().Err(err).Str("task_id", taskID).Msg("保存分析结果失败")
			}
		} else {
			s.logger.Info().Str("task_id", taskID).Msg("任务已被后继任务取代，结果不写入缓存")
		}
	}

	var dur float64
	if t.StartedAt != nil && t.CompletedAt != nil {
		dur = t.CompletedAt.Sub(*t.StartedAt).Seconds()
	}
	metrics.RecordTaskCompleted(string(t.AnalysisType), string(t.Status), dur)
	s.record(ctx, t)
	return t, nil
}

// Cancel 请求取消
func (s *Service) Cancel(ctx context.Context, taskID string) (model.Task, error) {
	t, err := s.store.RequestCancel(taskID)
	if err != nil {
		return t, err
	}
	s.logger.Info().Str("task_id", taskID).Msg("已请求取消任务")
	return t, nil
}

// DatasetStatus 每次都从注册表重新推导
func (s *Service) DatasetStatus(ctx context.Context, datasetID string) (DatasetStatus, error) {
	if strings.TrimSpace(datasetID) == "" {
		return DatasetStatus{}, ErrInvalidDataset
	}

	active := s.store.ListActive(datasetID)
	status, err := s.results.CacheStatus(ctx, datasetID)
	if err != nil {
		s.logger.Warn().Err(err).Str("dataset_id", datasetID).Msg("读取缓存状态失败")
		status = map[string]bool{}
	}
	for _, t := range active {
		status[string(t.AnalysisType)] = false
	}

	return DatasetStatus{
		DatasetID:       datasetID,
		RunningTasks:    active,
		CacheStatus:     status,
		HasRunningTasks: len(active) > 0,
	}, nil
}

// Result 读取结果
func (s *Service) Result(ctx context.Context, datasetID string, t model.AnalysisType, targetID string) (model.Result, error) {
	if !t.Valid() {
		return model.Result{}, fmt.Errorf("%w: %s", ErrInvalidAnalysisType, t)
	}
	if !t.NeedsTarget() {
		targetID = ""
	}
	return s.results.Get(ctx, datasetID, t, targetID)
}

// ClearResults 清除数据集缓存结果
func (s *Service) ClearResults(ctx context.Context, datasetID string) (int, error) {
	if strings.TrimSpace(datasetID) == "" {
		return 0, ErrInvalidDataset
	}
	n, err := s.results.Clear(ctx, datasetID)
	if err != nil {
		return 0, err
	}
	s.logger.Info().Str("dataset_id", datasetID).Int("count", n).Msg("已清除缓存结果")
	return n, nil
}

func (s *Service) record(ctx context.Context, t model.Task) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Upsert(ctx, t); err != nil {
		metrics.RecordError("repository", "upsert")
		s.logger.Warn().Err(err).Str("task_id", t.TaskID).Msg("持久化任务失败")
	}
}
