package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// TrackerState 组合组件的展示状态
type TrackerState string

const (
	TrackerIdle      TrackerState = "idle"
	TrackerStarting  TrackerState = "starting"
	TrackerRunning   TrackerState = "running"
	TrackerCompleted TrackerState = "completed"
	TrackerFailed    TrackerState = "failed"
)

// TrackerSnapshot Tracker 某一时刻的只读视图
type TrackerSnapshot struct {
	State  TrackerState
	TaskID string
	// Status 最近一个状态帧，cached 完成时为 nil
	Status *TaskStatus
	Result json.RawMessage
	Cached bool
	// Err 失败原因：RequestError / JobError / TransportError
	Err error
	// Notice 帧里携带的数据层错误，不影响 State
	Notice error
}

// TrackerAPI Tracker 依赖的控制面读写，*Client 实现了该接口
type TrackerAPI interface {
	Kickoff(ctx context.Context, req KickoffRequest) (Disposition, error)
	TaskStatus(ctx context.Context, taskID string) (TaskStatus, error)
	DatasetStatus(ctx context.Context, datasetID string) (DatasetStatus, error)
	Result(ctx context.Context, datasetID, analysisType, targetID string) (json.RawMessage, error)
}

// Tracker 启动按钮 + 进度条组合：同一个逻辑任务任何时刻最多持有一个订阅。
// 订阅与结果读取跟随 Tracker 自身的生命周期，调用方传入的 ctx 只约束单次 HTTP 调用。
type Tracker struct {
	api      TrackerAPI
	sub      Subscriber
	req      KickoffRequest
	onChange func(TrackerSnapshot)
	logger   zerolog.Logger
	life     context.Context
	stop     context.CancelFunc

	mu           sync.Mutex
	snap         TrackerSnapshot
	subscription Subscription
	gen          uint64
	closed       bool
}

type TrackerOption func(*Tracker)

// WithTargetID drift 分析的对比目标
func WithTargetID(id string) TrackerOption {
	return func(t *Tracker) { t.req.TargetID = id }
}

// WithOnChange 每次状态变化后回调，参数是快照副本
func WithOnChange(fn func(TrackerSnapshot)) TrackerOption {
	return func(t *Tracker) { t.onChange = fn }
}

func WithTrackerLogger(l zerolog.Logger) TrackerOption {
	return func(t *Tracker) { t.logger = l }
}

func NewTracker(api TrackerAPI, sub Subscriber, datasetID, analysisType string, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		api:    api,
		sub:    sub,
		req:    KickoffRequest{DatasetID: datasetID, AnalysisType: analysisType},
		logger: zerolog.Nop(),
		snap:   TrackerSnapshot{State: TrackerIdle},
	}
	for _, o := range opts {
		o(t)
	}
	t.life, t.stop = context.WithCancel(context.Background())
	t.logger = t.logger.With().
		Str("dataset_id", datasetID).
		Str("analysis_type", analysisType).
		Logger()
	return t
}

// Snapshot 当前状态
func (t *Tracker) Snapshot() TrackerSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}

// Start 发起 kickoff。已有任务在启动或运行时直接忽略，不会产生第二个订阅。
// Close 之后调用返回 ErrClosed。
func (t *Tracker) Start(ctx context.Context, force bool) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.snap.State == TrackerStarting || t.snap.State == TrackerRunning {
		t.mu.Unlock()
		t.logger.Debug().Msg("已有任务在跟踪，忽略重复启动")
		return nil
	}
	t.gen++
	t.snap = TrackerSnapshot{State: TrackerStarting}
	t.mu.Unlock()
	t.emit()

	req := t.req
	req.Force = force
	d, err := t.api.Kickoff(ctx, req)
	if t.isClosed() {
		// kickoff 期间被关闭，任务仍由服务端执行
		return ErrClosed
	}
	if err != nil {
		t.logger.Warn().Err(err).Msg("kickoff 被拒绝")
		t.set(TrackerSnapshot{State: TrackerIdle, Err: err})
		return err
	}

	switch d.Kind {
	case DispositionCompletedCached:
		t.set(TrackerSnapshot{State: TrackerCompleted, Result: d.Result, Cached: true})
		return nil
	default:
		return t.attach(d.TaskID, nil)
	}
}

// Attach 初始挂载：先读快照，再决定是否订阅，避免因为组件是新建的就重复 kickoff。
// taskID 为空时通过 dataset_status 查找同类型的进行中任务。
func (t *Tracker) Attach(ctx context.Context, taskID string) error {
	if taskID == "" {
		return t.attachFromDataset(ctx)
	}

	st, err := t.api.TaskStatus(ctx, taskID)
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			// 任务已被服务端回收
			t.set(TrackerSnapshot{State: TrackerIdle})
			return nil
		}
		t.set(TrackerSnapshot{State: TrackerIdle, Err: err})
		return err
	}

	if st.Terminal() {
		t.finishWith(ctx, st)
		return nil
	}
	return t.attach(taskID, &st)
}

func (t *Tracker) attachFromDataset(ctx context.Context) error {
	ds, err := t.api.DatasetStatus(ctx, t.req.DatasetID)
	if err != nil {
		t.set(TrackerSnapshot{State: TrackerIdle, Err: err})
		return err
	}

	set := ds.TaskSet()
	if id, ok := set.FindType(t.req.AnalysisType); ok {
		return t.attach(id, nil)
	}

	if ds.CacheStatus[t.req.AnalysisType] {
		res, err := t.api.Result(ctx, t.req.DatasetID, t.req.AnalysisType, t.req.TargetID)
		if err == nil {
			t.set(TrackerSnapshot{State: TrackerCompleted, Result: res, Cached: true})
			return nil
		}
		t.logger.Debug().Err(err).Msg("缓存结果读取失败")
	}
	t.set(TrackerSnapshot{State: TrackerIdle})
	return nil
}

func (t *Tracker) attach(taskID string, seed *TaskStatus) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.subscription != nil {
		if t.subscription.TaskID() == taskID {
			t.mu.Unlock()
			return nil
		}
		t.subscription.Dispose()
		t.subscription = nil
	}
	t.gen++
	gen := t.gen
	t.snap = TrackerSnapshot{State: TrackerRunning, TaskID: taskID, Status: seed}
	t.mu.Unlock()
	t.emit()

	sub, err := t.sub.Subscribe(t.life, taskID, Handlers{
		OnFrame:          func(s TaskStatus) { t.onFrame(gen, s) },
		OnTerminal:       func(s TaskStatus) { t.onTerminal(gen, s) },
		OnTransportError: func(err error) { t.onTransportError(gen, err) },
	})
	if err != nil {
		t.set(TrackerSnapshot{State: TrackerIdle, Err: err})
		return err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		sub.Dispose()
		return ErrClosed
	}
	if t.gen != gen {
		// 订阅建立期间已经结束或被替换
		t.mu.Unlock()
		sub.Dispose()
		return nil
	}
	t.subscription = sub
	t.mu.Unlock()
	return nil
}

func (t *Tracker) onFrame(gen uint64, s TaskStatus) {
	t.mu.Lock()
	if t.gen != gen || t.snap.State != TrackerRunning {
		t.mu.Unlock()
		return
	}
	st := s
	t.snap.Status = &st
	t.mu.Unlock()
	t.emit()
}

func (t *Tracker) onTerminal(gen uint64, s TaskStatus) {
	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		return
	}
	sub := t.subscription
	t.subscription = nil
	t.gen++
	t.mu.Unlock()

	if sub != nil {
		sub.Dispose()
	}
	t.finishWith(t.life, s)
}

// finishWith 终态：completed 时单独读取结果，任务流只携带状态
func (t *Tracker) finishWith(ctx context.Context, s TaskStatus) {
	st := s
	if s.Status == StatusFailed {
		t.set(TrackerSnapshot{State: TrackerFailed, TaskID: s.TaskID, Status: &st, Err: jobErrorFrom(s)})
		return
	}

	snap := TrackerSnapshot{State: TrackerCompleted, TaskID: s.TaskID, Status: &st, Cached: s.Cached}
	res, err := t.api.Result(ctx, t.req.DatasetID, t.req.AnalysisType, t.req.TargetID)
	if err != nil {
		t.logger.Warn().Err(err).Str("task_id", s.TaskID).Msg("结果读取失败")
		snap.Notice = err
	} else {
		snap.Result = res
	}
	t.set(snap)
}

func (t *Tracker) onTransportError(gen uint64, err error) {
	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		return
	}
	if !IsTransport(err) && !errors.Is(err, ErrTaskNotFound) {
		// 数据层错误只做提示，不回退到 idle
		t.snap.Notice = err
		t.mu.Unlock()
		t.emit()
		return
	}
	sub := t.subscription
	t.subscription = nil
	t.gen++
	t.snap = TrackerSnapshot{State: TrackerIdle, Err: err}
	t.mu.Unlock()

	if sub != nil {
		sub.Dispose()
	}
	t.logger.Warn().Err(err).Msg("任务跟踪中断")
	t.emit()
}

// Close 释放订阅，之后不再有回调；进行中的 Start/Attach 返回 ErrClosed
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	sub := t.subscription
	t.subscription = nil
	t.gen++
	t.mu.Unlock()
	t.stop()
	if sub != nil {
		sub.Dispose()
	}
}

func (t *Tracker) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Tracker) set(s TrackerSnapshot) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.snap = s
	t.mu.Unlock()
	t.emit()
}

func (t *Tracker) emit() {
	if t.onChange == nil {
		return
	}
	t.mu.Lock()
	snap, closed := t.snap, t.closed
	t.mu.Unlock()
	if !closed {
		t.onChange(snap)
	}
}
