package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu          sync.Mutex
	disposition Disposition
	kickoffErr  error
	kickoffs    []KickoffRequest
	status      map[string]TaskStatus
	dataset     DatasetStatus
	result      json.RawMessage
	resultErr   error
	// release 非空时 Kickoff 等它关闭后才返回
	release     chan struct{}
}

func (f *fakeAPI) Kickoff(_ context.Context, req KickoffRequest) (Disposition, error) {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kickoffs = append(f.kickoffs, req)
	return f.disposition, f.kickoffErr
}

func (f *fakeAPI) TaskStatus(_ context.Context, taskID string) (TaskStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.status[taskID]
	if !ok {
		return TaskStatus{}, &RequestError{StatusCode: 404, Message: "task not found", Err: ErrTaskNotFound}
	}
	return st, nil
}

func (f *fakeAPI) DatasetStatus(context.Context, string) (DatasetStatus, error) {
	return f.dataset, nil
}

func (f *fakeAPI) Result(context.Context, string, string, string) (json.RawMessage, error) {
	return f.result, f.resultErr
}

func (f *fakeAPI) Kickoffs() []KickoffRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]KickoffRequest(nil), f.kickoffs...)
}

// fakeSubscriber 手动驱动回调。与真实订阅一样，ctx 结束即释放，释放后不再回调。
type fakeSubscriber struct {
	mu    sync.Mutex
	subs  []*fakeSub
	// delay 模拟建立连接的耗时
	delay time.Duration
}

type fakeSub struct {
	taskID   string
	handlers Handlers
	disposed atomic.Bool
	done     chan struct{}
}

func (f *fakeSubscriber) Subscribe(ctx context.Context, taskID string, h Handlers) (Subscription, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	s := &fakeSub{taskID: taskID, handlers: h, done: make(chan struct{})}
	context.AfterFunc(ctx, s.Dispose)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, s)
	return s, nil
}

func (f *fakeSubscriber) last() *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.subs) == 0 {
		return nil
	}
	return f.subs[len(f.subs)-1]
}

func (f *fakeSubscriber) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (s *fakeSub) TaskID() string         { return s.taskID }
func (s *fakeSub) SetHandlers(h Handlers) { s.handlers = h }
func (s *fakeSub) Done() <-chan struct{}  { return s.done }
func (s *fakeSub) Err() error             { return nil }
func (s *fakeSub) Dispose()               { s.disposed.Store(true) }

func (s *fakeSub) frame(st TaskStatus) {
	if !s.disposed.Load() {
		s.handlers.OnFrame(st)
	}
}

func (s *fakeSub) terminal(st TaskStatus) {
	if s.disposed.Load() {
		return
	}
	s.handlers.OnFrame(st)
	s.handlers.OnTerminal(st)
}

func (s *fakeSub) transportErr(err error) {
	if !s.disposed.Load() {
		s.handlers.OnTransportError(err)
	}
}

func TestTracker_QueuedToCompleted(t *testing.T) {
	api := &fakeAPI{
		disposition: Disposition{Kind: DispositionQueued, TaskID: "t1"},
		result:      json.RawMessage(`{"rows":10}`),
	}
	sub := &fakeSubscriber{}
	var states []TrackerState
	tr := NewTracker(api, sub, "42", "eda", WithOnChange(func(s TrackerSnapshot) { states = append(states, s.State) }))

	require.NoError(t, tr.Start(context.Background(), false))
	assert.Equal(t, TrackerRunning, tr.Snapshot().State)
	assert.Equal(t, "t1", tr.Snapshot().TaskID)

	s := sub.last()
	require.NotNil(t, s)
	s.frame(TaskStatus{TaskID: "t1", Status: StatusRunning, Progress: 0.4})
	assert.InDelta(t, 0.4, tr.Snapshot().Status.Progress, 1e-9)

	s.terminal(TaskStatus{TaskID: "t1", Status: StatusCompleted, Progress: 1})
	snap := tr.Snapshot()
	assert.Equal(t, TrackerCompleted, snap.State)
	assert.JSONEq(t, `{"rows":10}`, string(snap.Result))
	assert.NoError(t, snap.Err)
	assert.True(t, s.disposed.Load())

	assert.Equal(t, []TrackerState{
		TrackerStarting, TrackerRunning, TrackerRunning, TrackerRunning, TrackerCompleted,
	}, states)
}

func TestTracker_IgnoresSecondStart(t *testing.T) {
	api := &fakeAPI{disposition: Disposition{Kind: DispositionAlreadyRunning, TaskID: "t0"}}
	sub := &fakeSubscriber{}
	tr := NewTracker(api, sub, "42", "drift", WithTargetID("7"))

	require.NoError(t, tr.Start(context.Background(), true))
	require.NoError(t, tr.Start(context.Background(), false))

	kicks := api.Kickoffs()
	require.Len(t, kicks, 1)
	assert.Equal(t, KickoffRequest{DatasetID: "42", AnalysisType: "drift", TargetID: "7", Force: true}, kicks[0])
	assert.Equal(t, 1, sub.count())
}

func TestTracker_Cached(t *testing.T) {
	api := &fakeAPI{disposition: Disposition{
		Kind: DispositionCompletedCached, Cached: true, Result: json.RawMessage(`{"k":1}`),
	}}
	sub := &fakeSubscriber{}
	tr := NewTracker(api, sub, "42", "clustering")

	require.NoError(t, tr.Start(context.Background(), false))
	snap := tr.Snapshot()
	assert.Equal(t, TrackerCompleted, snap.State)
	assert.True(t, snap.Cached)
	assert.Nil(t, snap.Status)
	assert.JSONEq(t, `{"k":1}`, string(snap.Result))
	assert.Zero(t, sub.count())
}

func TestTracker_Rejected(t *testing.T) {
	rejected := &RequestError{StatusCode: 400, Message: "Unsupported analysis type"}
	api := &fakeAPI{kickoffErr: rejected}
	tr := NewTracker(api, &fakeSubscriber{}, "42", "bogus")

	err := tr.Start(context.Background(), false)
	assert.ErrorIs(t, err, rejected)
	snap := tr.Snapshot()
	assert.Equal(t, TrackerIdle, snap.State)
	assert.ErrorIs(t, snap.Err, rejected)

	// 被拒绝后可以重新启动
	api.kickoffErr = nil
	api.disposition = Disposition{Kind: DispositionQueued, TaskID: "t1"}
	require.NoError(t, tr.Start(context.Background(), false))
	assert.Equal(t, TrackerRunning, tr.Snapshot().State)
}

func TestTracker_Failed(t *testing.T) {
	api := &fakeAPI{disposition: Disposition{Kind: DispositionQueued, TaskID: "t1"}}
	sub := &fakeSubscriber{}
	tr := NewTracker(api, sub, "42", "eda")
	require.NoError(t, tr.Start(context.Background(), false))

	sub.last().terminal(TaskStatus{TaskID: "t1", Status: StatusFailed, Error: "boom"})
	snap := tr.Snapshot()
	assert.Equal(t, TrackerFailed, snap.State)
	var je *JobError
	require.ErrorAs(t, snap.Err, &je)
	assert.Equal(t, "boom", je.Message)
}

func TestTracker_ResultReadFailureIsNotice(t *testing.T) {
	api := &fakeAPI{
		disposition: Disposition{Kind: DispositionQueued, TaskID: "t1"},
		resultErr:   ErrResultNotFound,
	}
	sub := &fakeSubscriber{}
	tr := NewTracker(api, sub, "42", "eda")
	require.NoError(t, tr.Start(context.Background(), false))

	sub.last().terminal(TaskStatus{TaskID: "t1", Status: StatusCompleted})
	snap := tr.Snapshot()
	assert.Equal(t, TrackerCompleted, snap.State)
	assert.NoError(t, snap.Err)
	assert.ErrorIs(t, snap.Notice, ErrResultNotFound)
}

func TestTracker_TransportErrorReturnsToIdle(t *testing.T) {
	api := &fakeAPI{disposition: Disposition{Kind: DispositionQueued, TaskID: "t1"}}
	sub := &fakeSubscriber{}
	tr := NewTracker(api, sub, "42", "eda")
	require.NoError(t, tr.Start(context.Background(), false))
	s := sub.last()

	// 数据层错误只作提示
	s.transportErr(&FrameError{TaskID: "t1", Message: "partial read"})
	snap := tr.Snapshot()
	assert.Equal(t, TrackerRunning, snap.State)
	assert.Error(t, snap.Notice)

	s.transportErr(&TransportError{TaskID: "t1", Attempts: 5, Err: ErrReconnectExhausted})
	snap = tr.Snapshot()
	assert.Equal(t, TrackerIdle, snap.State)
	assert.True(t, IsTransport(snap.Err))
	assert.True(t, s.disposed.Load())

	// 旧订阅迟到的帧被忽略
	s.frame(TaskStatus{TaskID: "t1", Status: StatusRunning, Progress: 0.9})
	assert.Equal(t, TrackerIdle, tr.Snapshot().State)
}

func TestTracker_TaskNotFoundFrame(t *testing.T) {
	api := &fakeAPI{disposition: Disposition{Kind: DispositionQueued, TaskID: "t1"}}
	sub := &fakeSubscriber{}
	tr := NewTracker(api, sub, "42", "eda")
	require.NoError(t, tr.Start(context.Background(), false))

	sub.last().transportErr(&FrameError{TaskID: "t1", Message: "Task not found"})
	snap := tr.Snapshot()
	assert.Equal(t, TrackerIdle, snap.State)
	assert.ErrorIs(t, snap.Err, ErrTaskNotFound)
}

func TestTracker_Attach(t *testing.T) {
	t.Run("running task", func(t *testing.T) {
		api := &fakeAPI{status: map[string]TaskStatus{"t1": {TaskID: "t1", Status: StatusRunning, Progress: 0.3}}}
		sub := &fakeSubscriber{}
		tr := NewTracker(api, sub, "42", "eda")

		require.NoError(t, tr.Attach(context.Background(), "t1"))
		snap := tr.Snapshot()
		assert.Equal(t, TrackerRunning, snap.State)
		require.NotNil(t, snap.Status)
		assert.InDelta(t, 0.3, snap.Status.Progress, 1e-9)
		assert.Equal(t, 1, sub.count())
		assert.Empty(t, api.Kickoffs())
	})

	t.Run("already terminal", func(t *testing.T) {
		api := &fakeAPI{
			status: map[string]TaskStatus{"t1": {TaskID: "t1", Status: StatusCompleted}},
			result: json.RawMessage(`{}`),
		}
		sub := &fakeSubscriber{}
		tr := NewTracker(api, sub, "42", "eda")

		require.NoError(t, tr.Attach(context.Background(), "t1"))
		assert.Equal(t, TrackerCompleted, tr.Snapshot().State)
		assert.Zero(t, sub.count())
	})

	t.Run("evicted task", func(t *testing.T) {
		tr := NewTracker(&fakeAPI{}, &fakeSubscriber{}, "42", "eda")
		require.NoError(t, tr.Attach(context.Background(), "gone"))
		snap := tr.Snapshot()
		assert.Equal(t, TrackerIdle, snap.State)
		assert.NoError(t, snap.Err)
	})

	t.Run("from dataset status", func(t *testing.T) {
		api := &fakeAPI{dataset: DatasetStatus{
			DatasetID:    "42",
			RunningTasks: []RunningTask{{TaskID: "t9", TaskType: "eda", Status: StatusRunning}},
		}}
		sub := &fakeSubscriber{}
		tr := NewTracker(api, sub, "42", "eda")

		require.NoError(t, tr.Attach(context.Background(), ""))
		assert.Equal(t, TrackerRunning, tr.Snapshot().State)
		assert.Equal(t, "t9", sub.last().taskID)
	})

	t.Run("from cache", func(t *testing.T) {
		api := &fakeAPI{
			dataset: DatasetStatus{DatasetID: "42", CacheStatus: map[string]bool{"eda": true}},
			result:  json.RawMessage(`{"rows":1}`),
		}
		tr := NewTracker(api, &fakeSubscriber{}, "42", "eda")

		require.NoError(t, tr.Attach(context.Background(), ""))
		snap := tr.Snapshot()
		assert.Equal(t, TrackerCompleted, snap.State)
		assert.True(t, snap.Cached)
	})
}

func TestTracker_Close(t *testing.T) {
	api := &fakeAPI{disposition: Disposition{Kind: DispositionQueued, TaskID: "t1"}}
	sub := &fakeSubscriber{}
	calls := 0
	tr := NewTracker(api, sub, "42", "eda", WithOnChange(func(TrackerSnapshot) { calls++ }))
	require.NoError(t, tr.Start(context.Background(), false))

	s := sub.last()
	tr.Close()
	assert.True(t, s.disposed.Load())

	before := calls
	s.frame(TaskStatus{TaskID: "t1", Status: StatusRunning})
	s.terminal(TaskStatus{TaskID: "t1", Status: StatusCompleted})
	assert.Equal(t, before, calls)
	assert.False(t, errors.Is(tr.Snapshot().Err, ErrClosed))
}

func TestTracker_CloseDuringKickoff(t *testing.T) {
	api := &fakeAPI{
		disposition: Disposition{Kind: DispositionQueued, TaskID: "t1"},
		release:     make(chan struct{}),
	}
	sub := &fakeSubscriber{}
	var calls atomic.Int32
	tr := NewTracker(api, sub, "42", "eda", WithOnChange(func(TrackerSnapshot) { calls.Add(1) }))

	done := make(chan error, 1)
	go func() { done <- tr.Start(context.Background(), false) }()
	// starting 已经通知过
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	tr.Close()
	before := calls.Load()
	close(api.release)
	assert.ErrorIs(t, <-done, ErrClosed)

	assert.Zero(t, sub.count())
	assert.NotEqual(t, TrackerRunning, tr.Snapshot().State)
	assert.Equal(t, before, calls.Load())
	assert.ErrorIs(t, tr.Start(context.Background(), false), ErrClosed)
}

func TestTracker_CloseDuringSubscribe(t *testing.T) {
	api := &fakeAPI{disposition: Disposition{Kind: DispositionQueued, TaskID: "t1"}}
	sub := &fakeSubscriber{delay: 50 * time.Millisecond}
	tr := NewTracker(api, sub, "42", "eda")

	done := make(chan error, 1)
	go func() { done <- tr.Start(context.Background(), false) }()
	require.Eventually(t, func() bool { return tr.Snapshot().State == TrackerRunning }, time.Second, time.Millisecond)

	tr.Close()
	assert.ErrorIs(t, <-done, ErrClosed)
	s := sub.last()
	require.NotNil(t, s)
	assert.True(t, s.disposed.Load())
}

func TestTracker_OutlivesCallerContext(t *testing.T) {
	tests := []struct {
		name   string
		status TaskStatus
		want   TrackerState
	}{
		{"completed", TaskStatus{TaskID: "t1", Status: StatusCompleted, Progress: 1}, TrackerCompleted},
		{"failed", TaskStatus{TaskID: "t1", Status: StatusFailed, Error: "boom"}, TrackerFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{
				disposition: Disposition{Kind: DispositionQueued, TaskID: "t1"},
				result:      json.RawMessage(`{}`),
			}
			sub := &fakeSubscriber{}
			tr := NewTracker(api, sub, "42", "eda")
			defer tr.Close()

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			require.NoError(t, tr.Start(ctx, false))
			cancel()

			s := sub.last()
			require.NotNil(t, s)
			assert.False(t, s.disposed.Load())

			s.terminal(tt.status)
			assert.Equal(t, tt.want, tr.Snapshot().State)
		})
	}
}

func TestTracker_CloseEndsSubscriptionContext(t *testing.T) {
	api := &fakeAPI{disposition: Disposition{Kind: DispositionQueued, TaskID: "t1"}}
	sub := &fakeSubscriber{}
	tr := NewTracker(api, sub, "42", "eda")
	require.NoError(t, tr.Start(context.Background(), false))

	s := sub.last()
	tr.Close()
	require.Eventually(t, s.disposed.Load, time.Second, time.Millisecond)
	assert.ErrorIs(t, tr.life.Err(), context.Canceled)
}
