package sdk

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// TaskList 数据集的进行中任务列表：每个任务恰好一个订阅，集合由服务端的 DatasetTaskSet 决定
type TaskList struct {
	sub      Subscriber
	onChange func([]TaskStatus)
	logger   zerolog.Logger

	mu       sync.Mutex
	subs     map[string]Subscription
	pending  map[string]struct{} // 正在建立订阅
	latest   map[string]TaskStatus
	finished map[string]struct{}
	closed   bool
}

type TaskListOption func(*TaskList)

func WithTaskListChange(fn func([]TaskStatus)) TaskListOption {
	return func(l *TaskList) { l.onChange = fn }
}

func WithTaskListLogger(lg zerolog.Logger) TaskListOption {
	return func(l *TaskList) { l.logger = lg }
}

func NewTaskList(sub Subscriber, opts ...TaskListOption) *TaskList {
	l := &TaskList{
		sub:      sub,
		logger:   zerolog.Nop(),
		subs:     make(map[string]Subscription),
		pending:  make(map[string]struct{}),
		latest:   make(map[string]TaskStatus),
		finished: make(map[string]struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Reconcile 用最新的集合整体替换：新任务建立订阅，消失的任务释放订阅
func (l *TaskList) Reconcile(ctx context.Context, set DatasetTaskSet) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}

	var stale []Subscription
	for id, s := range l.subs {
		if _, ok := set.Tasks[id]; !ok {
			stale = append(stale, s)
			delete(l.subs, id)
		}
	}
	for id := range l.latest {
		if _, ok := set.Tasks[id]; !ok {
			delete(l.latest, id)
			delete(l.finished, id)
		}
	}

	var fresh []string
	for id, sum := range set.Tasks {
		if _, ok := l.subs[id]; ok {
			continue
		}
		if _, ok := l.pending[id]; ok {
			continue
		}
		// 服务端集合可能还没来得及剔除刚结束的任务
		if _, done := l.finished[id]; done {
			continue
		}
		l.latest[id] = TaskStatus{
			TaskID:       id,
			DatasetID:    set.DatasetID,
			AnalysisType: sum.TaskType,
			Status:       StatusRunning,
			Progress:     sum.Progress,
		}
		l.pending[id] = struct{}{}
		fresh = append(fresh, id)
	}
	l.mu.Unlock()

	for _, s := range stale {
		s.Dispose()
	}
	for _, id := range fresh {
		l.follow(ctx, id)
	}
	l.emit()
}

func (l *TaskList) follow(ctx context.Context, taskID string) {
	sub, err := l.sub.Subscribe(ctx, taskID, Handlers{
		OnFrame: func(s TaskStatus) { l.update(s) },
		OnTerminal: func(s TaskStatus) {
			l.mu.Lock()
			l.finished[s.TaskID] = struct{}{}
			own := l.subs[s.TaskID]
			delete(l.subs, s.TaskID)
			l.mu.Unlock()
			if own != nil {
				own.Dispose()
			}
		},
		OnTransportError: func(err error) {
			l.logger.Debug().Err(err).Str("task_id", taskID).Msg("任务订阅错误")
		},
	})
	if err != nil {
		l.mu.Lock()
		delete(l.pending, taskID)
		l.mu.Unlock()
		l.logger.Warn().Err(err).Str("task_id", taskID).Msg("无法订阅任务")
		return
	}

	l.mu.Lock()
	delete(l.pending, taskID)
	_, done := l.finished[taskID]
	_, tracked := l.latest[taskID]
	_, dup := l.subs[taskID]
	if l.closed || done || !tracked || dup {
		l.mu.Unlock()
		sub.Dispose()
		return
	}
	l.subs[taskID] = sub
	l.mu.Unlock()
}

func (l *TaskList) update(s TaskStatus) {
	l.mu.Lock()
	if _, ok := l.latest[s.TaskID]; !ok || l.closed {
		l.mu.Unlock()
		return
	}
	l.latest[s.TaskID] = s
	l.mu.Unlock()
	l.emit()
}

// Follow 持续消费数据集推送，直到 ctx 结束或推送中断
func (l *TaskList) Follow(ctx context.Context, w *DatasetWatch) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case set, ok := <-w.Updates():
			if !ok {
				return w.Err()
			}
			l.Reconcile(ctx, set)
		}
	}
}

// Tasks 按 task_id 排序的当前视图
func (l *TaskList) Tasks() []TaskStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]TaskStatus, 0, len(l.latest))
	for _, s := range l.latest {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out
}

// Subscriptions 当前持有的订阅数
func (l *TaskList) Subscriptions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}

func (l *TaskList) Close() {
	l.mu.Lock()
	l.closed = true
	subs := l.subs
	l.subs = make(map[string]Subscription)
	l.mu.Unlock()
	for _, s := range subs {
		s.Dispose()
	}
}

func (l *TaskList) emit() {
	if l.onChange != nil {
		l.onChange(l.Tasks())
	}
}
