package tasks

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/azhengyongqin/analysis-hub/internal/model"
)

var (
	// ErrTaskNotFound 任务不存在（或已被回收）
	ErrTaskNotFound = errors.New("task not found")
	// ErrTerminal 任务已是终态，不接受进一步变更
	ErrTerminal = errors.New("task already terminal")
)

// Update worker 上报的一次状态变更。零值字段表示不修改。
type Update struct {
	Status   model.TaskStatus
	Progress *float64
	Message  string
	Metadata map[string]any
	Error    string
}

// Store 进程内的权威任务注册表，也是去重的唯一依据
type Store struct {
	mu       sync.RWMutex
	items    map[string]model.Task // key: task_id
	inflight map[string]string     // task key -> 进行中的 task_id
	latest   map[string]string     // task key -> 最近创建的 task_id
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		items:    map[string]model.Task{},
		inflight: map[string]string{},
		latest:   map[string]string{},
		now:      time.Now,
	}
}

// Get 获取任务快照
func (s *Store) Get(taskID string) (model.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.items[taskID]
	if !ok {
		return model.Task{}, false
	}
	return t.Clone(), true
}

// Inflight 指定去重键的进行中任务
func (s *Store) Inflight(key string) (model.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.inflight[key]
	if !ok {
		return model.Task{}, false
	}
	return s.items[id].Clone(), true
}

// Reserve 原子地检查并登记新任务。
// force=false 且同一个 key 已有进行中任务时，返回已有任务与 false。
// force=true 时新任务成为该 key 的后继，旧任务继续执行直到终态。
func (s *Store) Reserve(t model.Task, force bool) (model.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := t.Key()
	if !force {
		if id, ok := s.inflight[key]; ok {
			return s.items[id].Clone(), false
		}
	}

	now := s.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	t.Status = model.TaskStatusQueued
	t.Progress = 0

	s.items[t.TaskID] = t
	s.inflight[key] = t.TaskID
	s.latest[key] = t.TaskID
	return t.Clone(), true
}

// Apply 应用一次状态变更：终态不可逆，running 期间进度单调不减
func (s *Store) Apply(taskID string, u Update) (model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.items[taskID]
	if !ok {
		return model.Task{}, ErrTaskNotFound
	}
	if t.Status.Terminal() {
		return t.Clone(), ErrTerminal
	}

	now := s.now()
	switch {
	case u.Status == "":
	case u.Status == model.TaskStatusQueued:
		// 不允许从 running 回退
	case u.Status == model.TaskStatusRunning:
		if t.Status != model.TaskStatusRunning {
			t.Status = model.TaskStatusRunning
			t.StartedAt = &now
		}
	case u.Status.Terminal():
		t.Status = u.Status
		t.CompletedAt = &now
		if t.StartedAt == nil {
			t.StartedAt = &now
		}
	}

	if u.Progress != nil && t.Status == model.TaskStatusRunning {
		p := clamp01(*u.Progress)
		if p > t.Progress {
			t.Progress = p
		}
	}
	if t.Status == model.TaskStatusCompleted {
		t.Progress = 1
	}
	if u.Message != "" {
		t.Message = u.Message
	}
	if len(u.Metadata) > 0 {
		if t.Metadata == nil {
			t.Metadata = make(map[string]any, len(u.Metadata))
		}
		for k, v := range u.Metadata {
			t.Metadata[k] = v
		}
	}
	if t.Status == model.TaskStatusFailed {
		t.Error = u.Error
		if t.Error == "" {
			t.Error = "analysis failed"
		}
	}
	t.UpdatedAt = now

	if t.Status.Terminal() {
		key := t.Key()
		if s.inflight[key] == taskID {
			delete(s.inflight, key)
		}
	}
	s.items[taskID] = t
	return t.Clone(), nil
}

// RequestCancel 标记取消，worker 在下一次上报时得知
func (s *Store) RequestCancel(taskID string) (model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.items[taskID]
	if !ok {
		return model.Task{}, ErrTaskNotFound
	}
	if t.Status.Terminal() {
		return t.Clone(), ErrTerminal
	}
	t.CancelRequested = true
	t.UpdatedAt = s.now()
	s.items[taskID] = t
	return t.Clone(), nil
}

// IsLatest 该任务是否仍是其 key 最近一次创建的任务
func (s *Store) IsLatest(t model.Task) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest[t.Key()] == t.TaskID
}

// ListActive 数据集下所有 queued/running 任务，按创建时间排序
func (s *Store) ListActive(datasetID string) []model.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Task, 0)
	for _, t := range s.items {
		if t.DatasetID == datasetID && !t.Status.Terminal() {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].TaskID < out[j].TaskID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Sweep 删除终态超过 retention 的任务，返回删除数量
func (s *Store) Sweep(retention time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-retention)
	n := 0
	for id, t := range s.items {
		if !t.Status.Terminal() || t.CompletedAt == nil || t.CompletedAt.After(cutoff) {
			continue
		}
		delete(s.items, id)
		key := t.Key()
		if s.latest[key] == id {
			delete(s.latest, key)
		}
		n++
	}
	return n
}

// Stats 进行中与终态任务数
func (s *Store) Stats() (active, terminal int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.items {
		if t.Status.Terminal() {
			terminal++
		} else {
			active++
		}
	}
	return active, terminal
}

func clamp01(f float64) float64 {
	if f < 0 || f != f {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
