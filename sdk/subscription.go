package sdk

import (
	"context"
	"sync"
	"sync/atomic"
)

// Handlers 订阅回调。任意字段可以为 nil。
type Handlers struct {
	// OnFrame 每个状态帧都会调用，包括终态帧
	OnFrame func(TaskStatus)
	// OnTerminal 每个订阅最多调用一次
	OnTerminal func(TaskStatus)
	// OnTransportError 重连耗尽、服务端提前关闭，或者帧里带了 error 字段
	OnTransportError func(error)
}

// Subscription 单个 task_id 的订阅句柄
type Subscription interface {
	TaskID() string
	// SetHandlers 替换回调，不会重建连接
	SetHandlers(Handlers)
	// Dispose 取消定时器并关闭连接，之后不会再有任何回调
	Dispose()
	// Done 订阅结束（终态、放弃重连或 Dispose）时关闭
	Done() <-chan struct{}
	// Err Done 之后的结束原因：completed 为 nil，failed 为 *JobError
	Err() error
}

// Subscriber 推送与轮询两种传输共用的契约
type Subscriber interface {
	Subscribe(ctx context.Context, taskID string, h Handlers) (Subscription, error)
}

// handle 两种传输共用的投递逻辑：回调间接引用、终态只触发一次、释放后静默
type handle struct {
	taskID   string
	handlers atomic.Pointer[Handlers]

	mu       sync.Mutex
	disposed bool
	finished bool
	err      error

	done     chan struct{}
	doneOnce sync.Once
}

func newHandle(taskID string, h Handlers) *handle {
	hd := &handle{taskID: taskID, done: make(chan struct{})}
	hd.handlers.Store(&h)
	return hd
}

func (h *handle) TaskID() string { return h.taskID }

func (h *handle) SetHandlers(hs Handlers) { h.handlers.Store(&hs) }

func (h *handle) Done() <-chan struct{} { return h.done }

func (h *handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *handle) live() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.disposed && !h.finished
}

func (h *handle) isDisposed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.disposed
}

func (h *handle) closeDone() {
	h.doneOnce.Do(func() { close(h.done) })
}

// deliver 投递一个状态帧，返回 true 表示订阅已结束，调用方应拆除连接
func (h *handle) deliver(s TaskStatus) bool {
	h.mu.Lock()
	if h.disposed || h.finished {
		h.mu.Unlock()
		return true
	}
	terminal := s.Terminal()
	if terminal {
		h.finished = true
		h.err = jobErrorFrom(s)
	}
	h.mu.Unlock()

	// 只带 error 的帧（例如 Task not found）没有状态可投递
	if s.Status != "" {
		if cb := h.handlers.Load().OnFrame; cb != nil && !h.isDisposed() {
			cb(s)
		}
	}
	if s.Error != "" && !terminal {
		if cb := h.handlers.Load().OnTransportError; cb != nil && !h.isDisposed() {
			cb(&FrameError{TaskID: h.taskID, Message: s.Error})
		}
	}
	if terminal {
		if cb := h.handlers.Load().OnTerminal; cb != nil && !h.isDisposed() {
			cb(s)
		}
		h.closeDone()
	}
	return terminal
}

// fail 以传输错误结束订阅，OnTransportError 只触发一次
func (h *handle) fail(err error) {
	h.mu.Lock()
	if h.disposed || h.finished {
		h.mu.Unlock()
		return
	}
	h.finished = true
	h.err = err
	h.mu.Unlock()

	if cb := h.handlers.Load().OnTransportError; cb != nil && !h.isDisposed() {
		cb(err)
	}
	h.closeDone()
}

// markDisposed 第一次调用返回 true
func (h *handle) markDisposed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.disposed {
		return false
	}
	h.disposed = true
	if !h.finished {
		h.finished = true
		h.err = ErrClosed
	}
	return true
}
