package sdk

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultPollInterval 单任务轮询间隔
	DefaultPollInterval = 2 * time.Second
	// DefaultBatchPollInterval 数据集列表批量轮询间隔
	DefaultBatchPollInterval = 30 * time.Second
)

// StatusFetcher 读取单个任务状态，*Client 实现了该接口
type StatusFetcher interface {
	TaskStatus(ctx context.Context, taskID string) (TaskStatus, error)
}

// PollSubscriber 定时拉取任务状态，作为推送通道的后备
type PollSubscriber struct {
	fetcher  StatusFetcher
	interval time.Duration
	logger   zerolog.Logger
}

type PollOption func(*PollSubscriber)

func WithPollInterval(d time.Duration) PollOption {
	return func(s *PollSubscriber) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithPollLogger(l zerolog.Logger) PollOption {
	return func(s *PollSubscriber) { s.logger = l }
}

func NewPollSubscriber(f StatusFetcher, opts ...PollOption) *PollSubscriber {
	s := &PollSubscriber{
		fetcher:  f,
		interval: DefaultPollInterval,
		logger:   zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Subscribe 立即拉取一次，之后每个 interval 拉取一次，观察到终态即停止
func (s *PollSubscriber) Subscribe(ctx context.Context, taskID string, h Handlers) (Subscription, error) {
	if taskID == "" {
		return nil, errors.New("task_id is required")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p := &pollSub{
		handle: newHandle(taskID, h),
		s:      s,
		cancel: cancel,
		logger: s.logger.With().Str("task_id", taskID).Str("transport", "poll").Logger(),
	}
	go p.loop(loopCtx)
	return p, nil
}

type pollSub struct {
	*handle

	s      *PollSubscriber
	cancel context.CancelFunc
	logger zerolog.Logger

	errMu   sync.Mutex
	lastErr error
}

func (p *pollSub) loop(ctx context.Context) {
	defer p.cancel()

	ticker := time.NewTicker(p.s.interval)
	defer ticker.Stop()

	for {
		if p.tick(ctx) {
			return
		}
		select {
		case <-ctx.Done():
			p.Dispose()
			return
		case <-ticker.C:
		}
	}
}

// tick 返回 true 表示轮询结束
func (p *pollSub) tick(ctx context.Context) bool {
	if !p.live() {
		return true
	}

	st, err := p.s.fetcher.TaskStatus(ctx, p.taskID)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		// 任务已被回收或从未存在，继续轮询没有意义
		if errors.Is(err, ErrTaskNotFound) {
			p.logger.Warn().Err(err).Msg("任务不存在，停止轮询")
			p.fail(err)
			return true
		}
		// 状态查询失败不等于任务失败
		p.setLastError(err)
		p.logger.Debug().Err(err).Msg("状态查询失败，继续轮询")
		return false
	}

	p.setLastError(nil)
	if st.TaskID == "" {
		st.TaskID = p.taskID
	}
	return p.deliver(st)
}

func (p *pollSub) setLastError(err error) {
	p.errMu.Lock()
	p.lastErr = err
	p.errMu.Unlock()
}

// LastError 最近一次状态查询的临时错误，成功查询后清空
func (p *pollSub) LastError() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.lastErr
}

func (p *pollSub) Dispose() {
	if !p.markDisposed() {
		return
	}
	p.cancel()
	p.closeDone()
}

// TransientError 轮询订阅最近一次查询失败的原因；其他订阅返回 nil
func TransientError(sub Subscription) error {
	if p, ok := sub.(*pollSub); ok {
		return p.LastError()
	}
	return nil
}
