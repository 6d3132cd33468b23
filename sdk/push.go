package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// PushSubscriber 基于 WebSocket 的推送订阅，非正常断开时按 ReconnectPolicy 指数退避重连
type PushSubscriber struct {
	urlFor func(taskID string) string
	dialer *websocket.Dialer
	policy ReconnectPolicy
	logger zerolog.Logger
	timer  timerFunc
}

type PushOption func(*PushSubscriber)

func WithReconnectPolicy(p ReconnectPolicy) PushOption {
	return func(s *PushSubscriber) { s.policy = p.normalize() }
}

func WithDialer(d *websocket.Dialer) PushOption {
	return func(s *PushSubscriber) { s.dialer = d }
}

func WithPushLogger(l zerolog.Logger) PushOption {
	return func(s *PushSubscriber) { s.logger = l }
}

// NewPushSubscriber 创建推送订阅器，流地址由 Client 推导
func NewPushSubscriber(c *Client, opts ...PushOption) *PushSubscriber {
	s := &PushSubscriber{
		urlFor: c.TaskStreamURL,
		dialer: websocket.DefaultDialer,
		policy: DefaultReconnectPolicy(),
		logger: zerolog.Nop(),
		timer:  realTimer,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Subscribe 立即返回句柄，连接在后台建立。ctx 取消等同于 Dispose。
func (s *PushSubscriber) Subscribe(ctx context.Context, taskID string, h Handlers) (Subscription, error) {
	if taskID == "" {
		return nil, errors.New("task_id is required")
	}

	connCtx, cancel := context.WithCancel(context.Background())
	p := &pushSub{
		handle: newHandle(taskID, h),
		s:      s,
		url:    s.urlFor(taskID),
		ctx:    connCtx,
		cancel: cancel,
		logger: s.logger.With().Str("task_id", taskID).Str("transport", "push").Logger(),
	}
	p.stopWatch = context.AfterFunc(ctx, p.Dispose)

	go p.connect()
	return p, nil
}

type pushSub struct {
	*handle

	s      *PushSubscriber
	url    string
	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger

	// 以下字段由 handle.mu 保护
	conn      *websocket.Conn
	attempt   int
	stopTimer func() bool
	stopWatch func() bool
}

func (p *pushSub) connect() {
	if !p.live() {
		return
	}

	conn, _, err := p.s.dialer.DialContext(p.ctx, p.url, nil)
	if err != nil {
		if p.ctx.Err() != nil {
			return
		}
		p.logger.Debug().Err(err).Msg("推送连接失败")
		p.scheduleReconnect(err)
		return
	}

	p.mu.Lock()
	if p.disposed || p.finished {
		p.mu.Unlock()
		_ = conn.Close()
		return
	}
	p.conn = conn
	p.attempt = 0
	p.mu.Unlock()

	p.logger.Debug().Msg("推送连接已建立")
	p.readLoop(conn)
}

func (p *pushSub) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			p.onReadError(err)
			return
		}

		var st TaskStatus
		if err := json.Unmarshal(data, &st); err != nil {
			p.logger.Warn().Err(err).Msg("无法解析状态帧，已忽略")
			continue
		}
		if st.TaskID == "" {
			st.TaskID = p.taskID
		}

		if p.deliver(st) {
			// 终态：主动关闭，不再重连
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			p.teardown()
			return
		}
	}
}

func (p *pushSub) onReadError(err error) {
	if !p.live() {
		return
	}

	var ce *websocket.CloseError
	if errors.As(err, &ce) && ce.Code == websocket.CloseNormalClosure {
		p.logger.Debug().Msg("服务端正常关闭推送流")
		p.teardown()
		p.fail(&TransportError{TaskID: p.taskID, Err: ErrStreamClosed})
		return
	}

	p.logger.Warn().Err(err).Msg("推送连接断开，准备重连")
	p.scheduleReconnect(err)
}

// scheduleReconnect 连续失败达到上限后上报一次 TransportError
func (p *pushSub) scheduleReconnect(cause error) {
	p.mu.Lock()
	if p.disposed || p.finished {
		p.mu.Unlock()
		return
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}

	if p.attempt >= p.s.policy.MaxAttempts {
		attempts := p.attempt
		p.mu.Unlock()

		p.logger.Error().Int("attempts", attempts).Err(cause).Msg("重连次数耗尽")
		p.teardown()
		p.fail(&TransportError{
			TaskID:   p.taskID,
			Attempts: attempts,
			Err:      errors.Join(ErrReconnectExhausted, cause),
		})
		return
	}

	delay := p.s.policy.Delay(p.attempt)
	p.attempt++
	p.logger.Info().Int("attempt", p.attempt).Dur("delay", delay).Msg("计划重连")
	p.stopTimer = p.s.timer(delay, p.connect)
	p.mu.Unlock()
}

// teardown 取消定时器与进行中的拨号，并关闭连接
func (p *pushSub) teardown() {
	p.mu.Lock()
	conn := p.conn
	p.conn = nil
	stopTimer := p.stopTimer
	p.stopTimer = nil
	stopWatch := p.stopWatch
	p.mu.Unlock()

	if stopTimer != nil {
		stopTimer()
	}
	if stopWatch != nil {
		stopWatch()
	}
	p.cancel()
	if conn != nil {
		_ = conn.Close()
	}
}

func (p *pushSub) Dispose() {
	if !p.markDisposed() {
		return
	}
	p.teardown()
	p.closeDone()
}
