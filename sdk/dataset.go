package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// DatasetHub 每个 dataset_id 只保持一条推送连接，由多个 Watch 共享
type DatasetHub struct {
	cfg    *PushSubscriber
	logger zerolog.Logger

	mu      sync.Mutex
	streams map[string]*datasetStream
}

// NewDatasetHub 复用推送通道的拨号、重连与日志配置
func NewDatasetHub(c *Client, opts ...PushOption) *DatasetHub {
	cfg := NewPushSubscriber(c, opts...)
	cfg.urlFor = c.DatasetStreamURL
	return &DatasetHub{
		cfg:     cfg,
		logger:  cfg.logger,
		streams: make(map[string]*datasetStream),
	}
}

// DatasetWatch 一个观察者。Updates 只保留最新一份 DatasetTaskSet。
type DatasetWatch struct {
	stream *datasetStream
	id     int
	ch     chan DatasetTaskSet

	closeOnce sync.Once
}

func (w *DatasetWatch) Updates() <-chan DatasetTaskSet { return w.ch }

// Err Updates 关闭后的原因；由 Close 或 ctx 结束时为 nil
func (w *DatasetWatch) Err() error {
	w.stream.mu.Lock()
	defer w.stream.mu.Unlock()
	return w.stream.err
}

// Close 释放观察者，最后一个观察者离开时关闭连接
func (w *DatasetWatch) Close() {
	w.closeOnce.Do(func() { w.stream.remove(w.id) })
}

// Watch 订阅数据集的进行中任务集合，迟到的观察者会立刻收到最近一份
func (h *DatasetHub) Watch(ctx context.Context, datasetID string) (*DatasetWatch, error) {
	if datasetID == "" {
		return nil, errors.New("dataset_id is required")
	}

	h.mu.Lock()
	st, ok := h.streams[datasetID]
	if !ok {
		st = h.newStream(datasetID)
		h.streams[datasetID] = st
		go st.run()
	}
	w := st.add()
	h.mu.Unlock()

	context.AfterFunc(ctx, w.Close)
	return w, nil
}

// Streams 当前打开的数据集连接数
func (h *DatasetHub) Streams() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.streams)
}

func (h *DatasetHub) drop(st *datasetStream) {
	h.mu.Lock()
	if h.streams[st.datasetID] == st {
		delete(h.streams, st.datasetID)
	}
	h.mu.Unlock()
}

func (h *DatasetHub) newStream(datasetID string) *datasetStream {
	ctx, cancel := context.WithCancel(context.Background())
	return &datasetStream{
		hub:       h,
		datasetID: datasetID,
		ctx:       ctx,
		cancel:    cancel,
		watchers:  make(map[int]chan DatasetTaskSet),
		logger:    h.logger.With().Str("dataset_id", datasetID).Logger(),
	}
}

type datasetStream struct {
	hub       *DatasetHub
	datasetID string
	ctx       context.Context
	cancel    context.CancelFunc
	logger    zerolog.Logger

	mu       sync.Mutex
	watchers map[int]chan DatasetTaskSet
	nextID   int
	last     *DatasetTaskSet
	closed   bool
	err      error
}

// add 调用方持有 hub.mu
func (s *datasetStream) add() *DatasetWatch {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan DatasetTaskSet, 1)
	if s.last != nil {
		ch <- *s.last
	}
	s.nextID++
	w := &DatasetWatch{stream: s, id: s.nextID, ch: ch}
	if s.closed {
		close(ch)
		return w
	}
	s.watchers[w.id] = ch
	return w
}

func (s *datasetStream) remove(id int) {
	// hub.mu 先于 stream.mu，避免与 Watch 竞争出一条无人观察的连接
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()

	s.mu.Lock()
	ch, ok := s.watchers[id]
	if ok {
		delete(s.watchers, id)
		close(ch)
	}
	empty := len(s.watchers) == 0 && !s.closed
	if empty {
		s.closed = true
	}
	s.mu.Unlock()

	if empty {
		if s.hub.streams[s.datasetID] == s {
			delete(s.hub.streams, s.datasetID)
		}
		s.cancel()
	}
}

// broadcast 整体替换：通道里的旧值直接丢弃
func (s *datasetStream) broadcast(set DatasetTaskSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.last = &set
	for _, ch := range s.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- set
	}
}

func (s *datasetStream) finish(err error) {
	s.hub.drop(s)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	for id, ch := range s.watchers {
		close(ch)
		delete(s.watchers, id)
	}
	s.cancel()
}

func (s *datasetStream) run() {
	policy := s.hub.cfg.policy
	attempt := 0

	for {
		conn, _, err := s.hub.cfg.dialer.DialContext(s.ctx, s.hub.cfg.urlFor(s.datasetID), nil)
		if err == nil {
			attempt = 0
			err = s.read(conn)
			_ = conn.Close()

			var ce *websocket.CloseError
			if errors.As(err, &ce) && ce.Code == websocket.CloseNormalClosure {
				s.finish(&TransportError{Err: ErrStreamClosed})
				return
			}
		}
		if s.ctx.Err() != nil {
			return
		}

		if attempt >= policy.MaxAttempts {
			s.logger.Error().Int("attempts", attempt).Err(err).Msg("数据集推送重连次数耗尽")
			s.finish(&TransportError{Attempts: attempt, Err: errors.Join(ErrReconnectExhausted, err)})
			return
		}
		delay := policy.Delay(attempt)
		attempt++
		s.logger.Info().Int("attempt", attempt).Dur("delay", delay).Msg("数据集推送计划重连")

		fired := make(chan struct{})
		stop := s.hub.cfg.timer(delay, func() { close(fired) })
		select {
		case <-fired:
		case <-s.ctx.Done():
			stop()
			return
		}
	}
}

func (s *datasetStream) read(conn *websocket.Conn) error {
	stop := context.AfterFunc(s.ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var ds DatasetStatus
		if err := json.Unmarshal(data, &ds); err != nil {
			s.logger.Warn().Err(err).Msg("无法解析数据集帧，已忽略")
			continue
		}
		if ds.DatasetID == "" {
			ds.DatasetID = s.datasetID
		}
		s.broadcast(ds.TaskSet())
	}
}
