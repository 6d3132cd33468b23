package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/azhengyongqin/analysis-hub/internal/metrics"
	"github.com/azhengyongqin/analysis-hub/internal/server/dto"
	"github.com/azhengyongqin/analysis-hub/internal/tasks"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
)

// pingPeriod 必须小于 pongWait，否则对端来不及回 pong
func pingPeriod(wait time.Duration) time.Duration {
	return wait * 9 / 10
}

// StreamHandler WebSocket 推送：单任务流与数据集流。
// 两种流都是服务端定时从注册表重新读取后推送完整快照，不做增量。
type StreamHandler struct {
	svc             *tasks.Service
	upgrader        websocket.Upgrader
	taskInterval    time.Duration
	datasetInterval time.Duration
	pongWait        time.Duration
	shutdown        context.Context
	logger          zerolog.Logger
}

// StreamOption 推送配置
type StreamOption func(*StreamHandler)

// WithIntervals 覆盖推送间隔
func WithIntervals(task, dataset time.Duration) StreamOption {
	return func(h *StreamHandler) {
		if task > 0 {
			h.taskInterval = task
		}
		if dataset > 0 {
			h.datasetInterval = dataset
		}
	}
}

// WithKeepalive 覆盖读超时；服务端按其九成的周期发 ping
func WithKeepalive(wait time.Duration) StreamOption {
	return func(h *StreamHandler) {
		if wait > 0 {
			h.pongWait = wait
		}
	}
}

// WithShutdown 服务关闭时以 1001 关闭所有推送连接，客户端会重连到新实例
func WithShutdown(ctx context.Context) StreamOption {
	return func(h *StreamHandler) { h.shutdown = ctx }
}

// WithStreamLogger 设置日志
func WithStreamLogger(l zerolog.Logger) StreamOption {
	return func(h *StreamHandler) { h.logger = l }
}

// NewStreamHandler 创建 StreamHandler
func NewStreamHandler(svc *tasks.Service, opts ...StreamOption) *StreamHandler {
	h := &StreamHandler{
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// 前端与控制面分开部署
			CheckOrigin: func(*http.Request) bool { return true },
		},
		taskInterval:    2 * time.Second,
		datasetInterval: 3 * time.Second,
		pongWait:        pongWait,
		shutdown:        context.Background(),
		logger:          zerolog.Nop(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// TaskStream godoc
// @Summary 任务推送流
// @Description WebSocket。每个间隔推送一次任务快照；终态帧之后服务端以 1000 关闭。未知任务推送 {"error":"Task not found"} 后关闭。
// @Tags Streams
// @Param task_id path string true "Task ID"
// @Success 101 {object} dto.TaskStatusResponse
// @Router /ws/task/{task_id} [get]
func (h *StreamHandler) TaskStream(c *gin.Context) {
	taskID := c.Param("task_id")
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已经写回了错误响应
		h.logger.Warn().Err(err).Str("task_id", taskID).Msg("WebSocket 升级失败")
		return
	}
	s := h.open(conn, "task")
	defer s.close()

	log := h.logger.With().Str("task_id", taskID).Logger()
	log.Debug().Msg("任务流已连接")

	ticker := time.NewTicker(h.taskInterval)
	defer ticker.Stop()

	for {
		t, err := h.svc.Status(s.ctx, taskID)
		switch {
		case errors.Is(err, tasks.ErrTaskNotFound):
			_ = s.writeJSON(dto.StreamErrorFrame{Error: "Task not found", TaskID: taskID})
			s.closeWith(websocket.CloseNormalClosure, "task not found")
			return
		case err != nil:
			log.Error().Err(err).Msg("读取任务状态失败")
			s.closeWith(websocket.CloseInternalServerErr, "status unavailable")
			return
		}

		if err := s.writeJSON(dto.TaskFrom(t)); err != nil {
			log.Debug().Err(err).Msg("写入任务帧失败")
			return
		}
		if t.Status.Terminal() {
			s.closeWith(websocket.CloseNormalClosure, string(t.Status))
			return
		}

		select {
		case <-ticker.C:
		case <-s.ctx.Done():
			s.closeOnDone()
			return
		}
	}
}

// DatasetStream godoc
// @Summary 数据集推送流
// @Description WebSocket。每个间隔推送一次数据集聚合状态，由客户端关闭。
// @Tags Streams
// @Param dataset_id path string true "数据集 ID"
// @Success 101 {object} dto.DatasetStatusResponse
// @Router /ws/dataset/{dataset_id} [get]
func (h *StreamHandler) DatasetStream(c *gin.Context) {
	datasetID := c.Param("dataset_id")
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("dataset_id", datasetID).Msg("WebSocket 升级失败")
		return
	}
	s := h.open(conn, "dataset")
	defer s.close()

	log := h.logger.With().Str("dataset_id", datasetID).Logger()
	log.Debug().Msg("数据集流已连接")

	ticker := time.NewTicker(h.datasetInterval)
	defer ticker.Stop()

	for {
		ds, err := h.svc.DatasetStatus(s.ctx, datasetID)
		if err != nil {
			log.Error().Err(err).Msg("读取数据集状态失败")
			s.closeWith(websocket.CloseInternalServerErr, "status unavailable")
			return
		}
		if err := s.writeJSON(dto.DatasetFrom(ds)); err != nil {
			log.Debug().Err(err).Msg("写入数据集帧失败")
			return
		}

		select {
		case <-ticker.C:
		case <-s.ctx.Done():
			s.closeOnDone()
			return
		}
	}
}

// stream 单个连接。读协程只负责处理控制帧与发现对端关闭，
// ping 协程保证对端不发数据时读超时也会被 pong 续期。
type stream struct {
	conn     *websocket.Conn
	name     string
	ctx      context.Context
	cancel   context.CancelFunc
	peerGone chan struct{}
	shutdown context.Context
}

func (h *StreamHandler) open(conn *websocket.Conn, name string) *stream {
	ctx, cancel := context.WithCancel(h.shutdown)
	s := &stream{
		conn:     conn,
		name:     name,
		ctx:      ctx,
		cancel:   cancel,
		peerGone: make(chan struct{}),
		shutdown: h.shutdown,
	}
	metrics.StreamOpened(name)

	wait := h.pongWait
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(wait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wait))
	})

	go func() {
		defer close(s.peerGone)
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(wait))
		}
	}()

	// WriteControl 可以与 WriteJSON 并发调用
	go func() {
		ticker := time.NewTicker(pingPeriod(wait))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}()
	return s
}

func (s *stream) writeJSON(v any) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(v); err != nil {
		return err
	}
	metrics.RecordFrame(s.name)
	return nil
}

func (s *stream) closeWith(code int, text string) {
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
	// 等对端回应关闭帧，避免 TCP 先于关闭帧断开
	select {
	case <-s.peerGone:
	case <-time.After(time.Second):
	}
}

// closeOnDone 服务关闭时发 1001，对端自行离开时无需再发
func (s *stream) closeOnDone() {
	if s.shutdown.Err() != nil {
		s.closeWith(websocket.CloseGoingAway, "server shutting down")
	}
}

func (s *stream) close() {
	s.cancel()
	_ = s.conn.Close()
	metrics.StreamClosed(s.name)
}
