package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"github.com/azhengyongqin/analysis-hub/internal/server/dto"
)

// QueueHandler 分析队列的运维视图
type QueueHandler struct {
	inspector *asynq.Inspector
	queue     string
}

// NewQueueHandler 创建 QueueHandler
func NewQueueHandler(inspector *asynq.Inspector, queue string) *QueueHandler {
	return &QueueHandler{inspector: inspector, queue: queue}
}

// GetQueueStats godoc
// @Summary 查询队列状态
// @Description 分析任务所在 asynq 队列的积压情况
// @Tags Queues
// @Produce json
// @Success 200 {object} dto.QueueStatsResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /queue/stats [get]
func (h *QueueHandler) GetQueueStats(c *gin.Context) {
	if h.inspector == nil {
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: "asynq inspector 未配置"})
		return
	}

	info, err := h.inspector.GetQueueInfo(h.queue)
	if err != nil {
		// 队列还没有任何任务时 asynq 认为它不存在
		if errors.Is(err, asynq.ErrQueueNotFound) {
			c.JSON(http.StatusOK, dto.QueueStatsResponse{Queue: h.queue})
			return
		}
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.QueueStatsResponse{
		Queue:     h.queue,
		Size:      info.Size,
		Pending:   info.Pending,
		Active:    info.Active,
		Scheduled: info.Scheduled,
		Retry:     info.Retry,
		Archived:  info.Archived,
		Completed: info.Completed,
		Paused:    info.Paused,
	})
}
