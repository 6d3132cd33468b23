package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/azhengyongqin/analysis-hub/internal/model"
	"github.com/azhengyongqin/analysis-hub/internal/server/dto"
	"github.com/azhengyongqin/analysis-hub/internal/tasks"
)

// TaskHandler Task 相关 API Handler
type TaskHandler struct {
	svc *tasks.Service
}

// NewTaskHandler 创建 TaskHandler
func NewTaskHandler(svc *tasks.Service) *TaskHandler {
	return &TaskHandler{svc: svc}
}

// GetTask godoc
// @Summary 查询任务状态
// @Description 读取任务快照。终态任务在保留期内可查；配置了 Postgres 时回收后仍可查
// @Tags Tasks
// @Produce json
// @Param task_id path string true "Task ID"
// @Success 200 {object} dto.TaskStatusResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /tasks/{task_id} [get]
func (h *TaskHandler) GetTask(c *gin.Context) {
	t, err := h.svc.Status(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.TaskFrom(t))
}

// Report godoc
// @Summary 上报任务进度
// @Description worker 上报状态、进度与结果。终态之后的上报返回 409
// @Tags Tasks
// @Accept json
// @Produce json
// @Param task_id path string true "Task ID"
// @Param request body dto.ReportRequest true "上报内容"
// @Success 200 {object} dto.ReportResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /tasks/{task_id}/report [post]
func (h *TaskHandler) Report(c *gin.Context) {
	var req dto.ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}
	status := model.TaskStatus(req.Status)
	if req.Status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "status 无效"})
		return
	}

	t, err := h.svc.Report(c.Request.Context(), c.Param("task_id"), tasks.Report{
		Status:   status,
		Progress: req.Progress,
		Message:  req.Message,
		Metadata: req.Metadata,
		Error:    req.Error,
		Result:   req.Result,
	})
	if err != nil {
		if errors.Is(err, tasks.ErrTerminal) {
			c.JSON(http.StatusConflict, dto.ErrorResponse{Error: "任务已结束"})
			return
		}
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ReportResponse{
		Status:          "ok",
		CancelRequested: t.CancelRequested,
		Task:            dto.TaskFrom(t),
	})
}

// Cancel godoc
// @Summary 取消任务
// @Description 标记取消请求，worker 在下一次上报时得知并以 failed 结束
// @Tags Tasks
// @Produce json
// @Param task_id path string true "Task ID"
// @Success 200 {object} dto.SuccessResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /tasks/{task_id}/cancel [post]
func (h *TaskHandler) Cancel(c *gin.Context) {
	if _, err := h.svc.Cancel(c.Request.Context(), c.Param("task_id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.SuccessResponse{Status: "ok", Message: "已请求取消"})
}
