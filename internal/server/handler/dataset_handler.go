package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/azhengyongqin/analysis-hub/internal/model"
	"github.com/azhengyongqin/analysis-hub/internal/repository"
	"github.com/azhengyongqin/analysis-hub/internal/server/dto"
	"github.com/azhengyongqin/analysis-hub/internal/tasks"
)

// DatasetHandler 数据集维度的状态与结果
type DatasetHandler struct {
	svc  *tasks.Service
	repo repository.TaskRepository // 可选
}

// NewDatasetHandler 创建 DatasetHandler
func NewDatasetHandler(svc *tasks.Service, repo repository.TaskRepository) *DatasetHandler {
	return &DatasetHandler{svc: svc, repo: repo}
}

// GetStatus godoc
// @Summary 数据集聚合状态
// @Description 进行中的任务与每种分析类型是否已有缓存结果
// @Tags Datasets
// @Produce json
// @Param dataset_id path string true "数据集 ID"
// @Success 200 {object} dto.DatasetStatusResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /datasets/{dataset_id}/status [get]
func (h *DatasetHandler) GetStatus(c *gin.Context) {
	s, err := h.svc.DatasetStatus(c.Request.Context(), c.Param("dataset_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.DatasetFrom(s))
}

// GetResult godoc
// @Summary 读取分析结果
// @Tags Datasets
// @Produce json
// @Param dataset_id path string true "数据集 ID"
// @Param analysis_type path string true "分析类型"
// @Param target_id query string false "对比目标（drift）"
// @Success 200 {object} dto.ResultResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /datasets/{dataset_id}/results/{analysis_type} [get]
func (h *DatasetHandler) GetResult(c *gin.Context) {
	r, err := h.svc.Result(c.Request.Context(), c.Param("dataset_id"), model.AnalysisType(c.Param("analysis_type")), c.Query("target_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ResultResponse{
		DatasetID:    r.DatasetID,
		AnalysisType: string(r.AnalysisType),
		TargetID:     r.TargetID,
		TaskID:       r.TaskID,
		Result:       r.Data,
		CreatedAt:    r.CreatedAt,
	})
}

// ClearResults godoc
// @Summary 清除缓存结果
// @Description 删除数据集的全部缓存结果，下次 kickoff 会重新计算
// @Tags Datasets
// @Produce json
// @Param dataset_id path string true "数据集 ID"
// @Success 200 {object} dto.ClearResultsResponse
// @Router /datasets/{dataset_id}/results [delete]
func (h *DatasetHandler) ClearResults(c *gin.Context) {
	n, err := h.svc.ClearResults(c.Request.Context(), c.Param("dataset_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ClearResultsResponse{Status: "ok", Cleared: n})
}

// ListTasks godoc
// @Summary 数据集任务历史
// @Description 需要配置 Postgres
// @Tags Datasets
// @Produce json
// @Param dataset_id path string true "数据集 ID"
// @Param analysis_type query string false "分析类型"
// @Param status query string false "任务状态"
// @Param limit query int false "每页数量" default(50)
// @Param offset query int false "偏移量" default(0)
// @Success 200 {object} dto.TaskHistoryResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /datasets/{dataset_id}/tasks [get]
func (h *DatasetHandler) ListTasks(c *gin.Context) {
	if h.repo == nil {
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: "未配置 Postgres，任务历史不可用"})
		return
	}

	var q dto.TaskHistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	datasetID := c.Param("dataset_id")
	items, err := h.repo.List(c.Request.Context(), repository.ListFilter{
		DatasetID:    datasetID,
		AnalysisType: q.AnalysisType,
		Status:       q.Status,
		Limit:        q.Limit,
		Offset:       q.Offset,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	counts, err := h.repo.CountByStatus(c.Request.Context(), datasetID)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]dto.TaskStatusResponse, 0, len(items))
	for _, t := range items {
		out = append(out, dto.TaskFrom(t))
	}
	c.JSON(http.StatusOK, dto.TaskHistoryResponse{Items: out, Counts: counts})
}
