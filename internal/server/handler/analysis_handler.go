package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/azhengyongqin/analysis-hub/internal/middleware"
	"github.com/azhengyongqin/analysis-hub/internal/model"
	"github.com/azhengyongqin/analysis-hub/internal/server/dto"
	"github.com/azhengyongqin/analysis-hub/internal/tasks"
)

// AnalysisHandler 启动分析
type AnalysisHandler struct {
	svc *tasks.Service
}

// NewAnalysisHandler 创建 AnalysisHandler
func NewAnalysisHandler(svc *tasks.Service) *AnalysisHandler {
	return &AnalysisHandler{svc: svc}
}

// Kickoff godoc
// @Summary 启动分析
// @Description 幂等启动：已有进行中任务返回 already_running，已有缓存结果返回 completed，否则入队并返回 queued。force=true 跳过去重与缓存。
// @Tags Analysis
// @Produce json
// @Param dataset_id path string true "数据集 ID"
// @Param analysis_type path string true "分析类型" Enums(eda, image_analysis, clustering, drift, embedding, attributes)
// @Param force query bool false "强制重新计算"
// @Param target_id query string false "对比目标（drift 必填）"
// @Success 200 {object} dto.KickoffResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /analysis/{dataset_id}/{analysis_type} [post]
func (h *AnalysisHandler) Kickoff(c *gin.Context) {
	var q dto.KickoffQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	d, err := h.svc.Kickoff(c.Request.Context(), tasks.KickoffRequest{
		DatasetID:    c.Param("dataset_id"),
		AnalysisType: model.AnalysisType(c.Param("analysis_type")),
		TargetID:     middleware.SanitizeString(q.TargetID),
		Force:        q.Force,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.KickoffFrom(d))
}
