package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/azhengyongqin/analysis-hub/internal/cache"
	"github.com/azhengyongqin/analysis-hub/internal/logger"
	"github.com/azhengyongqin/analysis-hub/internal/middleware"
	"github.com/azhengyongqin/analysis-hub/internal/server/dto"
	"github.com/azhengyongqin/analysis-hub/internal/tasks"
)

// statusOf 服务层错误到 HTTP 状态码
func statusOf(err error) int {
	switch {
	case errors.Is(err, tasks.ErrInvalidDataset),
		errors.Is(err, tasks.ErrInvalidAnalysisType),
		errors.Is(err, tasks.ErrMissingTarget):
		return http.StatusBadRequest
	case errors.Is(err, tasks.ErrTaskNotFound),
		errors.Is(err, cache.ErrResultNotFound):
		return http.StatusNotFound
	case errors.Is(err, tasks.ErrTerminal):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	code := statusOf(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		l := logger.WithRequestID(middleware.GetRequestID(c))
		l.Error().Err(err).Str("path", c.FullPath()).Msg("请求处理失败")
		msg = "internal error"
	}
	_ = c.Error(err)
	c.JSON(code, dto.ErrorResponse{Error: msg})
}
