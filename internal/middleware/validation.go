package middleware

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/azhengyongqin/analysis-hub/internal/model"
	"github.com/azhengyongqin/analysis-hub/internal/server/dto"
)

const (
	// MaxPayloadSize 最大 payload 大小（8MB，结果随上报一起提交）
	MaxPayloadSize = 8 * 1024 * 1024
)

var (
	// DatasetIDRegex 数据集 ID（字母数字下划线点连字符，1-128字符）
	DatasetIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,128}$`)

	// TaskIDRegex TaskID 正则（字母数字连字符，1-128字符）
	TaskIDRegex = regexp.MustCompile(`^[a-zA-Z0-9-]{1,128}$`)
)

// PayloadSizeLimit Payload 大小限制中间件
func PayloadSizeLimit(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, dto.ErrorResponse{
				Error: "请求体过大",
			})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// ValidateDatasetID 验证数据集 ID
func ValidateDatasetID(datasetID string) bool {
	return DatasetIDRegex.MatchString(datasetID)
}

// ValidateTaskID 验证 Task ID
func ValidateTaskID(taskID string) bool {
	return TaskIDRegex.MatchString(taskID)
}

// SanitizeString 去除首尾空白与控制字符
func SanitizeString(s string) string {
	s = strings.TrimSpace(s)

	var builder strings.Builder
	for _, r := range s {
		if r >= 32 && r != 127 {
			builder.WriteRune(r)
		}
	}

	return builder.String()
}

func validateParam(name, hint string, ok func(string) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		v := c.Param(name)
		if v == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.ErrorResponse{Error: name + " 参数缺失"})
			return
		}
		if !ok(v) {
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.ErrorResponse{Error: name + " 格式无效，" + hint})
			return
		}
		c.Next()
	}
}

// ValidateDatasetIDParam Gin 中间件：验证路径参数中的 dataset_id
func ValidateDatasetIDParam() gin.HandlerFunc {
	return validateParam("dataset_id", "必须是1-128个字母、数字、下划线、点或连字符", ValidateDatasetID)
}

// ValidateTaskIDParam Gin 中间件：验证路径参数中的 task_id
func ValidateTaskIDParam() gin.HandlerFunc {
	return validateParam("task_id", "必须是1-128个字母、数字或连字符", ValidateTaskID)
}

// ValidateAnalysisTypeParam Gin 中间件：验证路径参数中的 analysis_type
func ValidateAnalysisTypeParam() gin.HandlerFunc {
	return validateParam("analysis_type", "不支持的分析类型", func(s string) bool {
		return model.AnalysisType(s).Valid()
	})
}

// CORSMiddleware CORS 中间件（前端与控制面分开部署时需要）
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
