package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/azhengyongqin/analysis-hub/internal/metrics"
)

// PrometheusMiddleware 按路由模板打点；未匹配路由统一记为 unmatched。
// WebSocket 连接的时长是连接寿命，只计数不进延迟直方图。
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		seconds := time.Since(start).Seconds()
		if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
			seconds = -1
		}
		metrics.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), seconds)
	}
}

// RequestIDMiddleware 沿用调用方的 X-Request-ID，格式不合法时重新生成
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if !TaskIDRegex.MatchString(id) {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}
