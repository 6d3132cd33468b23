package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/azhengyongqin/analysis-hub/internal/logger"
)

// MaxBodyLogSize 请求体、5xx 响应体最多记录的字节数
const MaxBodyLogSize = 4096

// captureWriter 统计响应大小并保留响应体前 MaxBodyLogSize 字节。
// WebSocket 升级需要的 Hijack 经嵌入的 gin.ResponseWriter 透传。
type captureWriter struct {
	gin.ResponseWriter
	head bytes.Buffer
	size int
}

func (w *captureWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	if room := MaxBodyLogSize - w.head.Len(); room > 0 {
		w.head.Write(b[:min(room, n)])
	}
	return n, err
}

func (w *captureWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

// routeParams 出现在日志里的路由参数
var routeParams = []string{"task_id", "dataset_id", "analysis_type"}

// LoggingMiddleware 每个请求一条日志，WebSocket 连接在断开时记录。
// worker 上报会带完整结果，请求体只截取开头。
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		upgrade := strings.EqualFold(c.GetHeader("Upgrade"), "websocket")

		body := peekBody(c.Request)
		cw := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = cw

		c.Next()

		status := c.Writer.Status()
		ev := eventFor(status, path)
		if id := GetRequestID(c); id != "" {
			ev = ev.Str("request_id", id)
		}
		ev = ev.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("duration(ms)", time.Since(start)).
			Int("response_size", cw.size).
			Str("client_ip", c.ClientIP())
		for _, name := range routeParams {
			if v := c.Param(name); v != "" {
				ev = ev.Str(name, v)
			}
		}
		if q := c.Request.URL.RawQuery; q != "" {
			ev = ev.Str("query", q)
		}
		if body != "" {
			ev = ev.Str("request_body", body)
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}
		if status >= http.StatusInternalServerError && cw.head.Len() > 0 {
			ev = ev.Str("response_body", cw.head.String())
		}

		if upgrade {
			ev.Msg("WebSocket 连接结束")
			return
		}
		ev.Msg("HTTP 请求")
	}
}

func eventFor(status int, path string) *zerolog.Event {
	switch {
	case status >= http.StatusInternalServerError:
		return logger.L.Error()
	case status >= http.StatusBadRequest:
		return logger.L.Warn()
	case path == "/healthz" || path == "/readyz" || path == "/metrics":
		return logger.L.Debug()
	default:
		return logger.L.Info()
	}
}

// peekBody 读出 POST/PUT/DELETE 请求体后放回，返回截断后的文本
func peekBody(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		return ""
	}
	b, err := io.ReadAll(io.LimitReader(r.Body, MaxPayloadSize+1))
	if err != nil {
		return ""
	}
	r.Body = io.NopCloser(bytes.NewReader(b))
	if len(b) > MaxBodyLogSize {
		return string(b[:MaxBodyLogSize]) + "... (truncated)"
	}
	return string(b)
}

// GetRequestID 从上下文中获取请求 ID
func GetRequestID(c *gin.Context) string {
	if id, ok := c.Get("request_id"); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}
