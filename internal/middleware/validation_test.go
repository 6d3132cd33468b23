package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

// serve 单个中间件 + 回显路由
func serve(mw gin.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw)
	r.Any("/echo", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.String(http.StatusOK, GetRequestID(c))
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestParamValidators(t *testing.T) {
	tests := []struct {
		name    string
		mw      gin.HandlerFunc
		param   string
		value   string
		aborted bool
	}{
		{"numeric dataset", ValidateDatasetIDParam(), "dataset_id", "42", false},
		{"dotted dataset", ValidateDatasetIDParam(), "dataset_id", "coco-2017.val", false},
		{"dataset traversal", ValidateDatasetIDParam(), "dataset_id", "ds/../etc", true},
		{"dataset too long", ValidateDatasetIDParam(), "dataset_id", strings.Repeat("a", 129), true},
		{"dataset missing", ValidateDatasetIDParam(), "dataset_id", "", true},
		{"uuid task", ValidateTaskIDParam(), "task_id", "550e8400-e29b-41d4-a716-446655440000", false},
		{"task with dot", ValidateTaskIDParam(), "task_id", "t.1", true},
		{"task missing", ValidateTaskIDParam(), "task_id", "", true},
		{"eda", ValidateAnalysisTypeParam(), "analysis_type", "eda", false},
		{"image analysis", ValidateAnalysisTypeParam(), "analysis_type", "image_analysis", false},
		{"drift", ValidateAnalysisTypeParam(), "analysis_type", "drift", false},
		{"unsupported type", ValidateAnalysisTypeParam(), "analysis_type", "sentiment", true},
		{"type is case sensitive", ValidateAnalysisTypeParam(), "analysis_type", "EDA", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			c.Params = gin.Params{{Key: tt.param, Value: tt.value}}

			tt.mw(c)

			assert.Equal(t, tt.aborted, c.IsAborted())
			if tt.aborted {
				assert.Equal(t, http.StatusBadRequest, w.Code)
				assert.Contains(t, w.Body.String(), tt.param)
			}
		})
	}
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "abc", SanitizeString("  a\x00b\x7fc \n"))
	assert.Equal(t, "数据集", SanitizeString("数据集\t"))
}

func TestPayloadSizeLimit(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		declared bool
		want     int
	}{
		{name: "within limit", body: "report", declared: true, want: http.StatusOK},
		{name: "declared too large", body: strings.Repeat("a", 20), declared: true, want: http.StatusRequestEntityTooLarge},
		{name: "chunked too large", body: strings.Repeat("a", 20), want: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(tt.body))
			if !tt.declared {
				req.ContentLength = -1
			}
			w := serve(PayloadSizeLimit(10), req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{name: "generated", header: "", keep: false},
		{name: "propagated", header: "req-123", keep: true},
		{name: "malformed replaced", header: "bad id", keep: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/echo", nil)
			if tt.header != "" {
				req.Header.Set("X-Request-ID", tt.header)
			}
			w := serve(RequestIDMiddleware(), req)

			got := w.Header().Get("X-Request-ID")
			assert.Equal(t, got, w.Body.String())
			if tt.keep {
				assert.Equal(t, tt.header, got)
			} else {
				assert.Len(t, got, 36)
			}
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	w := serve(CORSMiddleware(), httptest.NewRequest(http.MethodOptions, "/echo", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodDelete)
}
