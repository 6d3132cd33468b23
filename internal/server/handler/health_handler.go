package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/azhengyongqin/analysis-hub/internal/healthcheck"
	"github.com/azhengyongqin/analysis-hub/internal/tasks"
)

// RegistryStats 内存任务注册表规模
type RegistryStats struct {
	Active   int `json:"active"`
	Terminal int `json:"terminal"`
}

// HealthResponse 探针响应：依赖检查结果 + 注册表规模
type HealthResponse struct {
	healthcheck.CheckResult
	Tasks *RegistryStats `json:"tasks,omitempty"`
}

// HealthHandler 探针 Handler，两者都可为 nil
type HealthHandler struct {
	checker *healthcheck.HealthChecker
	svc     *tasks.Service
}

func NewHealthHandler(checker *healthcheck.HealthChecker, svc *tasks.Service) *HealthHandler {
	return &HealthHandler{checker: checker, svc: svc}
}

func (h *HealthHandler) withStats(r healthcheck.CheckResult) HealthResponse {
	resp := HealthResponse{CheckResult: r}
	if h.svc != nil {
		active, terminal := h.svc.Store().Stats()
		resp.Tasks = &RegistryStats{Active: active, Terminal: terminal}
	}
	return resp
}

// Liveness godoc
// @Summary 存活探针
// @Description 不检查依赖，附带当前注册表中的任务数
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /healthz [get]
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, h.withStats(h.checker.LivenessCheck()))
}

// Readiness godoc
// @Summary 就绪探针
// @Description 检查 Postgres 任务历史、asynq 队列与结果缓存；任一失败返回 503
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /readyz [get]
func (h *HealthHandler) Readiness(c *gin.Context) {
	result := healthcheck.CheckResult{Status: "ok", Checks: map[string]string{}}
	if h.checker != nil {
		result = h.checker.ReadinessCheck(c.Request.Context())
	}
	code := http.StatusOK
	if result.Status == "error" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, h.withStats(result))
}
