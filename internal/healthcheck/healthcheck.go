package healthcheck

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

const checkTimeout = 2 * time.Second

// Pinger 可探活的依赖
type Pinger interface {
	Ping(ctx context.Context) error
}

type dependency struct {
	name string
	fn   func(context.Context) error
}

// HealthChecker 依次探测任务历史库、asynq 队列与结果缓存
type HealthChecker struct {
	deps []dependency
}

// NewHealthChecker 未配置的依赖传 nil 即跳过
func NewHealthChecker(pgPool *pgxpool.Pool, inspector *asynq.Inspector, results Pinger) *HealthChecker {
	h := &HealthChecker{}
	if pgPool != nil {
		h.deps = append(h.deps, dependency{"task_history", pgPool.Ping})
	}
	if inspector != nil {
		h.deps = append(h.deps, dependency{"queue", func(context.Context) error {
			_, err := inspector.Queues()
			return err
		}})
	}
	if results != nil {
		h.deps = append(h.deps, dependency{"results", results.Ping})
	}
	return h
}

// CheckResult 探测结果，Status 为 "ok" 或 "error"
type CheckResult struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// LivenessCheck 只说明进程还在，nil 接收者也可调用
func (h *HealthChecker) LivenessCheck() CheckResult {
	return CheckResult{Status: "ok", Checks: map[string]string{"service": "running"}}
}

// ReadinessCheck 每个依赖单独限时 2s
func (h *HealthChecker) ReadinessCheck(ctx context.Context) CheckResult {
	result := CheckResult{Status: "ok", Checks: make(map[string]string, len(h.deps))}
	for _, d := range h.deps {
		dctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := d.fn(dctx)
		cancel()
		if err != nil {
			result.Checks[d.name] = "error: " + err.Error()
			result.Status = "error"
			continue
		}
		result.Checks[d.name] = "ok"
	}
	return result
}
