package asynqx

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// TypeAnalysisRun asynq 任务类型
const TypeAnalysisRun = "analysis:run"

// NewTaskID 生成 task_id（UUID v4）
func NewTaskID() string {
	return uuid.NewString()
}

// AnalysisPayload 投递给 worker 的任务描述
type AnalysisPayload struct {
	TaskID       string `json:"task_id"`
	DatasetID    string `json:"dataset_id"`
	AnalysisType string `json:"analysis_type"`
	TargetID     string `json:"target_id,omitempty"`
	Force        bool   `json:"force,omitempty"`
}

// ParseAnalysisPayload 解析 asynq 任务 payload
func ParseAnalysisPayload(t *asynq.Task) (AnalysisPayload, error) {
	var p AnalysisPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("unmarshal payload: %w", err)
	}
	if p.TaskID == "" || p.DatasetID == "" || p.AnalysisType == "" {
		return p, fmt.Errorf("incomplete payload: %s", string(t.Payload()))
	}
	return p, nil
}

type EnqueueParams struct {
	TaskID         string
	Queue          string
	TimeoutSeconds int32
	Retention      time.Duration
}

// EnqueueOptions 分析任务失败是终态，不交给 asynq 重试
func EnqueueOptions(p EnqueueParams) []asynq.Option {
	opts := []asynq.Option{asynq.MaxRetry(0)}

	if p.Queue != "" {
		opts = append(opts, asynq.Queue(p.Queue))
	}
	if p.TaskID != "" {
		opts = append(opts, asynq.TaskID(p.TaskID))
	}
	if p.TimeoutSeconds > 0 {
		opts = append(opts, asynq.Timeout(time.Duration(p.TimeoutSeconds)*time.Second))
	}
	if p.Retention > 0 {
		opts = append(opts, asynq.Retention(p.Retention))
	}
	return opts
}
