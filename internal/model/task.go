package model

import (
	"encoding/json"
	"time"
)

// TaskStatus 分析任务状态枚举（用于 API/PG/推送帧）。
// 约定：
// - queued: 已入队（等待被 worker 消费）
// - running: worker 开始处理
// - completed: 成功，结果已写入结果存储
// - failed: 失败或被取消，不会自动重试
type TaskStatus string

const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusQueued, TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal completed/failed 之后状态不再变化
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// AnalysisType 支持的分析类型
type AnalysisType string

const (
	AnalysisEDA        AnalysisType = "eda"
	AnalysisImage      AnalysisType = "image_analysis"
	AnalysisClustering AnalysisType = "clustering"
	AnalysisDrift      AnalysisType = "drift"
	AnalysisEmbedding  AnalysisType = "embedding"
	AnalysisAttributes AnalysisType = "attributes"
)

// AnalysisTypes 所有分析类型，顺序即 cache_status 的展示顺序
var AnalysisTypes = []AnalysisType{
	AnalysisEDA,
	AnalysisImage,
	AnalysisClustering,
	AnalysisDrift,
	AnalysisEmbedding,
	AnalysisAttributes,
}

func (t AnalysisType) Valid() bool {
	for _, v := range AnalysisTypes {
		if v == t {
			return true
		}
	}
	return false
}

// NeedsTarget drift 需要对比目标
func (t AnalysisType) NeedsTarget() bool { return t == AnalysisDrift }

// TaskKey 去重键：dataset_id:analysis_type[:target_id]
func TaskKey(datasetID string, t AnalysisType, targetID string) string {
	key := datasetID + ":" + string(t)
	if targetID != "" {
		key += ":" + targetID
	}
	return key
}

// Task 控制面持有的权威任务状态
type Task struct {
	TaskID       string         `json:"task_id"`
	DatasetID    string         `json:"dataset_id"`
	TargetID     string         `json:"target_id,omitempty"`
	AnalysisType AnalysisType   `json:"task_type"`
	Status       TaskStatus     `json:"status"`
	Progress     float64        `json:"progress"`
	Message      string         `json:"message,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Error        string         `json:"error,omitempty"`
	Cached       bool           `json:"cached,omitempty"`

	CancelRequested bool `json:"-"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"-"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Key 该任务的去重键
func (t Task) Key() string { return TaskKey(t.DatasetID, t.AnalysisType, t.TargetID) }

// Clone 深拷贝 metadata，避免调用方修改注册表内部状态
func (t Task) Clone() Task {
	if t.Metadata != nil {
		m := make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			m[k] = v
		}
		t.Metadata = m
	}
	return t
}

// Result 持久化的分析结果
type Result struct {
	DatasetID    string          `json:"dataset_id"`
	AnalysisType AnalysisType    `json:"analysis_type"`
	TargetID     string          `json:"target_id,omitempty"`
	TaskID       string          `json:"task_id"`
	Data         json.RawMessage `json:"result"`
	CreatedAt    time.Time       `json:"created_at"`
}
