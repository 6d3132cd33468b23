package sdk

import (
	"encoding/json"
	"time"
)

// Status 任务状态枚举，避免用户侧写错字符串。
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal 终态（completed/failed）之后不会再有状态变化
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Active 任务仍在队列中或正在执行
func (s Status) Active() bool {
	return s == StatusQueued || s == StatusRunning
}

// TaskStatus 服务端任务状态的只读镜像。
// Progress 只在 running 时有意义，是否完成只能看 Status。
type TaskStatus struct {
	TaskID       string         `json:"task_id"`
	DatasetID    string         `json:"dataset_id,omitempty"`
	TargetID     string         `json:"target_id,omitempty"`
	AnalysisType string         `json:"task_type,omitempty"`
	Status       Status         `json:"status"`
	Progress     float64        `json:"progress"`
	Message      string         `json:"message,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Error        string         `json:"error,omitempty"`
	Cached       bool           `json:"cached,omitempty"`
	CreatedAt    *time.Time     `json:"created_at,omitempty"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// Terminal 是否已到终态
func (s TaskStatus) Terminal() bool { return s.Status.Terminal() }

// Meta 读取 metadata 中的数值字段（JSON 解码后数字都是 float64）
func (s TaskStatus) Meta(key string) (float64, bool) {
	v, ok := s.Metadata[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// MetaString 读取 metadata 中的字符串字段
func (s TaskStatus) MetaString(key string) string {
	if v, ok := s.Metadata[key].(string); ok {
		return v
	}
	return ""
}

// RunningTask 数据集聚合状态中的单个进行中任务
type RunningTask struct {
	TaskID   string         `json:"task_id"`
	TaskType string         `json:"task_type"`
	Status   Status         `json:"status,omitempty"`
	Progress float64        `json:"progress"`
	Message  string         `json:"message,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// DatasetStatus 对应 GET dataset_status 以及 dataset 推送流的帧
type DatasetStatus struct {
	DatasetID       string          `json:"dataset_id"`
	RunningTasks    []RunningTask   `json:"running_tasks"`
	CacheStatus     map[string]bool `json:"cache_status,omitempty"`
	HasRunningTasks bool            `json:"has_running_tasks"`
}

// TaskSummary DatasetTaskSet 中每个任务的摘要
type TaskSummary struct {
	TaskType string
	Progress float64
}

// DatasetTaskSet task_id -> 摘要，每次观察都由服务端重新推导，客户端不做累积。
type DatasetTaskSet struct {
	DatasetID   string
	Tasks       map[string]TaskSummary
	CacheStatus map[string]bool
}

// TaskSet 把服务端响应转换成 DatasetTaskSet（整体替换语义）
func (d DatasetStatus) TaskSet() DatasetTaskSet {
	set := DatasetTaskSet{
		DatasetID:   d.DatasetID,
		Tasks:       make(map[string]TaskSummary, len(d.RunningTasks)),
		CacheStatus: make(map[string]bool, len(d.CacheStatus)),
	}
	for _, t := range d.RunningTasks {
		if t.Status.Terminal() {
			continue
		}
		set.Tasks[t.TaskID] = TaskSummary{TaskType: t.TaskType, Progress: t.Progress}
	}
	for k, v := range d.CacheStatus {
		set.CacheStatus[k] = v
	}
	return set
}

// Running 是否有进行中的任务
func (s DatasetTaskSet) Running() bool { return len(s.Tasks) > 0 }

// Len 进行中任务数
func (s DatasetTaskSet) Len() int { return len(s.Tasks) }

// FindType 查找指定分析类型的进行中任务
func (s DatasetTaskSet) FindType(analysisType string) (string, bool) {
	for id, t := range s.Tasks {
		if t.TaskType == analysisType {
			return id, true
		}
	}
	return "", false
}
