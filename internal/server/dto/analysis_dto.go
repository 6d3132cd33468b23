package dto

import (
	"encoding/json"
	"time"

	"github.com/azhengyongqin/analysis-hub/internal/model"
	"github.com/azhengyongqin/analysis-hub/internal/tasks"
)

// KickoffQuery 启动分析的查询参数
type KickoffQuery struct {
	Force    bool   `form:"force" example:"false"`
	TargetID string `form:"target_id" example:"7"`
}

// KickoffResponse 启动分析的即时答复
type KickoffResponse struct {
	Status  string          `json:"status" example:"queued"` // queued / already_running / completed
	TaskID  string          `json:"task_id,omitempty" example:"550e8400-e29b-41d4-a716-446655440000"`
	Cached  bool            `json:"cached,omitempty" example:"false"`
	Result  json.RawMessage `json:"result,omitempty" swaggertype:"object"`
	Message string          `json:"message,omitempty" example:"分析任务已入队"`
}

// KickoffFrom 转换 Disposition
func KickoffFrom(d tasks.Disposition) KickoffResponse {
	resp := KickoffResponse{
		Status:  string(d.Status),
		TaskID:  d.TaskID,
		Cached:  d.Cached,
		Result:  d.Result,
		Message: d.Message,
	}
	if resp.Message == "" {
		switch d.Status {
		case tasks.DispositionQueued:
			resp.Message = "分析任务已入队"
		case tasks.DispositionAlreadyRunning:
			resp.Message = "分析任务已在执行"
		case tasks.DispositionCompleted:
			resp.Message = "返回缓存结果"
		}
	}
	return resp
}

// TaskStatusResponse 单个任务状态，同时也是 task 推送流的帧
type TaskStatusResponse struct {
	TaskID      string         `json:"task_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	DatasetID   string         `json:"dataset_id" example:"42"`
	TargetID    string         `json:"target_id,omitempty"`
	TaskType    string         `json:"task_type" example:"clustering"`
	Status      string         `json:"status" example:"running"`
	Progress    float64        `json:"progress" example:"0.42"`
	Message     string         `json:"message,omitempty" example:"Processing images: 42/100"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Error       string         `json:"error,omitempty"`
	Cached      bool           `json:"cached,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// TaskFrom 转换注册表快照
func TaskFrom(t model.Task) TaskStatusResponse {
	return TaskStatusResponse{
		TaskID:      t.TaskID,
		DatasetID:   t.DatasetID,
		TargetID:    t.TargetID,
		TaskType:    string(t.AnalysisType),
		Status:      string(t.Status),
		Progress:    t.Progress,
		Message:     t.Message,
		Metadata:    t.Metadata,
		Error:       t.Error,
		Cached:      t.Cached,
		CreatedAt:   t.CreatedAt,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
	}
}

// StreamErrorFrame task 流中未知任务的错误帧
type StreamErrorFrame struct {
	Error  string `json:"error" example:"Task not found"`
	TaskID string `json:"task_id"`
}

// ReportRequest worker 上报进度/终态
type ReportRequest struct {
	Status   string          `json:"status" example:"running"`
	Progress *float64        `json:"progress" example:"0.5"`
	Message  string          `json:"message" example:"Processing images: 50/100"`
	Metadata map[string]any  `json:"metadata"`
	Error    string          `json:"error"`
	Result   json.RawMessage `json:"result" swaggertype:"object"`
}

// ReportResponse 上报答复，cancel_requested 为 true 时 worker 应尽快以 failed 结束
type ReportResponse struct {
	Status          string             `json:"status" example:"ok"`
	CancelRequested bool               `json:"cancel_requested"`
	Task            TaskStatusResponse `json:"task"`
}

// RunningTask 数据集状态中的进行中任务
type RunningTask struct {
	TaskID   string         `json:"task_id"`
	TaskType string         `json:"task_type" example:"eda"`
	TargetID string         `json:"target_id,omitempty"`
	Status   string         `json:"status" example:"queued"`
	Progress float64        `json:"progress" example:"0"`
	Message  string         `json:"message,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// DatasetStatusResponse 数据集聚合状态，同时也是 dataset 推送流的帧
type DatasetStatusResponse struct {
	DatasetID       string          `json:"dataset_id" example:"42"`
	RunningTasks    []RunningTask   `json:"running_tasks"`
	CacheStatus     map[string]bool `json:"cache_status"`
	HasRunningTasks bool            `json:"has_running_tasks"`
}

// DatasetFrom 转换聚合状态
func DatasetFrom(s tasks.DatasetStatus) DatasetStatusResponse {
	running := make([]RunningTask, 0, len(s.RunningTasks))
	for _, t := range s.RunningTasks {
		running = append(running, RunningTask{
			TaskID:   t.TaskID,
			TaskType: string(t.AnalysisType),
			TargetID: t.TargetID,
			Status:   string(t.Status),
			Progress: t.Progress,
			Message:  t.Message,
			Metadata: t.Metadata,
		})
	}
	return DatasetStatusResponse{
		DatasetID:       s.DatasetID,
		RunningTasks:    running,
		CacheStatus:     s.CacheStatus,
		HasRunningTasks: s.HasRunningTasks,
	}
}

// ResultResponse 持久化的分析结果
type ResultResponse struct {
	DatasetID    string          `json:"dataset_id" example:"42"`
	AnalysisType string          `json:"analysis_type" example:"clustering"`
	TargetID     string          `json:"target_id,omitempty"`
	TaskID       string          `json:"task_id"`
	Result       json.RawMessage `json:"result" swaggertype:"object"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ClearResultsResponse 清除缓存结果答复
type ClearResultsResponse struct {
	Status  string `json:"status" example:"ok"`
	Cleared int    `json:"cleared" example:"3"`
}

// TaskHistoryQuery 任务历史查询
type TaskHistoryQuery struct {
	AnalysisType string `form:"analysis_type" example:"eda"`
	Status       string `form:"status" example:"failed"`
	Limit        int    `form:"limit" example:"20"`
	Offset       int    `form:"offset" example:"0"`
}

// TaskHistoryResponse 任务历史
type TaskHistoryResponse struct {
	Items  []TaskStatusResponse `json:"items"`
	Counts map[string]int       `json:"counts"`
}
