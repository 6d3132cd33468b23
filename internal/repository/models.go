package repository

import (
	"encoding/json"
	"time"

	"github.com/azhengyongqin/analysis-hub/internal/model"
)

// AnalysisTaskModel GORM 模型 - 对应 analysis_task 表
type AnalysisTaskModel struct {
	ID           int64           `gorm:"primaryKey;autoIncrement;column:id"`
	TaskID       string          `gorm:"column:task_id;uniqueIndex;type:text;not null"`
	DatasetID    string          `gorm:"column:dataset_id;type:text;not null;index:idx_analysis_task_dataset_created_at"`
	AnalysisType string          `gorm:"column:analysis_type;type:text;not null"`
	TargetID     *string         `gorm:"column:target_id;type:text"`
	Status       string          `gorm:"column:status;type:text;not null;index:idx_analysis_task_status_updated_at"`
	Progress     float64         `gorm:"column:progress;type:double precision;default:0"`
	Message      *string         `gorm:"column:message;type:text"`
	Metadata     json.RawMessage `gorm:"column:metadata;type:jsonb"`
	Error        *string         `gorm:"column:error;type:text"`
	StartedAt    *time.Time      `gorm:"column:started_at"`
	CompletedAt  *time.Time      `gorm:"column:completed_at"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime;index:idx_analysis_task_dataset_created_at,sort:desc"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime;index:idx_analysis_task_status_updated_at,sort:desc"`
}

// TableName 指定表名
func (AnalysisTaskModel) TableName() string { return "analysis_task" }

// Models 需要自动迁移的模型
func Models() []any {
	return []any{&AnalysisTaskModel{}}
}

// ToTask 转换为 Task 实体
func (m *AnalysisTaskModel) ToTask() model.Task {
	t := model.Task{
		TaskID:       m.TaskID,
		DatasetID:    m.DatasetID,
		AnalysisType: model.AnalysisType(m.AnalysisType),
		Status:       model.TaskStatus(m.Status),
		Progress:     m.Progress,
		StartedAt:    m.StartedAt,
		CompletedAt:  m.CompletedAt,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	if m.TargetID != nil {
		t.TargetID = *m.TargetID
	}
	if m.Message != nil {
		t.Message = *m.Message
	}
	if m.Error != nil {
		t.Error = *m.Error
	}
	if len(m.Metadata) > 0 {
		_ = json.Unmarshal(m.Metadata, &t.Metadata)
	}
	return t
}

// TaskToModel 从 Task 实体创建模型
func TaskToModel(t model.Task) AnalysisTaskModel {
	m := AnalysisTaskModel{
		TaskID:       t.TaskID,
		DatasetID:    t.DatasetID,
		AnalysisType: string(t.AnalysisType),
		Status:       string(t.Status),
		Progress:     t.Progress,
		StartedAt:    t.StartedAt,
		CompletedAt:  t.CompletedAt,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
	if t.TargetID != "" {
		m.TargetID = &t.TargetID
	}
	if t.Message != "" {
		m.Message = &t.Message
	}
	if t.Error != "" {
		m.Error = &t.Error
	}
	if len(t.Metadata) > 0 {
		m.Metadata, _ = json.Marshal(t.Metadata)
	}
	return m
}
