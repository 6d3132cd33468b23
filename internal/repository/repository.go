package repository

import (
	"context"

	"github.com/azhengyongqin/analysis-hub/internal/model"
	"github.com/azhengyongqin/analysis-hub/internal/tasks"
)

// ErrNotFound 记录不存在，与注册表的 not found 语义一致
var ErrNotFound = tasks.ErrTaskNotFound

// ListFilter 任务历史查询过滤条件
type ListFilter struct {
	DatasetID    string
	AnalysisType string
	Status       string
	Limit        int
	Offset       int
}

// TaskRepository 分析任务仓储接口
// 注册表是权威状态，这里只保存快照，供回收之后查询与历史统计
type TaskRepository interface {
	// Upsert 创建或更新任务快照
	Upsert(ctx context.Context, t model.Task) error

	// Get 根据 task_id 获取任务，不存在返回 ErrNotFound
	Get(ctx context.Context, taskID string) (model.Task, error)

	// List 查询任务历史（按创建时间倒序）
	List(ctx context.Context, f ListFilter) ([]model.Task, error)

	// CountByStatus 统计数据集各状态任务数
	CountByStatus(ctx context.Context, datasetID string) (map[string]int, error)
}
