package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/azhengyongqin/analysis-hub/internal/model"
)

// ErrCancelled 控制面要求取消
var ErrCancelled = errors.New("cancelled")

// Job 一次分析
type Job struct {
	TaskID       string
	DatasetID    string
	AnalysisType model.AnalysisType
	TargetID     string
	Force        bool
}

// Progress 分析过程中汇报进度。Step 返回 ErrCancelled 时分析应尽快返回。
type Progress interface {
	// Begin 告知条目总数，之后才有 ETA
	Begin(total int, message string) error
	// Step 又完成了 n 个条目
	Step(n int, message string) error
}

// Analyzer 执行一种或多种分析，返回结果 JSON
type Analyzer interface {
	Analyze(ctx context.Context, job Job, p Progress) (json.RawMessage, error)
}

// AnalyzerFunc 函数适配
type AnalyzerFunc func(ctx context.Context, job Job, p Progress) (json.RawMessage, error)

func (f AnalyzerFunc) Analyze(ctx context.Context, job Job, p Progress) (json.RawMessage, error) {
	return f(ctx, job, p)
}

// DemoAnalyzer 逐个处理 Items 个条目，每个耗时 Delay。
// 只用于演示进度上报，不做真正的计算。
type DemoAnalyzer struct {
	Items int
	Delay time.Duration
}

func (d DemoAnalyzer) Analyze(ctx context.Context, job Job, p Progress) (json.RawMessage, error) {
	items := d.Items
	if items <= 0 {
		items = 100
	}
	if err := p.Begin(items, fmt.Sprintf("Preparing %s", job.AnalysisType)); err != nil {
		return nil, err
	}

	for i := 1; i <= items; i++ {
		if d.Delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(d.Delay):
			}
		} else if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := p.Step(1, fmt.Sprintf("Processing items: %d/%d", i, items)); err != nil {
			return nil, err
		}
	}

	return json.Marshal(map[string]any{
		"dataset_id":    job.DatasetID,
		"analysis_type": job.AnalysisType,
		"target_id":     job.TargetID,
		"items":         items,
	})
}
