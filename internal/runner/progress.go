package runner

import (
	"math"
	"time"

	"github.com/azhengyongqin/analysis-hub/internal/model"
	"github.com/azhengyongqin/analysis-hub/sdk"
)

// windowSize 滑动平均使用的最近条目数
const windowSize = 20

// ProgressStatus 进度快照，字段与上报 metadata 一一对应
type ProgressStatus struct {
	Progress       float64
	Processed      int
	Total          int
	ElapsedSeconds float64
	ETASeconds     float64
	ETAFormatted   string
}

// Metadata 上报用的 metadata
func (s ProgressStatus) Metadata() map[string]any {
	return map[string]any{
		"processed":       s.Processed,
		"total":           s.Total,
		"elapsed_seconds": s.ElapsedSeconds,
		"eta_seconds":     s.ETASeconds,
		"eta_formatted":   s.ETAFormatted,
	}
}

// ProgressTracker 单个任务的进度与剩余时间。
// 开始前用 Estimator 的预估；开始后用最近 20 个条目的平均耗时。
type ProgressTracker struct {
	analysisType model.AnalysisType
	total        int
	processed    int
	est          *Estimator

	start     time.Time
	last      time.Time
	itemTimes []float64
	now       func() time.Time
}

func NewProgressTracker(est *Estimator, t model.AnalysisType, total int) *ProgressTracker {
	return newProgressTracker(est, t, total, time.Now)
}

func newProgressTracker(est *Estimator, t model.AnalysisType, total int, now func() time.Time) *ProgressTracker {
	if total < 1 {
		total = 1
	}
	if est == nil {
		est = NewEstimator()
	}
	start := now()
	return &ProgressTracker{
		analysisType: t,
		total:        total,
		est:          est,
		start:        start,
		last:         start,
		now:          now,
	}
}

// Update 又完成了 count 个条目
func (p *ProgressTracker) Update(count int) ProgressStatus {
	if count < 1 {
		count = 1
	}
	now := p.now()
	// 第一批条目包含启动开销，不计入滑动窗口
	if p.processed > 0 {
		per := now.Sub(p.last).Seconds() / float64(count)
		p.itemTimes = append(p.itemTimes, per)
		if len(p.itemTimes) > windowSize {
			p.itemTimes = p.itemTimes[len(p.itemTimes)-windowSize:]
		}
	}
	p.last = now
	p.processed += count
	return p.Status()
}

func (p *ProgressTracker) progress() float64 {
	return math.Min(float64(p.processed)/float64(p.total), 1)
}

func (p *ProgressTracker) elapsed() float64 {
	return p.now().Sub(p.start).Seconds()
}

// eta 剩余秒数
func (p *ProgressTracker) eta() float64 {
	if p.processed == 0 {
		return p.est.Estimate(p.analysisType, p.total)
	}
	remaining := p.total - p.processed
	if remaining <= 0 {
		return 0
	}
	var avg float64
	if len(p.itemTimes) > 0 {
		for _, d := range p.itemTimes {
			avg += d
		}
		avg /= float64(len(p.itemTimes))
	} else {
		avg = p.elapsed() / float64(p.processed)
	}
	return avg * float64(remaining)
}

// Status 当前快照
func (p *ProgressTracker) Status() ProgressStatus {
	eta := p.eta()
	return ProgressStatus{
		Progress:       round(p.progress(), 4),
		Processed:      p.processed,
		Total:          p.total,
		ElapsedSeconds: round(p.elapsed(), 1),
		ETASeconds:     round(eta, 1),
		ETAFormatted:   sdk.FormatDuration(eta),
	}
}

// Finish 记录本次耗时供后续任务预估
func (p *ProgressTracker) Finish() ProgressStatus {
	elapsed := p.elapsed()
	p.est.Record(p.analysisType, p.processed, elapsed)
	return ProgressStatus{
		Progress:       1,
		Processed:      p.processed,
		Total:          p.total,
		ElapsedSeconds: round(elapsed, 1),
		ETASeconds:     0,
		ETAFormatted:   "done",
	}
}

func round(f float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(f*p) / p
}
