package runner

import (
	"sort"
	"sync"

	"github.com/azhengyongqin/analysis-hub/internal/model"
)

// historySize 每种分析类型保留的最近完成记录数
const historySize = 20

// defaultPerItem 没有历史时每个条目的预估耗时（秒）
var defaultPerItem = map[model.AnalysisType]float64{
	model.AnalysisEDA:        0.1,
	model.AnalysisImage:      0.5,
	model.AnalysisClustering: 1.0,
	model.AnalysisDrift:      1.5,
}

// Estimator 按分析类型记录每个条目的耗时，用中位数估算总耗时。
// 同一个 worker 进程内的所有任务共享一个 Estimator。
type Estimator struct {
	mu      sync.Mutex
	history map[model.AnalysisType][]float64
}

func NewEstimator() *Estimator {
	return &Estimator{history: make(map[model.AnalysisType][]float64)}
}

// Record 记录一次完成的分析
func (e *Estimator) Record(t model.AnalysisType, items int, seconds float64) {
	if items <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	h := append(e.history[t], seconds/float64(items))
	if len(h) > historySize {
		h = h[len(h)-historySize:]
	}
	e.history[t] = h
}

// PerItem 单个条目的预估耗时
func (e *Estimator) PerItem(t model.AnalysisType) float64 {
	e.mu.Lock()
	h := append([]float64(nil), e.history[t]...)
	e.mu.Unlock()

	if len(h) == 0 {
		if v, ok := defaultPerItem[t]; ok {
			return v
		}
		return 1.0
	}
	return median(h)
}

// Estimate items 个条目的预估总耗时（秒）
func (e *Estimator) Estimate(t model.AnalysisType, items int) float64 {
	return e.PerItem(t) * float64(items)
}

func median(xs []float64) float64 {
	sort.Float64s(xs)
	n := len(xs)
	if n%2 == 1 {
		return xs[n/2]
	}
	return (xs[n/2-1] + xs[n/2]) / 2
}
