package sdk

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DatasetStatusFetcher 读取数据集聚合状态，*Client 实现了该接口
type DatasetStatusFetcher interface {
	DatasetStatus(ctx context.Context, datasetID string) (DatasetStatus, error)
}

// BatchPoller 列表页使用：按固定间隔顺序轮询可见的数据集，从不并发请求
type BatchPoller struct {
	fetcher  DatasetStatusFetcher
	interval time.Duration
	onUpdate func(DatasetTaskSet)
	logger   zerolog.Logger

	mu      sync.RWMutex
	visible []string
	sets    map[string]DatasetTaskSet

	refreshMu sync.Mutex
}

type BatchOption func(*BatchPoller)

func WithBatchInterval(d time.Duration) BatchOption {
	return func(b *BatchPoller) {
		if d > 0 {
			b.interval = d
		}
	}
}

// WithBatchUpdate 每个数据集刷新成功后回调
func WithBatchUpdate(fn func(DatasetTaskSet)) BatchOption {
	return func(b *BatchPoller) { b.onUpdate = fn }
}

func WithBatchLogger(l zerolog.Logger) BatchOption {
	return func(b *BatchPoller) { b.logger = l }
}

func NewBatchPoller(f DatasetStatusFetcher, opts ...BatchOption) *BatchPoller {
	b := &BatchPoller{
		fetcher:  f,
		interval: DefaultBatchPollInterval,
		logger:   zerolog.Nop(),
		sets:     make(map[string]DatasetTaskSet),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// SetVisible 替换可见数据集集合，不再可见的数据集状态会被丢弃
func (b *BatchPoller) SetVisible(ids []string) {
	seen := make(map[string]struct{}, len(ids))
	visible := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		visible = append(visible, id)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.visible = visible
	for id := range b.sets {
		if _, ok := seen[id]; !ok {
			delete(b.sets, id)
		}
	}
}

// Refresh 顺序执行一轮查询。单个数据集失败时保留它上一次的结果。
func (b *BatchPoller) Refresh(ctx context.Context) {
	b.refreshMu.Lock()
	defer b.refreshMu.Unlock()

	b.mu.RLock()
	ids := append([]string(nil), b.visible...)
	b.mu.RUnlock()

	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		ds, err := b.fetcher.DatasetStatus(ctx, id)
		if err != nil {
			b.logger.Debug().Err(err).Str("dataset_id", id).Msg("数据集状态查询失败")
			continue
		}
		set := ds.TaskSet()
		set.DatasetID = id

		b.mu.Lock()
		still := false
		for _, v := range b.visible {
			if v == id {
				still = true
				break
			}
		}
		if still {
			b.sets[id] = set
		}
		b.mu.Unlock()

		if still && b.onUpdate != nil {
			b.onUpdate(set)
		}
	}
}

// Run 立即刷新一次，然后按间隔刷新，直到 ctx 结束
func (b *BatchPoller) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		b.Refresh(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Get 某个数据集最近一次的结果
func (b *BatchPoller) Get(datasetID string) (DatasetTaskSet, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.sets[datasetID]
	return s, ok
}

// RunningCounts dataset_id -> 进行中任务数，用于列表徽标
func (b *BatchPoller) RunningCounts() map[string]int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]int, len(b.sets))
	for id, s := range b.sets {
		out[id] = s.Len()
	}
	return out
}

// Visible 当前可见集合（已排序）
func (b *BatchPoller) Visible() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := append([]string(nil), b.visible...)
	sort.Strings(out)
	return out
}
