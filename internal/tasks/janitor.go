package tasks

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/azhengyongqin/analysis-hub/internal/metrics"
)

// Janitor 定期回收终态任务
type Janitor struct {
	store     *Store
	retention time.Duration
	interval  time.Duration
	logger    zerolog.Logger
}

func NewJanitor(store *Store, retention, interval time.Duration, logger zerolog.Logger) *Janitor {
	return &Janitor{
		store:     store,
		retention: retention,
		interval:  interval,
		logger:    logger,
	}
}

// Run 阻塞直到 ctx 结束
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info().
		Dur("retention", j.retention).
		Dur("interval", j.interval).
		Msg("任务回收已启动")

	for {
		select {
		case <-ctx.Done():
			j.logger.Info().Msg("任务回收已停止")
			return nil
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *Janitor) sweep() {
	n := j.store.Sweep(j.retention)
	active, terminal := j.store.Stats()
	metrics.UpdateRegistryStats(active, terminal)
	if n > 0 {
		metrics.RecordCollected(n)
		j.logger.Debug().Int("collected", n).Int("active", active).Msg("回收终态任务")
	}
}
