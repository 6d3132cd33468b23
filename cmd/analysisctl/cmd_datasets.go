package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/azhengyongqin/analysis-hub/sdk"
)

// datasetRow json/yaml 模式下每个数据集的输出
type datasetRow struct {
	DatasetID   string          `json:"dataset_id"`
	Running     map[string]int  `json:"running,omitempty"` // analysis_type -> 进度百分比
	CacheStatus map[string]bool `json:"cache_status,omitempty"`
	Error       string          `json:"error,omitempty"`
}

func newDatasetsCommand(opts *globalOptions) *cobra.Command {
	var (
		follow   bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "datasets <dataset_id>...",
		Short: "批量查看数据集的进行中任务与缓存状态",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newPrinter(cmd, opts.output)
			if err != nil {
				return err
			}
			c := opts.client(cmd)

			if !follow {
				bp := sdk.NewBatchPoller(c, sdk.WithBatchLogger(opts.logger(cmd)))
				bp.SetVisible(args)
				bp.Refresh(cmd.Context())
				return printDatasets(p, bp)
			}

			bp := sdk.NewBatchPoller(c,
				sdk.WithBatchInterval(interval),
				sdk.WithBatchLogger(opts.logger(cmd)),
				sdk.WithBatchUpdate(func(set sdk.DatasetTaskSet) {
					if p.format == "table" {
						fmt.Fprintf(p.w, "%s %s\n", time.Now().Format(time.TimeOnly), summarize(set))
						return
					}
					_, _ = p.structured(rowOf(set.DatasetID, set, true))
				}),
			)
			bp.SetVisible(args)
			if err := bp.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "持续轮询直到中断")
	cmd.Flags().DurationVar(&interval, "interval", sdk.DefaultBatchPollInterval, "--follow 的轮询间隔")
	return cmd
}

func rowOf(id string, set sdk.DatasetTaskSet, ok bool) datasetRow {
	row := datasetRow{DatasetID: id}
	if !ok {
		row.Error = "unavailable"
		return row
	}
	if set.Len() > 0 {
		row.Running = make(map[string]int, set.Len())
		for _, t := range set.Tasks {
			row.Running[t.TaskType] = int(t.Progress * 100)
		}
	}
	if len(set.CacheStatus) > 0 {
		row.CacheStatus = set.CacheStatus
	}
	return row
}

func printDatasets(p *printer, bp *sdk.BatchPoller) error {
	ids := bp.Visible()
	rows := make([]datasetRow, 0, len(ids))
	for _, id := range ids {
		set, ok := bp.Get(id)
		rows = append(rows, rowOf(id, set, ok))
	}
	if ok, err := p.structured(rows); ok {
		return err
	}

	table := make([][]string, 0, len(rows))
	for _, r := range rows {
		running, cached := "-", "-"
		if r.Error != "" {
			running = r.Error
		} else {
			if len(r.Running) > 0 {
				running = joinSorted(r.Running, func(k string, v int) string { return k + " " + strconv.Itoa(v) + "%" })
			}
			var hit []string
			for k, v := range r.CacheStatus {
				if v {
					hit = append(hit, k)
				}
			}
			if len(hit) > 0 {
				sort.Strings(hit)
				cached = strings.Join(hit, ",")
			}
		}
		table = append(table, []string{r.DatasetID, strconv.Itoa(len(r.Running)), running, cached})
	}
	p.table([]string{"DATASET", "RUNNING", "TASKS", "CACHED"}, table)
	return nil
}

// summarize --follow 模式的单行摘要
func summarize(set sdk.DatasetTaskSet) string {
	if !set.Running() {
		return set.DatasetID + ": idle"
	}
	types := make(map[string]int, set.Len())
	for _, t := range set.Tasks {
		types[t.TaskType] = int(t.Progress * 100)
	}
	return fmt.Sprintf("%s: %d running (%s)", set.DatasetID, set.Len(),
		joinSorted(types, func(k string, v int) string { return k + " " + strconv.Itoa(v) + "%" }))
}

func joinSorted(m map[string]int, format func(string, int) string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = format(k, m[k])
	}
	return strings.Join(parts, ", ")
}
