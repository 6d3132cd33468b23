package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/azhengyongqin/analysis-hub/sdk"
)

// kickoffOutput json/yaml 模式下的最终输出
type kickoffOutput struct {
	Status string          `json:"status"`
	TaskID string          `json:"task_id,omitempty"`
	Cached bool            `json:"cached,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func newKickoffCommand(opts *globalOptions) *cobra.Command {
	var (
		target string
		force  bool
		wait   bool
	)

	cmd := &cobra.Command{
		Use:   "kickoff <dataset_id> <analysis_type>",
		Short: "启动一次数据集分析",
		Example: `  analysisctl kickoff ds-1 eda
  analysisctl kickoff ds-1 drift --target ds-0 --wait
  analysisctl kickoff ds-1 clustering --force -o json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newPrinter(cmd, opts.output)
			if err != nil {
				return err
			}
			c := opts.client(cmd)
			if !wait {
				return kickoffOnce(cmd, p, c, sdk.KickoffRequest{
					DatasetID:    args[0],
					AnalysisType: args[1],
					TargetID:     target,
					Force:        force,
				})
			}
			return kickoffAndWait(cmd, p, c, opts.subscriber(cmd, c), args[0], args[1], target, force, opts)
		},
	}

	cmd.Flags().StringVar(&target, "target", "", "drift 分析的对比数据集")
	cmd.Flags().BoolVar(&force, "force", false, "忽略缓存与进行中的任务，重新执行")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "跟踪进度直到任务结束")
	return cmd
}

func kickoffOnce(cmd *cobra.Command, p *printer, c *sdk.Client, req sdk.KickoffRequest) error {
	d, err := c.Kickoff(cmd.Context(), req)
	if err != nil {
		return err
	}
	out := kickoffOutput{Status: string(d.Kind), TaskID: d.TaskID, Cached: d.Cached, Result: d.Result}
	if ok, err := p.structured(out); ok {
		return err
	}

	switch d.Kind {
	case sdk.DispositionCompletedCached:
		fmt.Fprintln(p.w, "completed (cached)")
		return printResult(p, d.Result)
	default:
		fmt.Fprintf(p.w, "%s %s\n", d.Kind, d.TaskID)
		return nil
	}
}

func kickoffAndWait(cmd *cobra.Command, p *printer, c *sdk.Client, sub sdk.Subscriber,
	datasetID, analysisType, target string, force bool, opts *globalOptions) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var (
		once     sync.Once
		final    = make(chan sdk.TrackerSnapshot, 1)
		lastLine string
		lineMu   sync.Mutex
	)
	onChange := func(s sdk.TrackerSnapshot) {
		if p.format == "table" && s.Status != nil {
			line := p.progressLine(*s.Status)
			lineMu.Lock()
			if line != lastLine {
				lastLine = line
				fmt.Fprintln(p.w, line)
			}
			lineMu.Unlock()
		}
		switch {
		case s.State == sdk.TrackerCompleted, s.State == sdk.TrackerFailed,
			s.State == sdk.TrackerIdle && s.Err != nil:
			once.Do(func() { final <- s })
		}
	}

	trackerOpts := []sdk.TrackerOption{
		sdk.WithOnChange(onChange),
		sdk.WithTrackerLogger(opts.logger(cmd)),
	}
	if target != "" {
		trackerOpts = append(trackerOpts, sdk.WithTargetID(target))
	}
	tr := sdk.NewTracker(c, sub, datasetID, analysisType, trackerOpts...)
	defer tr.Close()

	if err := tr.Start(ctx, force); err != nil {
		return err
	}

	var snap sdk.TrackerSnapshot
	select {
	case snap = <-final:
	case <-ctx.Done():
		return ctx.Err()
	}
	return reportFinal(p, snap)
}

func reportFinal(p *printer, snap sdk.TrackerSnapshot) error {
	out := kickoffOutput{Status: string(snap.State), TaskID: snap.TaskID, Cached: snap.Cached, Result: snap.Result}
	if snap.Err != nil {
		out.Error = snap.Err.Error()
	}

	if ok, err := p.structured(out); ok {
		if err != nil {
			return err
		}
		return snap.Err
	}

	if snap.Err != nil {
		return snap.Err
	}
	if snap.Cached && snap.Status == nil {
		fmt.Fprintln(p.w, "completed (cached)")
	}
	if snap.Notice != nil {
		fmt.Fprintln(p.w, "warning:", snap.Notice)
	}
	return printResult(p, snap.Result)
}

func printResult(p *printer, result json.RawMessage) error {
	if len(result) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(result, &v); err != nil {
		fmt.Fprintln(p.w, string(result))
		return nil
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(p.w, string(b))
	return nil
}
