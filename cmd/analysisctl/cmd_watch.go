package main

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/azhengyongqin/analysis-hub/sdk"
)

func newWatchCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <task_id>",
		Short: "跟踪一个已有任务直到结束",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newPrinter(cmd, opts.output)
			if err != nil {
				return err
			}
			c := opts.client(cmd)

			var (
				mu   sync.Mutex
				last *sdk.TaskStatus
			)
			sub, err := opts.subscriber(cmd, c).Subscribe(cmd.Context(), args[0], sdk.Handlers{
				OnFrame: func(s sdk.TaskStatus) {
					mu.Lock()
					defer mu.Unlock()
					st := s
					last = &st
					if p.format == "table" {
						fmt.Fprintln(p.w, p.progressLine(s))
					}
				},
			})
			if err != nil {
				return err
			}
			defer sub.Dispose()

			select {
			case <-sub.Done():
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			}

			mu.Lock()
			final := last
			mu.Unlock()
			if final != nil {
				if ok, err := p.structured(final); ok && err != nil {
					return err
				}
			}
			return sub.Err()
		},
	}
}
