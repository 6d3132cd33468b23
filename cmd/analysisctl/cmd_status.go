package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newStatusCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <task_id>",
		Short: "查看任务状态快照",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newPrinter(cmd, opts.output)
			if err != nil {
				return err
			}
			st, err := opts.client(cmd).TaskStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if ok, err := p.structured(st); ok {
				return err
			}

			p.table([]string{"TASK", "DATASET", "TYPE", "STATUS", "PROGRESS", "CACHED"}, [][]string{{
				st.TaskID,
				st.DatasetID,
				st.AnalysisType,
				p.status(st.Status),
				strconv.Itoa(int(st.Progress*100)) + "%",
				strconv.FormatBool(st.Cached),
			}})
			fmt.Fprintln(p.w)
			fmt.Fprintln(p.w, p.progressLine(st))
			return nil
		},
	}
}
