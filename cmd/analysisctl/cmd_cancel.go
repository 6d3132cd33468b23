package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCancelCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task_id>",
		Short: "请求取消一个进行中的任务",
		Long:  "取消是协作式的：worker 在下一次上报进度时收到取消请求，随后以 failed 结束任务。",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client(cmd).Cancel(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancel requested for %s\n", args[0])
			return nil
		},
	}
}
