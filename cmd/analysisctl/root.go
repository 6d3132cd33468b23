package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/azhengyongqin/analysis-hub/sdk"
)

var version = "dev"

type globalOptions struct {
	server string
	output string
	poll   bool
	debug  bool
}

func (o *globalOptions) logger(cmd *cobra.Command) zerolog.Logger {
	if !o.debug {
		return zerolog.Nop()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()
}

func (o *globalOptions) client(cmd *cobra.Command) *sdk.Client {
	return sdk.NewClient(o.server, sdk.WithClientLogger(o.logger(cmd)))
}

// subscriber 默认推送，--poll 时使用轮询
func (o *globalOptions) subscriber(cmd *cobra.Command, c *sdk.Client) sdk.Subscriber {
	if o.poll {
		return sdk.NewPollSubscriber(c, sdk.WithPollLogger(o.logger(cmd)))
	}
	return sdk.NewPushSubscriber(c, sdk.WithPushLogger(o.logger(cmd)))
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "analysisctl",
		Short: "analysisctl - 数据集分析任务命令行",
		Long: `analysisctl 通过控制面启动数据集分析并跟踪进度。

同一个 (dataset, analysis_type[, target]) 同时只会有一个任务在执行；
重复的 kickoff 会挂到已有任务上，已有结果时直接返回缓存。`,
		Version:      version,
		SilenceUsage: true,
	}

	defaultServer := os.Getenv("CONTROL_PLANE_URL")
	if defaultServer == "" {
		defaultServer = "http://localhost:28080"
	}
	cmd.PersistentFlags().StringVar(&opts.server, "server", defaultServer, "控制面地址 (CONTROL_PLANE_URL)")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "输出格式: table|json|yaml")
	cmd.PersistentFlags().BoolVar(&opts.poll, "poll", false, "用轮询代替 WebSocket 推送")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "输出调试日志")

	cmd.AddCommand(newKickoffCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newDatasetsCommand(opts))
	cmd.AddCommand(newCancelCommand(opts))

	return cmd
}

func execute() error {
	return newRootCommand().Execute()
}
