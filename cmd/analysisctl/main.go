package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/azhengyongqin/analysis-hub/sdk"
)

// Exit codes
const (
	ExitSuccess   = 0
	ExitJobFailed = 1 // 分析本身失败
	ExitError     = 2 // 参数、网络或服务端拒绝
)

func main() {
	_ = godotenv.Load()

	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		var jobErr *sdk.JobError
		if errors.As(err, &jobErr) {
			os.Exit(ExitJobFailed)
		}
		os.Exit(ExitError)
	}
}
