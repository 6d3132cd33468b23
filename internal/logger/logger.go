package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// L 全局 logger，Init 之前为 Nop
var L = zerolog.Nop()

// consoleFieldsOrder 开发模式下先打请求字段，再打任务字段
var consoleFieldsOrder = []string{
	"component",
	"request_id", "method", "path", "status", "duration(ms)", "response_size", "client_ip",
	"task_id", "dataset_id", "analysis_type", "attempt",
	"query", "request_body", "response_body", "errors",
}

// Init production 为 true 时输出 JSON，否则输出控制台格式
func Init(production bool) error {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	L = build(production, os.Stdout)
	return nil
}

func build(production bool, w io.Writer) zerolog.Logger {
	if !production {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, FieldsOrder: consoleFieldsOrder}
	}
	return zerolog.New(w).With().Timestamp().Caller().Logger()
}

// SetLevel 无法识别的级别回落到 info
func SetLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// Component 带 component 字段的子 logger
func Component(name string) zerolog.Logger {
	return L.With().Str("component", name).Logger()
}

func WithRequestID(requestID string) zerolog.Logger {
	return L.With().Str("request_id", requestID).Logger()
}

func Info() *zerolog.Event  { return L.Info() }
func Error() *zerolog.Event { return L.Error() }
func Fatal() *zerolog.Event { return L.Fatal() }
