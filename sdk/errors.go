package sdk

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrReconnectExhausted 推送通道重连次数耗尽
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	// ErrTaskNotFound 服务端不认识该 task_id
	ErrTaskNotFound = errors.New("task not found")
	// ErrResultNotFound 结果尚未生成或已被清理
	ErrResultNotFound = errors.New("result not found")
	// ErrClosed 订阅已释放
	ErrClosed = errors.New("subscription closed")
	// ErrStreamClosed 服务端在终态之前正常关闭了推送流
	ErrStreamClosed = errors.New("stream closed by server before terminal status")
)

// TransportError 连接无法建立或保持。推送通道在重试上限内自行恢复，耗尽后才上报一次。
type TransportError struct {
	TaskID   string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("transport error (task=%s, attempts=%d): %v", e.TaskID, e.Attempts, e.Err)
	}
	return fmt.Sprintf("transport error (task=%s): %v", e.TaskID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// JobError 分析本身失败，终态，不会自动重试
type JobError struct {
	TaskID  string
	Message string
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.TaskID, e.Message)
}

// FrameError 状态帧里携带的 error 字段（数据层错误，不关闭订阅）
type FrameError struct {
	TaskID  string
	Message string
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("task %s: %s", e.TaskID, e.Message)
}

// Is 服务端对未知 task_id 返回 "Task not found"
func (e *FrameError) Is(target error) bool {
	return target == ErrTaskNotFound && strings.EqualFold(e.Message, "task not found")
}

// RequestError kickoff 或状态读取被拒绝，没有任务被创建
type RequestError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("request rejected (status %d): %s", e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("request failed: %v", e.Err)
	}
	return "request failed: " + e.Message
}

func (e *RequestError) Unwrap() error { return e.Err }

// IsTransport 是否为传输层错误
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// jobErrorFrom 从终态 failed 的状态帧构造 JobError
func jobErrorFrom(s TaskStatus) error {
	if s.Status != StatusFailed {
		return nil
	}
	msg := s.Error
	if msg == "" {
		msg = s.Message
	}
	return &JobError{TaskID: s.TaskID, Message: msg}
}
