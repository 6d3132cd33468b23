package sdk

import (
	"encoding/json"
)

// DispositionKind kickoff 的即时答复类型
type DispositionKind string

const (
	// DispositionQueued 新建了任务
	DispositionQueued DispositionKind = "queued"
	// DispositionAlreadyRunning 同一逻辑任务已在执行，返回已有的 task_id
	DispositionAlreadyRunning DispositionKind = "already_running"
	// DispositionCompletedCached 不创建任务，直接返回之前的结果
	DispositionCompletedCached DispositionKind = "completed"
)

// Disposition kickoff 的即时答复。错误分支以 *RequestError 返回，不在这里表示。
type Disposition struct {
	Kind    DispositionKind
	TaskID  string
	Cached  bool
	Result  json.RawMessage
	Message string
}

// Active 答复意味着有一个需要订阅的任务
func (d Disposition) Active() bool {
	return d.Kind == DispositionQueued || d.Kind == DispositionAlreadyRunning
}

func parseDisposition(resp kickoffResponse) (Disposition, error) {
	d := Disposition{
		Kind:    DispositionKind(resp.Status),
		TaskID:  resp.TaskID,
		Cached:  resp.Cached,
		Result:  resp.Result,
		Message: resp.Message,
	}

	switch d.Kind {
	case DispositionQueued, DispositionAlreadyRunning:
		if d.TaskID == "" {
			return Disposition{}, &RequestError{Message: "kickoff response missing task_id"}
		}
		return d, nil
	case DispositionCompletedCached:
		d.TaskID = ""
		return d, nil
	default:
		msg := resp.Message
		if msg == "" {
			msg = "unknown kickoff status: " + resp.Status
		}
		return Disposition{}, &RequestError{Message: msg}
	}
}
