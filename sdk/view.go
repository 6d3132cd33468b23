package sdk

import (
	"fmt"
	"math"
)

// ProgressView 进度展示所需的全部字段，由 TaskStatus 纯函数推导
type ProgressView struct {
	Status  Status
	Percent int
	Message string
	Counts  string // "processed / total"
	Elapsed string
	ETA     string
	Cached  bool
	Error   string
}

// ViewOf 只在 running 时使用 progress；完成与否只看 status
func ViewOf(s TaskStatus) ProgressView {
	v := ProgressView{
		Status:  s.Status,
		Message: s.Message,
		Cached:  s.Cached,
		Error:   s.Error,
	}

	switch s.Status {
	case StatusCompleted:
		v.Percent = 100
	case StatusRunning:
		v.Percent = int(math.Round(clamp01(s.Progress) * 100))
	}

	if processed, ok := s.Meta("processed"); ok {
		if total, ok := s.Meta("total"); ok && total > 0 {
			v.Counts = fmt.Sprintf("%d / %d", int64(processed), int64(total))
		}
	}
	if el, ok := s.Meta("elapsed_seconds"); ok {
		v.Elapsed = FormatDuration(el)
	}
	if s.Status == StatusRunning || s.Status == StatusQueued {
		if f := s.MetaString("eta_formatted"); f != "" {
			v.ETA = f
		} else if eta, ok := s.Meta("eta_seconds"); ok {
			v.ETA = FormatDuration(eta)
		}
	}
	return v
}

// maxSeconds int64 转换不会溢出的上限
const maxSeconds = 1 << 53

// FormatDuration "45s" / "2m 30s" / "1h 5m"，负数与 NaN/Inf 按 0 处理
func FormatDuration(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		seconds = 0
	}
	total := int64(min(seconds, maxSeconds))

	switch {
	case total < 60:
		return fmt.Sprintf("%ds", total)
	case total < 3600:
		m, sec := total/60, total%60
		if sec == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm %ds", m, sec)
	default:
		h, m := total/3600, (total%3600)/60
		if m == 0 {
			return fmt.Sprintf("%dh", h)
		}
		return fmt.Sprintf("%dh %dm", h, m)
	}
}

func clamp01(f float64) float64 {
	if f < 0 || math.IsNaN(f) {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
