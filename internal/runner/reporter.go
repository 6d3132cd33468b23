package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/azhengyongqin/analysis-hub/internal/server/dto"
)

// ErrTaskFinished 控制面已经认为任务结束（409），后续上报没有意义
var ErrTaskFinished = errors.New("task already finished on control plane")

// Reporter 把进度与结果上报到控制面 POST /api/v1/tasks/{id}/report。
// 网络错误与 5xx 按指数退避重试，4xx 直接返回。
type Reporter struct {
	ControlPlaneURL string
	HTTPClient      *http.Client
	MaxAttempts     int
	Backoff         time.Duration

	Logger zerolog.Logger
}

func (r Reporter) client() *http.Client {
	if r.HTTPClient != nil {
		return r.HTTPClient
	}
	return &http.Client{Timeout: 5 * time.Second}
}

// Report 上报一次，返回控制面答复（包含 cancel_requested）
func (r Reporter) Report(ctx context.Context, taskID string, req dto.ReportRequest) (dto.ReportResponse, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return dto.ReportResponse{}, fmt.Errorf("marshal report: %w", err)
	}
	u := fmt.Sprintf("%s/api/v1/tasks/%s/report", r.ControlPlaneURL, url.PathEscape(taskID))

	attempts := r.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := r.Backoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return dto.ReportResponse{}, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		resp, retry, err := r.post(ctx, u, b)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retry {
			break
		}
		r.Logger.Warn().Err(err).Str("task_id", taskID).Int("attempt", i+1).Msg("上报失败，准备重试")
	}
	return dto.ReportResponse{}, lastErr
}

func (r Reporter) post(ctx context.Context, u string, body []byte) (dto.ReportResponse, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return dto.ReportResponse{}, false, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client().Do(httpReq)
	if err != nil {
		return dto.ReportResponse{}, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		return dto.ReportResponse{}, false, ErrTaskFinished
	case resp.StatusCode >= 500:
		return dto.ReportResponse{}, true, fmt.Errorf("report failed: status=%d", resp.StatusCode)
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return dto.ReportResponse{}, false, fmt.Errorf("report rejected: status=%d body=%s", resp.StatusCode, msg)
	}

	var out dto.ReportResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return dto.ReportResponse{}, false, fmt.Errorf("decode report response: %w", err)
	}
	return out, false, nil
}
