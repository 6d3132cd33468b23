package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Client HTTP 客户端，用于与控制面通信。
// 不设置请求级超时，调用方通过 ctx 控制。
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	logger zerolog.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption { return func(c *Client) { c.HTTPClient = hc } }
func WithClientLogger(l zerolog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient 创建客户端
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{},
		logger:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// KickoffRequest 启动分析请求
type KickoffRequest struct {
	DatasetID    string
	AnalysisType string
	TargetID     string // 仅 drift 使用
	Force        bool
}

// kickoffResponse 服务端原始响应
type kickoffResponse struct {
	Status  string          `json:"status"`
	TaskID  string          `json:"task_id,omitempty"`
	Cached  bool            `json:"cached,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Kickoff 幂等启动：queued / already_running / completed(cached)。
// 被拒绝（参数非法、网络失败）时返回 *RequestError，调用方保持 idle 状态。
func (c *Client) Kickoff(ctx context.Context, req KickoffRequest) (Disposition, error) {
	if req.DatasetID == "" || req.AnalysisType == "" {
		return Disposition{}, &RequestError{Message: "dataset_id and analysis_type are required"}
	}

	q := url.Values{}
	if req.Force {
		q.Set("force", "true")
	}
	if req.TargetID != "" {
		q.Set("target_id", req.TargetID)
	}
	path := fmt.Sprintf("/api/v1/analysis/%s/%s", url.PathEscape(req.DatasetID), url.PathEscape(req.AnalysisType))

	var resp kickoffResponse
	if err := c.doJSON(ctx, http.MethodPost, path, q, nil, &resp); err != nil {
		return Disposition{}, err
	}

	d, err := parseDisposition(resp)
	if err != nil {
		return Disposition{}, err
	}
	c.logger.Debug().
		Str("dataset_id", req.DatasetID).
		Str("analysis_type", req.AnalysisType).
		Str("disposition", string(d.Kind)).
		Str("task_id", d.TaskID).
		Msg("kickoff")
	return d, nil
}

// TaskStatus 读取单个任务状态（轮询通道与初始快照共用）
func (c *Client) TaskStatus(ctx context.Context, taskID string) (TaskStatus, error) {
	var s TaskStatus
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/tasks/"+url.PathEscape(taskID), nil, nil, &s)
	if err != nil {
		var re *RequestError
		if errors.As(err, &re) && re.StatusCode == http.StatusNotFound {
			re.Err = ErrTaskNotFound
		}
		return TaskStatus{}, err
	}
	if s.TaskID == "" {
		s.TaskID = taskID
	}
	return s, nil
}

// DatasetStatus 读取数据集聚合状态
func (c *Client) DatasetStatus(ctx context.Context, datasetID string) (DatasetStatus, error) {
	var s DatasetStatus
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/datasets/"+url.PathEscape(datasetID)+"/status", nil, nil, &s); err != nil {
		return DatasetStatus{}, err
	}
	if s.DatasetID == "" {
		s.DatasetID = datasetID
	}
	return s, nil
}

// Result 读取持久化的分析结果，与任务流解耦
func (c *Client) Result(ctx context.Context, datasetID, analysisType, targetID string) (json.RawMessage, error) {
	q := url.Values{}
	if targetID != "" {
		q.Set("target_id", targetID)
	}
	path := fmt.Sprintf("/api/v1/datasets/%s/results/%s", url.PathEscape(datasetID), url.PathEscape(analysisType))

	var resp struct {
		Result json.RawMessage `json:"result"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, q, nil, &resp); err != nil {
		var re *RequestError
		if errors.As(err, &re) && re.StatusCode == http.StatusNotFound {
			re.Err = ErrResultNotFound
		}
		return nil, err
	}
	return resp.Result, nil
}

// Cancel 请求取消任务，worker 会以 failed 结束该任务
func (c *Client) Cancel(ctx context.Context, taskID string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/v1/tasks/"+url.PathEscape(taskID)+"/cancel", nil, nil, nil)
}

// ClearResults 清空数据集的缓存结果
func (c *Client) ClearResults(ctx context.Context, datasetID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/v1/datasets/"+url.PathEscape(datasetID)+"/results", nil, nil, nil)
}

// TaskStreamURL 任务推送流地址（http -> ws, https -> wss）
func (c *Client) TaskStreamURL(taskID string) string {
	return c.wsBase() + "/ws/task/" + url.PathEscape(taskID)
}

// DatasetStreamURL 数据集推送流地址
func (c *Client) DatasetStreamURL(datasetID string) string {
	return c.wsBase() + "/ws/dataset/" + url.PathEscape(datasetID)
}

func (c *Client) wsBase() string {
	switch {
	case strings.HasPrefix(c.BaseURL, "https://"):
		return "wss://" + strings.TrimPrefix(c.BaseURL, "https://")
	case strings.HasPrefix(c.BaseURL, "http://"):
		return "ws://" + strings.TrimPrefix(c.BaseURL, "http://")
	default:
		return c.BaseURL
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, q url.Values, body any, out any) error {
	u := c.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return &RequestError{Message: "create request", Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &RequestError{Message: "send request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &RequestError{StatusCode: resp.StatusCode, Message: errorMessage(b, resp.StatusCode)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RequestError{Message: "decode response", Err: err}
	}
	return nil
}

// errorMessage 优先取 {"error": "..."}，否则用原始 body
func errorMessage(body []byte, code int) string {
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Error != "" {
			return e.Error
		}
		if e.Message != "" {
			return e.Message
		}
	}
	if s := strings.TrimSpace(string(body)); s != "" {
		return s
	}
	return "http " + strconv.Itoa(code)
}
