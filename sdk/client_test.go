package sdk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJSONServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL + "/")
}

func TestClient_Kickoff(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		code     int
		want     Disposition
		wantErr  bool
		wantCode int
	}{
		{
			name: "queued",
			body: `{"status":"queued","task_id":"t1"}`,
			code: http.StatusOK,
			want: Disposition{Kind: DispositionQueued, TaskID: "t1"},
		},
		{
			name: "already running",
			body: `{"status":"already_running","task_id":"t0","message":"分析任务进行中"}`,
			code: http.StatusOK,
			want: Disposition{Kind: DispositionAlreadyRunning, TaskID: "t0", Message: "分析任务进行中"},
		},
		{
			name: "cached",
			body: `{"status":"completed","cached":true,"result":{"rows":10}}`,
			code: http.StatusOK,
			want: Disposition{Kind: DispositionCompletedCached, Cached: true, Result: []byte(`{"rows":10}`)},
		},
		{
			name:    "queued without task id",
			body:    `{"status":"queued"}`,
			code:    http.StatusOK,
			wantErr: true,
		},
		{
			name:    "unknown status",
			body:    `{"status":"error","message":"Unsupported analysis type"}`,
			code:    http.StatusOK,
			wantErr: true,
		},
		{
			name:     "rejected",
			body:     `{"error":"target_id is required for drift"}`,
			code:     http.StatusBadRequest,
			wantErr:  true,
			wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newJSONServer(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/api/v1/analysis/42/drift", r.URL.Path)
				assert.Equal(t, "true", r.URL.Query().Get("force"))
				assert.Equal(t, "7", r.URL.Query().Get("target_id"))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(tt.body))
			})

			d, err := c.Kickoff(context.Background(), KickoffRequest{
				DatasetID: "42", AnalysisType: "drift", TargetID: "7", Force: true,
			})
			if tt.wantErr {
				var re *RequestError
				require.ErrorAs(t, err, &re)
				assert.Equal(t, tt.wantCode, re.StatusCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.Kind, d.Kind)
			assert.Equal(t, tt.want.TaskID, d.TaskID)
			assert.Equal(t, tt.want.Cached, d.Cached)
			assert.Equal(t, tt.want.Message, d.Message)
			if tt.want.Result != nil {
				assert.JSONEq(t, string(tt.want.Result), string(d.Result))
			}
			assert.Equal(t, tt.want.Kind != DispositionCompletedCached, d.Active())
		})
	}
}

func TestClient_KickoffRequiresIDs(t *testing.T) {
	c := NewClient("http://127.0.0.1:1")
	_, err := c.Kickoff(context.Background(), KickoffRequest{DatasetID: "42"})
	var re *RequestError
	require.ErrorAs(t, err, &re)
	assert.Zero(t, re.StatusCode)
}

func TestClient_NotFound(t *testing.T) {
	c := newJSONServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}`))
	})

	_, err := c.TaskStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	_, err = c.Result(context.Background(), "42", "eda", "")
	assert.ErrorIs(t, err, ErrResultNotFound)
	assert.Contains(t, err.Error(), "not found")
}

func TestClient_TaskStatusFillsID(t *testing.T) {
	c := newJSONServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/tasks/t1", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"running","progress":0.5,"task_type":"eda"}`))
	})

	st, err := c.TaskStatus(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", st.TaskID)
	assert.Equal(t, StatusRunning, st.Status)
	assert.Equal(t, "eda", st.AnalysisType)
	assert.False(t, st.Terminal())
}

func TestClient_NetworkError(t *testing.T) {
	c := NewClient("http://127.0.0.1:1")
	_, err := c.DatasetStatus(context.Background(), "42")
	var re *RequestError
	require.ErrorAs(t, err, &re)
	assert.Zero(t, re.StatusCode)
	assert.Error(t, re.Err)
}

func TestClient_StreamURLs(t *testing.T) {
	assert.Equal(t, "ws://localhost:28080/ws/task/t1", NewClient("http://localhost:28080").TaskStreamURL("t1"))
	assert.Equal(t, "wss://hub.example.com/ws/dataset/a%2Fb", NewClient("https://hub.example.com/").DatasetStreamURL("a/b"))
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "bad", errorMessage([]byte(`{"error":"bad"}`), 400))
	assert.Equal(t, "worse", errorMessage([]byte(`{"message":"worse"}`), 400))
	assert.Equal(t, "plain text", errorMessage([]byte("plain text\n"), 500))
	assert.Equal(t, "http 502", errorMessage(nil, 502))
}
