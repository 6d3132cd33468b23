package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azhengyongqin/analysis-hub/internal/cache"
	"github.com/azhengyongqin/analysis-hub/internal/model"
	asynqx "github.com/azhengyongqin/analysis-hub/internal/queue"
	"github.com/azhengyongqin/analysis-hub/internal/tasks"
	"github.com/azhengyongqin/analysis-hub/sdk"
)

type nopQueue struct{}

func (nopQueue) EnqueueAnalysis(context.Context, asynqx.AnalysisPayload) error { return nil }

func newTestServer(t *testing.T) (*httptest.Server, *tasks.Service) {
	t.Helper()
	svc := tasks.NewService(tasks.NewStore(), cache.NewMemoryResultStore(), nopQueue{})
	srv := httptest.NewServer(NewRouter(Deps{
		Service:               svc,
		TaskStreamInterval:    20 * time.Millisecond,
		DatasetStreamInterval: 20 * time.Millisecond,
	}))
	t.Cleanup(srv.Close)
	return srv, svc
}

func TestRouter_Liveness(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestRouter_RejectsInvalidParams(t *testing.T) {
	srv, _ := newTestServer(t)
	client := sdk.NewClient(srv.URL)

	_, err := client.Kickoff(context.Background(), sdk.KickoffRequest{DatasetID: "42", AnalysisType: "bogus"})
	var re *sdk.RequestError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusBadRequest, re.StatusCode)

	_, err = client.TaskStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, sdk.ErrTaskNotFound)
}

func TestRouter_TrackerEndToEnd(t *testing.T) {
	srv, svc := newTestServer(t)
	ctx := context.Background()

	client := sdk.NewClient(srv.URL)
	sub := sdk.NewPushSubscriber(client)
	tracker := sdk.NewTracker(client, sub, "42", "clustering")
	defer tracker.Close()

	require.NoError(t, tracker.Start(ctx, false))
	snap := tracker.Snapshot()
	require.Equal(t, sdk.TrackerRunning, snap.State)
	taskID := snap.TaskID
	require.NotEmpty(t, taskID)

	_, err := svc.Report(ctx, taskID, tasks.Report{
		Status:   model.TaskStatusRunning,
		Progress: ptr(0.4),
		Message:  "Processing images: 40/100",
		Metadata: map[string]any{"processed": 40, "total": 100},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s := tracker.Snapshot()
		return s.Status != nil && s.Status.Status == sdk.StatusRunning && s.Status.Progress > 0.39
	}, 3*time.Second, 10*time.Millisecond)

	view := sdk.ViewOf(*tracker.Snapshot().Status)
	assert.Equal(t, "Processing images: 40/100", view.Message)

	_, err = svc.Report(ctx, taskID, tasks.Report{
		Status: model.TaskStatusCompleted,
		Result: json.RawMessage(`{"clusters":4}`),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return tracker.Snapshot().State == sdk.TrackerCompleted
	}, 3*time.Second, 10*time.Millisecond)
	done := tracker.Snapshot()
	assert.JSONEq(t, `{"clusters":4}`, string(done.Result))
	assert.NoError(t, done.Err)

	// 第二个组件直接拿到缓存结果
	other := sdk.NewTracker(client, sub, "42", "clustering")
	require.NoError(t, other.Start(ctx, false))
	cached := other.Snapshot()
	assert.Equal(t, sdk.TrackerCompleted, cached.State)
	assert.True(t, cached.Cached)
	assert.JSONEq(t, `{"clusters":4}`, string(cached.Result))
}

func TestRouter_TrackerFailed(t *testing.T) {
	srv, svc := newTestServer(t)
	ctx := context.Background()

	client := sdk.NewClient(srv.URL)
	tracker := sdk.NewTracker(client, sdk.NewPushSubscriber(client), "42", "eda")
	defer tracker.Close()

	require.NoError(t, tracker.Start(ctx, false))
	_, err := svc.Report(ctx, tracker.Snapshot().TaskID, tasks.Report{
		Status: model.TaskStatusFailed,
		Error:  "column type mismatch",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return tracker.Snapshot().State == sdk.TrackerFailed
	}, 3*time.Second, 10*time.Millisecond)

	var je *sdk.JobError
	require.ErrorAs(t, tracker.Snapshot().Err, &je)
	assert.Equal(t, "column type mismatch", je.Message)
}

func TestRouter_PushUnknownTask(t *testing.T) {
	srv, _ := newTestServer(t)
	client := sdk.NewClient(srv.URL)

	errs := make(chan error, 4)
	s, err := sdk.NewPushSubscriber(client).Subscribe(context.Background(), "unknown", sdk.Handlers{
		OnTransportError: func(err error) { errs <- err },
	})
	require.NoError(t, err)
	defer s.Dispose()

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, sdk.ErrTaskNotFound)
	case <-time.After(3 * time.Second):
		t.Fatal("没有收到 Task not found")
	}
}

func TestRouter_DatasetHub(t *testing.T) {
	srv, svc := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := sdk.NewDatasetHub(sdk.NewClient(srv.URL))
	w, err := hub.Watch(ctx, "42")
	require.NoError(t, err)
	defer w.Close()

	// 同一数据集的观察者共用一条连接
	w2, err := hub.Watch(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, 1, hub.Streams())
	w2.Close()

	d, err := svc.Kickoff(ctx, tasks.KickoffRequest{DatasetID: "42", AnalysisType: model.AnalysisEDA})
	require.NoError(t, err)

	deadline := time.After(3 * time.Second)
	for {
		select {
		case set, ok := <-w.Updates():
			if !ok {
				t.Fatalf("watch 提前结束: %v", w.Err())
			}
			if _, found := set.Tasks[d.TaskID]; found {
				assert.Equal(t, "eda", set.Tasks[d.TaskID].TaskType)
				return
			}
		case <-deadline:
			t.Fatal("数据集流没有出现新任务")
		}
	}
}

func TestRouter_ShutdownClosesStreams(t *testing.T) {
	shutdown, stop := context.WithCancel(context.Background())
	svc := tasks.NewService(tasks.NewStore(), cache.NewMemoryResultStore(), nopQueue{})
	srv := httptest.NewServer(NewRouter(Deps{
		Service:            svc,
		TaskStreamInterval: 20 * time.Millisecond,
		ShutdownCtx:        shutdown,
	}))
	defer srv.Close()

	d, err := svc.Kickoff(context.Background(), tasks.KickoffRequest{DatasetID: "42", AnalysisType: model.AnalysisEDA})
	require.NoError(t, err)

	client := sdk.NewClient(srv.URL)
	frames := make(chan sdk.TaskStatus, 64)
	errs := make(chan error, 1)
	s, err := sdk.NewPushSubscriber(client, sdk.WithReconnectPolicy(sdk.ReconnectPolicy{
		MaxAttempts:    1,
		InitialBackoff: 10 * time.Millisecond,
	})).Subscribe(context.Background(), d.TaskID, sdk.Handlers{
		OnFrame: func(st sdk.TaskStatus) {
			select {
			case frames <- st:
			default:
			}
		},
		OnTransportError: func(err error) {
			select {
			case errs <- err:
			default:
			}
		},
	})
	require.NoError(t, err)
	defer s.Dispose()

	select {
	case <-frames:
	case <-time.After(3 * time.Second):
		t.Fatal("没有收到首帧")
	}

	// 1001 不是正常关闭，订阅会重连到同一个服务并继续收帧
	stop()

	select {
	case err := <-errs:
		assert.False(t, errors.Is(err, sdk.ErrStreamClosed), "going away 不应视为服务端正常结束: %v", err)
	case <-time.After(500 * time.Millisecond):
	}
}

func ptr(f float64) *float64 { return &f }
