package sdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// streamServer 第 n 次连接（从 1 开始）交给 script 处理；script 为 nil 时拒绝握手
type streamServer struct {
	dials atomic.Int32
}

func newStreamServer(t *testing.T, script func(n int) func(conn *websocket.Conn)) (*Client, *streamServer) {
	t.Helper()
	ss := &streamServer{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(ss.dials.Add(1))
		fn := script(n)
		if fn == nil {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		fn(conn)
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL), ss
}

func sendFrame(conn *websocket.Conn, v any) {
	_ = conn.WriteJSON(v)
}

// closeWith 发送关闭帧后等待客户端回应
func closeWith(conn *websocket.Conn, code int) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""), time.Now().Add(time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// drain 保持连接直到客户端关闭
func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// recordingTimer 记录退避时间并立即触发
type recordingTimer struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingTimer) fn(d time.Duration, f func()) func() bool {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	go f()
	return func() bool { return false }
}

func (r *recordingTimer) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

type recorder struct {
	mu        sync.Mutex
	frames    []TaskStatus
	terminals []TaskStatus
	errs      []error
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnFrame: func(s TaskStatus) {
			r.mu.Lock()
			r.frames = append(r.frames, s)
			r.mu.Unlock()
		},
		OnTerminal: func(s TaskStatus) {
			r.mu.Lock()
			r.terminals = append(r.terminals, s)
			r.mu.Unlock()
		},
		OnTransportError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) counts() (frames, terminals, errs int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames), len(r.terminals), len(r.errs)
}

func (r *recorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func newTestPush(c *Client, timer *recordingTimer) *PushSubscriber {
	s := NewPushSubscriber(c)
	s.timer = timer.fn
	return s
}

func waitDone(t *testing.T, sub Subscription) {
	t.Helper()
	select {
	case <-sub.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("subscription did not finish")
	}
}

func TestPush_TerminalOnce(t *testing.T) {
	c, _ := newStreamServer(t, func(int) func(*websocket.Conn) {
		return func(conn *websocket.Conn) {
			sendFrame(conn, map[string]any{"task_id": "t1", "status": "running", "progress": 0.5})
			sendFrame(conn, map[string]any{"task_id": "t1", "status": "completed", "progress": 1})
			sendFrame(conn, map[string]any{"task_id": "t1", "status": "completed", "progress": 1})
			drain(conn)
		}
	})
	timer := &recordingTimer{}
	rec := &recorder{}

	sub, err := newTestPush(c, timer).Subscribe(context.Background(), "t1", rec.handlers())
	require.NoError(t, err)
	waitDone(t, sub)

	frames, terminals, errs := rec.counts()
	assert.Equal(t, 2, frames)
	assert.Equal(t, 1, terminals)
	assert.Zero(t, errs)
	assert.NoError(t, sub.Err())
	assert.Empty(t, timer.Delays())
}

func TestPush_FailedIsJobError(t *testing.T) {
	c, _ := newStreamServer(t, func(int) func(*websocket.Conn) {
		return func(conn *websocket.Conn) {
			sendFrame(conn, map[string]any{"task_id": "t1", "status": "failed", "error": "boom"})
			drain(conn)
		}
	})

	sub, err := newTestPush(c, &recordingTimer{}).Subscribe(context.Background(), "t1", Handlers{})
	require.NoError(t, err)
	waitDone(t, sub)

	var je *JobError
	require.ErrorAs(t, sub.Err(), &je)
	assert.Equal(t, "boom", je.Message)
}

func TestPush_ReconnectExhausted(t *testing.T) {
	c, ss := newStreamServer(t, func(int) func(*websocket.Conn) { return nil })
	timer := &recordingTimer{}
	rec := &recorder{}

	sub, err := newTestPush(c, timer).Subscribe(context.Background(), "t1", rec.handlers())
	require.NoError(t, err)
	waitDone(t, sub)

	assert.Equal(t, DefaultReconnectPolicy().Schedule(), timer.Delays())
	assert.EqualValues(t, 6, ss.dials.Load())

	errs := rec.errors()
	require.Len(t, errs, 1)
	var te *TransportError
	require.ErrorAs(t, errs[0], &te)
	assert.Equal(t, 5, te.Attempts)
	assert.ErrorIs(t, errs[0], ErrReconnectExhausted)
	assert.True(t, IsTransport(sub.Err()))
}

func TestPush_ReconnectsAfterDialFailures(t *testing.T) {
	c, _ := newStreamServer(t, func(n int) func(*websocket.Conn) {
		if n <= 2 {
			return nil
		}
		return func(conn *websocket.Conn) {
			sendFrame(conn, map[string]any{"task_id": "t1", "status": "completed"})
			drain(conn)
		}
	})
	timer := &recordingTimer{}

	sub, err := newTestPush(c, timer).Subscribe(context.Background(), "t1", Handlers{})
	require.NoError(t, err)
	waitDone(t, sub)

	assert.NoError(t, sub.Err())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, timer.Delays())
}

func TestPush_AttemptsResetAfterOpen(t *testing.T) {
	c, ss := newStreamServer(t, func(n int) func(*websocket.Conn) {
		switch n {
		case 1, 2:
			return nil
		case 3:
			return func(conn *websocket.Conn) {
				sendFrame(conn, map[string]any{"task_id": "t1", "status": "running", "progress": 0.3})
				closeWith(conn, websocket.CloseGoingAway)
			}
		default:
			return func(conn *websocket.Conn) {
				sendFrame(conn, map[string]any{"task_id": "t1", "status": "completed"})
				drain(conn)
			}
		}
	})
	timer := &recordingTimer{}
	rec := &recorder{}

	sub, err := newTestPush(c, timer).Subscribe(context.Background(), "t1", rec.handlers())
	require.NoError(t, err)
	waitDone(t, sub)

	assert.NoError(t, sub.Err())
	assert.EqualValues(t, 4, ss.dials.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, time.Second}, timer.Delays())
	_, terminals, errs := rec.counts()
	assert.Equal(t, 1, terminals)
	assert.Zero(t, errs)
}

func TestPush_GoingAwayReconnects(t *testing.T) {
	c, ss := newStreamServer(t, func(n int) func(*websocket.Conn) {
		if n == 1 {
			return func(conn *websocket.Conn) {
				sendFrame(conn, map[string]any{"task_id": "t1", "status": "running", "progress": 0.2})
				closeWith(conn, websocket.CloseGoingAway)
			}
		}
		return func(conn *websocket.Conn) {
			sendFrame(conn, map[string]any{"task_id": "t1", "status": "completed"})
			drain(conn)
		}
	})
	timer := &recordingTimer{}
	rec := &recorder{}

	sub, err := newTestPush(c, timer).Subscribe(context.Background(), "t1", rec.handlers())
	require.NoError(t, err)
	waitDone(t, sub)

	assert.NoError(t, sub.Err())
	assert.EqualValues(t, 2, ss.dials.Load())
	assert.Equal(t, []time.Duration{time.Second}, timer.Delays())
	frames, terminals, errs := rec.counts()
	assert.Equal(t, 2, frames)
	assert.Equal(t, 1, terminals)
	assert.Zero(t, errs)
}

func TestPush_NormalCloseDoesNotReconnect(t *testing.T) {
	c, ss := newStreamServer(t, func(int) func(*websocket.Conn) {
		return func(conn *websocket.Conn) {
			sendFrame(conn, map[string]any{"task_id": "t1", "status": "running"})
			closeWith(conn, websocket.CloseNormalClosure)
		}
	})
	timer := &recordingTimer{}
	rec := &recorder{}

	sub, err := newTestPush(c, timer).Subscribe(context.Background(), "t1", rec.handlers())
	require.NoError(t, err)
	waitDone(t, sub)

	assert.ErrorIs(t, sub.Err(), ErrStreamClosed)
	assert.Empty(t, timer.Delays())
	assert.EqualValues(t, 1, ss.dials.Load())
	_, terminals, errs := rec.counts()
	assert.Zero(t, terminals)
	assert.Equal(t, 1, errs)
}

func TestPush_TaskNotFoundFrame(t *testing.T) {
	c, _ := newStreamServer(t, func(int) func(*websocket.Conn) {
		return func(conn *websocket.Conn) {
			sendFrame(conn, map[string]any{"error": "Task not found", "task_id": "t1"})
			closeWith(conn, websocket.CloseNormalClosure)
		}
	})
	rec := &recorder{}

	sub, err := newTestPush(c, &recordingTimer{}).Subscribe(context.Background(), "t1", rec.handlers())
	require.NoError(t, err)
	waitDone(t, sub)

	errs := rec.errors()
	require.NotEmpty(t, errs)
	assert.ErrorIs(t, errs[0], ErrTaskNotFound)
	frames, _, _ := rec.counts()
	assert.Zero(t, frames)
}

func TestPush_DisposeSilences(t *testing.T) {
	c, _ := newStreamServer(t, func(int) func(*websocket.Conn) {
		return func(conn *websocket.Conn) {
			for {
				if err := conn.WriteJSON(map[string]any{"task_id": "t1", "status": "running"}); err != nil {
					return
				}
				time.Sleep(5 * time.Millisecond)
			}
		}
	})
	rec := &recorder{}

	sub, err := newTestPush(c, &recordingTimer{}).Subscribe(context.Background(), "t1", rec.handlers())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		n, _, _ := rec.counts()
		return n >= 3
	}, 3*time.Second, 5*time.Millisecond)

	sub.Dispose()
	before, _, _ := rec.counts()
	sub.Dispose()
	waitDone(t, sub)
	assert.ErrorIs(t, sub.Err(), ErrClosed)

	time.Sleep(100 * time.Millisecond)
	after, terminals, errs := rec.counts()
	assert.Equal(t, before, after)
	assert.Zero(t, terminals)
	assert.Zero(t, errs)
}

func TestPush_ContextCancelDisposes(t *testing.T) {
	c, _ := newStreamServer(t, func(int) func(*websocket.Conn) {
		return func(conn *websocket.Conn) { drain(conn) }
	})
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := newTestPush(c, &recordingTimer{}).Subscribe(ctx, "t1", Handlers{})
	require.NoError(t, err)
	cancel()
	waitDone(t, sub)
	assert.True(t, errors.Is(sub.Err(), ErrClosed))
}

func TestPush_SetHandlersSwapsCallbacks(t *testing.T) {
	release := make(chan struct{})
	c, _ := newStreamServer(t, func(int) func(*websocket.Conn) {
		return func(conn *websocket.Conn) {
			<-release
			sendFrame(conn, map[string]any{"task_id": "t1", "status": "completed"})
			drain(conn)
		}
	})
	first, second := &recorder{}, &recorder{}

	sub, err := newTestPush(c, &recordingTimer{}).Subscribe(context.Background(), "t1", first.handlers())
	require.NoError(t, err)
	sub.SetHandlers(second.handlers())
	close(release)
	waitDone(t, sub)

	_, t1, _ := first.counts()
	_, t2, _ := second.counts()
	assert.Zero(t, t1)
	assert.Equal(t, 1, t2)
}

func TestPush_RequiresTaskID(t *testing.T) {
	_, err := NewPushSubscriber(NewClient("http://localhost")).Subscribe(context.Background(), "", Handlers{})
	assert.Error(t, err)
}
