package sdk

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReconnectPolicy_Schedule(t *testing.T) {
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
	}, DefaultReconnectPolicy().Schedule())

	capped := ReconnectPolicy{MaxAttempts: 4, InitialBackoff: time.Second, MaxBackoff: 3 * time.Second, BackoffFactor: 2}
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second,
	}, capped.Schedule())

	// 零值回落到默认配置
	assert.Equal(t, DefaultReconnectPolicy().Schedule(), ReconnectPolicy{}.Schedule())
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "0s"},
		{45, "45s"},
		{59.9, "59s"},
		{60, "1m"},
		{150, "2m 30s"},
		{3600, "1h"},
		{3900, "1h 5m"},
		{-3, "0s"},
		{math.NaN(), "0s"},
		{math.Inf(1), "0s"},
		{math.Inf(-1), "0s"},
		{1e300, "2501999792983h 36m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.seconds), "seconds=%v", tt.seconds)
	}
}

func TestViewOf(t *testing.T) {
	tests := []struct {
		name string
		in   TaskStatus
		want ProgressView
	}{
		{
			name: "running with metadata",
			in: TaskStatus{
				Status:   StatusRunning,
				Progress: 0.424,
				Message:  "Processing images: 42/100",
				Metadata: map[string]any{
					"processed":       float64(42),
					"total":           float64(100),
					"elapsed_seconds": float64(75),
					"eta_formatted":   "1m 42s",
				},
			},
			want: ProgressView{
				Status:  StatusRunning,
				Percent: 42,
				Message: "Processing images: 42/100",
				Counts:  "42 / 100",
				Elapsed: "1m 15s",
				ETA:     "1m 42s",
			},
		},
		{
			name: "eta seconds fallback",
			in: TaskStatus{
				Status:   StatusRunning,
				Progress: 0.5,
				Metadata: map[string]any{"eta_seconds": json.Number("30")},
			},
			want: ProgressView{Status: StatusRunning, Percent: 50, ETA: "30s"},
		},
		{
			name: "completed ignores stale progress",
			in: TaskStatus{
				Status:   StatusCompleted,
				Progress: 0.3,
				Cached:   true,
				Metadata: map[string]any{"eta_formatted": "done"},
			},
			want: ProgressView{Status: StatusCompleted, Percent: 100, Cached: true},
		},
		{
			name: "progress clamped",
			in:   TaskStatus{Status: StatusRunning, Progress: 1.7},
			want: ProgressView{Status: StatusRunning, Percent: 100},
		},
		{
			name: "queued shows no percent",
			in:   TaskStatus{Status: StatusQueued, Progress: 0.9},
			want: ProgressView{Status: StatusQueued},
		},
		{
			name: "failed",
			in:   TaskStatus{Status: StatusFailed, Error: "boom"},
			want: ProgressView{Status: StatusFailed, Error: "boom"},
		},
		{
			name: "total zero has no counts",
			in: TaskStatus{
				Status:   StatusRunning,
				Metadata: map[string]any{"processed": 3, "total": 0},
			},
			want: ProgressView{Status: StatusRunning},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ViewOf(tt.in))
		})
	}
}

func TestDatasetStatus_TaskSet(t *testing.T) {
	ds := DatasetStatus{
		DatasetID: "42",
		RunningTasks: []RunningTask{
			{TaskID: "a", TaskType: "eda", Status: StatusRunning, Progress: 0.2},
			{TaskID: "b", TaskType: "clustering", Status: StatusQueued},
			{TaskID: "c", TaskType: "drift", Status: StatusCompleted, Progress: 1},
		},
		CacheStatus: map[string]bool{"eda": false, "drift": true},
	}

	set := ds.TaskSet()
	assert.Equal(t, "42", set.DatasetID)
	assert.Equal(t, 2, set.Len())
	assert.True(t, set.Running())
	assert.Equal(t, TaskSummary{TaskType: "eda", Progress: 0.2}, set.Tasks["a"])

	id, ok := set.FindType("clustering")
	assert.True(t, ok)
	assert.Equal(t, "b", id)
	_, ok = set.FindType("drift")
	assert.False(t, ok)

	// 副本，修改不影响原响应
	set.CacheStatus["eda"] = true
	assert.False(t, ds.CacheStatus["eda"])

	assert.False(t, DatasetStatus{}.TaskSet().Running())
}

func TestTaskStatus_Meta(t *testing.T) {
	s := TaskStatus{Metadata: map[string]any{
		"f":   1.5,
		"i":   2,
		"n":   json.Number("3"),
		"s":   "x",
		"nil": nil,
	}}

	v, ok := s.Meta("f")
	assert.True(t, ok)
	assert.Equal(t, 1.5, v)
	v, ok = s.Meta("i")
	assert.True(t, ok)
	assert.Equal(t, 2.0, v)
	v, ok = s.Meta("n")
	assert.True(t, ok)
	assert.Equal(t, 3.0, v)

	_, ok = s.Meta("s")
	assert.False(t, ok)
	_, ok = s.Meta("nil")
	assert.False(t, ok)
	_, ok = s.Meta("missing")
	assert.False(t, ok)

	assert.Equal(t, "x", s.MetaString("s"))
	assert.Empty(t, s.MetaString("f"))
}
