package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestStatusClass(t *testing.T) {
	tests := map[int]string{200: "2xx", 204: "2xx", 301: "3xx", 404: "4xx", 503: "5xx", 0: "unknown", 700: "unknown"}
	for status, want := range tests {
		assert.Equal(t, want, statusClass(status), status)
	}
}

func TestRecordKickoff(t *testing.T) {
	before := testutil.ToFloat64(kickoffs.WithLabelValues("eda", "queued"))
	RecordKickoff("eda", "queued")
	RecordKickoff("eda", "queued")
	assert.Equal(t, before+2, testutil.ToFloat64(kickoffs.WithLabelValues("eda", "queued")))
}

func TestUpdateRegistryStats(t *testing.T) {
	UpdateRegistryStats(3, 7)
	assert.Equal(t, 3.0, testutil.ToFloat64(registry.WithLabelValues("active")))
	assert.Equal(t, 7.0, testutil.ToFloat64(registry.WithLabelValues("terminal")))
}

func TestStreamConnections(t *testing.T) {
	before := testutil.ToFloat64(streamConns.WithLabelValues("task"))
	StreamOpened("task")
	StreamOpened("task")
	StreamClosed("task")
	assert.Equal(t, before+1, testutil.ToFloat64(streamConns.WithLabelValues("task")))
}
