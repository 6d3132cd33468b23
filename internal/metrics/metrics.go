package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "analysishub"

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "http", Name: "requests_total",
		Help: "HTTP requests by route template and status class.",
	}, []string{"method", "path", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
		Help:    "HTTP request latency by route template.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	// disposition: queued / already_running / completed / rejected / error
	kickoffs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "tasks", Name: "kickoffs_total",
		Help: "Kickoff requests by analysis type and disposition.",
	}, []string{"analysis_type", "disposition"})

	finished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "tasks", Name: "finished_total",
		Help: "Tasks that reached completed or failed.",
	}, []string{"analysis_type", "status"})

	taskRuntime = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "tasks", Name: "runtime_seconds",
		Help:    "Time from kickoff to terminal status.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 900, 1800},
	}, []string{"analysis_type"})

	registry = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "tasks", Name: "registry_size",
		Help: "Tasks held in the in-memory registry.",
	}, []string{"state"})

	collected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "tasks", Name: "collected_total",
		Help: "Terminal tasks dropped after the retention window.",
	})

	streamConns = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "stream", Name: "connections",
		Help: "Open push stream connections by stream kind.",
	}, []string{"stream"})

	streamFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "stream", Name: "frames_total",
		Help: "Frames written to push streams.",
	}, []string{"stream"})

	dbConns = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "db", Name: "connections",
		Help: "Task history pool connections by state.",
	}, []string{"state"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "errors_total",
		Help: "Internal errors by component and kind.",
	}, []string{"component", "type"})
)

// RecordHTTPRequest seconds<0 时不记录延迟
func RecordHTTPRequest(method, path string, status int, seconds float64) {
	httpRequests.WithLabelValues(method, path, statusClass(status)).Inc()
	if seconds >= 0 {
		httpLatency.WithLabelValues(method, path).Observe(seconds)
	}
}

func RecordKickoff(analysisType, disposition string) {
	kickoffs.WithLabelValues(analysisType, disposition).Inc()
}

// RecordTaskCompleted seconds<=0 时只计数
func RecordTaskCompleted(analysisType, status string, seconds float64) {
	finished.WithLabelValues(analysisType, status).Inc()
	if seconds > 0 {
		taskRuntime.WithLabelValues(analysisType).Observe(seconds)
	}
}

func UpdateRegistryStats(active, terminal int) {
	registry.WithLabelValues("active").Set(float64(active))
	registry.WithLabelValues("terminal").Set(float64(terminal))
}

func RecordCollected(n int) { collected.Add(float64(n)) }

func StreamOpened(stream string) { streamConns.WithLabelValues(stream).Inc() }
func StreamClosed(stream string) { streamConns.WithLabelValues(stream).Dec() }
func RecordFrame(stream string)  { streamFrames.WithLabelValues(stream).Inc() }

func UpdateDBPoolStats(inUse, idle, max int32) {
	dbConns.WithLabelValues("in_use").Set(float64(inUse))
	dbConns.WithLabelValues("idle").Set(float64(idle))
	dbConns.WithLabelValues("max").Set(float64(max))
}

func RecordError(component, kind string) {
	errorsTotal.WithLabelValues(component, kind).Inc()
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return string(rune('0'+status/100)) + "xx"
}
