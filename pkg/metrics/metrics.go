// Package metrics exposes the controller state and activity to Prometheus.
package metrics

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	fx "github.com/robotalks/guard.go/pkg/framework"
	"github.com/robotalks/guard.go/pkg/protocol"
	"github.com/robotalks/guard.go/pkg/state"
)

const namespace = "guard"

// Metrics collects the controller metrics in its own registry.
// It implements the observers of tasks, mode changes and archive.
type Metrics struct {
	Registry *prometheus.Registry

	taskSteps        *prometheus.CounterVec
	taskState        *prometheus.GaugeVec
	networkAttempts  *prometheus.CounterVec
	serialMessages   *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	modeChanges      *prometheus.CounterVec
	archivedFrames   *prometheus.CounterVec
	droppedFrames    prometheus.Counter
	droppedLines     prometheus.Counter
	serialLineErrors prometheus.Counter
}

// New creates Metrics and registers the store collector.
func New(store *state.Store) *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		taskSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_steps_total",
			Help:      "Task steps by result.",
		}, []string{"task", "result"}),
		taskState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "task_state",
			Help:      "Current state of each task (1 for the current state).",
		}, []string{"task", "state"}),
		networkAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "network_attempts_total",
			Help:      "Network association attempts by result.",
		}, []string{"result"}),
		serialMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "serial_messages_total",
			Help:      "Inbound serial messages dispatched by kind and result.",
		}, []string{"kind", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests answered in the loop by route.",
		}, []string{"route"}),
		modeChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mode_changes_total",
			Help:      "Mode changes by source.",
		}, []string{"source"}),
		archivedFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archived_frames_total",
			Help:      "Frames uploaded to the archive by result.",
		}, []string{"result"}),
		droppedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_dropped_frames_total",
			Help:      "Frames dropped because the archive queue was full.",
		}),
		droppedLines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "serial_dropped_lines_total",
			Help:      "Inbound lines dropped because the backlog was full.",
		}),
		serialLineErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "serial_line_errors_total",
			Help:      "Inbound lines discarded by the line assembler.",
		}),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.taskSteps,
		m.taskState,
		m.networkAttempts,
		m.serialMessages,
		m.httpRequests,
		m.modeChanges,
		m.archivedFrames,
		m.droppedFrames,
		m.droppedLines,
		m.serialLineErrors,
		newStoreCollector(store),
	)
	return m
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// TaskStepped implements framework.StepObserver.
func (m *Metrics) TaskStepped(task string, status fx.Status, err error) {
	res := status.String()
	if err != nil {
		res = "error"
	}
	m.taskSteps.WithLabelValues(task, res).Inc()
}

// TaskState implements tasks.StateObserver.
func (m *Metrics) TaskState(task, state string) {
	m.taskState.DeletePartialMatch(prometheus.Labels{"task": task})
	m.taskState.WithLabelValues(task, state).Set(1)
}

// NetworkAttempt implements tasks.NetworkObserver.
func (m *Metrics) NetworkAttempt(attempt int, err error) {
	m.networkAttempts.WithLabelValues(result(err)).Inc()
}

// MessageDispatched implements tasks.DispatchObserver.
func (m *Metrics) MessageDispatched(kind protocol.Kind, err error) {
	m.serialMessages.WithLabelValues(kind.String(), result(err)).Inc()
}

// RequestServed implements tasks.ServeObserver.
func (m *Metrics) RequestServed(r *http.Request) {
	route := "unknown"
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			route = pattern
		}
	}
	m.httpRequests.WithLabelValues(route).Inc()
}

// ModeChanged implements robot.ModeObserver.
func (m *Metrics) ModeChanged(prev, mode state.Mode, source string) {
	m.modeChanges.WithLabelValues(source).Inc()
}

// FrameArchived implements archive.Observer.
func (m *Metrics) FrameArchived(err error) {
	m.archivedFrames.WithLabelValues(result(err)).Inc()
}

// FrameDropped implements archive.Observer.
func (m *Metrics) FrameDropped() {
	m.droppedFrames.Inc()
}

// LineDropped counts a line dropped by the serial stream.
func (m *Metrics) LineDropped(string) {
	m.droppedLines.Inc()
}

// LineError counts a line discarded by the line assembler.
func (m *Metrics) LineError(error) {
	m.serialLineErrors.Inc()
}
