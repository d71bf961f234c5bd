package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	fx "github.com/robotalks/guard.go/pkg/framework"
	"github.com/robotalks/guard.go/pkg/protocol"
	"github.com/robotalks/guard.go/pkg/robot"
	"github.com/robotalks/guard.go/pkg/state"
)

func TestTaskMetrics(t *testing.T) {
	m := New(state.NewStore())
	m.TaskStepped("dispatch", fx.Pending, nil)
	m.TaskStepped("dispatch", fx.Pending, errors.New("boom"))
	m.TaskStepped("handshake", fx.Done, nil)
	require.Equal(t, 1.0, testutil.ToFloat64(m.taskSteps.WithLabelValues("dispatch", "pending")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.taskSteps.WithLabelValues("dispatch", "error")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.taskSteps.WithLabelValues("handshake", "done")))

	m.TaskState("network", "connecting")
	m.TaskState("network", "connected")
	m.TaskState("dispatch", "idle")
	require.Equal(t, 2, testutil.CollectAndCount(m.taskState))
	require.Equal(t, 1.0, testutil.ToFloat64(m.taskState.WithLabelValues("network", "connected")))
}

func TestTaskStateKeepsOneSeriesPerTask(t *testing.T) {
	m := New(state.NewStore())
	m.TaskState("network", "connecting")
	m.TaskState("network", "backoff")
	m.TaskState("network", "connected")
	require.Equal(t, 1, testutil.CollectAndCount(m.taskState))
}

func TestActivityMetrics(t *testing.T) {
	m := New(state.NewStore())
	m.NetworkAttempt(1, errors.New("timeout"))
	m.NetworkAttempt(2, nil)
	m.MessageDispatched(protocol.KindPing, nil)
	m.MessageDispatched(protocol.KindBattery, errors.New("malformed"))
	m.ModeChanged(state.ModeGuard, state.ModeToy, robot.SourceHTTP)
	m.FrameArchived(nil)
	m.FrameDropped()
	m.LineDropped("a")
	m.LineError(errors.New("too long"))

	require.Equal(t, 1.0, testutil.ToFloat64(m.networkAttempts.WithLabelValues("error")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.networkAttempts.WithLabelValues("ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.serialMessages.WithLabelValues(protocol.KindPing.String(), "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.serialMessages.WithLabelValues(protocol.KindBattery.String(), "error")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.modeChanges.WithLabelValues("http")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.archivedFrames.WithLabelValues("ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.droppedFrames))
	require.Equal(t, 1.0, testutil.ToFloat64(m.droppedLines))
	require.Equal(t, 1.0, testutil.ToFloat64(m.serialLineErrors))
}

func TestRequestServedUsesRoutePattern(t *testing.T) {
	m := New(state.NewStore())
	r := chi.NewRouter()
	r.Get("/mode/{mode}", func(w http.ResponseWriter, req *http.Request) {
		m.RequestServed(req)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/mode/toy", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/mode/guard", nil))
	require.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/mode/{mode}")))

	m.RequestServed(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("unknown")))
}

func TestStoreCollector(t *testing.T) {
	store := state.NewStore()
	c := newStoreCollector(store)
	// mode x2, link x2, frames received, frame bytes
	require.Equal(t, 6, testutil.CollectAndCount(c))

	store.SetBattery(5.5, 7.2, time.Unix(1700000000, 0))
	store.MarkSerialReady()
	store.SetFrame([]byte("jpeg"), time.Unix(1700000001, 0))
	require.Equal(t, 10, testutil.CollectAndCount(c))

	expected := `
# HELP guard_battery_low 1 when either battery is low.
# TYPE guard_battery_low gauge
guard_battery_low 1
# HELP guard_battery_voltage Latest battery voltage.
# TYPE guard_battery_voltage gauge
guard_battery_voltage{battery="compute"} 7.2
guard_battery_voltage{battery="motor"} 5.5
# HELP guard_frame_bytes Size of the current picture.
# TYPE guard_frame_bytes gauge
guard_frame_bytes 4
# HELP guard_link_ready 1 when the link is ready.
# TYPE guard_link_ready gauge
guard_link_ready{link="network"} 0
guard_link_ready{link="serial"} 1
# HELP guard_mode Current mode (1 for the current mode).
# TYPE guard_mode gauge
guard_mode{mode="guard"} 1
guard_mode{mode="toy"} 0
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"guard_battery_low", "guard_battery_voltage", "guard_frame_bytes", "guard_link_ready", "guard_mode"))
}

func TestHandler(t *testing.T) {
	m := New(state.NewStore())
	m.FrameDropped()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "guard_archive_dropped_frames_total 1")
	require.Contains(t, body, `guard_mode{mode="guard"} 1`)
	require.Contains(t, body, "go_goroutines")
}
