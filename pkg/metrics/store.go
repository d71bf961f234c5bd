package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/robotalks/guard.go/pkg/state"
)

// storeCollector reports the store on every scrape.
type storeCollector struct {
	store *state.Store

	mode        *prometheus.Desc
	voltage     *prometheus.Desc
	lowBattery  *prometheus.Desc
	ready       *prometheus.Desc
	frameSeq    *prometheus.Desc
	frameBytes  *prometheus.Desc
	lastBattery *prometheus.Desc
}

func newStoreCollector(store *state.Store) *storeCollector {
	return &storeCollector{
		store:       store,
		mode:        prometheus.NewDesc(namespace+"_mode", "Current mode (1 for the current mode).", []string{"mode"}, nil),
		voltage:     prometheus.NewDesc(namespace+"_battery_voltage", "Latest battery voltage.", []string{"battery"}, nil),
		lowBattery:  prometheus.NewDesc(namespace+"_battery_low", "1 when either battery is low.", nil, nil),
		ready:       prometheus.NewDesc(namespace+"_link_ready", "1 when the link is ready.", []string{"link"}, nil),
		frameSeq:    prometheus.NewDesc(namespace+"_frames_received", "Number of pictures received.", nil, nil),
		frameBytes:  prometheus.NewDesc(namespace+"_frame_bytes", "Size of the current picture.", nil, nil),
		lastBattery: prometheus.NewDesc(namespace+"_battery_updated_timestamp_seconds", "Time of the latest battery reading.", nil, nil),
	}
}

func (c *storeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.mode
	ch <- c.voltage
	ch <- c.lowBattery
	ch <- c.ready
	ch <- c.frameSeq
	ch <- c.frameBytes
	ch <- c.lastBattery
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (c *storeCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.store.Snapshot()
	for _, mode := range []state.Mode{state.ModeGuard, state.ModeToy} {
		ch <- prometheus.MustNewConstMetric(c.mode, prometheus.GaugeValue, boolValue(s.Mode == mode), mode.String())
	}
	ch <- prometheus.MustNewConstMetric(c.ready, prometheus.GaugeValue, boolValue(s.SerialReady), "serial")
	ch <- prometheus.MustNewConstMetric(c.ready, prometheus.GaugeValue, boolValue(s.NetworkReady), "network")
	ch <- prometheus.MustNewConstMetric(c.frameSeq, prometheus.CounterValue, float64(s.Frame.Seq))
	ch <- prometheus.MustNewConstMetric(c.frameBytes, prometheus.GaugeValue, float64(len(s.Frame.Payload)))
	if !s.Battery.Reported() {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.voltage, prometheus.GaugeValue, s.Battery.MotorVoltage, "motor")
	ch <- prometheus.MustNewConstMetric(c.voltage, prometheus.GaugeValue, s.Battery.ComputeVoltage, "compute")
	ch <- prometheus.MustNewConstMetric(c.lowBattery, prometheus.GaugeValue, boolValue(s.LowBattery()))
	ch <- prometheus.MustNewConstMetric(c.lastBattery, prometheus.GaugeValue, float64(s.Battery.LastUpdated.UnixNano())/1e9)
}
