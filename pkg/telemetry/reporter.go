// Package telemetry publishes the robot status over MQTT and accepts
// remote mode commands.
package telemetry

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/golang/glog"
	"github.com/jonboulle/clockwork"

	"github.com/robotalks/guard.go/pkg/msgs"
	"github.com/robotalks/guard.go/pkg/robot"
	"github.com/robotalks/guard.go/pkg/state"
)

// Topics relative to the device.
const (
	TopicStatus      = "status"
	TopicModeCommand = "cmd/mode"
)

// StatusTopic returns the status topic of a device.
func StatusTopic(deviceID string) string {
	return deviceID + "/" + TopicStatus
}

// ModeCommandTopic returns the mode command topic of a device.
func ModeCommandTopic(deviceID string) string {
	return deviceID + "/" + TopicModeCommand
}

// Config defines the telemetry settings.
type Config struct {
	// URL is the broker URL, telemetry is disabled when empty.
	URL string
	// Interval is the minimum interval between two status messages.
	Interval time.Duration
}

var defaultConfig = Config{
	Interval: 5 * time.Second,
}

func init() {
	if val := os.Getenv("GUARD_MQTT_URL"); val != "" {
		defaultConfig.URL = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.URL, "mqtt-url", defaultConfig.URL, "MQTT broker URL, e.g. mqtt://host:1883/guard/.")
	flag.DurationVar(&defaultConfig.Interval, "mqtt-interval", defaultConfig.Interval, "Minimum interval between status messages.")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a config with defaults.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Enabled tells whether a broker is configured.
func (c *Config) Enabled() bool {
	return c.URL != ""
}

// Connect creates the queue and connects to the broker.
func (c *Config) Connect() (*Queue, error) {
	q, err := NewQueueFromURL(c.URL)
	if err != nil {
		return nil, err
	}
	if err := q.Connect(); err != nil {
		return nil, err
	}
	return q, nil
}

// NewReporter creates a Reporter using the config.
func (c *Config) NewReporter(ps PubSub, store *state.Store, modes *robot.ModeController, deviceID string) *Reporter {
	r := NewReporter(ps, store, modes, deviceID)
	r.Interval = c.Interval
	return r
}

// Reporter publishes status changes and applies mode commands.
type Reporter struct {
	PubSub   PubSub
	Store    *state.Store
	Modes    *robot.ModeController
	DeviceID string
	Interval time.Duration
	Clock    clockwork.Clock
}

// NewReporter creates a Reporter.
func NewReporter(ps PubSub, store *state.Store, modes *robot.ModeController, deviceID string) *Reporter {
	return &Reporter{
		PubSub:   ps,
		Store:    store,
		Modes:    modes,
		DeviceID: deviceID,
		Interval: defaultConfig.Interval,
		Clock:    clockwork.NewRealClock(),
	}
}

// Name implements Named.
func (r *Reporter) Name() string {
	return "telemetry"
}

// Run implements Runnable.
func (r *Reporter) Run(ctx context.Context) error {
	cmds, err := r.PubSub.Subscribe(ModeCommandTopic(r.DeviceID), r.handleModeCommand)
	if err != nil {
		glog.Warningf("telemetry: subscribe mode commands: %v", err)
	}
	if cmds != nil {
		defer cmds.Close()
	}
	changes := r.Store.Subscribe()
	defer changes.Close()

	last := r.Clock.Now()
	r.publish(r.Store.Snapshot())
	var (
		pending *state.Snapshot
		timer   clockwork.Timer
		timerC  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case snapshot := <-changes.C:
			if wait := r.Interval - r.Clock.Since(last); wait > 0 {
				pending = &snapshot
				if timerC == nil {
					timer = r.Clock.NewTimer(wait)
					timerC = timer.Chan()
				}
				continue
			}
			last = r.Clock.Now()
			r.publish(snapshot)
		case <-timerC:
			timer, timerC = nil, nil
			if pending != nil {
				last = r.Clock.Now()
				r.publish(*pending)
				pending = nil
			}
		}
	}
}

func (r *Reporter) publish(snapshot state.Snapshot) {
	data, err := msgs.Encode(msgs.NewStatus(r.DeviceID, snapshot))
	if err == nil {
		err = r.PubSub.Publish(StatusTopic(r.DeviceID), data)
	}
	if err != nil {
		glog.Warningf("telemetry: publish status: %v", err)
	}
}

func (r *Reporter) handleModeCommand(topic string, payload []byte) {
	var cmd msgs.ModeCommand
	if err := msgs.Decode(payload, &cmd); err != nil {
		glog.Warningf("telemetry: %s: %v", topic, err)
		return
	}
	mode, err := state.ParseMode(cmd.Mode)
	if err != nil {
		glog.Warningf("telemetry: %s: %v", topic, err)
		return
	}
	if _, err := r.Modes.SetMode(mode, robot.SourceMQTT); err != nil {
		glog.Errorf("telemetry: %v", err)
	}
}
