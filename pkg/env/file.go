package env

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/robotalks/guard.go/pkg/archive"
	"github.com/robotalks/guard.go/pkg/netlink"
	"github.com/robotalks/guard.go/pkg/serial"
	"github.com/robotalks/guard.go/pkg/tasks"
	"github.com/robotalks/guard.go/pkg/telemetry"
	"github.com/robotalks/guard.go/pkg/web"
)

// Duration is a time.Duration written as a string like "1m30s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// File is the layout of the TOML config file. Missing keys keep
// their current values.
type File struct {
	Device struct {
		ID string `toml:"id"`
	} `toml:"device"`
	Serial struct {
		Device      string   `toml:"device"`
		Baud        int      `toml:"baud"`
		Driver      string   `toml:"driver"`
		ReadTimeout Duration `toml:"read_timeout"`
		MaxLine     int      `toml:"max_line"`
	} `toml:"serial"`
	Network struct {
		Driver         string   `toml:"driver"`
		SSID           string   `toml:"ssid"`
		Credential     string   `toml:"credential"`
		Interface      string   `toml:"interface"`
		PollInterval   Duration `toml:"poll_interval"`
		AttemptTimeout Duration `toml:"attempt_timeout"`
		MaxAttempts    int      `toml:"max_attempts"`
		BackoffInitial Duration `toml:"backoff_initial"`
		BackoffMax     Duration `toml:"backoff_max"`
	} `toml:"network"`
	Handshake struct {
		Timeout Duration `toml:"timeout"`
	} `toml:"handshake"`
	Dispatch struct {
		Cooldown       Duration `toml:"cooldown"`
		PayloadTimeout Duration `toml:"payload_timeout"`
		AnnounceReady  bool     `toml:"announce_ready"`
	} `toml:"dispatch"`
	Loop struct {
		Interval Duration `toml:"interval"`
	} `toml:"loop"`
	HTTP struct {
		Addr           string   `toml:"addr"`
		Rate           float64  `toml:"rate"`
		Burst          int      `toml:"burst"`
		MDNS           bool     `toml:"mdns"`
		MDNSName       string   `toml:"mdns_name"`
		RequestTimeout Duration `toml:"request_timeout"`
	} `toml:"http"`
	MQTT struct {
		URL      string   `toml:"url"`
		Interval Duration `toml:"interval"`
	} `toml:"mqtt"`
	Archive struct {
		Endpoint      string   `toml:"endpoint"`
		Bucket        string   `toml:"bucket"`
		AccessKey     string   `toml:"access_key"`
		SecretKey     string   `toml:"secret_key"`
		Secure        bool     `toml:"secure"`
		Prefix        string   `toml:"prefix"`
		Queue         int      `toml:"queue"`
		UploadTimeout Duration `toml:"upload_timeout"`
	} `toml:"archive"`
}

// LoadFile applies a TOML config file onto the defaults of all components.
func LoadFile(fn string) error {
	data, err := os.ReadFile(fn)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var f File
	f.capture()
	if err := toml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse config %s: %w", fn, err)
	}
	f.apply()
	return nil
}

// capture fills the file with the current defaults.
func (f *File) capture() {
	f.Device.ID = defaultConfig.DeviceID
	f.Loop.Interval = Duration(defaultConfig.LoopInterval)

	sc := serial.Default()
	f.Serial.Device, f.Serial.Baud, f.Serial.Driver = sc.Device, sc.Baud, sc.Driver
	f.Serial.ReadTimeout, f.Serial.MaxLine = Duration(sc.ReadTimeout), sc.MaxLine

	nc := netlink.Default()
	f.Network.Driver, f.Network.SSID, f.Network.Credential, f.Network.Interface = nc.Driver, nc.SSID, nc.Credential, nc.Interface
	f.Network.PollInterval = Duration(nc.PollInterval)
	f.Network.AttemptTimeout = Duration(nc.AttemptTimeout)
	f.Network.MaxAttempts = nc.MaxAttempts
	f.Network.BackoffInitial = Duration(nc.BackoffInitial)
	f.Network.BackoffMax = Duration(nc.BackoffMax)

	tc := tasks.Default()
	f.Handshake.Timeout = Duration(tc.HandshakeTimeout)
	f.Dispatch.Cooldown = Duration(tc.Cooldown)
	f.Dispatch.PayloadTimeout = Duration(tc.PayloadTimeout)
	f.Dispatch.AnnounceReady = tc.AnnounceReady

	hc := web.Default()
	f.HTTP.Addr, f.HTTP.Rate, f.HTTP.Burst = hc.Addr, hc.Rate, hc.Burst
	f.HTTP.MDNS, f.HTTP.MDNSName = hc.MDNS, hc.MDNSName
	f.HTTP.RequestTimeout = Duration(hc.RequestTimeout)

	mc := telemetry.Default()
	f.MQTT.URL, f.MQTT.Interval = mc.URL, Duration(mc.Interval)

	ac := archive.Default()
	f.Archive.Endpoint, f.Archive.Bucket = ac.Endpoint, ac.Bucket
	f.Archive.AccessKey, f.Archive.SecretKey = ac.AccessKey, ac.SecretKey
	f.Archive.Secure, f.Archive.Prefix = ac.Secure, ac.Prefix
	f.Archive.Queue, f.Archive.UploadTimeout = ac.Queue, Duration(ac.UploadTimeout)
}

// apply writes the file back to the defaults.
func (f *File) apply() {
	defaultConfig.DeviceID = f.Device.ID
	defaultConfig.LoopInterval = time.Duration(f.Loop.Interval)

	sc := serial.Default()
	sc.Device, sc.Baud, sc.Driver = f.Serial.Device, f.Serial.Baud, f.Serial.Driver
	sc.ReadTimeout, sc.MaxLine = time.Duration(f.Serial.ReadTimeout), f.Serial.MaxLine

	nc := netlink.Default()
	nc.Driver, nc.SSID, nc.Credential, nc.Interface = f.Network.Driver, f.Network.SSID, f.Network.Credential, f.Network.Interface
	nc.PollInterval = time.Duration(f.Network.PollInterval)
	nc.AttemptTimeout = time.Duration(f.Network.AttemptTimeout)
	nc.MaxAttempts = f.Network.MaxAttempts
	nc.BackoffInitial = time.Duration(f.Network.BackoffInitial)
	nc.BackoffMax = time.Duration(f.Network.BackoffMax)

	tc := tasks.Default()
	tc.HandshakeTimeout = time.Duration(f.Handshake.Timeout)
	tc.Cooldown = time.Duration(f.Dispatch.Cooldown)
	tc.PayloadTimeout = time.Duration(f.Dispatch.PayloadTimeout)
	tc.AnnounceReady = f.Dispatch.AnnounceReady

	hc := web.Default()
	hc.Addr, hc.Rate, hc.Burst = f.HTTP.Addr, f.HTTP.Rate, f.HTTP.Burst
	hc.MDNS, hc.MDNSName = f.HTTP.MDNS, f.HTTP.MDNSName
	hc.RequestTimeout = time.Duration(f.HTTP.RequestTimeout)

	mc := telemetry.Default()
	mc.URL, mc.Interval = f.MQTT.URL, time.Duration(f.MQTT.Interval)

	ac := archive.Default()
	ac.Endpoint, ac.Bucket = f.Archive.Endpoint, f.Archive.Bucket
	ac.AccessKey, ac.SecretKey = f.Archive.AccessKey, f.Archive.SecretKey
	ac.Secure, ac.Prefix = f.Archive.Secure, f.Archive.Prefix
	ac.Queue, ac.UploadTimeout = f.Archive.Queue, time.Duration(f.Archive.UploadTimeout)
}
