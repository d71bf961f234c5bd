// Package netlink brings up the network link of the controller.
package netlink

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"
)

// Status is the association status of a link.
type Status int

// Link statuses.
const (
	StatusIdle Status = iota
	StatusAssociating
	StatusAssociated
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusAssociating:
		return "associating"
	case StatusAssociated:
		return "associated"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Link is the network stack. Both operations must return quickly,
// association progresses in the background and is observed by Status.
type Link interface {
	// Connect requests association with the network.
	Connect(ctx context.Context, ssid, credential string) error
	// Status reports the association status.
	Status(ctx context.Context) (Status, error)
}

// ErrUnknownDriver indicates an unsupported link driver.
var ErrUnknownDriver = errors.New("unknown network driver")

// Config defines the network settings.
type Config struct {
	Driver     string
	SSID       string
	Credential string
	Interface  string

	PollInterval   time.Duration
	AttemptTimeout time.Duration
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

var defaultConfig = Config{
	Driver:         "iface",
	Interface:      "wlan0",
	PollInterval:   time.Second,
	AttemptTimeout: 30 * time.Second,
	BackoffInitial: time.Second,
	BackoffMax:     time.Minute,
}

func init() {
	if val := os.Getenv("GUARD_WIFI_SSID"); val != "" {
		defaultConfig.SSID = val
	}
	if val := os.Getenv("GUARD_WIFI_PSK"); val != "" {
		defaultConfig.Credential = val
	}
	if val := os.Getenv("GUARD_NET_DRIVER"); val != "" {
		defaultConfig.Driver = val
	}
	if val := os.Getenv("GUARD_NET_IFACE"); val != "" {
		defaultConfig.Interface = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Driver, "net-driver", defaultConfig.Driver, "Network driver: nm, iface or static.")
	flag.StringVar(&defaultConfig.SSID, "wifi-ssid", defaultConfig.SSID, "WiFi SSID.")
	flag.StringVar(&defaultConfig.Credential, "wifi-psk", defaultConfig.Credential, "WiFi pre-shared key.")
	flag.StringVar(&defaultConfig.Interface, "net-iface", defaultConfig.Interface, "Network interface.")
	flag.DurationVar(&defaultConfig.PollInterval, "net-poll", defaultConfig.PollInterval, "Interval between link status checks.")
	flag.DurationVar(&defaultConfig.AttemptTimeout, "net-attempt-timeout", defaultConfig.AttemptTimeout, "Give up an association attempt after this duration.")
	flag.IntVar(&defaultConfig.MaxAttempts, "net-max-attempts", defaultConfig.MaxAttempts, "Maximum association attempts, 0 for unlimited.")
	flag.DurationVar(&defaultConfig.BackoffInitial, "net-backoff", defaultConfig.BackoffInitial, "Initial backoff between association attempts.")
	flag.DurationVar(&defaultConfig.BackoffMax, "net-backoff-max", defaultConfig.BackoffMax, "Maximum backoff between association attempts.")
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

// NewLink creates the Link by the configured driver.
func (c *Config) NewLink() (Link, error) {
	switch c.Driver {
	case "static":
		return Static{}, nil
	case "iface":
		return &InterfaceLink{Interface: c.Interface}, nil
	case "nm":
		return NewNetworkManager(c.Interface)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, c.Driver)
}

// Static is a Link that is always associated, e.g. wired network.
type Static struct{}

// Connect implements Link.
func (Static) Connect(context.Context, string, string) error { return nil }

// Status implements Link.
func (Static) Status(context.Context) (Status, error) { return StatusAssociated, nil }
