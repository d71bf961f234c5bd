package tasks

import (
	"flag"
	"time"
)

// Config defines the settings of the serial tasks.
type Config struct {
	// HandshakeTimeout fails the handshake if no ping arrives in time,
	// 0 waits forever.
	HandshakeTimeout time.Duration
	// Cooldown is the minimum interval between two dispatched messages.
	Cooldown time.Duration
	// PayloadTimeout is the maximum wait for the picture payload line.
	PayloadTimeout time.Duration
	// AnnounceReady writes READY once both links are ready.
	AnnounceReady bool
}

var defaultConfig = Config{
	Cooldown:       4 * time.Second,
	PayloadTimeout: 2 * time.Second,
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.DurationVar(&defaultConfig.HandshakeTimeout, "handshake-timeout", defaultConfig.HandshakeTimeout, "Fail serial handshake after this duration, 0 to wait forever.")
	flag.DurationVar(&defaultConfig.Cooldown, "dispatch-cooldown", defaultConfig.Cooldown, "Minimum interval between processing two serial messages.")
	flag.DurationVar(&defaultConfig.PayloadTimeout, "picture-timeout", defaultConfig.PayloadTimeout, "Maximum wait for picture payload after picture_start.")
	flag.BoolVar(&defaultConfig.AnnounceReady, "announce-ready", defaultConfig.AnnounceReady, "Send READY to the companion once network is up.")
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
