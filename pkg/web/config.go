// Package web serves the local HTTP interface of the robot.
package web

import (
	"flag"
	"os"
	"time"
)

// Config defines the HTTP settings.
type Config struct {
	Addr string
	// Rate is the sustained requests per second allowed per client IP.
	Rate  float64
	Burst int
	// MDNS announces the service once listening.
	MDNS     bool
	MDNSName string
	// RequestTimeout bounds the wait for a request answered in the loop.
	RequestTimeout time.Duration
}

var defaultConfig = Config{
	Addr:           ":80",
	Rate:           20,
	Burst:          40,
	MDNS:           true,
	MDNSName:       "guard",
	RequestTimeout: 5 * time.Second,
}

func init() {
	if val := os.Getenv("GUARD_HTTP_ADDR"); val != "" {
		defaultConfig.Addr = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Addr, "http-addr", defaultConfig.Addr, "HTTP listen address.")
	flag.Float64Var(&defaultConfig.Rate, "http-rate", defaultConfig.Rate, "Requests per second allowed per client.")
	flag.IntVar(&defaultConfig.Burst, "http-burst", defaultConfig.Burst, "Request burst allowed per client.")
	flag.BoolVar(&defaultConfig.MDNS, "mdns", defaultConfig.MDNS, "Announce the HTTP service over mDNS.")
	flag.StringVar(&defaultConfig.MDNSName, "mdns-name", defaultConfig.MDNSName, "mDNS instance name.")
	flag.DurationVar(&defaultConfig.RequestTimeout, "http-timeout", defaultConfig.RequestTimeout, "Maximum wait for a request to be served.")
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
