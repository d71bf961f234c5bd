// Package env assembles the controller from the configuration of
// every package.
package env

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/guard.go/pkg/archive"
	fx "github.com/robotalks/guard.go/pkg/framework"
	"github.com/robotalks/guard.go/pkg/netlink"
	"github.com/robotalks/guard.go/pkg/serial"
	"github.com/robotalks/guard.go/pkg/tasks"
	"github.com/robotalks/guard.go/pkg/telemetry"
	"github.com/robotalks/guard.go/pkg/web"
)

// ConfigFileFlag is the flag naming the TOML config file.
const ConfigFileFlag = "config"

// Config aggregates the settings of all components.
type Config struct {
	// DeviceID identifies the robot, derived from the machine ID when empty.
	DeviceID     string
	ConfigFile   string
	LoopInterval time.Duration

	Serial    *serial.Config
	Network   *netlink.Config
	Tasks     *tasks.Config
	HTTP      *web.Config
	Telemetry *telemetry.Config
	Archive   *archive.Config
}

var defaultConfig = Config{
	LoopInterval: fx.DefaultInterval,
}

func init() {
	if val := os.Getenv("GUARD_DEVICE_ID"); val != "" {
		defaultConfig.DeviceID = val
	}
	if val := os.Getenv("GUARD_CONFIG"); val != "" {
		defaultConfig.ConfigFile = val
	}
}

// SetupFlags sets command line flags of all components.
func SetupFlags() {
	flag.StringVar(&defaultConfig.DeviceID, "device-id", defaultConfig.DeviceID, "Device ID, derived from machine ID if empty.")
	flag.StringVar(&defaultConfig.ConfigFile, ConfigFileFlag, defaultConfig.ConfigFile, "TOML config file.")
	flag.DurationVar(&defaultConfig.LoopInterval, "loop-interval", defaultConfig.LoopInterval, "Interval between scheduler ticks.")
	serial.SetupFlags()
	netlink.SetupFlags()
	tasks.SetupFlags()
	web.SetupFlags()
	telemetry.SetupFlags()
	archive.SetupFlags()
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a config from the current defaults of all components.
func NewConfig() *Config {
	conf := defaultConfig
	conf.Serial = serial.NewConfig()
	conf.Network = netlink.NewConfig()
	conf.Tasks = tasks.NewConfig()
	conf.HTTP = web.NewConfig()
	conf.Telemetry = telemetry.NewConfig()
	conf.Archive = archive.NewConfig()
	return &conf
}

// Load applies the config file onto the defaults and creates the config.
// Flags explicitly set on the command line take precedence over the file.
// It must be called after fs is parsed.
func Load(fs *flag.FlagSet) (*Config, error) {
	if defaultConfig.ConfigFile != "" {
		explicit := make(map[string]string)
		fs.Visit(func(f *flag.Flag) {
			explicit[f.Name] = f.Value.String()
		})
		if err := LoadFile(defaultConfig.ConfigFile); err != nil {
			return nil, err
		}
		for name, val := range explicit {
			if err := fs.Set(name, val); err != nil {
				return nil, fmt.Errorf("flag -%s: %w", name, err)
			}
		}
		glog.Infof("config: loaded %s", defaultConfig.ConfigFile)
	}
	conf := NewConfig()
	if conf.DeviceID == "" {
		conf.DeviceID = MachineID()
	}
	return conf, nil
}
