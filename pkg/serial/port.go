// Package serial opens the serial link to the companion device.
package serial

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Port is an opened serial port.
type Port interface {
	io.ReadWriteCloser
}

// Driver opens a serial port using the config.
type Driver func(*Config) (Port, error)

// ErrUnknownDriver indicates the driver is not registered.
var ErrUnknownDriver = errors.New("unknown serial driver")

var (
	drivers     = make(map[string]Driver)
	driversLock sync.RWMutex
)

// RegisterDriver registers a driver by name.
func RegisterDriver(name string, driver Driver) {
	driversLock.Lock()
	drivers[name] = driver
	driversLock.Unlock()
}

// Drivers lists the names of registered drivers.
func Drivers() []string {
	driversLock.RLock()
	defer driversLock.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Config defines the serial port settings.
type Config struct {
	Device      string
	Baud        int
	Driver      string
	ReadTimeout time.Duration
	MaxLine     int
}

var defaultConfig = Config{
	Device:      "/dev/ttyS0",
	Baud:        115200,
	Driver:      "bugst",
	ReadTimeout: 100 * time.Millisecond,
	MaxLine:     64 * 1024,
}

func init() {
	if val := os.Getenv("GUARD_SERIAL_DEVICE"); val != "" {
		defaultConfig.Device = val
	}
	if val := os.Getenv("GUARD_SERIAL_BAUD"); val != "" {
		if baud, err := strconv.Atoi(val); err == nil {
			defaultConfig.Baud = baud
		}
	}
	if val := os.Getenv("GUARD_SERIAL_DRIVER"); val != "" {
		defaultConfig.Driver = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Device, "serial-device", defaultConfig.Device, "Serial device connected to the companion board.")
	flag.IntVar(&defaultConfig.Baud, "serial-baud", defaultConfig.Baud, "Serial baud rate.")
	flag.StringVar(&defaultConfig.Driver, "serial-driver", defaultConfig.Driver, "Serial driver: bugst or tarm.")
	flag.DurationVar(&defaultConfig.ReadTimeout, "serial-read-timeout", defaultConfig.ReadTimeout, "Serial read timeout.")
	flag.IntVar(&defaultConfig.MaxLine, "serial-max-line", defaultConfig.MaxLine, "Maximum length of an inbound line.")
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

// Open opens the port with the configured driver.
func (c *Config) Open() (Port, error) {
	driversLock.RLock()
	driver := drivers[c.Driver]
	driversLock.RUnlock()
	if driver == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, c.Driver)
	}
	port, err := driver(c)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", c.Device, err)
	}
	return port, nil
}

// timeoutAsEmptyRead reports a read timeout signaled with io.EOF
// as an empty read.
type timeoutAsEmptyRead struct {
	Port
}

func (p *timeoutAsEmptyRead) Read(b []byte) (int, error) {
	n, err := p.Port.Read(b)
	if err == io.EOF {
		err = nil
	}
	return n, err
}
