package serial

import (
	tarm "github.com/tarm/serial"
)

func init() {
	RegisterDriver("tarm", openTarm)
}

// tarm reports a read timeout as io.EOF.
func openTarm(c *Config) (Port, error) {
	port, err := tarm.OpenPort(&tarm.Config{
		Name:        c.Device,
		Baud:        c.Baud,
		ReadTimeout: c.ReadTimeout,
		Size:        8,
		Parity:      tarm.ParityNone,
		StopBits:    tarm.Stop1,
	})
	if err != nil {
		return nil, err
	}
	return &timeoutAsEmptyRead{Port: port}, nil
}
