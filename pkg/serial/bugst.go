package serial

import (
	bugst "go.bug.st/serial"
)

func init() {
	RegisterDriver("bugst", openBugst)
}

func openBugst(c *Config) (Port, error) {
	port, err := bugst.Open(c.Device, &bugst.Mode{
		BaudRate: c.Baud,
		DataBits: 8,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	if c.ReadTimeout > 0 {
		if err := port.SetReadTimeout(c.ReadTimeout); err != nil {
			port.Close()
			return nil, err
		}
	}
	return port, nil
}
