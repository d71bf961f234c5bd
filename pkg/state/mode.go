package state

import (
	"errors"
	"fmt"
	"strings"
)

// Mode is the operating mode of the robot.
type Mode int

// Modes
const (
	ModeGuard Mode = iota
	ModeToy
)

// DefaultMode is the mode at startup.
const DefaultMode = ModeGuard

// ErrInvalidMode indicates an unknown mode name.
var ErrInvalidMode = errors.New("invalid mode")

// String returns the wire name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeGuard:
		return "guard"
	case ModeToy:
		return "toy"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Title returns the mode name for display.
func (m Mode) Title() string {
	switch m {
	case ModeGuard:
		return "Guard"
	case ModeToy:
		return "Toy"
	}
	return m.String()
}

// ParseMode parses a mode name, case insensitive.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "guard":
		return ModeGuard, nil
	case "toy":
		return ModeToy, nil
	}
	return DefaultMode, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	mode, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}
