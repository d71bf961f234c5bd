package protocol

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/robotalks/guard.go/pkg/state"
)

// Protocol tokens.
const (
	Ping         = "ping"
	Pong         = "pong"
	PictureStart = "picture_start"
	Ready        = "READY"

	batteryPrefix    = "battery_level="
	modeChangePrefix = "mode_change:"
	dataURIMarker    = ";base64,"
)

// Kind classifies an inbound line.
type Kind int

// Inbound message kinds.
const (
	KindUnknown Kind = iota
	KindPing
	KindBattery
	KindPictureStart
	KindModeChange
)

var kindNames = map[Kind]string{
	KindUnknown:      "unknown",
	KindPing:         "ping",
	KindBattery:      "battery",
	KindPictureStart: "picture",
	KindModeChange:   "mode",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Message is a classified inbound line.
type Message struct {
	Kind Kind
	Line string

	// KindBattery
	MotorVoltage   float64
	ComputeVoltage float64
	// KindModeChange
	Mode state.Mode
}

// Classify parses an inbound line. A recognized command with invalid
// arguments returns an error wrapping ErrMalformed along with its Kind.
func Classify(line string) (Message, error) {
	line = strings.TrimSpace(line)
	msg := Message{Line: line}
	switch {
	case line == Ping:
		msg.Kind = KindPing
	case line == PictureStart:
		msg.Kind = KindPictureStart
	case strings.HasPrefix(line, batteryPrefix):
		msg.Kind = KindBattery
		fields := strings.Split(line[len(batteryPrefix):], ",")
		if len(fields) != 2 {
			return msg, fmt.Errorf("%w: %q: expect 2 voltages", ErrMalformed, line)
		}
		var err error
		if msg.MotorVoltage, err = parseVoltage(fields[0]); err != nil {
			return msg, fmt.Errorf("%w: %q: motor voltage: %v", ErrMalformed, line, err)
		}
		if msg.ComputeVoltage, err = parseVoltage(fields[1]); err != nil {
			return msg, fmt.Errorf("%w: %q: compute voltage: %v", ErrMalformed, line, err)
		}
	case strings.HasPrefix(line, modeChangePrefix):
		msg.Kind = KindModeChange
		mode, err := state.ParseMode(line[len(modeChangePrefix):])
		if err != nil {
			return msg, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		msg.Mode = mode
	}
	return msg, nil
}

func parseVoltage(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// EncodeModeChange encodes the mode change notification.
func EncodeModeChange(mode state.Mode) string {
	return modeChangePrefix + mode.String()
}

// EncodeBattery encodes a battery report.
func EncodeBattery(motor, compute float64) string {
	return batteryPrefix +
		strconv.FormatFloat(motor, 'f', -1, 64) + "," +
		strconv.FormatFloat(compute, 'f', -1, 64)
}

// EncodePicture encodes picture bytes as the payload line.
func EncodePicture(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// PictureBytes returns the image carried by a stored payload line: the
// decoded bytes for base64 or a data URI, the payload itself otherwise.
func PictureBytes(payload []byte) []byte {
	if data, err := DecodePicture(string(payload)); err == nil {
		return data
	}
	return payload
}

// DecodePicture decodes a payload line following picture_start.
// A data URI header (data:image/jpeg;base64,) is accepted.
func DecodePicture(line string) ([]byte, error) {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "data:") {
		pos := strings.Index(line, dataURIMarker)
		if pos < 0 {
			return nil, fmt.Errorf("%w: picture payload is not base64", ErrMalformed)
		}
		line = line[pos+len(dataURIMarker):]
	}
	if line == "" {
		return nil, fmt.Errorf("%w: empty picture payload", ErrMalformed)
	}
	data, err := base64.StdEncoding.DecodeString(line)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(line); err != nil {
			return nil, fmt.Errorf("%w: picture payload: %v", ErrMalformed, err)
		}
	}
	return data, nil
}
