// Package msgs defines the protobuf messages exchanged over MQTT.
package msgs

import (
	"time"

	"github.com/golang/protobuf/proto"

	"github.com/robotalks/guard.go/pkg/state"
)

// Status is the robot status published on every change.
type Status struct {
	DeviceID       string  `protobuf:"bytes,1,opt,name=device_id,proto3" json:"device_id,omitempty"`
	Mode           string  `protobuf:"bytes,2,opt,name=mode,proto3" json:"mode,omitempty"`
	MotorVoltage   float64 `protobuf:"fixed64,3,opt,name=motor_voltage,proto3" json:"motor_voltage,omitempty"`
	ComputeVoltage float64 `protobuf:"fixed64,4,opt,name=compute_voltage,proto3" json:"compute_voltage,omitempty"`
	LowBattery     bool    `protobuf:"varint,5,opt,name=low_battery,proto3" json:"low_battery,omitempty"`
	SerialReady    bool    `protobuf:"varint,6,opt,name=serial_ready,proto3" json:"serial_ready,omitempty"`
	NetworkReady   bool    `protobuf:"varint,7,opt,name=network_ready,proto3" json:"network_ready,omitempty"`
	FrameSeq       uint64  `protobuf:"varint,8,opt,name=frame_seq,proto3" json:"frame_seq,omitempty"`
	FrameSize      uint32  `protobuf:"varint,9,opt,name=frame_size,proto3" json:"frame_size,omitempty"`
	// UpdatedAt is the time of the battery reading in unix nanoseconds.
	UpdatedAt int64 `protobuf:"varint,10,opt,name=updated_at,proto3" json:"updated_at,omitempty"`
}

// NewStatus converts a snapshot.
func NewStatus(deviceID string, s state.Snapshot) *Status {
	m := &Status{
		DeviceID:       deviceID,
		Mode:           s.Mode.String(),
		MotorVoltage:   s.Battery.MotorVoltage,
		ComputeVoltage: s.Battery.ComputeVoltage,
		LowBattery:     s.LowBattery(),
		SerialReady:    s.SerialReady,
		NetworkReady:   s.NetworkReady,
		FrameSeq:       s.Frame.Seq,
		FrameSize:      uint32(len(s.Frame.Payload)),
	}
	if s.Battery.Reported() {
		m.UpdatedAt = s.Battery.LastUpdated.UnixNano()
	}
	return m
}

// Updated returns UpdatedAt as time, zero if not reported.
func (m *Status) Updated() time.Time {
	if m.UpdatedAt == 0 {
		return time.Time{}
	}
	return time.Unix(0, m.UpdatedAt)
}

// ProtoMessage implements proto.Message.
func (m *Status) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Status) Reset() { *m = Status{} }

// String implements proto.Message.
func (m *Status) String() string { return proto.CompactTextString(m) }

// ModeCommand requests a mode change remotely.
type ModeCommand struct {
	Mode   string `protobuf:"bytes,1,opt,name=mode,proto3" json:"mode,omitempty"`
	Issuer string `protobuf:"bytes,2,opt,name=issuer,proto3" json:"issuer,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *ModeCommand) ProtoMessage() {}

// Reset implements proto.Message.
func (m *ModeCommand) Reset() { *m = ModeCommand{} }

// String implements proto.Message.
func (m *ModeCommand) String() string { return proto.CompactTextString(m) }

// Decode unmarshals data into m.
func Decode(data []byte, m proto.Message) error {
	return proto.Unmarshal(data, m)
}

// Encode marshals m.
func Encode(m proto.Message) ([]byte, error) {
	return proto.Marshal(m)
}
