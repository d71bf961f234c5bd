package sim

import (
	"sync/atomic"
	"time"

	fx "github.com/robotalks/guard.go/pkg/framework"
	"github.com/robotalks/guard.go/pkg/protocol"
	"github.com/robotalks/guard.go/pkg/state"
)

const (
	// DefaultPingInterval is the interval between handshake pings.
	DefaultPingInterval = time.Second

	maxLinesPerStep = 16
)

// Companion plays the companion device on the serial link: it prints
// every inbound line and optionally pings until the controller answers.
type Companion struct {
	Lines         protocol.LineReadWriter
	AutoHandshake bool
	PingInterval  time.Duration
	// Print receives every inbound line.
	Print func(line string)

	acknowledged atomic.Bool
	mode         atomic.Int32
	nextPing     time.Time
}

// NewCompanion creates a Companion.
func NewCompanion(lines protocol.LineReadWriter) *Companion {
	return &Companion{
		Lines:         lines,
		AutoHandshake: true,
		PingInterval:  DefaultPingInterval,
	}
}

// Name implements Named.
func (c *Companion) Name() string {
	return "companion"
}

// Acknowledged tells whether the controller answered the handshake.
func (c *Companion) Acknowledged() bool {
	return c.acknowledged.Load()
}

// Mode is the last mode announced by the controller.
func (c *Companion) Mode() state.Mode {
	return state.Mode(c.mode.Load())
}

// Step implements Task.
func (c *Companion) Step(tc fx.TickContext) (fx.Status, error) {
	for i := 0; i < maxLinesPerStep; i++ {
		line, ok := c.Lines.ReadLine()
		if !ok {
			break
		}
		c.received(line)
	}
	if !c.AutoHandshake || c.Acknowledged() {
		return fx.Pending, nil
	}
	now := tc.Time()
	if now.Before(c.nextPing) {
		return fx.Pending, nil
	}
	c.nextPing = now.Add(c.PingInterval)
	return fx.Pending, c.Lines.WriteLine(protocol.Ping)
}

func (c *Companion) received(line string) {
	switch {
	case line == protocol.Pong:
		c.acknowledged.Store(true)
	default:
		if msg, err := protocol.Classify(line); err == nil && msg.Kind == protocol.KindModeChange {
			c.mode.Store(int32(msg.Mode))
		}
	}
	if c.Print != nil {
		c.Print(line)
	}
}
