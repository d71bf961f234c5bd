package tasks

import (
	"context"
	"time"

	"github.com/golang/glog"
	"github.com/looplab/fsm"

	fx "github.com/robotalks/guard.go/pkg/framework"
	"github.com/robotalks/guard.go/pkg/protocol"
	"github.com/robotalks/guard.go/pkg/state"
)

// Handshake states.
const (
	HandshakeAwaitingPing = "awaiting_ping"
	HandshakeAcknowledged = "acknowledged"
	HandshakeFailed       = "failed"
)

const (
	evPing    = "ping"
	evTimeout = "timeout"
)

// Handshake waits for ping from the companion device, replies pong
// and marks the serial link ready.
type Handshake struct {
	Lines    protocol.LineReadWriter
	Store    *state.Store
	Timeout  time.Duration
	Observer StateObserver

	machine   *fsm.FSM
	startedAt time.Time
}

// NewHandshake creates the handshake task.
func NewHandshake(lines protocol.LineReadWriter, store *state.Store) *Handshake {
	h := &Handshake{Lines: lines, Store: store}
	h.machine = newMachine(h.Name(), HandshakeAwaitingPing,
		fsm.Events{
			{Name: evPing, Src: []string{HandshakeAwaitingPing}, Dst: HandshakeAcknowledged},
			{Name: evTimeout, Src: []string{HandshakeAwaitingPing}, Dst: HandshakeFailed},
		},
		fsm.Callbacks{
			"enter_" + HandshakeAcknowledged: func(context.Context, *fsm.Event) {
				h.Store.MarkSerialReady()
				glog.Info("serial: handshake acknowledged")
			},
			"enter_" + HandshakeFailed: func(context.Context, *fsm.Event) {
				glog.Errorf("serial: no ping within %s", h.Timeout)
			},
		},
		func(s string) { notifyState(h.Observer, h.Name(), s) })
	return h
}

// NewHandshake creates the handshake task using the config.
func (c *Config) NewHandshake(lines protocol.LineReadWriter, store *state.Store) *Handshake {
	h := NewHandshake(lines, store)
	h.Timeout = c.HandshakeTimeout
	return h
}

// Name implements Named.
func (h *Handshake) Name() string {
	return "handshake"
}

// State returns the current state.
func (h *Handshake) State() string {
	return h.machine.Current()
}

// Step implements Task.
func (h *Handshake) Step(tc fx.TickContext) (fx.Status, error) {
	if !h.machine.Is(HandshakeAwaitingPing) {
		return fx.Done, nil
	}
	now := tc.Time()
	if h.startedAt.IsZero() {
		h.startedAt = now
	}
	line, ok := h.Lines.ReadLine()
	if !ok {
		if h.Timeout > 0 && now.Sub(h.startedAt) >= h.Timeout {
			return fx.Done, fire(tc.Context(), h.machine, evTimeout)
		}
		return fx.Pending, nil
	}
	if line != protocol.Ping {
		glog.V(2).Infof("serial: ignored %q before handshake", line)
		return fx.Pending, nil
	}
	if err := h.Lines.WriteLine(protocol.Pong); err != nil {
		return fx.Pending, err
	}
	return fx.Done, fire(tc.Context(), h.machine, evPing)
}
