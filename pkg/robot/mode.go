// Package robot applies commands to the robot state.
package robot

import (
	"fmt"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/guard.go/pkg/protocol"
	"github.com/robotalks/guard.go/pkg/state"
)

// Mode change sources.
const (
	SourceHTTP   = "http"
	SourceSerial = "serial"
	SourceMQTT   = "mqtt"
)

// ModeObserver is notified after the mode actually changed.
type ModeObserver interface {
	ModeChanged(prev, mode state.Mode, source string)
}

// ModeController changes the mode and keeps the companion device informed.
type ModeController struct {
	Store    *state.Store
	Out      protocol.LineWriter
	Observer ModeObserver

	lock sync.Mutex
}

// NewModeController creates a ModeController.
func NewModeController(store *state.Store, out protocol.LineWriter) *ModeController {
	return &ModeController{Store: store, Out: out}
}

// SetMode applies the mode. The companion device is notified with
// mode_change:<mode> only when the mode actually changes.
func (c *ModeController) SetMode(mode state.Mode, source string) (bool, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	prev, changed := c.Store.SetMode(mode)
	if !changed {
		glog.V(2).Infof("mode: already %s (%s)", mode, source)
		return false, nil
	}
	glog.Infof("mode: %s -> %s (%s)", prev, mode, source)
	if o := c.Observer; o != nil {
		o.ModeChanged(prev, mode, source)
	}
	if err := c.Out.WriteLine(protocol.EncodeModeChange(mode)); err != nil {
		return true, fmt.Errorf("notify mode change: %w", err)
	}
	return true, nil
}
