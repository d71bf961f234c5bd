package tasks

import (
	"context"
	"time"

	"github.com/golang/glog"
	"github.com/looplab/fsm"

	fx "github.com/robotalks/guard.go/pkg/framework"
	"github.com/robotalks/guard.go/pkg/protocol"
	"github.com/robotalks/guard.go/pkg/robot"
	"github.com/robotalks/guard.go/pkg/state"
)

// Dispatch states.
const (
	DispatchIdle            = "idle"
	DispatchAwaitingPayload = "awaiting_payload"
	DispatchCoolingDown     = "cooling_down"
)

const (
	evPictureStart = "picture_start"
	evProcessed    = "processed"
	evResume       = "resume"
)

// DispatchObserver is notified for each inbound message.
type DispatchObserver interface {
	StateObserver
	MessageDispatched(kind protocol.Kind, err error)
}

// Dispatch applies inbound serial messages to the store, one message
// per cool-down interval.
type Dispatch struct {
	Lines          protocol.LineReadWriter
	Store          *state.Store
	Modes          *robot.ModeController
	Cooldown       time.Duration
	PayloadTimeout time.Duration
	AnnounceReady  bool
	Observer       DispatchObserver

	machine   *fsm.FSM
	announced bool
	resumeAt  time.Time
	pictureAt time.Time
}

// NewDispatch creates the dispatch task.
func NewDispatch(lines protocol.LineReadWriter, store *state.Store, modes *robot.ModeController) *Dispatch {
	d := &Dispatch{
		Lines:          lines,
		Store:          store,
		Modes:          modes,
		Cooldown:       defaultConfig.Cooldown,
		PayloadTimeout: defaultConfig.PayloadTimeout,
	}
	d.machine = newMachine(d.Name(), DispatchIdle,
		fsm.Events{
			{Name: evPictureStart, Src: []string{DispatchIdle}, Dst: DispatchAwaitingPayload},
			{Name: evProcessed, Src: []string{DispatchIdle, DispatchAwaitingPayload}, Dst: DispatchCoolingDown},
			{Name: evResume, Src: []string{DispatchCoolingDown}, Dst: DispatchIdle},
		},
		nil,
		func(s string) {
			if d.Observer != nil {
				d.Observer.TaskState(d.Name(), s)
			}
		})
	return d
}

// NewDispatch creates the dispatch task using the config.
func (c *Config) NewDispatch(lines protocol.LineReadWriter, store *state.Store, modes *robot.ModeController) *Dispatch {
	d := NewDispatch(lines, store, modes)
	d.Cooldown = c.Cooldown
	d.PayloadTimeout = c.PayloadTimeout
	d.AnnounceReady = c.AnnounceReady
	return d
}

// Name implements Named.
func (d *Dispatch) Name() string {
	return "dispatch"
}

// State returns the current state.
func (d *Dispatch) State() string {
	return d.machine.Current()
}

// Step implements Task. It never reports Done.
func (d *Dispatch) Step(tc fx.TickContext) (fx.Status, error) {
	ctx, now := tc.Context(), tc.Time()
	if d.AnnounceReady && !d.announced {
		if err := d.Lines.WriteLine(protocol.Ready); err != nil {
			return fx.Pending, err
		}
		d.announced = true
		glog.Info("serial: READY")
	}
	switch d.machine.Current() {
	case DispatchCoolingDown:
		if now.Before(d.resumeAt) {
			return fx.Pending, nil
		}
		if err := fire(ctx, d.machine, evResume); err != nil {
			return fx.Pending, err
		}
		return d.dispatchLine(ctx, now)
	case DispatchAwaitingPayload:
		return d.receivePicture(ctx, now)
	}
	return d.dispatchLine(ctx, now)
}

func (d *Dispatch) dispatchLine(ctx context.Context, now time.Time) (fx.Status, error) {
	line, ok := d.Lines.ReadLine()
	if !ok {
		return fx.Pending, nil
	}
	msg, err := protocol.Classify(line)
	if err != nil {
		glog.Warningf("serial: %v", err)
		d.observe(msg.Kind, err)
		return d.processed(ctx, now)
	}
	switch msg.Kind {
	case protocol.KindPing:
		err = d.Lines.WriteLine(protocol.Pong)
	case protocol.KindBattery:
		b := d.Store.SetBattery(msg.MotorVoltage, msg.ComputeVoltage, now)
		if b.Low() {
			glog.Warningf("battery low: motor %.2fV, compute %.2fV", b.MotorVoltage, b.ComputeVoltage)
		} else {
			glog.V(2).Infof("battery: motor %.2fV, compute %.2fV", b.MotorVoltage, b.ComputeVoltage)
		}
	case protocol.KindPictureStart:
		d.pictureAt = now
		if err := fire(ctx, d.machine, evPictureStart); err != nil {
			return fx.Pending, err
		}
		return d.receivePicture(ctx, now)
	case protocol.KindModeChange:
		_, err = d.Modes.SetMode(msg.Mode, robot.SourceSerial)
	default:
		glog.Warningf("unknown command: %s", line)
	}
	d.observe(msg.Kind, err)
	status, ferr := d.processed(ctx, now)
	if err != nil {
		return status, err
	}
	return status, ferr
}

func (d *Dispatch) receivePicture(ctx context.Context, now time.Time) (fx.Status, error) {
	line, ok := d.Lines.ReadLine()
	if !ok {
		if now.Sub(d.pictureAt) < d.PayloadTimeout {
			return fx.Pending, nil
		}
		glog.Warningf("serial: picture payload not received within %s", d.PayloadTimeout)
		d.observe(protocol.KindPictureStart, protocol.ErrMalformed)
		return d.processed(ctx, now)
	}
	f := d.Store.SetFrame([]byte(line), now)
	glog.V(2).Infof("picture %d: %d bytes", f.Seq, len(line))
	d.observe(protocol.KindPictureStart, nil)
	return d.processed(ctx, now)
}

func (d *Dispatch) processed(ctx context.Context, now time.Time) (fx.Status, error) {
	d.resumeAt = now.Add(d.Cooldown)
	return fx.Pending, fire(ctx, d.machine, evProcessed)
}

func (d *Dispatch) observe(kind protocol.Kind, err error) {
	if o := d.Observer; o != nil {
		o.MessageDispatched(kind, err)
	}
}
