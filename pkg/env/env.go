package env

import (
	"context"
	"fmt"
	"io"

	"github.com/golang/glog"

	"github.com/robotalks/guard.go/pkg/archive"
	fx "github.com/robotalks/guard.go/pkg/framework"
	"github.com/robotalks/guard.go/pkg/metrics"
	"github.com/robotalks/guard.go/pkg/netlink"
	"github.com/robotalks/guard.go/pkg/protocol"
	"github.com/robotalks/guard.go/pkg/robot"
	"github.com/robotalks/guard.go/pkg/state"
	"github.com/robotalks/guard.go/pkg/tasks"
	"github.com/robotalks/guard.go/pkg/telemetry"
	"github.com/robotalks/guard.go/pkg/web"
)

// Env holds the assembled controller.
type Env struct {
	Config *Config

	Loop     *fx.Loop
	Store    *state.Store
	Port     io.ReadWriter
	Stream   *protocol.Stream
	Modes    *robot.ModeController
	Metrics  *metrics.Metrics
	Server   *web.Server
	Listener *web.Listener

	Handshake *tasks.Handshake
	Network   *tasks.Network
	Dispatch  *tasks.Dispatch
	Serve     *tasks.Serve

	Reporter *telemetry.Reporter
	Archiver *archive.Archiver

	closers []io.Closer
}

// NewEnv opens the serial port and creates all components.
func (c *Config) NewEnv() (*Env, error) {
	port, err := c.Serial.Open()
	if err != nil {
		return nil, err
	}
	link, err := c.Network.NewLink()
	if err != nil {
		port.Close()
		return nil, err
	}
	env, err := c.NewEnvWith(port, link)
	if err != nil {
		port.Close()
		return nil, err
	}
	env.closers = append(env.closers, port)
	return env, nil
}

// NewEnvWith creates all components on an opened serial port and
// network link.
func (c *Config) NewEnvWith(port io.ReadWriter, link netlink.Link) (*Env, error) {
	e := &Env{
		Config: c,
		Loop:   fx.NewLoop(),
		Store:  state.NewStore(),
		Port:   port,
		Stream: protocol.NewStream(port),
	}
	e.Loop.Interval = c.LoopInterval
	e.Stream.MaxLine = c.Serial.MaxLine
	e.Metrics = metrics.New(e.Store)
	e.Stream.OnLineError = e.Metrics.LineError
	e.Stream.OnLineDropped = e.Metrics.LineDropped

	e.Modes = robot.NewModeController(e.Store, e.Stream)
	e.Modes.Observer = e.Metrics

	e.Server = c.HTTP.NewServer(e.Store, e.Modes, e.Loop)
	e.Server.Metrics = e.Metrics.Handler()
	e.Listener = c.HTTP.NewListener(e.Server.Handler(), c.DeviceID)

	e.Handshake = c.Tasks.NewHandshake(e.Stream, e.Store)
	e.Handshake.Observer = e.Metrics
	e.Network = tasks.NewNetworkWith(c.Network, link, e.Store, e.Listener)
	e.Network.Observer = e.Metrics
	e.Dispatch = c.Tasks.NewDispatch(e.Stream, e.Store, e.Modes)
	e.Dispatch.Observer = e.Metrics
	e.Serve = tasks.NewServe()
	e.Serve.Observer = e.Metrics

	if c.Telemetry.Enabled() {
		q, err := c.Telemetry.Connect()
		if err != nil {
			return nil, fmt.Errorf("telemetry: %w", err)
		}
		e.closers = append(e.closers, q)
		e.Reporter = c.Telemetry.NewReporter(q, e.Store, e.Modes, c.DeviceID)
	}
	if c.Archive.Enabled() {
		bucket, err := c.Archive.NewBucket()
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("archive: %w", err)
		}
		e.Archiver = c.Archive.NewArchiver(bucket, e.Store, c.DeviceID)
		e.Archiver.Observer = e.Metrics
	}

	e.AddToLoop(e.Loop)
	return e, nil
}

// AddToLoop implements framework.LoopAdder.
func (e *Env) AddToLoop(loop *fx.Loop) {
	loop.SetObserver(e.Metrics)
	loop.AddTask(fx.PrLvTop, e.Handshake)
	loop.AddTask(fx.PrLvHigh, e.Network, fx.GateFunc(e.Store.SerialReady))
	loop.AddTask(fx.PrLvNormal, e.Serve, fx.GateFunc(e.Store.NetworkReady))
	loop.AddTask(fx.PrLvNormal, e.Dispatch, fx.GateFunc(e.Store.Ready))
	loop.AddRunnable(e.Stream, e.Listener)
	if e.Reporter != nil {
		loop.AddRunnable(e.Reporter)
	}
	if e.Archiver != nil {
		loop.AddRunnable(fx.RunFunc(e.runArchiver))
	}
}

func (e *Env) runArchiver(ctx context.Context) error {
	if bucket, ok := e.Archiver.Uploader.(*archive.Bucket); ok {
		if err := bucket.Ensure(ctx); err != nil {
			glog.Errorf("archive disabled: %v", err)
			return nil
		}
	}
	return e.Archiver.Run(ctx)
}

// Name implements framework.Named.
func (e *Env) Name() string {
	return "guard"
}

// Run runs the loop until ctx is canceled.
func (e *Env) Run(ctx context.Context) error {
	glog.Infof("guard %s starting, %d tasks", e.Config.DeviceID, len(e.Loop.Tasks()))
	return e.Loop.Run(ctx)
}

// Close releases the serial port and the broker connection.
func (e *Env) Close() error {
	errs := &fx.AggregatedError{}
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs.Add(e.closers[i].Close())
	}
	e.closers = nil
	return errs.Aggregate()
}
