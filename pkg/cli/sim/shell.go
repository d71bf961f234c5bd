// Package sim provides an interactive shell simulating the companion
// device on the other end of the serial link.
package sim

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"

	fx "github.com/robotalks/guard.go/pkg/framework"
	"github.com/robotalks/guard.go/pkg/protocol"
	"github.com/robotalks/guard.go/pkg/serial"
	"github.com/robotalks/guard.go/pkg/state"
)

// Shell is the ishell backed simulator shell.
type Shell struct {
	Interactive bool

	Shell     *ishell.Shell
	Stream    *protocol.Stream
	Companion *Companion
	Loop      *fx.Loop

	cancel context.CancelFunc
	done   chan error
}

const (
	shellKey = "$shell"
	prompt   = "companion > "
)

var (
	evalOnly    bool
	noHandshake bool

	commands = []*ishell.Cmd{
		&PingCmd,
		&BatteryCmd,
		&PictureCmd,
		&ModeCmd,
		&SendCmd,
		&StatusCmd,
	}
)

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&noHandshake, "no-handshake", noHandshake, "Do not ping the controller automatically.")
	serial.SetupFlags()
}

// New creates the shell on an opened serial port.
func New(port serial.Port) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		Shell:       ishell.New(),
		Stream:      protocol.NewStream(port),
	}
	s.Companion = NewCompanion(s.Stream)
	s.Companion.AutoHandshake = !noHandshake
	s.Companion.Print = func(line string) {
		s.Shell.Printf("<< %s\n", line)
	}
	s.Loop = fx.NewLoop()
	s.Loop.AddTask(fx.PrLvNormal, s.Companion)
	s.Loop.AddRunnable(s.Stream)

	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(prompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// Send writes a line to the controller.
func (s *Shell) Send(line string) error {
	glog.V(1).Infof(">> %s", line)
	return s.Stream.WriteLine(line)
}

// Start runs the loop in background.
func (s *Shell) Start() {
	var ctx context.Context
	ctx, s.cancel = context.WithCancel(context.Background())
	s.done = make(chan error, 1)
	go func() { s.done <- s.Loop.Run(ctx) }()
}

// Stop stops the loop and closes the serial port.
func (s *Shell) Stop() error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	s.cancel = nil
	if err := <-s.done; !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	s.Start()
	defer s.Stop()
	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			glog.Exit(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	glog.Exit("command expected")
}

func sendLine(c *ishell.Context, line string) {
	if err := ShellFrom(c).Send(line); err != nil {
		c.Err(err)
		return
	}
	c.Printf(">> %s\n", truncate(line, 64))
}

func truncate(line string, n int) string {
	if len(line) <= n {
		return line
	}
	return line[:n] + "..."
}

var (
	// PingCmd sends ping.
	PingCmd = ishell.Cmd{
		Name: "ping",
		Help: "send ping",
		Func: func(c *ishell.Context) {
			sendLine(c, protocol.Ping)
		},
	}

	// BatteryCmd reports battery voltages.
	BatteryCmd = ishell.Cmd{
		Name:    "battery",
		Aliases: []string{"b"},
		Help:    "MOTOR COMPUTE",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 2 {
				c.Err(fmt.Errorf("MOTOR and COMPUTE voltages required"))
				return
			}
			motor, err := strconv.ParseFloat(c.Args[0], 64)
			if err != nil {
				c.Err(fmt.Errorf("invalid MOTOR: %w", err))
				return
			}
			compute, err := strconv.ParseFloat(c.Args[1], 64)
			if err != nil {
				c.Err(fmt.Errorf("invalid COMPUTE: %w", err))
				return
			}
			sendLine(c, protocol.EncodeBattery(motor, compute))
		},
	}

	// PictureCmd sends a picture from a file.
	PictureCmd = ishell.Cmd{
		Name:    "picture",
		Aliases: []string{"pic"},
		Help:    "FILE",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("FILE required"))
				return
			}
			data, err := os.ReadFile(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			sendLine(c, protocol.PictureStart)
			sendLine(c, protocol.EncodePicture(data))
		},
	}

	// ModeCmd requests a mode change.
	ModeCmd = ishell.Cmd{
		Name: "mode",
		Help: "toy|guard",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Printf("mode: %s\n", ShellFrom(c).Companion.Mode())
				return
			}
			mode, err := state.ParseMode(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			sendLine(c, protocol.EncodeModeChange(mode))
		},
	}

	// SendCmd sends a raw line.
	SendCmd = ishell.Cmd{
		Name: "send",
		Help: "LINE",
		Func: func(c *ishell.Context) {
			if len(c.Args) == 0 {
				c.Err(fmt.Errorf("LINE required"))
				return
			}
			sendLine(c, strings.Join(c.Args, " "))
		},
	}

	// StatusCmd shows the handshake status.
	StatusCmd = ishell.Cmd{
		Name: "status",
		Help: "show handshake status",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			c.Printf("handshake: %v\nmode: %s\ndropped: %d\n",
				s.Companion.Acknowledged(), s.Companion.Mode(), s.Stream.Dropped())
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	port, err := serial.NewConfig().Open()
	if err != nil {
		glog.Exit(err)
	}
	New(port).Run(flag.Args()...)
}
