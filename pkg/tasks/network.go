package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang/glog"
	"github.com/looplab/fsm"

	fx "github.com/robotalks/guard.go/pkg/framework"
	"github.com/robotalks/guard.go/pkg/netlink"
	"github.com/robotalks/guard.go/pkg/state"
)

// Network bring-up states.
const (
	NetworkNotStarted = "not_started"
	NetworkConnecting = "connecting"
	NetworkBackoff    = "backoff"
	NetworkConnected  = "connected"
	NetworkFailed     = "failed"
)

const (
	evConnect    = "connect"
	evAssociated = "associated"
	evRetry      = "retry"
	evGiveUp     = "give_up"
)

// DefaultLinkCallTimeout bounds each call into the network stack.
const DefaultLinkCallTimeout = 2 * time.Second

// Starter starts a service without blocking.
type Starter interface {
	Start() error
}

// NetworkObserver is notified about association attempts.
type NetworkObserver interface {
	StateObserver
	NetworkAttempt(attempt int, err error)
}

// Network associates the network link once the serial link is ready,
// then starts the HTTP listener and marks the network ready.
type Network struct {
	Link       netlink.Link
	Store      *state.Store
	Listener   Starter
	SSID       string
	Credential string

	PollInterval    time.Duration
	AttemptTimeout  time.Duration
	MaxAttempts     int
	LinkCallTimeout time.Duration
	Backoff         backoff.BackOff
	Observer        NetworkObserver

	machine      *fsm.FSM
	attempts     int
	attemptStart time.Time
	nextPoll     time.Time
	retryAt      time.Time
}

// NewNetwork creates the network bring-up task.
func NewNetwork(link netlink.Link, store *state.Store, listener Starter) *Network {
	n := &Network{
		Link:            link,
		Store:           store,
		Listener:        listener,
		PollInterval:    time.Second,
		LinkCallTimeout: DefaultLinkCallTimeout,
		Backoff:         backoff.NewExponentialBackOff(backoff.WithMaxElapsedTime(0)),
	}
	n.machine = newMachine(n.Name(), NetworkNotStarted,
		fsm.Events{
			{Name: evConnect, Src: []string{NetworkNotStarted, NetworkBackoff}, Dst: NetworkConnecting},
			{Name: evAssociated, Src: []string{NetworkConnecting}, Dst: NetworkConnected},
			{Name: evRetry, Src: []string{NetworkConnecting}, Dst: NetworkBackoff},
			{Name: evGiveUp, Src: []string{NetworkConnecting}, Dst: NetworkFailed},
		},
		fsm.Callbacks{
			"enter_" + NetworkConnected: func(context.Context, *fsm.Event) {
				n.Store.MarkNetworkReady()
				glog.Infof("network: connected after %d attempt(s)", n.attempts)
			},
		},
		func(s string) {
			if n.Observer != nil {
				n.Observer.TaskState(n.Name(), s)
			}
		})
	return n
}

// NewNetworkWith creates the network bring-up task using the config.
func NewNetworkWith(c *netlink.Config, link netlink.Link, store *state.Store, listener Starter) *Network {
	n := NewNetwork(link, store, listener)
	n.SSID, n.Credential = c.SSID, c.Credential
	n.PollInterval = c.PollInterval
	n.AttemptTimeout = c.AttemptTimeout
	n.MaxAttempts = c.MaxAttempts
	n.Backoff = backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(c.BackoffInitial),
		backoff.WithMaxInterval(c.BackoffMax),
		backoff.WithMaxElapsedTime(0),
	)
	return n
}

// Name implements Named.
func (n *Network) Name() string {
	return "network"
}

// State returns the current state.
func (n *Network) State() string {
	return n.machine.Current()
}

// Attempts returns the number of association attempts made.
func (n *Network) Attempts() int {
	return n.attempts
}

// Step implements Task.
func (n *Network) Step(tc fx.TickContext) (fx.Status, error) {
	if !n.Store.SerialReady() {
		return fx.Pending, nil
	}
	now := tc.Time()
	switch n.machine.Current() {
	case NetworkNotStarted:
		return n.connect(tc)
	case NetworkBackoff:
		if now.Before(n.retryAt) {
			return fx.Pending, nil
		}
		return n.connect(tc)
	case NetworkConnecting:
		if now.Before(n.nextPoll) {
			return fx.Pending, nil
		}
		n.nextPoll = now.Add(n.PollInterval)
		return n.poll(tc)
	}
	return fx.Done, nil
}

func (n *Network) connect(tc fx.TickContext) (fx.Status, error) {
	now := tc.Time()
	n.attempts++
	if n.attempts == 1 {
		n.Backoff.Reset()
	}
	if err := fire(tc.Context(), n.machine, evConnect); err != nil {
		return fx.Pending, err
	}
	n.attemptStart, n.nextPoll = now, now
	ctx, cancel := context.WithTimeout(tc.Context(), n.LinkCallTimeout)
	defer cancel()
	glog.Infof("network: association attempt %d", n.attempts)
	if err := n.Link.Connect(ctx, n.SSID, n.Credential); err != nil {
		return n.retry(tc, err)
	}
	return fx.Pending, nil
}

func (n *Network) poll(tc fx.TickContext) (fx.Status, error) {
	ctx, cancel := context.WithTimeout(tc.Context(), n.LinkCallTimeout)
	defer cancel()
	status, err := n.Link.Status(ctx)
	switch {
	case status == netlink.StatusAssociated:
		if err := n.Listener.Start(); err != nil {
			return fx.Pending, fmt.Errorf("start http listener: %w", err)
		}
		n.observeAttempt(nil)
		return fx.Done, fire(tc.Context(), n.machine, evAssociated)
	case status == netlink.StatusFailed:
		if err == nil {
			err = errors.New("association failed")
		}
		return n.retry(tc, err)
	case n.AttemptTimeout > 0 && tc.Time().Sub(n.attemptStart) >= n.AttemptTimeout:
		return n.retry(tc, fmt.Errorf("not associated within %s", n.AttemptTimeout))
	}
	if err != nil {
		glog.V(1).Infof("network: status %s: %v", status, err)
	}
	return fx.Pending, nil
}

func (n *Network) retry(tc fx.TickContext, cause error) (fx.Status, error) {
	n.observeAttempt(cause)
	glog.Warningf("network: attempt %d failed: %v", n.attempts, cause)
	delay := n.Backoff.NextBackOff()
	if (n.MaxAttempts > 0 && n.attempts >= n.MaxAttempts) || delay == backoff.Stop {
		glog.Errorf("network: giving up after %d attempt(s)", n.attempts)
		return fx.Done, fire(tc.Context(), n.machine, evGiveUp)
	}
	n.retryAt = tc.Time().Add(delay)
	return fx.Pending, fire(tc.Context(), n.machine, evRetry)
}

func (n *Network) observeAttempt(err error) {
	if o := n.Observer; o != nil {
		o.NetworkAttempt(n.attempts, err)
	}
}
