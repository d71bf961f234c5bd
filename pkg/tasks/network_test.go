package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"

	fx "github.com/robotalks/guard.go/pkg/framework"
	"github.com/robotalks/guard.go/pkg/netlink"
	"github.com/robotalks/guard.go/pkg/state"
)

type fakeLink struct {
	connects   int
	connectErr error
	status     netlink.Status
	statusErr  error
	ssid, cred string
}

func (l *fakeLink) Connect(ctx context.Context, ssid, cred string) error {
	l.connects++
	l.ssid, l.cred = ssid, cred
	return l.connectErr
}

func (l *fakeLink) Status(ctx context.Context) (netlink.Status, error) {
	return l.status, l.statusErr
}

type fakeListener struct {
	starts int
	err    error
}

func (s *fakeListener) Start() error {
	s.starts++
	return s.err
}

type attemptRecorder struct {
	stateRecorder
	attempts []int
	errs     []error
}

func (r *attemptRecorder) NetworkAttempt(attempt int, err error) {
	r.attempts = append(r.attempts, attempt)
	r.errs = append(r.errs, err)
}

func newNetworkHarness(link *fakeLink, listener *fakeListener) (*harness, *Network, *state.Store) {
	store := state.NewStore()
	n := NewNetwork(link, store, listener)
	n.Backoff = &backoff.ConstantBackOff{Interval: time.Second}
	n.SSID, n.Credential = "home", "secret"
	h := newHarness()
	h.loop.AddTask(fx.PrLvHigh, n)
	return h, n, store
}

func TestNetworkWaitsForSerialReady(t *testing.T) {
	link := &fakeLink{status: netlink.StatusAssociated}
	h, n, store := newNetworkHarness(link, &fakeListener{})
	for i := 0; i < 10; i++ {
		require.True(t, h.advance(time.Minute))
		require.Equal(t, NetworkNotStarted, n.State())
	}
	require.Zero(t, link.connects)
	require.False(t, store.NetworkReady())

	store.MarkSerialReady()
	require.True(t, h.tick())
	require.Equal(t, NetworkConnecting, n.State())
	require.Equal(t, 1, link.connects)
	require.Equal(t, "home", link.ssid)
	require.Equal(t, "secret", link.cred)
}

func TestNetworkConnects(t *testing.T) {
	link := &fakeLink{status: netlink.StatusAssociating}
	listener := &fakeListener{}
	h, n, store := newNetworkHarness(link, listener)
	obs := &attemptRecorder{}
	n.Observer = obs
	store.MarkSerialReady()

	require.True(t, h.tick())
	require.True(t, h.tick())
	require.Equal(t, NetworkConnecting, n.State())
	// polled at most once per poll interval
	require.True(t, h.advance(500*time.Millisecond))
	link.status = netlink.StatusAssociated
	require.True(t, h.tick())
	require.Equal(t, NetworkConnecting, n.State())
	require.Zero(t, listener.starts)

	require.True(t, h.advance(500*time.Millisecond))
	require.Equal(t, NetworkConnected, n.State())
	require.Equal(t, 1, listener.starts)
	require.True(t, store.NetworkReady())
	require.Equal(t, []int{1}, obs.attempts)
	require.Equal(t, []string{"network:connecting", "network:connected"}, obs.states)

	require.False(t, h.tick())
}

func TestNetworkListenerFailureKeepsConnecting(t *testing.T) {
	link := &fakeLink{status: netlink.StatusAssociated}
	listener := &fakeListener{err: errors.New("address in use")}
	h, n, store := newNetworkHarness(link, listener)
	store.MarkSerialReady()

	require.True(t, h.tick())
	require.True(t, h.tick())
	require.Equal(t, NetworkConnecting, n.State())
	require.False(t, store.NetworkReady())

	listener.err = nil
	require.True(t, h.advance(time.Second))
	require.Equal(t, NetworkConnected, n.State())
	require.True(t, store.NetworkReady())
	require.Equal(t, 2, listener.starts)
}

func TestNetworkBacksOffAndGivesUp(t *testing.T) {
	link := &fakeLink{connectErr: errors.New("no carrier")}
	h, n, store := newNetworkHarness(link, &fakeListener{})
	n.MaxAttempts = 3
	store.MarkSerialReady()

	require.True(t, h.tick())
	require.Equal(t, NetworkBackoff, n.State())
	require.True(t, h.advance(999*time.Millisecond))
	require.Equal(t, 1, link.connects)

	require.True(t, h.advance(time.Millisecond))
	require.Equal(t, 2, link.connects)
	require.Equal(t, NetworkBackoff, n.State())

	require.True(t, h.advance(time.Second))
	require.Equal(t, 3, link.connects)
	require.Equal(t, NetworkFailed, n.State())
	require.False(t, store.NetworkReady())

	require.False(t, h.advance(time.Hour))
	require.Equal(t, 3, link.connects)
}

func TestNetworkRetriesOnLinkFailure(t *testing.T) {
	link := &fakeLink{status: netlink.StatusFailed}
	h, n, store := newNetworkHarness(link, &fakeListener{})
	store.MarkSerialReady()

	require.True(t, h.tick())
	require.True(t, h.tick())
	require.Equal(t, NetworkBackoff, n.State())

	link.status = netlink.StatusAssociated
	require.True(t, h.advance(time.Second))
	require.Equal(t, 2, link.connects)
	require.True(t, h.tick())
	require.Equal(t, NetworkConnected, n.State())
	require.Equal(t, 2, n.Attempts())
}

func TestNetworkAttemptTimeout(t *testing.T) {
	link := &fakeLink{status: netlink.StatusAssociating}
	h, n, store := newNetworkHarness(link, &fakeListener{})
	n.AttemptTimeout = 3 * time.Second
	store.MarkSerialReady()

	require.True(t, h.tick())
	for i := 0; i < 2; i++ {
		require.True(t, h.advance(time.Second))
		require.Equal(t, NetworkConnecting, n.State())
	}
	require.True(t, h.advance(time.Second))
	require.Equal(t, NetworkBackoff, n.State())
	require.Equal(t, 1, link.connects)
}

func TestNewNetworkWithConfig(t *testing.T) {
	conf := netlink.NewConfig()
	conf.SSID, conf.Credential = "cafe", ""
	conf.MaxAttempts = 2
	n := NewNetworkWith(conf, &fakeLink{}, state.NewStore(), &fakeListener{})
	require.Equal(t, "cafe", n.SSID)
	require.Equal(t, 2, n.MaxAttempts)
	require.Equal(t, conf.PollInterval, n.PollInterval)
	require.Equal(t, NetworkNotStarted, n.State())
}
