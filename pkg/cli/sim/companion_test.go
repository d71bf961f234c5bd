package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	fx "github.com/robotalks/guard.go/pkg/framework"
	"github.com/robotalks/guard.go/pkg/state"
)

type fakeLines struct {
	in  []string
	out []string
	err error
}

func (l *fakeLines) ReadLine() (string, bool) {
	if len(l.in) == 0 {
		return "", false
	}
	line := l.in[0]
	l.in = l.in[1:]
	return line, true
}

func (l *fakeLines) WriteLine(line string) error {
	if l.err != nil {
		return l.err
	}
	l.out = append(l.out, line)
	return nil
}

func newTestLoop(c *Companion) (*fx.Loop, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(time.Unix(1700000000, 0))
	loop := fx.NewLoop()
	loop.Clock = clock
	loop.AddTask(fx.PrLvNormal, c)
	return loop, clock
}

func TestCompanionPingsUntilPong(t *testing.T) {
	lines := &fakeLines{}
	c := NewCompanion(lines)
	loop, clock := newTestLoop(c)
	ctx := context.Background()

	loop.RunOnce(ctx)
	require.Equal(t, []string{"ping"}, lines.out)
	loop.RunOnce(ctx)
	require.Equal(t, []string{"ping"}, lines.out)

	clock.Advance(time.Second)
	loop.RunOnce(ctx)
	require.Equal(t, []string{"ping", "ping"}, lines.out)

	lines.in = []string{"pong"}
	clock.Advance(time.Second)
	loop.RunOnce(ctx)
	require.True(t, c.Acknowledged())
	require.Len(t, lines.out, 2)
}

func TestCompanionWithoutHandshake(t *testing.T) {
	lines := &fakeLines{}
	c := NewCompanion(lines)
	c.AutoHandshake = false
	loop, _ := newTestLoop(c)
	loop.RunOnce(context.Background())
	require.Empty(t, lines.out)
	require.False(t, c.Acknowledged())
}

func TestCompanionPrintsInbound(t *testing.T) {
	lines := &fakeLines{in: []string{"pong", "mode_change:toy", "READY", "mode_change:bogus"}}
	c := NewCompanion(lines)
	var printed []string
	c.Print = func(line string) { printed = append(printed, line) }
	loop, _ := newTestLoop(c)
	loop.RunOnce(context.Background())
	require.Empty(t, lines.in)
	require.Equal(t, []string{"pong", "mode_change:toy", "READY", "mode_change:bogus"}, printed)
	require.Equal(t, state.ModeToy, c.Mode())
	require.Empty(t, lines.out)
}

type stepErrors []error

func (e *stepErrors) TaskStepped(name string, status fx.Status, err error) {
	*e = append(*e, err)
}

func TestCompanionPingError(t *testing.T) {
	lines := &fakeLines{err: errors.New("closed")}
	c := NewCompanion(lines)
	loop, _ := newTestLoop(c)
	var errs stepErrors
	loop.SetObserver(&errs)
	loop.RunOnce(context.Background())
	require.Len(t, errs, 1)
	require.EqualError(t, errs[0], "closed")
}
