package tasks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/goleak"

	fx "github.com/robotalks/guard.go/pkg/framework"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreAnyFunction("github.com/golang/glog.(*fileSink).flushDaemon"))
}

var testEpoch = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

type fakeLines struct {
	lock sync.Mutex
	in   []string
	out  []string
	err  error
}

func (f *fakeLines) push(lines ...string) {
	f.lock.Lock()
	f.in = append(f.in, lines...)
	f.lock.Unlock()
}

func (f *fakeLines) ReadLine() (string, bool) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if len(f.in) == 0 {
		return "", false
	}
	line := f.in[0]
	f.in = f.in[1:]
	return line, true
}

func (f *fakeLines) WriteLine(line string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.err != nil {
		return f.err
	}
	f.out = append(f.out, line)
	return nil
}

func (f *fakeLines) written() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string(nil), f.out...)
}

func (f *fakeLines) pending() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return len(f.in)
}

type stateRecorder struct {
	states []string
}

func (r *stateRecorder) TaskState(task, state string) {
	r.states = append(r.states, task+":"+state)
}

type harness struct {
	loop  *fx.Loop
	clock *clockwork.FakeClock
}

func newHarness() *harness {
	h := &harness{loop: fx.NewLoop(), clock: clockwork.NewFakeClockAt(testEpoch)}
	h.loop.Clock = h.clock
	return h
}

func (h *harness) tick() bool {
	_, stepped := h.loop.RunOnce(context.Background())
	return stepped
}

func (h *harness) advance(d time.Duration) bool {
	h.clock.Advance(d)
	return h.tick()
}
