package framework

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/jonboulle/clockwork"
)

// DefaultInterval is the tick interval when Loop.Interval is not set.
const DefaultInterval = 10 * time.Millisecond

// Loop drives the Scheduler, one tick per interval or whenever
// TriggerNext is requested, and runs background Runnables.
type Loop struct {
	Interval time.Duration
	Clock    clockwork.Clock

	scheduler Scheduler
	runners   []Runnable
	ticks     uint64

	messages messageList
	lock     sync.Mutex

	wakeUpCh chan struct{}
}

// LoopAdder provides specific logic to add components to loop.
type LoopAdder interface {
	AddToLoop(*Loop)
}

type loopCtl struct {
	*Loop
}

type loopTick struct {
	loopCtl
	ctx      context.Context
	time     time.Time
	seq      uint64
	messages messageList
}

type messageList struct {
	head *messageItem
	tail *messageItem
}

type messageItem struct {
	msg  Message
	next *messageItem
}

func (l *messageList) append(item *messageItem) {
	if l.head == nil {
		l.head = item
	} else {
		l.tail.next = item
	}
	l.tail = item
}

func (l *messageList) splice(src *messageList) {
	l.head, l.tail, src.head = src.head, src.tail, nil
}

func (l *messageList) concat(lst *messageList) {
	if l.head == nil {
		l.head = lst.head
	} else {
		l.tail.next = lst.head
	}
	if lst.head != nil {
		l.tail = lst.tail
	}
}

var (
	loopCtxKey = &Loop{}
)

// LoopCtlFrom gets LoopControl from context.
func LoopCtlFrom(ctx context.Context) LoopControl {
	return ctx.Value(loopCtxKey).(LoopControl)
}

// TickCtxFrom gets TickContext from context.
func TickCtxFrom(ctx context.Context) TickContext {
	return ctx.Value(loopCtxKey).(TickContext)
}

// NewLoop creates a Loop.
func NewLoop() *Loop {
	return &Loop{
		Interval: DefaultInterval,
		Clock:    clockwork.NewRealClock(),
		wakeUpCh: make(chan struct{}, 1),
	}
}

// Add adds LoopAdders.
func (l *Loop) Add(adders ...LoopAdder) *Loop {
	for _, adder := range adders {
		adder.AddToLoop(l)
	}
	return l
}

// AddTask registers a task with the scheduler. If the task is also
// a Runnable, it is started with the loop.
func (l *Loop) AddTask(priorityLevel int, task Task, gates ...Gate) *Loop {
	l.scheduler.Add(priorityLevel, task, gates...)
	if runner, ok := task.(Runnable); ok {
		l.runners = append(l.runners, runner)
	}
	return l
}

// AddRunnable adds Runnable implementions.
func (l *Loop) AddRunnable(runnables ...Runnable) *Loop {
	l.runners = append(l.runners, runnables...)
	return l
}

// SetObserver installs the observer notified on every task step.
func (l *Loop) SetObserver(o StepObserver) *Loop {
	l.scheduler.Observer = o
	return l
}

// Tasks lists the registered tasks.
func (l *Loop) Tasks() []TaskInfo {
	return l.scheduler.Tasks()
}

// Run implements Runnable.
func (l *Loop) Run(ctx context.Context) error {
	if l.wakeUpCh == nil {
		l.wakeUpCh = make(chan struct{}, 1)
	}

	runner := NewRunnerWith(context.WithValue(ctx, loopCtxKey, &loopCtl{l}))
	runner.Go(l.runners...)
	defer runner.Wait()

	interval := l.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := l.clock().NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			l.RunOnce(ctx)
		case <-l.wakeUpCh:
			l.RunOnce(ctx)
		}
	}
}

// RunOrFail is intended to be used in main to simply run the loop.
func (l *Loop) RunOrFail(ctx context.Context) {
	if err := l.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		glog.Fatal(err)
	}
}

// PostMessage implements LoopControl.
func (l *Loop) PostMessage(msg Message) {
	l.lock.Lock()
	l.messages.append(&messageItem{msg: msg})
	l.lock.Unlock()
}

// TriggerNext implements LoopControl.
func (l *Loop) TriggerNext() {
	select {
	case l.wakeUpCh <- struct{}{}:
	default:
	}
}

// RunOnce executes a single tick. It returns the name of the
// stepped task or false if no task was eligible.
// Messages not taken during the tick are kept for the next one.
func (l *Loop) RunOnce(ctx context.Context) (string, bool) {
	l.ticks++
	tick := &loopTick{loopCtl: loopCtl{l}, time: l.clock().Now(), seq: l.ticks}
	l.lock.Lock()
	tick.messages.splice(&l.messages)
	l.lock.Unlock()
	tick.ctx = context.WithValue(ctx, loopCtxKey, tick)

	name, stepped := l.scheduler.Tick(tick)
	if stepped {
		glog.V(4).Infof("tick %d: %s", tick.seq, name)
	}

	l.lock.Lock()
	tick.messages.concat(&l.messages)
	l.messages = tick.messages
	l.lock.Unlock()
	return name, stepped
}

func (l *Loop) clock() clockwork.Clock {
	if l.Clock == nil {
		l.Clock = clockwork.NewRealClock()
	}
	return l.Clock
}

func (t *loopTick) Context() context.Context {
	return t.ctx
}

func (t *loopTick) Time() time.Time {
	return t.time
}

func (t *loopTick) Seq() uint64 {
	return t.seq
}

func (t *loopTick) Messages() MessageStore {
	return t
}

// MessageStore implementations

type messageContext struct {
	tick  *loopTick
	item  *messageItem
	taken bool
	stop  bool
}

func (c *messageContext) CurrentMessage() Message     { return c.item.msg }
func (c *messageContext) MessageTaken()               { c.taken = true }
func (c *messageContext) StopProcessing()             { c.stop = true }
func (c *messageContext) AddMessages(msgs ...Message) { c.tick.AddMessages(msgs...) }

func (t *loopTick) ProcessMessages(proc MessageProcessor) {
	var msgs, remains messageList
	msgs.splice(&t.messages)
	for msgs.head != nil {
		mctx := &messageContext{tick: t, item: msgs.head}
		msgs.head = msgs.head.next
		mctx.item.next = nil
		proc.ProcessMessage(mctx)
		if !mctx.taken {
			remains.append(mctx.item)
		}
		if mctx.stop {
			remains.concat(&msgs)
			break
		}
	}
	remains.concat(&t.messages)
	t.messages = remains
}

func (t *loopTick) AddMessages(msgs ...Message) {
	for _, msg := range msgs {
		t.messages.append(&messageItem{msg: msg})
	}
}
