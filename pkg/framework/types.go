package framework

import (
	"context"
	"time"
)

// Named is an abstraction for things with a name.
type Named interface {
	Name() string
}

// Runnable defines a generic interface for background runners.
type Runnable interface {
	Run(context.Context) error
}

// Message defines the abstract message to be
// consumed in a controlling loop.
type Message interface {
	// NewMessage creates an empty message.
	NewMessage() Message
}

// Status is the result of a single task step.
type Status int

// Step results.
const (
	// Pending means the task wants to be stepped again.
	Pending Status = iota
	// Done means the task reached a terminal state and
	// will never be stepped again.
	Done
)

func (s Status) String() string {
	if s == Done {
		return "done"
	}
	return "pending"
}

// Task is a unit of cooperative work. Step must perform a bounded
// amount of work and never block.
type Task interface {
	Step(TickContext) (Status, error)
}

// StepFunc is the func form of Task.
type StepFunc func(TickContext) (Status, error)

// Step implements Task.
func (f StepFunc) Step(tc TickContext) (Status, error) {
	return f(tc)
}

// Gate is the precondition for a task to be eligible.
type Gate interface {
	Open() bool
}

// GateFunc is the func form of Gate.
type GateFunc func() bool

// Open implements Gate.
func (f GateFunc) Open() bool {
	return f()
}

// Always is a Gate which is always open.
var Always Gate = GateFunc(func() bool { return true })

// AllOf opens only when all gates are open.
func AllOf(gates ...Gate) Gate {
	return GateFunc(func() bool {
		for _, g := range gates {
			if !g.Open() {
				return false
			}
		}
		return true
	})
}

// StepObserver is notified after each task step.
type StepObserver interface {
	TaskStepped(name string, status Status, err error)
}

// TimeSource provides the time for controlling logic.
type TimeSource interface {
	Time() time.Time
}

// TickContext provides the context of the current tick.
type TickContext interface {
	TimeSource
	// Context retrieves context.Context.
	Context() context.Context
	// Seq is the sequence number of the tick, starting from 1.
	Seq() uint64
	// Messages retrieves all messages collected when
	// this tick starts.
	Messages() MessageStore

	LoopControl
}

// PriorityLevels is the total levels of priorities.
const PriorityLevels int = 16

// Predefine priority levels
const (
	PrLvTop    int = 0
	PrLvHigh   int = 4
	PrLvNormal int = 8
	PrLvLow    int = 12
	PrLvIdle   int = PriorityLevels - 1
)

// LoopControl exposes access to the controlling loop.
type LoopControl interface {
	// PostMessage enqueues the message.
	PostMessage(Message)
	// TriggerNext schedules the next tick to be executed
	// immediately after the current one.
	TriggerNext()
}

// MessageStore provides read/write access to a list of messages.
type MessageStore interface {
	// ProcessMessages uses a processor to process all messages.
	ProcessMessages(MessageProcessor)

	MessageAppender
}

// MessageAppender appends message to store.
type MessageAppender interface {
	// AddMessages appends messages to the store for next processing cycle.
	AddMessages(msgs ...Message)
}

// MessageProcessor is used by MessageStore to process messages.
type MessageProcessor interface {
	ProcessMessage(MessageProcessingContext)
}

// ProcessMessageFunc is the func form of MessageProcessor.
type ProcessMessageFunc func(MessageProcessingContext)

// ProcessMessage implements MessageProcessor.
func (f ProcessMessageFunc) ProcessMessage(mc MessageProcessingContext) {
	f(mc)
}

// MessageProcessingContext provides context for current message.
type MessageProcessingContext interface {
	// CurrentMessage gets the current message being processed.
	CurrentMessage() Message
	// MessageTaken indicates the message has been processed and
	// should be removed from store.
	MessageTaken()
	// StopProcessing indicates no need to examine further messages.
	StopProcessing()

	MessageAppender
}
