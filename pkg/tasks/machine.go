// Package tasks implements the cooperative tasks of the controller.
// Each task is an explicit state machine advanced one step per tick.
package tasks

import (
	"context"
	"errors"

	"github.com/golang/glog"
	"github.com/looplab/fsm"
)

// StateObserver is notified when a task enters a new state.
type StateObserver interface {
	TaskState(task, state string)
}

func newMachine(task, initial string, events fsm.Events, callbacks fsm.Callbacks, entered func(string)) *fsm.FSM {
	if callbacks == nil {
		callbacks = fsm.Callbacks{}
	}
	callbacks["enter_state"] = func(_ context.Context, e *fsm.Event) {
		glog.V(1).Infof("%s: %s -> %s (%s)", task, e.Src, e.Dst, e.Event)
		entered(e.Dst)
	}
	return fsm.NewFSM(initial, events, callbacks)
}

func notifyState(o StateObserver, task, state string) {
	if o != nil {
		o.TaskState(task, state)
	}
}

// fire triggers an event, a transition to the same state is not an error.
func fire(ctx context.Context, m *fsm.FSM, event string) error {
	err := m.Event(ctx, event)
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) && noTransition.Err == nil {
		return nil
	}
	return err
}
