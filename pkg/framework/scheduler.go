package framework

import (
	"strconv"

	"github.com/golang/glog"
)

// Scheduler steps at most one task per tick.
//
// Tasks are kept ordered by priority level, then by registration order.
// On each tick the scan starts right after the task stepped last and wraps
// around; the first task which is not Done and whose gate is open is
// stepped. Tasks reporting Done are skipped forever after.
type Scheduler struct {
	Observer StepObserver

	tasks []*scheduledTask
	next  int
}

// TaskInfo describes a registered task.
type TaskInfo struct {
	Name          string
	PriorityLevel int
	Done          bool
}

type scheduledTask struct {
	TaskInfo
	task Task
	gate Gate
}

// Add registers a task at the priority level. The task is eligible
// only when all gates are open. The name is taken from Named if
// implemented.
func (s *Scheduler) Add(priorityLevel int, task Task, gates ...Gate) *Scheduler {
	if priorityLevel < 0 || priorityLevel >= PriorityLevels {
		panic("invalid priority level " + strconv.Itoa(priorityLevel))
	}
	st := &scheduledTask{task: task, gate: Always}
	st.PriorityLevel = priorityLevel
	if named, ok := task.(Named); ok {
		st.Name = named.Name()
	} else {
		st.Name = "task" + strconv.Itoa(len(s.tasks))
	}
	if len(gates) == 1 {
		st.gate = gates[0]
	} else if len(gates) > 1 {
		st.gate = AllOf(gates...)
	}

	pos := len(s.tasks)
	for pos > 0 && s.tasks[pos-1].PriorityLevel > priorityLevel {
		pos--
	}
	s.tasks = append(s.tasks, nil)
	copy(s.tasks[pos+1:], s.tasks[pos:])
	s.tasks[pos] = st
	if pos < s.next {
		s.next++
	}
	return s
}

// Tasks lists registered tasks in scheduling order.
func (s *Scheduler) Tasks() []TaskInfo {
	infos := make([]TaskInfo, len(s.tasks))
	for n, t := range s.tasks {
		infos[n] = t.TaskInfo
	}
	return infos
}

// Tick steps one eligible task. It returns the name of the stepped
// task, or false if none was eligible.
// An error from a step is logged and the task stays pending.
func (s *Scheduler) Tick(tc TickContext) (string, bool) {
	count := len(s.tasks)
	for i := 0; i < count; i++ {
		idx := (s.next + i) % count
		t := s.tasks[idx]
		if t.Done || !t.gate.Open() {
			continue
		}
		s.next = (idx + 1) % count
		status, err := t.task.Step(tc)
		if err != nil {
			glog.Errorf("task %s: %v", t.Name, err)
			status = Pending
		} else if status == Done {
			t.Done = true
			glog.V(2).Infof("task %s done", t.Name)
		}
		if o := s.Observer; o != nil {
			o.TaskStepped(t.Name, status, err)
		}
		return t.Name, true
	}
	return "", false
}
