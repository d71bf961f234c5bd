package state

import (
	"sync"
	"time"
)

// LowVoltage is the threshold under which a battery is considered low.
const LowVoltage = 6.0

// Battery is the latest battery reading reported by the companion device.
type Battery struct {
	MotorVoltage   float64   `json:"motorVoltage"`
	ComputeVoltage float64   `json:"computeVoltage"`
	LastUpdated    time.Time `json:"lastUpdated"`
}

// Reported tells whether any reading has been received.
func (b Battery) Reported() bool {
	return !b.LastUpdated.IsZero()
}

// Low is true when a reading exists and either voltage is below LowVoltage.
func (b Battery) Low() bool {
	return b.Reported() && (b.MotorVoltage < LowVoltage || b.ComputeVoltage < LowVoltage)
}

// Frame is the latest picture received from the companion device.
// Payload is never modified once stored, a new frame replaces it.
type Frame struct {
	Payload    []byte
	Present    bool
	Seq        uint64
	ReceivedAt time.Time
}

// Snapshot is a consistent copy of the store.
type Snapshot struct {
	Mode         Mode
	SerialReady  bool
	NetworkReady bool
	Battery      Battery
	Frame        Frame
}

// LowBattery is the derived low battery flag.
func (s Snapshot) LowBattery() bool {
	return s.Battery.Low()
}

// Ready tells whether both links are ready.
func (s Snapshot) Ready() bool {
	return s.SerialReady && s.NetworkReady
}

// Store is the shared state of the controller. It's safe for
// concurrent use; every reader sees a consistent Snapshot.
type Store struct {
	lock  sync.RWMutex
	state Snapshot

	subsLock sync.Mutex
	subs     map[*Subscription]struct{}
}

// Subscription receives the latest Snapshot after each change.
// Intermediate snapshots may be skipped when the receiver is slow.
type Subscription struct {
	C     <-chan Snapshot
	ch    chan Snapshot
	store *Store
}

// NewStore creates a store with default values.
func NewStore() *Store {
	return &Store{state: Snapshot{Mode: DefaultMode}}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.state
}

// Mode gets the current mode.
func (s *Store) Mode() Mode {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.state.Mode
}

// SerialReady gets the serial ready flag.
func (s *Store) SerialReady() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.state.SerialReady
}

// NetworkReady gets the network ready flag.
func (s *Store) NetworkReady() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.state.NetworkReady
}

// Ready tells both links are ready.
func (s *Store) Ready() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.state.Ready()
}

// SetMode changes the mode and returns the previous one.
// changed is false if the mode is already the requested one.
func (s *Store) SetMode(mode Mode) (prev Mode, changed bool) {
	s.update(func(st *Snapshot) bool {
		prev = st.Mode
		changed = prev != mode
		st.Mode = mode
		return changed
	})
	return
}

// MarkSerialReady sets serialReady. The flag is never reset.
// It returns true if this call made the transition.
func (s *Store) MarkSerialReady() (changed bool) {
	s.update(func(st *Snapshot) bool {
		changed = !st.SerialReady
		st.SerialReady = true
		return changed
	})
	return
}

// MarkNetworkReady sets networkReady. The flag is never reset.
// It returns true if this call made the transition.
func (s *Store) MarkNetworkReady() (changed bool) {
	s.update(func(st *Snapshot) bool {
		changed = !st.NetworkReady
		st.NetworkReady = true
		return changed
	})
	return
}

// SetBattery replaces the battery reading.
func (s *Store) SetBattery(motor, compute float64, at time.Time) Battery {
	b := Battery{MotorVoltage: motor, ComputeVoltage: compute, LastUpdated: at}
	s.update(func(st *Snapshot) bool {
		st.Battery = b
		return true
	})
	return b
}

// SetFrame replaces the current frame with payload.
// The store takes ownership of payload.
func (s *Store) SetFrame(payload []byte, at time.Time) Frame {
	var f Frame
	s.update(func(st *Snapshot) bool {
		f = Frame{
			Payload:    payload,
			Present:    true,
			Seq:        st.Frame.Seq + 1,
			ReceivedAt: at,
		}
		st.Frame = f
		return true
	})
	return f
}

// Subscribe registers for change notifications.
func (s *Store) Subscribe() *Subscription {
	ch := make(chan Snapshot, 1)
	sub := &Subscription{C: ch, ch: ch, store: s}
	s.subsLock.Lock()
	if s.subs == nil {
		s.subs = make(map[*Subscription]struct{})
	}
	s.subs[sub] = struct{}{}
	s.subsLock.Unlock()
	return sub
}

// Close unregisters the subscription.
func (sub *Subscription) Close() {
	sub.store.subsLock.Lock()
	delete(sub.store.subs, sub)
	sub.store.subsLock.Unlock()
}

func (s *Store) update(fn func(*Snapshot) bool) {
	s.lock.Lock()
	if !fn(&s.state) {
		s.lock.Unlock()
		return
	}
	snapshot := s.state
	// notifications are delivered in update order
	s.subsLock.Lock()
	s.lock.Unlock()
	defer s.subsLock.Unlock()
	for sub := range s.subs {
		// keep only the latest snapshot pending
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- snapshot:
		default:
		}
	}
}
