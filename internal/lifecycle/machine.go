package lifecycle

import "sync"

// Machine holds the lifecycle state of one game. It is owned by a single
// game; other components drive it only by sending events.
type Machine struct {
	mu      sync.Mutex
	id      string
	state   State
	history []Event
	subs    map[int]func(State)
	nextSub int
}

// NewMachine returns a machine at the initial state.
func NewMachine(id string) *Machine {
	return &Machine{
		id:    id,
		state: Initial(),
		subs:  make(map[int]func(State)),
	}
}

// FromEventHistory reconstructs a machine by replaying events in order.
// Replaying must reproduce exactly the state incremental sends produced.
func FromEventHistory(id string, events []Event) *Machine {
	m := NewMachine(id)
	for _, e := range events {
		m.Send(e)
	}
	return m
}

// ID returns the game id the machine is scoped to.
func (m *Machine) ID() string { return m.id }

// Send applies an event and reports whether the state changed. Subscribers
// are notified synchronously, after the new state is committed, and only on
// an actual change.
func (m *Machine) Send(e Event) bool {
	m.mu.Lock()
	next := Transition(m.state, e)
	if next == m.state {
		m.mu.Unlock()
		return false
	}
	m.state = next
	m.history = append(m.history, e)

	subs := make([]func(State), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	return true
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// History returns the events that caused transitions, in order.
func (m *Machine) History() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.history))
	copy(out, m.history)
	return out
}

// Subscribe registers a callback invoked on every state change. The returned
// token cancels the subscription via Unsubscribe.
func (m *Machine) Subscribe(fn func(State)) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	token := m.nextSub
	m.nextSub++
	m.subs[token] = fn
	return token
}

// Unsubscribe removes a subscription. Unsubscribing twice is a no-op.
func (m *Machine) Unsubscribe(token int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, token)
}

// Predicates: the single source of truth for status-dependent business
// rules. Callers must not inspect raw status strings.

// CanJoin reports whether a new player may join the game.
func (m *Machine) CanJoin() bool {
	s := m.State()
	return s.Status == StatusLobby && s.Substatus == SubOpen
}

// CanStart reports whether the game may begin starting.
func (m *Machine) CanStart() bool {
	s := m.State()
	return s.Status == StatusLobby && (s.Substatus == SubOpen || s.Substatus == SubCountdown)
}

// IsInGame reports whether play has begun and not yet ended.
func (m *Machine) IsInGame() bool {
	s := m.State()
	return s.Status == StatusActive || s.Status == StatusPaused
}

// CurrentPhase returns the active game phase. ok is false unless the game
// is active.
func (m *Machine) CurrentPhase() (string, bool) {
	s := m.State()
	if s.Status != StatusActive {
		return "", false
	}
	return s.Substatus, true
}
