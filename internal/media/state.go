package media

import (
	"log/slog"
	"sync"
)

// State is the single media lifecycle value shared by the recorder, the player and the renderer
type State int

const (
	StateIdle State = iota
	StateRecording
	StateStoppedRecording
	StatePlaying
	StatePausedPlaying
	StateStoppedPlaying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRecording:
		return "RECORDING"
	case StateStoppedRecording:
		return "STOPPED_RECORDING"
	case StatePlaying:
		return "PLAYING"
	case StatePausedPlaying:
		return "PAUSED_PLAYING"
	case StateStoppedPlaying:
		return "STOPPED_PLAYING"
	default:
		return "UNKNOWN"
	}
}

// MarshalText lets snapshots carry the state by name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Event is an action that may move the machine
type Event int

const (
	EventRecord Event = iota
	EventStopRecording
	EventPlay
	EventPause
	EventFinishPlaying
)

func (e Event) String() string {
	switch e {
	case EventRecord:
		return "record"
	case EventStopRecording:
		return "stop_recording"
	case EventPlay:
		return "play"
	case EventPause:
		return "pause"
	case EventFinishPlaying:
		return "finish_playing"
	default:
		return "unknown"
	}
}

var transitions = map[Event]struct {
	from []State
	to   State
}{
	EventRecord:        {from: []State{StateIdle, StateStoppedRecording, StatePausedPlaying, StateStoppedPlaying}, to: StateRecording},
	EventStopRecording: {from: []State{StateRecording}, to: StateStoppedRecording},
	EventPlay:          {from: []State{StateStoppedRecording, StateStoppedPlaying, StatePausedPlaying}, to: StatePlaying},
	EventPause:         {from: []State{StatePlaying}, to: StatePausedPlaying},
	EventFinishPlaying: {from: []State{StatePlaying}, to: StateStoppedPlaying},
}

// Listener receives events emitted by the controllers
type Listener interface {
	MediaEvent(ev Event)
}

// Emit delivers ev to l; a nil listener is a no-op
func Emit(l Listener, ev Event) {
	if l == nil {
		return
	}
	l.MediaEvent(ev)
}

// Machine is the transition table plus the current state. Events that the
// table does not list for the current state are dropped without error.
type Machine struct {
	mu       sync.Mutex
	state    State
	nextID   int
	watchers map[int]func(from, to State)
}

func NewMachine() *Machine {
	return &Machine{state: StateIdle, watchers: make(map[int]func(from, to State))}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Can reports whether ev would be accepted in the current state
func (m *Machine) Can(ev Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return allowed(m.state, ev)
}

func allowed(s State, ev Event) bool {
	tr, ok := transitions[ev]
	if !ok {
		return false
	}
	for _, from := range tr.from {
		if from == s {
			return true
		}
	}
	return false
}

// Fire applies ev and reports whether the state changed
func (m *Machine) Fire(ev Event) bool {
	m.mu.Lock()
	from := m.state
	if !allowed(from, ev) {
		m.mu.Unlock()
		slog.Debug("Media event ignored", "event", ev, "state", from)
		return false
	}
	to := transitions[ev].to
	m.state = to
	watchers := m.snapshotWatchers()
	m.mu.Unlock()

	slog.Debug("Media state changed", "event", ev, "from", from, "to", to)
	for _, fn := range watchers {
		fn(from, to)
	}
	return true
}

// MediaEvent makes the machine usable as a controller Listener
func (m *Machine) MediaEvent(ev Event) {
	m.Fire(ev)
}

// Reset returns the machine to Idle
func (m *Machine) Reset() {
	m.mu.Lock()
	from := m.state
	m.state = StateIdle
	watchers := m.snapshotWatchers()
	m.mu.Unlock()

	if from != StateIdle {
		for _, fn := range watchers {
			fn(from, StateIdle)
		}
	}
}

// Watch registers fn for every transition and returns a function removing it
func (m *Machine) Watch(fn func(from, to State)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.watchers[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.watchers, id)
	}
}

func (m *Machine) snapshotWatchers() []func(from, to State) {
	out := make([]func(from, to State), 0, len(m.watchers))
	for _, fn := range m.watchers {
		out = append(out, fn)
	}
	return out
}
