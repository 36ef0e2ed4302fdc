package media

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMachine_Transitions(t *testing.T) {
	states := []State{StateIdle, StateRecording, StateStoppedRecording, StatePlaying, StatePausedPlaying, StateStoppedPlaying}

	want := map[State]map[Event]State{
		StateIdle:             {EventRecord: StateRecording},
		StateRecording:        {EventStopRecording: StateStoppedRecording},
		StateStoppedRecording: {EventRecord: StateRecording, EventPlay: StatePlaying},
		StatePlaying:          {EventPause: StatePausedPlaying, EventFinishPlaying: StateStoppedPlaying},
		StatePausedPlaying:    {EventRecord: StateRecording, EventPlay: StatePlaying},
		StateStoppedPlaying:   {EventRecord: StateRecording, EventPlay: StatePlaying},
	}
	events := []Event{EventRecord, EventStopRecording, EventPlay, EventPause, EventFinishPlaying}

	for _, from := range states {
		for _, ev := range events {
			m := &Machine{state: from, watchers: map[int]func(from, to State){}}
			to, ok := want[from][ev]
			changed := m.Fire(ev)

			assert.Equal(t, ok, changed, "%s + %s", from, ev)
			if ok {
				assert.Equal(t, to, m.State(), "%s + %s", from, ev)
			} else {
				assert.Equal(t, from, m.State(), "%s + %s should be ignored", from, ev)
			}
		}
	}
}

func TestMachine_RepeatedStopKeepsStoppedState(t *testing.T) {
	m := NewMachine()
	m.Fire(EventRecord)
	m.Fire(EventStopRecording)
	assert.False(t, m.Fire(EventStopRecording))
	assert.Equal(t, StateStoppedRecording, m.State())

	m.Fire(EventPlay)
	m.Fire(EventFinishPlaying)
	assert.False(t, m.Fire(EventFinishPlaying))
	assert.Equal(t, StateStoppedPlaying, m.State())
}

func TestMachine_WatchAndReset(t *testing.T) {
	m := NewMachine()
	var mu sync.Mutex
	var seen [][2]State
	unwatch := m.Watch(func(from, to State) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, [2]State{from, to})
	})

	m.Fire(EventRecord)
	m.Fire(EventPause) // rejected, not reported
	m.Reset()
	unwatch()
	m.Fire(EventRecord)

	assert.Equal(t, [][2]State{
		{StateIdle, StateRecording},
		{StateRecording, StateIdle},
	}, seen)
}

func TestEmit_NilListener(t *testing.T) {
	assert.NotPanics(t, func() { Emit(nil, EventRecord) })

	m := NewMachine()
	Emit(m, EventRecord)
	assert.Equal(t, StateRecording, m.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "PAUSED_PLAYING", StatePausedPlaying.String())
	text, err := StateStoppedRecording.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "STOPPED_RECORDING", string(text))
}
