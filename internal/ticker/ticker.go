package ticker

import (
	"sync"
	"time"
)

// Source is a stoppable channel of fire times, implemented by time.Ticker and time.Timer.
type Source interface {
	C() <-chan time.Time
	Stop()
}

// Clock abstracts wall time so countdowns can be driven deterministically in tests
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Source
	NewTimer(d time.Duration) Source
}

// acker is implemented by sources that want to know when a fire has been
// fully handled, callbacks included.
type acker interface {
	Ack()
}

func ack(s Source) {
	if a, ok := s.(acker); ok {
		a.Ack()
	}
}

// Tick is delivered to onTick callbacks
type Tick struct {
	Elapsed   time.Duration
	Remaining time.Duration
}

// Ticker runs a single countdown at a time. Callbacks are delivered on the
// countdown's own goroutine.
type Ticker struct {
	clock Clock

	mu  sync.Mutex
	cur *run
}

type run struct {
	stop     chan struct{}
	started  chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func (r *run) cancel() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// New creates a Ticker on the given clock; a nil clock means real time
func New(clock Clock) *Ticker {
	if clock == nil {
		clock = RealClock{}
	}
	return &Ticker{clock: clock}
}

// Start begins a countdown of duration, firing onTick immediately and then every
// interval, and onFinish exactly once when duration has elapsed. A running
// countdown is cancelled first. Start returns once the immediate tick has been
// delivered, so the caller must not hold a lock onTick takes.
func (t *Ticker) Start(interval, duration time.Duration, onTick func(Tick), onFinish func()) {
	t.Cancel()

	if interval <= 0 {
		interval = duration
	}

	r := &run{
		stop:    make(chan struct{}),
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}

	t.mu.Lock()
	t.cur = r
	t.mu.Unlock()

	start := t.clock.Now()
	deadline := start.Add(duration)
	tk := t.clock.NewTicker(interval)
	tm := t.clock.NewTimer(duration)

	go t.loop(r, deadline, duration, tk, tm, onTick, onFinish)
	<-r.started
}

func (t *Ticker) loop(r *run, deadline time.Time, duration time.Duration, tk, tm Source, onTick func(Tick), onFinish func()) {
	defer close(r.done)
	defer tk.Stop()
	defer tm.Stop()

	first := t.deliver(r, Tick{Elapsed: 0, Remaining: duration}, onTick)
	close(r.started)
	if !first {
		return
	}

	for {
		select {
		case <-r.stop:
			return
		case now := <-tk.C():
			remaining := deadline.Sub(now)
			if remaining <= 0 {
				// the deadline timer owns the finish
				ack(tk)
				continue
			}
			if !t.deliver(r, Tick{Elapsed: duration - remaining, Remaining: remaining}, onTick) {
				return
			}
			ack(tk)
		case <-tm.C():
			t.mu.Lock()
			if t.cur != r {
				t.mu.Unlock()
				return
			}
			// detach before onFinish so it may call Cancel
			t.cur = nil
			t.mu.Unlock()
			if onFinish != nil {
				onFinish()
			}
			ack(tm)
			return
		}
	}
}

// deliver invokes onTick unless the run was cancelled; it reports whether the
// loop should keep going.
func (t *Ticker) deliver(r *run, tick Tick, onTick func(Tick)) bool {
	select {
	case <-r.stop:
		return false
	default:
	}
	if onTick != nil {
		onTick(tick)
	}
	return true
}

// Cancel stops the running countdown and waits for its goroutine to exit.
// It is a no-op when nothing runs. Must not be called from onTick.
func (t *Ticker) Cancel() {
	t.mu.Lock()
	r := t.cur
	t.cur = nil
	t.mu.Unlock()

	if r == nil {
		return
	}
	r.cancel()
	<-r.done
}

// Running reports whether a countdown is active
func (t *Ticker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cur != nil
}
