package ticker_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/tapedeck/internal/ticker"
	"github.com/audiolibrelab/tapedeck/internal/ticker/tickertest"
)

type recorder struct {
	mu       sync.Mutex
	ticks    []ticker.Tick
	finished int32
}

func (r *recorder) onTick(t ticker.Tick) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, t)
}

func (r *recorder) onFinish() { atomic.AddInt32(&r.finished, 1) }

func (r *recorder) snapshot() []ticker.Tick {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ticker.Tick, len(r.ticks))
	copy(out, r.ticks)
	return out
}

func TestTicker_TicksUntilDurationThenFinishesOnce(t *testing.T) {
	clock := tickertest.NewClock()
	tk := ticker.New(clock)
	rec := &recorder{}

	tk.Start(100*time.Millisecond, time.Second, rec.onTick, rec.onFinish)
	clock.Advance(2 * time.Second)

	require.Eventually(t, func() bool { return !tk.Running() }, time.Second, time.Millisecond)

	ticks := rec.snapshot()
	// immediate tick plus one per interval strictly before the deadline
	require.Len(t, ticks, 10)
	for i, tick := range ticks {
		assert.Equal(t, time.Duration(i)*100*time.Millisecond, tick.Elapsed)
		assert.Equal(t, time.Second-tick.Elapsed, tick.Remaining)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&rec.finished))
}

func TestTicker_CancelStopsFurtherTicks(t *testing.T) {
	clock := tickertest.NewClock()
	tk := ticker.New(clock)
	rec := &recorder{}

	tk.Start(100*time.Millisecond, time.Second, rec.onTick, rec.onFinish)
	clock.Advance(300 * time.Millisecond)
	tk.Cancel()

	before := len(rec.snapshot())
	clock.Advance(2 * time.Second)

	assert.Equal(t, before, len(rec.snapshot()))
	assert.Equal(t, int32(0), atomic.LoadInt32(&rec.finished))
	assert.False(t, tk.Running())
}

func TestTicker_CancelIsIdempotent(t *testing.T) {
	tk := ticker.New(tickertest.NewClock())
	assert.NotPanics(t, func() {
		tk.Cancel()
		tk.Cancel()
	})

	tk.Start(10*time.Millisecond, time.Second, nil, nil)
	tk.Cancel()
	tk.Cancel()
	assert.False(t, tk.Running())
}

func TestTicker_StartReplacesRunningCountdown(t *testing.T) {
	clock := tickertest.NewClock()
	tk := ticker.New(clock)
	first := &recorder{}
	second := &recorder{}

	tk.Start(100*time.Millisecond, time.Second, first.onTick, first.onFinish)
	clock.Advance(200 * time.Millisecond)
	tk.Start(100*time.Millisecond, 500*time.Millisecond, second.onTick, second.onFinish)
	firstCount := len(first.snapshot())

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return !tk.Running() }, time.Second, time.Millisecond)

	assert.Equal(t, firstCount, len(first.snapshot()))
	assert.Equal(t, int32(0), atomic.LoadInt32(&first.finished))
	assert.Len(t, second.snapshot(), 5)
	assert.Equal(t, int32(1), atomic.LoadInt32(&second.finished))
}

func TestTicker_CancelFromFinishDoesNotDeadlock(t *testing.T) {
	clock := tickertest.NewClock()
	tk := ticker.New(clock)
	done := make(chan struct{})

	tk.Start(50*time.Millisecond, 100*time.Millisecond, nil, func() {
		tk.Cancel()
		close(done)
	})
	clock.Advance(time.Second)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("onFinish did not complete")
	}
}

func TestTicker_RealClock(t *testing.T) {
	tk := ticker.New(nil)
	rec := &recorder{}

	tk.Start(5*time.Millisecond, 30*time.Millisecond, rec.onTick, rec.onFinish)

	require.Eventually(t, func() bool { return atomic.LoadInt32(&rec.finished) == 1 }, time.Second, time.Millisecond)
	assert.NotEmpty(t, rec.snapshot())
	for _, tick := range rec.snapshot() {
		assert.GreaterOrEqual(t, tick.Remaining, time.Duration(0))
		assert.LessOrEqual(t, tick.Elapsed, 30*time.Millisecond)
	}
}

func TestTicker_StartDeliversImmediateTick(t *testing.T) {
	tk := ticker.New(tickertest.NewClock())
	rec := &recorder{}

	tk.Start(100*time.Millisecond, time.Second, rec.onTick, rec.onFinish)
	defer tk.Cancel()

	assert.Equal(t, []ticker.Tick{{Elapsed: 0, Remaining: time.Second}}, rec.snapshot())
}

func TestTicker_AdvanceWaitsForSlowCallbacks(t *testing.T) {
	clock := tickertest.NewClock()
	tk := ticker.New(clock)
	rec := &recorder{}
	slow := func(tick ticker.Tick) {
		time.Sleep(2 * time.Millisecond)
		rec.onTick(tick)
	}

	tk.Start(100*time.Millisecond, time.Second, slow, rec.onFinish)
	for i := 1; i <= 5; i++ {
		clock.Advance(100 * time.Millisecond)
		assert.Len(t, rec.snapshot(), i+1)
	}

	clock.Advance(time.Second)
	assert.False(t, tk.Running())
	assert.Equal(t, int32(1), atomic.LoadInt32(&rec.finished))
}
