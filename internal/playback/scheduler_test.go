package playback

import (
	"sync"
	"testing"
	"time"
)

type fakeRendition struct {
	unit   *Unit
	onDone func(error)

	mu       sync.Mutex
	played   bool
	stopped  bool
	released bool
}

func (r *fakeRendition) Play() error {
	r.mu.Lock()
	r.played = true
	r.mu.Unlock()
	return nil
}

func (r *fakeRendition) Stop() error {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	return nil
}

func (r *fakeRendition) Release() error {
	r.mu.Lock()
	r.released = true
	r.mu.Unlock()
	return nil
}

// complete simulates the rendition finishing on its own.
func (r *fakeRendition) complete() {
	r.onDone(nil)
}

type fakeSink struct {
	mu       sync.Mutex
	prepared []*fakeRendition
}

func (s *fakeSink) Prepare(unit *Unit, onDone func(err error)) (Rendition, error) {
	r := &fakeRendition{unit: unit, onDone: onDone}
	s.mu.Lock()
	s.prepared = append(s.prepared, r)
	s.mu.Unlock()
	return r, nil
}

func (s *fakeSink) renditions() []*fakeRendition {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*fakeRendition, len(s.prepared))
	copy(out, s.prepared)
	return out
}

func newTestScheduler(t *testing.T, config Config) (*Scheduler, *fakeSink) {
	t.Helper()
	sink := &fakeSink{}
	sched, err := NewScheduler(config, sink, nil)
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}
	return sched, sink
}

func TestSchedulerFlushesOnThreshold(t *testing.T) {
	config := DefaultConfig()
	config.FlushTimeout = time.Minute // keep the timer out of this test
	sched, sink := newTestScheduler(t, config)

	// Three 4000-byte chunks cross the 9600-byte threshold on the third.
	chunk := make([]byte, 4000)
	sched.Enqueue(chunk)
	sched.Enqueue(chunk)
	if got := len(sink.renditions()); got != 0 {
		t.Fatalf("flushed %d units below threshold, want 0", got)
	}
	sched.Enqueue(chunk)

	rends := sink.renditions()
	if len(rends) != 1 {
		t.Fatalf("flushed %d units, want exactly 1", len(rends))
	}
	if got := len(rends[0].unit.Data); got != 12000 {
		t.Errorf("unit holds %d bytes, want 12000", got)
	}
	if !rends[0].played {
		t.Error("unit was not played")
	}

	stats := sched.Stats()
	if stats.ThresholdFlushes != 1 || stats.TimerFlushes != 0 {
		t.Errorf("flush counters = %d threshold / %d timer, want 1 / 0",
			stats.ThresholdFlushes, stats.TimerFlushes)
	}
}

func TestSchedulerFlushesOnTimer(t *testing.T) {
	config := DefaultConfig()
	config.FlushTimeout = 30 * time.Millisecond
	sched, sink := newTestScheduler(t, config)

	sched.Enqueue(make([]byte, 1000))

	deadline := time.Now().Add(time.Second)
	for len(sink.renditions()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	rends := sink.renditions()
	if len(rends) != 1 {
		t.Fatalf("timer flush produced %d units, want exactly 1", len(rends))
	}
	if got := len(rends[0].unit.Data); got != 1000 {
		t.Errorf("unit holds %d bytes, want 1000", got)
	}

	// No second unit appears afterwards.
	time.Sleep(3 * config.FlushTimeout)
	if got := len(sink.renditions()); got != 1 {
		t.Errorf("got %d units after waiting, want still 1", got)
	}
	if got := sched.Stats().TimerFlushes; got != 1 {
		t.Errorf("timer flush counter = %d, want 1", got)
	}
}

func TestSchedulerEnqueueRefreshesTimer(t *testing.T) {
	config := DefaultConfig()
	config.FlushTimeout = 60 * time.Millisecond
	sched, sink := newTestScheduler(t, config)

	// Keep feeding small chunks faster than the timeout; nothing may flush
	// until the feed stops.
	for i := 0; i < 5; i++ {
		sched.Enqueue(make([]byte, 100))
		time.Sleep(20 * time.Millisecond)
	}
	if got := len(sink.renditions()); got != 0 {
		t.Fatalf("flushed %d units while the timer kept refreshing, want 0", got)
	}

	deadline := time.Now().Add(time.Second)
	for len(sink.renditions()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	rends := sink.renditions()
	if len(rends) != 1 {
		t.Fatalf("got %d units after the feed stopped, want 1", len(rends))
	}
	if got := len(rends[0].unit.Data); got != 500 {
		t.Errorf("unit holds %d bytes, want 500", got)
	}
}

func TestSchedulerDoubleBuffersQueuedUnits(t *testing.T) {
	config := DefaultConfig()
	config.FlushTimeout = time.Minute
	sched, sink := newTestScheduler(t, config)

	big := make([]byte, config.FlushThreshold)
	sched.Enqueue(big) // first unit, starts playing
	sched.Enqueue(big) // second unit, must be prepared while first plays

	rends := sink.renditions()
	if len(rends) != 2 {
		t.Fatalf("prepared %d renditions, want 2", len(rends))
	}
	if !rends[0].played {
		t.Error("first unit not playing")
	}
	if rends[1].played {
		t.Error("second unit started before the first finished")
	}

	rends[0].complete()
	if !rends[1].played {
		t.Error("second unit did not start after the first completed")
	}
	if !rends[0].released {
		t.Error("finished rendition was not released")
	}
	if got := sched.Stats().UnitsPlayed; got != 1 {
		t.Errorf("units played = %d, want 1", got)
	}
}

func TestSchedulerSpeakingTransitions(t *testing.T) {
	config := DefaultConfig()
	config.FlushTimeout = time.Minute
	sched, sink := newTestScheduler(t, config)

	var mu sync.Mutex
	var events []bool
	sched.SetOnSpeakingChange(func(speaking bool) {
		mu.Lock()
		events = append(events, speaking)
		mu.Unlock()
	})

	big := make([]byte, config.FlushThreshold)
	sched.Enqueue(big)
	sched.Enqueue(big)

	rends := sink.renditions()
	if len(rends) != 2 {
		t.Fatalf("prepared %d renditions, want 2", len(rends))
	}
	rends[0].complete()

	// Advancing between queued units must not toggle the flag.
	mu.Lock()
	got := append([]bool(nil), events...)
	mu.Unlock()
	if len(got) != 1 || !got[0] {
		t.Fatalf("events after advancing = %v, want [true]", got)
	}

	rends[1].complete()
	mu.Lock()
	got = append([]bool(nil), events...)
	mu.Unlock()
	if len(got) != 2 || got[1] {
		t.Fatalf("events after draining = %v, want [true false]", got)
	}
	if sched.Speaking() {
		t.Error("scheduler still speaking after the queue drained")
	}
}

func TestSchedulerInterruptIsIdempotent(t *testing.T) {
	config := DefaultConfig()
	config.FlushTimeout = time.Minute
	sched, sink := newTestScheduler(t, config)

	// Interrupt with nothing playing must be a no-op.
	sched.Interrupt()

	big := make([]byte, config.FlushThreshold)
	sched.Enqueue(big)
	sched.Enqueue(big)
	sched.Enqueue(make([]byte, 100)) // left in the accumulation buffer

	sched.Interrupt()
	sched.Interrupt()

	for i, r := range sink.renditions() {
		if !r.stopped || !r.released {
			t.Errorf("rendition %d not stopped and released after interrupt", i)
		}
	}
	stats := sched.Stats()
	if stats.QueueDepth != 0 || stats.AccumulatedBytes != 0 {
		t.Errorf("queue depth %d, accumulated %d after interrupt, want 0 / 0",
			stats.QueueDepth, stats.AccumulatedBytes)
	}
	if stats.Speaking {
		t.Error("still speaking after interrupt")
	}

	// A completion callback from a stopped rendition must be ignored.
	played := stats.UnitsPlayed
	sink.renditions()[0].complete()
	if got := sched.Stats().UnitsPlayed; got != played {
		t.Errorf("stale completion advanced units played to %d, want %d", got, played)
	}
}

func TestSchedulerDestroyAndReset(t *testing.T) {
	config := DefaultConfig()
	config.FlushTimeout = time.Minute
	sched, sink := newTestScheduler(t, config)

	big := make([]byte, config.FlushThreshold)
	sched.Enqueue(big)
	sched.Destroy()

	// Destroyed scheduler ignores new audio.
	sched.Enqueue(big)
	if got := len(sink.renditions()); got != 1 {
		t.Fatalf("destroyed scheduler accepted audio, %d renditions", got)
	}

	sched.Reset()
	sched.Enqueue(big)
	rends := sink.renditions()
	if len(rends) != 2 {
		t.Fatalf("reset scheduler flushed %d units total, want 2", len(rends))
	}
	if !rends[1].played {
		t.Error("unit after reset did not play")
	}
}

func TestSchedulerConfigValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }},
		{"zero channels", func(c *Config) { c.Channels = 0 }},
		{"zero threshold", func(c *Config) { c.FlushThreshold = 0 }},
		{"zero timeout", func(c *Config) { c.FlushTimeout = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			config := DefaultConfig()
			tc.mutate(&config)
			if err := config.Validate(); err == nil {
				t.Error("Validate accepted invalid config")
			}
		})
	}
}
