package playback

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Config controls chunk accumulation and flushing.
type Config struct {
	SampleRate     int           `yaml:"sample_rate"`
	Channels       int           `yaml:"channels"`
	FlushThreshold int           `yaml:"flush_threshold_bytes"`
	FlushTimeout   time.Duration `yaml:"flush_timeout"`
}

// DefaultConfig returns the scheduler defaults: 24 kHz mono PCM-16 with a
// 200 ms flush threshold and a 150 ms flush timer.
func DefaultConfig() Config {
	return Config{
		SampleRate:     24000,
		Channels:       1,
		FlushThreshold: 9600,
		FlushTimeout:   150 * time.Millisecond,
	}
}

// Validate checks the configuration for invalid values.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.FlushThreshold <= 0 {
		return fmt.Errorf("flush_threshold_bytes must be positive, got %d", c.FlushThreshold)
	}
	if c.FlushTimeout <= 0 {
		return fmt.Errorf("flush_timeout must be positive, got %v", c.FlushTimeout)
	}
	return nil
}

// Stats is a snapshot of scheduler counters.
type Stats struct {
	UnitsFlushed     uint64 `json:"units_flushed"`
	UnitsPlayed      uint64 `json:"units_played"`
	ThresholdFlushes uint64 `json:"threshold_flushes"`
	TimerFlushes     uint64 `json:"timer_flushes"`
	Interrupts       uint64 `json:"interrupts"`
	PlayErrors       uint64 `json:"play_errors"`
	QueueDepth       int    `json:"queue_depth"`
	AccumulatedBytes int    `json:"accumulated_bytes"`
	Speaking         bool   `json:"speaking"`
}

// Scheduler merges small audio chunks into units, queues them in arrival
// order and renders them through a Sink with one unit playing while the next
// is already prepared. All methods are safe for concurrent use.
type Scheduler struct {
	config Config
	sink   Sink
	logger *slog.Logger

	mu        sync.Mutex
	accum     []byte
	queue     []*Unit
	current   Rendition
	next      Rendition
	playing   bool
	speaking  bool
	destroyed bool
	onSpeak   func(bool)

	// timerGen invalidates pending flush timers, playGen invalidates
	// completion callbacks from renditions cancelled by Interrupt.
	timerGen uint64
	playGen  uint64

	unitsFlushed     uint64
	unitsPlayed      uint64
	thresholdFlushes uint64
	timerFlushes     uint64
	interrupts       uint64
	playErrors       uint64
}

// NewScheduler creates a scheduler rendering through the given sink.
func NewScheduler(config Config, sink Sink, logger *slog.Logger) (*Scheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid playback config: %w", err)
	}
	if sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		config: config,
		sink:   sink,
		logger: logger,
	}, nil
}

// SetOnSpeakingChange registers the callback fired when the scheduler
// transitions between idle and playing. It is invoked without internal locks
// held.
func (s *Scheduler) SetOnSpeakingChange(fn func(speaking bool)) {
	s.mu.Lock()
	s.onSpeak = fn
	s.mu.Unlock()
}

// Speaking reports whether any unit is currently rendering or queued.
func (s *Scheduler) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// Enqueue appends a chunk of PCM-16 audio to the accumulation buffer. When
// the buffer reaches the flush threshold it is cut into a unit immediately,
// otherwise the flush timer is refreshed.
func (s *Scheduler) Enqueue(chunk []byte) {
	s.mu.Lock()
	if s.destroyed || len(chunk) == 0 {
		s.mu.Unlock()
		return
	}
	s.accum = append(s.accum, chunk...)
	var notify *bool
	if len(s.accum) >= s.config.FlushThreshold {
		s.thresholdFlushes++
		notify = s.flushLocked()
	} else {
		s.armFlushTimerLocked()
	}
	cb := s.onSpeak
	s.mu.Unlock()

	if notify != nil && cb != nil {
		cb(*notify)
	}
}

// Flush cuts whatever has accumulated into a unit without waiting for the
// threshold or the timer. Used at end of a response stream.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	notify := s.flushLocked()
	cb := s.onSpeak
	s.mu.Unlock()

	if notify != nil && cb != nil {
		cb(*notify)
	}
}

// Interrupt discards all buffered and queued audio and halts the active
// renditions. Safe to call when nothing is playing, and idempotent.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	s.interrupts++
	notify := s.teardownLocked()
	cb := s.onSpeak
	s.mu.Unlock()

	if notify != nil && cb != nil {
		cb(*notify)
	}
}

// Destroy tears the scheduler down at end of call. Enqueue becomes a no-op
// until Reset re-arms the instance.
func (s *Scheduler) Destroy() {
	s.mu.Lock()
	notify := s.teardownLocked()
	s.destroyed = true
	cb := s.onSpeak
	s.mu.Unlock()

	if notify != nil && cb != nil {
		cb(*notify)
	}
}

// Reset re-arms a destroyed scheduler for the next call.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	s.teardownLocked()
	s.destroyed = false
	s.mu.Unlock()
}

// Stats returns a snapshot of the scheduler counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		UnitsFlushed:     s.unitsFlushed,
		UnitsPlayed:      s.unitsPlayed,
		ThresholdFlushes: s.thresholdFlushes,
		TimerFlushes:     s.timerFlushes,
		Interrupts:       s.interrupts,
		PlayErrors:       s.playErrors,
		QueueDepth:       len(s.queue),
		AccumulatedBytes: len(s.accum),
		Speaking:         s.speaking,
	}
}

// teardownLocked stops renditions, clears all buffers and cancels pending
// timers and completion callbacks. Returns the speaking notification value
// if the flag changed.
func (s *Scheduler) teardownLocked() *bool {
	s.timerGen++
	s.playGen++
	s.accum = s.accum[:0]
	s.queue = nil
	if s.current != nil {
		s.current.Stop()
		s.current.Release()
		s.current = nil
	}
	if s.next != nil {
		s.next.Stop()
		s.next.Release()
		s.next = nil
	}
	s.playing = false
	if s.speaking {
		s.speaking = false
		v := false
		return &v
	}
	return nil
}

// flushLocked cuts the accumulation buffer into a unit and starts playback
// if idle.
func (s *Scheduler) flushLocked() *bool {
	s.timerGen++
	if len(s.accum) == 0 {
		return nil
	}
	data := make([]byte, len(s.accum))
	copy(data, s.accum)
	s.accum = s.accum[:0]

	unit := &Unit{
		ID:         uuid.New().String(),
		Data:       data,
		SampleRate: s.config.SampleRate,
		Channels:   s.config.Channels,
		CreatedAt:  time.Now(),
	}
	s.queue = append(s.queue, unit)
	s.unitsFlushed++
	s.logger.Debug("flushed playback unit",
		slog.String("unit_id", unit.ID),
		slog.Int("bytes", len(data)),
		slog.Duration("duration", unit.Duration()))

	if !s.playing {
		return s.advanceLocked()
	}
	s.preloadLocked()
	return nil
}

func (s *Scheduler) armFlushTimerLocked() {
	s.timerGen++
	gen := s.timerGen
	time.AfterFunc(s.config.FlushTimeout, func() {
		s.flushTimerFired(gen)
	})
}

func (s *Scheduler) flushTimerFired(gen uint64) {
	s.mu.Lock()
	if s.destroyed || gen != s.timerGen {
		s.mu.Unlock()
		return
	}
	s.timerFlushes++
	notify := s.flushLocked()
	cb := s.onSpeak
	s.mu.Unlock()

	if notify != nil && cb != nil {
		cb(*notify)
	}
}

// advanceLocked moves playback to the preloaded rendition or the next queued
// unit, falling idle when nothing is left. Returns the speaking notification
// value if the flag changed.
func (s *Scheduler) advanceLocked() *bool {
	for {
		var rend Rendition
		if s.next != nil {
			rend = s.next
			s.next = nil
		} else if len(s.queue) > 0 {
			unit := s.queue[0]
			s.queue = s.queue[1:]
			r, err := s.prepareLocked(unit)
			if err != nil {
				continue
			}
			rend = r
		} else {
			s.playing = false
			if s.speaking {
				s.speaking = false
				v := false
				return &v
			}
			return nil
		}

		if err := rend.Play(); err != nil {
			s.playErrors++
			s.logger.Warn("failed to start playback unit", slog.String("error", err.Error()))
			rend.Release()
			continue
		}
		s.current = rend
		s.playing = true
		s.preloadLocked()
		if !s.speaking {
			s.speaking = true
			v := true
			return &v
		}
		return nil
	}
}

// preloadLocked prepares the head of the queue into the secondary slot so
// the next unit starts without a gap when the current one finishes.
func (s *Scheduler) preloadLocked() {
	for s.next == nil && len(s.queue) > 0 {
		unit := s.queue[0]
		s.queue = s.queue[1:]
		rend, err := s.prepareLocked(unit)
		if err != nil {
			continue
		}
		s.next = rend
	}
}

func (s *Scheduler) prepareLocked(unit *Unit) (Rendition, error) {
	gen := s.playGen
	rend, err := s.sink.Prepare(unit, func(playErr error) {
		s.unitDone(gen, unit.ID, playErr)
	})
	if err != nil {
		s.playErrors++
		s.logger.Warn("failed to prepare playback unit",
			slog.String("unit_id", unit.ID),
			slog.String("error", err.Error()))
		return nil, err
	}
	return rend, nil
}

func (s *Scheduler) unitDone(gen uint64, unitID string, playErr error) {
	s.mu.Lock()
	if s.destroyed || gen != s.playGen {
		s.mu.Unlock()
		return
	}
	if playErr != nil {
		s.playErrors++
		s.logger.Warn("playback unit finished with error",
			slog.String("unit_id", unitID),
			slog.String("error", playErr.Error()))
	}
	s.unitsPlayed++
	if s.current != nil {
		s.current.Release()
		s.current = nil
	}
	notify := s.advanceLocked()
	cb := s.onSpeak
	s.mu.Unlock()

	if notify != nil && cb != nil {
		cb(*notify)
	}
}
