package session

import (
	"fmt"
	"sync"
	"time"
)

// DebounceConfig sets the asymmetric confirmation windows for turn-taking.
// Speech start confirms fast so barge-in feels immediate; speech stop
// confirms slowly so natural pauses do not end the caller's turn.
type DebounceConfig struct {
	StartConfirm time.Duration `yaml:"start_confirm"`
	StopConfirm  time.Duration `yaml:"stop_confirm"`
}

// DefaultDebounceConfig returns the debounce defaults.
func DefaultDebounceConfig() DebounceConfig {
	return DebounceConfig{
		StartConfirm: 100 * time.Millisecond,
		StopConfirm:  500 * time.Millisecond,
	}
}

// Validate checks the configuration for invalid values.
func (c DebounceConfig) Validate() error {
	if c.StartConfirm <= 0 {
		return fmt.Errorf("start_confirm must be positive, got %v", c.StartConfirm)
	}
	if c.StopConfirm <= 0 {
		return fmt.Errorf("stop_confirm must be positive, got %v", c.StopConfirm)
	}
	if c.StopConfirm < c.StartConfirm {
		return fmt.Errorf("stop_confirm %v must not be shorter than start_confirm %v",
			c.StopConfirm, c.StartConfirm)
	}
	return nil
}

// Debouncer turns raw voice-activity edges into confirmed speaking
// transitions. Raw edges may flicker many times per second; onStart and
// onStop fire once per confirmed transition.
//
// A raw start cancels any pending stop confirmation. A raw stop before
// speech has been confirmed is treated as flicker and does not disturb a
// pending start confirmation.
type Debouncer struct {
	config  DebounceConfig
	onStart func()
	onStop  func()

	mu           sync.Mutex
	speaking     bool
	startPending bool
	stopPending  bool
	startGen     uint64
	stopGen      uint64
}

// NewDebouncer creates a debouncer. Either callback may be nil.
func NewDebouncer(config DebounceConfig, onStart, onStop func()) (*Debouncer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid debounce config: %w", err)
	}
	return &Debouncer{
		config:  config,
		onStart: onStart,
		onStop:  onStop,
	}, nil
}

// Speaking reports whether speech is currently confirmed.
func (d *Debouncer) Speaking() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.speaking
}

// RawStart feeds a raw speech-started edge.
func (d *Debouncer) RawStart() {
	d.mu.Lock()
	// Voice resumed, so any pending stop confirmation is void.
	d.stopGen++
	d.stopPending = false

	if d.speaking || d.startPending {
		d.mu.Unlock()
		return
	}
	d.startPending = true
	d.startGen++
	gen := d.startGen
	d.mu.Unlock()

	time.AfterFunc(d.config.StartConfirm, func() {
		d.confirmStart(gen)
	})
}

// RawStop feeds a raw speech-stopped edge.
func (d *Debouncer) RawStop() {
	d.mu.Lock()
	if !d.speaking {
		// Flicker before the start has confirmed; let the pending start
		// ride it out.
		d.mu.Unlock()
		return
	}
	if d.stopPending {
		d.mu.Unlock()
		return
	}
	d.stopPending = true
	d.stopGen++
	gen := d.stopGen
	d.mu.Unlock()

	time.AfterFunc(d.config.StopConfirm, func() {
		d.confirmStop(gen)
	})
}

// Reset cancels pending confirmations and clears the speaking flag without
// firing callbacks. Used between calls.
func (d *Debouncer) Reset() {
	d.mu.Lock()
	d.startGen++
	d.stopGen++
	d.startPending = false
	d.stopPending = false
	d.speaking = false
	d.mu.Unlock()
}

func (d *Debouncer) confirmStart(gen uint64) {
	d.mu.Lock()
	if gen != d.startGen || !d.startPending {
		d.mu.Unlock()
		return
	}
	d.startPending = false
	if d.speaking {
		d.mu.Unlock()
		return
	}
	d.speaking = true
	cb := d.onStart
	d.mu.Unlock()

	if cb != nil {
		cb()
	}
}

func (d *Debouncer) confirmStop(gen uint64) {
	d.mu.Lock()
	if gen != d.stopGen || !d.stopPending {
		d.mu.Unlock()
		return
	}
	d.stopPending = false
	if !d.speaking {
		d.mu.Unlock()
		return
	}
	d.speaking = false
	cb := d.onStop
	d.mu.Unlock()

	if cb != nil {
		cb()
	}
}
