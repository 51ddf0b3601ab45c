package playback

import "time"

// Unit is one merged, time-ordered buffer of PCM-16 audio ready for output,
// built by concatenating accumulated chunks. A unit is rendered once and
// discarded.
type Unit struct {
	ID         string    `json:"id"`
	Data       []byte    `json:"-"`
	SampleRate int       `json:"sample_rate"`
	Channels   int       `json:"channels"`
	CreatedAt  time.Time `json:"created_at"`
}

// Duration returns the playback duration of the unit.
func (u *Unit) Duration() time.Duration {
	if u.SampleRate <= 0 || u.Channels <= 0 {
		return 0
	}
	samples := len(u.Data) / 2 / u.Channels
	return time.Duration(samples) * time.Second / time.Duration(u.SampleRate)
}

// Rendition is a unit loaded into an output slot of the host audio device.
// Stop and Release must be safe to call in any order and more than once.
type Rendition interface {
	// Play starts rendering the unit.
	Play() error

	// Stop halts rendering before completion. The completion callback must
	// not fire afterwards.
	Stop() error

	// Release frees the output slot.
	Release() error
}

// Sink abstracts the host audio-output primitive. Prepare must be cheap
// enough to pipeline (the scheduler prepares the next unit while the current
// one renders) and must deliver the completion callback asynchronously when
// the rendition finishes on its own.
type Sink interface {
	Prepare(unit *Unit, onDone func(err error)) (Rendition, error)
}
