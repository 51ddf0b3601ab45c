package telephony

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/receptionai/voice-bridge/internal/codec"
)

// Recorder buffers both legs of a call as 8 kHz samples and writes one WAV
// file per direction. Debug tool; both legs are held in memory until Flush.
type Recorder struct {
	dir string

	mu       sync.Mutex
	inbound  []int16
	outbound []int16
	started  time.Time
}

// NewRecorder creates a recorder writing captures into dir.
func NewRecorder(dir string) *Recorder {
	return &Recorder{dir: dir, started: time.Now()}
}

// AppendInbound buffers caller audio samples.
func (r *Recorder) AppendInbound(samples []int16) {
	r.mu.Lock()
	r.inbound = append(r.inbound, samples...)
	r.mu.Unlock()
}

// AppendOutbound buffers agent audio samples.
func (r *Recorder) AppendOutbound(samples []int16) {
	r.mu.Lock()
	r.outbound = append(r.outbound, samples...)
	r.mu.Unlock()
}

// Flush writes the buffered legs as WAV files named after the capture start
// time and clears the buffers for the next call. Legs with no audio are
// skipped. Returns the paths written.
func (r *Recorder) Flush() ([]string, error) {
	r.mu.Lock()
	inbound, outbound := r.inbound, r.outbound
	started := r.started
	r.inbound, r.outbound = nil, nil
	r.started = time.Now()
	r.mu.Unlock()

	if len(inbound) == 0 && len(outbound) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create capture directory: %w", err)
	}

	stamp := started.Format("20060102-150405")
	legs := []struct {
		name    string
		samples []int16
	}{
		{"in", inbound},
		{"out", outbound},
	}

	var paths []string
	for _, leg := range legs {
		if len(leg.samples) == 0 {
			continue
		}
		data, err := codec.EncodeWAV(leg.samples, 8000)
		if err != nil {
			return paths, fmt.Errorf("failed to encode %s leg: %w", leg.name, err)
		}
		path := filepath.Join(r.dir, fmt.Sprintf("call-%s-%s.wav", stamp, leg.name))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return paths, fmt.Errorf("failed to write %s leg: %w", leg.name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
