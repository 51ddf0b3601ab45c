package telephony

// muLawSilence is the mu-law code for zero amplitude.
const muLawSilence = 0xFF

// FrameWriter slices a mu-law byte stream into fixed-size wire frames.
// Writes smaller than one frame accumulate until a full frame is available.
type FrameWriter struct {
	frameBytes int
	buf        []byte
}

// NewFrameWriter creates a framer emitting frames of the given size.
func NewFrameWriter(frameBytes int) *FrameWriter {
	return &FrameWriter{frameBytes: frameBytes}
}

// Write appends data and returns every complete frame now available. The
// returned slices are copies and safe to retain.
func (w *FrameWriter) Write(p []byte) [][]byte {
	w.buf = append(w.buf, p...)
	var frames [][]byte
	for len(w.buf) >= w.frameBytes {
		frame := make([]byte, w.frameBytes)
		copy(frame, w.buf[:w.frameBytes])
		w.buf = w.buf[w.frameBytes:]
		frames = append(frames, frame)
	}
	return frames
}

// Pending returns the number of buffered bytes short of a frame.
func (w *FrameWriter) Pending() int {
	return len(w.buf)
}

// Flush pads the remainder with mu-law silence up to a full frame and
// returns it, or nil when nothing is buffered.
func (w *FrameWriter) Flush() []byte {
	if len(w.buf) == 0 {
		return nil
	}
	frame := make([]byte, w.frameBytes)
	copy(frame, w.buf)
	for i := len(w.buf); i < w.frameBytes; i++ {
		frame[i] = muLawSilence
	}
	w.buf = w.buf[:0]
	return frame
}
