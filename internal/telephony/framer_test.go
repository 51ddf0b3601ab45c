package telephony

import "testing"

func TestFrameWriterBuffersBelowFrameSize(t *testing.T) {
	w := NewFrameWriter(160)

	if frames := w.Write(make([]byte, 100)); len(frames) != 0 {
		t.Fatalf("emitted %d frames from 100 bytes, want 0", len(frames))
	}
	if got := w.Pending(); got != 100 {
		t.Errorf("pending = %d, want 100", got)
	}

	frames := w.Write(make([]byte, 100))
	if len(frames) != 1 {
		t.Fatalf("emitted %d frames from 200 bytes, want 1", len(frames))
	}
	if len(frames[0]) != 160 {
		t.Errorf("frame size = %d, want 160", len(frames[0]))
	}
	if got := w.Pending(); got != 40 {
		t.Errorf("pending = %d, want 40", got)
	}
}

func TestFrameWriterEmitsMultipleFrames(t *testing.T) {
	w := NewFrameWriter(160)
	frames := w.Write(make([]byte, 500))
	if len(frames) != 3 {
		t.Fatalf("emitted %d frames from 500 bytes, want 3", len(frames))
	}
	if got := w.Pending(); got != 20 {
		t.Errorf("pending = %d, want 20", got)
	}
}

func TestFrameWriterFlushPadsWithSilence(t *testing.T) {
	w := NewFrameWriter(160)
	w.Write([]byte{1, 2, 3})

	frame := w.Flush()
	if len(frame) != 160 {
		t.Fatalf("flushed frame size = %d, want 160", len(frame))
	}
	if frame[0] != 1 || frame[1] != 2 || frame[2] != 3 {
		t.Error("flushed frame lost buffered bytes")
	}
	for i := 3; i < 160; i++ {
		if frame[i] != muLawSilence {
			t.Fatalf("byte %d = 0x%02x, want mu-law silence 0x%02x", i, frame[i], muLawSilence)
		}
	}
	if w.Flush() != nil {
		t.Error("second flush returned a frame from an empty buffer")
	}
}
