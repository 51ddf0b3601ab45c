package codec

import "testing"

func TestWAVRoundTrip(t *testing.T) {
	samples := make([]int16, 800)
	for i := range samples {
		samples[i] = int16(i - 400)
	}

	data, err := EncodeWAV(samples, 8000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	if len(data) != 44+len(samples)*2 {
		t.Errorf("encoded size %d, want %d", len(data), 44+len(samples)*2)
	}

	decoded, rate, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if rate != 8000 {
		t.Errorf("sample rate %d, want 8000", rate)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("decoded %d samples, want %d", len(decoded), len(samples))
	}
	for i := range samples {
		if decoded[i] != samples[i] {
			t.Fatalf("sample %d = %d, want %d", i, decoded[i], samples[i])
		}
	}
}

func TestWAVRejectsInvalidInput(t *testing.T) {
	if _, err := EncodeWAV(nil, 8000); err == nil {
		t.Error("EncodeWAV accepted empty samples")
	}
	if _, err := EncodeWAV([]int16{1}, 0); err == nil {
		t.Error("EncodeWAV accepted zero sample rate")
	}
	if _, _, err := DecodeWAV([]byte("short")); err == nil {
		t.Error("DecodeWAV accepted truncated data")
	}
}
