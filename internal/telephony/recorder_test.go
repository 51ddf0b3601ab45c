package telephony

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/receptionai/voice-bridge/internal/codec"
)

func TestRecorderWritesBothLegs(t *testing.T) {
	dir := t.TempDir()
	rec := NewRecorder(dir)

	rec.AppendInbound([]int16{100, 200, 300})
	rec.AppendInbound([]int16{400})
	rec.AppendOutbound([]int16{-100, -200})

	paths, err := rec.Flush()
	if err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("wrote %d files, want 2", len(paths))
	}

	data, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatalf("reading capture failed: %v", err)
	}
	samples, rate, err := codec.DecodeWAV(data)
	if err != nil {
		t.Fatalf("capture is not valid WAV: %v", err)
	}
	if rate != 8000 {
		t.Errorf("capture sample rate = %d, want 8000", rate)
	}
	if len(samples) != 4 {
		t.Errorf("inbound capture holds %d samples, want 4", len(samples))
	}
	if !strings.HasSuffix(paths[0], "-in.wav") || !strings.HasSuffix(paths[1], "-out.wav") {
		t.Errorf("capture names = %v, want -in.wav / -out.wav suffixes", paths)
	}
}

func TestRecorderSkipsEmptyLegs(t *testing.T) {
	rec := NewRecorder(t.TempDir())

	paths, err := rec.Flush()
	if err != nil {
		t.Fatalf("Flush of empty recorder failed: %v", err)
	}
	if len(paths) != 0 {
		t.Errorf("empty recorder wrote %d files, want 0", len(paths))
	}

	rec.AppendOutbound([]int16{1, 2, 3})
	paths, err = rec.Flush()
	if err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if len(paths) != 1 || !strings.HasSuffix(paths[0], "-out.wav") {
		t.Errorf("paths = %v, want only the outbound leg", paths)
	}
}

func TestServerCapturesCallAudio(t *testing.T) {
	dir := t.TempDir()
	config := testConfig()
	config.CaptureDir = dir

	server, err := NewServer(config, nil)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	if err := server.Listen(); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	addr := server.LocalAddr().(*net.UDPAddr)
	peer, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		t.Fatalf("DialUDP failed: %v", err)
	}
	defer peer.Close()

	if _, err := peer.Write(make([]byte, 160)); err != nil {
		t.Fatalf("peer write failed: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for server.Stats().FramesReceived == 0 {
		if time.Now().After(deadline) {
			t.Fatal("frame never received")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := server.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	captures, err := filepath.Glob(filepath.Join(dir, "call-*-in.wav"))
	if err != nil {
		t.Fatalf("glob failed: %v", err)
	}
	if len(captures) != 1 {
		t.Fatalf("found %d inbound captures, want 1", len(captures))
	}
	data, err := os.ReadFile(captures[0])
	if err != nil {
		t.Fatalf("reading capture failed: %v", err)
	}
	samples, rate, err := codec.DecodeWAV(data)
	if err != nil {
		t.Fatalf("capture is not valid WAV: %v", err)
	}
	if rate != 8000 || len(samples) != 160 {
		t.Errorf("capture = %d samples at %d Hz, want 160 at 8000", len(samples), rate)
	}
}
