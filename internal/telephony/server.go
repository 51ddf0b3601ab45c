package telephony

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/receptionai/voice-bridge/internal/codec"
	"github.com/receptionai/voice-bridge/internal/playback"
)

// Config contains telephony leg configuration.
type Config struct {
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`
	BufferSize  int    `yaml:"buffer_size"`
	FrameBytes  int    `yaml:"frame_bytes"`

	// CaptureDir enables debug recording of both call legs as WAV files in
	// the given directory. Empty disables capture.
	CaptureDir string `yaml:"capture_dir"`
}

// DefaultConfig returns the telephony defaults: 20 ms mu-law frames at
// 8 kHz.
func DefaultConfig() Config {
	return Config{
		BindAddress: "0.0.0.0",
		Port:        7078,
		BufferSize:  65536,
		FrameBytes:  160,
	}
}

// Validate checks the configuration for invalid values.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", c.Port)
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("buffer_size must be positive, got %d", c.BufferSize)
	}
	if c.FrameBytes <= 0 {
		return fmt.Errorf("frame_bytes must be positive, got %d", c.FrameBytes)
	}
	return nil
}

// Stats represents telephony server counters.
type Stats struct {
	FramesReceived uint64 `json:"frames_received"`
	FramesSent     uint64 `json:"frames_sent"`
	BytesReceived  uint64 `json:"bytes_received"`
	BytesSent      uint64 `json:"bytes_sent"`
	SendErrors     uint64 `json:"send_errors"`
	PeerKnown      bool   `json:"peer_known"`
}

// Server exchanges mu-law audio frames with one telephony peer over UDP.
// It implements the session capture interface for inbound caller audio and
// the playback sink interface for outbound agent audio.
type Server struct {
	config Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	conn *net.UDPConn

	recorder *Recorder

	mu          sync.RWMutex
	peer        *net.UDPAddr
	onAudio     func(pcm []byte)
	uplinkState *codec.DecimationFilter

	framesReceived uint64
	framesSent     uint64
	bytesReceived  uint64
	bytesSent      uint64
	sendErrors     uint64
}

// NewServer creates a telephony server.
func NewServer(config Config, logger *slog.Logger) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telephony config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:      config,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		uplinkState: codec.NewDecimationFilter(),
	}
	if config.CaptureDir != "" {
		s.recorder = NewRecorder(config.CaptureDir)
	}
	return s, nil
}

// Listen binds the UDP socket and starts the receive loop.
func (s *Server) Listen() error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", s.config.BindAddress, s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}
	s.conn = conn

	if err := s.conn.SetReadBuffer(s.config.BufferSize); err != nil {
		s.logger.Warn("failed to set UDP read buffer size",
			slog.Int("buffer_size", s.config.BufferSize),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("telephony server started",
		slog.String("address", conn.LocalAddr().String()),
		slog.Int("frame_bytes", s.config.FrameBytes),
	)

	s.wg.Add(1)
	go s.receiveLoop()
	return nil
}

// LocalAddr returns the bound address, or nil before Listen.
func (s *Server) LocalAddr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Close stops the receive loop and closes the socket.
func (s *Server) Close() error {
	s.cancel()
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Warn("error closing UDP connection", slog.String("error", err.Error()))
		}
	}
	s.wg.Wait()

	if s.recorder != nil {
		if paths, err := s.recorder.Flush(); err != nil {
			s.logger.Warn("failed to write call capture", slog.String("error", err.Error()))
		} else if len(paths) > 0 {
			s.logger.Info("call capture written", slog.Int("files", len(paths)))
		}
	}

	s.mu.RLock()
	received, sent := s.framesReceived, s.framesSent
	s.mu.RUnlock()
	s.logger.Info("telephony server stopped",
		slog.Uint64("frames_received", received),
		slog.Uint64("frames_sent", sent),
	)
	return nil
}

// Start begins forwarding inbound caller audio to the given callback as
// 24 kHz PCM-16 bytes. Implements the session capture interface.
func (s *Server) Start(onChunk func(pcm []byte)) error {
	if s.conn == nil {
		return fmt.Errorf("telephony server is not listening")
	}
	s.mu.Lock()
	s.onAudio = onChunk
	s.mu.Unlock()
	return nil
}

// Stop stops forwarding inbound audio and clears the decimation filter
// history so the next call does not convolve with this one's tail. The
// socket keeps receiving so the peer address stays fresh.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.onAudio = nil
	s.uplinkState.Reset()
	s.mu.Unlock()
	return nil
}

// Prepare converts one playback unit to mu-law and returns a rendition that
// paces it to the peer in 20 ms frames. Implements the playback sink
// interface.
func (s *Server) Prepare(unit *playback.Unit, onDone func(err error)) (playback.Rendition, error) {
	samples, err := codec.BytesToSamples(unit.Data)
	if err != nil {
		return nil, fmt.Errorf("unit %s holds invalid PCM: %w", unit.ID, err)
	}

	s.mu.Lock()
	mulaw := codec.UplinkToTelephony(samples, s.uplinkState)
	s.mu.Unlock()

	framer := NewFrameWriter(s.config.FrameBytes)
	frames := framer.Write(mulaw)
	if last := framer.Flush(); last != nil {
		frames = append(frames, last)
	}

	return &rendition{
		server: s,
		unitID: unit.ID,
		frames: frames,
		onDone: onDone,
		cancel: make(chan struct{}),
	}, nil
}

// Stats returns a snapshot of the server counters.
func (s *Server) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		FramesReceived: s.framesReceived,
		FramesSent:     s.framesSent,
		BytesReceived:  s.bytesReceived,
		BytesSent:      s.bytesSent,
		SendErrors:     s.sendErrors,
		PeerKnown:      s.peer != nil,
	}
}

func (s *Server) receiveLoop() {
	defer s.wg.Done()

	buffer := make([]byte, s.config.BufferSize)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		if err := s.conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
			s.logger.Error("failed to set read deadline", slog.String("error", err.Error()))
			continue
		}

		n, remoteAddr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-s.ctx.Done():
				return
			default:
				s.logger.Error("failed to read UDP frame", slog.String("error", err.Error()))
				continue
			}
		}
		if n == 0 {
			continue
		}

		mulaw := make([]byte, n)
		copy(mulaw, buffer[:n])
		s.handleFrame(mulaw, remoteAddr)
	}
}

// handleFrame expands one inbound mu-law frame and hands it to the capture
// callback. The sender becomes the outbound peer.
func (s *Server) handleFrame(mulaw []byte, remoteAddr *net.UDPAddr) {
	if s.recorder != nil {
		s.recorder.AppendInbound(codec.DecodeMuLaw(mulaw))
	}
	pcm := codec.DownlinkToRealtime(mulaw)
	data := codec.SamplesToBytes(pcm)

	s.mu.Lock()
	s.framesReceived++
	s.bytesReceived += uint64(len(mulaw))
	if s.peer == nil || s.peer.String() != remoteAddr.String() {
		s.logger.Info("telephony peer", slog.String("remote_addr", remoteAddr.String()))
		s.peer = remoteAddr
	}
	onAudio := s.onAudio
	s.mu.Unlock()

	if onAudio != nil {
		onAudio(data)
	}
}

// sendFrame transmits one mu-law frame to the current peer.
func (s *Server) sendFrame(frame []byte) error {
	s.mu.Lock()
	peer := s.peer
	s.mu.Unlock()

	if peer == nil {
		return fmt.Errorf("no telephony peer yet")
	}
	if _, err := s.conn.WriteToUDP(frame, peer); err != nil {
		s.mu.Lock()
		s.sendErrors++
		s.mu.Unlock()
		return err
	}
	s.mu.Lock()
	s.framesSent++
	s.bytesSent += uint64(len(frame))
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder.AppendOutbound(codec.DecodeMuLaw(frame))
	}
	return nil
}

// frameInterval is the wall-clock duration of one frame.
func (s *Server) frameInterval() time.Duration {
	// frame bytes == mu-law samples at 8 kHz
	return time.Duration(s.config.FrameBytes) * time.Second / 8000
}

// rendition paces one unit's frames to the peer in real time.
type rendition struct {
	server *Server
	unitID string
	frames [][]byte
	onDone func(err error)

	cancel   chan struct{}
	stopOnce sync.Once
}

func (r *rendition) Play() error {
	go r.stream()
	return nil
}

func (r *rendition) stream() {
	ticker := time.NewTicker(r.server.frameInterval())
	defer ticker.Stop()

	var lastErr error
	for _, frame := range r.frames {
		select {
		case <-r.cancel:
			return
		case <-r.server.ctx.Done():
			return
		case <-ticker.C:
		}
		if err := r.server.sendFrame(frame); err != nil {
			lastErr = err
		}
	}

	select {
	case <-r.cancel:
		return
	default:
	}
	r.onDone(lastErr)
}

func (r *rendition) Stop() error {
	r.stopOnce.Do(func() { close(r.cancel) })
	return nil
}

func (r *rendition) Release() error {
	return nil
}
