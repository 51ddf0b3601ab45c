package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/receptionai/voice-bridge/internal/auth"
	"github.com/receptionai/voice-bridge/internal/realtime"
)

// State is the lifecycle state of the voice session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateReconnecting
	StateFailed
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Conn is the subset of the realtime client the session drives.
type Conn interface {
	SendSessionUpdate(settings realtime.SessionSettings) error
	SendAudio(pcm []byte) error
	RequestGreeting(text string) error
	Close() error
}

// Dialer opens realtime connections. One Dial call yields one single-use
// connection delivering its events to the given handler.
type Dialer interface {
	Dial(ctx context.Context, token string, handler realtime.Handler) (Conn, error)
}

// CredentialSource yields ephemeral session grants.
type CredentialSource interface {
	FetchGrant(ctx context.Context) (*auth.SessionGrant, error)
}

// Capture produces caller audio as 24 kHz PCM-16 chunks. Capture keeps
// running while the session is muted; muting only stops transmission.
type Capture interface {
	Start(onChunk func(pcm []byte)) error
	Stop() error
}

// Player is the playback scheduler surface the session drives.
type Player interface {
	Enqueue(chunk []byte)
	Flush()
	Interrupt()
	Reset()
	Destroy()
	SetOnSpeakingChange(fn func(speaking bool))
}

// ReconnectConfig controls recovery from unexpected connection loss.
type ReconnectConfig struct {
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// DefaultReconnectConfig returns the reconnect defaults: 1 s base delay
// doubling per attempt, giving up after 5.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		BaseDelay:   time.Second,
		MaxAttempts: 5,
	}
}

// Validate checks the configuration for invalid values.
func (c ReconnectConfig) Validate() error {
	if c.BaseDelay <= 0 {
		return fmt.Errorf("base_delay must be positive, got %v", c.BaseDelay)
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts must not be negative, got %d", c.MaxAttempts)
	}
	return nil
}

// Config bundles the session machine settings.
type Config struct {
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Debounce  DebounceConfig  `yaml:"debounce"`
}

// DefaultConfig returns the session defaults.
func DefaultConfig() Config {
	return Config{
		Reconnect: DefaultReconnectConfig(),
		Debounce:  DefaultDebounceConfig(),
	}
}

// Validate checks the configuration for invalid values.
func (c Config) Validate() error {
	if err := c.Reconnect.Validate(); err != nil {
		return err
	}
	return c.Debounce.Validate()
}

// Stats is a snapshot of the session machine.
type Stats struct {
	CallID            string `json:"call_id,omitempty"`
	State             string `json:"state"`
	Muted             bool   `json:"muted"`
	UserSpeaking      bool   `json:"user_speaking"`
	AgentSpeaking     bool   `json:"agent_speaking"`
	ReconnectAttempts int    `json:"reconnect_attempts"`
	TranscriptLength  int    `json:"transcript_length"`
	BargeIns          uint64 `json:"barge_ins"`
	Reconnects        uint64 `json:"reconnects"`
	AudioChunksSent   uint64 `json:"audio_chunks_sent"`
	AudioChunksPlayed uint64 `json:"audio_chunks_played"`
}

// Machine is the voice session state machine. One machine handles one call
// at a time and is reused across calls. All methods are safe for concurrent
// use.
type Machine struct {
	config  Config
	creds   CredentialSource
	dialer  Dialer
	capture Capture
	player  Player
	logger  *slog.Logger

	debouncer *Debouncer

	mu            sync.Mutex
	state         State
	ending        bool
	muted         bool
	agentSpeaking bool
	callID        string
	attempts      int
	conn          Conn
	grant         *auth.SessionGrant

	// connGen invalidates handlers of superseded connections, timerGen
	// invalidates pending reconnect timers.
	connGen  uint64
	timerGen uint64

	transcript Transcript

	bargeIns    uint64
	reconnects  uint64
	chunksSent  uint64
	chunksRecvd uint64

	onStateChange func(old, new State)
	onTranscript  func(entry TranscriptEntry)
	onUserSpeech  func(speaking bool)
	onBargeIn     func()
}

// NewMachine creates a session machine.
func NewMachine(config Config, creds CredentialSource, dialer Dialer, capture Capture, player Player, logger *slog.Logger) (*Machine, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}
	if creds == nil || dialer == nil || capture == nil || player == nil {
		return nil, fmt.Errorf("credential source, dialer, capture and player are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Machine{
		config:  config,
		creds:   creds,
		dialer:  dialer,
		capture: capture,
		player:  player,
		logger:  logger,
		state:   StateIdle,
	}

	deb, err := NewDebouncer(config.Debounce, m.onUserSpeechStart, m.onUserSpeechStop)
	if err != nil {
		return nil, err
	}
	m.debouncer = deb

	// The scheduler reports when agent audio starts and stops rendering;
	// barge-in only fires while it does.
	player.SetOnSpeakingChange(m.onAgentSpeakingChange)
	return m, nil
}

// SetOnStateChange registers the callback fired on every state transition,
// invoked without internal locks held.
func (m *Machine) SetOnStateChange(fn func(old, new State)) {
	m.mu.Lock()
	m.onStateChange = fn
	m.mu.Unlock()
}

// SetOnTranscript registers the callback fired for each finalized utterance.
func (m *Machine) SetOnTranscript(fn func(entry TranscriptEntry)) {
	m.mu.Lock()
	m.onTranscript = fn
	m.mu.Unlock()
}

// SetOnUserSpeech registers the callback fired on confirmed caller speech
// edges.
func (m *Machine) SetOnUserSpeech(fn func(speaking bool)) {
	m.mu.Lock()
	m.onUserSpeech = fn
	m.mu.Unlock()
}

// SetOnBargeIn registers the callback fired when confirmed caller speech
// interrupts agent playback.
func (m *Machine) SetOnBargeIn(fn func()) {
	m.mu.Lock()
	m.onBargeIn = fn
	m.mu.Unlock()
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transcript returns a copy of the current call transcript.
func (m *Machine) Transcript() []TranscriptEntry {
	return m.transcript.Entries()
}

// StartCall fetches a session grant, connects to the realtime service and
// starts streaming. It fails unless the machine is idle, and any partial
// setup is rolled back on error.
func (m *Machine) StartCall(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateIdle {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("cannot start call in state %s", state)
	}
	m.ending = false
	m.callID = uuid.New().String()
	callID := m.callID
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	m.logger.Info("starting call", slog.String("call_id", callID))

	grant, err := m.creds.FetchGrant(ctx)
	if err != nil {
		m.rollbackStart()
		return fmt.Errorf("fetch session grant: %w", err)
	}

	m.player.Reset()
	m.debouncer.Reset()

	conn, gen, err := m.connect(ctx, grant, true)
	if err != nil {
		m.rollbackStart()
		return fmt.Errorf("connect realtime session: %w", err)
	}

	if err := m.capture.Start(m.onCaptureChunk); err != nil {
		m.mu.Lock()
		if m.connGen == gen {
			// Invalidate the handler so the close we are about to do is
			// not mistaken for a connection loss.
			m.connGen++
			m.conn = nil
		}
		m.mu.Unlock()
		conn.Close()
		m.rollbackStart()
		return fmt.Errorf("start capture: %w", err)
	}

	m.logger.Info("call open", slog.String("call_id", callID))
	return nil
}

// EndCall shuts the session down deliberately. Idempotent; safe to call in
// any state. No reconnection is attempted afterwards.
func (m *Machine) EndCall() {
	m.mu.Lock()
	if m.state == StateIdle {
		m.mu.Unlock()
		return
	}
	m.ending = true
	m.timerGen++
	m.connGen++
	conn := m.conn
	m.conn = nil
	m.grant = nil
	m.attempts = 0
	callID := m.callID
	m.setStateLocked(StateClosing)
	m.mu.Unlock()

	m.capture.Stop()
	if conn != nil {
		conn.Close()
	}
	m.player.Destroy()
	m.debouncer.Reset()
	m.transcript.Clear()

	m.mu.Lock()
	m.muted = false
	m.callID = ""
	m.setStateLocked(StateIdle)
	m.mu.Unlock()

	m.logger.Info("call ended", slog.String("call_id", callID))
}

// SetMuted stops or resumes transmission of caller audio. Capture keeps
// running so the flag flips with no device latency.
func (m *Machine) SetMuted(muted bool) {
	m.mu.Lock()
	m.muted = muted
	m.mu.Unlock()
}

// Muted reports whether transmission is muted.
func (m *Machine) Muted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

// Stats returns a snapshot of the session machine.
func (m *Machine) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		CallID:            m.callID,
		State:             m.state.String(),
		Muted:             m.muted,
		UserSpeaking:      m.debouncer.Speaking(),
		AgentSpeaking:     m.agentSpeaking,
		ReconnectAttempts: m.attempts,
		TranscriptLength:  m.transcript.Len(),
		BargeIns:          m.bargeIns,
		Reconnects:        m.reconnects,
		AudioChunksSent:   m.chunksSent,
		AudioChunksPlayed: m.chunksRecvd,
	}
}

// connect dials with the given grant and commits the connection. The greet
// flag requests the opening response on fresh calls but not on reconnects.
func (m *Machine) connect(ctx context.Context, grant *auth.SessionGrant, greet bool) (Conn, uint64, error) {
	m.mu.Lock()
	m.connGen++
	gen := m.connGen
	m.mu.Unlock()

	handler := &connHandler{machine: m, gen: gen}
	conn, err := m.dialer.Dial(ctx, grant.Token, handler)
	if err != nil {
		return nil, 0, err
	}

	m.mu.Lock()
	if m.ending || gen != m.connGen {
		m.mu.Unlock()
		conn.Close()
		return nil, 0, fmt.Errorf("session ended during connect")
	}
	m.conn = conn
	m.grant = grant
	m.attempts = 0
	m.setStateLocked(StateOpen)
	m.mu.Unlock()

	settings := realtime.DefaultSessionSettings(grant.Agent.Instructions, grant.Agent.Voice)
	if len(grant.Agent.Tools) > 0 {
		var tools []realtime.Tool
		if err := unmarshalTools(grant.Agent.Tools, &tools); err != nil {
			m.logger.Warn("ignoring undecodable agent tools", slog.String("error", err.Error()))
		} else {
			settings.Tools = tools
		}
	}
	if err := conn.SendSessionUpdate(settings); err != nil {
		m.logger.Warn("failed to send session settings", slog.String("error", err.Error()))
	}

	if greet {
		prompt := "The caller just connected. Greet them."
		if g := grant.Agent.InitialGreeting; g != "" {
			prompt = fmt.Sprintf("The caller just connected. Open with this greeting: %s", g)
		}
		if err := conn.RequestGreeting(prompt); err != nil {
			m.logger.Warn("failed to request greeting", slog.String("error", err.Error()))
		}
	}
	return conn, gen, nil
}

// rollbackStart returns a failed StartCall to idle.
func (m *Machine) rollbackStart() {
	m.mu.Lock()
	callID := m.callID
	m.callID = ""
	m.conn = nil
	m.grant = nil
	m.setStateLocked(StateIdle)
	m.mu.Unlock()
	m.logger.Warn("call start failed, rolled back", slog.String("call_id", callID))
}

// onCaptureChunk forwards caller audio to the realtime service unless muted
// or disconnected.
func (m *Machine) onCaptureChunk(pcm []byte) {
	m.mu.Lock()
	conn := m.conn
	blocked := m.muted || m.state != StateOpen
	if !blocked {
		m.chunksSent++
	}
	m.mu.Unlock()

	if blocked || conn == nil {
		return
	}
	if err := conn.SendAudio(pcm); err != nil {
		m.logger.Warn("failed to send caller audio", slog.String("error", err.Error()))
	}
}

// onAgentSpeakingChange tracks the playback scheduler's speaking flag.
func (m *Machine) onAgentSpeakingChange(speaking bool) {
	m.mu.Lock()
	m.agentSpeaking = speaking
	m.mu.Unlock()
}

// onUserSpeechStart interrupts playback when the caller talks over the
// agent. While the agent is silent the confirmed start is not a barge-in,
// and audio still accumulating toward the flush threshold keeps playing.
func (m *Machine) onUserSpeechStart() {
	m.mu.Lock()
	interrupting := m.agentSpeaking
	if interrupting {
		m.bargeIns++
	}
	speechCb := m.onUserSpeech
	bargeCb := m.onBargeIn
	m.mu.Unlock()

	if speechCb != nil {
		speechCb(true)
	}
	if !interrupting {
		m.logger.Debug("user speech confirmed, agent silent")
		return
	}
	m.logger.Debug("user speech confirmed, interrupting playback")
	m.player.Interrupt()
	if bargeCb != nil {
		bargeCb()
	}
}

func (m *Machine) onUserSpeechStop() {
	m.mu.Lock()
	cb := m.onUserSpeech
	m.mu.Unlock()
	if cb != nil {
		cb(false)
	}
	m.logger.Debug("user speech ended")
}

// handleEvent dispatches one decoded server event. Events carry the
// generation of the connection that produced them; superseded connections
// are dropped here.
func (m *Machine) handleEvent(gen uint64, event realtime.ServerEvent) {
	m.mu.Lock()
	stale := gen != m.connGen
	m.mu.Unlock()
	if stale {
		return
	}

	switch event.Kind {
	case realtime.KindAudioDelta:
		m.mu.Lock()
		m.chunksRecvd++
		m.mu.Unlock()
		m.player.Enqueue(event.Audio)
	case realtime.KindResponseDone:
		m.player.Flush()
	case realtime.KindAssistantTranscriptDone:
		m.appendTranscript(gen, "assistant", event.Transcript)
	case realtime.KindUserTranscriptDone:
		m.appendTranscript(gen, "user", event.Transcript)
	case realtime.KindSpeechStarted:
		m.debouncer.RawStart()
	case realtime.KindSpeechStopped:
		m.debouncer.RawStop()
	case realtime.KindError:
		m.logger.Error("realtime service error", slog.String("message", event.ErrMessage))
	case realtime.KindSessionCreated, realtime.KindSessionUpdated:
		m.logger.Debug("session acknowledged", slog.String("type", event.Type))
	}
}

// appendTranscript records one finalized utterance. The generation is
// re-checked under the lock so an event racing EndCall cannot land after
// the transcript is cleared and leak into the next call.
func (m *Machine) appendTranscript(gen uint64, role, text string) {
	if text == "" {
		return
	}
	m.mu.Lock()
	if gen != m.connGen {
		m.mu.Unlock()
		return
	}
	entry := m.transcript.Append(role, text)
	cb := m.onTranscript
	m.mu.Unlock()
	if cb != nil {
		cb(entry)
	}
	m.logger.Info("transcript", slog.String("role", role), slog.String("text", text))
}

// handleClosed reacts to the connection ending. Deliberate hangups go back
// to idle elsewhere; anything else schedules a reconnect.
func (m *Machine) handleClosed(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.connGen || m.ending {
		m.mu.Unlock()
		return
	}
	m.conn = nil

	if err != nil {
		m.logger.Warn("realtime connection lost", slog.String("error", err.Error()))
	} else {
		m.logger.Warn("realtime connection closed by server")
	}
	m.scheduleReconnectLocked()
	m.mu.Unlock()
}

// scheduleReconnectLocked arms the next reconnect attempt or gives up.
// Caller holds m.mu.
func (m *Machine) scheduleReconnectLocked() {
	if m.attempts >= m.config.Reconnect.MaxAttempts {
		m.logger.Error("reconnect attempts exhausted",
			slog.Int("attempts", m.attempts),
			slog.String("call_id", m.callID))
		m.setStateLocked(StateFailed)
		return
	}

	delay := m.config.Reconnect.BaseDelay << m.attempts
	m.attempts++
	m.setStateLocked(StateReconnecting)

	m.timerGen++
	gen := m.timerGen
	m.logger.Info("scheduling reconnect",
		slog.Int("attempt", m.attempts),
		slog.Duration("delay", delay))

	time.AfterFunc(delay, func() {
		m.reconnect(gen)
	})
}

func (m *Machine) reconnect(timerGen uint64) {
	m.mu.Lock()
	if timerGen != m.timerGen || m.ending || m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	m.reconnects++
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Grants are single use, so every reconnect needs a fresh one.
	grant, err := m.creds.FetchGrant(ctx)
	if err != nil {
		m.logger.Warn("reconnect credential fetch failed", slog.String("error", err.Error()))
		m.mu.Lock()
		if !m.ending && m.state == StateReconnecting {
			m.scheduleReconnectLocked()
		}
		m.mu.Unlock()
		return
	}

	if _, _, err := m.connect(ctx, grant, false); err != nil {
		m.logger.Warn("reconnect failed", slog.String("error", err.Error()))
		m.mu.Lock()
		if !m.ending && m.state == StateReconnecting {
			m.scheduleReconnectLocked()
		}
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	callID := m.callID
	m.mu.Unlock()
	m.logger.Info("reconnected", slog.String("call_id", callID))
}

// setStateLocked transitions state and fires the notification outside the
// lock. Caller holds m.mu.
func (m *Machine) setStateLocked(next State) {
	if m.state == next {
		return
	}
	old := m.state
	m.state = next
	cb := m.onStateChange
	m.logger.Debug("session state",
		slog.String("from", old.String()),
		slog.String("to", next.String()))
	if cb != nil {
		go cb(old, next)
	}
}

func unmarshalTools(raw json.RawMessage, tools *[]realtime.Tool) error {
	return json.Unmarshal(raw, tools)
}

// connHandler binds one realtime connection to the machine. The generation
// check drops events from superseded connections.
type connHandler struct {
	machine *Machine
	gen     uint64
}

func (h *connHandler) OnEvent(event realtime.ServerEvent) {
	h.machine.handleEvent(h.gen, event)
}

func (h *connHandler) OnClosed(err error) {
	h.machine.handleClosed(h.gen, err)
}
