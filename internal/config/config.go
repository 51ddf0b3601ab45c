package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/receptionai/voice-bridge/internal/auth"
	"github.com/receptionai/voice-bridge/internal/playback"
	"github.com/receptionai/voice-bridge/internal/realtime"
	"github.com/receptionai/voice-bridge/internal/session"
	"github.com/receptionai/voice-bridge/internal/telephony"
)

// Config represents the complete bridge configuration
type Config struct {
	Telephony TelephonyConfig `yaml:"telephony"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
	Auth      AuthConfig      `yaml:"auth"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Session   SessionConfig   `yaml:"session"`
	HTTP      HTTPConfig      `yaml:"http"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// TelephonyConfig contains the UDP phone leg configuration
type TelephonyConfig struct {
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`
	BufferSize  int    `yaml:"buffer_size"`
	FrameBytes  int    `yaml:"frame_bytes"`
	CaptureDir  string `yaml:"capture_dir"` // empty disables call audio capture
}

// RealtimeConfig contains the realtime websocket configuration
type RealtimeConfig struct {
	URL          string `yaml:"url"`
	DialTimeout  int    `yaml:"dial_timeout"`  // seconds
	WriteTimeout int    `yaml:"write_timeout"` // seconds
}

// AuthConfig contains the credential backend configuration
type AuthConfig struct {
	Endpoint    string `yaml:"endpoint"`
	APIKey      string `yaml:"api_key"`
	WorkspaceID string `yaml:"workspace_id"`
	AgentID     string `yaml:"agent_id"`
	Timeout     int    `yaml:"timeout"` // seconds
	MaxRetries  int    `yaml:"max_retries"`
}

// PlaybackConfig contains playback scheduling parameters
type PlaybackConfig struct {
	SampleRate          int `yaml:"sample_rate"`
	Channels            int `yaml:"channels"`
	FlushThresholdBytes int `yaml:"flush_threshold_bytes"`
	FlushTimeoutMs      int `yaml:"flush_timeout_ms"` // milliseconds
}

// SessionConfig contains reconnect and turn-taking parameters
type SessionConfig struct {
	ReconnectBaseDelayMs int `yaml:"reconnect_base_delay_ms"` // milliseconds
	ReconnectMaxAttempts int `yaml:"reconnect_max_attempts"`
	SpeechStartConfirmMs int `yaml:"speech_start_confirm_ms"` // milliseconds
	SpeechStopConfirmMs  int `yaml:"speech_stop_confirm_ms"`  // milliseconds
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the built-in defaults, suitable as a base for Load.
func Default() *Config {
	return &Config{
		Telephony: TelephonyConfig{
			BindAddress: "0.0.0.0",
			Port:        7078,
			BufferSize:  65536,
			FrameBytes:  160,
		},
		Realtime: RealtimeConfig{
			DialTimeout:  10,
			WriteTimeout: 5,
		},
		Auth: AuthConfig{
			Timeout:    15,
			MaxRetries: 3,
		},
		Playback: PlaybackConfig{
			SampleRate:          24000,
			Channels:            1,
			FlushThresholdBytes: 9600,
			FlushTimeoutMs:      150,
		},
		Session: SessionConfig{
			ReconnectBaseDelayMs: 1000,
			ReconnectMaxAttempts: 5,
			SpeechStartConfirmMs: 100,
			SpeechStopConfirmMs:  500,
		},
		HTTP: HTTPConfig{
			Port:    8080,
			Address: "0.0.0.0",
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file over the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Telephony.Validate(); err != nil {
		return fmt.Errorf("telephony config: %w", err)
	}

	if err := c.Realtime.Validate(); err != nil {
		return fmt.Errorf("realtime config: %w", err)
	}

	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth config: %w", err)
	}

	if err := c.Playback.Validate(); err != nil {
		return fmt.Errorf("playback config: %w", err)
	}

	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates telephony configuration
func (t *TelephonyConfig) Validate() error {
	if t.Port < 0 || t.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", t.Port)
	}

	if t.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if t.BufferSize < 1024 {
		return fmt.Errorf("buffer_size must be at least 1024 bytes, got %d", t.BufferSize)
	}

	if t.FrameBytes < 1 {
		return fmt.Errorf("frame_bytes must be at least 1, got %d", t.FrameBytes)
	}

	return nil
}

// Validate validates realtime configuration
func (r *RealtimeConfig) Validate() error {
	if r.URL == "" {
		return fmt.Errorf("url cannot be empty")
	}

	if r.DialTimeout < 1 {
		return fmt.Errorf("dial_timeout must be at least 1 second, got %d", r.DialTimeout)
	}

	if r.WriteTimeout < 1 {
		return fmt.Errorf("write_timeout must be at least 1 second, got %d", r.WriteTimeout)
	}

	return nil
}

// Validate validates auth configuration
func (a *AuthConfig) Validate() error {
	if a.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if a.WorkspaceID == "" {
		return fmt.Errorf("workspace_id cannot be empty")
	}

	if a.AgentID == "" {
		return fmt.Errorf("agent_id cannot be empty")
	}

	if a.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", a.Timeout)
	}

	if a.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", a.MaxRetries)
	}

	return nil
}

// Validate validates playback configuration
func (p *PlaybackConfig) Validate() error {
	if p.SampleRate != 24000 {
		return fmt.Errorf("sample_rate must be 24000 Hz for the realtime leg, got %d", p.SampleRate)
	}

	if p.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", p.Channels)
	}

	if p.FlushThresholdBytes < 1 {
		return fmt.Errorf("flush_threshold_bytes must be positive, got %d", p.FlushThresholdBytes)
	}

	if p.FlushTimeoutMs < 1 {
		return fmt.Errorf("flush_timeout_ms must be positive, got %d", p.FlushTimeoutMs)
	}

	return nil
}

// Validate validates session configuration
func (s *SessionConfig) Validate() error {
	if s.ReconnectBaseDelayMs < 1 {
		return fmt.Errorf("reconnect_base_delay_ms must be positive, got %d", s.ReconnectBaseDelayMs)
	}

	if s.ReconnectMaxAttempts < 0 {
		return fmt.Errorf("reconnect_max_attempts cannot be negative, got %d", s.ReconnectMaxAttempts)
	}

	if s.SpeechStartConfirmMs < 1 {
		return fmt.Errorf("speech_start_confirm_ms must be positive, got %d", s.SpeechStartConfirmMs)
	}

	if s.SpeechStopConfirmMs < s.SpeechStartConfirmMs {
		return fmt.Errorf("speech_stop_confirm_ms (%d) must not be shorter than speech_start_confirm_ms (%d)",
			s.SpeechStopConfirmMs, s.SpeechStartConfirmMs)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// TelephonyServer returns the telephony server configuration
func (t *TelephonyConfig) TelephonyServer() telephony.Config {
	return telephony.Config{
		BindAddress: t.BindAddress,
		Port:        t.Port,
		BufferSize:  t.BufferSize,
		FrameBytes:  t.FrameBytes,
		CaptureDir:  t.CaptureDir,
	}
}

// Client returns the realtime websocket client configuration
func (r *RealtimeConfig) Client() realtime.ClientConfig {
	return realtime.ClientConfig{
		URL:          r.URL,
		DialTimeout:  time.Duration(r.DialTimeout) * time.Second,
		WriteTimeout: time.Duration(r.WriteTimeout) * time.Second,
	}
}

// Client returns the credential client configuration
func (a *AuthConfig) Client() auth.Config {
	return auth.Config{
		Endpoint:   a.Endpoint,
		APIKey:     a.APIKey,
		Timeout:    time.Duration(a.Timeout) * time.Second,
		MaxRetries: a.MaxRetries,
	}
}

// GrantRequest returns the grant request identifying this deployment
func (a *AuthConfig) GrantRequest() auth.GrantRequest {
	return auth.GrantRequest{
		WorkspaceID: a.WorkspaceID,
		AgentID:     a.AgentID,
	}
}

// Scheduler returns the playback scheduler configuration
func (p *PlaybackConfig) Scheduler() playback.Config {
	return playback.Config{
		SampleRate:     p.SampleRate,
		Channels:       p.Channels,
		FlushThreshold: p.FlushThresholdBytes,
		FlushTimeout:   time.Duration(p.FlushTimeoutMs) * time.Millisecond,
	}
}

// Machine returns the session machine configuration
func (s *SessionConfig) Machine() session.Config {
	return session.Config{
		Reconnect: session.ReconnectConfig{
			BaseDelay:   time.Duration(s.ReconnectBaseDelayMs) * time.Millisecond,
			MaxAttempts: s.ReconnectMaxAttempts,
		},
		Debounce: session.DebounceConfig{
			StartConfirm: time.Duration(s.SpeechStartConfirmMs) * time.Millisecond,
			StopConfirm:  time.Duration(s.SpeechStopConfirmMs) * time.Millisecond,
		},
	}
}
