package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/receptionai/voice-bridge/internal/auth"
	"github.com/receptionai/voice-bridge/internal/config"
	"github.com/receptionai/voice-bridge/internal/metrics"
	"github.com/receptionai/voice-bridge/internal/playback"
	"github.com/receptionai/voice-bridge/internal/session"
	"github.com/receptionai/voice-bridge/internal/telephony"
)

// HTTPServer provides HTTP API endpoints for call control and monitoring
type HTTPServer struct {
	server     *http.Server
	logger     *slog.Logger
	config     *config.Config
	machine    *session.Machine
	player     *playback.Scheduler
	telephony  *telephony.Server
	authClient *auth.Client
	metrics    *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger, appConfig *config.Config,
	machine *session.Machine, player *playback.Scheduler, tel *telephony.Server,
	authClient *auth.Client, m *metrics.Metrics) *HTTPServer {

	if logger == nil {
		logger = slog.Default()
	}
	h := &HTTPServer{
		logger:     logger,
		config:     appConfig,
		machine:    machine,
		player:     player,
		telephony:  tel,
		authClient: authClient,
		metrics:    m,
		startTime:  time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Call control endpoints
	mux.HandleFunc("/call/start", h.withMetrics("/call/start", h.handleCallStart))
	mux.HandleFunc("/call/end", h.withMetrics("/call/end", h.handleCallEnd))
	mux.HandleFunc("/call/mute", h.withMetrics("/call/mute", h.handleCallMute))

	// Transcript of the active call
	mux.HandleFunc("/transcript", h.withMetrics("/transcript", h.handleTranscript))

	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Configuration endpoint
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Statistics endpoint
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)
		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("stopping HTTP API server")
	return h.server.Shutdown(ctx)
}

// handleCallStart implements the POST /call/start endpoint
func (h *HTTPServer) handleCallStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	if err := h.machine.StartCall(ctx); err != nil {
		h.logger.Warn("call start rejected", slog.String("error", err.Error()))
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": err.Error(),
			"state": h.machine.State().String(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"state": h.machine.State().String(),
	})
}

// handleCallEnd implements the POST /call/end endpoint
func (h *HTTPServer) handleCallEnd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.machine.EndCall()
	writeJSON(w, http.StatusOK, map[string]any{
		"state": h.machine.State().String(),
	})
}

// handleCallMute implements the POST /call/mute endpoint
func (h *HTTPServer) handleCallMute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Muted bool `json:"muted"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	h.machine.SetMuted(body.Muted)
	writeJSON(w, http.StatusOK, map[string]any{
		"muted": h.machine.Muted(),
	})
}

// handleTranscript implements the GET /transcript endpoint
func (h *HTTPServer) handleTranscript(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	entries := h.machine.Transcript()
	writeJSON(w, http.StatusOK, map[string]any{
		"total_entries": len(entries),
		"timestamp":     time.Now().UTC(),
		"entries":       entries,
	})
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)
	sessionStats := h.machine.Stats()
	telephonyStats := h.telephony.Stats()

	health := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]any{
			"name":    "voice-bridge",
			"version": "1.0.0",
		},
		"components": map[string]any{
			"session": map[string]any{
				"state":   sessionStats.State,
				"call_id": sessionStats.CallID,
			},
			"telephony": map[string]any{
				"status":          "running",
				"peer_known":      telephonyStats.PeerKnown,
				"frames_received": telephonyStats.FramesReceived,
				"frames_sent":     telephonyStats.FramesSent,
			},
		},
	}

	writeJSON(w, http.StatusOK, health)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Return sanitized configuration (remove sensitive data)
	sanitizedConfig := map[string]any{
		"telephony": map[string]any{
			"bind_address": h.config.Telephony.BindAddress,
			"port":         h.config.Telephony.Port,
			"buffer_size":  h.config.Telephony.BufferSize,
			"frame_bytes":  h.config.Telephony.FrameBytes,
			"capture_dir":  h.config.Telephony.CaptureDir,
		},
		"realtime": map[string]any{
			"url":           h.config.Realtime.URL,
			"dial_timeout":  h.config.Realtime.DialTimeout,
			"write_timeout": h.config.Realtime.WriteTimeout,
		},
		"auth": map[string]any{
			"endpoint":     h.config.Auth.Endpoint,
			"workspace_id": h.config.Auth.WorkspaceID,
			"agent_id":     h.config.Auth.AgentID,
			"timeout":      h.config.Auth.Timeout,
			"max_retries":  h.config.Auth.MaxRetries,
			// Note: API key is intentionally omitted for security
		},
		"playback": map[string]any{
			"sample_rate":           h.config.Playback.SampleRate,
			"channels":              h.config.Playback.Channels,
			"flush_threshold_bytes": h.config.Playback.FlushThresholdBytes,
			"flush_timeout_ms":      h.config.Playback.FlushTimeoutMs,
		},
		"session": map[string]any{
			"reconnect_base_delay_ms": h.config.Session.ReconnectBaseDelayMs,
			"reconnect_max_attempts":  h.config.Session.ReconnectMaxAttempts,
			"speech_start_confirm_ms": h.config.Session.SpeechStartConfirmMs,
			"speech_stop_confirm_ms":  h.config.Session.SpeechStopConfirmMs,
		},
		"logging": map[string]any{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	writeJSON(w, http.StatusOK, sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)

	stats := map[string]any{
		"uptime":      uptime.String(),
		"timestamp":   time.Now().UTC(),
		"session":     h.machine.Stats(),
		"playback":    h.player.Stats(),
		"telephony":   h.telephony.Stats(),
		"credentials": h.authClient.GetStats(),
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]any{
		"service": "Voice Bridge",
		"version": "1.0.0",
		"endpoints": map[string]any{
			"GET /":            "API documentation",
			"POST /call/start": "Start a call",
			"POST /call/end":   "End the active call",
			"POST /call/mute":  "Mute or unmute caller audio transmission",
			"GET /transcript":  "Transcript of the active call",
			"GET /health":      "Service health check",
			"GET /config":      "Get service configuration",
			"GET /stats":       "Get service statistics",
			"GET /metrics":     "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, http.StatusOK, apiDoc)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
