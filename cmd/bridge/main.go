package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/receptionai/voice-bridge/internal/auth"
	"github.com/receptionai/voice-bridge/internal/config"
	"github.com/receptionai/voice-bridge/internal/metrics"
	"github.com/receptionai/voice-bridge/internal/playback"
	"github.com/receptionai/voice-bridge/internal/server"
	"github.com/receptionai/voice-bridge/internal/session"
	"github.com/receptionai/voice-bridge/internal/telephony"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "voice-bridge"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("telephony_port", cfg.Telephony.Port),
		slog.String("bind_address", cfg.Telephony.BindAddress),
		slog.String("realtime_url", cfg.Realtime.URL),
		slog.String("auth_endpoint", cfg.Auth.Endpoint),
		slog.String("workspace_id", cfg.Auth.WorkspaceID),
		slog.String("agent_id", cfg.Auth.AgentID),
		slog.Int("flush_threshold_bytes", cfg.Playback.FlushThresholdBytes),
		slog.Int("reconnect_max_attempts", cfg.Session.ReconnectMaxAttempts),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Initialize credential client
	authClient, err := auth.NewClient(cfg.Auth.Client())
	if err != nil {
		logger.Error("Failed to create credential client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize the telephony leg
	telServer, err := telephony.NewServer(cfg.Telephony.TelephonyServer(), logger)
	if err != nil {
		logger.Error("Failed to create telephony server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize the playback scheduler rendering through the telephony leg
	player, err := playback.NewScheduler(cfg.Playback.Scheduler(), telServer, logger)
	if err != nil {
		logger.Error("Failed to create playback scheduler", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Credential source wrapping the grant request and fetch metrics
	grantRequest := cfg.Auth.GrantRequest()
	creds := session.GrantFunc(func(ctx context.Context) (*auth.SessionGrant, error) {
		start := time.Now()
		grant, err := authClient.FetchGrant(ctx, grantRequest)
		appMetrics.RecordCredentialFetch(time.Since(start).Seconds(), err == nil)
		return grant, err
	})

	dialer := &session.RealtimeDialer{Config: cfg.Realtime.Client(), Logger: logger}

	// Initialize the session machine
	machine, err := session.NewMachine(cfg.Session.Machine(), creds, dialer, telServer, player, logger)
	if err != nil {
		logger.Error("Failed to create session machine", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Wire session events into metrics
	var callMu sync.Mutex
	var callStart time.Time
	machine.SetOnStateChange(func(old, next session.State) {
		appMetrics.RecordStateTransition(old.String(), next.String())
		switch {
		case old == session.StateIdle && next == session.StateConnecting:
			callMu.Lock()
			callStart = time.Now()
			callMu.Unlock()
			appMetrics.RecordCallStarted()
		case old == session.StateClosing && next == session.StateIdle:
			callMu.Lock()
			duration := time.Since(callStart)
			callMu.Unlock()
			appMetrics.RecordCallEnded(duration.Seconds())
		case next == session.StateReconnecting:
			appMetrics.RecordReconnectAttempt()
		case next == session.StateFailed:
			appMetrics.RecordCallFailure()
			appMetrics.RecordReconnectGiveUp()
		}
	})
	machine.SetOnTranscript(func(entry session.TranscriptEntry) {
		appMetrics.RecordTranscriptEntry(entry.Role)
	})
	machine.SetOnUserSpeech(func(speaking bool) {
		if speaking {
			appMetrics.RecordSpeechStart()
		} else {
			appMetrics.RecordSpeechStop()
		}
	})
	machine.SetOnBargeIn(appMetrics.RecordBargeIn)

	// Initialize HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, machine, player, telServer, authClient, appMetrics)
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	// Start the telephony leg
	if err := telServer.Listen(); err != nil {
		logger.Error("Failed to start telephony server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start HTTP server (if enabled)
	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("telephony_address", fmt.Sprintf("%s:%d", cfg.Telephony.BindAddress, cfg.Telephony.Port)),
	)

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// End any active call deliberately so no reconnect fires during shutdown
	machine.EndCall()

	// Stop the telephony leg
	if err := telServer.Close(); err != nil {
		logger.Error("Error stopping telephony server", slog.String("error", err.Error()))
	}

	// Log final statistics
	stats := machine.Stats()
	telStats := telServer.Stats()
	logger.Info("Final bridge statistics",
		slog.Uint64("barge_ins", stats.BargeIns),
		slog.Uint64("reconnects", stats.Reconnects),
		slog.Uint64("audio_chunks_sent", stats.AudioChunksSent),
		slog.Uint64("frames_received", telStats.FramesReceived),
		slog.Uint64("frames_sent", telStats.FramesSent),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
