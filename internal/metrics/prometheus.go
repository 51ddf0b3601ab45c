package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the voice bridge
type Metrics struct {
	// Call lifecycle metrics
	CallsStarted  prometheus.Counter
	CallsEnded    prometheus.Counter
	CallFailures  prometheus.Counter
	CallDuration  prometheus.Histogram
	SessionStates *prometheus.CounterVec

	// Reconnect metrics
	ReconnectAttempts prometheus.Counter
	ReconnectGiveUps  prometheus.Counter

	// Audio transport metrics
	AudioBytesToModel   prometheus.Counter
	AudioBytesFromModel prometheus.Counter
	TelephonyFramesIn   prometheus.Counter
	TelephonyFramesOut  prometheus.Counter

	// Playback metrics
	PlaybackUnitsFlushed *prometheus.CounterVec
	PlaybackUnitsPlayed  prometheus.Counter
	PlaybackUnitBytes    prometheus.Histogram
	BargeIns             prometheus.Counter

	// Turn-taking metrics
	SpeechStarts prometheus.Counter
	SpeechStops  prometheus.Counter

	// Credential metrics
	CredentialFetches  prometheus.Counter
	CredentialFailures prometheus.Counter
	CredentialDuration prometheus.Histogram

	// Transcript metrics
	TranscriptEntries *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Call lifecycle metrics
		CallsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bridge_calls_started_total",
			Help: "Total number of calls started",
		}),
		CallsEnded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bridge_calls_ended_total",
			Help: "Total number of calls ended deliberately",
		}),
		CallFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bridge_call_failures_total",
			Help: "Total number of calls abandoned after exhausted reconnects",
		}),
		CallDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "bridge_call_duration_seconds",
			Help:    "Duration of calls in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		}),
		SessionStates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_session_state_transitions_total",
			Help: "Total number of session state transitions",
		}, []string{"from", "to"}),

		// Reconnect metrics
		ReconnectAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bridge_reconnect_attempts_total",
			Help: "Total number of realtime reconnect attempts",
		}),
		ReconnectGiveUps: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bridge_reconnect_give_ups_total",
			Help: "Total number of times reconnection was abandoned",
		}),

		// Audio transport metrics
		AudioBytesToModel: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bridge_audio_bytes_to_model_total",
			Help: "Total caller audio bytes sent to the realtime service",
		}),
		AudioBytesFromModel: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bridge_audio_bytes_from_model_total",
			Help: "Total agent audio bytes received from the realtime service",
		}),
		TelephonyFramesIn: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bridge_telephony_frames_received_total",
			Help: "Total mu-law frames received from the telephony peer",
		}),
		TelephonyFramesOut: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bridge_telephony_frames_sent_total",
			Help: "Total mu-law frames sent to the telephony peer",
		}),

		// Playback metrics
		PlaybackUnitsFlushed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_playback_units_flushed_total",
			Help: "Total playback units flushed, by trigger",
		}, []string{"trigger"}),
		PlaybackUnitsPlayed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bridge_playback_units_played_total",
			Help: "Total playback units rendered to completion",
		}),
		PlaybackUnitBytes: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "bridge_playback_unit_bytes",
			Help:    "Size of playback units in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 10), // 1KB to ~1MB
		}),
		BargeIns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bridge_barge_ins_total",
			Help: "Total number of playback interruptions by caller speech",
		}),

		// Turn-taking metrics
		SpeechStarts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bridge_speech_starts_total",
			Help: "Total confirmed caller speech starts",
		}),
		SpeechStops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bridge_speech_stops_total",
			Help: "Total confirmed caller speech stops",
		}),

		// Credential metrics
		CredentialFetches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bridge_credential_fetches_total",
			Help: "Total session grant fetches",
		}),
		CredentialFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bridge_credential_failures_total",
			Help: "Total failed session grant fetches",
		}),
		CredentialDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "bridge_credential_fetch_duration_seconds",
			Help:    "Duration of session grant fetches",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),

		// Transcript metrics
		TranscriptEntries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_transcript_entries_total",
			Help: "Total finalized transcript entries, by role",
		}, []string{"role"}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bridge_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// RecordCallStarted increments the calls started counter
func (m *Metrics) RecordCallStarted() {
	m.CallsStarted.Inc()
}

// RecordCallEnded records a deliberate hangup and the call duration
func (m *Metrics) RecordCallEnded(durationSeconds float64) {
	m.CallsEnded.Inc()
	m.CallDuration.Observe(durationSeconds)
}

// RecordCallFailure increments the call failures counter
func (m *Metrics) RecordCallFailure() {
	m.CallFailures.Inc()
}

// RecordStateTransition records one session state transition
func (m *Metrics) RecordStateTransition(from, to string) {
	m.SessionStates.WithLabelValues(from, to).Inc()
}

// RecordReconnectAttempt increments the reconnect attempts counter
func (m *Metrics) RecordReconnectAttempt() {
	m.ReconnectAttempts.Inc()
}

// RecordReconnectGiveUp increments the give-ups counter
func (m *Metrics) RecordReconnectGiveUp() {
	m.ReconnectGiveUps.Inc()
}

// RecordAudioToModel adds caller audio bytes sent upstream
func (m *Metrics) RecordAudioToModel(bytes int) {
	m.AudioBytesToModel.Add(float64(bytes))
}

// RecordAudioFromModel adds agent audio bytes received downstream
func (m *Metrics) RecordAudioFromModel(bytes int) {
	m.AudioBytesFromModel.Add(float64(bytes))
}

// RecordTelephonyFrameIn increments the inbound frame counter
func (m *Metrics) RecordTelephonyFrameIn() {
	m.TelephonyFramesIn.Inc()
}

// RecordTelephonyFrameOut increments the outbound frame counter
func (m *Metrics) RecordTelephonyFrameOut() {
	m.TelephonyFramesOut.Inc()
}

// RecordUnitFlushed records a flushed playback unit and its trigger
// ("threshold" or "timer")
func (m *Metrics) RecordUnitFlushed(trigger string, sizeBytes int) {
	m.PlaybackUnitsFlushed.WithLabelValues(trigger).Inc()
	m.PlaybackUnitBytes.Observe(float64(sizeBytes))
}

// RecordUnitPlayed increments the units played counter
func (m *Metrics) RecordUnitPlayed() {
	m.PlaybackUnitsPlayed.Inc()
}

// RecordBargeIn increments the barge-in counter
func (m *Metrics) RecordBargeIn() {
	m.BargeIns.Inc()
}

// RecordSpeechStart increments the confirmed speech starts counter
func (m *Metrics) RecordSpeechStart() {
	m.SpeechStarts.Inc()
}

// RecordSpeechStop increments the confirmed speech stops counter
func (m *Metrics) RecordSpeechStop() {
	m.SpeechStops.Inc()
}

// RecordCredentialFetch records a grant fetch and its outcome
func (m *Metrics) RecordCredentialFetch(durationSeconds float64, success bool) {
	m.CredentialFetches.Inc()
	m.CredentialDuration.Observe(durationSeconds)
	if !success {
		m.CredentialFailures.Inc()
	}
}

// RecordTranscriptEntry records a finalized transcript entry
func (m *Metrics) RecordTranscriptEntry(role string) {
	m.TranscriptEntries.WithLabelValues(role).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
