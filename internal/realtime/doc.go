// Package realtime implements the JSON message vocabulary and websocket
// client for the realtime voice service. Outbound messages configure the
// session and stream caller audio, inbound events carry model audio,
// transcripts and turn-detection signals.
package realtime
