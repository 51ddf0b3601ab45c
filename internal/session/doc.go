// Package session drives the voice call lifecycle: credential fetch,
// realtime connection, capture and playback wiring, reconnection with
// exponential backoff, turn-taking debounce and barge-in.
package session
