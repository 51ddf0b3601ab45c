package session

import (
	"sync"
	"time"
)

// TranscriptEntry is one finalized utterance of the conversation.
type TranscriptEntry struct {
	Role string    `json:"role"` // "user" or "assistant"
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Transcript is an append-only record of the current call. Entries are
// appended as transcription events finalize and cleared when the call ends.
type Transcript struct {
	mu      sync.RWMutex
	entries []TranscriptEntry
}

// Append records a finalized utterance.
func (t *Transcript) Append(role, text string) TranscriptEntry {
	entry := TranscriptEntry{Role: role, Text: text, At: time.Now()}
	t.mu.Lock()
	t.entries = append(t.entries, entry)
	t.mu.Unlock()
	return entry
}

// Entries returns a copy of the transcript so far.
func (t *Transcript) Entries() []TranscriptEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]TranscriptEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of entries.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Clear discards all entries.
func (t *Transcript) Clear() {
	t.mu.Lock()
	t.entries = nil
	t.mu.Unlock()
}
