package realtime

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Tool describes a function the model may call during the conversation.
type Tool struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// TurnDetection configures server-side voice activity detection.
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
}

// Transcription configures transcription of caller audio. Without it the
// service never emits user transcript events.
type Transcription struct {
	Model string `json:"model"`
}

// SessionSettings is the session block of a session.update message.
type SessionSettings struct {
	Modalities         []string       `json:"modalities"`
	Instructions       string         `json:"instructions,omitempty"`
	Voice              string         `json:"voice,omitempty"`
	InputAudioFormat   string         `json:"input_audio_format"`
	OutputAudioFormat  string         `json:"output_audio_format"`
	InputTranscription *Transcription `json:"input_audio_transcription,omitempty"`
	TurnDetection      *TurnDetection `json:"turn_detection,omitempty"`
	Tools              []Tool         `json:"tools,omitempty"`
}

// DefaultSessionSettings returns session settings for a PCM-16 voice call
// with server-side turn detection and caller transcription.
func DefaultSessionSettings(instructions, voice string) SessionSettings {
	return SessionSettings{
		Modalities:         []string{"text", "audio"},
		Instructions:       instructions,
		Voice:              voice,
		InputAudioFormat:   "pcm16",
		OutputAudioFormat:  "pcm16",
		InputTranscription: &Transcription{Model: "whisper-1"},
		TurnDetection:      &TurnDetection{Type: "server_vad"},
	}
}

type sessionUpdateMessage struct {
	Type    string          `json:"type"`
	Session SessionSettings `json:"session"`
}

type inputAudioAppendMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type conversationItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type conversationItemCreateMessage struct {
	Type string           `json:"type"`
	Item conversationItem `json:"item"`
}

type responseCreateMessage struct {
	Type string `json:"type"`
}

// MarshalSessionUpdate builds a session.update message.
func MarshalSessionUpdate(settings SessionSettings) ([]byte, error) {
	return json.Marshal(sessionUpdateMessage{Type: "session.update", Session: settings})
}

// MarshalInputAudioAppend builds an input_audio_buffer.append message with
// the PCM-16 payload base64 encoded.
func MarshalInputAudioAppend(pcm []byte) ([]byte, error) {
	return json.Marshal(inputAudioAppendMessage{
		Type:  "input_audio_buffer.append",
		Audio: base64.StdEncoding.EncodeToString(pcm),
	})
}

// MarshalUserMessage builds a conversation.item.create message injecting a
// user text turn, used to trigger the initial greeting.
func MarshalUserMessage(text string) ([]byte, error) {
	return json.Marshal(conversationItemCreateMessage{
		Type: "conversation.item.create",
		Item: conversationItem{
			Type:    "message",
			Role:    "user",
			Content: []contentPart{{Type: "input_text", Text: text}},
		},
	})
}

// MarshalResponseCreate builds a response.create message asking the model to
// respond to the conversation so far.
func MarshalResponseCreate() ([]byte, error) {
	return json.Marshal(responseCreateMessage{Type: "response.create"})
}

// EventKind classifies inbound server events.
type EventKind int

const (
	// KindUnknown marks event types this client does not handle. Unknown
	// events are ignored, never treated as errors.
	KindUnknown EventKind = iota
	KindSessionCreated
	KindSessionUpdated
	KindAudioDelta
	KindAssistantTranscriptDone
	KindUserTranscriptDone
	KindSpeechStarted
	KindSpeechStopped
	KindResponseDone
	KindError
)

// String returns the kind name for logging.
func (k EventKind) String() string {
	switch k {
	case KindSessionCreated:
		return "session_created"
	case KindSessionUpdated:
		return "session_updated"
	case KindAudioDelta:
		return "audio_delta"
	case KindAssistantTranscriptDone:
		return "assistant_transcript_done"
	case KindUserTranscriptDone:
		return "user_transcript_done"
	case KindSpeechStarted:
		return "speech_started"
	case KindSpeechStopped:
		return "speech_stopped"
	case KindResponseDone:
		return "response_done"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// ServerEvent is a decoded inbound message. Only the fields relevant to the
// event kind are populated.
type ServerEvent struct {
	Kind       EventKind
	Type       string
	Audio      []byte
	Transcript string
	ErrMessage string
}

type rawServerEvent struct {
	Type       string `json:"type"`
	Delta      string `json:"delta"`
	Transcript string `json:"transcript"`
	Error      struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseServerEvent decodes one inbound JSON message. Unrecognised types
// yield KindUnknown with the raw type preserved; only malformed JSON or
// undecodable audio payloads are errors.
func ParseServerEvent(data []byte) (ServerEvent, error) {
	var raw rawServerEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return ServerEvent{}, fmt.Errorf("malformed server event: %w", err)
	}

	event := ServerEvent{Type: raw.Type}
	switch raw.Type {
	case "session.created":
		event.Kind = KindSessionCreated
	case "session.updated":
		event.Kind = KindSessionUpdated
	case "response.audio.delta":
		audio, err := base64.StdEncoding.DecodeString(raw.Delta)
		if err != nil {
			return ServerEvent{}, fmt.Errorf("decode audio delta: %w", err)
		}
		event.Kind = KindAudioDelta
		event.Audio = audio
	case "response.audio_transcript.done":
		event.Kind = KindAssistantTranscriptDone
		event.Transcript = raw.Transcript
	case "conversation.item.input_audio_transcription.completed":
		event.Kind = KindUserTranscriptDone
		event.Transcript = raw.Transcript
	case "input_audio_buffer.speech_started":
		event.Kind = KindSpeechStarted
	case "input_audio_buffer.speech_stopped":
		event.Kind = KindSpeechStopped
	case "response.done":
		event.Kind = KindResponseDone
	case "error":
		event.Kind = KindError
		event.ErrMessage = raw.Error.Message
		if event.ErrMessage == "" {
			event.ErrMessage = raw.Error.Code
		}
	default:
		event.Kind = KindUnknown
	}
	return event, nil
}
