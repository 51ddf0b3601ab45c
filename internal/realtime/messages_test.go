package realtime

import (
	"encoding/base64"
	"encoding/json"
	"testing"
)

func TestMarshalSessionUpdate(t *testing.T) {
	settings := DefaultSessionSettings("Greet callers politely.", "alloy")
	data, err := MarshalSessionUpdate(settings)
	if err != nil {
		t.Fatalf("MarshalSessionUpdate failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded["type"] != "session.update" {
		t.Errorf("type = %v, want session.update", decoded["type"])
	}
	session, ok := decoded["session"].(map[string]any)
	if !ok {
		t.Fatal("missing session block")
	}
	if session["input_audio_format"] != "pcm16" || session["output_audio_format"] != "pcm16" {
		t.Errorf("audio formats = %v / %v, want pcm16 / pcm16",
			session["input_audio_format"], session["output_audio_format"])
	}
	if session["instructions"] != "Greet callers politely." {
		t.Errorf("instructions = %v", session["instructions"])
	}
	transcription, ok := session["input_audio_transcription"].(map[string]any)
	if !ok || transcription["model"] == "" {
		t.Errorf("input_audio_transcription = %v, want a model", session["input_audio_transcription"])
	}
}

func TestMarshalInputAudioAppend(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	data, err := MarshalInputAudioAppend(pcm)
	if err != nil {
		t.Fatalf("MarshalInputAudioAppend failed: %v", err)
	}

	var decoded struct {
		Type  string `json:"type"`
		Audio string `json:"audio"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Type != "input_audio_buffer.append" {
		t.Errorf("type = %q, want input_audio_buffer.append", decoded.Type)
	}
	if decoded.Audio != base64.StdEncoding.EncodeToString(pcm) {
		t.Errorf("audio payload = %q, not base64 of the input", decoded.Audio)
	}
}

func TestMarshalUserMessage(t *testing.T) {
	data, err := MarshalUserMessage("Hello?")
	if err != nil {
		t.Fatalf("MarshalUserMessage failed: %v", err)
	}
	var decoded conversationItemCreateMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Type != "conversation.item.create" {
		t.Errorf("type = %q, want conversation.item.create", decoded.Type)
	}
	if decoded.Item.Role != "user" || len(decoded.Item.Content) != 1 || decoded.Item.Content[0].Text != "Hello?" {
		t.Errorf("unexpected item: %+v", decoded.Item)
	}
}

func TestParseServerEventKinds(t *testing.T) {
	audio := base64.StdEncoding.EncodeToString([]byte{0x10, 0x20})
	cases := []struct {
		name string
		json string
		kind EventKind
	}{
		{"session created", `{"type":"session.created"}`, KindSessionCreated},
		{"session updated", `{"type":"session.updated"}`, KindSessionUpdated},
		{"audio delta", `{"type":"response.audio.delta","delta":"` + audio + `"}`, KindAudioDelta},
		{"assistant transcript", `{"type":"response.audio_transcript.done","transcript":"Hi there"}`, KindAssistantTranscriptDone},
		{"user transcript", `{"type":"conversation.item.input_audio_transcription.completed","transcript":"I need help"}`, KindUserTranscriptDone},
		{"speech started", `{"type":"input_audio_buffer.speech_started"}`, KindSpeechStarted},
		{"speech stopped", `{"type":"input_audio_buffer.speech_stopped"}`, KindSpeechStopped},
		{"response done", `{"type":"response.done"}`, KindResponseDone},
		{"error", `{"type":"error","error":{"message":"bad session"}}`, KindError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event, err := ParseServerEvent([]byte(tc.json))
			if err != nil {
				t.Fatalf("ParseServerEvent failed: %v", err)
			}
			if event.Kind != tc.kind {
				t.Errorf("kind = %v, want %v", event.Kind, tc.kind)
			}
		})
	}
}

func TestParseServerEventPayloads(t *testing.T) {
	audio := base64.StdEncoding.EncodeToString([]byte{0xAA, 0xBB, 0xCC})
	event, err := ParseServerEvent([]byte(`{"type":"response.audio.delta","delta":"` + audio + `"}`))
	if err != nil {
		t.Fatalf("ParseServerEvent failed: %v", err)
	}
	if len(event.Audio) != 3 || event.Audio[0] != 0xAA {
		t.Errorf("audio payload = %v, want decoded bytes", event.Audio)
	}

	event, err = ParseServerEvent([]byte(`{"type":"error","error":{"code":"rate_limited"}}`))
	if err != nil {
		t.Fatalf("ParseServerEvent failed: %v", err)
	}
	if event.ErrMessage != "rate_limited" {
		t.Errorf("error message = %q, want the code as fallback", event.ErrMessage)
	}
}

func TestParseServerEventToleratesUnknownTypes(t *testing.T) {
	event, err := ParseServerEvent([]byte(`{"type":"response.output_item.added","item":{}}`))
	if err != nil {
		t.Fatalf("unknown event type treated as error: %v", err)
	}
	if event.Kind != KindUnknown {
		t.Errorf("kind = %v, want KindUnknown", event.Kind)
	}
	if event.Type != "response.output_item.added" {
		t.Errorf("raw type not preserved: %q", event.Type)
	}
}

func TestParseServerEventRejectsBadInput(t *testing.T) {
	if _, err := ParseServerEvent([]byte(`{not json`)); err == nil {
		t.Error("malformed JSON accepted")
	}
	if _, err := ParseServerEvent([]byte(`{"type":"response.audio.delta","delta":"%%%"}`)); err == nil {
		t.Error("undecodable audio payload accepted")
	}
}
