package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type recordingHandler struct {
	mu     sync.Mutex
	events []ServerEvent
	closed chan error
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{closed: make(chan error, 1)}
}

func (h *recordingHandler) OnEvent(event ServerEvent) {
	h.mu.Lock()
	h.events = append(h.events, event)
	h.mu.Unlock()
}

func (h *recordingHandler) OnClosed(err error) {
	h.closed <- err
}

func (h *recordingHandler) snapshot() []ServerEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ServerEvent, len(h.events))
	copy(out, h.events)
	return out
}

// testServer upgrades one connection, records the bearer token and inbound
// messages, and plays back scripted events.
type testServer struct {
	*httptest.Server

	mu       sync.Mutex
	token    string
	received []string
	conn     *websocket.Conn
	ready    chan struct{}
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s := &testServer{ready: make(chan struct{})}
	upgrader := websocket.Upgrader{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		close(s.ready)

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.received = append(s.received, string(data))
			s.mu.Unlock()
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *testServer) url() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (s *testServer) send(t *testing.T, msg string) {
	t.Helper()
	<-s.ready
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("server write failed: %v", err)
	}
}

func (s *testServer) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.received))
	copy(out, s.received)
	return out
}

func dialTestClient(t *testing.T, s *testServer, handler Handler) *Client {
	t.Helper()
	config := DefaultClientConfig()
	config.URL = s.url()
	client, err := Dial(context.Background(), config, "test-token", handler, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestClientSendsBearerToken(t *testing.T) {
	server := newTestServer(t)
	dialTestClient(t, server, newRecordingHandler())

	<-server.ready
	server.mu.Lock()
	token := server.token
	server.mu.Unlock()
	if token != "test-token" {
		t.Errorf("server saw token %q, want test-token", token)
	}
}

func TestClientDeliversEvents(t *testing.T) {
	server := newTestServer(t)
	handler := newRecordingHandler()
	dialTestClient(t, server, handler)

	server.send(t, `{"type":"session.created"}`)
	server.send(t, `{"type":"input_audio_buffer.speech_started"}`)
	server.send(t, `{"type":"totally.new.event"}`)
	server.send(t, `{"type":"response.done"}`)

	waitFor(t, func() bool { return len(handler.snapshot()) >= 3 }, "events")
	events := handler.snapshot()
	if len(events) != 3 {
		t.Fatalf("delivered %d events, want 3 (unknown type must be dropped)", len(events))
	}
	want := []EventKind{KindSessionCreated, KindSpeechStarted, KindResponseDone}
	for i, k := range want {
		if events[i].Kind != k {
			t.Errorf("event %d kind = %v, want %v", i, events[i].Kind, k)
		}
	}
}

func TestClientSendAudioAndGreeting(t *testing.T) {
	server := newTestServer(t)
	client := dialTestClient(t, server, newRecordingHandler())

	if err := client.SendAudio([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("SendAudio failed: %v", err)
	}
	if err := client.RequestGreeting("The caller just connected, greet them."); err != nil {
		t.Fatalf("RequestGreeting failed: %v", err)
	}

	waitFor(t, func() bool { return len(server.messages()) >= 3 }, "messages at server")
	msgs := server.messages()
	types := make([]string, len(msgs))
	for i, m := range msgs {
		var decoded struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal([]byte(m), &decoded); err != nil {
			t.Fatalf("server received invalid JSON: %v", err)
		}
		types[i] = decoded.Type
	}
	want := []string{"input_audio_buffer.append", "conversation.item.create", "response.create"}
	for i, w := range want {
		if types[i] != w {
			t.Errorf("message %d type = %q, want %q", i, types[i], w)
		}
	}
}

func TestClientCleanCloseReportsNilError(t *testing.T) {
	server := newTestServer(t)
	handler := newRecordingHandler()
	client := dialTestClient(t, server, handler)

	<-server.ready
	if err := client.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	select {
	case err := <-handler.closed:
		if err != nil {
			t.Errorf("clean close reported error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnClosed never fired")
	}
}

func TestClientServerDropReportsError(t *testing.T) {
	server := newTestServer(t)
	handler := newRecordingHandler()
	dialTestClient(t, server, handler)

	<-server.ready
	server.mu.Lock()
	server.conn.Close() // hard drop, no close handshake
	server.mu.Unlock()

	select {
	case err := <-handler.closed:
		if err == nil {
			t.Error("abnormal drop reported nil error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnClosed never fired")
	}
}
