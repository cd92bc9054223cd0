package push

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-battle/core/events"
	"github.com/koscakluka/ema-battle/core/session"
)

type stubAcker struct {
	mu     sync.Mutex
	acks   int
	resets int
}

func (a *stubAcker) SignalPlaybackComplete() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks++
}

func (a *stubAcker) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resets++
}

func (a *stubAcker) counts() (int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acks, a.resets
}

func waitForCondition(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var message Message
	if err := conn.ReadJSON(&message); err != nil {
		t.Fatalf("read: %v", err)
	}
	return message
}

func TestHubSendsCurrentStateOnConnect(t *testing.T) {
	current := session.Idle()
	current.Phase = session.PhaseAwaitingPlayback
	current.CurrentTurnIndex = 3

	hub := NewHub(nil, WithCurrentState(func() session.State { return current }))
	server := httptest.NewServer(hub)
	defer server.Close()
	defer hub.Close()

	conn := dial(t, server)
	message := readMessage(t, conn)

	if message.Type != MessageTypeState {
		t.Fatalf("expected state message, got %q", message.Type)
	}
	if message.State == nil || message.State.CurrentTurnIndex != 3 {
		t.Fatalf("expected current snapshot, got %+v", message.State)
	}
}

func TestHubBroadcastsEvents(t *testing.T) {
	hub := NewHub(nil)
	server := httptest.NewServer(hub)
	defer server.Close()
	defer hub.Close()

	first := dial(t, server)
	second := dial(t, server)
	waitForCondition(t, time.Second, func() bool { return hub.Clients() == 2 })

	state := session.Idle()
	state.Phase = session.PhaseTurnInProgress
	state.CurrentTurnText = "mic check"
	state.CurrentTurnAudio = []byte{1, 2, 3}

	if err := hub.Handle(events.NewTurnReady(state)); err != nil {
		t.Fatalf("unexpected handle error: %v", err)
	}

	for _, conn := range []*websocket.Conn{first, second} {
		message := readMessage(t, conn)
		if message.Event != events.KindTurnReady {
			t.Fatalf("expected %q event, got %q", events.KindTurnReady, message.Event)
		}
		if message.State.CurrentTurnText != "mic check" {
			t.Fatalf("unexpected turn text %q", message.State.CurrentTurnText)
		}
		if string(message.State.CurrentTurnAudio) != string([]byte{1, 2, 3}) {
			t.Fatalf("audio did not survive the round trip: %v", message.State.CurrentTurnAudio)
		}
	}
}

func TestHubForwardsClientCommands(t *testing.T) {
	acker := &stubAcker{}
	hub := NewHub(acker)
	server := httptest.NewServer(hub)
	defer server.Close()
	defer hub.Close()

	conn := dial(t, server)
	for _, message := range []Message{
		{Type: MessageTypePlaybackComplete},
		{Type: "unknown"},
		{Type: MessageTypeReset},
		{Type: MessageTypePlaybackComplete},
	} {
		if err := conn.WriteJSON(message); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	waitForCondition(t, time.Second, func() bool {
		acks, resets := acker.counts()
		return acks == 2 && resets == 1
	})
}

func TestHubForgetsDisconnectedClients(t *testing.T) {
	hub := NewHub(nil)
	server := httptest.NewServer(hub)
	defer server.Close()
	defer hub.Close()

	conn := dial(t, server)
	waitForCondition(t, time.Second, func() bool { return hub.Clients() == 1 })

	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()

	waitForCondition(t, time.Second, func() bool { return hub.Clients() == 0 })

	if err := hub.Handle(events.NewSessionReset(session.Idle())); err != nil {
		t.Fatalf("broadcast without clients should succeed: %v", err)
	}
}

func TestHubCloseRejectsNewClients(t *testing.T) {
	hub := NewHub(nil)
	server := httptest.NewServer(hub)
	defer server.Close()

	if err := hub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	conn := dial(t, server)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected closed hub to close the connection")
	}
	if hub.Clients() != 0 {
		t.Fatalf("expected no registered clients, got %d", hub.Clients())
	}
}
