package feed

import (
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newTestHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(nil, log.New(io.Discard, "", 0))
	server := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		server.Close()
	})
	return hub, "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d", hub.ClientCount(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_PublishReachesSubscriber(t *testing.T) {
	hub, url := newTestHub(t)
	conn := dial(t, url)
	waitForClients(t, hub, 1)

	hub.Publish(EventTrade, map[string]interface{}{"pair": "COIN/USDC", "price": 0.1})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if event.Type != EventTrade {
		t.Errorf("type = %s, want %s", event.Type, EventTrade)
	}
	if event.TimestampMs == 0 {
		t.Error("event must carry a timestamp")
	}
	data, ok := event.Data.(map[string]interface{})
	if !ok || data["pair"] != "COIN/USDC" {
		t.Errorf("unexpected data payload: %v", event.Data)
	}
}

func TestHub_BroadcastsToAllSubscribers(t *testing.T) {
	hub, url := newTestHub(t)
	first := dial(t, url)
	second := dial(t, url)
	waitForClients(t, hub, 2)

	hub.Publish(EventPrice, map[string]interface{}{"token": "SOL"})

	for i, conn := range []*websocket.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if _, _, err := conn.ReadMessage(); err != nil {
			t.Errorf("subscriber %d: read: %v", i, err)
		}
	}
}

func TestHub_DisconnectPrunesClient(t *testing.T) {
	hub, url := newTestHub(t)
	conn := dial(t, url)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)

	// Publishing with no subscribers must not panic or block.
	hub.Publish(EventSwap, map[string]interface{}{"id": "x"})
}

func TestHub_CloseRejectsNewConnections(t *testing.T) {
	hub, url := newTestHub(t)
	hub.Close()

	if _, _, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Error("dial after close must fail")
	}
}
