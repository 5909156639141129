package outbound

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startDeliveryServer launches a test WebSocket server that accepts exactly
// one connection and hands it to handler. The server is closed when the test
// finishes.
func startDeliveryServer(t *testing.T, handler func(conn *websocket.Conn, connectionID string)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		connectionID := strings.TrimPrefix(r.URL.Path, "/")
		handler(conn, connectionID)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWebSocketWriterDeliversOneTextFrameToTheConnectionPath(t *testing.T) {
	received := make(chan []byte, 1)
	gotConnectionID := make(chan string, 1)

	srv := startDeliveryServer(t, func(conn *websocket.Conn, connectionID string) {
		gotConnectionID <- connectionID
		_, data, err := conn.Read(t.Context())
		if err != nil {
			t.Errorf("server read: %v", err)
			return
		}
		received <- data
	})

	writer := NewWebSocketWriter(wsURL(srv), time.Second)
	payload := []byte(`{"session_id":"sess-1","raw_word":"CAT"}`)
	if err := writer.Write(t.Context(), "conn-1", payload); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case id := <-gotConnectionID:
		if id != "conn-1" {
			t.Fatalf("expected connection id conn-1, got %q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server to observe the connection id")
	}

	select {
	case data := <-received:
		if string(data) != string(payload) {
			t.Fatalf("expected payload %s, got %s", payload, data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the server to receive the frame")
	}
}

func TestWebSocketWriterReturnsErrorWhenDialFails(t *testing.T) {
	writer := NewWebSocketWriter("ws://127.0.0.1:1", 100*time.Millisecond)
	if err := writer.Write(t.Context(), "conn-1", []byte("hi")); err == nil {
		t.Fatal("expected an error dialing an unreachable endpoint")
	}
}
