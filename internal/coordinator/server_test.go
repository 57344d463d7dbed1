package coordinator

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/Pairlink/internal/signaling"
)

func newTestServer(t *testing.T, opts ServerOptions) (*Hub, *httptest.Server) {
	t.Helper()
	hub := newTestHub()
	srv := NewServer(hub, opts, hub.logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return hub, ts
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg *signaling.Message) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func expect(t *testing.T, conn *websocket.Conn, typ string) *signaling.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg signaling.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("waiting for %s: %v", typ, err)
	}
	if msg.Type != typ {
		t.Fatalf("got %s (%+v), want %s", msg.Type, msg, typ)
	}
	return &msg
}

// expectNothing asserts no message arrives within a short window.
func expectNothing(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var msg signaling.Message
	if err := conn.ReadJSON(&msg); err == nil {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestServerEndToEnd(t *testing.T) {
	_, ts := newTestServer(t, ServerOptions{})

	a := dial(t, ts)
	send(t, a, signaling.Join("demo"))
	joined := expect(t, a, signaling.TypeJoined)
	if joined.Count != 1 || joined.SelfID == "" {
		t.Fatalf("A joined = %+v", joined)
	}

	b := dial(t, ts)
	send(t, b, signaling.Join("demo"))
	bJoined := expect(t, b, signaling.TypeJoined)
	if bJoined.Count != 2 {
		t.Fatalf("B joined count = %d, want 2", bJoined.Count)
	}

	aReady := expect(t, a, signaling.TypeReady)
	bReady := expect(t, b, signaling.TypeReady)
	if aReady.InitiatorID != bJoined.SelfID || bReady.InitiatorID != bJoined.SelfID {
		t.Fatalf("initiator = %s/%s, want %s", aReady.InitiatorID, bReady.InitiatorID, bJoined.SelfID)
	}

	desc := json.RawMessage(`{"type":"offer","sdp":"v=0\r\n"}`)
	send(t, b, signaling.Offer("demo", desc))
	got := expect(t, a, signaling.TypeOffer)
	if string(got.Description) != string(desc) {
		t.Fatalf("description = %s, want %s", got.Description, desc)
	}
	expectNothing(t, b)

	c := dial(t, ts)
	send(t, c, signaling.Join("demo"))
	expect(t, c, signaling.TypeFull)

	// Closing a channel counts as leaving.
	b.Close()
	left := expect(t, a, signaling.TypePeerLeft)
	if left.Room != "demo" {
		t.Fatalf("peer-left room = %q", left.Room)
	}

	send(t, c, signaling.Join("demo"))
	if got := expect(t, c, signaling.TypeJoined); got.Count != 2 {
		t.Fatalf("C joined count = %d, want 2", got.Count)
	}
}

func TestServerDropsMalformedFrames(t *testing.T) {
	_, ts := newTestServer(t, ServerOptions{})

	a := dial(t, ts)
	if err := a.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	send(t, a, &signaling.Message{Type: signaling.TypeOffer, Room: "demo"})

	// The connection survives and keeps working.
	send(t, a, signaling.Join("demo"))
	expect(t, a, signaling.TypeJoined)
}

func TestServerOriginCheck(t *testing.T) {
	_, ts := newTestServer(t, ServerOptions{AllowedOrigins: []string{"https://app.example.com"}})

	tests := []struct {
		origin string
		ok     bool
	}{
		{"", true},
		{"https://app.example.com", true},
		{"HTTPS://APP.EXAMPLE.COM", true},
		{"https://evil.example.com", false},
		{"http://app.example.com", false},
	}

	for _, tc := range tests {
		t.Run(tc.origin, func(t *testing.T) {
			header := http.Header{}
			if tc.origin != "" {
				header.Set("Origin", tc.origin)
			}
			conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), header)
			if conn != nil {
				conn.Close()
			}
			if ok := err == nil; ok != tc.ok {
				t.Fatalf("origin %q accepted = %v, want %v (err %v)", tc.origin, ok, tc.ok, err)
			}
		})
	}
}

func TestServerHealth(t *testing.T) {
	_, ts := newTestServer(t, ServerOptions{})

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "healthy") {
		t.Fatalf("health = %d %q", resp.StatusCode, body)
	}
}

func TestServerStats(t *testing.T) {
	hub, ts := newTestServer(t, ServerOptions{})
	hub.Join(newRecorder("A"), "demo")
	hub.Join(newRecorder("B"), "demo")
	hub.Join(newRecorder("C"), "other")

	resp, err := http.Get(ts.URL + "/stats")
	if err != nil {
		t.Fatalf("GET /stats: %v", err)
	}
	defer resp.Body.Close()

	var stats Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Rooms != 2 || stats.Members != 3 || len(stats.Occupancy) != 2 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.Occupancy[0] != (Occupancy{Room: "demo", Count: 2}) {
		t.Errorf("occupancy[0] = %+v", stats.Occupancy[0])
	}

	post, err := http.Post(ts.URL+"/stats", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /stats: %v", err)
	}
	post.Body.Close()
	if post.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST /stats = %d, want 405", post.StatusCode)
	}
}
