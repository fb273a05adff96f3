package wsserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aaronbassett/vibetea/internal/broadcast"
	"github.com/aaronbassett/vibetea/internal/event"
	"github.com/aaronbassett/vibetea/internal/subscriber"
)

func dialWS(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	u.Scheme = "ws"
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	return conn
}

func TestServeHTTPRejectsInvalidToken(t *testing.T) {
	store := subscriber.New(10)
	b := broadcast.New(4, 3)
	h := New(store, b)
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "?token=bogus")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid token, got %d", resp.StatusCode)
	}
}

func TestServeHTTPStreamsBroadcastEvents(t *testing.T) {
	store := subscriber.New(10)
	b := broadcast.New(4, 3)
	h := New(store, b)
	srv := httptest.NewServer(h)
	defer srv.Close()

	sess := store.Issue("subscriber-1", time.Hour)
	conn := dialWS(t, srv, sess.Token)
	defer conn.Close()

	// Give the server a moment to register the subscriber before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for b.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if b.SubscriberCount() == 0 {
		t.Fatal("expected a registered subscriber")
	}

	e, err := event.New("workstation-1", time.Now(), event.ActivityPayload{SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	b.Publish(e)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	if !strings.Contains(string(data), "sess-1") {
		t.Fatalf("expected streamed event payload, got %s", data)
	}
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
}

func TestFilterForMatchesEventType(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws?event_type=activity", nil)
	filter := filterFor(req)
	if filter == nil {
		t.Fatal("expected a non-nil filter")
	}
	matching, _ := event.New("src", time.Now(), event.ActivityPayload{SessionID: "s1"})
	if !filter(matching) {
		t.Fatal("expected activity event to match filter")
	}
	nonMatching, _ := event.New("src", time.Now(), event.ErrorPayload{Text: "boom"})
	if filter(nonMatching) {
		t.Fatal("expected error event to be filtered out")
	}
}
