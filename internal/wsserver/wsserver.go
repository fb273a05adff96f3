// Package wsserver implements the Hub's GET /ws subscription endpoint:
// token validation, subscriber registration, and streaming delivery
// (§4.10's subscription protocol).
package wsserver

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aaronbassett/vibetea/internal/broadcast"
	"github.com/aaronbassett/vibetea/internal/event"
	"github.com/aaronbassett/vibetea/internal/identity"
	"github.com/aaronbassett/vibetea/internal/subscriber"
)

const (
	keepaliveInterval = 30 * time.Second
	idleTimeout       = 5 * time.Minute

	// defaultMintedTTL bounds a subscriber token freshly minted from a
	// verified JWT at connect time (§4.12's identity exchange), since the
	// wire protocol has no separate token-issuance endpoint to carry a
	// caller-chosen TTL.
	defaultMintedTTL = time.Hour
)

// Handler upgrades validated subscriber connections and streams broadcast
// events to them until the socket closes or the session expires.
type Handler struct {
	store       *subscriber.Store
	broadcaster *broadcast.Broadcaster
	upgrader    websocket.Upgrader
	verifier    *identity.Verifier
}

// New builds a wsserver Handler backed by the given session store and
// broadcaster.
func New(store *subscriber.Store, b *broadcast.Broadcaster) *Handler {
	return &Handler{
		store:       store,
		broadcaster: b,
		upgrader:    websocket.Upgrader{},
	}
}

// SetIdentityVerifier wires an optional JWT/JWKS identity verifier (§4.12):
// when a presented token fails session-store validation, ServeHTTP falls
// back to treating it as a third-party JWT, minting and storing a fresh
// subscriber token on successful verification so the connection can proceed
// without a separate token-exchange endpoint.
func (h *Handler) SetIdentityVerifier(v *identity.Verifier) {
	h.verifier = v
}

// ServeHTTP validates the subscriber token query parameter, registers a
// broadcast subscriber, and streams events until the connection drops.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	sess, ok := h.store.Validate(token)
	if !ok && h.verifier != nil {
		claims, err := h.verifier.Verify(r.Context(), token)
		var unavailable *identity.UnavailableError
		if errors.As(err, &unavailable) {
			w.Header().Set("Retry-After", "5")
			http.Error(w, "identity provider unavailable", http.StatusServiceUnavailable)
			return
		}
		if err == nil {
			sess = h.store.Issue(claims.Subject, defaultMintedTTL)
			ok = true
		}
	}
	if !ok {
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("wsserver: upgrade failed: %v", err)
		return
	}

	filter := filterFor(r)
	sub, unsubscribe := h.broadcaster.Subscribe(filter)
	defer unsubscribe()

	// Closing the socket at expiry makes both loops below return.
	expiry := time.AfterFunc(time.Until(sess.ExpiresAt), func() { conn.Close() })
	defer expiry.Stop()

	go h.readLoop(conn, sess)
	h.writeLoop(conn, sub)
}

// readLoop drains (and discards) client frames purely to detect closure;
// subscribers are receive-only.
func (h *Handler) readLoop(conn *websocket.Conn, sess *subscriber.Session) {
	defer conn.Close()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) writeLoop(conn *websocket.Conn, sub *broadcast.Subscriber) {
	defer conn.Close()
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	idle := time.NewTimer(idleTimeout)
	defer idle.Stop()

	// sub.Next blocks, so pump it from its own goroutine and funnel results
	// into a channel the select below can wait on alongside the ticker and
	// idle timer.
	stop := make(chan struct{})
	defer close(stop)
	msgs := make(chan []byte)
	go func() {
		defer close(msgs)
		for {
			msg, ok := sub.Next(stop)
			if !ok {
				return
			}
			select {
			case msgs <- msg:
			case <-stop:
				return
			}
		}
	}()

	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
			resetTimer(idle, idleTimeout)
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-idle.C:
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "idle timeout"))
			return
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// filterFor derives a subscriber filter from optional query parameters
// (event_type, source). Absent parameters match everything.
func filterFor(r *http.Request) broadcast.Filter {
	wantType := r.URL.Query().Get("event_type")
	wantSource := r.URL.Query().Get("source")
	if wantType == "" && wantSource == "" {
		return nil
	}
	return func(e event.Event) bool {
		if wantType != "" && string(e.EventType) != wantType {
			return false
		}
		if wantSource != "" && e.Source != wantSource {
			return false
		}
		return true
	}
}
