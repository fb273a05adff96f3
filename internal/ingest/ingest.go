// Package ingest implements the Hub's POST /events handler: the ordered,
// fail-fast pipeline described in §4.9.
package ingest

import (
	"crypto/ed25519"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/aaronbassett/vibetea/internal/broadcast"
	"github.com/aaronbassett/vibetea/internal/event"
	"github.com/aaronbassett/vibetea/internal/privacy"
	"github.com/aaronbassett/vibetea/internal/ratelimit"
	"github.com/aaronbassett/vibetea/internal/signing"
)

// Handler implements the /events ingest pipeline.
type Handler struct {
	publicKeys   map[string]ed25519.PublicKey
	limiter      *ratelimit.Limiter
	broadcaster  *broadcast.Broadcaster
	privacy      *privacy.Filter
	bodyCapBytes int64
	unsafeNoAuth bool
}

// New builds an ingest Handler. publicKeys maps X-Source values to the
// Ed25519 public key registered for that source; when unsafeNoAuth is true,
// source/rate-limit/signature checks (steps 2, 3, 5 of §4.9) are skipped.
func New(publicKeys map[string]ed25519.PublicKey, limiter *ratelimit.Limiter, b *broadcast.Broadcaster, f *privacy.Filter, bodyCapBytes int64, unsafeNoAuth bool) *Handler {
	if bodyCapBytes <= 0 {
		bodyCapBytes = 64 * 1024
	}
	return &Handler{
		publicKeys:   publicKeys,
		limiter:      limiter,
		broadcaster:  b,
		privacy:      f,
		bodyCapBytes: bodyCapBytes,
		unsafeNoAuth: unsafeNoAuth,
	}
}

// ServeHTTP implements the 7-step pipeline from §4.9, failing fast at the
// first violated step.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Step 1: body cap.
	limited := io.LimitReader(r.Body, h.bodyCapBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusInternalServerError)
		return
	}
	if int64(len(body)) > h.bodyCapBytes {
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		return
	}

	source := r.Header.Get("X-Source")

	var pub ed25519.PublicKey
	if !h.unsafeNoAuth {
		// Step 2: unknown source.
		var ok bool
		pub, ok = h.publicKeys[source]
		if !ok || source == "" {
			http.Error(w, "unknown source", http.StatusUnauthorized)
			return
		}

		// Step 3: per-source rate limit.
		if !h.limiter.Allow(source) {
			w.Header().Set("Retry-After", retryAfterSeconds(h.limiter.RetryAfter(source)))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
	}

	// Step 4: decode shape.
	var e event.Event
	if err := json.Unmarshal(body, &e); err != nil {
		http.Error(w, "malformed event", http.StatusBadRequest)
		return
	}

	// Step 5: verify signature over the canonical encoding (not the raw
	// wire bytes, so whitespace/key-order differences from the sender
	// don't cause spurious rejections).
	if !h.unsafeNoAuth {
		sig := r.Header.Get("X-Signature")
		ok, err := signing.Verify(pub, e, sig)
		if err != nil || !ok {
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	// Step 6: privacy re-check, defense in depth.
	sanitized, keep := h.privacy.Apply(e)
	if !keep {
		http.Error(w, "event rejected by privacy policy", http.StatusBadRequest)
		return
	}

	// Step 7: publish and accept.
	h.broadcaster.Publish(sanitized)
	w.WriteHeader(http.StatusAccepted)
}

func retryAfterSeconds(d interface{ Seconds() float64 }) string {
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
