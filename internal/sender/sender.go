// Package sender owns the Monitor's outbound delivery path: a bounded
// buffer, a single delivery task, client-side rate limiting, and retry
// with backoff (§4.8).
package sender

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/aaronbassett/vibetea/internal/event"
)

// DefaultBufferSize is the default pending-event buffer depth.
const DefaultBufferSize = 1000

const maxAttempts = 5

// Sender buffers signed events and drains them one at a time to the Hub's
// ingest endpoint, retrying transient failures and honoring server-side
// rate limit hints.
type Sender struct {
	serverURL string
	source    string
	signer    Signer
	client    *http.Client
	limiter   *rate.Limiter

	mu       sync.Mutex
	buffer   []event.Event
	capacity int
	notify   chan struct{}
	dropped  atomic.Uint64

	stop chan struct{}
	done chan struct{}
}

// Signer produces a base64 detached Ed25519 signature for an event's
// canonical encoding.
type Signer interface {
	Sign(e event.Event) (string, error)
}

// New builds a Sender posting to serverURL+"/events", signing every event
// with signer, identifying itself via the X-Source header as source, and
// rate-limiting outbound posts to ratePerSecond with the given burst.
func New(serverURL, source string, signer Signer, capacity int, ratePerSecond float64, burst int) *Sender {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	if ratePerSecond <= 0 {
		ratePerSecond = 10
	}
	if burst <= 0 {
		burst = 1
	}
	return &Sender{
		serverURL: serverURL,
		source:    source,
		signer:    signer,
		client:    &http.Client{Timeout: 30 * time.Second},
		limiter:   rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		capacity:  capacity,
		notify:    make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Enqueue adds e to the buffer, returning immediately. If the buffer is at
// capacity, the oldest pending event is dropped to make room.
func (s *Sender) Enqueue(e event.Event) {
	s.mu.Lock()
	if len(s.buffer) >= s.capacity {
		s.buffer = s.buffer[1:]
		s.dropped.Add(1)
	}
	s.buffer = append(s.buffer, e)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Dropped reports the number of events dropped due to buffer overflow.
func (s *Sender) Dropped() uint64 {
	return s.dropped.Load()
}

// Run drains the buffer until ctx is canceled or Stop is called.
func (s *Sender) Run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		default:
		}
		e, ok := s.popFront()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-s.notify:
				continue
			}
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		s.deliver(ctx, e)
	}
}

// Stop signals Run to return once the current delivery finishes.
func (s *Sender) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Sender) popFront() (event.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buffer) == 0 {
		return event.Event{}, false
	}
	e := s.buffer[0]
	s.buffer = s.buffer[1:]
	return e, true
}

// deliver POSTs e to the Hub, retrying transient failures with backoff per
// §4.8. It never re-enqueues e: a drop is logged and delivery moves on.
func (s *Sender) deliver(ctx context.Context, e event.Event) {
	canonical, err := event.Canonical(e)
	if err != nil {
		log.Printf("sender: canonicalize event %s: %v", e.EventID, err)
		return
	}
	sig, err := s.signer.Sign(e)
	if err != nil {
		log.Printf("sender: sign event %s: %v", e.EventID, err)
		return
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.Multiplier = 2
	policy.MaxInterval = 8 * time.Second
	policy.RandomizationFactor = 0.2
	policy.MaxElapsedTime = 0 // bounded by maxAttempts below, not wall time

	attempt := 0
	for {
		attempt++
		retryAfter, dropped, err := s.post(ctx, e.EventID, canonical, sig)
		if err == nil {
			return
		}
		if dropped {
			log.Printf("sender: dropping event %s: %v", e.EventID, err)
			return
		}
		if attempt >= maxAttempts {
			log.Printf("sender: giving up on event %s after %d attempts: %v", e.EventID, attempt, err)
			return
		}

		wait := retryAfter
		if wait <= 0 {
			wait = policy.NextBackOff()
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// post performs one POST attempt. It returns (retryAfter, dropped, err):
// dropped is true when the response means the event must never be retried
// (413, 401, 403); retryAfter carries a server-mandated wait for 429.
func (s *Sender) post(ctx context.Context, eventID string, canonical []byte, sigB64 string) (time.Duration, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serverURL+"/events", bytes.NewReader(canonical))
	if err != nil {
		return 0, true, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Source", s.source)
	req.Header.Set("X-Signature", sigB64)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusAccepted:
		return 0, false, nil
	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		return 0, true, fmt.Errorf("event %s rejected: 413 payload too large", eventID)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return 0, true, fmt.Errorf("event %s rejected: %d auth failure", eventID, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		wait := parseRetryAfter(resp.Header.Get("Retry-After"))
		return wait, false, fmt.Errorf("event %s throttled: 429", eventID)
	case resp.StatusCode >= 500:
		return 0, false, fmt.Errorf("event %s server error: %d", eventID, resp.StatusCode)
	default:
		return 0, false, fmt.Errorf("event %s unexpected status: %d", eventID, resp.StatusCode)
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
