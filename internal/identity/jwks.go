// Package identity verifies third-party JWTs against a JWKS endpoint, used
// to mint subscriber tokens after a successful identity exchange (§4.12).
// No example repo in the reference pack imports a JWT library as a direct
// dependency, so this is built on stdlib crypto (see DESIGN.md).
package identity

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"
)

// UnavailableError signals the JWKS issuer could not be reached; callers
// surface it as a 503 with a stable retry hint and must never cache a
// negative result for it.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("identity: jwks unavailable: %v", e.Err)
}
func (e *UnavailableError) Unwrap() error { return e.Err }

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

type jwksDocument struct {
	Keys []jwk `json:"keys"`
}

// Verifier fetches and caches a JWKS document, validating JWTs against it.
type Verifier struct {
	jwksURL  string
	issuer   string
	audience string
	ttl      time.Duration
	client   *http.Client

	mu        sync.Mutex
	cached    map[string]interface{} // kid -> *rsa.PublicKey or *ecdsa.PublicKey
	fetchedAt time.Time
}

// NewVerifier builds a Verifier for the given JWKS endpoint, issuer, and
// audience, with a 5s fetch timeout and the given cache TTL (default 5
// minutes per §4.12).
func NewVerifier(jwksURL, issuer, audience string, ttl time.Duration) *Verifier {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Verifier{
		jwksURL:  jwksURL,
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (v *Verifier) keyFor(ctx context.Context, kid string) (interface{}, error) {
	v.mu.Lock()
	fresh := v.cached != nil && time.Since(v.fetchedAt) < v.ttl
	if fresh {
		key, ok := v.cached[kid]
		v.mu.Unlock()
		if ok {
			return key, nil
		}
		// Stale-for-this-kid cache hit on an otherwise-fresh fetch: fall
		// through and refetch in case of key rotation, but never cache the
		// absence itself.
	} else {
		v.mu.Unlock()
	}

	keys, err := v.fetch(ctx)
	if err != nil {
		return nil, &UnavailableError{Err: err}
	}

	v.mu.Lock()
	v.cached = keys
	v.fetchedAt = time.Now()
	v.mu.Unlock()

	key, ok := keys[kid]
	if !ok {
		return nil, fmt.Errorf("identity: unknown key id %q", kid)
	}
	return key, nil
}

func (v *Verifier) fetch(ctx context.Context) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	var doc jwksDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}

	keys := make(map[string]interface{}, len(doc.Keys))
	for _, k := range doc.Keys {
		pub, err := decodeJWK(k)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}
	return keys, nil
}

func decodeJWK(k jwk) (interface{}, error) {
	switch k.Kty {
	case "RSA":
		nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			return nil, err
		}
		eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			return nil, err
		}
		n := new(big.Int).SetBytes(nBytes)
		e := new(big.Int).SetBytes(eBytes)
		return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
	case "EC":
		xBytes, err := base64.RawURLEncoding.DecodeString(k.X)
		if err != nil {
			return nil, err
		}
		yBytes, err := base64.RawURLEncoding.DecodeString(k.Y)
		if err != nil {
			return nil, err
		}
		curve, err := curveFor(k.Crv)
		if err != nil {
			return nil, err
		}
		return &ecdsa.PublicKey{
			Curve: curve,
			X:     new(big.Int).SetBytes(xBytes),
			Y:     new(big.Int).SetBytes(yBytes),
		}, nil
	default:
		return nil, fmt.Errorf("identity: unsupported key type %q", k.Kty)
	}
}

func curveFor(name string) (elliptic.Curve, error) {
	switch name {
	case "P-256":
		return elliptic.P256(), nil
	case "P-384":
		return elliptic.P384(), nil
	case "P-521":
		return elliptic.P521(), nil
	default:
		return nil, fmt.Errorf("identity: unsupported curve %q", name)
	}
}
