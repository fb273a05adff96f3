package identity

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func b64url(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func rsaJWKS(t *testing.T, kid string, pub *rsa.PublicKey) []byte {
	t.Helper()
	doc := jwksDocument{Keys: []jwk{{
		Kty: "RSA",
		Kid: kid,
		Alg: "RS256",
		Use: "sig",
		N:   b64url(pub.N.Bytes()),
		E:   b64url(big.NewInt(int64(pub.E)).Bytes()),
	}}}
	out, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	return out
}

func signRS256(t *testing.T, priv *rsa.PrivateKey, kid string, claims map[string]interface{}) string {
	t.Helper()
	header := map[string]string{"alg": "RS256", "kid": kid}
	headerJSON, _ := json.Marshal(header)
	claimsJSON, _ := json.Marshal(claims)
	signingInput := b64url(headerJSON) + "." + b64url(claimsJSON)
	digest := sha256.Sum256([]byte(signingInput))
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signingInput + "." + b64url(sig)
}

func TestVerifyAcceptsValidRS256Token(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(rsaJWKS(t, "kid-1", &priv.PublicKey))
	}))
	defer srv.Close()

	v := NewVerifier(srv.URL, "https://issuer.example", "vibetea-hub", time.Minute)

	now := time.Now()
	token := signRS256(t, priv, "kid-1", map[string]interface{}{
		"sub": "user-1",
		"iss": "https://issuer.example",
		"aud": "vibetea-hub",
		"exp": now.Add(time.Hour).Unix(),
		"nbf": now.Add(-time.Minute).Unix(),
	})

	claims, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("expected valid token, got error: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("expected subject user-1, got %q", claims.Subject)
	}
}

func TestVerifyRejectsMalformedToken(t *testing.T) {
	v := NewVerifier("http://unused.invalid", "", "", time.Minute)
	_, err := v.Verify(context.Background(), "not-a-jwt")
	if err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	priv, _ := rsa.GenerateKey(rand.Reader, 2048)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(rsaJWKS(t, "kid-1", &priv.PublicKey))
	}))
	defer srv.Close()

	v := NewVerifier(srv.URL, "", "", time.Minute)
	token := signRS256(t, priv, "kid-1", map[string]interface{}{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	_, err := v.Verify(context.Background(), token)
	if err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	priv, _ := rsa.GenerateKey(rand.Reader, 2048)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(rsaJWKS(t, "kid-1", &priv.PublicKey))
	}))
	defer srv.Close()

	v := NewVerifier(srv.URL, "https://expected.example", "", time.Minute)
	token := signRS256(t, priv, "kid-1", map[string]interface{}{
		"sub": "user-1",
		"iss": "https://someone-else.example",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := v.Verify(context.Background(), token)
	if err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for wrong issuer, got %v", err)
	}
}

func TestVerifyReturnsUnavailableWhenJWKSUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	priv, _ := rsa.GenerateKey(rand.Reader, 2048)
	v := NewVerifier(srv.URL, "", "", time.Minute)
	token := signRS256(t, priv, "kid-1", map[string]interface{}{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := v.Verify(context.Background(), token)
	var unavailable *UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected UnavailableError, got %v", err)
	}
}

func TestKeyForCachesWithinTTL(t *testing.T) {
	priv, _ := rsa.GenerateKey(rand.Reader, 2048)
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write(rsaJWKS(t, "kid-1", &priv.PublicKey))
	}))
	defer srv.Close()

	v := NewVerifier(srv.URL, "", "", time.Hour)
	if _, err := v.keyFor(context.Background(), "kid-1"); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if _, err := v.keyFor(context.Background(), "kid-1"); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single upstream fetch within TTL, got %d", calls)
	}
}

func TestDecodeJWKHandlesECKeys(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate ec key: %v", err)
	}
	k := jwk{
		Kty: "EC",
		Kid: "ec-1",
		Crv: "P-256",
		X:   b64url(priv.X.Bytes()),
		Y:   b64url(priv.Y.Bytes()),
	}
	pub, err := decodeJWK(k)
	if err != nil {
		t.Fatalf("decodeJWK: %v", err)
	}
	if _, ok := pub.(*ecdsa.PublicKey); !ok {
		t.Fatalf("expected *ecdsa.PublicKey, got %T", pub)
	}
}

func TestCurveForRejectsUnknown(t *testing.T) {
	if _, err := curveFor("P-999"); err == nil {
		t.Fatal("expected error for unknown curve")
	}
}
