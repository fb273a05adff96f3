package identity

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// ErrInvalidToken covers every JWT shape/claim/signature failure; callers
// surface it as a 401, per the Auth error kind in §7.
var ErrInvalidToken = errors.New("identity: invalid token")

type jwtHeader struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
}

// Claims is the subset of a verified JWT's claims the rest of the system
// needs to mint a subscriber token.
type Claims struct {
	Subject   string
	Issuer    string
	Audience  string
	ExpiresAt time.Time
	NotBefore time.Time
}

type jwtClaims struct {
	Sub string      `json:"sub"`
	Iss string      `json:"iss"`
	Aud interface{} `json:"aud"`
	Exp int64       `json:"exp"`
	Nbf int64       `json:"nbf"`
}

// Verify validates a compact JWT's signature against the Verifier's JWKS,
// and checks iss, aud, exp, nbf.
func (v *Verifier) Verify(ctx context.Context, token string) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Claims{}, ErrInvalidToken
	}

	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	var header jwtHeader
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return Claims{}, ErrInvalidToken
	}

	claimsJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	var raw jwtClaims
	if err := json.Unmarshal(claimsJSON, &raw); err != nil {
		return Claims{}, ErrInvalidToken
	}

	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	key, err := v.keyFor(ctx, header.Kid)
	if err != nil {
		var unavailable *UnavailableError
		if errors.As(err, &unavailable) {
			return Claims{}, err
		}
		return Claims{}, ErrInvalidToken
	}

	signingInput := parts[0] + "." + parts[1]
	if err := verifySignature(header.Alg, key, []byte(signingInput), sig); err != nil {
		return Claims{}, ErrInvalidToken
	}

	aud := audienceString(raw.Aud)
	claims := Claims{
		Subject:   raw.Sub,
		Issuer:    raw.Iss,
		Audience:  aud,
		ExpiresAt: time.Unix(raw.Exp, 0),
		NotBefore: time.Unix(raw.Nbf, 0),
	}

	now := time.Now()
	if v.issuer != "" && claims.Issuer != v.issuer {
		return Claims{}, ErrInvalidToken
	}
	if v.audience != "" && claims.Audience != v.audience {
		return Claims{}, ErrInvalidToken
	}
	if raw.Exp != 0 && now.After(claims.ExpiresAt) {
		return Claims{}, ErrInvalidToken
	}
	if raw.Nbf != 0 && now.Before(claims.NotBefore) {
		return Claims{}, ErrInvalidToken
	}

	return claims, nil
}

func audienceString(aud interface{}) string {
	switch v := aud.(type) {
	case string:
		return v
	case []interface{}:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

func verifySignature(alg string, key interface{}, signingInput, sig []byte) error {
	switch alg {
	case "RS256":
		pub, ok := key.(*rsa.PublicKey)
		if !ok {
			return fmt.Errorf("identity: key type mismatch for %s", alg)
		}
		digest := sha256.Sum256(signingInput)
		return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig)
	case "ES256":
		pub, ok := key.(*ecdsa.PublicKey)
		if !ok {
			return fmt.Errorf("identity: key type mismatch for %s", alg)
		}
		if len(sig) != 64 {
			return fmt.Errorf("identity: malformed ES256 signature length %d", len(sig))
		}
		r := new(big.Int).SetBytes(sig[:32])
		s := new(big.Int).SetBytes(sig[32:])
		digest := sha256.Sum256(signingInput)
		if !ecdsa.Verify(pub, digest[:], r, s) {
			return fmt.Errorf("identity: signature mismatch")
		}
		return nil
	default:
		return fmt.Errorf("identity: unsupported alg %q", alg)
	}
}
