package config

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
)

// decodeEd25519PublicKey decodes a standard-Base64 32-byte Ed25519 public
// key, matching the strictness the Monitor's private-key loader applies
// (see internal/signing).
func decodeEd25519PublicKey(b64 string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	if len(key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("expected %d bytes, got %d", ed25519.PublicKeySize, len(key))
	}
	return key, nil
}
