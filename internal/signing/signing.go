// Package signing resolves the Monitor's Ed25519 signing key and produces
// the detached per-event signatures the Hub verifies on ingest.
package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aaronbassett/vibetea/internal/event"
)

// KeySource describes where a resolved key came from, for startup logging.
type KeySource string

const (
	SourceEnv       KeySource = "environment"
	SourceKeyFile   KeySource = "keyfile"
	SourceGenerated KeySource = "generated"
)

// ConfigError is a fatal key-resolution failure (exit code 1 per §4.7/§6).
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return e.Msg }

// Resolve implements the §4.7 key source resolution order: the
// VIBETEA_PRIVATE_KEY environment value, then the on-disk key file, then a
// freshly generated key persisted atomically to the key file.
func Resolve(envValue, keyFilePath string) (ed25519.PrivateKey, KeySource, error) {
	if envValue != "" {
		key, err := decodePrivateKey(envValue)
		if err != nil {
			return nil, "", &ConfigError{Msg: fmt.Sprintf("VIBETEA_PRIVATE_KEY: %v", err)}
		}
		return key, SourceEnv, nil
	}

	if data, err := os.ReadFile(keyFilePath); err == nil {
		key, err := decodePrivateKey(string(data))
		if err != nil {
			return nil, "", &ConfigError{Msg: fmt.Sprintf("key file %s: %v", keyFilePath, err)}
		}
		return key, SourceKeyFile, nil
	} else if !os.IsNotExist(err) {
		return nil, "", &ConfigError{Msg: fmt.Sprintf("reading key file %s: %v", keyFilePath, err)}
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, "", &ConfigError{Msg: fmt.Sprintf("generating key: %v", err)}
	}
	if err := writeKeyFileAtomic(keyFilePath, priv); err != nil {
		return nil, "", &ConfigError{Msg: fmt.Sprintf("persisting generated key: %v", err)}
	}
	return priv, SourceGenerated, nil
}

func decodePrivateKey(raw string) (ed25519.PrivateKey, error) {
	trimmed := trimWhitespace(raw)
	decoded, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	if len(decoded) != ed25519.SeedSize {
		return nil, fmt.Errorf("expected %d bytes, got %d", ed25519.SeedSize, len(decoded))
	}
	return ed25519.NewKeyFromSeed(decoded), nil
}

func trimWhitespace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpaceByte(s[start]) {
		start++
	}
	for end > start && isSpaceByte(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\v' || b == '\f'
}

func writeKeyFileAtomic(path string, priv ed25519.PrivateKey) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	seed := priv.Seed()
	encoded := base64.StdEncoding.EncodeToString(seed)

	tmp, err := os.CreateTemp(filepath.Dir(path), ".vibetea-key-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(encoded); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// ExportBase64Seed renders the private key's 32-byte seed as standard
// Base64, for the export-key subcommand.
func ExportBase64Seed(priv ed25519.PrivateKey) string {
	return base64.StdEncoding.EncodeToString(priv.Seed())
}

// Sign computes the detached Ed25519 signature over an Event's canonical
// encoding, returning it as standard Base64 for the X-Signature header.
func Sign(priv ed25519.PrivateKey, e event.Event) (string, error) {
	canonical, err := event.Canonical(e)
	if err != nil {
		return "", fmt.Errorf("signing: canonicalize event: %w", err)
	}
	sig := ed25519.Sign(priv, canonical)
	return base64.StdEncoding.EncodeToString(sig), nil
}

// KeySigner adapts a resolved Ed25519 private key to the sender.Signer
// interface.
type KeySigner struct {
	Key ed25519.PrivateKey
}

// Sign implements sender.Signer.
func (k KeySigner) Sign(e event.Event) (string, error) {
	return Sign(k.Key, e)
}

// Verify checks a detached Base64 Ed25519 signature over an Event's
// canonical encoding against the given public key.
func Verify(pub ed25519.PublicKey, e event.Event, sigB64 string) (bool, error) {
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return false, fmt.Errorf("signing: decode signature: %w", err)
	}
	canonical, err := event.Canonical(e)
	if err != nil {
		return false, fmt.Errorf("signing: canonicalize event: %w", err)
	}
	return ed25519.Verify(pub, canonical, sig), nil
}

// VerifyBytes checks a detached signature over a raw canonical byte string,
// for callers that verify before fully decoding into an Event. Ingest
// decodes first and uses Verify.
func VerifyBytes(pub ed25519.PublicKey, canonical []byte, sigB64 string) (bool, error) {
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return false, fmt.Errorf("signing: decode signature: %w", err)
	}
	return ed25519.Verify(pub, canonical, sig), nil
}
