// Package config loads Monitor and Hub configuration from environment
// variables only, per the wire-level external interface — there is no file
// format in scope for either process.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults mirrored from §5/§6/§8 of the specification.
const (
	DefaultBufferSize     = 1000
	DefaultDebounceMs     = 100
	DefaultPort           = 8080
	DefaultBroadcastSlots = 1024
	DefaultSessionStoreMax = 10000
	DefaultBodyCapBytes   = 64 * 1024
	DefaultLagDisconnect  = 3
)

// Error wraps a configuration fault. Per §7, Config errors are always
// fatal at startup.
type Error struct {
	Msg string
}

func (e *Error) Error() string { return e.Msg }

func configErrorf(format string, args ...interface{}) error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}

// MonitorConfig is the Monitor process's full configuration.
type MonitorConfig struct {
	ServerURL      string
	PrivateKeyB64  string // optional; empty means resolve via keyfile/generate
	KeyFilePath    string
	Source         string
	BufferSize     int
	DebounceDelay  time.Duration
	AssistantRoot  string // e.g. ~/.claude
	LogLevel       string
}

// LoadMonitorConfig reads the Monitor's configuration from the process
// environment, applying the defaults named in §6/§8.
func LoadMonitorConfig() (MonitorConfig, error) {
	cfg := MonitorConfig{
		BufferSize:    DefaultBufferSize,
		DebounceDelay: DefaultDebounceMs * time.Millisecond,
		LogLevel:      envOr("VIBETEA_LOG_LEVEL", "info"),
	}

	cfg.ServerURL = os.Getenv("VIBETEA_SERVER_URL")
	if cfg.ServerURL == "" {
		return MonitorConfig{}, configErrorf("VIBETEA_SERVER_URL is required")
	}

	cfg.PrivateKeyB64 = strings.TrimSpace(os.Getenv("VIBETEA_PRIVATE_KEY"))

	home, err := os.UserHomeDir()
	if err != nil {
		return MonitorConfig{}, configErrorf("resolve home directory: %v", err)
	}
	cfg.AssistantRoot = envOr("VIBETEA_ASSISTANT_ROOT", home+"/.claude")
	cfg.KeyFilePath = envOr("VIBETEA_KEY_FILE", cfg.AssistantRoot+"/vibetea.key")

	cfg.Source = os.Getenv("VIBETEA_SOURCE")
	if cfg.Source == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown-source"
		}
		cfg.Source = hostname
	}

	if raw := os.Getenv("VIBETEA_BUFFER_SIZE"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return MonitorConfig{}, configErrorf("VIBETEA_BUFFER_SIZE must be a positive integer, got %q", raw)
		}
		cfg.BufferSize = n
	}

	if raw := os.Getenv("VIBETEA_DEBOUNCE_MS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return MonitorConfig{}, configErrorf("VIBETEA_DEBOUNCE_MS must be a non-negative integer, got %q", raw)
		}
		cfg.DebounceDelay = time.Duration(n) * time.Millisecond
	}

	return cfg, nil
}

// HubConfig is the Hub process's full configuration.
type HubConfig struct {
	Port             int
	PublicKeys       map[string][]byte // source -> 32-byte ed25519 public key
	SubscriberToken  string
	UnsafeNoAuth     bool
	LogLevel         string
	BodyCapBytes     int64
	BroadcastSlots   int
	SessionStoreMax  int
	LagDisconnect    int

	// JWKSURL, JWTIssuer, and JWTAudience configure the optional identity
	// verifier (§4.12) used to mint subscriber tokens from a third-party
	// JWT at /ws connect time. JWKSURL empty means no verifier is wired.
	JWKSURL    string
	JWTIssuer  string
	JWTAudience string
}

// LoadHubConfig reads the Hub's configuration from the process environment.
func LoadHubConfig() (HubConfig, error) {
	cfg := HubConfig{
		Port:            DefaultPort,
		LogLevel:        envOr("RUST_LOG", "info"),
		BodyCapBytes:    DefaultBodyCapBytes,
		BroadcastSlots:  DefaultBroadcastSlots,
		SessionStoreMax: DefaultSessionStoreMax,
		LagDisconnect:   DefaultLagDisconnect,
	}

	if raw := os.Getenv("PORT"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 65535 {
			return HubConfig{}, configErrorf("PORT must be a valid TCP port, got %q", raw)
		}
		cfg.Port = n
	}

	cfg.UnsafeNoAuth = strings.EqualFold(os.Getenv("VIBETEA_UNSAFE_NO_AUTH"), "true")

	cfg.SubscriberToken = os.Getenv("VIBETEA_SUBSCRIBER_TOKEN")

	if !cfg.UnsafeNoAuth {
		if cfg.SubscriberToken == "" {
			return HubConfig{}, configErrorf("VIBETEA_SUBSCRIBER_TOKEN is required unless VIBETEA_UNSAFE_NO_AUTH=true")
		}
		raw := os.Getenv("VIBETEA_PUBLIC_KEYS")
		if raw == "" {
			return HubConfig{}, configErrorf("VIBETEA_PUBLIC_KEYS is required unless VIBETEA_UNSAFE_NO_AUTH=true")
		}
		keys, err := parsePublicKeys(raw)
		if err != nil {
			return HubConfig{}, err
		}
		cfg.PublicKeys = keys
	} else {
		keys, err := parsePublicKeys(os.Getenv("VIBETEA_PUBLIC_KEYS"))
		if err != nil {
			return HubConfig{}, err
		}
		cfg.PublicKeys = keys
	}

	cfg.JWKSURL = os.Getenv("VIBETEA_JWKS_URL")
	cfg.JWTIssuer = os.Getenv("VIBETEA_JWT_ISSUER")
	cfg.JWTAudience = os.Getenv("VIBETEA_JWT_AUDIENCE")

	return cfg, nil
}

// parsePublicKeys decodes the "source1:b64pub,source2:b64pub,..." format.
func parsePublicKeys(raw string) (map[string][]byte, error) {
	keys := make(map[string][]byte)
	if raw == "" {
		return keys, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			return nil, configErrorf("VIBETEA_PUBLIC_KEYS: malformed entry %q", pair)
		}
		source := strings.TrimSpace(parts[0])
		b64 := strings.TrimSpace(parts[1])
		if source == "" || b64 == "" {
			return nil, configErrorf("VIBETEA_PUBLIC_KEYS: malformed entry %q", pair)
		}
		key, err := decodeEd25519PublicKey(b64)
		if err != nil {
			return nil, configErrorf("VIBETEA_PUBLIC_KEYS: source %q: %v", source, err)
		}
		keys[source] = key
	}
	return keys, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
