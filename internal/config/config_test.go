package config

import (
	"crypto/ed25519"
	"encoding/base64"
	"os"
	"testing"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoadMonitorConfigRequiresServerURL(t *testing.T) {
	clearEnv(t, "VIBETEA_SERVER_URL")
	_, err := LoadMonitorConfig()
	if err == nil {
		t.Fatal("expected error when VIBETEA_SERVER_URL is unset")
	}
	if _, ok := err.(*Error); !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
}

func TestLoadMonitorConfigDefaults(t *testing.T) {
	t.Setenv("VIBETEA_SERVER_URL", "https://hub.example.com")
	t.Setenv("VIBETEA_SOURCE", "workstation-1")
	cfg, err := LoadMonitorConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BufferSize != DefaultBufferSize {
		t.Fatalf("expected default buffer size, got %d", cfg.BufferSize)
	}
	if cfg.Source != "workstation-1" {
		t.Fatalf("expected explicit source to be honored, got %q", cfg.Source)
	}
}

func TestLoadMonitorConfigRejectsBadBufferSize(t *testing.T) {
	t.Setenv("VIBETEA_SERVER_URL", "https://hub.example.com")
	t.Setenv("VIBETEA_BUFFER_SIZE", "not-a-number")
	_, err := LoadMonitorConfig()
	if err == nil {
		t.Fatal("expected error for invalid buffer size")
	}
}

func TestLoadHubConfigUnsafeMode(t *testing.T) {
	t.Setenv("VIBETEA_UNSAFE_NO_AUTH", "true")
	t.Setenv("VIBETEA_SUBSCRIBER_TOKEN", "")
	t.Setenv("VIBETEA_PUBLIC_KEYS", "")
	cfg, err := LoadHubConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.UnsafeNoAuth {
		t.Fatal("expected UnsafeNoAuth true")
	}
}

func TestLoadHubConfigRequiresKeysWhenAuthEnabled(t *testing.T) {
	t.Setenv("VIBETEA_UNSAFE_NO_AUTH", "false")
	t.Setenv("VIBETEA_SUBSCRIBER_TOKEN", "tok")
	t.Setenv("VIBETEA_PUBLIC_KEYS", "")
	_, err := LoadHubConfig()
	if err == nil {
		t.Fatal("expected error when public keys are missing")
	}
}

func TestLoadHubConfigParsesPublicKeys(t *testing.T) {
	pub, _, _ := ed25519.GenerateKey(nil)
	b64 := base64.StdEncoding.EncodeToString(pub)
	t.Setenv("VIBETEA_UNSAFE_NO_AUTH", "false")
	t.Setenv("VIBETEA_SUBSCRIBER_TOKEN", "tok")
	t.Setenv("VIBETEA_PUBLIC_KEYS", "source1:"+b64)
	cfg, err := LoadHubConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.PublicKeys["source1"]) != ed25519.PublicKeySize {
		t.Fatalf("expected decoded key for source1")
	}
}
