package infra

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"tradegate/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, `
app:
  name: tradegate
logging:
  level: info
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.Port != 3001 {
		t.Errorf("Expected default port 3001, got %d", cfg.Server.Port)
	}
	if cfg.Server.CORSOrigin != "*" {
		t.Errorf("Expected default CORS origin *, got %s", cfg.Server.CORSOrigin)
	}
	if cfg.Proxy.DefaultUpstream != "https://api.binance.com" {
		t.Errorf("Unexpected default upstream: %s", cfg.Proxy.DefaultUpstream)
	}
	if cfg.Stream.URL != "wss://testnet.binance.vision/ws" {
		t.Errorf("Unexpected default stream URL: %s", cfg.Stream.URL)
	}
	if cfg.Stream.DialAttempts != 3 {
		t.Errorf("Expected 3 dial attempts, got %d", cfg.Stream.DialAttempts)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	path := writeConfig(t, `
proxy:
  binance_testnet_api_key: from-file
`)

	t.Setenv("TRADEGATE_BINANCE_TESTNET_KEY", "from-env")
	t.Setenv("TRADEGATE_PORT", "4100")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Proxy.BinanceTestnetAPIKey != "from-env" {
		t.Errorf("Expected env override, got %s", cfg.Proxy.BinanceTestnetAPIKey)
	}
	if cfg.Server.Port != 4100 {
		t.Errorf("Expected port 4100 from env, got %d", cfg.Server.Port)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Run("bad stream URL", func(t *testing.T) {
		path := writeConfig(t, `
stream:
  url: http://not-a-websocket
`)
		if _, err := LoadConfig(path); err == nil {
			t.Error("Expected error for non-ws stream URL")
		}
	})

	t.Run("bad default upstream", func(t *testing.T) {
		path := writeConfig(t, `
proxy:
  default_upstream: ftp://example.com
`)
		if _, err := LoadConfig(path); err == nil {
			t.Error("Expected error for non-http default upstream")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		if !errors.Is(err, domain.ErrConfigNotFound) {
			t.Errorf("Expected ErrConfigNotFound, got %v", err)
		}
	})
}
