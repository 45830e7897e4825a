package infra

import (
	"fmt"
	"os"

	"tradegate/internal/domain"

	"gopkg.in/yaml.v3"
)

// Config holds every runtime setting of the gateway.
// Secrets may be overridden through environment variables after load.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Server struct {
		Port       int    `yaml:"port"`
		CORSOrigin string `yaml:"cors_origin"`
	} `yaml:"server"`

	Proxy struct {
		DefaultUpstream      string `yaml:"default_upstream"`
		BinanceTestnetAPIKey string `yaml:"binance_testnet_api_key"`
		DeepseekAPIKey       string `yaml:"deepseek_api_key"`
	} `yaml:"proxy"`

	Stream struct {
		URL          string `yaml:"url"`
		DialAttempts int    `yaml:"dial_attempts"`
	} `yaml:"stream"`

	NATS struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Security first: environment overrides for secrets and deploy-time knobs
	overrideWithEnv(&cfg)

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults fills in the values a minimal config file may omit.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3001
	}
	if cfg.Server.CORSOrigin == "" {
		cfg.Server.CORSOrigin = "*"
	}
	if cfg.Proxy.DefaultUpstream == "" {
		cfg.Proxy.DefaultUpstream = "https://api.binance.com"
	}
	if cfg.Stream.URL == "" {
		cfg.Stream.URL = "wss://testnet.binance.vision/ws"
	}
	if cfg.Stream.DialAttempts <= 0 {
		cfg.Stream.DialAttempts = 3
	}
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = "gateway"
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid listen port: %d", c.Server.Port)
	}
	if !hasPrefix(c.Proxy.DefaultUpstream, "http://") && !hasPrefix(c.Proxy.DefaultUpstream, "https://") {
		return fmt.Errorf("invalid default upstream URL: %s", c.Proxy.DefaultUpstream)
	}
	if !hasPrefix(c.Stream.URL, "ws://") && !hasPrefix(c.Stream.URL, "wss://") {
		return fmt.Errorf("invalid stream URL: %s", c.Stream.URL)
	}
	return nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[0:len(prefix)] == prefix
}

// overrideWithEnv replaces config values with environment variables when set.
func overrideWithEnv(cfg *Config) {
	if port := os.Getenv("TRADEGATE_PORT"); port != "" {
		var p int
		if _, err := fmt.Sscanf(port, "%d", &p); err == nil {
			cfg.Server.Port = p
		}
	}
	if origin := os.Getenv("TRADEGATE_CORS_ORIGIN"); origin != "" {
		cfg.Server.CORSOrigin = origin
	}
	if key := os.Getenv("TRADEGATE_BINANCE_TESTNET_KEY"); key != "" {
		cfg.Proxy.BinanceTestnetAPIKey = key
	}
	if key := os.Getenv("TRADEGATE_DEEPSEEK_KEY"); key != "" {
		cfg.Proxy.DeepseekAPIKey = key
	}
	if url := os.Getenv("TRADEGATE_NATS_URL"); url != "" {
		cfg.NATS.URL = url
	}
}
