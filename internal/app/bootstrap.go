package app

import (
	"log/slog"
	"os"

	"tradegate/internal/infra"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config *infra.Config
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads configuration and installs the process-wide logger.
func (b *Bootstrap) Initialize() error {
	slog.Info("🚀 Bootstrapping Tradegate...")

	// 1. Load Config
	path := os.Getenv("TRADEGATE_CONFIG")
	if path == "" {
		path = "configs/config.yaml"
	}
	cfg, err := infra.LoadConfig(path)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	slog.Info("Configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("stream_url", cfg.Stream.URL),
		slog.Bool("nats_enabled", cfg.NATS.URL != ""))
	return nil
}
