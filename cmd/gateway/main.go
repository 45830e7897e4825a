package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradegate/internal/app"
	"tradegate/internal/bridge"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	// 1. Pprof Server (for performance profiling)
	go func() {
		// Localhost only for security
		slog.Info("🕵️ Pprof server started on localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Gateway Server (REST proxy + WebSocket)
	server := app.NewServer(bootstrap.Config)
	go func() {
		slog.Info("✅ Gateway listening", slog.Int("port", bootstrap.Config.Server.Port))
		if err := server.Start(); err != nil {
			slog.Error("Gateway server failed", slog.Any("error", err))
			stop()
		}
	}()

	// 5. NATS Bridge (internal trade events -> live sessions)
	eventBridge := bridge.New(bootstrap.Config, server.Broadcaster())
	if err := eventBridge.Start(); err != nil {
		slog.Error("Failed to start NATS bridge", slog.Any("error", err))
	}
	defer eventBridge.Stop()

	slog.InfoContext(ctx, "✨ Tradegate fully operational. Press Ctrl+C to exit.")

	// Wait for shutdown signal
	<-ctx.Done()

	slog.InfoContext(ctx, "👋 Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Shutdown incomplete", slog.Any("error", err))
	}
}
