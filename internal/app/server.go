package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"tradegate/internal/infra"
	"tradegate/internal/proxy"
	"tradegate/internal/ws"

	"github.com/gorilla/mux"
)

// Server wires the gateway's HTTP surface: health check, exchange reverse
// proxy and the WebSocket endpoint.
type Server struct {
	cfg        *infra.Config
	httpServer *http.Server
	hub        *ws.Hub
}

// NewServer assembles the router and all gateway components.
func NewServer(cfg *infra.Config) *Server {
	registry := ws.NewRegistry()
	relay := ws.NewRelay(cfg)
	gateway := ws.NewGateway(registry, relay)
	hub := ws.NewHub(registry)

	r := mux.NewRouter()
	r.HandleFunc("/health", handleHealth).Methods(http.MethodGet)
	r.Handle("/ws", gateway)
	r.PathPrefix("/api/{exchange}").Handler(proxy.NewHandler(cfg))

	return &Server{
		cfg: cfg,
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
		hub: hub,
	}
}

// Broadcaster exposes the event surface backend collaborators integrate with.
func (s *Server) Broadcaster() ws.Broadcaster {
	return s.hub
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
