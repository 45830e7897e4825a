package proxy

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tradegate/internal/infra"

	"github.com/gorilla/mux"
)

// corsPrefix matches every cross-origin-control header, case-insensitively.
const corsPrefix = "access-control-"

// forwardedHeaders is the whitelist of inbound headers copied upstream.
// Origin is deliberately absent so upstreams never see a cross-origin caller.
var forwardedHeaders = []string{"Authorization", APIKeyHeader, "Content-Type"}

// Handler reverse-proxies REST calls to the exchange resolved from the
// request path and normalizes cross-origin headers on the way back.
type Handler struct {
	table      *Table
	client     *http.Client
	corsOrigin string
	logger     *slog.Logger
}

// NewHandler creates the reverse-proxy handler for /api/{exchange} mounts.
func NewHandler(cfg *infra.Config) *Handler {
	return &Handler{
		table: NewTable(cfg),
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    20,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		corsOrigin: cfg.Server.CORSOrigin,
		logger:     slog.Default().With("module", "proxy"),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Preflight is answered locally, no upstream round trip.
	if r.Method == http.MethodOptions {
		h.setCORS(w, r)
		w.WriteHeader(http.StatusOK)
		return
	}

	start := time.Now()
	route := h.table.Resolve(mux.Vars(r)["exchange"])

	target := route.BaseURL + route.RewritePath(r.URL.Path)
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, target, r.Body)
	if err != nil {
		h.writeError(w, r, "bad_request", err)
		return
	}
	for _, name := range forwardedHeaders {
		if v := r.Header.Get(name); v != "" {
			req.Header.Set(name, v)
		}
	}
	route.InjectHeaders(req.Header)

	resp, err := h.client.Do(req)
	if err != nil {
		// Unreachable upstream still yields a CORS-readable error body.
		infra.GlobalMetrics.RecordProxyFailure()
		h.logger.Error("Upstream request failed",
			slog.String("exchange", route.Name),
			slog.String("target", target),
			slog.Any("error", err))
		h.writeError(w, r, "upstream_unreachable", err)
		return
	}
	defer resp.Body.Close()

	// Pass upstream headers through minus its own CORS policy, then attach ours.
	for name, values := range resp.Header {
		if strings.HasPrefix(strings.ToLower(name), corsPrefix) {
			continue
		}
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	h.setCORS(w, r)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.Warn("Response body relay interrupted", slog.Any("error", err))
	}

	infra.GlobalMetrics.RecordProxiedRequest(time.Since(start))
}

// setCORS installs the gateway's cross-origin policy: exactly these four
// headers, regardless of what the upstream sent.
func (h *Handler) setCORS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = h.corsOrigin
	}
	hdr := w.Header()
	hdr.Set("Access-Control-Allow-Origin", origin)
	hdr.Set("Access-Control-Allow-Credentials", "true")
	hdr.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	hdr.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+APIKeyHeader+", "+strings.ToLower(APIKeyHeader))
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, code string, err error) {
	h.setCORS(w, r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": err.Error(),
	})
}
