package proxy

import (
	"log/slog"
	"net/http"
	"strings"

	"tradegate/internal/infra"
)

// APIKeyHeader is the exchange API-key header the gateway understands.
// Lookups via http.Header are canonicalized, so every case variant a
// client sends (X-MBX-APIKEY, x-mbx-apikey, ...) resolves to this key.
const APIKeyHeader = "X-MBX-APIKEY"

// Route describes how to reach one upstream exchange and how to rewrite
// requests addressed to it. Immutable after table construction.
type Route struct {
	Name    string
	BaseURL string

	// PathPrefix is prepended to the rewritten path when not already present,
	// e.g. "/api/v3" for the Binance spot testnet.
	PathPrefix string

	// APIKey is injected under APIKeyHeader when the caller supplied none.
	APIKey string

	// BearerKey is injected as an Authorization bearer token when the caller
	// supplied no Authorization header.
	BearerKey string
}

// RewritePath strips the gateway mount prefix ("/api/<identifier>") from the
// inbound path and applies the route's prefix rule. Pure function.
func (r Route) RewritePath(original string) string {
	rest := original
	if strings.HasPrefix(rest, "/api/") {
		rest = rest[len("/api"):]
		if i := strings.Index(rest[1:], "/"); i >= 0 {
			rest = rest[1+i:]
		} else {
			rest = "/"
		}
	}
	if r.PathPrefix != "" && !strings.HasPrefix(rest, r.PathPrefix) {
		rest = r.PathPrefix + rest
	}
	return rest
}

// InjectHeaders adds the route's default credentials to an upstream request
// unless the caller already provided its own.
func (r Route) InjectHeaders(h http.Header) {
	if r.APIKey != "" && h.Get(APIKeyHeader) == "" {
		h.Set(APIKeyHeader, r.APIKey)
	}
	if r.BearerKey != "" && h.Get("Authorization") == "" {
		h.Set("Authorization", "Bearer "+r.BearerKey)
	}
}

// Table maps logical exchange identifiers to routes. Read-only after startup.
type Table struct {
	routes   map[string]Route
	fallback Route
	logger   *slog.Logger
}

// NewTable builds the static route table from configuration.
func NewTable(cfg *infra.Config) *Table {
	bases := map[string]string{
		"binance":               "https://api.binance.com",
		"binanceTestnet":        "https://testnet.binance.vision",
		"binanceFuturesTestnet": "https://testnet.binancefuture.com",
		"coinbase":              "https://api.exchange.coinbase.com",
		"coinbaseSandbox":       "https://api-public.sandbox.exchange.coinbase.com",
		"kraken":                "https://api.kraken.com",
		"krakenFutures":         "https://futures.kraken.com",
		"bitfinex":              "https://api.bitfinex.com",
		"bitfinexTestnet":       "https://api-pub.bitfinex.com",
		"kucoin":                "https://api.kucoin.com",
		"kucoinSandbox":         "https://openapi-sandbox.kucoin.com",
		"bybit":                 "https://api.bybit.com",
		"bybitTestnet":          "https://api-testnet.bybit.com",
		"deepseek":              "https://api.deepseek.com",
	}

	routes := make(map[string]Route, len(bases))
	for name, base := range bases {
		routes[name] = Route{Name: name, BaseURL: base}
	}

	// Exchange-specific rules
	bt := routes["binanceTestnet"]
	bt.PathPrefix = "/api/v3"
	bt.APIKey = cfg.Proxy.BinanceTestnetAPIKey
	routes["binanceTestnet"] = bt

	bft := routes["binanceFuturesTestnet"]
	bft.APIKey = cfg.Proxy.BinanceTestnetAPIKey
	routes["binanceFuturesTestnet"] = bft

	ds := routes["deepseek"]
	ds.BearerKey = cfg.Proxy.DeepseekAPIKey
	routes["deepseek"] = ds

	return &Table{
		routes:   routes,
		fallback: Route{Name: "default", BaseURL: cfg.Proxy.DefaultUpstream},
		logger:   slog.Default().With("module", "route_table"),
	}
}

// Resolve returns the route for an exchange identifier. Never fails: an
// unmapped identifier falls back to the default route.
func (t *Table) Resolve(identifier string) Route {
	if route, ok := t.routes[identifier]; ok {
		return route
	}
	t.logger.Warn("Unknown exchange identifier, using default route",
		slog.String("exchange", identifier),
		slog.String("base_url", t.fallback.BaseURL))
	return t.fallback
}
