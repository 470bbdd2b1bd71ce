package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"stockverse/models"
	"stockverse/observability"
)

// Quote feed failures. Both are absorbed by the fallback path and only
// surface in logs and metrics.
var (
	ErrNetwork         = errors.New("quote feed unreachable")
	ErrInvalidResponse = errors.New("invalid quote feed response")
)

// DefaultFetchTimeout bounds a single upstream quote request
const DefaultFetchTimeout = 30 * time.Second

// MarketDataClient produces a quote for every roster symbol, preferring
// live data from the proxy and degrading to synthetic data on any failure.
// It owns its cache; construct one and share it.
type MarketDataClient struct {
	apiBase    string
	provider   string
	roster     models.Roster
	httpClient *http.Client
	timeout    time.Duration
	cache      *QuoteCache
	breakers   *CircuitBreakerRegistry
	rng        RandSource
	now        func() time.Time
}

// MarketDataOption customizes a MarketDataClient
type MarketDataOption func(*MarketDataClient)

// WithRoster replaces the default roster
func WithRoster(roster models.Roster) MarketDataOption {
	return func(c *MarketDataClient) { c.roster = roster }
}

// WithHTTPClient sets the HTTP client used for proxy requests
func WithHTTPClient(hc *http.Client) MarketDataOption {
	return func(c *MarketDataClient) { c.httpClient = hc }
}

// WithFetchTimeout sets the per-request timeout
func WithFetchTimeout(d time.Duration) MarketDataOption {
	return func(c *MarketDataClient) { c.timeout = d }
}

// WithCacheTTL sets the quote cache TTL
func WithCacheTTL(ttl time.Duration) MarketDataOption {
	return func(c *MarketDataClient) { c.cache.ttl = ttl }
}

// WithBreakers sets the registry the feed breakers report into.
// The client configures them as FeedBreakerConfig, so they never reject.
func WithBreakers(r *CircuitBreakerRegistry) MarketDataOption {
	return func(c *MarketDataClient) { c.breakers = r }
}

// WithRand sets the random source for synthetic data
func WithRand(r RandSource) MarketDataOption {
	return func(c *MarketDataClient) { c.rng = r }
}

// WithClock sets the clock for quote timestamps and cache ages
func WithClock(now func() time.Time) MarketDataOption {
	return func(c *MarketDataClient) {
		c.now = now
		c.cache.now = now
	}
}

// NewMarketDataClient creates a client for {apiBase}/proxy/{provider}/{symbol}
func NewMarketDataClient(apiBase, provider string, opts ...MarketDataOption) *MarketDataClient {
	c := &MarketDataClient{
		apiBase:    strings.TrimRight(apiBase, "/"),
		provider:   provider,
		roster:     models.DefaultRoster(),
		httpClient: &http.Client{},
		timeout:    DefaultFetchTimeout,
		cache:      NewQuoteCache(DefaultQuoteCacheTTL),
		rng:        NewLockedRand(uint64(time.Now().UnixNano())),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breakers == nil {
		c.breakers = GetGlobalRegistry()
	}
	c.breakers.Configure(BreakerQuotes, FeedBreakerConfig)
	c.breakers.Configure(BreakerHistory, FeedBreakerConfig)
	return c
}

// Roster returns the tracked stocks in display order
func (c *MarketDataClient) Roster() models.Roster {
	return c.roster
}

// Provider returns the proxy provider segment
func (c *MarketDataClient) Provider() string {
	return c.provider
}

// FetchAll returns exactly one quote per roster symbol, in roster order.
// Symbols are fetched concurrently. It never fails: errors become synthetic quotes.
func (c *MarketDataClient) FetchAll(ctx context.Context) []models.Quote {
	var wg sync.WaitGroup
	quotes := make([]models.Quote, len(c.roster))

	for i, stock := range c.roster {
		wg.Add(1)
		go func(idx int, s models.Stock) {
			defer wg.Done()
			quotes[idx] = c.fetchQuote(ctx, s)
		}(i, stock)
	}

	wg.Wait()
	return quotes
}

// FetchSymbol resolves one display symbol through the same cache and
// fallback path as FetchAll. It reports false for symbols outside the roster.
func (c *MarketDataClient) FetchSymbol(ctx context.Context, symbol string) (models.Quote, bool) {
	stock, ok := c.roster.Lookup(symbol)
	if !ok {
		return models.Quote{}, false
	}
	return c.fetchQuote(ctx, stock), true
}

// ClearCache drops all cached quotes so the next fetch goes to the network
func (c *MarketDataClient) ClearCache() {
	c.cache.Clear()
}

func (c *MarketDataClient) fetchQuote(ctx context.Context, stock models.Stock) models.Quote {
	metrics := observability.GetMetrics()

	if q, ok := c.cache.Get(stock.Symbol); ok {
		metrics.RecordCacheLookup(true)
		metrics.RecordQuoteFetch(c.provider, observability.OutcomeCached)
		return q
	}
	metrics.RecordCacheLookup(false)

	q, err := c.fetchLive(ctx, stock)
	if err != nil {
		observability.WithSymbol(stock.Symbol).Warn("quote fetch failed, serving synthetic quote",
			"provider_symbol", stock.ProviderSymbol,
			"kind", errorKind(err),
			"error", err)
		metrics.RecordQuoteFetch(c.provider, observability.OutcomeFallback)
		metrics.RecordFallbackQuote(stock.Symbol)
		return FallbackQuote(stock, c.rng, c.now())
	}

	c.cache.Set(stock.Symbol, q)
	metrics.RecordQuoteFetch(c.provider, observability.OutcomeLive)
	return q
}

func (c *MarketDataClient) fetchLive(ctx context.Context, stock models.Stock) (models.Quote, error) {
	body, err := c.get(ctx, BreakerQuotes, c.proxyURL(stock.ProviderSymbol, nil))
	if err != nil {
		return models.Quote{}, err
	}
	return ParseChartQuote(body, stock, c.now())
}

// FetchHistorical returns the daily close series for a display symbol.
// Symbols outside the roster are passed to the provider as-is.
// On any failure it returns a synthetic days+1 point series.
func (c *MarketDataClient) FetchHistorical(ctx context.Context, symbol string, days int) []models.PricePoint {
	if days < 0 {
		days = 0
	}

	providerSymbol := symbol
	if stock, ok := c.roster.Lookup(symbol); ok {
		providerSymbol = stock.ProviderSymbol
	}

	params := url.Values{}
	params.Set("range", strconv.Itoa(max(days, 1))+"d")
	params.Set("interval", "1d")

	body, err := c.get(ctx, BreakerHistory, c.proxyURL(providerSymbol, params))
	if err == nil {
		var points []models.PricePoint
		points, err = ParseChartHistory(body)
		if err == nil {
			return points
		}
	}

	observability.WithSymbol(symbol).Warn("history fetch failed, serving synthetic series",
		"days", days,
		"kind", errorKind(err),
		"error", err)
	observability.GetMetrics().RecordFallbackQuote(symbol)
	return FallbackHistory(days, c.now(), c.rng)
}

// FetchAllHistorical returns a series per roster display symbol
func (c *MarketDataClient) FetchAllHistorical(ctx context.Context, days int) map[string][]models.PricePoint {
	var wg sync.WaitGroup
	series := make([][]models.PricePoint, len(c.roster))

	for i, stock := range c.roster {
		wg.Add(1)
		go func(idx int, s models.Stock) {
			defer wg.Done()
			series[idx] = c.FetchHistorical(ctx, s.Symbol, days)
		}(i, stock)
	}
	wg.Wait()

	out := make(map[string][]models.PricePoint, len(c.roster))
	for i, stock := range c.roster {
		out[stock.Symbol] = series[i]
	}
	return out
}

func (c *MarketDataClient) proxyURL(providerSymbol string, params url.Values) string {
	u := fmt.Sprintf("%s/proxy/%s/%s", c.apiBase, url.PathEscape(c.provider), url.PathEscape(providerSymbol))
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// get performs one bounded GET through the named feed breaker.
// Every failure it returns wraps ErrNetwork.
func (c *MarketDataClient) get(ctx context.Context, breaker, endpoint string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	timer := observability.GetMetrics().NewTimer()
	defer timer.ObserveQuoteFetch(c.provider)

	body, err := ExecuteTyped(reqCtx, c.breakers, breaker, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("proxy returned status %d", resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	return body, nil
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrBreakerOpen):
		return "breaker_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrInvalidResponse):
		return "invalid_response"
	case errors.Is(err, ErrNetwork):
		return "network"
	default:
		return "unknown"
	}
}
