package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"stockverse/models"
	"stockverse/observability"
)

// ChartResponse is the Yahoo Finance v8 chart payload. The proxy passes it
// through verbatim and the alpaca provider produces the same shape.
type ChartResponse struct {
	Chart Chart `json:"chart"`
}

// Chart wraps the result list and the upstream error, if any
type Chart struct {
	Result []ChartResult `json:"result"`
	Error  *ChartError   `json:"error"`
}

// ChartError is Yahoo's error object
type ChartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// ChartResult is one symbol's chart
type ChartResult struct {
	Meta       ChartMeta       `json:"meta"`
	Timestamp  []int64         `json:"timestamp,omitempty"`
	Indicators ChartIndicators `json:"indicators"`
}

// ChartMeta carries the intraday summary used for quotes
type ChartMeta struct {
	Symbol               string   `json:"symbol"`
	Currency             string   `json:"currency,omitempty"`
	RegularMarketPrice   *float64 `json:"regularMarketPrice"`
	PreviousClose        *float64 `json:"previousClose"`
	RegularMarketVolume  *int64   `json:"regularMarketVolume,omitempty"`
	RegularMarketDayHigh *float64 `json:"regularMarketDayHigh,omitempty"`
	RegularMarketDayLow  *float64 `json:"regularMarketDayLow,omitempty"`
	RegularMarketOpen    *float64 `json:"regularMarketOpen,omitempty"`
}

// ChartIndicators holds the per-timestamp series
type ChartIndicators struct {
	Quote []ChartQuoteSeries `json:"quote"`
}

// ChartQuoteSeries holds close prices aligned with ChartResult.Timestamp.
// Yahoo reports missing bars as null.
type ChartQuoteSeries struct {
	Close []*float64 `json:"close"`
}

// ParseChartQuote turns a chart payload into a quote for stock.
// Price, change and change percent are rounded to two places.
func ParseChartQuote(body []byte, stock models.Stock, now time.Time) (models.Quote, error) {
	result, err := decodeChart(body)
	if err != nil {
		return models.Quote{}, err
	}

	meta := result.Meta
	if meta.RegularMarketPrice == nil {
		return models.Quote{}, fmt.Errorf("%w: missing regularMarketPrice", ErrInvalidResponse)
	}
	if *meta.RegularMarketPrice < 0 {
		return models.Quote{}, fmt.Errorf("%w: negative regularMarketPrice %v", ErrInvalidResponse, *meta.RegularMarketPrice)
	}
	if meta.PreviousClose == nil || *meta.PreviousClose == 0 {
		return models.Quote{}, fmt.Errorf("%w: missing previousClose", ErrInvalidResponse)
	}

	price := decimal.NewFromFloat(*meta.RegularMarketPrice)
	prev := decimal.NewFromFloat(*meta.PreviousClose)
	change := price.Sub(prev)
	changePct := change.Div(prev).Mul(decimal.NewFromInt(100))

	quote := models.Quote{
		Symbol:        stock.Symbol,
		Name:          stock.Name,
		Price:         models.RoundPrice(price),
		Change:        models.RoundPrice(change),
		ChangePercent: models.RoundPrice(changePct),
		Volume:        meta.RegularMarketVolume,
		High:          optionalPrice(meta.RegularMarketDayHigh),
		Low:           optionalPrice(meta.RegularMarketDayLow),
		Open:          optionalPrice(meta.RegularMarketOpen),
		Source:        models.QuoteSourceLive,
		FetchedAt:     now,
	}
	return quote, nil
}

// ParseChartHistory extracts the daily close series, dropping null and
// non-positive closes. Dates are rendered in UTC.
func ParseChartHistory(body []byte) ([]models.PricePoint, error) {
	result, err := decodeChart(body)
	if err != nil {
		return nil, err
	}
	if len(result.Timestamp) == 0 || len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("%w: missing timestamp or quote series", ErrInvalidResponse)
	}

	closes := result.Indicators.Quote[0].Close
	points := make([]models.PricePoint, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil || *closes[i] <= 0 {
			continue
		}
		points = append(points, models.PricePoint{
			Date:  time.Unix(ts, 0).UTC().Format(time.DateOnly),
			Price: models.RoundPrice(decimal.NewFromFloat(*closes[i])),
		})
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: no positive closes", ErrInvalidResponse)
	}
	return points, nil
}

func decodeChart(body []byte) (ChartResult, error) {
	var resp ChartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return ChartResult{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if resp.Chart.Error != nil {
		return ChartResult{}, fmt.Errorf("%w: %s: %s", ErrInvalidResponse, resp.Chart.Error.Code, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return ChartResult{}, fmt.Errorf("%w: empty chart result", ErrInvalidResponse)
	}
	return resp.Chart.Result[0], nil
}

func optionalPrice(v *float64) *decimal.Decimal {
	if v == nil {
		return nil
	}
	d := models.RoundPrice(decimal.NewFromFloat(*v))
	return &d
}

// UpstreamError reports a non-2xx status from an upstream chart source
type UpstreamError struct {
	StatusCode int
	Body       []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// ChartRequest selects the chart window for a provider
type ChartRequest struct {
	Symbol   string
	Interval string // e.g. 1m, 1d
	Range    string // e.g. 1d, 7d
}

// YahooChartService fetches raw chart payloads from Yahoo Finance
type YahooChartService struct {
	baseURL    string
	httpClient *http.Client
	breakers   *CircuitBreakerRegistry
}

// NewYahooChartService creates a new YahooChartService instance.
// A nil registry uses the global one.
func NewYahooChartService(baseURL string, timeout time.Duration, breakers *CircuitBreakerRegistry) *YahooChartService {
	if breakers == nil {
		breakers = GetGlobalRegistry()
	}
	return &YahooChartService{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		breakers: breakers,
	}
}

// Name identifies the provider in routes and metrics
func (s *YahooChartService) Name() string {
	return "yahoo"
}

// GetChart returns the upstream chart JSON for req verbatim.
// Non-2xx statuses come back as *UpstreamError.
func (s *YahooChartService) GetChart(ctx context.Context, req ChartRequest) ([]byte, error) {
	params := url.Values{}
	params.Set("interval", req.Interval)
	params.Set("range", req.Range)
	endpoint := fmt.Sprintf("%s/%s?%s", s.baseURL, url.PathEscape(req.Symbol), params.Encode())

	metrics := observability.GetMetrics()
	metrics.RecordExternalAPIRequest(BreakerYahoo, "chart")
	timer := metrics.NewTimer()
	defer timer.ObserveExternalAPI(BreakerYahoo, "chart")

	return ExecuteTyped(ctx, s.breakers, BreakerYahoo, func() ([]byte, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		// Yahoo rejects requests without a browser-like agent
		httpReq.Header.Set("User-Agent", "Mozilla/5.0")

		resp, err := s.httpClient.Do(httpReq)
		if err != nil {
			metrics.RecordExternalAPIError(BreakerYahoo, "chart", "transport")
			return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			metrics.RecordExternalAPIError(BreakerYahoo, "chart", "read")
			return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
		}
		if resp.StatusCode != http.StatusOK {
			metrics.RecordExternalAPIError(BreakerYahoo, "chart", "status")
			return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: body}
		}
		return body, nil
	})
}

// IsUpstreamError reports whether err carries an upstream status
func IsUpstreamError(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}
