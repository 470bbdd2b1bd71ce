package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"stockverse/observability"
)

// alpacaMarketData is the subset of the Alpaca market data client used here
type alpacaMarketData interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
	GetLatestTrade(symbol string, req marketdata.GetLatestTradeRequest) (*marketdata.Trade, error)
}

// AlpacaService serves chart payloads built from Alpaca daily bars and the latest trade
type AlpacaService struct {
	dataClient alpacaMarketData
	breakers   *CircuitBreakerRegistry
	now        func() time.Time
}

// NewAlpacaService creates a new AlpacaService instance.
// A nil registry uses the global one.
func NewAlpacaService(apiKey, apiSecret string, breakers *CircuitBreakerRegistry) *AlpacaService {
	dataClient := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	})
	return newAlpacaService(dataClient, breakers)
}

func newAlpacaService(dataClient alpacaMarketData, breakers *CircuitBreakerRegistry) *AlpacaService {
	if breakers == nil {
		breakers = GetGlobalRegistry()
	}
	return &AlpacaService{
		dataClient: dataClient,
		breakers:   breakers,
		now:        time.Now,
	}
}

// Name identifies the provider in routes and metrics
func (s *AlpacaService) Name() string {
	return "alpaca"
}

// GetChart returns a Yahoo-shaped chart payload so quote consumers need no
// provider-specific parsing. The interval is ignored; Alpaca bars are daily.
func (s *AlpacaService) GetChart(ctx context.Context, req ChartRequest) ([]byte, error) {
	days := rangeDays(req.Range)

	metrics := observability.GetMetrics()
	metrics.RecordExternalAPIRequest(BreakerAlpaca, "chart")
	timer := metrics.NewTimer()
	defer timer.ObserveExternalAPI(BreakerAlpaca, "chart")

	chart, err := ExecuteTyped(ctx, s.breakers, BreakerAlpaca, func() (ChartResponse, error) {
		return s.buildChart(req.Symbol, days)
	})
	if err != nil {
		metrics.RecordExternalAPIError(BreakerAlpaca, "chart", errorKind(err))
		return nil, err
	}
	return json.Marshal(chart)
}

func (s *AlpacaService) buildChart(symbol string, days int) (ChartResponse, error) {
	end := s.now()
	// Pad the window so weekends and holidays still leave a previous close.
	start := end.AddDate(0, 0, -(days + 5))

	bars, err := s.dataClient.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       end,
	})
	if err != nil {
		return ChartResponse{}, fmt.Errorf("%w: failed to get bars for %s: %w", ErrNetwork, symbol, err)
	}
	if len(bars) == 0 {
		return ChartResponse{}, &UpstreamError{StatusCode: http.StatusNotFound, Body: []byte("no bars for " + symbol)}
	}

	last := bars[len(bars)-1]
	price := last.Close
	if trade, err := s.dataClient.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{}); err == nil && trade != nil {
		price = trade.Price
	} else if err != nil {
		observability.WithSymbol(symbol).Debug("latest trade unavailable, using last close", "error", err)
	}

	volume := int64(last.Volume)
	high, low, open := last.High, last.Low, last.Open
	meta := ChartMeta{
		Symbol:               symbol,
		Currency:             "USD",
		RegularMarketPrice:   &price,
		RegularMarketVolume:  &volume,
		RegularMarketDayHigh: &high,
		RegularMarketDayLow:  &low,
		RegularMarketOpen:    &open,
	}
	if len(bars) >= 2 {
		prev := bars[len(bars)-2].Close
		meta.PreviousClose = &prev
	}

	series := bars
	if len(series) > days+1 {
		series = series[len(series)-(days+1):]
	}
	timestamps := make([]int64, len(series))
	closes := make([]*float64, len(series))
	for i, bar := range series {
		c := bar.Close
		timestamps[i] = bar.Timestamp.Unix()
		closes[i] = &c
	}

	return ChartResponse{Chart: Chart{Result: []ChartResult{{
		Meta:       meta,
		Timestamp:  timestamps,
		Indicators: ChartIndicators{Quote: []ChartQuoteSeries{{Close: closes}}},
	}}}}, nil
}

// rangeDays converts a Yahoo range such as 7d, 1wk, 3mo or 1y to days.
// Unparseable ranges mean one day.
func rangeDays(r string) int {
	units := []struct {
		suffix string
		days   int
	}{
		{"wk", 7},
		{"mo", 30},
		{"d", 1},
		{"y", 365},
	}
	for _, u := range units {
		if n, ok := strings.CutSuffix(r, u.suffix); ok {
			if v, err := strconv.Atoi(n); err == nil && v > 0 {
				return v * u.days
			}
		}
	}
	return 1
}
