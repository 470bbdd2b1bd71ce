package services

import (
	"context"

	"stockverse/models"
)

// QuoteFeed is the market data surface consumed by the poller and the API
type QuoteFeed interface {
	Roster() models.Roster
	FetchAll(ctx context.Context) []models.Quote
	FetchSymbol(ctx context.Context, symbol string) (models.Quote, bool)
	FetchHistorical(ctx context.Context, symbol string, days int) []models.PricePoint
	FetchAllHistorical(ctx context.Context, days int) map[string][]models.PricePoint
	ClearCache()
}

// ChartProvider serves raw chart payloads for the upstream proxy
type ChartProvider interface {
	Name() string
	GetChart(ctx context.Context, req ChartRequest) ([]byte, error)
}

// ChatServiceInterface defines the LLM operations used by the assistant
type ChatServiceInterface interface {
	InvokeWithPrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Chat(ctx context.Context, systemPrompt string, messages []ClaudeMessage) (string, error)
}

// Compile-time interface verification
var _ QuoteFeed = (*MarketDataClient)(nil)
var _ ChartProvider = (*YahooChartService)(nil)
var _ ChartProvider = (*AlpacaService)(nil)
var _ ChatServiceInterface = (*BedrockService)(nil)
