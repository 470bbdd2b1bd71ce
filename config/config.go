package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// MaxStartingCash is the upper bound for a new session's cash balance
var MaxStartingCash = decimal.NewFromInt(100_000)

// Config holds all application configuration
type Config struct {
	// Market data configuration
	Market MarketConfig

	// Simulated portfolio configuration
	Portfolio PortfolioConfig

	// Quiz configuration
	Quiz QuizConfig

	// Database configuration
	Database DatabaseConfig

	// Recorded candle replay
	Candles CandleConfig

	// External service configurations
	Alpaca AlpacaConfig
	AWS    AWSConfig

	// HTTP configuration
	HTTP HTTPConfig

	// Logging configuration
	Log LogConfig
}

// MarketConfig holds quote feed configuration
type MarketConfig struct {
	APIBase                    string // base URL of the quote proxy
	Provider                   string // yahoo or alpaca
	CacheTTLSeconds            int
	FetchTimeoutSeconds        int
	PollIntervalSeconds        int // full roster refresh
	HistoryPollIntervalSeconds int // historical series refresh
	HistoryDays                int
	YahooChartURL              string
}

// PortfolioConfig holds simulated portfolio configuration
type PortfolioConfig struct {
	StartingCash   decimal.Decimal
	MinTradeShares int64
	Currency       string
}

// QuizConfig holds quiz gating configuration
type QuizConfig struct {
	DailyQuestionLimit int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string
}

// CandleConfig holds the recorded OHLCV file served by the replay endpoints
type CandleConfig struct {
	CSVPath string
}

// AlpacaConfig holds Alpaca API configuration
type AlpacaConfig struct {
	APIKey    string
	APISecret string
	BaseURL   string
}

// AWSConfig holds AWS Bedrock configuration for the chat assistant
type AWSConfig struct {
	Region           string
	BedrockModelID   string
	BedrockMaxTokens int
	AnthropicVersion string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Addr               string
	CORSAllowedOrigins string
	TimeoutSeconds     int
}

// LogConfig holds logger configuration
type LogConfig struct {
	Production bool
	Debug      bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Market: MarketConfig{
			APIBase:                    getEnvString("API_BASE", "http://localhost:8000"),
			Provider:                   getEnvString("QUOTE_PROVIDER", "yahoo"),
			CacheTTLSeconds:            getEnvInt("QUOTE_CACHE_TTL_SECONDS", 30),
			FetchTimeoutSeconds:        getEnvInt("QUOTE_FETCH_TIMEOUT_SECONDS", 30),
			PollIntervalSeconds:        getEnvInt("QUOTE_POLL_INTERVAL_SECONDS", 5),
			HistoryPollIntervalSeconds: getEnvInt("HISTORY_POLL_INTERVAL_SECONDS", 30),
			HistoryDays:                getEnvInt("HISTORY_DAYS", 7),
			YahooChartURL:              getEnvString("YAHOO_CHART_URL", "https://query1.finance.yahoo.com/v8/finance/chart"),
		},
		Portfolio: PortfolioConfig{
			StartingCash:   getEnvDecimalRange("STARTING_CASH", decimal.NewFromInt(10_000), decimal.Zero, MaxStartingCash),
			MinTradeShares: int64(getEnvInt("MIN_TRADE_SHARES", 1)),
			Currency:       getEnvString("PORTFOLIO_CURRENCY", "INR"),
		},
		Quiz: QuizConfig{
			DailyQuestionLimit: getEnvInt("DAILY_QUESTION_LIMIT", 10),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Candles: CandleConfig{
			CSVPath: os.Getenv("CANDLE_CSV_PATH"),
		},
		Alpaca: AlpacaConfig{
			APIKey:    os.Getenv("ALPACA_API_KEY"),
			APISecret: os.Getenv("ALPACA_API_SECRET"),
			BaseURL:   getEnvString("ALPACA_BASE_URL", "https://paper-api.alpaca.markets"),
		},
		AWS: AWSConfig{
			Region:           os.Getenv("AWS_REGION"),
			BedrockModelID:   os.Getenv("BEDROCK_MODEL_ID"),
			BedrockMaxTokens: getEnvInt("BEDROCK_MAX_TOKENS", 512),
			AnthropicVersion: getEnvString("BEDROCK_ANTHROPIC_VERSION", "bedrock-2023-05-31"),
		},
		HTTP: HTTPConfig{
			Addr:               getEnvString("HTTP_ADDR", ":8000"),
			CORSAllowedOrigins: getEnvString("CORS_ALLOWED_ORIGINS", "*"),
			TimeoutSeconds:     getEnvInt("HTTP_TIMEOUT_SECONDS", 60),
		},
		Log: LogConfig{
			Production: getEnvString("LOG_FORMAT", "text") == "json",
			Debug:      getEnvBool("LOG_DEBUG", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	u, err := url.Parse(c.Market.APIBase)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("API_BASE must be an absolute URL, got %q", c.Market.APIBase)
	}

	switch c.Market.Provider {
	case "yahoo", "alpaca":
	default:
		return fmt.Errorf("QUOTE_PROVIDER must be yahoo or alpaca, got %q", c.Market.Provider)
	}

	if c.Portfolio.StartingCash.IsNegative() || c.Portfolio.StartingCash.GreaterThan(MaxStartingCash) {
		return fmt.Errorf("STARTING_CASH must be between 0 and %s, got %s", MaxStartingCash, c.Portfolio.StartingCash)
	}

	// Validate positive integers
	if c.Market.CacheTTLSeconds <= 0 {
		return fmt.Errorf("QUOTE_CACHE_TTL_SECONDS must be positive, got %d", c.Market.CacheTTLSeconds)
	}
	if c.Market.FetchTimeoutSeconds <= 0 {
		return fmt.Errorf("QUOTE_FETCH_TIMEOUT_SECONDS must be positive, got %d", c.Market.FetchTimeoutSeconds)
	}
	if c.Market.PollIntervalSeconds <= 0 {
		return fmt.Errorf("QUOTE_POLL_INTERVAL_SECONDS must be positive, got %d", c.Market.PollIntervalSeconds)
	}
	if c.Market.HistoryDays <= 0 {
		return fmt.Errorf("HISTORY_DAYS must be positive, got %d", c.Market.HistoryDays)
	}
	if c.Portfolio.MinTradeShares <= 0 {
		return fmt.Errorf("MIN_TRADE_SHARES must be positive, got %d", c.Portfolio.MinTradeShares)
	}
	if c.Quiz.DailyQuestionLimit <= 0 {
		return fmt.Errorf("DAILY_QUESTION_LIMIT must be positive, got %d", c.Quiz.DailyQuestionLimit)
	}

	return nil
}

// CacheTTL returns the quote cache validity window
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Market.CacheTTLSeconds) * time.Second
}

// FetchTimeout returns the per-request upstream timeout
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Market.FetchTimeoutSeconds) * time.Second
}

// PollInterval returns the roster refresh interval
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Market.PollIntervalSeconds) * time.Second
}

// HistoryPollInterval returns the historical series refresh interval
func (c *Config) HistoryPollInterval() time.Duration {
	return time.Duration(c.Market.HistoryPollIntervalSeconds) * time.Second
}

// HasDatabase returns true if database configuration is available
func (c *Config) HasDatabase() bool {
	return c.Database.URL != ""
}

// HasCandles returns true if a candle file is configured
func (c *Config) HasCandles() bool {
	return c.Candles.CSVPath != ""
}

// HasAlpaca returns true if Alpaca configuration is available
func (c *Config) HasAlpaca() bool {
	return c.Alpaca.APIKey != "" && c.Alpaca.APISecret != ""
}

// HasBedrock returns true if the chat assistant can reach AWS Bedrock
func (c *Config) HasBedrock() bool {
	return c.AWS.Region != "" && c.AWS.BedrockModelID != ""
}

func getEnvString(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDecimalRange(key string, defaultValue, minVal, maxVal decimal.Decimal) decimal.Decimal {
	if val := os.Getenv(key); val != "" {
		if parsed, err := decimal.NewFromString(val); err == nil && !parsed.LessThan(minVal) && !parsed.GreaterThan(maxVal) {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// NewTestConfig creates a Config with default values for testing
func NewTestConfig() *Config {
	return &Config{
		Market: MarketConfig{
			APIBase:                    "http://localhost:8000",
			Provider:                   "yahoo",
			CacheTTLSeconds:            30,
			FetchTimeoutSeconds:        30,
			PollIntervalSeconds:        5,
			HistoryPollIntervalSeconds: 30,
			HistoryDays:                7,
			YahooChartURL:              "https://query1.finance.yahoo.com/v8/finance/chart",
		},
		Portfolio: PortfolioConfig{
			StartingCash:   decimal.NewFromInt(10_000),
			MinTradeShares: 1,
			Currency:       "INR",
		},
		Quiz: QuizConfig{
			DailyQuestionLimit: 10,
		},
		Database: DatabaseConfig{
			URL: "",
		},
		Alpaca: AlpacaConfig{
			BaseURL: "https://paper-api.alpaca.markets",
		},
		AWS: AWSConfig{
			BedrockMaxTokens: 512,
			AnthropicVersion: "bedrock-2023-05-31",
		},
		HTTP: HTTPConfig{
			Addr:               ":8000",
			CORSAllowedOrigins: "*",
			TimeoutSeconds:     60,
		},
	}
}
