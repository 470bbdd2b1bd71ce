package config

import (
	"os"
	"testing"

	"github.com/shopspring/decimal"
)

// saveEnv saves current environment variables for restoration
func saveEnv(t *testing.T, keys []string) map[string]string {
	t.Helper()
	saved := make(map[string]string)
	for _, key := range keys {
		saved[key] = os.Getenv(key)
	}
	return saved
}

// restoreEnv restores previously saved environment variables
func restoreEnv(t *testing.T, saved map[string]string) {
	t.Helper()
	for key, val := range saved {
		if val == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, val)
		}
	}
}

// clearEnv clears environment variables
func clearEnv(t *testing.T, keys []string) {
	t.Helper()
	for _, key := range keys {
		os.Unsetenv(key)
	}
}

var allEnvKeys = []string{
	"API_BASE",
	"QUOTE_PROVIDER",
	"QUOTE_CACHE_TTL_SECONDS",
	"QUOTE_FETCH_TIMEOUT_SECONDS",
	"QUOTE_POLL_INTERVAL_SECONDS",
	"HISTORY_POLL_INTERVAL_SECONDS",
	"HISTORY_DAYS",
	"YAHOO_CHART_URL",
	"STARTING_CASH",
	"MIN_TRADE_SHARES",
	"PORTFOLIO_CURRENCY",
	"DAILY_QUESTION_LIMIT",
	"DATABASE_URL",
	"CANDLE_CSV_PATH",
	"ALPACA_API_KEY",
	"ALPACA_API_SECRET",
	"ALPACA_BASE_URL",
	"AWS_REGION",
	"BEDROCK_MODEL_ID",
	"BEDROCK_MAX_TOKENS",
	"BEDROCK_ANTHROPIC_VERSION",
	"HTTP_ADDR",
	"CORS_ALLOWED_ORIGINS",
	"HTTP_TIMEOUT_SECONDS",
	"LOG_FORMAT",
	"LOG_DEBUG",
}

func TestLoad_Defaults(t *testing.T) {
	saved := saveEnv(t, allEnvKeys)
	defer restoreEnv(t, saved)
	clearEnv(t, allEnvKeys)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() with defaults failed: %v", err)
	}

	if cfg.Market.APIBase != "http://localhost:8000" {
		t.Errorf("expected APIBase='http://localhost:8000', got %s", cfg.Market.APIBase)
	}
	if cfg.Market.Provider != "yahoo" {
		t.Errorf("expected Provider='yahoo', got %s", cfg.Market.Provider)
	}
	if cfg.Market.CacheTTLSeconds != 30 {
		t.Errorf("expected CacheTTLSeconds=30, got %d", cfg.Market.CacheTTLSeconds)
	}
	if cfg.Market.FetchTimeoutSeconds != 30 {
		t.Errorf("expected FetchTimeoutSeconds=30, got %d", cfg.Market.FetchTimeoutSeconds)
	}
	if cfg.Market.PollIntervalSeconds != 5 {
		t.Errorf("expected PollIntervalSeconds=5, got %d", cfg.Market.PollIntervalSeconds)
	}
	if cfg.Market.HistoryPollIntervalSeconds != 30 {
		t.Errorf("expected HistoryPollIntervalSeconds=30, got %d", cfg.Market.HistoryPollIntervalSeconds)
	}
	if cfg.Market.HistoryDays != 7 {
		t.Errorf("expected HistoryDays=7, got %d", cfg.Market.HistoryDays)
	}
	if !cfg.Portfolio.StartingCash.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("expected StartingCash=10000, got %s", cfg.Portfolio.StartingCash)
	}
	if cfg.Quiz.DailyQuestionLimit != 10 {
		t.Errorf("expected DailyQuestionLimit=10, got %d", cfg.Quiz.DailyQuestionLimit)
	}
	if cfg.AWS.AnthropicVersion != "bedrock-2023-05-31" {
		t.Errorf("expected AnthropicVersion='bedrock-2023-05-31', got %s", cfg.AWS.AnthropicVersion)
	}
	if cfg.HTTP.Addr != ":8000" {
		t.Errorf("expected Addr=':8000', got %s", cfg.HTTP.Addr)
	}
	if cfg.Log.Production {
		t.Error("expected text logging by default")
	}
	if cfg.HasDatabase() || cfg.HasAlpaca() || cfg.HasBedrock() || cfg.HasCandles() {
		t.Error("expected no optional services configured by default")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	saved := saveEnv(t, allEnvKeys)
	defer restoreEnv(t, saved)
	clearEnv(t, allEnvKeys)

	os.Setenv("API_BASE", "https://quotes.example.com")
	os.Setenv("QUOTE_PROVIDER", "alpaca")
	os.Setenv("QUOTE_CACHE_TTL_SECONDS", "10")
	os.Setenv("QUOTE_POLL_INTERVAL_SECONDS", "15")
	os.Setenv("STARTING_CASH", "50000.50")
	os.Setenv("DAILY_QUESTION_LIMIT", "3")
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	os.Setenv("CANDLE_CSV_PATH", "/data/nifty.csv")
	os.Setenv("AWS_REGION", "us-west-2")
	os.Setenv("BEDROCK_MODEL_ID", "anthropic.claude-3-haiku")
	os.Setenv("LOG_FORMAT", "json")
	os.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() with custom values failed: %v", err)
	}

	if cfg.Market.APIBase != "https://quotes.example.com" {
		t.Errorf("expected APIBase='https://quotes.example.com', got %s", cfg.Market.APIBase)
	}
	if cfg.Market.Provider != "alpaca" {
		t.Errorf("expected Provider='alpaca', got %s", cfg.Market.Provider)
	}
	if cfg.CacheTTL().Seconds() != 10 {
		t.Errorf("expected CacheTTL()=10s, got %v", cfg.CacheTTL())
	}
	if cfg.PollInterval().Seconds() != 15 {
		t.Errorf("expected PollInterval()=15s, got %v", cfg.PollInterval())
	}
	if !cfg.Portfolio.StartingCash.Equal(decimal.RequireFromString("50000.50")) {
		t.Errorf("expected StartingCash=50000.50, got %s", cfg.Portfolio.StartingCash)
	}
	if cfg.Quiz.DailyQuestionLimit != 3 {
		t.Errorf("expected DailyQuestionLimit=3, got %d", cfg.Quiz.DailyQuestionLimit)
	}
	if !cfg.HasDatabase() {
		t.Error("expected HasDatabase() to be true")
	}
	if !cfg.HasBedrock() {
		t.Error("expected HasBedrock() to be true")
	}
	if !cfg.HasCandles() || cfg.Candles.CSVPath != "/data/nifty.csv" {
		t.Errorf("expected CSVPath='/data/nifty.csv', got %q", cfg.Candles.CSVPath)
	}
	if !cfg.Log.Production {
		t.Error("expected json logging")
	}
	if cfg.HTTP.CORSAllowedOrigins != "http://localhost:3000" {
		t.Errorf("expected CORSAllowedOrigins='http://localhost:3000', got %s", cfg.HTTP.CORSAllowedOrigins)
	}
}

func TestLoad_StartingCashOutOfRangeUsesDefault(t *testing.T) {
	tests := []struct {
		name string
		val  string
	}{
		{name: "negative", val: "-1"},
		{name: "above max", val: "100000.01"},
		{name: "not a number", val: "lots"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			saved := saveEnv(t, allEnvKeys)
			defer restoreEnv(t, saved)
			clearEnv(t, allEnvKeys)

			os.Setenv("STARTING_CASH", tt.val)

			cfg, err := Load()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !cfg.Portfolio.StartingCash.Equal(decimal.NewFromInt(10000)) {
				t.Errorf("expected default StartingCash, got %s", cfg.Portfolio.StartingCash)
			}
		})
	}
}

func TestLoad_StartingCashBounds(t *testing.T) {
	for _, val := range []string{"0", "100000"} {
		saved := saveEnv(t, allEnvKeys)
		clearEnv(t, allEnvKeys)
		os.Setenv("STARTING_CASH", val)

		cfg, err := Load()
		restoreEnv(t, saved)
		if err != nil {
			t.Fatalf("Load() with STARTING_CASH=%s failed: %v", val, err)
		}
		if !cfg.Portfolio.StartingCash.Equal(decimal.RequireFromString(val)) {
			t.Errorf("expected StartingCash=%s, got %s", val, cfg.Portfolio.StartingCash)
		}
	}
}

func TestValidate_Provider(t *testing.T) {
	saved := saveEnv(t, allEnvKeys)
	defer restoreEnv(t, saved)
	clearEnv(t, allEnvKeys)

	os.Setenv("QUOTE_PROVIDER", "bloomberg")

	if _, err := Load(); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestValidate_APIBase(t *testing.T) {
	cfg := NewTestConfig()
	cfg.Market.APIBase = "not a url"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for relative API base")
	}

	cfg.Market.APIBase = "http://127.0.0.1:9000"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_PositiveIntegers(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero cache ttl", mutate: func(c *Config) { c.Market.CacheTTLSeconds = 0 }},
		{name: "zero fetch timeout", mutate: func(c *Config) { c.Market.FetchTimeoutSeconds = 0 }},
		{name: "zero poll interval", mutate: func(c *Config) { c.Market.PollIntervalSeconds = 0 }},
		{name: "zero history days", mutate: func(c *Config) { c.Market.HistoryDays = 0 }},
		{name: "zero min trade", mutate: func(c *Config) { c.Portfolio.MinTradeShares = 0 }},
		{name: "zero question limit", mutate: func(c *Config) { c.Quiz.DailyQuestionLimit = 0 }},
		{name: "negative starting cash", mutate: func(c *Config) { c.Portfolio.StartingCash = decimal.NewFromInt(-5) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewTestConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewTestConfig_Valid(t *testing.T) {
	if err := NewTestConfig().Validate(); err != nil {
		t.Errorf("NewTestConfig() should validate, got %v", err)
	}
}

func TestHasDatabase(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{URL: ""},
	}
	if cfg.HasDatabase() {
		t.Error("expected HasDatabase() to return false for empty URL")
	}

	cfg.Database.URL = "postgres://localhost/test"
	if !cfg.HasDatabase() {
		t.Error("expected HasDatabase() to return true for non-empty URL")
	}
}

func TestHasBedrock(t *testing.T) {
	cfg := &Config{
		AWS: AWSConfig{Region: "", BedrockModelID: ""},
	}
	if cfg.HasBedrock() {
		t.Error("expected HasBedrock() to return false for empty config")
	}

	cfg.AWS.Region = "us-west-2"
	if cfg.HasBedrock() {
		t.Error("expected HasBedrock() to return false without model ID")
	}

	cfg.AWS.BedrockModelID = "anthropic.claude-3-haiku"
	if !cfg.HasBedrock() {
		t.Error("expected HasBedrock() to return true for complete config")
	}
}

func TestHasAlpaca(t *testing.T) {
	cfg := &Config{
		Alpaca: AlpacaConfig{APIKey: "", APISecret: ""},
	}
	if cfg.HasAlpaca() {
		t.Error("expected HasAlpaca() to return false for empty config")
	}

	cfg.Alpaca.APIKey = "key"
	if cfg.HasAlpaca() {
		t.Error("expected HasAlpaca() to return false without secret")
	}

	cfg.Alpaca.APISecret = "secret"
	if !cfg.HasAlpaca() {
		t.Error("expected HasAlpaca() to return true for complete config")
	}
}

func TestGetEnvInt(t *testing.T) {
	key := "TEST_GET_ENV_INT"
	defer os.Unsetenv(key)

	os.Unsetenv(key)
	if got := getEnvInt(key, 42); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}

	os.Setenv(key, "100")
	if got := getEnvInt(key, 42); got != 100 {
		t.Errorf("expected 100, got %d", got)
	}

	os.Setenv(key, "invalid")
	if got := getEnvInt(key, 42); got != 42 {
		t.Errorf("expected 42 for invalid value, got %d", got)
	}

	// Zero returns default
	os.Setenv(key, "0")
	if got := getEnvInt(key, 42); got != 42 {
		t.Errorf("expected 42 for zero value, got %d", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	key := "TEST_GET_ENV_BOOL"
	defer os.Unsetenv(key)

	os.Unsetenv(key)
	if got := getEnvBool(key, true); !got {
		t.Error("expected default true")
	}

	os.Setenv(key, "false")
	if got := getEnvBool(key, true); got {
		t.Error("expected false")
	}

	os.Setenv(key, "maybe")
	if got := getEnvBool(key, false); got {
		t.Error("expected default false for invalid value")
	}
}
