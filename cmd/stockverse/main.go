// Package main runs the StockVerse HTTP server: quote feed, simulated
// portfolio, quiz gating, StockBot and the chart proxy.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"stockverse/config"
	"stockverse/internal/api"
	"stockverse/internal/app"
	"stockverse/observability"
	"stockverse/replay"
	"stockverse/repository"
	"stockverse/services"
)

func main() {
	// Load environment variables
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		observability.InitLogger(false)
		observability.Fatal("invalid configuration", "error", err)
	}

	level := slog.LevelInfo
	if cfg.Log.Debug {
		level = slog.LevelDebug
	}
	observability.InitLoggerWithLevel(cfg.Log.Production, level)
	observability.InitMetrics()

	if envErr != nil {
		observability.Debug("no .env file found, using environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	breakers := services.GetGlobalRegistry()
	deps := app.Deps{Breakers: breakers}

	deps.Market = services.NewMarketDataClient(cfg.Market.APIBase, cfg.Market.Provider,
		services.WithCacheTTL(cfg.CacheTTL()),
		services.WithFetchTimeout(cfg.FetchTimeout()),
		services.WithBreakers(breakers),
	)
	observability.Info("market data client configured",
		"api_base", cfg.Market.APIBase,
		"provider", cfg.Market.Provider,
	)

	// Chart proxy providers
	deps.Charts = append(deps.Charts, services.NewYahooChartService(cfg.Market.YahooChartURL, cfg.FetchTimeout(), breakers))
	if cfg.HasAlpaca() {
		deps.Charts = append(deps.Charts, services.NewAlpacaService(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, breakers))
	} else {
		observability.Warn("Alpaca API credentials not set, alpaca proxy disabled")
	}

	// StockBot
	if cfg.HasBedrock() {
		bedrock, err := services.NewBedrockService(ctx, cfg.AWS)
		if err != nil {
			observability.Warn("failed to initialize Bedrock service", "error", err)
		} else {
			deps.LLM = bedrock
		}
	} else {
		observability.Warn("AWS_REGION or BEDROCK_MODEL_ID not set, StockBot disabled")
	}

	// User flags survive restarts only with a database
	if cfg.HasDatabase() {
		repo, err := repository.NewRepository(ctx, cfg.Database.URL)
		if err != nil {
			observability.Warn("failed to initialize database, user flags kept in memory", "error", err)
		} else {
			deps.Repo = repo
			deps.Store = repo
			observability.Info("connected to database")
		}
	} else {
		observability.Info("DATABASE_URL not set, user flags kept in memory")
	}

	// Recorded candles behind /api/stock-data and /next_data
	if cfg.HasCandles() {
		rp, err := replay.Load(cfg.Candles.CSVPath)
		if err != nil {
			observability.Warn("failed to load candle file, replay disabled", "error", err)
		} else {
			deps.Candles = rp
		}
	} else {
		observability.Info("CANDLE_CSV_PATH not set, candle replay disabled")
	}

	application, err := app.New(cfg, deps)
	if err != nil {
		observability.Fatal("failed to initialize app", "error", err)
	}
	application.Start(ctx)

	handler := api.NewHandler(application, cfg)
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewRouter(handler, cfg),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
	}
	// Shutdown does not cancel request contexts, so end open quote streams
	server.RegisterOnShutdown(application.CloseStreams)

	go func() {
		observability.Info("starting StockVerse server", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			observability.Fatal("server error", "error", err)
		}
	}()

	<-ctx.Done()
	observability.Info("shutting down StockVerse server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		observability.Error("server forced to shutdown", "error", err)
	}

	appCtx, appCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer appCancel()
	if err := application.Shutdown(appCtx); err != nil {
		observability.Error("app shutdown incomplete", "error", err)
	}
	observability.Info("StockVerse server stopped")
}
