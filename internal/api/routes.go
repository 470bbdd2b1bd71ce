package api

import (
	"net/http"
	"time"

	"stockverse/config"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates and configures a Chi router with all routes
func NewRouter(h *Handler, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(CORSMiddleware(cfg.HTTP.CORSAllowedOrigins))
	r.Use(MetricsMiddleware)

	// Metrics endpoint for Prometheus
	r.Handle("/metrics", promhttp.Handler())

	// Long-lived stream, outside the request timeout
	r.Get("/api/quotes/stream", h.HandleStreamQuotes)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second))

		// Chart proxy, same shape as the upstream quote proxy
		r.Get("/proxy/{provider}/{symbol}", h.HandleProxy)

		// StockBot endpoint kept at its legacy path
		r.Post("/get_response", h.HandleStockBot)

		// Recorded candle replay
		r.Get("/next_data", h.HandleNextCandle)
		r.Get("/current_data", h.HandleCurrentCandle)

		// API routes
		r.Route("/api", func(r chi.Router) {
			// Health check
			r.Get("/health", h.HandleHealth)

			// Quotes
			r.Route("/quotes", func(r chi.Router) {
				r.Get("/", h.HandleGetQuotes)
				r.Post("/refresh", h.HandleRefreshQuotes)
				r.Get("/{symbol}", h.HandleGetQuote)
			})

			// Recorded candles for the candlestick chart
			r.Get("/stock-data", h.HandleGetCandles)

			// Historical series
			r.Route("/history", func(r chi.Router) {
				r.Get("/", h.HandleGetHistory)
				r.Get("/{symbol}", h.HandleGetSymbolHistory)
			})

			// Portfolio
			r.Route("/portfolio", func(r chi.Router) {
				r.Get("/", h.HandleGetPortfolio)
				r.Get("/trades", h.HandleGetTrades)
				r.Post("/trades", h.HandlePlaceTrade)
				r.Post("/reset", h.HandleResetPortfolio)
			})

			// Per-user flags
			r.Route("/users/{user}", func(r chi.Router) {
				r.Delete("/", h.HandleDeleteUser)
				r.Get("/tutorial", h.HandleGetTutorial)
				r.Put("/tutorial", h.HandleSetTutorial)
				r.Get("/quota", h.HandleGetQuota)
				r.Post("/quota/answer", h.HandleAnswerQuestion)
				r.Post("/quota/reset", h.HandleResetQuota)
			})

			// StockBot
			r.Post("/stockbot", h.HandleStockBot)

			// Proxy providers
			r.Get("/proxy/providers", h.HandleListProviders)
		})
	})

	return r
}

// CORSMiddleware returns CORS middleware with the specified allowed origins
func CORSMiddleware(allowedOrigins string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
