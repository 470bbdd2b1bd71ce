package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"stockverse/config"
	"stockverse/internal/app"
	"stockverse/models"
	"stockverse/observability"
	"stockverse/portfolio"
	"stockverse/prefs"
)

// MaxHistoryDays caps the days query parameter
const MaxHistoryDays = 365

var symbolPattern = regexp.MustCompile(`^[A-Z0-9.\-^=]+$`)

// Handler handles HTTP API requests
type Handler struct {
	app *app.App
	cfg *config.Config
}

// NewHandler creates a new Handler
func NewHandler(application *app.App, cfg *config.Config) *Handler {
	return &Handler{app: application, cfg: cfg}
}

// HandleHealth returns the health status of the application
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status": "ok",
		"services": map[string]string{
			"database": "unknown",
			"stockbot": "not_configured",
		},
	}
	svc := status["services"].(map[string]string)

	if h.app.Repo() != nil {
		if err := h.app.Repo().Health(r.Context()); err == nil {
			svc["database"] = "connected"
		} else {
			svc["database"] = "disconnected"
			status["status"] = "degraded"
		}
	} else {
		svc["database"] = "not_configured"
	}

	if h.app.StockBotAvailable() {
		svc["stockbot"] = "configured"
	}

	// Add circuit breaker status
	cbStatus := h.app.Breakers().Status()
	status["circuit_breakers"] = cbStatus

	// Check if any breakers are open (degraded state)
	for _, cb := range cbStatus {
		if cb.State == "open" {
			status["status"] = "degraded"
			break
		}
	}

	h.jsonResponse(w, status)
}

// HandleGetQuotes returns the latest roster snapshot
func (h *Handler) HandleGetQuotes(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, h.app.Quotes(r.Context()))
}

// HandleGetQuote returns one symbol's latest quote
func (h *Handler) HandleGetQuote(w http.ResponseWriter, r *http.Request) {
	symbol, ok := h.symbolParam(w, r)
	if !ok {
		return
	}

	q, found := h.app.Quote(r.Context(), symbol)
	if !found {
		h.jsonError(w, fmt.Sprintf("symbol %s is not tracked", symbol), http.StatusNotFound)
		return
	}
	h.jsonResponse(w, q)
}

// HandleRefreshQuotes drops the quote cache and refetches the roster
func (h *Handler) HandleRefreshQuotes(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, h.app.RefreshQuotes(r.Context()))
}

// HandleStreamQuotes pushes each new snapshot as a server-sent event
func (h *Handler) HandleStreamQuotes(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.jsonError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	updates, cancel := h.app.SubscribeQuotes()
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				observability.WithContext(r.Context()).Error("failed to encode snapshot", "error", err)
				return
			}
			if _, err := fmt.Fprintf(w, "event: quotes\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// HandleGetHistory returns every roster symbol's series
func (h *Handler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	days, err := h.ParseDaysParam(r)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.jsonResponse(w, map[string]interface{}{
		"days":   days,
		"series": h.app.History(r.Context(), days),
	})
}

// HandleGetSymbolHistory returns one symbol's series
func (h *Handler) HandleGetSymbolHistory(w http.ResponseWriter, r *http.Request) {
	symbol, ok := h.symbolParam(w, r)
	if !ok {
		return
	}
	days, err := h.ParseDaysParam(r)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	series, found := h.app.SymbolHistory(r.Context(), symbol, days)
	if !found {
		h.jsonError(w, fmt.Sprintf("symbol %s is not tracked", symbol), http.StatusNotFound)
		return
	}
	h.jsonResponse(w, map[string]interface{}{
		"symbol": symbol,
		"days":   days,
		"points": series,
	})
}

// HandleGetPortfolio returns the valued session portfolio
func (h *Handler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, h.app.Portfolio(r.Context()))
}

// TradeRequest represents a simulated order
type TradeRequest struct {
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	Quantity int64  `json:"quantity"`
}

// HandlePlaceTrade fills a simulated order at the latest price
func (h *Handler) HandlePlaceTrade(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if err := h.ValidateSymbol(req.Symbol); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	side := models.TradeSide(strings.ToLower(strings.TrimSpace(req.Side)))

	trade, err := h.app.Trade(r.Context(), req.Symbol, side, req.Quantity)
	if err != nil {
		h.jsonError(w, err.Error(), tradeErrorStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"trade":     trade,
		"portfolio": h.app.Portfolio(r.Context()),
	})
}

func tradeErrorStatus(err error) int {
	switch {
	case errors.Is(err, portfolio.ErrUnknownSymbol):
		return http.StatusNotFound
	case errors.Is(err, portfolio.ErrInsufficientFunds), errors.Is(err, portfolio.ErrInsufficientShares):
		return http.StatusUnprocessableEntity
	case errors.Is(err, portfolio.ErrInvalidQuantity), errors.Is(err, portfolio.ErrInvalidPrice), errors.Is(err, portfolio.ErrInvalidSide):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// HandleGetTrades returns the most recent trades, newest first
func (h *Handler) HandleGetTrades(w http.ResponseWriter, r *http.Request) {
	limit := h.ParseLimitParam(r, 50)

	trades := h.app.Trades()
	out := make([]models.Trade, 0, min(limit, len(trades)))
	for i := len(trades) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, trades[i])
	}
	h.jsonResponse(w, out)
}

// HandleResetPortfolio restores the starting balance
func (h *Handler) HandleResetPortfolio(w http.ResponseWriter, r *http.Request) {
	h.app.ResetPortfolio()
	h.jsonResponse(w, h.app.Portfolio(r.Context()))
}

// TutorialRequest sets the tutorial flag
type TutorialRequest struct {
	Completed bool `json:"completed"`
}

// HandleGetTutorial returns whether the user finished the tutorial
func (h *Handler) HandleGetTutorial(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	done, err := h.app.Prefs().TutorialCompleted(r.Context(), user)
	if err != nil {
		h.jsonError(w, err.Error(), prefsErrorStatus(err))
		return
	}
	h.jsonResponse(w, map[string]interface{}{"user": user, "completed": done})
}

// HandleSetTutorial stores the tutorial flag
func (h *Handler) HandleSetTutorial(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")

	req := TutorialRequest{Completed: true}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.jsonError(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	if err := h.app.Prefs().SetTutorialCompleted(r.Context(), user, req.Completed); err != nil {
		h.jsonError(w, err.Error(), prefsErrorStatus(err))
		return
	}
	h.jsonResponse(w, map[string]interface{}{"user": user, "completed": req.Completed})
}

// HandleGetQuota returns the user's daily question quota
func (h *Handler) HandleGetQuota(w http.ResponseWriter, r *http.Request) {
	st, err := h.app.Prefs().Quota(r.Context(), chi.URLParam(r, "user"))
	if err != nil {
		h.jsonError(w, err.Error(), prefsErrorStatus(err))
		return
	}
	h.jsonResponse(w, st)
}

// HandleAnswerQuestion counts one answered question
func (h *Handler) HandleAnswerQuestion(w http.ResponseWriter, r *http.Request) {
	st, err := h.app.Prefs().RecordAnswer(r.Context(), chi.URLParam(r, "user"))
	if errors.Is(err, models.ErrDailyLimitReached) {
		w.Header().Set("Retry-After", strconv.FormatInt((st.ResetInMs+999)/1000, 10))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": err.Error(),
			"quota": st,
		})
		return
	}
	if err != nil {
		h.jsonError(w, err.Error(), prefsErrorStatus(err))
		return
	}
	h.jsonResponse(w, st)
}

// HandleResetQuota starts a fresh quota window
func (h *Handler) HandleResetQuota(w http.ResponseWriter, r *http.Request) {
	st, err := h.app.Prefs().ResetQuota(r.Context(), chi.URLParam(r, "user"))
	if err != nil {
		h.jsonError(w, err.Error(), prefsErrorStatus(err))
		return
	}
	h.jsonResponse(w, st)
}

// HandleDeleteUser clears the tutorial flag and quota for a user
func (h *Handler) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Prefs().DeleteUser(r.Context(), chi.URLParam(r, "user")); err != nil {
		h.jsonError(w, err.Error(), prefsErrorStatus(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func prefsErrorStatus(err error) int {
	if errors.Is(err, prefs.ErrInvalidUser) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// DefaultCandleLimit is the tail window served when no limit is given
const DefaultCandleLimit = 50

const errReplayDisabled = "candle replay not configured"

// HandleGetCandles returns the last limit recorded candles
func (h *Handler) HandleGetCandles(w http.ResponseWriter, r *http.Request) {
	rp := h.app.Candles()
	if rp == nil {
		h.jsonError(w, errReplayDisabled, http.StatusServiceUnavailable)
		return
	}
	data := rp.Last(h.ParseLimitParam(r, DefaultCandleLimit))
	h.jsonResponse(w, map[string]interface{}{
		"status": "success",
		"count":  len(data),
		"data":   data,
	})
}

// HandleNextCandle advances the replay cursor and returns the new tick
func (h *Handler) HandleNextCandle(w http.ResponseWriter, r *http.Request) {
	rp := h.app.Candles()
	if rp == nil {
		h.jsonError(w, errReplayDisabled, http.StatusServiceUnavailable)
		return
	}
	h.jsonResponse(w, rp.Next().Tick())
}

// HandleCurrentCandle returns the last tick served by HandleNextCandle
func (h *Handler) HandleCurrentCandle(w http.ResponseWriter, r *http.Request) {
	rp := h.app.Candles()
	if rp == nil {
		h.jsonError(w, errReplayDisabled, http.StatusServiceUnavailable)
		return
	}
	c, ok := rp.Current()
	if !ok {
		h.jsonResponse(w, models.ReplayTick{})
		return
	}
	h.jsonResponse(w, c.Tick())
}

// StockBotRequest is a chat message
type StockBotRequest struct {
	Message string `json:"message"`
}

// StockBotResponse is StockBot's reply
type StockBotResponse struct {
	Response string `json:"response"`
}

// HandleStockBot answers a chat message. It always responds 200 with a reply.
func (h *Handler) HandleStockBot(w http.ResponseWriter, r *http.Request) {
	var req StockBotRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	h.jsonResponse(w, StockBotResponse{Response: h.app.AskStockBot(r.Context(), req.Message)})
}

// Helper functions

// symbolParam reads and validates the {symbol} route parameter
func (h *Handler) symbolParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	symbol := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "symbol")))
	if err := h.ValidateSymbol(symbol); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return symbol, true
}

// ValidateSymbol validates a stock symbol
func (h *Handler) ValidateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("symbol is required")
	}

	if len(symbol) > 10 {
		return fmt.Errorf("symbol too long (max 10 characters)")
	}

	if !symbolPattern.MatchString(symbol) {
		return fmt.Errorf("invalid symbol format (letters, digits, and . - ^ = only)")
	}

	return nil
}

// ParseLimitParam parses the limit query parameter
func (h *Handler) ParseLimitParam(r *http.Request, defaultLimit int) int {
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			return l
		}
	}
	return defaultLimit
}

// ParseDaysParam parses the days query parameter, defaulting to the configured window
func (h *Handler) ParseDaysParam(r *http.Request) (int, error) {
	daysStr := r.URL.Query().Get("days")
	if daysStr == "" {
		return h.cfg.Market.HistoryDays, nil
	}
	days, err := strconv.Atoi(daysStr)
	if err != nil || days < 1 || days > MaxHistoryDays {
		return 0, fmt.Errorf("days must be between 1 and %d", MaxHistoryDays)
	}
	return days, nil
}

func (h *Handler) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
