package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"stockverse/config"
	"stockverse/internal/app"
	"stockverse/models"
	"stockverse/portfolio"
	"stockverse/replay"
	"stockverse/services"
)

// fakeMarket serves the default roster at its base prices
type fakeMarket struct {
	mu     sync.Mutex
	roster models.Roster
	prices map[string]decimal.Decimal
}

func newFakeMarket() *fakeMarket {
	roster := models.DefaultRoster()
	prices := make(map[string]decimal.Decimal, len(roster))
	for _, s := range roster {
		prices[s.Symbol] = s.BasePrice
	}
	return &fakeMarket{roster: roster, prices: prices}
}

func (f *fakeMarket) Roster() models.Roster { return f.roster }

func (f *fakeMarket) FetchAll(ctx context.Context) []models.Quote {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Quote, 0, len(f.roster))
	for _, s := range f.roster {
		out = append(out, models.Quote{Symbol: s.Symbol, Name: s.Name, Price: f.prices[s.Symbol], Source: models.QuoteSourceLive})
	}
	return out
}

func (f *fakeMarket) FetchSymbol(ctx context.Context, symbol string) (models.Quote, bool) {
	q, ok := models.QuotesBySymbol(f.FetchAll(ctx))[symbol]
	return q, ok
}

func (f *fakeMarket) FetchHistorical(ctx context.Context, symbol string, days int) []models.PricePoint {
	out := make([]models.PricePoint, days+1)
	for i := range out {
		out[i] = models.PricePoint{Date: fmt.Sprintf("2024-03-%02d", i+1), Price: decimal.NewFromInt(100)}
	}
	return out
}

func (f *fakeMarket) FetchAllHistorical(ctx context.Context, days int) map[string][]models.PricePoint {
	out := make(map[string][]models.PricePoint, len(f.roster))
	for _, s := range f.roster {
		out[s.Symbol] = f.FetchHistorical(ctx, s.Symbol, days)
	}
	return out
}

func (f *fakeMarket) ClearCache() {}

// stubChart is a ChartProvider returning a fixed result
type stubChart struct {
	name string
	body []byte
	err  error
}

func (s stubChart) Name() string { return s.name }
func (s stubChart) GetChart(context.Context, services.ChartRequest) ([]byte, error) {
	return s.body, s.err
}

type mockLLM struct {
	reply string
	err   error
}

func (m mockLLM) InvokeWithPrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return m.reply, m.err
}

type mockRepo struct{ err error }

func (m mockRepo) Close()                       {}
func (m mockRepo) Health(context.Context) error { return m.err }

// testConfig returns a test configuration
func testConfig() *config.Config {
	return config.NewTestConfig()
}

func testApp(t *testing.T, deps app.Deps) *app.App {
	t.Helper()
	if deps.Market == nil {
		deps.Market = newFakeMarket()
	}
	if deps.Breakers == nil {
		deps.Breakers = services.NewCircuitBreakerRegistry(services.DefaultCircuitBreakerConfig)
	}
	a, err := app.New(testConfig(), deps)
	if err != nil {
		t.Fatalf("app.New() error: %v", err)
	}
	return a
}

// testRouter creates a Chi router with test config for testing
func testRouter(t *testing.T, deps app.Deps) http.Handler {
	t.Helper()
	cfg := testConfig()
	return NewRouter(NewHandler(testApp(t, deps), cfg), cfg)
}

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestHandler_Health(t *testing.T) {
	tests := []struct {
		name       string
		deps       app.Deps
		wantStatus string
		wantDB     string
		wantBot    string
	}{
		{"no database", app.Deps{}, "ok", "not_configured", "not_configured"},
		{"database up", app.Deps{Repo: mockRepo{}, LLM: mockLLM{reply: "hi"}}, "ok", "connected", "configured"},
		{"database down", app.Deps{Repo: mockRepo{err: errors.New("down")}}, "degraded", "disconnected", "not_configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, testRouter(t, tt.deps), http.MethodGet, "/api/health", "")
			if w.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", w.Code)
			}

			var response struct {
				Status   string            `json:"status"`
				Services map[string]string `json:"services"`
			}
			decode(t, w, &response)

			if response.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", response.Status, tt.wantStatus)
			}
			if response.Services["database"] != tt.wantDB {
				t.Errorf("database = %q, want %q", response.Services["database"], tt.wantDB)
			}
			if response.Services["stockbot"] != tt.wantBot {
				t.Errorf("stockbot = %q, want %q", response.Services["stockbot"], tt.wantBot)
			}
		})
	}
}

func TestHandler_Quotes(t *testing.T) {
	router := testRouter(t, app.Deps{})

	t.Run("all quotes", func(t *testing.T) {
		w := do(t, router, http.MethodGet, "/api/quotes", "")
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		var snap struct {
			Quotes    []models.Quote `json:"quotes"`
			Connected bool           `json:"connected"`
		}
		decode(t, w, &snap)
		if len(snap.Quotes) != 6 || !snap.Connected {
			t.Errorf("snapshot = %d quotes, connected %v", len(snap.Quotes), snap.Connected)
		}
	})

	t.Run("single quote lowercased", func(t *testing.T) {
		w := do(t, router, http.MethodGet, "/api/quotes/tech", "")
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		var q models.Quote
		decode(t, w, &q)
		if q.Symbol != "TECH" || !q.Price.Equal(decimal.NewFromInt(180)) {
			t.Errorf("quote = %+v", q)
		}
	})

	t.Run("untracked symbol", func(t *testing.T) {
		w := do(t, router, http.MethodGet, "/api/quotes/MSFT", "")
		if w.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", w.Code)
		}
	})

	t.Run("invalid symbol", func(t *testing.T) {
		w := do(t, router, http.MethodGet, "/api/quotes/TOOLONGSYMBOL", "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", w.Code)
		}
	})

	t.Run("refresh", func(t *testing.T) {
		w := do(t, router, http.MethodPost, "/api/quotes/refresh", "")
		if w.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", w.Code)
		}
	})
}

func TestHandler_History(t *testing.T) {
	router := testRouter(t, app.Deps{})

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantPoints int
	}{
		{"default window", "/api/history/BANK", http.StatusOK, 8},
		{"custom window", "/api/history/BANK?days=3", http.StatusOK, 4},
		{"days too large", "/api/history/BANK?days=366", http.StatusBadRequest, 0},
		{"days not a number", "/api/history/BANK?days=abc", http.StatusBadRequest, 0},
		{"untracked", "/api/history/MSFT", http.StatusNotFound, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodGet, tt.path, "")
			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var resp struct {
				Points []models.PricePoint `json:"points"`
			}
			decode(t, w, &resp)
			if len(resp.Points) != tt.wantPoints {
				t.Errorf("points = %d, want %d", len(resp.Points), tt.wantPoints)
			}
		})
	}

	t.Run("all symbols", func(t *testing.T) {
		w := do(t, router, http.MethodGet, "/api/history?days=2", "")
		var resp struct {
			Days   int                            `json:"days"`
			Series map[string][]models.PricePoint `json:"series"`
		}
		decode(t, w, &resp)
		if resp.Days != 2 || len(resp.Series) != 6 {
			t.Errorf("history = %d days, %d series", resp.Days, len(resp.Series))
		}
	})
}

func TestHandler_PlaceTrade(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"buy", `{"symbol":"TECH","side":"buy","quantity":10}`, http.StatusCreated},
		{"insufficient funds", `{"symbol":"TECH","side":"buy","quantity":1000}`, http.StatusUnprocessableEntity},
		{"insufficient shares", `{"symbol":"PHARMA","side":"sell","quantity":1}`, http.StatusUnprocessableEntity},
		{"zero quantity", `{"symbol":"TECH","side":"buy","quantity":0}`, http.StatusBadRequest},
		{"bad side", `{"symbol":"TECH","side":"hold","quantity":1}`, http.StatusBadRequest},
		{"untracked symbol", `{"symbol":"NOPE","side":"buy","quantity":1}`, http.StatusNotFound},
		{"malformed symbol", `{"symbol":"bad sym!","side":"buy","quantity":1}`, http.StatusBadRequest},
		{"invalid json", `{`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, testRouter(t, app.Deps{}), http.MethodPost, "/api/portfolio/trades", tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestHandler_PortfolioFlow(t *testing.T) {
	router := testRouter(t, app.Deps{})

	w := do(t, router, http.MethodPost, "/api/portfolio/trades", `{"symbol":"TECH","side":"BUY","quantity":10}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("buy: expected status 201, got %d", w.Code)
	}
	var placed struct {
		Trade     models.Trade       `json:"trade"`
		Portfolio portfolio.Snapshot `json:"portfolio"`
	}
	decode(t, w, &placed)
	if !placed.Trade.Price.Equal(decimal.NewFromInt(180)) || !placed.Portfolio.Cash.Equal(decimal.NewFromInt(8200)) {
		t.Errorf("placed = %+v", placed)
	}

	do(t, router, http.MethodPost, "/api/portfolio/trades", `{"symbol":"AUTO","side":"buy","quantity":5}`)

	w = do(t, router, http.MethodGet, "/api/portfolio/trades?limit=1", "")
	var trades []models.Trade
	decode(t, w, &trades)
	if len(trades) != 1 || trades[0].Symbol != "AUTO" {
		t.Errorf("latest trade = %+v", trades)
	}

	w = do(t, router, http.MethodGet, "/api/portfolio", "")
	var snap portfolio.Snapshot
	decode(t, w, &snap)
	if !snap.Cash.Equal(decimal.NewFromInt(8140)) || snap.TradeCount != 2 {
		t.Errorf("portfolio = cash %v, trades %d", snap.Cash, snap.TradeCount)
	}

	w = do(t, router, http.MethodPost, "/api/portfolio/reset", "")
	decode(t, w, &snap)
	if !snap.Cash.Equal(decimal.NewFromInt(10_000)) || snap.TradeCount != 0 {
		t.Errorf("after reset = cash %v, trades %d", snap.Cash, snap.TradeCount)
	}
}

func TestHandler_Tutorial(t *testing.T) {
	router := testRouter(t, app.Deps{})

	var resp struct {
		Completed bool `json:"completed"`
	}
	w := do(t, router, http.MethodGet, "/api/users/alice/tutorial", "")
	decode(t, w, &resp)
	if resp.Completed {
		t.Error("new user should not have completed the tutorial")
	}

	w = do(t, router, http.MethodPut, "/api/users/alice/tutorial", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	w = do(t, router, http.MethodGet, "/api/users/alice/tutorial", "")
	decode(t, w, &resp)
	if !resp.Completed {
		t.Error("tutorial flag not stored")
	}

	w = do(t, router, http.MethodPut, "/api/users/alice/tutorial", `{"completed":false}`)
	decode(t, w, &resp)
	if resp.Completed {
		t.Error("tutorial flag not cleared")
	}

	w = do(t, router, http.MethodPut, "/api/users/alice/tutorial", `not json`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestHandler_DeleteUser(t *testing.T) {
	router := testRouter(t, app.Deps{})

	do(t, router, http.MethodPut, "/api/users/dave/tutorial", "")
	do(t, router, http.MethodPost, "/api/users/dave/quota/answer", "")

	w := do(t, router, http.MethodDelete, "/api/users/dave", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", w.Code)
	}

	var tut struct {
		Completed bool `json:"completed"`
	}
	decode(t, do(t, router, http.MethodGet, "/api/users/dave/tutorial", ""), &tut)
	if tut.Completed {
		t.Error("tutorial flag survived delete")
	}
	var st struct {
		Count int `json:"count"`
	}
	decode(t, do(t, router, http.MethodGet, "/api/users/dave/quota", ""), &st)
	if st.Count != 0 {
		t.Errorf("quota count = %d after delete", st.Count)
	}

	w = do(t, router, http.MethodDelete, "/api/users/%20", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("blank user: expected status 400, got %d", w.Code)
	}
}

func TestHandler_QuotaExhausted(t *testing.T) {
	router := testRouter(t, app.Deps{})

	for i := 0; i < 10; i++ {
		w := do(t, router, http.MethodPost, "/api/users/bob/quota/answer", "")
		if w.Code != http.StatusOK {
			t.Fatalf("answer %d: expected status 200, got %d", i+1, w.Code)
		}
	}

	w := do(t, router, http.MethodPost, "/api/users/bob/quota/answer", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}

	w = do(t, router, http.MethodGet, "/api/users/bob/quota", "")
	var st struct {
		Count     int  `json:"count"`
		Left      int  `json:"left"`
		Exhausted bool `json:"exhausted"`
	}
	decode(t, w, &st)
	if st.Count != 10 || st.Left != 0 || !st.Exhausted {
		t.Errorf("quota = %+v", st)
	}

	w = do(t, router, http.MethodPost, "/api/users/bob/quota/reset", "")
	decode(t, w, &st)
	if st.Count != 0 || st.Exhausted {
		t.Errorf("after reset = %+v", st)
	}

	// Other users are unaffected
	w = do(t, router, http.MethodPost, "/api/users/carol/quota/answer", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
}

func TestHandler_CandleReplay(t *testing.T) {
	rp, err := replay.Load("testdata/candles.csv")
	if err != nil {
		t.Fatalf("replay.Load() error: %v", err)
	}
	router := testRouter(t, app.Deps{Candles: rp})

	var tick struct {
		Time  *string          `json:"time"`
		Value *decimal.Decimal `json:"value"`
	}
	w := do(t, router, http.MethodGet, "/current_data", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	decode(t, w, &tick)
	if tick.Time != nil || tick.Value != nil {
		t.Errorf("current before next = %v, %v", tick.Time, tick.Value)
	}

	for _, want := range []string{"2024-03-01 09:15", "2024-03-01 09:16", "2024-03-01 09:17", "2024-03-01 09:15"} {
		decode(t, do(t, router, http.MethodGet, "/next_data", ""), &tick)
		if tick.Time == nil || *tick.Time != want {
			t.Fatalf("next_data time = %v, want %s", tick.Time, want)
		}
	}
	if !tick.Value.Equal(decimal.RequireFromString("22000.5")) {
		t.Errorf("next_data value = %s, want open 22000.5", tick.Value)
	}

	tick.Time, tick.Value = nil, nil
	decode(t, do(t, router, http.MethodGet, "/current_data", ""), &tick)
	if tick.Time == nil || *tick.Time != "2024-03-01 09:15" {
		t.Errorf("current_data time = %v", tick.Time)
	}

	var resp struct {
		Status string          `json:"status"`
		Count  int             `json:"count"`
		Data   []models.Candle `json:"data"`
	}
	decode(t, do(t, router, http.MethodGet, "/api/stock-data?limit=2", ""), &resp)
	if resp.Status != "success" || resp.Count != 2 || len(resp.Data) != 2 {
		t.Fatalf("stock-data = %+v", resp)
	}
	if resp.Data[1].Date != "2024-03-01 09:17" || resp.Data[1].Volume != 1100 {
		t.Errorf("last candle = %+v", resp.Data[1])
	}

	decode(t, do(t, router, http.MethodGet, "/api/stock-data", ""), &resp)
	if resp.Count != 3 {
		t.Errorf("default limit count = %d, want all 3", resp.Count)
	}
}

func TestHandler_CandleReplayDisabled(t *testing.T) {
	router := testRouter(t, app.Deps{})

	for _, path := range []string{"/api/stock-data", "/next_data", "/current_data"} {
		w := do(t, router, http.MethodGet, path, "")
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: expected status 503, got %d", path, w.Code)
		}
	}
}

func TestHandler_StockBot(t *testing.T) {
	tests := []struct {
		name string
		path string
		llm  mockLLM
		body string
		want string
	}{
		{"answered", "/api/stockbot", mockLLM{reply: " Diversify across sectors. "}, `{"message":"how to reduce risk?"}`, "Diversify across sectors."},
		{"legacy path", "/get_response", mockLLM{reply: "Use stop-loss orders."}, `{"message":"tips?"}`, "Use stop-loss orders."},
		{"empty message", "/api/stockbot", mockLLM{reply: "unused"}, `{"message":"   "}`, "Please enter a stock-related question."},
		{"missing body", "/api/stockbot", mockLLM{reply: "unused"}, `{`, "Please enter a stock-related question."},
		{"llm failure", "/api/stockbot", mockLLM{err: errors.New("throttled")}, `{"message":"what is a P/E ratio?"}`, "Sorry, I couldn't process that. Please ask a stock-related question!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, testRouter(t, app.Deps{LLM: tt.llm}), http.MethodPost, tt.path, tt.body)
			if w.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", w.Code)
			}
			var resp StockBotResponse
			decode(t, w, &resp)
			if resp.Response != tt.want {
				t.Errorf("response = %q, want %q", resp.Response, tt.want)
			}
		})
	}
}

func TestHandler_Proxy(t *testing.T) {
	tests := []struct {
		name       string
		chart      stubChart
		path       string
		wantStatus int
		wantBody   string
	}{
		{"passes body through", stubChart{name: "yahoo", body: []byte(`{"chart":{"result":[]}}`)}, "/proxy/yahoo/AAPL", http.StatusOK, `{"chart":{"result":[]}}`},
		{"upstream status kept", stubChart{name: "yahoo", err: &services.UpstreamError{StatusCode: http.StatusNotFound, Body: []byte(`{"chart":{"error":"Not Found"}}`)}}, "/proxy/yahoo/ZZZZ", http.StatusNotFound, `{"chart":{"error":"Not Found"}}`},
		{"timeout", stubChart{name: "yahoo", err: fmt.Errorf("fetch: %w", context.DeadlineExceeded)}, "/proxy/yahoo/AAPL", http.StatusGatewayTimeout, ""},
		{"breaker open", stubChart{name: "yahoo", err: services.ErrBreakerOpen}, "/proxy/yahoo/AAPL", http.StatusServiceUnavailable, ""},
		{"network failure", stubChart{name: "yahoo", err: errors.New("connection refused")}, "/proxy/yahoo/AAPL", http.StatusBadGateway, ""},
		{"unknown provider", stubChart{name: "yahoo"}, "/proxy/bloomberg/AAPL", http.StatusNotFound, ""},
		{"invalid symbol", stubChart{name: "yahoo"}, "/proxy/yahoo/%20", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := testRouter(t, app.Deps{Charts: []services.ChartProvider{tt.chart}})
			w := do(t, router, http.MethodGet, tt.path, "")
			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if tt.wantBody != "" && w.Body.String() != tt.wantBody {
				t.Errorf("body = %s, want %s", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestHandler_ProxyForwardsQuery(t *testing.T) {
	var gotPath, gotQuery string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"chart":{"result":[],"error":null}}`))
	}))
	defer upstream.Close()

	breakers := services.NewCircuitBreakerRegistry(services.DefaultCircuitBreakerConfig)
	yahoo := services.NewYahooChartService(upstream.URL, testConfig().FetchTimeout(), breakers)
	router := testRouter(t, app.Deps{Charts: []services.ChartProvider{yahoo}, Breakers: breakers})

	w := do(t, router, http.MethodGet, "/proxy/yahoo/aapl?interval=1d&range=7d", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if gotPath != "/AAPL" {
		t.Errorf("upstream path = %q", gotPath)
	}
	if gotQuery != "interval=1d&range=7d" {
		t.Errorf("upstream query = %q", gotQuery)
	}

	w = do(t, router, http.MethodGet, "/proxy/yahoo/AAPL", "")
	if gotQuery != "interval=1m&range=1d" {
		t.Errorf("default query = %q", gotQuery)
	}

	w = do(t, router, http.MethodGet, "/api/proxy/providers", "")
	var resp struct {
		Providers []string `json:"providers"`
	}
	decode(t, w, &resp)
	if len(resp.Providers) != 1 || resp.Providers[0] != "yahoo" {
		t.Errorf("providers = %v", resp.Providers)
	}
}

func TestHandler_ValidateSymbol(t *testing.T) {
	h := NewHandler(nil, testConfig())

	tests := []struct {
		symbol  string
		wantErr bool
	}{
		{"AAPL", false},
		{"BRK.B", false},
		{"^GSPC", false},
		{"EURUSD=X", false},
		{"", true},
		{"TOOLONGSYMBOL", true},
		{"AA PL", true},
		{"aapl", true},
	}

	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			err := h.ValidateSymbol(tt.symbol)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSymbol(%q) error = %v, wantErr %v", tt.symbol, err, tt.wantErr)
			}
		})
	}
}

func TestHandler_ParseLimitParam(t *testing.T) {
	h := NewHandler(nil, testConfig())

	tests := []struct {
		query string
		want  int
	}{
		{"", 50},
		{"?limit=10", 10},
		{"?limit=0", 50},
		{"?limit=-5", 50},
		{"?limit=abc", 50},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/portfolio/trades"+tt.query, nil)
			if got := h.ParseLimitParam(req, 50); got != tt.want {
				t.Errorf("ParseLimitParam() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHandler_NotFoundAndMethods(t *testing.T) {
	router := testRouter(t, app.Deps{})

	if w := do(t, router, http.MethodGet, "/api/nonexistent", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/api/portfolio", ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/api/stockbot", ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", w.Code)
	}
}

func TestHandler_CORSHeaders(t *testing.T) {
	router := testRouter(t, app.Deps{})

	w := do(t, router, http.MethodOptions, "/api/users/alice/tutorial", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if !strings.Contains(w.Header().Get("Access-Control-Allow-Methods"), "PUT") {
		t.Error("PUT not allowed by CORS")
	}
}

func TestHandler_StreamQuotes(t *testing.T) {
	a := testApp(t, app.Deps{})
	a.RefreshQuotes(context.Background())
	cfg := testConfig()
	srv := httptest.NewServer(NewRouter(NewHandler(a, cfg), cfg))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/quotes/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	buf := make([]byte, 64)
	n, err := resp.Body.Read(buf)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if !strings.HasPrefix(string(buf[:n]), "event: quotes") {
		t.Errorf("first event = %q", buf[:n])
	}
}

func TestHandler_StreamEndsOnServerShutdown(t *testing.T) {
	a := testApp(t, app.Deps{})
	a.RefreshQuotes(context.Background())
	cfg := testConfig()
	srv := httptest.NewUnstartedServer(NewRouter(NewHandler(a, cfg), cfg))
	srv.Config.RegisterOnShutdown(a.CloseStreams)
	srv.Start()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/quotes/stream")
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()

	buf := make([]byte, 64)
	if _, err := resp.Body.Read(buf); err != nil {
		t.Fatalf("read stream: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- srv.Config.Shutdown(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Shutdown() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Shutdown() blocked by open stream")
	}

	// Body ends once the handler returns
	io.Copy(io.Discard, resp.Body)
}
