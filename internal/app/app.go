package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"stockverse/config"
	"stockverse/feed"
	"stockverse/models"
	"stockverse/observability"
	"stockverse/portfolio"
	"stockverse/prefs"
	"stockverse/replay"
	"stockverse/services"
	"stockverse/stockbot"
)

// ErrUnknownProvider is returned for a chart provider that is not configured
var ErrUnknownProvider = errors.New("unknown provider")

// RepositoryInterface defines the repository operations needed by App
type RepositoryInterface interface {
	Close()
	Health(ctx context.Context) error
}

// Deps are the collaborators App is assembled from. Only Market is required.
type Deps struct {
	Market   services.QuoteFeed
	Repo     RepositoryInterface
	Store    prefs.Store
	LLM      stockbot.LLM
	Charts   []services.ChartProvider
	Breakers *services.CircuitBreakerRegistry
	Candles  *replay.Replay
}

// App struct holds application dependencies using interfaces for testability
type App struct {
	cfg      *config.Config
	market   services.QuoteFeed
	quotes   *feed.Poller
	history  *feed.HistoryPoller
	book     *portfolio.Book
	prefs    *prefs.Service
	bot      *stockbot.Bot
	charts   map[string]services.ChartProvider
	repo     RepositoryInterface
	breakers *services.CircuitBreakerRegistry
	candles  *replay.Replay

	wg sync.WaitGroup
}

// New creates a new App application struct
func New(cfg *config.Config, deps Deps) (*App, error) {
	if deps.Market == nil {
		return nil, errors.New("market data client is required")
	}

	book, err := portfolio.NewBook(deps.Market.Roster(), cfg.Portfolio.StartingCash,
		portfolio.WithMinShares(cfg.Portfolio.MinTradeShares),
		portfolio.WithCurrency(cfg.Portfolio.Currency),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open portfolio: %w", err)
	}

	store := deps.Store
	if store == nil {
		store = prefs.NewMemoryStore()
	}
	breakers := deps.Breakers
	if breakers == nil {
		breakers = services.GetGlobalRegistry()
	}

	charts := make(map[string]services.ChartProvider, len(deps.Charts))
	for _, c := range deps.Charts {
		charts[c.Name()] = c
	}

	return &App{
		cfg:      cfg,
		market:   deps.Market,
		quotes:   feed.NewPoller(deps.Market, cfg.PollInterval()),
		history:  feed.NewHistoryPoller(deps.Market, cfg.Market.HistoryDays, cfg.HistoryPollInterval()),
		book:     book,
		prefs:    prefs.NewService(store, cfg.Quiz.DailyQuestionLimit),
		bot:      stockbot.New(deps.LLM),
		charts:   charts,
		repo:     deps.Repo,
		breakers: breakers,
		candles:  deps.Candles,
	}, nil
}

// Start launches the quote and history pollers. They stop when ctx is cancelled.
func (a *App) Start(ctx context.Context) {
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		_ = a.quotes.Run(ctx)
	}()
	go func() {
		defer a.wg.Done()
		_ = a.history.Run(ctx)
	}()
}

// CloseStreams ends every quote subscription so streaming handlers return
func (a *App) CloseStreams() {
	a.quotes.Close()
}

// Shutdown ends quote subscriptions, waits for the pollers to exit and closes
// the repository. The pollers must already have been cancelled through
// Start's context. The repository is closed even when the wait times out.
func (a *App) Shutdown(ctx context.Context) error {
	a.CloseStreams()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("pollers did not stop: %w", ctx.Err())
	}

	if a.repo != nil {
		a.repo.Close()
	}
	return err
}

// Config returns the application configuration
func (a *App) Config() *config.Config {
	return a.cfg
}

// Repo returns the repository interface for API handlers
func (a *App) Repo() RepositoryInterface {
	return a.repo
}

// Breakers returns the circuit breaker registry for health reporting
func (a *App) Breakers() *services.CircuitBreakerRegistry {
	return a.breakers
}

// Roster returns the tradable symbols
func (a *App) Roster() models.Roster {
	return a.market.Roster()
}

// Quotes returns the poller's latest snapshot, polling once if none exists yet
func (a *App) Quotes(ctx context.Context) feed.Snapshot {
	if snap, ok := a.quotes.Latest(); ok {
		return snap
	}
	return a.quotes.Poll(ctx)
}

// Quote returns the latest quote for a display symbol
func (a *App) Quote(ctx context.Context, symbol string) (models.Quote, bool) {
	if _, ok := a.market.Roster().Lookup(symbol); !ok {
		return models.Quote{}, false
	}
	q, ok := a.Quotes(ctx).BySymbol()[symbol]
	return q, ok
}

// RefreshQuotes drops cached quotes and publishes a fresh snapshot
func (a *App) RefreshQuotes(ctx context.Context) feed.Snapshot {
	a.market.ClearCache()
	return a.quotes.Poll(ctx)
}

// SubscribeQuotes delivers every new snapshot until cancel is called
func (a *App) SubscribeQuotes() (<-chan feed.Snapshot, func()) {
	return a.quotes.Subscribe()
}

// History returns every roster symbol's series over days. The poller's
// snapshot is served when it covers the same window.
func (a *App) History(ctx context.Context, days int) map[string][]models.PricePoint {
	if snap, ok := a.history.Latest(); ok && snap.Days == days {
		return snap.Series
	}
	return a.market.FetchAllHistorical(ctx, days)
}

// SymbolHistory returns one symbol's series over days
func (a *App) SymbolHistory(ctx context.Context, symbol string, days int) ([]models.PricePoint, bool) {
	if _, ok := a.market.Roster().Lookup(symbol); !ok {
		return nil, false
	}
	if snap, ok := a.history.Latest(); ok && snap.Days == days {
		if series, ok := snap.Series[symbol]; ok {
			return series, true
		}
	}
	return a.market.FetchHistorical(ctx, symbol, days), true
}

// Portfolio values the session book against the latest quotes
func (a *App) Portfolio(ctx context.Context) portfolio.Snapshot {
	return a.book.Snapshot(a.Quotes(ctx).BySymbol())
}

// Trade fills a simulated order at the symbol's latest price
func (a *App) Trade(ctx context.Context, symbol string, side models.TradeSide, quantity int64) (models.Trade, error) {
	q, ok := a.Quote(ctx, symbol)
	if !ok {
		return models.Trade{}, fmt.Errorf("%w: %s", portfolio.ErrUnknownSymbol, symbol)
	}
	if !q.IsLive() {
		observability.WithSymbol(symbol).Debug("trading against synthetic quote", "price", q.Price.StringFixed(2))
	}
	return a.book.Trade(symbol, side, quantity, q.Price)
}

// Trades returns the session's trade log
func (a *App) Trades() []models.Trade {
	return a.book.Trades()
}

// ResetPortfolio restores the starting cash and clears positions and trades
func (a *App) ResetPortfolio() {
	a.book.Reset()
}

// Prefs returns the user flag service
func (a *App) Prefs() *prefs.Service {
	return a.prefs
}

// AskStockBot answers a chat message
func (a *App) AskStockBot(ctx context.Context, message string) string {
	return a.bot.Ask(ctx, message)
}

// StockBotAvailable reports whether an LLM is configured
func (a *App) StockBotAvailable() bool {
	return a.bot.Available()
}

// ChartProvider returns the upstream chart source registered under name
func (a *App) ChartProvider(name string) (services.ChartProvider, error) {
	p, ok := a.charts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// ChartProviders lists registered provider names in sorted order
func (a *App) ChartProviders() []string {
	out := make([]string, 0, len(a.charts))
	for name := range a.charts {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Candles returns the recorded candle replay, or nil when none is loaded
func (a *App) Candles() *replay.Replay {
	return a.candles
}
