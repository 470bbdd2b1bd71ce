package portfolio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"stockverse/models"
	"stockverse/observability"
)

// DefaultStartingCash is the cash balance of a fresh session
var DefaultStartingCash = decimal.NewFromInt(10_000)

// MaxStartingCash bounds the starting balance a session may be opened with
var MaxStartingCash = decimal.NewFromInt(100_000)

var (
	ErrUnknownSymbol       = errors.New("symbol is not in the roster")
	ErrInvalidStartingCash = errors.New("starting cash out of range")
)

// Book is one player's session portfolio: cash, one position per roster
// symbol, and the trades that produced them. Safe for concurrent use.
type Book struct {
	mu           sync.Mutex
	roster       models.Roster
	startingCash decimal.Decimal
	cash         decimal.Decimal
	positions    map[string]models.Position
	trades       []models.Trade
	minShares    int64
	currency     string
	now          func() time.Time
}

// BookOption configures a Book
type BookOption func(*Book)

// WithMinShares sets the smallest quantity a single trade may carry
func WithMinShares(n int64) BookOption {
	return func(b *Book) {
		if n > 0 {
			b.minShares = n
		}
	}
}

// WithCurrency sets the ISO code used for display strings
func WithCurrency(code string) BookOption {
	return func(b *Book) {
		if code != "" {
			b.currency = code
		}
	}
}

// WithBookClock overrides the trade timestamp source
func WithBookClock(now func() time.Time) BookOption {
	return func(b *Book) { b.now = now }
}

// NewBook opens a session with startingCash, which must lie in [0, MaxStartingCash]
func NewBook(roster models.Roster, startingCash decimal.Decimal, opts ...BookOption) (*Book, error) {
	if startingCash.IsNegative() || startingCash.GreaterThan(MaxStartingCash) {
		return nil, fmt.Errorf("%w: %s not in [0, %s]", ErrInvalidStartingCash, startingCash, MaxStartingCash)
	}
	b := &Book{
		roster:       roster,
		startingCash: startingCash,
		minShares:    1,
		currency:     "INR",
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.resetLocked()
	return b, nil
}

func (b *Book) resetLocked() {
	b.cash = b.startingCash
	b.positions = make(map[string]models.Position, len(b.roster))
	for _, s := range b.roster {
		b.positions[s.Symbol] = models.Position{Symbol: s.Symbol, AvgCost: decimal.Zero}
	}
	b.trades = nil
}

// Trade executes a buy or sell of quantity shares of symbol at price.
// Either the whole trade commits or nothing changes.
func (b *Book) Trade(symbol string, side models.TradeSide, quantity int64, price decimal.Decimal) (models.Trade, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	metrics := observability.GetMetrics()
	reject := func(err error) (models.Trade, error) {
		metrics.RecordTrade(string(side), "rejected")
		observability.WithSymbol(symbol).Debug("trade rejected", "side", side, "quantity", quantity, "error", err)
		return models.Trade{}, err
	}

	pos, ok := b.positions[symbol]
	if !ok {
		return reject(fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol))
	}
	if quantity < b.minShares {
		return reject(fmt.Errorf("%w: minimum is %d, got %d", ErrInvalidQuantity, b.minShares, quantity))
	}

	next, cash, err := ApplyTrade(pos, side, quantity, price, b.cash)
	if err != nil {
		return reject(err)
	}
	if next.Shares == 0 {
		next.AvgCost = decimal.Zero
	}

	trade := models.NewTrade(symbol, side, quantity, price)
	trade.CashAfter = cash
	trade.CreatedAt = b.now()

	b.positions[symbol] = next
	b.cash = cash
	b.trades = append(b.trades, *trade)

	metrics.RecordTrade(string(side), "filled")
	observability.WithSymbol(symbol).Info("trade filled",
		"side", side,
		"quantity", quantity,
		"price", price.StringFixed(2),
		"cash_after", cash.StringFixed(2),
	)
	return *trade, nil
}

// Cash returns the current cash balance
func (b *Book) Cash() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cash
}

// Position returns the position held in symbol
func (b *Book) Position(symbol string) (models.Position, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.positions[symbol]
	return p, ok
}

// Positions returns every position in roster order, open or not
func (b *Book) Positions() []models.Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.positionsLocked()
}

func (b *Book) positionsLocked() []models.Position {
	out := make([]models.Position, 0, len(b.roster))
	for _, s := range b.roster {
		out = append(out, b.positions[s.Symbol])
	}
	return out
}

// Trades returns the trade log, oldest first
func (b *Book) Trades() []models.Trade {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Trade, len(b.trades))
	copy(out, b.trades)
	return out
}

// Reset restores the starting cash and closes every position
func (b *Book) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked()
	observability.Info("portfolio reset", "cash", b.cash.StringFixed(2))
}

// Holding is one position valued against its latest quote
type Holding struct {
	models.Position
	Price        *decimal.Decimal `json:"price,omitempty"`
	MarketValue  decimal.Decimal  `json:"market_value"`
	UnrealizedPL decimal.Decimal  `json:"unrealized_pl"`
}

// Snapshot is a point-in-time valuation of the book
type Snapshot struct {
	Cash         decimal.Decimal `json:"cash"`
	TotalValue   decimal.Decimal `json:"total_value"`
	Holdings     []Holding       `json:"holdings"`
	Currency     string          `json:"currency"`
	CashDisplay  string          `json:"cash_display"`
	TotalDisplay string          `json:"total_display"`
	TradeCount   int             `json:"trade_count"`
	StartingCash decimal.Decimal `json:"starting_cash"`
	ValuedAt     time.Time       `json:"valued_at"`
}

// Snapshot values the book against quotes keyed by display symbol
func (b *Book) Snapshot(quotes map[string]models.Quote) Snapshot {
	b.mu.Lock()
	positions := b.positionsLocked()
	cash := b.cash
	tradeCount := len(b.trades)
	b.mu.Unlock()

	holdings := make([]Holding, 0, len(positions))
	for _, p := range positions {
		h := Holding{Position: p, MarketValue: decimal.Zero, UnrealizedPL: decimal.Zero}
		if q, ok := quotes[p.Symbol]; ok {
			price := q.Price
			h.Price = &price
			h.MarketValue = MarketValue(p, price)
			h.UnrealizedPL = UnrealizedPL(p, price)
		}
		holdings = append(holdings, h)
	}

	total := ComputeTotalValue(cash, positions, quotes)
	observability.GetMetrics().SetPortfolioValue(total.InexactFloat64())

	return Snapshot{
		Cash:         cash,
		TotalValue:   total,
		Holdings:     holdings,
		Currency:     b.currency,
		CashDisplay:  FormatMoney(cash, b.currency),
		TotalDisplay: FormatMoney(total, b.currency),
		TradeCount:   tradeCount,
		StartingCash: b.startingCash,
		ValuedAt:     b.now(),
	}
}

// FormatMoney renders amount in the currency's display format, e.g. ₹10,000.00.
// Unknown currency codes fall back to a plain two-decimal string.
func FormatMoney(amount decimal.Decimal, code string) string {
	cur := money.GetCurrency(code)
	if cur == nil {
		return amount.StringFixed(2) + " " + code
	}
	factor := decimal.NewFromInt(10).Pow(decimal.NewFromInt(int64(cur.Fraction)))
	minor := amount.Round(int32(cur.Fraction)).Mul(factor).IntPart()
	return money.New(minor, code).Display()
}
