package feed

import (
	"context"
	"time"

	"stockverse/models"
	"stockverse/observability"
)

// DefaultQuoteInterval and DefaultHistoryInterval are the dashboard refresh cadences
const (
	DefaultQuoteInterval   = 5 * time.Second
	DefaultHistoryInterval = 30 * time.Second
)

// QuoteSource produces one quote per roster symbol
type QuoteSource interface {
	FetchAll(ctx context.Context) []models.Quote
}

// HistorySource produces a price series per roster symbol
type HistorySource interface {
	FetchAllHistorical(ctx context.Context, days int) map[string][]models.PricePoint
}

// Snapshot is one refresh of the whole roster. It is never modified after publishing.
type Snapshot struct {
	Quotes    []models.Quote `json:"quotes"`
	TakenAt   time.Time      `json:"taken_at"`
	Connected bool           `json:"connected"`
}

// BySymbol indexes the snapshot's quotes by display symbol
func (s Snapshot) BySymbol() map[string]models.Quote {
	return models.QuotesBySymbol(s.Quotes)
}

// Poller refreshes quotes on a fixed interval
type Poller struct {
	source   QuoteSource
	interval time.Duration
	now      func() time.Time
	holder   *Holder[Snapshot]
}

// NewPoller creates a quote poller. A non-positive interval uses DefaultQuoteInterval.
func NewPoller(source QuoteSource, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultQuoteInterval
	}
	return &Poller{
		source:   source,
		interval: interval,
		now:      time.Now,
		holder:   NewHolder[Snapshot](),
	}
}

// Run polls until ctx is cancelled
func (p *Poller) Run(ctx context.Context) error {
	observability.Info("quote poller started", "interval", p.interval.String())
	err := every(ctx, p.interval, func(ctx context.Context) { p.Poll(ctx) })
	observability.Info("quote poller stopped")
	return err
}

// Poll fetches the roster once and publishes the result
func (p *Poller) Poll(ctx context.Context) Snapshot {
	quotes := p.source.FetchAll(ctx)

	connected := false
	for _, q := range quotes {
		if q.IsLive() {
			connected = true
			break
		}
	}

	snap := Snapshot{Quotes: quotes, TakenAt: p.now(), Connected: connected}
	p.holder.Publish(snap)
	observability.GetMetrics().SetFeedConnected(connected)
	observability.Debug("quotes refreshed", "count", len(quotes), "connected", connected)
	return snap
}

// Latest returns the most recent snapshot
func (p *Poller) Latest() (Snapshot, bool) {
	return p.holder.Latest()
}

// Subscribe delivers every new snapshot until cancel is called or the
// poller is closed
func (p *Poller) Subscribe() (<-chan Snapshot, func()) {
	return p.holder.Subscribe()
}

// Close ends all subscriptions
func (p *Poller) Close() {
	p.holder.Close()
}

// HistorySnapshot is one refresh of every roster symbol's price series
type HistorySnapshot struct {
	Days    int                            `json:"days"`
	Series  map[string][]models.PricePoint `json:"series"`
	TakenAt time.Time                      `json:"taken_at"`
}

// HistoryPoller refreshes historical series on a fixed interval
type HistoryPoller struct {
	source   HistorySource
	days     int
	interval time.Duration
	now      func() time.Time
	holder   *Holder[HistorySnapshot]
}

// NewHistoryPoller creates a history poller covering the last days days
func NewHistoryPoller(source HistorySource, days int, interval time.Duration) *HistoryPoller {
	if interval <= 0 {
		interval = DefaultHistoryInterval
	}
	return &HistoryPoller{
		source:   source,
		days:     days,
		interval: interval,
		now:      time.Now,
		holder:   NewHolder[HistorySnapshot](),
	}
}

// Days returns the window length the poller fetches
func (p *HistoryPoller) Days() int {
	return p.days
}

// Run polls until ctx is cancelled
func (p *HistoryPoller) Run(ctx context.Context) error {
	observability.Info("history poller started", "interval", p.interval.String(), "days", p.days)
	err := every(ctx, p.interval, func(ctx context.Context) { p.Poll(ctx) })
	observability.Info("history poller stopped")
	return err
}

// Poll fetches every series once and publishes the result
func (p *HistoryPoller) Poll(ctx context.Context) HistorySnapshot {
	snap := HistorySnapshot{
		Days:    p.days,
		Series:  p.source.FetchAllHistorical(ctx, p.days),
		TakenAt: p.now(),
	}
	p.holder.Publish(snap)
	observability.Debug("history refreshed", "symbols", len(snap.Series), "days", p.days)
	return snap
}

// Latest returns the most recent history snapshot
func (p *HistoryPoller) Latest() (HistorySnapshot, bool) {
	return p.holder.Latest()
}
