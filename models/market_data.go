package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuoteSource tells consumers whether a quote came from the feed or was synthesized
type QuoteSource string

const (
	QuoteSourceLive      QuoteSource = "live"
	QuoteSourceSynthetic QuoteSource = "synthetic"
)

// Quote is a point-in-time price snapshot for one roster symbol.
// Quotes are never mutated once produced; the next fetch cycle supersedes them.
type Quote struct {
	Symbol        string           `json:"symbol"`
	Name          string           `json:"name"`
	Price         decimal.Decimal  `json:"price"`
	Change        decimal.Decimal  `json:"change"`
	ChangePercent decimal.Decimal  `json:"change_percent"`
	Volume        *int64           `json:"volume,omitempty"`
	High          *decimal.Decimal `json:"high,omitempty"`
	Low           *decimal.Decimal `json:"low,omitempty"`
	Open          *decimal.Decimal `json:"open,omitempty"`
	Source        QuoteSource      `json:"source"`
	FetchedAt     time.Time        `json:"fetched_at"`
}

// PreviousClose returns price minus change
func (q Quote) PreviousClose() decimal.Decimal {
	return q.Price.Sub(q.Change)
}

// IsLive reports whether the quote came from the upstream feed.
// A cached quote keeps its original FetchedAt, so Age tells how old it is.
func (q Quote) IsLive() bool {
	return q.Source == QuoteSourceLive
}

// Age returns how long ago the quote was produced
func (q Quote) Age(now time.Time) time.Duration {
	return now.Sub(q.FetchedAt)
}

// PricePoint is one day of a historical series
type PricePoint struct {
	Date  string          `json:"date"`
	Price decimal.Decimal `json:"price"`
}

// QuotesBySymbol indexes quotes by display symbol
func QuotesBySymbol(quotes []Quote) map[string]Quote {
	out := make(map[string]Quote, len(quotes))
	for _, q := range quotes {
		out[q.Symbol] = q
	}
	return out
}

// RoundPrice rounds to two decimal places, half away from zero
func RoundPrice(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
