package models

import "github.com/shopspring/decimal"

// DefaultBasePrice seeds synthetic data for symbols without a configured base price
var DefaultBasePrice = decimal.NewFromInt(150)

// Stock is one entry of the tradable roster. The provider symbol is what the
// upstream feed knows; the display symbol is what players trade.
type Stock struct {
	ProviderSymbol string          `json:"provider_symbol"`
	ProviderName   string          `json:"provider_name"`
	Symbol         string          `json:"symbol"`
	Name           string          `json:"name"`
	BasePrice      decimal.Decimal `json:"base_price"`
}

// Roster is the ordered set of symbols the market data client tracks
type Roster []Stock

// DefaultRoster returns the six sector stocks shown on the dashboard
func DefaultRoster() Roster {
	return Roster{
		{ProviderSymbol: "AAPL", ProviderName: "Apple Inc.", Symbol: "TECH", Name: "Tech Leaders", BasePrice: decimal.NewFromInt(180)},
		{ProviderSymbol: "TSLA", ProviderName: "Tesla Inc.", Symbol: "GREEN", Name: "Green Energy", BasePrice: decimal.NewFromInt(220)},
		{ProviderSymbol: "JPM", ProviderName: "JPMorgan Chase & Co.", Symbol: "BANK", Name: "Banking Giant", BasePrice: decimal.NewFromInt(160)},
		{ProviderSymbol: "F", ProviderName: "Ford Motor Company", Symbol: "AUTO", Name: "Auto Industry", BasePrice: decimal.NewFromInt(12)},
		{ProviderSymbol: "JNJ", ProviderName: "Johnson & Johnson", Symbol: "PHARMA", Name: "Healthcare", BasePrice: decimal.NewFromInt(170)},
		{ProviderSymbol: "WMT", ProviderName: "Walmart Inc.", Symbol: "RETAIL", Name: "Retail Power", BasePrice: decimal.NewFromInt(160)},
	}
}

// Lookup finds a stock by display symbol
func (r Roster) Lookup(symbol string) (Stock, bool) {
	for _, s := range r {
		if s.Symbol == symbol {
			return s, true
		}
	}
	return Stock{}, false
}

// Symbols returns the display symbols in roster order
func (r Roster) Symbols() []string {
	out := make([]string, len(r))
	for i, s := range r {
		out[i] = s.Symbol
	}
	return out
}

// SeedPrice returns the base price, or DefaultBasePrice when none is set
func (s Stock) SeedPrice() decimal.Decimal {
	if s.BasePrice.IsPositive() {
		return s.BasePrice
	}
	return DefaultBasePrice
}
