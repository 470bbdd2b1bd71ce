package models

import (
	"github.com/shopspring/decimal"
)

// Position is a holder's stake in one symbol. AvgCost is only meaningful
// while Shares > 0.
type Position struct {
	Symbol  string          `json:"symbol"`
	Shares  int64           `json:"shares"`
	AvgCost decimal.Decimal `json:"avg_cost"`
}

// IsOpen reports whether any shares are held
func (p Position) IsOpen() bool {
	return p.Shares > 0
}

// CostBasis returns shares × average cost
func (p Position) CostBasis() decimal.Decimal {
	return decimal.NewFromInt(p.Shares).Mul(p.AvgCost)
}

// MarketValue returns shares × price
func (p Position) MarketValue(price decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(p.Shares).Mul(price)
}

// CalculateUnrealizedPL returns market value minus cost basis at the given price.
// A closed position has no unrealized P&L.
func (p Position) CalculateUnrealizedPL(price decimal.Decimal) decimal.Decimal {
	if !p.IsOpen() {
		return decimal.Zero
	}
	return p.MarketValue(price).Sub(p.CostBasis())
}
