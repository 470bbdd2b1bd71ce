// Package portfolio applies simulated trades to positions and values the
// resulting holdings against the latest quotes.
package portfolio

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"stockverse/models"
)

// Trade rejections. A rejected trade leaves position and cash unchanged.
var (
	ErrInvalidQuantity    = errors.New("quantity must be positive")
	ErrInvalidPrice       = errors.New("price must not be negative")
	ErrInvalidSide        = errors.New("side must be buy or sell")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
)

// ApplyTrade returns the position and cash balance after trading quantity
// shares at price. It has no side effects; on error the inputs are returned as-is.
//
// A buy re-weights the average cost (or sets it to price when starting from zero
// shares). A sell never changes the average cost, even when it closes the position.
func ApplyTrade(pos models.Position, side models.TradeSide, quantity int64, price, cash decimal.Decimal) (models.Position, decimal.Decimal, error) {
	if quantity <= 0 {
		return pos, cash, fmt.Errorf("%w: got %d", ErrInvalidQuantity, quantity)
	}
	if price.IsNegative() {
		return pos, cash, fmt.Errorf("%w: got %s", ErrInvalidPrice, price)
	}

	qty := decimal.NewFromInt(quantity)
	value := qty.Mul(price)

	switch side {
	case models.TradeSideBuy:
		if value.GreaterThan(cash) {
			return pos, cash, fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, value.StringFixed(2), cash.StringFixed(2))
		}
		if quantity > math.MaxInt64-pos.Shares {
			return pos, cash, fmt.Errorf("%w: holding %d, buying %d overflows", ErrInvalidQuantity, pos.Shares, quantity)
		}
		next := pos
		next.Shares = pos.Shares + quantity
		if pos.Shares > 0 {
			next.AvgCost = pos.CostBasis().Add(value).Div(decimal.NewFromInt(next.Shares))
		} else {
			next.AvgCost = price
		}
		return next, cash.Sub(value), nil

	case models.TradeSideSell:
		if quantity > pos.Shares {
			return pos, cash, fmt.Errorf("%w: selling %d, holding %d", ErrInsufficientShares, quantity, pos.Shares)
		}
		next := pos
		next.Shares = pos.Shares - quantity
		return next, cash.Add(value), nil

	default:
		return pos, cash, fmt.Errorf("%w: got %q", ErrInvalidSide, side)
	}
}

// ComputeTotalValue returns cash plus the unrealized P&L of every open
// position. Positions without a quote contribute nothing.
func ComputeTotalValue(cash decimal.Decimal, positions []models.Position, quotes map[string]models.Quote) decimal.Decimal {
	total := cash
	for _, pos := range positions {
		if !pos.IsOpen() {
			continue
		}
		q, ok := quotes[pos.Symbol]
		if !ok {
			continue
		}
		total = total.Add(UnrealizedPL(pos, q.Price))
	}
	return total
}

// UnrealizedPL returns shares × (price − average cost), zero for a closed position
func UnrealizedPL(pos models.Position, price decimal.Decimal) decimal.Decimal {
	return pos.CalculateUnrealizedPL(price)
}

// MarketValue returns shares × price
func MarketValue(pos models.Position, price decimal.Decimal) decimal.Decimal {
	return pos.MarketValue(price)
}
