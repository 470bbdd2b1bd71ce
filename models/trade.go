package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Trade struct {
	ID         uuid.UUID       `json:"id"`
	Symbol     string          `json:"symbol"`
	Side       TradeSide       `json:"side"`
	Quantity   int64           `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	TotalValue decimal.Decimal `json:"total_value"`
	CashAfter  decimal.Decimal `json:"cash_after"`
	CreatedAt  time.Time       `json:"created_at"`
}

type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// Valid reports whether the side is buy or sell
func (s TradeSide) Valid() bool {
	return s == TradeSideBuy || s == TradeSideSell
}

func NewTrade(symbol string, side TradeSide, quantity int64, price decimal.Decimal) *Trade {
	return &Trade{
		ID:         uuid.New(),
		Symbol:     symbol,
		Side:       side,
		Quantity:   quantity,
		Price:      price,
		TotalValue: decimal.NewFromInt(quantity).Mul(price),
		CreatedAt:  time.Now(),
	}
}
