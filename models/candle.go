package models

import "github.com/shopspring/decimal"

// Candle is one recorded OHLCV bar. Date is kept as written in the source file.
type Candle struct {
	Date   string          `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// ReplayTick is the single-value view of a candle streamed to the live chart.
// Both fields are null before the first tick.
type ReplayTick struct {
	Time  *string          `json:"time"`
	Value *decimal.Decimal `json:"value"`
}

// Tick returns the candle as a chart tick keyed on its open price
func (c Candle) Tick() ReplayTick {
	date, open := c.Date, c.Open
	return ReplayTick{Time: &date, Value: &open}
}
