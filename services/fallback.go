package services

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"stockverse/models"
)

const (
	// fallbackIntradayVolatility bounds a synthetic quote's move to ±1% of base (2% range)
	fallbackIntradayVolatility = 0.02
	// fallbackDailyVolatility bounds each synthetic history step to ±2.5% (5% range)
	fallbackDailyVolatility = 0.05

	fallbackPriceFloor   = 5.0
	fallbackHistoryFloor = 50.0
	fallbackHistoryBase  = 180.0
	fallbackBaseVolume   = 500_000
	fallbackVolumeSpread = 1_000_000
	fallbackRangeSpread  = 5.0
)

// RandSource supplies uniform floats in [0, 1)
type RandSource interface {
	Float64() float64
}

// LockedRand is a RandSource safe for use by concurrent fetches
type LockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewLockedRand returns a LockedRand seeded with seed
func NewLockedRand(seed uint64) *LockedRand {
	return &LockedRand{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Float64 returns the next float in [0, 1)
func (l *LockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

// FallbackQuote synthesizes a quote around the stock's base price.
// The previous close is the base price, so Change and ChangePercent stay consistent
// even when the price floor applies.
func FallbackQuote(stock models.Stock, rng RandSource, now time.Time) models.Quote {
	base := stock.SeedPrice().InexactFloat64()

	move := (rng.Float64() - 0.5) * fallbackIntradayVolatility * base
	price := math.Max(fallbackPriceFloor, base+move)
	volume := int64(rng.Float64()*fallbackVolumeSpread + fallbackBaseVolume)
	high := price + rng.Float64()*fallbackRangeSpread
	low := math.Max(0, price-rng.Float64()*fallbackRangeSpread)

	priceDec := decimal.NewFromFloat(price)
	baseDec := stock.SeedPrice()
	change := priceDec.Sub(baseDec)
	changePct := change.Div(baseDec).Mul(decimal.NewFromInt(100))

	highDec := models.RoundPrice(decimal.NewFromFloat(high))
	lowDec := models.RoundPrice(decimal.NewFromFloat(low))
	openDec := models.RoundPrice(baseDec)

	return models.Quote{
		Symbol:        stock.Symbol,
		Name:          stock.Name,
		Price:         models.RoundPrice(priceDec),
		Change:        models.RoundPrice(change),
		ChangePercent: models.RoundPrice(changePct),
		Volume:        &volume,
		High:          &highDec,
		Low:           &lowDec,
		Open:          &openDec,
		Source:        models.QuoteSourceSynthetic,
		FetchedAt:     now,
	}
}

// FallbackHistory returns a days+1 point daily random walk ending on now's date.
// Negative days are treated as zero.
func FallbackHistory(days int, now time.Time, rng RandSource) []models.PricePoint {
	if days < 0 {
		days = 0
	}

	points := make([]models.PricePoint, 0, days+1)
	current := fallbackHistoryBase
	for i := days; i >= 0; i-- {
		step := (rng.Float64() - 0.5) * fallbackDailyVolatility * current
		current = math.Max(fallbackHistoryFloor, current+step)
		points = append(points, models.PricePoint{
			Date:  now.AddDate(0, 0, -i).Format(time.DateOnly),
			Price: models.RoundPrice(decimal.NewFromFloat(current)),
		})
	}
	return points
}
