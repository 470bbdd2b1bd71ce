// Package replay serves a recorded OHLCV file as if it were a live feed:
// a tail window for the candlestick chart and a cursor that advances one
// bar per request.
package replay

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"stockverse/models"
	"stockverse/observability"
)

// ErrNoCandles is returned for a file with a header but no rows
var ErrNoCandles = errors.New("no candles in file")

var columns = []string{"date", "open", "high", "low", "close", "volume"}

// Replay holds the loaded candles and the replay cursor
type Replay struct {
	candles []models.Candle

	mu      sync.Mutex
	next    int
	current *models.Candle
}

// New creates a Replay over candles, which must not be empty
func New(candles []models.Candle) (*Replay, error) {
	if len(candles) == 0 {
		return nil, ErrNoCandles
	}
	return &Replay{candles: candles}, nil
}

// Load reads the candle file at path
func Load(path string) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open candle file: %w", err)
	}
	defer f.Close()

	candles, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	observability.Info("candle replay loaded", "path", path, "rows", len(candles))
	return New(candles)
}

// Parse reads a CSV with a date,open,high,low,close,volume header.
// Header names are case-insensitive and extra columns are ignored.
func Parse(r io.Reader) ([]models.Candle, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	pos := make([]int, len(columns))
	for i, col := range columns {
		p, ok := idx[col]
		if !ok {
			return nil, fmt.Errorf("missing %q column", col)
		}
		pos[i] = p
	}

	var candles []models.Candle
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		c, err := parseRow(rec, pos)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		candles = append(candles, c)
	}
	if len(candles) == 0 {
		return nil, ErrNoCandles
	}
	return candles, nil
}

func parseRow(rec []string, pos []int) (models.Candle, error) {
	field := func(i int) (string, error) {
		if pos[i] >= len(rec) {
			return "", fmt.Errorf("missing %s value", columns[i])
		}
		return strings.TrimSpace(rec[pos[i]]), nil
	}

	var vals [6]decimal.Decimal
	date, err := field(0)
	if err != nil {
		return models.Candle{}, err
	}
	for i := 1; i < len(columns); i++ {
		s, err := field(i)
		if err != nil {
			return models.Candle{}, err
		}
		v, err := decimal.NewFromString(s)
		if err != nil {
			return models.Candle{}, fmt.Errorf("invalid %s %q: %w", columns[i], s, err)
		}
		vals[i] = v
	}
	if vals[5].IsNegative() {
		return models.Candle{}, fmt.Errorf("negative volume %s", vals[5])
	}

	return models.Candle{
		Date:   date,
		Open:   vals[1],
		High:   vals[2],
		Low:    vals[3],
		Close:  vals[4],
		Volume: vals[5].IntPart(),
	}, nil
}

// Len returns the number of loaded candles
func (r *Replay) Len() int {
	return len(r.candles)
}

// Last returns up to the last limit candles in file order
func (r *Replay) Last(limit int) []models.Candle {
	if limit <= 0 {
		return []models.Candle{}
	}
	start := len(r.candles) - limit
	if start < 0 {
		start = 0
	}
	out := make([]models.Candle, len(r.candles)-start)
	copy(out, r.candles[start:])
	return out
}

// Next advances the cursor and returns the candle it lands on.
// After the last row the cursor wraps to the first.
func (r *Replay) Next() models.Candle {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.next >= len(r.candles) {
		r.next = 0
		observability.Debug("candle replay wrapped")
	}
	c := r.candles[r.next]
	r.next++
	r.current = &c
	return c
}

// Current returns the candle last returned by Next
func (r *Replay) Current() (models.Candle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil {
		return models.Candle{}, false
	}
	return *r.current, true
}
