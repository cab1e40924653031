package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one immutable OHLCV bar. Timestamp is the bar's open boundary in
// UTC; (Timeframe, Timestamp) is the unique key in the store.
type Candle struct {
	Timeframe Timeframe
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    int64
}

// Aggregate composes one bar of timeframe tf starting at start from its
// sub-bars: open of the first, max high, min low, close of the last, summed
// volume. Sub-bars must be in ascending timestamp order. Returns false when
// there is nothing to aggregate.
func Aggregate(tf Timeframe, start time.Time, sub []Candle) (Candle, bool) {
	if len(sub) == 0 {
		return Candle{}, false
	}

	c := Candle{
		Timeframe: tf,
		Timestamp: start,
		Open:      sub[0].Open,
		High:      sub[0].High,
		Low:       sub[0].Low,
		Close:     sub[len(sub)-1].Close,
	}
	for _, s := range sub {
		if s.High.GreaterThan(c.High) {
			c.High = s.High
		}
		if s.Low.LessThan(c.Low) {
			c.Low = s.Low
		}
		c.Volume += s.Volume
	}
	return c, true
}
