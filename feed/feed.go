// Package feed serves OHLCV series bounded by the simulation clock. Every
// series it returns reflects only information available at the requested
// as-of time: closed bars strictly before the current period, plus one
// synthesized partial bar for the period still in progress.
package feed

import (
	"fmt"
	"sort"
	"time"

	"fxreplay/market"
	"fxreplay/store"

	"github.com/shopspring/decimal"
)

// Service reads candles from the store. Reads are side-effect-free and safe
// to share across callers.
type Service struct {
	store *store.Store
}

func New(st *store.Store) *Service {
	return &Service{store: st}
}

// SeriesUpTo returns up to limit closed bars strictly before the bar
// containing asOf, followed by one partial bar synthesized from finer data
// in [start, asOf]. The partial bar is omitted when no sub-bars have
// elapsed yet. M10 and H1 series exclude bars stamped inside the weekend
// closure; D1 and W1 bars span the closure by construction.
func (s *Service) SeriesUpTo(tf market.Timeframe, asOf time.Time, limit int) ([]market.Candle, error) {
	curStart := market.CandleStart(tf, asOf)

	closed, err := s.store.CandlesBefore(tf, curStart, limit)
	if err != nil {
		return nil, fmt.Errorf("series %s: %w", tf, err)
	}

	if _, ok := tf.Finer(); ok {
		closed, err = s.fillGaps(tf, closed, curStart, limit)
		if err != nil {
			return nil, fmt.Errorf("series %s: %w", tf, err)
		}
	}

	closed = market.FilterMarketHours(closed, tf)
	if len(closed) > limit {
		closed = closed[len(closed)-limit:]
	}

	partial, ok, err := s.PartialCandle(tf, curStart, asOf)
	if err != nil {
		return nil, fmt.Errorf("series %s: %w", tf, err)
	}
	if ok {
		closed = append(closed, partial)
	}
	return closed, nil
}

// PartialCandle synthesizes the still-open tf bar for [start, asOf] from the
// next-finer timeframe's bars stamped at or before asOf. For M10, the base
// timeframe, the stored bar is returned as-is. ok is false when no sub-bar
// has elapsed in the window.
func (s *Service) PartialCandle(tf market.Timeframe, start, asOf time.Time) (market.Candle, bool, error) {
	finer, ok := tf.Finer()
	if !ok {
		c, found, err := s.store.CandleAt(market.M10, start)
		return c, found, err
	}

	sub, err := s.store.CandlesBetween(finer, start, asOf)
	if err != nil {
		return market.Candle{}, false, fmt.Errorf("partial %s: %w", tf, err)
	}
	c, ok := market.Aggregate(tf, start, sub)
	return c, ok, nil
}

// fillGaps regenerates coarse bars missing from the store out of the next
// finer timeframe, so a hole in imported D1 or W1 history degrades to extra
// aggregation work instead of a gap in the chart. Sources merge by
// timestamp; stored bars win.
func (s *Service) fillGaps(tf market.Timeframe, closed []market.Candle, curStart time.Time, limit int) ([]market.Candle, error) {
	finer, _ := tf.Finer()
	period := tf.Period()

	present := make(map[time.Time]bool, len(closed))
	for _, c := range closed {
		present[c.Timestamp] = true
	}

	var regenerated []market.Candle
	for i := 1; i <= limit; i++ {
		start := curStart.Add(-time.Duration(i) * period)
		if present[start] {
			continue
		}

		sub, err := s.store.CandlesBetween(finer, start, start.Add(period-time.Second))
		if err != nil {
			return nil, err
		}
		// Empty spans (weekends, pre-history) stay empty.
		if c, ok := market.Aggregate(tf, start, sub); ok {
			regenerated = append(regenerated, c)
		}
	}
	if len(regenerated) == 0 {
		return closed, nil
	}

	merged := append(closed, regenerated...)
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})
	return merged, nil
}

// CurrentPrice resolves the tradable price at asOf: the close of the most
// recent M10 bar stamped at or before that time.
func (s *Service) CurrentPrice(asOf time.Time) (decimal.Decimal, bool, error) {
	c, ok, err := s.store.LatestCandleAt(market.M10, asOf)
	if err != nil || !ok {
		return decimal.Decimal{}, false, err
	}
	return c.Close, true, nil
}

// ClosedBarAt returns the settled M10 bar for the period containing asOf.
// Trigger evaluation reads this bar, never the synthesized partial one.
func (s *Service) ClosedBarAt(asOf time.Time) (market.Candle, bool, error) {
	return s.store.CandleAt(market.M10, market.CandleStart(market.M10, asOf))
}

// NextBarAfter finds the first M10 bar after t that falls inside trading
// hours. ok=false means the dataset is exhausted.
func (s *Service) NextBarAfter(t time.Time) (market.Candle, bool, error) {
	cursor := t
	for {
		c, ok, err := s.store.NextCandleAfter(market.M10, cursor)
		if err != nil || !ok {
			return market.Candle{}, false, err
		}
		if market.IsMarketOpen(c.Timestamp) {
			return c, true, nil
		}
		cursor = c.Timestamp
	}
}
