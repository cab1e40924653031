package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fxreplay/market"
)

const candleColumns = "timeframe, timestamp, open, high, low, close, volume"

// UpsertCandles inserts bars, replacing OHLCV for an existing
// (timeframe, timestamp) key. Returns the number of rows written.
func (s *Store) UpsertCandles(candles []market.Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("upsert candles: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO candles (timeframe, timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (timeframe, timestamp) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume`)
	if err != nil {
		return 0, fmt.Errorf("upsert candles: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		_, err := stmt.Exec(
			string(c.Timeframe), c.Timestamp.UTC(),
			c.Open.String(), c.High.String(), c.Low.String(), c.Close.String(),
			c.Volume,
		)
		if err != nil {
			return 0, fmt.Errorf("upsert candle %s %s: %w", c.Timeframe, c.Timestamp, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("upsert candles: %w", err)
	}
	return len(candles), nil
}

// CandlesBefore returns the most recent limit bars with timestamp strictly
// before t, in ascending order.
func (s *Store) CandlesBefore(tf market.Timeframe, t time.Time, limit int) ([]market.Candle, error) {
	rows, err := s.db.Query(`
		SELECT `+candleColumns+` FROM candles
		WHERE timeframe = ? AND timestamp < ?
		ORDER BY timestamp DESC LIMIT ?`,
		string(tf), t.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("candles before: %w", err)
	}
	candles, err := scanCandles(rows)
	if err != nil {
		return nil, err
	}
	reverse(candles)
	return candles, nil
}

// CandlesBetween returns bars with start <= timestamp <= end, ascending.
func (s *Store) CandlesBetween(tf market.Timeframe, start, end time.Time) ([]market.Candle, error) {
	rows, err := s.db.Query(`
		SELECT `+candleColumns+` FROM candles
		WHERE timeframe = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC`,
		string(tf), start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("candles between: %w", err)
	}
	return scanCandles(rows)
}

// CandleAt returns the bar with the exact timestamp, or ok=false.
func (s *Store) CandleAt(tf market.Timeframe, t time.Time) (market.Candle, bool, error) {
	row := s.db.QueryRow(`
		SELECT `+candleColumns+` FROM candles
		WHERE timeframe = ? AND timestamp = ?`,
		string(tf), t.UTC())
	return scanCandleRow(row)
}

// LatestCandleAt returns the most recent bar with timestamp <= t.
func (s *Store) LatestCandleAt(tf market.Timeframe, t time.Time) (market.Candle, bool, error) {
	row := s.db.QueryRow(`
		SELECT `+candleColumns+` FROM candles
		WHERE timeframe = ? AND timestamp <= ?
		ORDER BY timestamp DESC LIMIT 1`,
		string(tf), t.UTC())
	return scanCandleRow(row)
}

// NextCandleAfter returns the first bar with timestamp strictly after t.
// Used by the clock to skip weekends and data gaps.
func (s *Store) NextCandleAfter(tf market.Timeframe, t time.Time) (market.Candle, bool, error) {
	row := s.db.QueryRow(`
		SELECT `+candleColumns+` FROM candles
		WHERE timeframe = ? AND timestamp > ?
		ORDER BY timestamp ASC LIMIT 1`,
		string(tf), t.UTC())
	return scanCandleRow(row)
}

// CandleCount returns the number of stored bars for a timeframe.
func (s *Store) CandleCount(tf market.Timeframe) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM candles WHERE timeframe = ?`, string(tf)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("candle count: %w", err)
	}
	return n, nil
}

// DataRange reports the stored span per timeframe. Timeframes with no data
// are omitted.
func (s *Store) DataRange() (map[market.Timeframe]TimeframeRange, error) {
	out := make(map[market.Timeframe]TimeframeRange)
	for _, tf := range market.Timeframes {
		var (
			start, end sql.NullTime
			count      int
		)
		err := s.db.QueryRow(`
			SELECT MIN(timestamp), MAX(timestamp), COUNT(*) FROM candles
			WHERE timeframe = ?`, string(tf)).Scan(&start, &end, &count)
		if err != nil {
			return nil, fmt.Errorf("data range %s: %w", tf, err)
		}
		if count == 0 || !start.Valid {
			continue
		}
		out[tf] = TimeframeRange{Start: start.Time.UTC(), End: end.Time.UTC(), Count: count}
	}
	return out, nil
}

func scanCandles(rows *sql.Rows) ([]market.Candle, error) {
	defer rows.Close()

	var out []market.Candle
	for rows.Next() {
		c, err := scanCandle(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCandleRow(row *sql.Row) (market.Candle, bool, error) {
	c, err := scanCandle(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return market.Candle{}, false, nil
	}
	if err != nil {
		return market.Candle{}, false, err
	}
	return c, true, nil
}

func scanCandle(scan func(...any) error) (market.Candle, error) {
	var (
		c          market.Candle
		tf         string
		o, h, l, x string
	)
	if err := scan(&tf, &c.Timestamp, &o, &h, &l, &x, &c.Volume); err != nil {
		return market.Candle{}, err
	}
	c.Timeframe = market.Timeframe(tf)
	c.Timestamp = c.Timestamp.UTC()

	var err error
	if c.Open, err = parseDecimal(o); err != nil {
		return market.Candle{}, err
	}
	if c.High, err = parseDecimal(h); err != nil {
		return market.Candle{}, err
	}
	if c.Low, err = parseDecimal(l); err != nil {
		return market.Candle{}, err
	}
	if c.Close, err = parseDecimal(x); err != nil {
		return market.Candle{}, err
	}
	return c, nil
}

func reverse(candles []market.Candle) {
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
}
