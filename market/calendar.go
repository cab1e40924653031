package market

import "time"

// DayOpenHour is the FX trading-day boundary: daily and weekly bars open at
// 07:00, and the market week runs from Monday 07:00 to Saturday 07:00.
const DayOpenHour = 7

// CandleStart computes the open boundary of the tf bar that contains asOf.
//
// M10 bars align to :00/:10/:20..., H1 bars to the top of the hour. Daily
// bars open at 07:00, so an asOf before 07:00 belongs to the previous day's
// bar. Weekly bars open Monday 07:00 with the same before-open rollback at
// the week boundary.
func CandleStart(tf Timeframe, asOf time.Time) time.Time {
	asOf = asOf.UTC()

	switch tf {
	case M10:
		return asOf.Truncate(10 * time.Minute)
	case H1:
		return asOf.Truncate(time.Hour)
	case D1:
		return dayOpen(asOf)
	case W1:
		d := dayOpen(asOf)
		// Roll the day-open back to Monday.
		for d.Weekday() != time.Monday {
			d = d.AddDate(0, 0, -1)
		}
		return d
	}
	return asOf
}

func dayOpen(t time.Time) time.Time {
	open := time.Date(t.Year(), t.Month(), t.Day(), DayOpenHour, 0, 0, 0, time.UTC)
	if t.Before(open) {
		open = open.AddDate(0, 0, -1)
	}
	return open
}

// IsMarketOpen reports whether the FX market trades at t: closed from
// Saturday 07:00 through Sunday, and before Monday 07:00.
func IsMarketOpen(t time.Time) bool {
	t = t.UTC()
	switch t.Weekday() {
	case time.Sunday:
		return false
	case time.Saturday:
		return t.Hour() < DayOpenHour
	case time.Monday:
		return t.Hour() >= DayOpenHour
	}
	return true
}

// NextMarketOpen returns t if the market is open, otherwise the following
// Monday 07:00.
func NextMarketOpen(t time.Time) time.Time {
	if IsMarketOpen(t) {
		return t
	}
	t = t.UTC()
	d := time.Date(t.Year(), t.Month(), t.Day(), DayOpenHour, 0, 0, 0, time.UTC)
	for {
		// Monday before 07:00 opens the same day, not next week.
		if d.Weekday() == time.Monday && d.After(t) {
			return d
		}
		d = d.AddDate(0, 0, 1)
	}
}

// FilterMarketHours drops bars stamped inside the weekend closure. Daily and
// weekly bars span the closure by construction and pass through unfiltered.
func FilterMarketHours(candles []Candle, tf Timeframe) []Candle {
	if tf == D1 || tf == W1 {
		return candles
	}
	out := candles[:0:0]
	for _, c := range candles {
		if IsMarketOpen(c.Timestamp) {
			out = append(out, c)
		}
	}
	return out
}
