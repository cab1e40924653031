package market

import (
	"fmt"
	"time"
)

// Timeframe identifies one of the four supported candle resolutions. They
// form a strict aggregation hierarchy: M10 is the base; H1 aggregates M10,
// D1 aggregates H1, W1 aggregates D1.
type Timeframe string

const (
	M10 Timeframe = "M10"
	H1  Timeframe = "H1"
	D1  Timeframe = "D1"
	W1  Timeframe = "W1"
)

// Timeframes lists all supported timeframes from finest to coarsest.
var Timeframes = []Timeframe{M10, H1, D1, W1}

// ParseTimeframe validates a timeframe identifier. An unknown identifier is
// a caller bug, not a data condition.
func ParseTimeframe(s string) (Timeframe, error) {
	switch Timeframe(s) {
	case M10, H1, D1, W1:
		return Timeframe(s), nil
	}
	return "", fmt.Errorf("unsupported timeframe %q", s)
}

// Period returns the nominal span of one bar.
func (tf Timeframe) Period() time.Duration {
	switch tf {
	case M10:
		return 10 * time.Minute
	case H1:
		return time.Hour
	case D1:
		return 24 * time.Hour
	case W1:
		return 7 * 24 * time.Hour
	}
	return 0
}

// Finer returns the next finer timeframe used to synthesize this one.
// M10 is the base and has no finer source.
func (tf Timeframe) Finer() (Timeframe, bool) {
	switch tf {
	case H1:
		return M10, true
	case D1:
		return H1, true
	case W1:
		return D1, true
	}
	return "", false
}

func (tf Timeframe) String() string { return string(tf) }
