package sim

import (
	"github.com/shopspring/decimal"

	"fxreplay/store"
)

// Level expresses a stop-loss or take-profit target as either an absolute
// price or a pip offset from the entry. The two forms are mutually
// exclusive by construction; the zero Level means "not set".
type Level struct {
	value decimal.Decimal
	kind  levelKind
}

type levelKind int

const (
	levelNone levelKind = iota
	levelPrice
	levelPips
)

func PriceLevel(price decimal.Decimal) Level {
	return Level{value: price, kind: levelPrice}
}

func PipsLevel(pips decimal.Decimal) Level {
	return Level{value: pips, kind: levelPips}
}

func (l Level) IsSet() bool { return l.kind != levelNone }

// resolve converts the level into the consistent (price, pips) pair kept
// on a position. A stop sits on the losing side of the entry and a take
// profit on the winning side, so the pip offset's direction depends on
// both the position side and which target this is. Returns nils when the
// level is not set.
func (l Level) resolve(side store.Side, stop bool, entry decimal.Decimal) (*decimal.Decimal, *decimal.Decimal) {
	if l.kind == levelNone {
		return nil, nil
	}

	// Favorable direction is up for a buy, down for a sell; the stop is
	// offset the opposite way.
	up := side == store.Buy
	if stop {
		up = !up
	}

	var price, pips decimal.Decimal
	switch l.kind {
	case levelPrice:
		price = l.value
		if up {
			pips = price.Sub(entry).Div(PipSize).Round(1)
		} else {
			pips = entry.Sub(price).Div(PipSize).Round(1)
		}
	case levelPips:
		pips = l.value.Round(1)
		offset := pips.Mul(PipSize)
		if up {
			price = entry.Add(offset)
		} else {
			price = entry.Sub(offset)
		}
	}
	return &price, &pips
}
