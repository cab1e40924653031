package sim

import (
	"github.com/shopspring/decimal"

	"fxreplay/store"
)

// Pricing constants for the modeled pair (USD/JPY convention).
// One lot is 100,000 currency units throughout the ledger.
var (
	PipSize  = decimal.RequireFromString("0.01")
	LotUnit  = decimal.NewFromInt(100000)
	Leverage = decimal.NewFromInt(25)

	// A winning trade of at least this many pips resets the
	// consecutive-loss streak.
	streakResetPips = decimal.NewFromInt(30)
)

// RequiredMargin is the currency reserved to hold lot lots at price:
// price * lot * LotUnit / Leverage.
func RequiredMargin(price, lot decimal.Decimal) decimal.Decimal {
	return price.Mul(lot).Mul(LotUnit).Div(Leverage).Round(2)
}

// PnLPips returns the signed pip distance between entry and exit for the
// given side, rounded to one decimal place.
func PnLPips(side store.Side, entry, exit decimal.Decimal) decimal.Decimal {
	diff := exit.Sub(entry)
	if side == store.Sell {
		diff = entry.Sub(exit)
	}
	return diff.Div(PipSize).Round(1)
}

// PnLCurrency converts a pip P&L into account currency for the given lot
// size, rounded to two decimal places.
func PnLCurrency(pips, lot decimal.Decimal) decimal.Decimal {
	return pips.Mul(lot).Mul(LotUnit).Mul(PipSize).Round(2)
}

// nextStreak applies the consecutive-loss rule to a realized pip P&L:
// a loss extends the streak, a win of streakResetPips or more clears it,
// and anything in between leaves it untouched.
func nextStreak(streak int, pips decimal.Decimal) int {
	switch {
	case pips.IsNegative():
		return streak + 1
	case pips.GreaterThanOrEqual(streakResetPips):
		return 0
	}
	return streak
}
