package alerts

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fxreplay/store"
)

// Kind identifies which behavioral rule produced an alert.
type Kind string

const (
	ConsecutiveLosses Kind = "consecutive_losses"
	DailyLoss         Kind = "daily_loss"
	Drawdown          Kind = "drawdown"
	OverTrading       Kind = "over_trading"
	OversizedLot      Kind = "oversized_lot"
)

// Alert is an advisory finding. Alerts never mutate the simulation; they
// exist to nudge the user.
type Alert struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// Rules are the thresholds the evaluator checks against.
type Rules struct {
	MaxConsecutiveLosses int
	DailyLossLimit       decimal.Decimal
	MaxDrawdownPercent   decimal.Decimal
	MinTradeInterval     time.Duration
	MaxLotSize           decimal.Decimal
}

// DefaultRules mirror the configuration defaults.
func DefaultRules() Rules {
	return Rules{
		MaxConsecutiveLosses: 3,
		DailyLossLimit:       decimal.NewFromInt(50000),
		MaxDrawdownPercent:   decimal.NewFromInt(20),
		MinTradeInterval:     10 * time.Minute,
		MaxLotSize:           decimal.NewFromInt(1),
	}
}

// Service evaluates the rules against a simulation's ledger.
type Service struct {
	store *store.Store
	rules Rules
}

func New(st *store.Store, rules Rules) *Service {
	return &Service{store: st, rules: rules}
}

var hundred = decimal.NewFromInt(100)

// Evaluate runs every enabled check as of the simulation clock asOf and
// returns the findings. Zero or negative thresholds disable a check.
func (s *Service) Evaluate(simulationID string, asOf time.Time) ([]Alert, error) {
	acct, err := s.store.GetAccount(simulationID)
	if err != nil {
		return nil, err
	}
	trades, err := s.store.TradesByCloseTime(simulationID)
	if err != nil {
		return nil, err
	}
	open, err := s.store.OpenPositions(simulationID)
	if err != nil {
		return nil, err
	}

	var out []Alert

	if n := s.rules.MaxConsecutiveLosses; n > 0 && acct.ConsecutiveLosses >= n {
		out = append(out, Alert{
			Kind: ConsecutiveLosses,
			Message: fmt.Sprintf("%d consecutive losing trades, consider a break",
				acct.ConsecutiveLosses),
		})
	}

	if s.rules.DailyLossLimit.IsPositive() {
		loss := dailyLoss(trades, asOf)
		if loss.GreaterThanOrEqual(s.rules.DailyLossLimit) {
			out = append(out, Alert{
				Kind:    DailyLoss,
				Message: fmt.Sprintf("today's realized loss %s exceeds the %s limit", loss, s.rules.DailyLossLimit),
			})
		}
	}

	if s.rules.MaxDrawdownPercent.IsPositive() {
		pct := drawdownPercent(acct.InitialBalance, trades)
		if pct.GreaterThanOrEqual(s.rules.MaxDrawdownPercent) {
			out = append(out, Alert{
				Kind:    Drawdown,
				Message: fmt.Sprintf("drawdown %s%% exceeds the %s%% limit", pct, s.rules.MaxDrawdownPercent),
			})
		}
	}

	if iv := s.rules.MinTradeInterval; iv > 0 && len(trades) >= 2 {
		last := trades[len(trades)-1]
		prev := trades[len(trades)-2]
		if gap := last.ClosedAt.Sub(prev.ClosedAt); gap < iv {
			out = append(out, Alert{
				Kind:    OverTrading,
				Message: fmt.Sprintf("last two trades closed %s apart, under the %s minimum", gap, iv),
			})
		}
	}

	if s.rules.MaxLotSize.IsPositive() {
		for _, p := range open {
			if p.LotSize.GreaterThan(s.rules.MaxLotSize) {
				out = append(out, Alert{
					Kind:    OversizedLot,
					Message: fmt.Sprintf("position %s holds %s lots, over the %s maximum", p.ID, p.LotSize, s.rules.MaxLotSize),
				})
			}
		}
	}

	return out, nil
}

// dailyLoss sums the losses of trades closed on asOf's virtual day,
// returned as a positive magnitude. Wins on the same day offset it.
func dailyLoss(trades []*store.Trade, asOf time.Time) decimal.Decimal {
	dayStart := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	total := decimal.Zero
	for _, t := range trades {
		if t.ClosedAt.Before(dayStart) || !t.ClosedAt.Before(dayEnd) {
			continue
		}
		total = total.Add(t.RealizedPnL)
	}
	if total.IsNegative() {
		return total.Neg()
	}
	return decimal.Zero
}

// drawdownPercent is the current distance from the realized equity peak.
func drawdownPercent(initial decimal.Decimal, trades []*store.Trade) decimal.Decimal {
	equity := initial
	peak := initial
	for _, t := range trades {
		equity = equity.Add(t.RealizedPnL)
		if equity.GreaterThan(peak) {
			peak = equity
		}
	}
	if !peak.IsPositive() {
		return decimal.Zero
	}
	return peak.Sub(equity).Div(peak).Mul(hundred).Round(2)
}
