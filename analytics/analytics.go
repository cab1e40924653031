package analytics

import (
	"time"

	"github.com/shopspring/decimal"

	"fxreplay/store"
)

// Service computes performance statistics over a simulation's closed
// trades. Everything is derived on read; nothing here mutates state.
type Service struct {
	store *store.Store
}

func New(st *store.Store) *Service {
	return &Service{store: st}
}

// Metrics is the aggregate performance report for one simulation.
type Metrics struct {
	TotalTrades int `json:"total_trades"`
	Wins        int `json:"wins"`
	Losses      int `json:"losses"`

	WinRate      decimal.Decimal `json:"win_rate"`      // percent
	TotalPnL     decimal.Decimal `json:"total_pnl"`
	GrossProfit  decimal.Decimal `json:"gross_profit"`
	GrossLoss    decimal.Decimal `json:"gross_loss"`    // positive magnitude
	ProfitFactor decimal.Decimal `json:"profit_factor"` // zero when no losses

	AverageWin  decimal.Decimal `json:"average_win"`
	AverageLoss decimal.Decimal `json:"average_loss"`
	MaxWin      decimal.Decimal `json:"max_win"`
	MaxLoss     decimal.Decimal `json:"max_loss"`
	MaxWinPips  decimal.Decimal `json:"max_win_pips"`
	MaxLossPips decimal.Decimal `json:"max_loss_pips"`

	MaxConsecutiveWins   int `json:"max_consecutive_wins"`
	MaxConsecutiveLosses int `json:"max_consecutive_losses"`

	MaxDrawdown         decimal.Decimal `json:"max_drawdown"`
	MaxDrawdownPercent  decimal.Decimal `json:"max_drawdown_percent"`
	MaxDrawdownDuration time.Duration   `json:"max_drawdown_duration"`
}

var hundred = decimal.NewFromInt(100)

// Metrics walks the trade sequence in close order and folds it into one
// report. A simulation with no trades yields the zero report.
func (s *Service) Metrics(simulationID string) (*Metrics, error) {
	acct, err := s.store.GetAccount(simulationID)
	if err != nil {
		return nil, err
	}
	trades, err := s.store.TradesByCloseTime(simulationID)
	if err != nil {
		return nil, err
	}

	m := &Metrics{TotalTrades: len(trades)}
	if len(trades) == 0 {
		return m, nil
	}

	var winStreak, lossStreak int
	for _, t := range trades {
		switch {
		case t.RealizedPnL.IsPositive():
			m.Wins++
			m.GrossProfit = m.GrossProfit.Add(t.RealizedPnL)
			winStreak++
			lossStreak = 0
			if t.RealizedPnL.GreaterThan(m.MaxWin) {
				m.MaxWin = t.RealizedPnL
			}
			if t.RealizedPnLPips.GreaterThan(m.MaxWinPips) {
				m.MaxWinPips = t.RealizedPnLPips
			}
		case t.RealizedPnL.IsNegative():
			m.Losses++
			m.GrossLoss = m.GrossLoss.Add(t.RealizedPnL.Neg())
			lossStreak++
			winStreak = 0
			if t.RealizedPnL.LessThan(m.MaxLoss) {
				m.MaxLoss = t.RealizedPnL
			}
			if t.RealizedPnLPips.LessThan(m.MaxLossPips) {
				m.MaxLossPips = t.RealizedPnLPips
			}
		default:
			// Flat trades break both streaks without counting either way.
			winStreak, lossStreak = 0, 0
		}
		if winStreak > m.MaxConsecutiveWins {
			m.MaxConsecutiveWins = winStreak
		}
		if lossStreak > m.MaxConsecutiveLosses {
			m.MaxConsecutiveLosses = lossStreak
		}
		m.TotalPnL = m.TotalPnL.Add(t.RealizedPnL)
	}

	total := decimal.NewFromInt(int64(len(trades)))
	m.WinRate = decimal.NewFromInt(int64(m.Wins)).Div(total).Mul(hundred).Round(1)
	if m.Wins > 0 {
		m.AverageWin = m.GrossProfit.Div(decimal.NewFromInt(int64(m.Wins))).Round(2)
	}
	if m.Losses > 0 {
		m.AverageLoss = m.GrossLoss.Neg().Div(decimal.NewFromInt(int64(m.Losses))).Round(2)
	}
	if m.GrossLoss.IsPositive() {
		m.ProfitFactor = m.GrossProfit.Div(m.GrossLoss).Round(2)
	}

	m.MaxDrawdown, m.MaxDrawdownPercent, m.MaxDrawdownDuration =
		drawdown(acct.InitialBalance, trades)
	return m, nil
}

// EquityPoint is one step of the realized equity curve.
type EquityPoint struct {
	Time     time.Time       `json:"time"`
	Equity   decimal.Decimal `json:"equity"`
	Drawdown decimal.Decimal `json:"drawdown"`
}

// EquityCurve rebuilds the balance sequence trade by trade, starting from
// the initial balance, with the running drawdown from the peak so far.
func (s *Service) EquityCurve(simulationID string) ([]EquityPoint, error) {
	acct, err := s.store.GetAccount(simulationID)
	if err != nil {
		return nil, err
	}
	trades, err := s.store.TradesByCloseTime(simulationID)
	if err != nil {
		return nil, err
	}

	equity := acct.InitialBalance
	peak := equity
	out := make([]EquityPoint, 0, len(trades))
	for _, t := range trades {
		equity = equity.Add(t.RealizedPnL)
		if equity.GreaterThan(peak) {
			peak = equity
		}
		out = append(out, EquityPoint{
			Time:     t.ClosedAt,
			Equity:   equity,
			Drawdown: peak.Sub(equity),
		})
	}
	return out, nil
}

// drawdown finds the deepest peak-to-trough drop of the realized equity
// sequence, as an amount, a percentage of the peak, and the time between
// the peak trade and the trough trade.
func drawdown(initial decimal.Decimal, trades []*store.Trade) (decimal.Decimal, decimal.Decimal, time.Duration) {
	equity := initial
	peak := initial
	peakAt := time.Time{}
	if len(trades) > 0 {
		peakAt = trades[0].ClosedAt
	}

	var maxDD, maxPct decimal.Decimal
	var maxDur time.Duration
	for _, t := range trades {
		equity = equity.Add(t.RealizedPnL)
		if equity.GreaterThan(peak) {
			peak = equity
			peakAt = t.ClosedAt
			continue
		}
		dd := peak.Sub(equity)
		if dd.GreaterThan(maxDD) {
			maxDD = dd
			maxDur = t.ClosedAt.Sub(peakAt)
			if peak.IsPositive() {
				maxPct = dd.Div(peak).Mul(hundred).Round(2)
			}
		}
	}
	return maxDD, maxPct, maxDur
}
