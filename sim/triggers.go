package sim

import (
	"github.com/shopspring/decimal"

	"fxreplay/market"
	"fxreplay/store"
)

// evalBatch bounds how many rows a single trigger pass loads. Far above
// anything a manual replay session produces.
const evalBatch = 1000

// evaluatePendingLocked fills resting orders whose trigger price falls
// inside the settled bar. Limit buys and stop sells fill when the low
// touches the trigger; limit sells and stop buys when the high does.
// Fills happen at the trigger price. Best effort per order.
func (s *Session) evaluatePendingLocked(bar market.Candle, rep *AdvanceReport) {
	pend, _, err := s.store.PendingOrdersByStatus(s.sim.ID, store.PendingOpen, evalBatch, 0)
	if err != nil {
		rep.Failures = append(rep.Failures, "load pending orders: "+err.Error())
		s.log.Warn("advance: load pending orders", "err", err)
		return
	}

	for _, o := range pend {
		var fire bool
		if (o.Type == store.Limit) == (o.Side == store.Buy) {
			// Limit buy or stop sell: waits below the market.
			fire = bar.Low.LessThanOrEqual(o.TriggerPrice)
		} else {
			// Limit sell or stop buy: waits above the market.
			fire = bar.High.GreaterThanOrEqual(o.TriggerPrice)
		}
		if !fire {
			continue
		}

		_, pos, err := s.openPositionLocked(o.Side, o.LotSize, o.TriggerPrice, rep.Time, Level{}, Level{})
		if err != nil {
			// Left pending; it will be retried on the next advance.
			rep.Failures = append(rep.Failures, "execute "+o.ID+": "+err.Error())
			s.log.Warn("advance: pending execution failed", "pending_order", o.ID, "err", err)
			continue
		}
		if err := s.store.MarkPendingExecuted(o.ID, rep.Time); err != nil {
			rep.Failures = append(rep.Failures, "mark executed "+o.ID+": "+err.Error())
			s.log.Warn("advance: mark executed failed", "pending_order", o.ID, "err", err)
			continue
		}
		rep.Executed = append(rep.Executed, ExecutedOrder{
			PendingOrderID: o.ID,
			PositionID:     pos.ID,
		})
	}
}

// evaluateSLTPLocked closes open positions whose stop-loss or take-profit
// level falls inside the settled bar. When both levels fall inside the
// same bar the order of events inside the bar is unknowable, so the
// position is reported as a conflict and left open for the caller to
// resolve. Best effort per position.
func (s *Session) evaluateSLTPLocked(bar market.Candle, rep *AdvanceReport) {
	open, err := s.store.OpenPositions(s.sim.ID)
	if err != nil {
		rep.Failures = append(rep.Failures, "load open positions: "+err.Error())
		s.log.Warn("advance: load open positions", "err", err)
		return
	}

	for _, p := range open {
		if p.SLPrice == nil && p.TPPrice == nil {
			continue
		}

		var slHit, tpHit bool
		if p.Side == store.Buy {
			slHit = p.SLPrice != nil && bar.Low.LessThanOrEqual(*p.SLPrice)
			tpHit = p.TPPrice != nil && bar.High.GreaterThanOrEqual(*p.TPPrice)
		} else {
			slHit = p.SLPrice != nil && bar.High.GreaterThanOrEqual(*p.SLPrice)
			tpHit = p.TPPrice != nil && bar.Low.LessThanOrEqual(*p.TPPrice)
		}

		switch {
		case slHit && tpHit:
			rep.Conflicts = append(rep.Conflicts, p.ID)
			s.log.Warn("advance: sl and tp in one bar", "position", p.ID, "bar", bar.Timestamp)
		case slHit:
			s.closeByLevelLocked(p, *p.SLPrice, "sl", rep)
		case tpHit:
			s.closeByLevelLocked(p, *p.TPPrice, "tp", rep)
		}
	}
}

func (s *Session) closeByLevelLocked(p *store.Position, exit decimal.Decimal, reason string, rep *AdvanceReport) {
	if _, err := s.closePositionLocked(p, exit, rep.Time); err != nil {
		rep.Failures = append(rep.Failures, "close "+p.ID+": "+err.Error())
		s.log.Warn("advance: auto close failed", "position", p.ID, "reason", reason, "err", err)
		return
	}
	rep.Closed = append(rep.Closed, ClosedByLevel{PositionID: p.ID, Reason: reason, ExitPrice: exit})
}
