package sim

import (
	"time"

	"github.com/shopspring/decimal"

	"fxreplay/pkg/id"
	"fxreplay/store"
)

// CreateOrder executes a market order at the current price and opens the
// paired position. SL and TP arrive as price-or-pips levels and are stored
// as a consistent pair of both forms. Rejected without any state change
// when the margin requirement would exceed the balance.
func (s *Session) CreateOrder(side store.Side, lot decimal.Decimal, sl, tp Level) (*store.Order, *store.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.tradingLocked(); err != nil {
		return nil, nil, err
	}
	if !lot.IsPositive() {
		return nil, nil, errf(KindInvalidState, "lot size must be positive")
	}

	price, ok, err := s.feed.CurrentPrice(s.sim.SimTime)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, errf(KindPriceUnavailable, "no candle at %s", s.sim.SimTime.Format(time.RFC3339))
	}

	return s.openPositionLocked(side, lot, price, s.sim.SimTime, sl, tp)
}

// openPositionLocked performs the margin check and writes the Order plus
// its open Position. Shared by market orders and pending-order fills.
func (s *Session) openPositionLocked(side store.Side, lot, price decimal.Decimal, at time.Time, sl, tp Level) (*store.Order, *store.Position, error) {
	open, err := s.store.OpenPositions(s.sim.ID)
	if err != nil {
		return nil, nil, err
	}
	// Admission is conservative: every open position reserves margin here
	// even when the snapshot nets hedged exposure.
	used := totalMargin(open)
	required := RequiredMargin(price, lot)
	if used.Add(required).GreaterThan(s.acct.Balance) {
		return nil, nil, errf(KindInsufficientMargin,
			"required %s + used %s exceeds balance %s", required, used, s.acct.Balance)
	}

	order := &store.Order{
		ID:           id.Order(),
		SimulationID: s.sim.ID,
		Side:         side,
		LotSize:      lot,
		EntryPrice:   price,
		ExecutedAt:   at,
	}
	if err := s.store.InsertOrder(order); err != nil {
		return nil, nil, err
	}

	pos := &store.Position{
		ID:           id.Position(),
		SimulationID: s.sim.ID,
		OrderID:      order.ID,
		Side:         side,
		LotSize:      lot,
		EntryPrice:   price,
		Status:       "open",
		OpenedAt:     at,
	}
	pos.SLPrice, pos.SLPips = sl.resolve(side, true, price)
	pos.TPPrice, pos.TPPips = tp.resolve(side, false, price)
	if err := s.store.InsertPosition(pos); err != nil {
		return nil, nil, err
	}
	return order, pos, nil
}

// ClosePosition closes one open position at the current price, realizing
// its P&L into the account and recording the trade.
func (s *Session) ClosePosition(positionID string) (*store.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.tradingLocked(); err != nil {
		return nil, err
	}

	pos, err := s.store.GetOpenPosition(s.sim.ID, positionID)
	if err != nil {
		return nil, mapNotFound(err)
	}

	price, ok, err := s.feed.CurrentPrice(s.sim.SimTime)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errf(KindPriceUnavailable, "no candle at %s", s.sim.SimTime.Format(time.RFC3339))
	}

	return s.closePositionLocked(pos, price, s.sim.SimTime)
}

// closePositionLocked realizes a position at exit: trade record, position
// flip, balance, cumulative P&L and the loss streak, in that order.
func (s *Session) closePositionLocked(pos *store.Position, exit decimal.Decimal, at time.Time) (*store.Trade, error) {
	pips := PnLPips(pos.Side, pos.EntryPrice, exit)
	pnl := PnLCurrency(pips, pos.LotSize)

	trade := &store.Trade{
		ID:              id.Trade(),
		SimulationID:    s.sim.ID,
		PositionID:      pos.ID,
		Side:            pos.Side,
		LotSize:         pos.LotSize,
		EntryPrice:      pos.EntryPrice,
		ExitPrice:       exit,
		RealizedPnL:     pnl,
		RealizedPnLPips: pips,
		OpenedAt:        pos.OpenedAt,
		ClosedAt:        at,
	}
	if err := s.store.InsertTrade(trade); err != nil {
		return nil, err
	}
	if err := s.store.MarkPositionClosed(pos.ID, at); err != nil {
		return nil, mapNotFound(err)
	}

	s.acct.Balance = s.acct.Balance.Add(pnl)
	s.acct.RealizedPnL = s.acct.RealizedPnL.Add(pnl)
	s.acct.ConsecutiveLosses = nextStreak(s.acct.ConsecutiveLosses, pips)
	if err := s.store.UpdateAccount(s.acct); err != nil {
		return nil, err
	}
	return trade, nil
}

// SetSLTP rewrites a position's stop-loss and take-profit. A zero Level
// clears that side.
func (s *Session) SetSLTP(positionID string, sl, tp Level) (*store.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.tradingLocked(); err != nil {
		return nil, err
	}

	pos, err := s.store.GetOpenPosition(s.sim.ID, positionID)
	if err != nil {
		return nil, mapNotFound(err)
	}

	pos.SLPrice, pos.SLPips = sl.resolve(pos.Side, true, pos.EntryPrice)
	pos.TPPrice, pos.TPPips = tp.resolve(pos.Side, false, pos.EntryPrice)
	if err := s.store.UpdatePositionSLTP(pos); err != nil {
		return nil, mapNotFound(err)
	}
	return pos, nil
}

// Snapshot is the derived view of the account. Equity and margin are
// computed from stored state on every read, never persisted.
type Snapshot struct {
	InitialBalance    decimal.Decimal `json:"initial_balance"`
	Balance           decimal.Decimal `json:"balance"`
	Equity            decimal.Decimal `json:"equity"`
	UnrealizedPnL     decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnL       decimal.Decimal `json:"realized_pnl"`
	UsedMargin        decimal.Decimal `json:"used_margin"`
	FreeMargin        decimal.Decimal `json:"free_margin"`
	ConsecutiveLosses int             `json:"consecutive_losses"`
	OpenPositions     int             `json:"open_positions"`
}

// AccountSnapshot marks every open position to the current price. Used
// margin is per side with hedged positions netting against the larger
// exposure, not the sum of both.
func (s *Session) AccountSnapshot() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sim == nil {
		return nil, ErrNoActiveSimulation
	}

	open, err := s.store.OpenPositions(s.sim.ID)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		InitialBalance:    s.acct.InitialBalance,
		Balance:           s.acct.Balance,
		RealizedPnL:       s.acct.RealizedPnL,
		ConsecutiveLosses: s.acct.ConsecutiveLosses,
		OpenPositions:     len(open),
		UnrealizedPnL:     decimal.Zero,
	}

	if len(open) > 0 {
		price, ok, err := s.feed.CurrentPrice(s.sim.SimTime)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errf(KindPriceUnavailable, "no candle at %s", s.sim.SimTime.Format(time.RFC3339))
		}
		for _, p := range open {
			pips := PnLPips(p.Side, p.EntryPrice, price)
			snap.UnrealizedPnL = snap.UnrealizedPnL.Add(PnLCurrency(pips, p.LotSize))
		}
		snap.UsedMargin = hedgedMargin(open)
	}

	snap.Equity = snap.Balance.Add(snap.UnrealizedPnL)
	snap.FreeMargin = snap.Equity.Sub(snap.UsedMargin)
	return snap, nil
}

// PositionView is an open position marked to the current price.
type PositionView struct {
	store.Position
	UnrealizedPnL     decimal.Decimal `json:"unrealized_pnl"`
	UnrealizedPnLPips decimal.Decimal `json:"unrealized_pnl_pips"`
	CurrentPrice      decimal.Decimal `json:"current_price"`
}

// OpenPositions returns every open position with its unrealized P&L at
// the current price, oldest first.
func (s *Session) OpenPositions() ([]*PositionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sim == nil {
		return nil, ErrNoActiveSimulation
	}

	open, err := s.store.OpenPositions(s.sim.ID)
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return nil, nil
	}

	price, ok, err := s.feed.CurrentPrice(s.sim.SimTime)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errf(KindPriceUnavailable, "no candle at %s", s.sim.SimTime.Format(time.RFC3339))
	}

	out := make([]*PositionView, 0, len(open))
	for _, p := range open {
		pips := PnLPips(p.Side, p.EntryPrice, price)
		out = append(out, &PositionView{
			Position:          *p,
			UnrealizedPnL:     PnLCurrency(pips, p.LotSize),
			UnrealizedPnLPips: pips,
			CurrentPrice:      price,
		})
	}
	return out, nil
}

// TradeHistory pages through closed trades, newest first.
func (s *Session) TradeHistory(limit, offset int) ([]*store.Trade, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sim == nil {
		return nil, 0, ErrNoActiveSimulation
	}
	return s.store.ListTrades(s.sim.ID, limit, offset)
}

// Orders pages through executed market orders, newest first.
func (s *Session) Orders(limit, offset int) ([]*store.Order, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sim == nil {
		return nil, 0, ErrNoActiveSimulation
	}
	return s.store.ListOrders(s.sim.ID, limit, offset)
}

// totalMargin sums entry-price margin over every open position.
func totalMargin(open []*store.Position) decimal.Decimal {
	total := decimal.Zero
	for _, p := range open {
		total = total.Add(RequiredMargin(p.EntryPrice, p.LotSize))
	}
	return total
}

// hedgedMargin sums entry-price margin per side and returns the larger
// sum: opposing positions net against the bigger exposure.
func hedgedMargin(open []*store.Position) decimal.Decimal {
	buy, sell := decimal.Zero, decimal.Zero
	for _, p := range open {
		m := RequiredMargin(p.EntryPrice, p.LotSize)
		if p.Side == store.Buy {
			buy = buy.Add(m)
		} else {
			sell = sell.Add(m)
		}
	}
	if buy.GreaterThanOrEqual(sell) {
		return buy
	}
	return sell
}
