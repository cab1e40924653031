package sim

import (
	"time"

	"github.com/shopspring/decimal"

	"fxreplay/pkg/id"
	"fxreplay/store"
)

// CreatePendingOrder rests a limit or stop order at a trigger price. No
// margin is reserved until the order fills.
func (s *Session) CreatePendingOrder(typ store.PendingType, side store.Side, lot, trigger decimal.Decimal) (*store.PendingOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.tradingLocked(); err != nil {
		return nil, err
	}
	if typ != store.Limit && typ != store.Stop {
		return nil, errf(KindInvalidState, "unknown order type %q", typ)
	}
	if !lot.IsPositive() {
		return nil, errf(KindInvalidState, "lot size must be positive")
	}
	if !trigger.IsPositive() {
		return nil, errf(KindInvalidState, "trigger price must be positive")
	}

	now := time.Now().UTC()
	o := &store.PendingOrder{
		ID:           id.PendingOrder(),
		SimulationID: s.sim.ID,
		Type:         typ,
		Side:         side,
		LotSize:      lot,
		TriggerPrice: trigger,
		Status:       store.PendingOpen,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.InsertPendingOrder(o); err != nil {
		return nil, err
	}
	return o, nil
}

// UpdatePendingOrder changes the lot size and/or trigger price of an order
// that is still pending. Nil fields keep their current value.
func (s *Session) UpdatePendingOrder(orderID string, lot, trigger *decimal.Decimal) (*store.PendingOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.tradingLocked(); err != nil {
		return nil, err
	}

	o, err := s.store.GetPendingOrder(s.sim.ID, orderID)
	if err != nil {
		return nil, mapNotFound(err)
	}
	if o.Status != store.PendingOpen {
		return nil, errf(KindInvalidState, "pending order is %s", o.Status)
	}
	if lot != nil {
		if !lot.IsPositive() {
			return nil, errf(KindInvalidState, "lot size must be positive")
		}
		o.LotSize = *lot
	}
	if trigger != nil {
		if !trigger.IsPositive() {
			return nil, errf(KindInvalidState, "trigger price must be positive")
		}
		o.TriggerPrice = *trigger
	}
	if err := s.store.UpdatePendingOrder(o); err != nil {
		return nil, mapNotFound(err)
	}
	return o, nil
}

// CancelPendingOrder transitions a pending order to cancelled.
func (s *Session) CancelPendingOrder(orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.tradingLocked(); err != nil {
		return err
	}
	if _, err := s.store.GetPendingOrder(s.sim.ID, orderID); err != nil {
		return mapNotFound(err)
	}
	return mapNotFound(s.store.MarkPendingCancelled(orderID))
}

// PendingOrders pages through resting orders, newest first. An empty
// status matches every state.
func (s *Session) PendingOrders(status store.PendingStatus, limit, offset int) ([]*store.PendingOrder, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sim == nil {
		return nil, 0, ErrNoActiveSimulation
	}
	return s.store.PendingOrdersByStatus(s.sim.ID, status, limit, offset)
}
