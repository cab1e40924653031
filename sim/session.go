package sim

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fxreplay/feed"
	"fxreplay/market"
	"fxreplay/pkg/id"
	"fxreplay/store"
)

// Session is the single-writer engine handle for one simulation run. Every
// mutating operation, clock advances included, serializes behind one mutex:
// advancing time while an order is mid-creation could apply SL/TP against
// state the order has not committed yet. Candle reads go through the feed
// and are safe to share.
type Session struct {
	mu    sync.Mutex
	store *store.Store
	feed  *feed.Service
	log   *slog.Logger

	sim  *store.Simulation
	acct *store.Account
}

func NewSession(st *store.Store, f *feed.Service, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{store: st, feed: f, log: log}
}

// Attach binds the session to the newest non-stopped simulation on disk.
// Used at process start to pick up a run that survived a restart.
func (s *Session) Attach() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	active, err := s.store.ActiveSimulations()
	if err != nil {
		return err
	}
	if len(active) == 0 {
		return ErrNoActiveSimulation
	}
	acct, err := s.store.GetAccount(active[0].ID)
	if err != nil {
		return err
	}
	s.sim = active[0]
	s.acct = acct
	return nil
}

// Start stops any simulation still marked active, then creates a fresh
// Simulation and Account in created state and binds the session to them.
// Positions and pending orders of the superseded run are left as they are.
func (s *Session) Start(at time.Time, initialBalance, speed decimal.Decimal) (*store.Simulation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !initialBalance.IsPositive() {
		return nil, errf(KindInvalidState, "initial balance must be positive")
	}
	if !speed.IsPositive() {
		return nil, errf(KindInvalidState, "speed must be positive")
	}

	active, err := s.store.ActiveSimulations()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	for _, old := range active {
		old.Status = store.StatusStopped
		old.EndTime = &now
		if err := s.store.UpdateSimulation(old); err != nil {
			return nil, err
		}
	}

	sim := &store.Simulation{
		ID:        id.Simulation(),
		Status:    store.StatusCreated,
		StartTime: at.UTC(),
		SimTime:   at.UTC(),
		Speed:     speed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertSimulation(sim); err != nil {
		return nil, err
	}

	acct := &store.Account{
		ID:             id.Account(),
		SimulationID:   sim.ID,
		InitialBalance: initialBalance,
		Balance:        initialBalance,
		RealizedPnL:    decimal.Zero,
	}
	if err := s.store.InsertAccount(acct); err != nil {
		return nil, err
	}

	s.sim = sim
	s.acct = acct

	out := *sim
	return &out, nil
}

// Run transitions created -> running.
func (s *Session) Run() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(store.StatusCreated, store.StatusRunning)
}

// Pause transitions running -> paused.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(store.StatusRunning, store.StatusPaused)
}

// Resume transitions paused -> running.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(store.StatusPaused, store.StatusRunning)
}

func (s *Session) transitionLocked(from, to store.Status) error {
	if s.sim == nil {
		return ErrNoActiveSimulation
	}
	if s.sim.Status != from {
		return errf(KindInvalidState, "cannot go from %s to %s", s.sim.Status, to)
	}
	s.sim.Status = to
	return s.store.UpdateSimulation(s.sim)
}

// SetSpeed changes the display-only replay multiplier. The engine itself
// never consumes it.
func (s *Session) SetSpeed(speed decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sim == nil {
		return ErrNoActiveSimulation
	}
	if s.sim.Status == store.StatusStopped {
		return errf(KindInvalidState, "simulation is stopped")
	}
	if !speed.IsPositive() {
		return errf(KindInvalidState, "speed must be positive")
	}
	s.sim.Speed = speed
	return s.store.UpdateSimulation(s.sim)
}

// Status returns a snapshot of the bound simulation.
func (s *Session) Status() (*store.Simulation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sim == nil {
		return nil, ErrNoActiveSimulation
	}
	out := *s.sim
	return &out, nil
}

// Summary is the immutable record Stop returns once a run has ended.
type Summary struct {
	SimulationID string          `json:"simulation_id"`
	FinalBalance decimal.Decimal `json:"final_balance"`
	RealizedPnL  decimal.Decimal `json:"realized_pnl"`
	TradeCount   int             `json:"trade_count"`
	StoppedAt    time.Time       `json:"stopped_at"`
	Failures     []string        `json:"failures,omitempty"`
}

// Stop force-closes every open position at the current price and cancels
// every pending order, best effort: one position failing to close does not
// block the rest, and each failure is recorded on the summary. The
// simulation is then marked stopped regardless.
func (s *Session) Stop() (*Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sim == nil {
		return nil, ErrNoActiveSimulation
	}
	if !s.sim.Status.Active() {
		return nil, errf(KindInvalidState, "simulation already stopped")
	}

	sum := &Summary{SimulationID: s.sim.ID}

	open, err := s.store.OpenPositions(s.sim.ID)
	if err != nil {
		return nil, err
	}
	if len(open) > 0 {
		price, ok, err := s.feed.CurrentPrice(s.sim.SimTime)
		if err != nil {
			return nil, err
		}
		if !ok {
			for _, p := range open {
				sum.Failures = append(sum.Failures, "close "+p.ID+": no price at current time")
			}
			s.log.Warn("stop: no price, leaving positions open",
				"simulation", s.sim.ID, "positions", len(open))
		} else {
			for _, p := range open {
				if _, err := s.closePositionLocked(p, price, s.sim.SimTime); err != nil {
					sum.Failures = append(sum.Failures, "close "+p.ID+": "+err.Error())
					s.log.Warn("stop: close failed", "position", p.ID, "err", err)
				}
			}
		}
	}

	pend, _, err := s.store.PendingOrdersByStatus(s.sim.ID, store.PendingOpen, evalBatch, 0)
	if err != nil {
		return nil, err
	}
	for _, o := range pend {
		if err := s.store.MarkPendingCancelled(o.ID); err != nil {
			sum.Failures = append(sum.Failures, "cancel "+o.ID+": "+err.Error())
			s.log.Warn("stop: cancel failed", "pending_order", o.ID, "err", err)
		}
	}

	now := time.Now().UTC()
	s.sim.Status = store.StatusStopped
	s.sim.EndTime = &now
	if err := s.store.UpdateSimulation(s.sim); err != nil {
		return nil, err
	}

	_, total, err := s.store.ListTrades(s.sim.ID, 1, 0)
	if err != nil {
		return nil, err
	}
	sum.FinalBalance = s.acct.Balance
	sum.RealizedPnL = s.acct.RealizedPnL
	sum.TradeCount = total
	sum.StoppedAt = now
	return sum, nil
}

// AdvanceReport describes everything a single clock advance did.
type AdvanceReport struct {
	Time      time.Time       `json:"current_time"`
	Jumped    bool            `json:"jumped"`
	Executed  []ExecutedOrder `json:"executed_orders,omitempty"`
	Closed    []ClosedByLevel `json:"closed_positions,omitempty"`
	Conflicts []string        `json:"conflicting_positions,omitempty"`
	Failures  []string        `json:"failures,omitempty"`
}

// ExecutedOrder records a pending order filled during an advance.
type ExecutedOrder struct {
	PendingOrderID string `json:"pending_order_id"`
	PositionID     string `json:"position_id"`
}

// ClosedByLevel records a position an SL or TP closed during an advance.
type ClosedByLevel struct {
	PositionID string          `json:"position_id"`
	Reason     string          `json:"reason"`
	ExitPrice  decimal.Decimal `json:"exit_price"`
}

// AdvanceTime moves the clock to target, or past it to the next tradable
// bar when the dataset has a hole there (weekends, gaps). After settling
// the time it evaluates pending orders, then SL/TP, against the closed
// ten-minute bar, and finally commits the new clock. Trigger failures are
// logged and reported, never fatal to the advance.
func (s *Session) AdvanceTime(target time.Time) (*AdvanceReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sim == nil {
		return nil, ErrNoActiveSimulation
	}
	if s.sim.Status != store.StatusRunning {
		return nil, errf(KindInvalidState, "simulation is %s, not running", s.sim.Status)
	}
	target = target.UTC()
	if target.Before(s.sim.SimTime) {
		return nil, errf(KindInvalidState, "time cannot move backwards")
	}

	rep := &AdvanceReport{Time: target}

	bar, ok, err := s.feed.ClosedBarAt(target)
	if err != nil {
		return nil, err
	}
	if !ok || !market.IsMarketOpen(target) {
		next, found, err := s.feed.NextBarAfter(target)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, errf(KindEndOfData, "no data past %s", target.Format(time.RFC3339))
		}
		rep.Time = next.Timestamp
		rep.Jumped = true
		bar = next
	}

	s.evaluatePendingLocked(bar, rep)
	s.evaluateSLTPLocked(bar, rep)

	s.sim.SimTime = rep.Time
	if err := s.store.UpdateSimulation(s.sim); err != nil {
		return nil, err
	}
	return rep, nil
}

// tradingLocked guards ledger mutations: allowed while running or paused.
func (s *Session) tradingLocked() error {
	if s.sim == nil {
		return ErrNoActiveSimulation
	}
	switch s.sim.Status {
	case store.StatusRunning, store.StatusPaused:
		return nil
	}
	return errf(KindInvalidState, "trading not permitted while %s", s.sim.Status)
}

// mapNotFound converts the store's row-miss into the engine's kind.
func mapNotFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return &Error{Kind: KindNotFound, Err: err}
	}
	return err
}
