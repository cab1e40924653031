package sim

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxreplay/feed"
	"fxreplay/market"
	"fxreplay/store"
)

func newTestSession(t *testing.T) (*Session, *store.Store) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "sim.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSession(st, feed.New(st), log), st
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seedBar(t *testing.T, st *store.Store, ts time.Time, o, h, l, c string) {
	t.Helper()
	_, err := st.UpsertCandles([]market.Candle{{
		Timeframe: market.M10,
		Timestamp: ts,
		Open:      d(o), High: d(h), Low: d(l), Close: d(c),
		Volume: 10,
	}})
	require.NoError(t, err)
}

// startRunning seeds a first bar at t0 and brings a session to running.
func startRunning(t *testing.T, s *Session, st *store.Store, t0 time.Time, balance string) {
	t.Helper()
	seedBar(t, st, t0, "150.00", "150.00", "150.00", "150.00")
	_, err := s.Start(t0, d(balance), d("1"))
	require.NoError(t, err)
	require.NoError(t, s.Run())
}

var monday = time.Date(2024, 12, 30, 9, 0, 0, 0, time.UTC)

func TestLifecycleTransitions(t *testing.T) {
	t.Parallel()

	s, st := newTestSession(t)

	// Nothing bound yet.
	assert.ErrorIs(t, s.Pause(), ErrNoActiveSimulation)

	seedBar(t, st, monday, "150.00", "150.00", "150.00", "150.00")
	sim, err := s.Start(monday, d("100000"), d("1"))
	require.NoError(t, err)
	assert.Equal(t, store.StatusCreated, sim.Status)

	// Pause is only reachable from running.
	assert.ErrorIs(t, s.Pause(), ErrInvalidState)

	require.NoError(t, s.Run())
	require.NoError(t, s.Pause())
	require.NoError(t, s.Resume())

	_, err = s.AdvanceTime(monday)
	require.NoError(t, err)

	// Advancing needs running, not paused.
	require.NoError(t, s.Pause())
	_, err = s.AdvanceTime(monday.Add(10 * time.Minute))
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStartSupersedesActiveSimulation(t *testing.T) {
	t.Parallel()

	s, st := newTestSession(t)
	seedBar(t, st, monday, "150.00", "150.00", "150.00", "150.00")

	first, err := s.Start(monday, d("100000"), d("1"))
	require.NoError(t, err)

	_, err = s.Start(monday, d("100000"), d("1"))
	require.NoError(t, err)

	old, err := st.GetSimulation(first.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusStopped, old.Status)
	assert.NotNil(t, old.EndTime)

	active, err := st.ActiveSimulations()
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestBuyCloseRealizesPnL(t *testing.T) {
	t.Parallel()

	s, st := newTestSession(t)
	startRunning(t, s, st, monday, "100000")

	order, pos, err := s.CreateOrder(store.Buy, d("0.1"), Level{}, Level{})
	require.NoError(t, err)
	assert.True(t, order.EntryPrice.Equal(d("150.00")))
	assert.Equal(t, order.ID, pos.OrderID)

	next := monday.Add(10 * time.Minute)
	seedBar(t, st, next, "150.50", "151.20", "150.40", "151.00")
	_, err = s.AdvanceTime(next)
	require.NoError(t, err)

	trade, err := s.ClosePosition(pos.ID)
	require.NoError(t, err)
	assert.True(t, trade.RealizedPnLPips.Equal(d("100")), "got %s pips", trade.RealizedPnLPips)
	assert.True(t, trade.RealizedPnL.Equal(d("10000")), "got %s", trade.RealizedPnL)

	snap, err := s.AccountSnapshot()
	require.NoError(t, err)
	assert.True(t, snap.Balance.Equal(d("110000")))
	assert.True(t, snap.RealizedPnL.Equal(d("10000")))
	assert.Zero(t, snap.OpenPositions)

	// Balance always equals initial balance plus the sum of trade P&L.
	trades, _, err := s.TradeHistory(100, 0)
	require.NoError(t, err)
	sum := decimal.Zero
	for _, tr := range trades {
		sum = sum.Add(tr.RealizedPnL)
	}
	assert.True(t, snap.Balance.Equal(snap.InitialBalance.Add(sum)))

	// Closing twice is a not-found.
	_, err = s.ClosePosition(pos.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateOrderRejectsOnMargin(t *testing.T) {
	t.Parallel()

	s, st := newTestSession(t)
	startRunning(t, s, st, monday, "100000")

	// 0.1 lot at 150.00 reserves 60,000.
	_, _, err := s.CreateOrder(store.Buy, d("0.1"), Level{}, Level{})
	require.NoError(t, err)

	// A second 0.1 lot buy would need 120,000 against a 100,000 balance.
	_, _, err = s.CreateOrder(store.Buy, d("0.1"), Level{}, Level{})
	assert.ErrorIs(t, err, ErrInsufficientMargin)

	// Rejection must not have mutated anything.
	open, err := s.OpenPositions()
	require.NoError(t, err)
	assert.Len(t, open, 1)
	snap, err := s.AccountSnapshot()
	require.NoError(t, err)
	assert.True(t, snap.Balance.Equal(d("100000")))
}

func TestHedgedMarginUsesLargerSide(t *testing.T) {
	t.Parallel()

	s, st := newTestSession(t)
	startRunning(t, s, st, monday, "150000")

	_, _, err := s.CreateOrder(store.Buy, d("0.1"), Level{}, Level{})
	require.NoError(t, err)
	_, _, err = s.CreateOrder(store.Sell, d("0.1"), Level{}, Level{})
	require.NoError(t, err)

	// Admission reserved 120,000 but the reported figure nets the two
	// sides against the larger exposure.
	snap, err := s.AccountSnapshot()
	require.NoError(t, err)
	assert.True(t, snap.UsedMargin.Equal(d("60000")), "got %s", snap.UsedMargin)
}

func TestConsecutiveLossStreak(t *testing.T) {
	t.Parallel()

	t.Run("rule", func(t *testing.T) {
		tests := []struct {
			pips string
			want int
		}{
			{"-5", 1},
			{"-3", 2},
			{"30", 0},
			{"-1", 1},
			{"10", 1}, // small win leaves the streak alone
		}
		streak := 0
		for _, tt := range tests {
			streak = nextStreak(streak, d(tt.pips))
			assert.Equal(t, tt.want, streak, "after %s pips", tt.pips)
		}
	})

	t.Run("ledger", func(t *testing.T) {
		s, st := newTestSession(t)
		startRunning(t, s, st, monday, "1000000")

		step := func(exit string) {
			_, pos, err := s.CreateOrder(store.Buy, d("0.1"), Level{}, Level{})
			require.NoError(t, err)
			next := s.sim.SimTime.Add(10 * time.Minute)
			seedBar(t, st, next, exit, exit, exit, exit)
			_, err = s.AdvanceTime(next)
			require.NoError(t, err)
			_, err = s.ClosePosition(pos.ID)
			require.NoError(t, err)
		}

		step("149.90") // -10 pips
		step("149.80")
		acct, err := st.GetAccount(s.sim.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, acct.ConsecutiveLosses)

		step("150.30") // +50 pips from 149.80, resets
		acct, err = st.GetAccount(s.sim.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, acct.ConsecutiveLosses)
	})
}

func TestLevelRoundTrip(t *testing.T) {
	t.Parallel()

	entry := d("150.00")

	// Price form to pips and back for every side/target combination.
	tests := []struct {
		side  store.Side
		stop  bool
		price string
		pips  string
	}{
		{store.Buy, true, "149.50", "50"},
		{store.Buy, false, "150.50", "50"},
		{store.Sell, true, "150.50", "50"},
		{store.Sell, false, "149.50", "50"},
	}
	for _, tt := range tests {
		price, pips := PriceLevel(d(tt.price)).resolve(tt.side, tt.stop, entry)
		require.NotNil(t, price)
		assert.True(t, pips.Equal(d(tt.pips)), "%s stop=%v: got %s pips", tt.side, tt.stop, pips)

		back, _ := PipsLevel(*pips).resolve(tt.side, tt.stop, entry)
		assert.True(t, back.Equal(d(tt.price)), "%s stop=%v: got %s back", tt.side, tt.stop, back)
	}

	// Unset levels resolve to nothing.
	price, pips := (Level{}).resolve(store.Buy, true, entry)
	assert.Nil(t, price)
	assert.Nil(t, pips)
}

func TestSetSLTP(t *testing.T) {
	t.Parallel()

	s, st := newTestSession(t)
	startRunning(t, s, st, monday, "100000")

	_, pos, err := s.CreateOrder(store.Buy, d("0.1"), PipsLevel(d("50")), Level{})
	require.NoError(t, err)
	require.NotNil(t, pos.SLPrice)
	assert.True(t, pos.SLPrice.Equal(d("149.50")))
	assert.Nil(t, pos.TPPrice)

	updated, err := s.SetSLTP(pos.ID, PriceLevel(d("149.00")), PipsLevel(d("80")))
	require.NoError(t, err)
	assert.True(t, updated.SLPips.Equal(d("100")))
	assert.True(t, updated.TPPrice.Equal(d("150.80")))

	// Zero levels clear both sides.
	updated, err = s.SetSLTP(pos.ID, Level{}, Level{})
	require.NoError(t, err)
	assert.Nil(t, updated.SLPrice)
	assert.Nil(t, updated.TPPrice)

	_, err = s.SetSLTP("missing", Level{}, Level{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPendingOrderTriggers(t *testing.T) {
	t.Parallel()

	s, st := newTestSession(t)
	startRunning(t, s, st, monday, "1000000")

	limitBuy, err := s.CreatePendingOrder(store.Limit, store.Buy, d("0.1"), d("149.50"))
	require.NoError(t, err)
	stopBuy, err := s.CreatePendingOrder(store.Stop, store.Buy, d("0.1"), d("151.00"))
	require.NoError(t, err)

	// The next bar dips to 149.40: the limit buy fills at its trigger,
	// the stop buy does not.
	next := monday.Add(10 * time.Minute)
	seedBar(t, st, next, "150.00", "150.10", "149.40", "149.60")
	rep, err := s.AdvanceTime(next)
	require.NoError(t, err)
	require.Len(t, rep.Executed, 1)
	assert.Equal(t, limitBuy.ID, rep.Executed[0].PendingOrderID)

	got, err := st.GetPendingOrder(s.sim.ID, limitBuy.ID)
	require.NoError(t, err)
	assert.Equal(t, store.PendingExecuted, got.Status)

	pos, err := st.GetOpenPosition(s.sim.ID, rep.Executed[0].PositionID)
	require.NoError(t, err)
	assert.True(t, pos.EntryPrice.Equal(d("149.50")), "filled at trigger, got %s", pos.EntryPrice)

	// A rally through 151.00 fires the stop buy.
	next = next.Add(10 * time.Minute)
	seedBar(t, st, next, "149.60", "151.10", "149.60", "151.00")
	rep, err = s.AdvanceTime(next)
	require.NoError(t, err)
	require.Len(t, rep.Executed, 1)
	assert.Equal(t, stopBuy.ID, rep.Executed[0].PendingOrderID)
}

func TestPendingOrderLifecycle(t *testing.T) {
	t.Parallel()

	s, st := newTestSession(t)
	startRunning(t, s, st, monday, "100000")

	o, err := s.CreatePendingOrder(store.Limit, store.Sell, d("0.2"), d("151.00"))
	require.NoError(t, err)

	lot := d("0.3")
	updated, err := s.UpdatePendingOrder(o.ID, &lot, nil)
	require.NoError(t, err)
	assert.True(t, updated.LotSize.Equal(lot))
	assert.True(t, updated.TriggerPrice.Equal(d("151.00")))

	require.NoError(t, s.CancelPendingOrder(o.ID))

	// Cancelled orders reject further mutation.
	_, err = s.UpdatePendingOrder(o.ID, &lot, nil)
	assert.ErrorIs(t, err, ErrInvalidState)
	err = s.CancelPendingOrder(o.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSLTPCloseAndConflict(t *testing.T) {
	t.Parallel()

	s, st := newTestSession(t)
	startRunning(t, s, st, monday, "1000000")

	_, slOnly, err := s.CreateOrder(store.Buy, d("0.1"), PriceLevel(d("149.50")), Level{})
	require.NoError(t, err)
	_, both, err := s.CreateOrder(store.Buy, d("0.1"),
		PriceLevel(d("149.50")), PriceLevel(d("150.50")))
	require.NoError(t, err)

	// One wide bar spans both levels: the SL-only position closes at its
	// stop, the SL+TP one is surfaced as a conflict and stays open.
	next := monday.Add(10 * time.Minute)
	seedBar(t, st, next, "150.00", "150.60", "149.40", "150.00")
	rep, err := s.AdvanceTime(next)
	require.NoError(t, err)

	require.Len(t, rep.Closed, 1)
	assert.Equal(t, slOnly.ID, rep.Closed[0].PositionID)
	assert.Equal(t, "sl", rep.Closed[0].Reason)
	assert.True(t, rep.Closed[0].ExitPrice.Equal(d("149.50")))

	require.Len(t, rep.Conflicts, 1)
	assert.Equal(t, both.ID, rep.Conflicts[0])

	open, err := st.OpenPositions(s.sim.ID)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, both.ID, open[0].ID)
}

func TestAdvanceSkipsWeekend(t *testing.T) {
	t.Parallel()

	s, st := newTestSession(t)

	friday := time.Date(2024, 12, 27, 23, 50, 0, 0, time.UTC)
	nextMonday := time.Date(2024, 12, 30, 7, 0, 0, 0, time.UTC)
	startRunning(t, s, st, friday, "100000")
	seedBar(t, st, nextMonday, "151.00", "151.00", "151.00", "151.00")

	rep, err := s.AdvanceTime(time.Date(2024, 12, 28, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, rep.Jumped)
	assert.Equal(t, nextMonday, rep.Time)

	status, err := s.Status()
	require.NoError(t, err)
	assert.Equal(t, nextMonday, status.SimTime)

	// Past the last bar there is nothing left to replay.
	_, err = s.AdvanceTime(nextMonday.Add(time.Hour))
	assert.ErrorIs(t, err, ErrEndOfData)

	// The clock never moves backwards.
	_, err = s.AdvanceTime(friday)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStopClosesAndCancelsEverything(t *testing.T) {
	t.Parallel()

	s, st := newTestSession(t)
	startRunning(t, s, st, monday, "1000000")

	_, _, err := s.CreateOrder(store.Buy, d("0.1"), Level{}, Level{})
	require.NoError(t, err)
	_, err = s.CreatePendingOrder(store.Limit, store.Buy, d("0.1"), d("149.00"))
	require.NoError(t, err)

	sum, err := s.Stop()
	require.NoError(t, err)
	assert.Equal(t, 1, sum.TradeCount)
	assert.Empty(t, sum.Failures)
	assert.True(t, sum.FinalBalance.Equal(sum.RealizedPnL.Add(d("1000000"))))

	open, err := st.OpenPositions(sum.SimulationID)
	require.NoError(t, err)
	assert.Empty(t, open)

	_, n, err := st.PendingOrdersByStatus(sum.SimulationID, store.PendingOpen, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, n)

	// Stop is terminal.
	_, err = s.Stop()
	assert.ErrorIs(t, err, ErrInvalidState)
	_, _, err = s.CreateOrder(store.Buy, d("0.1"), Level{}, Level{})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestAttachBindsNewestActiveRun(t *testing.T) {
	t.Parallel()

	s, st := newTestSession(t)

	err := s.Attach()
	assert.ErrorIs(t, err, ErrNoActiveSimulation)

	startRunning(t, s, st, monday, "100000")
	simID := s.sim.ID

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	other := NewSession(st, feed.New(st), log)
	require.NoError(t, other.Attach())

	status, err := other.Status()
	require.NoError(t, err)
	assert.Equal(t, simID, status.ID)
}

func TestEngineErrorKinds(t *testing.T) {
	t.Parallel()

	err := errf(KindInsufficientMargin, "required %s", "60000")
	assert.ErrorIs(t, err, ErrInsufficientMargin)
	assert.NotErrorIs(t, err, ErrEndOfData)
	assert.Contains(t, err.Error(), "insufficient margin")

	wrapped := &Error{Kind: KindNotFound, Err: errors.New("row missing")}
	assert.ErrorIs(t, wrapped, ErrNotFound)
	assert.Contains(t, wrapped.Error(), "row missing")
}
