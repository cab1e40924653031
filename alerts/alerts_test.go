package alerts

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxreplay/pkg/id"
	"fxreplay/store"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var day = time.Date(2024, 12, 30, 9, 0, 0, 0, time.UTC)

type fixture struct {
	st    *store.Store
	simID string
	acct  *store.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "alerts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	sim := &store.Simulation{
		ID:        id.New(),
		Status:    store.StatusRunning,
		StartTime: day,
		SimTime:   day,
		Speed:     d("1"),
		CreatedAt: day,
		UpdatedAt: day,
	}
	require.NoError(t, st.InsertSimulation(sim))

	acct := &store.Account{
		ID:             id.New(),
		SimulationID:   sim.ID,
		InitialBalance: d("100000"),
		Balance:        d("100000"),
		RealizedPnL:    decimal.Zero,
	}
	require.NoError(t, st.InsertAccount(acct))
	return &fixture{st: st, simID: sim.ID, acct: acct}
}

func (f *fixture) addTrade(t *testing.T, pnl string, closedAt time.Time) {
	t.Helper()
	require.NoError(t, f.st.InsertTrade(&store.Trade{
		ID:              id.New(),
		SimulationID:    f.simID,
		PositionID:      id.New(),
		Side:            store.Buy,
		LotSize:         d("0.1"),
		EntryPrice:      d("150.00"),
		ExitPrice:       d("150.00"),
		RealizedPnL:     d(pnl),
		RealizedPnLPips: d(pnl).Div(d("100")).Round(1),
		OpenedAt:        closedAt.Add(-10 * time.Minute),
		ClosedAt:        closedAt,
	}))
}

func kinds(alerts []Alert) []Kind {
	out := make([]Kind, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, a.Kind)
	}
	return out
}

func TestNoAlertsOnQuietAccount(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	got, err := New(f.st, DefaultRules()).Evaluate(f.simID, day)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestConsecutiveLossAlert(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.acct.ConsecutiveLosses = 3
	require.NoError(t, f.st.UpdateAccount(f.acct))

	got, err := New(f.st, DefaultRules()).Evaluate(f.simID, day)
	require.NoError(t, err)
	assert.Contains(t, kinds(got), ConsecutiveLosses)
}

func TestDailyLossAlert(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	// Yesterday's loss must not count.
	f.addTrade(t, "-60000", day.AddDate(0, 0, -1))
	f.addTrade(t, "-30000", day)
	f.addTrade(t, "-25000", day.Add(time.Hour))

	rules := DefaultRules()
	// Silence the checks the big synthetic losses would also trip.
	rules.MinTradeInterval = 0
	rules.MaxDrawdownPercent = decimal.Zero

	got, err := New(f.st, rules).Evaluate(f.simID, day)
	require.NoError(t, err)
	assert.Equal(t, []Kind{DailyLoss}, kinds(got))
}

func TestDrawdownAlert(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	// Peak 110,000 then down to 85,000: 22.73% drawdown.
	f.addTrade(t, "10000", day)
	f.addTrade(t, "-25000", day.Add(time.Hour))

	rules := DefaultRules()
	rules.DailyLossLimit = decimal.Zero
	rules.MinTradeInterval = 0

	got, err := New(f.st, rules).Evaluate(f.simID, day)
	require.NoError(t, err)
	assert.Equal(t, []Kind{Drawdown}, kinds(got))
}

func TestOverTradingAlert(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addTrade(t, "100", day)
	f.addTrade(t, "100", day.Add(3*time.Minute))

	got, err := New(f.st, DefaultRules()).Evaluate(f.simID, day.Add(3*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []Kind{OverTrading}, kinds(got))
}

func TestOversizedLotAlert(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, f.st.InsertPosition(&store.Position{
		ID:           id.New(),
		SimulationID: f.simID,
		OrderID:      id.New(),
		Side:         store.Buy,
		LotSize:      d("2"),
		EntryPrice:   d("150.00"),
		Status:       "open",
		OpenedAt:     day,
	}))

	got, err := New(f.st, DefaultRules()).Evaluate(f.simID, day)
	require.NoError(t, err)
	assert.Equal(t, []Kind{OversizedLot}, kinds(got))
}
