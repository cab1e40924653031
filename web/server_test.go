package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxreplay/config"
	"fxreplay/market"
	"fxreplay/store"
)

func init() { gin.SetMode(gin.TestMode) }

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "web.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.Default()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(cfg, st, log), st
}

func seedBars(t *testing.T, st *store.Store, from time.Time, n int) {
	t.Helper()
	bars := make([]market.Candle, 0, n)
	for i := 0; i < n; i++ {
		ts := from.Add(time.Duration(i) * 10 * time.Minute)
		open := 150.00 + float64(i)*0.10
		bars = append(bars, market.Candle{
			Timeframe: market.M10,
			Timestamp: ts,
			Open:      dec(open),
			High:      dec(open + 0.08),
			Low:       dec(open - 0.03),
			Close:     dec(open + 0.05),
			Volume:    10,
		})
	}
	_, err := st.UpsertCandles(bars)
	require.NoError(t, err)
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

var monday = time.Date(2024, 12, 30, 9, 0, 0, 0, time.UTC)

func TestStartOrderAdvanceFlow(t *testing.T) {
	s, st := newTestServer(t)
	r := s.Routes()
	seedBars(t, st, monday, 12)

	// No run yet.
	w := do(t, r, http.MethodGet, "/api/simulation/status", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodPost, "/api/simulation/start", gin.H{
		"start_time":      monday.Format(time.RFC3339),
		"initial_balance": "100000",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	status := decode(t, w)
	assert.Equal(t, "running", status["status"])

	w = do(t, r, http.MethodPost, "/api/orders", gin.H{
		"side":     "buy",
		"lot_size": "0.1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, r, http.MethodGet, "/api/positions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	positions := decode(t, w)["positions"].([]any)
	require.Len(t, positions, 1)
	posID := positions[0].(map[string]any)["position_id"].(string)

	w = do(t, r, http.MethodPost, "/api/simulation/advance", gin.H{
		"new_time": monday.Add(60 * time.Minute).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, r, http.MethodGet, "/api/account", nil)
	require.Equal(t, http.StatusOK, w.Code)
	snap := decode(t, w)
	assert.Equal(t, "100000", snap["balance"])
	assert.NotEqual(t, "0", snap["unrealized_pnl"])

	w = do(t, r, http.MethodPost, "/api/positions/"+posID+"/close", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, r, http.MethodGet, "/api/trades", nil)
	require.Equal(t, http.StatusOK, w.Code)
	trades := decode(t, w)
	assert.Len(t, trades["trades"].([]any), 1)

	w = do(t, r, http.MethodPost, "/api/simulation/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode(t, w)
	assert.Equal(t, float64(1), summary["trade_count"])
}

func TestOrderValidation(t *testing.T) {
	s, st := newTestServer(t)
	r := s.Routes()
	seedBars(t, st, monday, 2)

	w := do(t, r, http.MethodPost, "/api/simulation/start", gin.H{
		"start_time": monday.Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Price and pips for the same level are mutually exclusive.
	w = do(t, r, http.MethodPost, "/api/orders", gin.H{
		"side":     "buy",
		"lot_size": "0.1",
		"sl_price": "149.00",
		"sl_pips":  "100",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, "/api/orders", gin.H{
		"side":     "long",
		"lot_size": "0.1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Default config caps lots at 10.
	w = do(t, r, http.MethodPost, "/api/orders", gin.H{
		"side":     "buy",
		"lot_size": "11",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPendingOrderEndpoints(t *testing.T) {
	s, st := newTestServer(t)
	r := s.Routes()
	seedBars(t, st, monday, 2)

	w := do(t, r, http.MethodPost, "/api/simulation/start", gin.H{
		"start_time": monday.Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, r, http.MethodPost, "/api/orders/pending", gin.H{
		"order_type":    "limit",
		"side":          "buy",
		"lot_size":      "0.1",
		"trigger_price": "149.50",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	orderID := decode(t, w)["order_id"].(string)

	w = do(t, r, http.MethodPatch, "/api/orders/pending/"+orderID, gin.H{
		"trigger_price": "149.8",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "149.8", decode(t, w)["trigger_price"])

	w = do(t, r, http.MethodDelete, "/api/orders/pending/"+orderID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	// A cancelled order can no longer be updated.
	w = do(t, r, http.MethodPatch, "/api/orders/pending/"+orderID, gin.H{
		"trigger_price": "150.00",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestErrorStatusMapping(t *testing.T) {
	s, st := newTestServer(t)
	r := s.Routes()
	seedBars(t, st, monday, 2)

	// 404 while nothing is bound.
	w := do(t, r, http.MethodPost, "/api/orders", gin.H{"side": "buy", "lot_size": "0.1"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodPost, "/api/simulation/start", gin.H{
		"start_time": monday.Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Moving the clock backwards is a state conflict.
	w = do(t, r, http.MethodPost, "/api/simulation/advance", gin.H{
		"new_time": monday.Add(-time.Hour).Format(time.RFC3339),
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	// Advancing past the data a run can see is unprocessable.
	w = do(t, r, http.MethodPost, "/api/simulation/advance", gin.H{
		"new_time": monday.AddDate(1, 0, 0).Format(time.RFC3339),
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// Margin beyond the balance is unprocessable too.
	w = do(t, r, http.MethodPost, "/api/orders", gin.H{
		"side":     "buy",
		"lot_size": "10",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, r, http.MethodPost, "/api/positions/nope/close", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestImportAndCandleEndpoints(t *testing.T) {
	s, _ := newTestServer(t)
	r := s.Routes()

	path := filepath.Join(t.TempDir(), "bars.csv")
	var buf bytes.Buffer
	buf.WriteString("timestamp,open,high,low,close,volume\n")
	for i := 0; i < 6; i++ {
		ts := monday.Add(time.Duration(i) * 10 * time.Minute)
		fmt.Fprintf(&buf, "%s,150.00,150.10,149.90,150.05,10\n", ts.Format("2006-01-02 15:04:05"))
	}
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	w := do(t, r, http.MethodPost, "/api/import", gin.H{
		"path":      path,
		"timeframe": "M10",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(6), decode(t, w)["imported"])

	w = do(t, r, http.MethodGet, "/api/market/range", nil)
	require.Equal(t, http.StatusOK, w.Code)
	ranges := decode(t, w)["ranges"].(map[string]any)
	assert.Contains(t, ranges, "M10")

	w = do(t, r, http.MethodPost, "/api/simulation/start", gin.H{
		"start_time": monday.Add(30 * time.Minute).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, r, http.MethodGet, "/api/market/candles?timeframe=M10&limit=100", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	// The clock sits at 09:30; closed bars stop before it.
	assert.Len(t, body["candles"].([]any), 3)

	w = do(t, r, http.MethodGet, "/api/market/candles?timeframe=M99", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnalyticsEndpoints(t *testing.T) {
	s, st := newTestServer(t)
	r := s.Routes()
	seedBars(t, st, monday, 12)

	w := do(t, r, http.MethodPost, "/api/simulation/start", gin.H{
		"start_time":      monday.Format(time.RFC3339),
		"initial_balance": "100000",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, r, http.MethodGet, "/api/analytics/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode(t, w)["total_trades"])

	w = do(t, r, http.MethodGet, "/api/alerts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["alerts"])
}

func TestAnalyticsSurviveRestart(t *testing.T) {
	s, st := newTestServer(t)
	r := s.Routes()

	// Empty store: no run to report on.
	w := do(t, r, http.MethodGet, "/api/analytics/metrics", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	seedBars(t, st, monday, 2)
	w = do(t, r, http.MethodPost, "/api/simulation/start", gin.H{
		"start_time":      monday.Format(time.RFC3339),
		"initial_balance": "1000000",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = do(t, r, http.MethodPost, "/api/orders", gin.H{"side": "buy", "lot_size": "0.1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = do(t, r, http.MethodPost, "/api/simulation/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)

	// A fresh server over the same store finds no active run to bind, but
	// still serves the stopped run's history.
	s2 := newRestartedServer(t, st)
	r2 := s2.Routes()

	w = do(t, r2, http.MethodGet, "/api/analytics/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(1), decode(t, w)["total_trades"])

	w = do(t, r2, http.MethodGet, "/api/analytics/equity", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r2, http.MethodGet, "/api/alerts", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func newRestartedServer(t *testing.T, st *store.Store) *Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(config.Default(), st, log)
}
