package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// InsertOrder persists an executed market order.
func (s *Store) InsertOrder(o *Order) error {
	_, err := s.db.Exec(`
		INSERT INTO orders (id, simulation_id, side, lot_size, entry_price, executed_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		o.ID, o.SimulationID, string(o.Side), o.LotSize.String(),
		o.EntryPrice.String(), o.ExecutedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// ListOrders returns a simulation's orders, newest first.
func (s *Store) ListOrders(simulationID string, limit, offset int) ([]*Order, int, error) {
	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM orders WHERE simulation_id = ?`,
		simulationID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT id, simulation_id, side, lot_size, entry_price, executed_at
		FROM orders WHERE simulation_id = ?
		ORDER BY executed_at DESC, id DESC LIMIT ? OFFSET ?`,
		simulationID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		var (
			o          Order
			side       string
			lot, entry string
		)
		if err := rows.Scan(&o.ID, &o.SimulationID, &side, &lot, &entry, &o.ExecutedAt); err != nil {
			return nil, 0, err
		}
		o.Side = Side(side)
		o.ExecutedAt = o.ExecutedAt.UTC()
		if o.LotSize, err = parseDecimal(lot); err != nil {
			return nil, 0, err
		}
		if o.EntryPrice, err = parseDecimal(entry); err != nil {
			return nil, 0, err
		}
		out = append(out, &o)
	}
	return out, total, rows.Err()
}

const positionColumns = `id, simulation_id, order_id, side, lot_size, entry_price,
	sl_price, sl_pips, tp_price, tp_pips, status, opened_at, closed_at`

// InsertPosition persists a freshly opened position.
func (s *Store) InsertPosition(p *Position) error {
	_, err := s.db.Exec(`
		INSERT INTO positions (id, simulation_id, order_id, side, lot_size, entry_price,
			sl_price, sl_pips, tp_price, tp_pips, status, opened_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.SimulationID, p.OrderID, string(p.Side), p.LotSize.String(),
		p.EntryPrice.String(), nullDecimal(p.SLPrice), nullDecimal(p.SLPips),
		nullDecimal(p.TPPrice), nullDecimal(p.TPPips), p.Status, p.OpenedAt.UTC(), nil)
	if err != nil {
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

// UpdatePositionSLTP rewrites the stop-loss/take-profit pair.
func (s *Store) UpdatePositionSLTP(p *Position) error {
	res, err := s.db.Exec(`
		UPDATE positions SET sl_price = ?, sl_pips = ?, tp_price = ?, tp_pips = ?
		WHERE id = ? AND status = 'open'`,
		nullDecimal(p.SLPrice), nullDecimal(p.SLPips),
		nullDecimal(p.TPPrice), nullDecimal(p.TPPips), p.ID)
	if err != nil {
		return fmt.Errorf("update position sl/tp: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update position %s: %w", p.ID, ErrNotFound)
	}
	return nil
}

// MarkPositionClosed flips an open position to closed.
func (s *Store) MarkPositionClosed(id string, closedAt time.Time) error {
	res, err := s.db.Exec(`
		UPDATE positions SET status = 'closed', closed_at = ?
		WHERE id = ? AND status = 'open'`,
		closedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("close position: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("close position %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetOpenPosition loads one open position scoped to a simulation.
func (s *Store) GetOpenPosition(simulationID, id string) (*Position, error) {
	row := s.db.QueryRow(`
		SELECT `+positionColumns+` FROM positions
		WHERE id = ? AND simulation_id = ? AND status = 'open'`, id, simulationID)
	p, err := scanPosition(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// OpenPositions returns every open position for a simulation, oldest first.
func (s *Store) OpenPositions(simulationID string) ([]*Position, error) {
	rows, err := s.db.Query(`
		SELECT `+positionColumns+` FROM positions
		WHERE simulation_id = ? AND status = 'open'
		ORDER BY opened_at ASC, id ASC`, simulationID)
	if err != nil {
		return nil, fmt.Errorf("open positions: %w", err)
	}
	defer rows.Close()

	var out []*Position
	for rows.Next() {
		p, err := scanPosition(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPosition(scan func(...any) error) (*Position, error) {
	var (
		p                  Position
		side               string
		lot, entry         string
		slP, slF, tpP, tpF sql.NullString
		closed             sql.NullTime
	)
	err := scan(&p.ID, &p.SimulationID, &p.OrderID, &side, &lot, &entry,
		&slP, &slF, &tpP, &tpF, &p.Status, &p.OpenedAt, &closed)
	if err != nil {
		return nil, err
	}
	p.Side = Side(side)
	p.OpenedAt = p.OpenedAt.UTC()
	p.ClosedAt = timePtr(closed)
	if p.LotSize, err = parseDecimal(lot); err != nil {
		return nil, err
	}
	if p.EntryPrice, err = parseDecimal(entry); err != nil {
		return nil, err
	}
	if p.SLPrice, err = parseNullDecimal(slP); err != nil {
		return nil, err
	}
	if p.SLPips, err = parseNullDecimal(slF); err != nil {
		return nil, err
	}
	if p.TPPrice, err = parseNullDecimal(tpP); err != nil {
		return nil, err
	}
	if p.TPPips, err = parseNullDecimal(tpF); err != nil {
		return nil, err
	}
	return &p, nil
}

// InsertTrade persists the immutable closed record of a position.
func (s *Store) InsertTrade(t *Trade) error {
	_, err := s.db.Exec(`
		INSERT INTO trades (id, simulation_id, position_id, side, lot_size,
			entry_price, exit_price, realized_pnl, realized_pnl_pips, opened_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.SimulationID, t.PositionID, string(t.Side), t.LotSize.String(),
		t.EntryPrice.String(), t.ExitPrice.String(), t.RealizedPnL.String(),
		t.RealizedPnLPips.String(), t.OpenedAt.UTC(), t.ClosedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// ListTrades returns a simulation's closed trades newest first, with the
// total count for pagination.
func (s *Store) ListTrades(simulationID string, limit, offset int) ([]*Trade, int, error) {
	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM trades WHERE simulation_id = ?`,
		simulationID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count trades: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT id, simulation_id, position_id, side, lot_size, entry_price, exit_price,
			realized_pnl, realized_pnl_pips, opened_at, closed_at
		FROM trades WHERE simulation_id = ?
		ORDER BY closed_at DESC, id DESC LIMIT ? OFFSET ?`,
		simulationID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list trades: %w", err)
	}
	trades, err := scanTrades(rows)
	return trades, total, err
}

// TradesByCloseTime returns all of a simulation's trades in close order,
// oldest first. Analytics walks this to rebuild the equity sequence.
func (s *Store) TradesByCloseTime(simulationID string) ([]*Trade, error) {
	rows, err := s.db.Query(`
		SELECT id, simulation_id, position_id, side, lot_size, entry_price, exit_price,
			realized_pnl, realized_pnl_pips, opened_at, closed_at
		FROM trades WHERE simulation_id = ?
		ORDER BY closed_at ASC, id ASC`, simulationID)
	if err != nil {
		return nil, fmt.Errorf("trades by close time: %w", err)
	}
	return scanTrades(rows)
}

func scanTrades(rows *sql.Rows) ([]*Trade, error) {
	defer rows.Close()

	var out []*Trade
	for rows.Next() {
		var t Trade
		var side, lot, entry, exit, pnl, pips string
		err := rows.Scan(&t.ID, &t.SimulationID, &t.PositionID, &side, &lot,
			&entry, &exit, &pnl, &pips, &t.OpenedAt, &t.ClosedAt)
		if err != nil {
			return nil, err
		}
		t.Side = Side(side)
		t.OpenedAt = t.OpenedAt.UTC()
		t.ClosedAt = t.ClosedAt.UTC()
		if t.LotSize, err = parseDecimal(lot); err != nil {
			return nil, err
		}
		if t.EntryPrice, err = parseDecimal(entry); err != nil {
			return nil, err
		}
		if t.ExitPrice, err = parseDecimal(exit); err != nil {
			return nil, err
		}
		if t.RealizedPnL, err = parseDecimal(pnl); err != nil {
			return nil, err
		}
		if t.RealizedPnLPips, err = parseDecimal(pips); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}
