package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const pendingColumns = `id, simulation_id, order_type, side, lot_size, trigger_price,
	status, created_at, executed_at, updated_at`

// InsertPendingOrder persists a new resting order in pending state.
func (s *Store) InsertPendingOrder(o *PendingOrder) error {
	_, err := s.db.Exec(`
		INSERT INTO pending_orders (id, simulation_id, order_type, side, lot_size,
			trigger_price, status, created_at, executed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.SimulationID, string(o.Type), string(o.Side), o.LotSize.String(),
		o.TriggerPrice.String(), string(o.Status), o.CreatedAt.UTC(), nil, o.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert pending order: %w", err)
	}
	return nil
}

// UpdatePendingOrder rewrites lot size and trigger price while the order is
// still pending.
func (s *Store) UpdatePendingOrder(o *PendingOrder) error {
	res, err := s.db.Exec(`
		UPDATE pending_orders SET lot_size = ?, trigger_price = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'`,
		o.LotSize.String(), o.TriggerPrice.String(), time.Now().UTC(), o.ID)
	if err != nil {
		return fmt.Errorf("update pending order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update pending order %s: %w", o.ID, ErrNotFound)
	}
	return nil
}

// MarkPendingExecuted transitions pending -> executed. The WHERE clause
// enforces the one-way lifecycle.
func (s *Store) MarkPendingExecuted(id string, executedAt time.Time) error {
	return s.transitionPending(id, PendingExecuted, &executedAt)
}

// MarkPendingCancelled transitions pending -> cancelled.
func (s *Store) MarkPendingCancelled(id string) error {
	return s.transitionPending(id, PendingCancelled, nil)
}

func (s *Store) transitionPending(id string, to PendingStatus, executedAt *time.Time) error {
	var exec any
	if executedAt != nil {
		exec = executedAt.UTC()
	}
	res, err := s.db.Exec(`
		UPDATE pending_orders SET status = ?, executed_at = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'`,
		string(to), exec, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("transition pending order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("pending order %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetPendingOrder loads one resting order scoped to a simulation, in any
// state.
func (s *Store) GetPendingOrder(simulationID, id string) (*PendingOrder, error) {
	row := s.db.QueryRow(`
		SELECT `+pendingColumns+` FROM pending_orders
		WHERE id = ? AND simulation_id = ?`, id, simulationID)
	o, err := scanPendingOrder(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

// PendingOrdersByStatus lists a simulation's resting orders, newest first.
// An empty status matches all states.
func (s *Store) PendingOrdersByStatus(simulationID string, status PendingStatus, limit, offset int) ([]*PendingOrder, int, error) {
	where := `simulation_id = ?`
	args := []any{simulationID}
	if status != "" {
		where += ` AND status = ?`
		args = append(args, string(status))
	}

	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM pending_orders WHERE `+where, args...).
		Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count pending orders: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT `+pendingColumns+` FROM pending_orders
		WHERE `+where+`
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list pending orders: %w", err)
	}
	defer rows.Close()

	var out []*PendingOrder
	for rows.Next() {
		o, err := scanPendingOrder(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

func scanPendingOrder(scan func(...any) error) (*PendingOrder, error) {
	var o PendingOrder
	var typ, side, status, lot, trigger string
	var executed sql.NullTime

	err := scan(&o.ID, &o.SimulationID, &typ, &side, &lot, &trigger,
		&status, &o.CreatedAt, &executed, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Type = PendingType(typ)
	o.Side = Side(side)
	o.Status = PendingStatus(status)
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	o.ExecutedAt = timePtr(executed)
	if o.LotSize, err = parseDecimal(lot); err != nil {
		return nil, err
	}
	if o.TriggerPrice, err = parseDecimal(trigger); err != nil {
		return nil, err
	}
	return &o, nil
}
