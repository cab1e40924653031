package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a row lookup by id misses.
var ErrNotFound = errors.New("not found")

// InsertSimulation persists a new simulation row.
func (s *Store) InsertSimulation(sim *Simulation) error {
	_, err := s.db.Exec(`
		INSERT INTO simulations (id, status, start_time, end_time, sim_time, speed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sim.ID, string(sim.Status), sim.StartTime.UTC(), nil, sim.SimTime.UTC(),
		sim.Speed.String(), sim.CreatedAt.UTC(), sim.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert simulation: %w", err)
	}
	return nil
}

// UpdateSimulation writes status, clock, speed and end time back.
func (s *Store) UpdateSimulation(sim *Simulation) error {
	var end any
	if sim.EndTime != nil {
		end = sim.EndTime.UTC()
	}
	res, err := s.db.Exec(`
		UPDATE simulations
		SET status = ?, end_time = ?, sim_time = ?, speed = ?, updated_at = ?
		WHERE id = ?`,
		string(sim.Status), end, sim.SimTime.UTC(), sim.Speed.String(),
		time.Now().UTC(), sim.ID)
	if err != nil {
		return fmt.Errorf("update simulation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update simulation %s: %w", sim.ID, ErrNotFound)
	}
	return nil
}

// GetSimulation loads a simulation by id.
func (s *Store) GetSimulation(id string) (*Simulation, error) {
	row := s.db.QueryRow(`
		SELECT id, status, start_time, end_time, sim_time, speed, created_at, updated_at
		FROM simulations WHERE id = ?`, id)
	return scanSimulation(row)
}

// LatestSimulation returns the most recently created simulation in any
// state, or ErrNotFound when none exist. Used to answer history queries
// after a run has been stopped.
func (s *Store) LatestSimulation() (*Simulation, error) {
	row := s.db.QueryRow(`
		SELECT id, status, start_time, end_time, sim_time, speed, created_at, updated_at
		FROM simulations ORDER BY created_at DESC, id DESC LIMIT 1`)
	return scanSimulation(row)
}

// ActiveSimulations returns every non-stopped simulation, newest first.
// Starting a run stops these before creating its own row, so there should
// be at most one.
func (s *Store) ActiveSimulations() ([]*Simulation, error) {
	rows, err := s.db.Query(`
		SELECT id, status, start_time, end_time, sim_time, speed, created_at, updated_at
		FROM simulations WHERE status != 'stopped'
		ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("active simulations: %w", err)
	}
	defer rows.Close()

	var out []*Simulation
	for rows.Next() {
		sim, err := scanSimulationScan(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, sim)
	}
	return out, rows.Err()
}

func scanSimulation(row *sql.Row) (*Simulation, error) {
	sim, err := scanSimulationScan(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sim, err
}

func scanSimulationScan(scan func(...any) error) (*Simulation, error) {
	var (
		sim    Simulation
		status string
		end    sql.NullTime
		speed  string
	)
	err := scan(&sim.ID, &status, &sim.StartTime, &end, &sim.SimTime, &speed,
		&sim.CreatedAt, &sim.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sim.Status = Status(status)
	sim.EndTime = timePtr(end)
	sim.StartTime = sim.StartTime.UTC()
	sim.SimTime = sim.SimTime.UTC()
	sim.CreatedAt = sim.CreatedAt.UTC()
	sim.UpdatedAt = sim.UpdatedAt.UTC()
	if sim.Speed, err = parseDecimal(speed); err != nil {
		return nil, err
	}
	return &sim, nil
}

// InsertAccount persists the 1:1 account for a simulation.
func (s *Store) InsertAccount(a *Account) error {
	_, err := s.db.Exec(`
		INSERT INTO accounts (id, simulation_id, initial_balance, balance, realized_pnl, consecutive_losses, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.SimulationID, a.InitialBalance.String(), a.Balance.String(),
		a.RealizedPnL.String(), a.ConsecutiveLosses, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// UpdateAccount writes the realized ledger fields back.
func (s *Store) UpdateAccount(a *Account) error {
	res, err := s.db.Exec(`
		UPDATE accounts
		SET balance = ?, realized_pnl = ?, consecutive_losses = ?, updated_at = ?
		WHERE id = ?`,
		a.Balance.String(), a.RealizedPnL.String(), a.ConsecutiveLosses,
		time.Now().UTC(), a.ID)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update account %s: %w", a.ID, ErrNotFound)
	}
	return nil
}

// GetAccount loads the account owned by a simulation.
func (s *Store) GetAccount(simulationID string) (*Account, error) {
	var (
		a                  Account
		initial, bal, rpnl string
	)
	err := s.db.QueryRow(`
		SELECT id, simulation_id, initial_balance, balance, realized_pnl, consecutive_losses, updated_at
		FROM accounts WHERE simulation_id = ?`, simulationID).
		Scan(&a.ID, &a.SimulationID, &initial, &bal, &rpnl, &a.ConsecutiveLosses, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	a.UpdatedAt = a.UpdatedAt.UTC()
	if a.InitialBalance, err = parseDecimal(initial); err != nil {
		return nil, err
	}
	if a.Balance, err = parseDecimal(bal); err != nil {
		return nil, err
	}
	if a.RealizedPnL, err = parseDecimal(rpnl); err != nil {
		return nil, err
	}
	return &a, nil
}
