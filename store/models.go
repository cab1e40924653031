package store

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is a simulation lifecycle state.
type Status string

const (
	StatusCreated Status = "created"
	StatusRunning Status = "running"
	StatusPaused  Status = "paused"
	StatusStopped Status = "stopped"
)

// Active reports whether the simulation still accepts lifecycle transitions.
func (s Status) Active() bool { return s != StatusStopped }

// Side is an order/position direction.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// PendingType distinguishes resting order semantics.
type PendingType string

const (
	Limit PendingType = "limit"
	Stop  PendingType = "stop"
)

// PendingStatus tracks the one-way lifecycle of a resting order:
// pending -> executed | cancelled.
type PendingStatus string

const (
	PendingOpen      PendingStatus = "pending"
	PendingExecuted  PendingStatus = "executed"
	PendingCancelled PendingStatus = "cancelled"
)

// Simulation is one replay run. SimTime is the virtual clock; it never moves
// backwards. Speed is a display-only multiplier for the presentation layer.
type Simulation struct {
	ID        string          `json:"simulation_id"`
	Status    Status          `json:"status"`
	StartTime time.Time       `json:"start_time"`
	EndTime   *time.Time      `json:"end_time,omitempty"`
	SimTime   time.Time       `json:"current_time"`
	Speed     decimal.Decimal `json:"speed"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Account holds the realized side of the ledger. Equity and used margin are
// derived on read, never persisted.
type Account struct {
	ID                string          `json:"account_id"`
	SimulationID      string          `json:"simulation_id"`
	InitialBalance    decimal.Decimal `json:"initial_balance"`
	Balance           decimal.Decimal `json:"balance"`
	RealizedPnL       decimal.Decimal `json:"realized_pnl"`
	ConsecutiveLosses int             `json:"consecutive_losses"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Order is an executed market order, paired 1:1 with the position it opened.
type Order struct {
	ID           string          `json:"order_id"`
	SimulationID string          `json:"simulation_id"`
	Side         Side            `json:"side"`
	LotSize      decimal.Decimal `json:"lot_size"`
	EntryPrice   decimal.Decimal `json:"entry_price"`
	ExecutedAt   time.Time       `json:"executed_at"`
}

// Position is an open or closed holding. SL/TP are kept as a consistent
// price+pips pair: setting either form derives the other at the entry price.
type Position struct {
	ID           string           `json:"position_id"`
	SimulationID string           `json:"simulation_id"`
	OrderID      string           `json:"order_id"`
	Side         Side             `json:"side"`
	LotSize      decimal.Decimal  `json:"lot_size"`
	EntryPrice   decimal.Decimal  `json:"entry_price"`
	SLPrice      *decimal.Decimal `json:"sl_price,omitempty"`
	SLPips       *decimal.Decimal `json:"sl_pips,omitempty"`
	TPPrice      *decimal.Decimal `json:"tp_price,omitempty"`
	TPPips       *decimal.Decimal `json:"tp_pips,omitempty"`
	Status       string           `json:"status"`
	OpenedAt     time.Time        `json:"opened_at"`
	ClosedAt     *time.Time       `json:"closed_at,omitempty"`
}

// Trade is the immutable closed record of a position.
type Trade struct {
	ID              string          `json:"trade_id"`
	SimulationID    string          `json:"simulation_id"`
	PositionID      string          `json:"position_id"`
	Side            Side            `json:"side"`
	LotSize         decimal.Decimal `json:"lot_size"`
	EntryPrice      decimal.Decimal `json:"entry_price"`
	ExitPrice       decimal.Decimal `json:"exit_price"`
	RealizedPnL     decimal.Decimal `json:"realized_pnl"`
	RealizedPnLPips decimal.Decimal `json:"realized_pnl_pips"`
	OpenedAt        time.Time       `json:"opened_at"`
	ClosedAt        time.Time       `json:"closed_at"`
}

// PendingOrder is a resting limit/stop instruction awaiting its trigger.
type PendingOrder struct {
	ID           string          `json:"order_id"`
	SimulationID string          `json:"simulation_id"`
	Type         PendingType     `json:"order_type"`
	Side         Side            `json:"side"`
	LotSize      decimal.Decimal `json:"lot_size"`
	TriggerPrice decimal.Decimal `json:"trigger_price"`
	Status       PendingStatus   `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	ExecutedAt   *time.Time      `json:"executed_at,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// TimeframeRange summarizes stored history for one timeframe.
type TimeframeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Count int       `json:"count"`
}
