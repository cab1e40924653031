package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete application configuration. Numeric fields stay
// plain YAML scalars here; consumers convert to decimal at the boundary.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Data       DataConfig       `yaml:"data"`
	Simulation SimulationConfig `yaml:"simulation"`
	Alerts     AlertsConfig     `yaml:"alerts"`
}

// ServerConfig contains the HTTP listener parameters.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig contains the SQLite location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// DataConfig points at the directory holding candle CSV exports.
type DataConfig struct {
	Dir string `yaml:"dir"`
}

// SimulationConfig contains defaults and bounds for new runs.
type SimulationConfig struct {
	InitialBalance float64 `yaml:"initial_balance"`
	MinSpeed       float64 `yaml:"min_speed"`
	MaxSpeed       float64 `yaml:"max_speed"`
	MaxLotSize     float64 `yaml:"max_lot_size"`
}

// AlertsConfig tunes the behavioral checks.
type AlertsConfig struct {
	MaxConsecutiveLosses int     `yaml:"max_consecutive_losses"`
	DailyLossLimit       float64 `yaml:"daily_loss_limit"`
	MaxDrawdownPercent   float64 `yaml:"max_drawdown_percent"`
	MinTradeIntervalMin  int     `yaml:"min_trade_interval_minutes"`
	MaxLotSize           float64 `yaml:"max_lot_size"`
}

// Load reads YAML configuration from path, applies .env / environment
// overrides and validates the result. A missing file yields the defaults
// with overrides applied, so a bare binary still boots.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case os.IsNotExist(err):
		// Defaults only.
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnv overlays environment variables, loading a .env file first when
// one is present in the working directory.
func (c *Config) applyEnv() {
	_ = godotenv.Load()

	if v := os.Getenv("FXREPLAY_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("FXREPLAY_DB"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("FXREPLAY_DATA_DIR"); v != "" {
		c.Data.Dir = v
	}
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Simulation.InitialBalance <= 0 {
		return fmt.Errorf("simulation.initial_balance must be positive")
	}
	if c.Simulation.MinSpeed <= 0 {
		return fmt.Errorf("simulation.min_speed must be positive")
	}
	if c.Simulation.MaxSpeed < c.Simulation.MinSpeed {
		return fmt.Errorf("simulation.max_speed must be >= min_speed")
	}
	if c.Simulation.MaxLotSize <= 0 {
		return fmt.Errorf("simulation.max_lot_size must be positive")
	}
	if c.Alerts.MaxConsecutiveLosses <= 0 {
		return fmt.Errorf("alerts.max_consecutive_losses must be positive")
	}
	if c.Alerts.MinTradeIntervalMin < 0 {
		return fmt.Errorf("alerts.min_trade_interval_minutes must not be negative")
	}
	return nil
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Addr: ":8080"},
		Database: DatabaseConfig{Path: "./fxreplay.db"},
		Data:     DataConfig{Dir: "./data"},
		Simulation: SimulationConfig{
			InitialBalance: 1000000,
			MinSpeed:       0.1,
			MaxSpeed:       100,
			MaxLotSize:     10,
		},
		Alerts: AlertsConfig{
			MaxConsecutiveLosses: 3,
			DailyLossLimit:       50000,
			MaxDrawdownPercent:   20,
			MinTradeIntervalMin:  10,
			MaxLotSize:           1,
		},
	}
}
