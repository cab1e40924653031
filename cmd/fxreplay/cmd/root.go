package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fxreplay",
	Short: "A virtual FX market replay simulator",
	Long: `fxreplay replays historical USD/JPY candles through a virtual clock
so trading decisions can be rehearsed bar by bar without look-ahead.

It provides tools for:
  - Serving the replay engine over an HTTP API
  - Importing MT4/MT5 candle CSV exports into the local store
  - Managing simulation configuration files`,
}

var (
	cfgPath string
	verbose bool
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "fxreplay.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
