package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"fxreplay/config"
	"fxreplay/store"
	"fxreplay/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the replay API server",
	Long: `Start the HTTP server exposing the simulation, trading, market data
and analytics endpoints.

Example:
  fxreplay serve -c fxreplay.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	log := newLogger()

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := web.NewServer(cfg, st, log)
	return srv.Start(ctx)
}
