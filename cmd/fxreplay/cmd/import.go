package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"fxreplay/config"
	"fxreplay/importer"
	"fxreplay/market"
	"fxreplay/store"
)

var importCmd = &cobra.Command{
	Use:   "import [files...]",
	Short: "Import candle CSV files into the store",
	Long: `Load OHLCV candles from CSV exports. Accepts RFC3339,
"2006-01-02 15:04:05" and dotted MT4/MT5 timestamps. With no file
arguments, every *.csv under the configured data directory is imported.

Examples:
  fxreplay import -t M10 data/usdjpy_m10.csv
  fxreplay import -t M10`,
	RunE: runImport,
}

var importTimeframe string

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().StringVarP(&importTimeframe, "timeframe", "t", "M10", "timeframe of the input bars (M10, H1, D1, W1)")
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	tf, err := market.ParseTimeframe(importTimeframe)
	if err != nil {
		return err
	}

	files := args
	if len(files) == 0 {
		files, err = filepath.Glob(filepath.Join(cfg.Data.Dir, "*.csv"))
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return fmt.Errorf("no CSV files under %s", cfg.Data.Dir)
		}
	}

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	total := 0
	for _, f := range files {
		res, err := importer.ImportFile(st, tf, f)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", f, err)
			continue
		}
		total += res.Imported
		fmt.Printf("  %s: %d bars (%s .. %s)\n", filepath.Base(f), res.Imported,
			res.Start.Format("2006-01-02 15:04"), res.End.Format("2006-01-02 15:04"))
	}
	fmt.Printf("Imported %d %s bars from %d file%s\n", total, tf, len(files), plural(len(files)))
	return nil
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
