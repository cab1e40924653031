package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fxreplay/market"
	"fxreplay/store"
)

// Result summarizes one CSV ingestion.
type Result struct {
	Timeframe market.Timeframe `json:"timeframe"`
	Imported  int              `json:"imported"`
	Start     time.Time        `json:"start"`
	End       time.Time        `json:"end"`
}

// Accepted timestamp layouts. MT4/MT5 exports use the dotted form.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006.01.02 15:04",
}

// batchSize bounds memory per upsert transaction.
const batchSize = 5000

// ImportFile ingests one CSV file of candles for a timeframe.
func ImportFile(st *store.Store, tf market.Timeframe, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Import(st, tf, f)
}

// Import reads candle rows of the form
//
//	time,open,high,low,close,Volume
//
// and upserts them keyed by (timeframe, timestamp). Re-importing the same
// file is therefore harmless. A header row is detected and skipped.
func Import(st *store.Store, tf market.Timeframe, r io.Reader) (*Result, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	res := &Result{Timeframe: tf}
	var batch []market.Candle
	line := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := st.UpsertCandles(batch)
		if err != nil {
			return err
		}
		res.Imported += n
		batch = batch[:0]
		return nil
	}

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line++

		if line == 1 && isHeader(rec) {
			continue
		}
		if len(rec) < 5 {
			return nil, fmt.Errorf("line %d: want at least 5 columns, got %d", line, len(rec))
		}

		c, err := parseRow(tf, rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		if res.Start.IsZero() || c.Timestamp.Before(res.Start) {
			res.Start = c.Timestamp
		}
		if c.Timestamp.After(res.End) {
			res.End = c.Timestamp
		}

		batch = append(batch, c)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return res, nil
}

func isHeader(rec []string) bool {
	if len(rec) == 0 {
		return false
	}
	_, err := parseTime(rec[0])
	return err != nil
}

func parseRow(tf market.Timeframe, rec []string) (market.Candle, error) {
	ts, err := parseTime(rec[0])
	if err != nil {
		return market.Candle{}, err
	}

	var prices [4]decimal.Decimal
	for i, name := range []string{"open", "high", "low", "close"} {
		prices[i], err = decimal.NewFromString(strings.TrimSpace(rec[i+1]))
		if err != nil {
			return market.Candle{}, fmt.Errorf("bad %s %q", name, rec[i+1])
		}
	}

	var volume int64
	if len(rec) > 5 && strings.TrimSpace(rec[5]) != "" {
		volume, err = strconv.ParseInt(strings.TrimSpace(rec[5]), 10, 64)
		if err != nil {
			return market.Candle{}, fmt.Errorf("bad volume %q", rec[5])
		}
	}

	return market.Candle{
		Timeframe: tf,
		Timestamp: ts,
		Open:      prices[0],
		High:      prices[1],
		Low:       prices[2],
		Close:     prices[3],
		Volume:    volume,
	}, nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("bad timestamp %q", s)
}
