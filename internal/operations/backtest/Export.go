package backtest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"FuturesBacktest/internal/models"
	"FuturesBacktest/internal/services/performance"
)

const (
	TradesFile = "trades.csv"
	EquityFile = "equity.csv"
	ReportFile = "report.json"

	pricePlaces = 8
	moneyPlaces = 8
)

var tradeHeader = []string{
	"entry_time", "exit_time", "direction", "entry_price", "exit_price", "quantity",
	"pnl", "return_pct", "exit_reason", "regime", "funding_cost", "fees", "slippage",
	"max_profit_atr", "bars_held",
}

// WriteArtifacts writes the trade list, equity curve and report into dir.
func WriteArtifacts(dir string, res *Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := WriteTradesCSV(filepath.Join(dir, TradesFile), res.Trades); err != nil {
		return err
	}
	if err := WriteEquityCSV(filepath.Join(dir, EquityFile), res.Equity); err != nil {
		return err
	}
	return WriteReportJSON(filepath.Join(dir, ReportFile), res.Report)
}

func WriteTradesCSV(path string, trades []models.Trade) error {
	return writeOnce(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(tradeHeader); err != nil {
			return err
		}
		for _, t := range trades {
			row := []string{
				t.EntryTime.UTC().Format(time.RFC3339),
				t.ExitTime.UTC().Format(time.RFC3339),
				string(t.Direction),
				fixed(t.EntryPrice, pricePlaces),
				fixed(t.ExitPrice, pricePlaces),
				fixed(t.Quantity, pricePlaces),
				fixed(t.PnL, moneyPlaces),
				fixed(t.Return, 6),
				string(t.ExitReason),
				t.Regime,
				fixed(t.FundingCost, moneyPlaces),
				fixed(t.Fees, moneyPlaces),
				fixed(t.Slippage, moneyPlaces),
				fixed(t.MaxProfitATR, 4),
				strconv.Itoa(t.BarsHeld),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

func WriteEquityCSV(path string, equity []models.EquityPoint) error {
	return writeOnce(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write([]string{"index", "time", "equity", "regime"}); err != nil {
			return err
		}
		for _, p := range equity {
			row := []string{
				strconv.Itoa(p.Index),
				p.Time.UTC().Format(time.RFC3339),
				fixed(p.Equity, moneyPlaces),
				p.Regime,
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

func WriteReportJSON(path string, report performance.Report) error {
	return writeOnce(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	})
}

func fixed(v float64, places int32) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return decimal.NewFromFloat(v).StringFixed(places)
}

// writeOnce writes to a temp file in the target directory and renames it
// into place, so readers never see a partial artifact.
func writeOnce(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to publish %s: %w", path, err)
	}
	return nil
}
