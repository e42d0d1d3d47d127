package backtest_test

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"FuturesBacktest/internal/models"
	"FuturesBacktest/internal/operations/backtest"
	"FuturesBacktest/internal/services/indicators"
	"FuturesBacktest/internal/services/performance"
	"FuturesBacktest/internal/services/protection"
	"FuturesBacktest/internal/services/strategy"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func mkTrend(base, step float64, n int) []models.Price {
	out := make([]models.Price, n)
	prev := base - step
	for i := 0; i < n; i++ {
		c := base + step*float64(i)
		hi, lo := c, prev
		if prev > c {
			hi, lo = prev, c
		}
		open := t0.Add(time.Duration(i) * time.Hour)
		out[i] = models.Price{
			Symbol:    "BTCUSDT",
			TimeFrame: models.PriceTimeFrame1h,
			OpenTime:  open,
			CloseTime: open.Add(time.Hour - time.Millisecond),
			Open:      prev,
			High:      hi,
			Low:       lo,
			Close:     c,
			Volume:    1,
		}
		prev = c
	}
	return out
}

// frictionless returns a config without fees, slippage or funding that
// posts all capital as margin.
func frictionless() backtest.Config {
	cfg := backtest.DefaultConfig()
	cfg.Fees = backtest.FeeConfig{}
	cfg.Slippage = backtest.SlippageConfig{}
	cfg.FundingRate = 0
	cfg.Sizing = backtest.SizingConfig{Fraction: 1}
	return cfg
}

func bar(i int, closePrice, atr float64, regime indicators.Regime, sig strategy.Signal) backtest.Bar {
	open := t0.Add(time.Duration(i) * time.Hour)
	return backtest.Bar{
		Index:  i,
		Candle: models.Price{OpenTime: open, CloseTime: open.Add(time.Hour), Open: closePrice, High: closePrice, Low: closePrice, Close: closePrice},
		Frame:  indicators.Frame{ATR: atr, RSI: 50, EMAFast: closePrice, EMAMedium: closePrice, EMASlow: closePrice, Regime: regime},
		Signal: sig,
	}
}

func TestLiquidationPrice(t *testing.T) {
	if got := backtest.LiquidationPrice(models.SideLong, 100, 10, 0.004); !approx(got, 90.4) {
		t.Fatalf("long liquidation %v, want 90.4", got)
	}
	if got := backtest.LiquidationPrice(models.SideShort, 100, 10, 0.004); !approx(got, 109.6) {
		t.Fatalf("short liquidation %v, want 109.6", got)
	}
}

func TestLiquidationLosesFullMargin(t *testing.T) {
	cfg := frictionless()
	cfg.Leverage = 10
	cfg.MaintenanceMarginRate = 0.004
	sim := backtest.NewSimulator(cfg, nil)
	st := backtest.NewState(1000)

	sim.Step(st, bar(0, 100, 1, indicators.RegimeRange, strategy.Signal{Long: true}))
	if st.Flat() {
		t.Fatalf("expected an open position")
	}
	pos := st.Position
	if !approx(pos.LiquidationPrice, 90.4) {
		t.Fatalf("liquidation price %v, want 90.4", pos.LiquidationPrice)
	}
	entryValue := pos.EntryPrice * pos.Quantity

	sim.Step(st, bar(1, 90, 1, indicators.RegimeRange, strategy.Signal{}))
	if !st.Flat() || len(st.Trades) != 1 {
		t.Fatalf("expected one closed trade, state %+v", st)
	}
	tr := st.Trades[0]
	if tr.ExitReason != models.ExitLiquidation {
		t.Fatalf("exit reason %s, want liquidation", tr.ExitReason)
	}
	if !approx(tr.PnL, -entryValue) || tr.Return != -1 {
		t.Fatalf("pnl %v return %v, want %v and -1", tr.PnL, tr.Return, -entryValue)
	}
	if st.Capital < 0 || !approx(st.Capital, 0) {
		t.Fatalf("capital %v, want 0", st.Capital)
	}
	if last := st.Equity[len(st.Equity)-1].Equity; last != st.Capital {
		t.Fatalf("equity %v does not match capital %v", last, st.Capital)
	}

	sim.Step(st, bar(2, 95, 1, indicators.RegimeRange, strategy.Signal{Long: true}))
	if !st.Flat() {
		t.Fatalf("no entry allowed without capital")
	}
}

func TestShortLiquidationTakesPriorityOverStop(t *testing.T) {
	cfg := frictionless()
	cfg.Leverage = 10
	cfg.MaintenanceMarginRate = 0.004
	cfg.Fees.Taker = 0.001
	sim := backtest.NewSimulator(cfg, nil)
	st := backtest.NewState(1000)

	sim.Step(st, bar(0, 100, 1, indicators.RegimeRange, strategy.Signal{Short: true}))
	pos := st.Position
	if pos == nil || pos.Direction != models.SideShort {
		t.Fatalf("expected an open short, got %+v", pos)
	}
	if !approx(pos.LiquidationPrice, 109.6) || !approx(pos.StopPrice, 101.6) {
		t.Fatalf("liquidation %v stop %v, want 109.6 and 101.6", pos.LiquidationPrice, pos.StopPrice)
	}
	entryValue := pos.EntryPrice * pos.Quantity

	// 110 crosses both the stop and the liquidation price.
	sim.Step(st, bar(1, 110, 1, indicators.RegimeRange, strategy.Signal{}))
	if !st.Flat() || len(st.Trades) != 1 {
		t.Fatalf("expected one closed trade, state %+v", st)
	}
	tr := st.Trades[0]
	if tr.ExitReason != models.ExitLiquidation || !approx(tr.ExitPrice, 109.6) {
		t.Fatalf("exit %s at %v, want liquidation at 109.6", tr.ExitReason, tr.ExitPrice)
	}
	if !approx(tr.PnL, -entryValue) || tr.Return != -1 {
		t.Fatalf("pnl %v return %v, want %v and -1", tr.PnL, tr.Return, -entryValue)
	}
	if !approx(tr.Fees, 10) {
		t.Fatalf("fees %v, want the entry fee 10", tr.Fees)
	}
	if st.Capital < 0 || !approx(st.Capital, 0) {
		t.Fatalf("capital %v, want 0", st.Capital)
	}
}

func TestProtectedLongExitsOnRetrace(t *testing.T) {
	cfg := frictionless()
	cfg.Slippage.StopMultiplier = 0.5
	sim := backtest.NewSimulator(cfg, nil)
	st := backtest.NewState(1000)

	sim.Step(st, bar(0, 100, 1, indicators.RegimeRange, strategy.Signal{Long: true}))
	if st.Position == nil || !approx(st.Position.StopPrice, 98.4) {
		t.Fatalf("initial stop %+v, want 98.4", st.Position)
	}

	// 5 ATR of profit reaches the last tier: trail 0.5 * 0.8 range multiplier.
	sim.Step(st, bar(1, 105, 1, indicators.RegimeRange, strategy.Signal{}))
	if st.Flat() || !st.Position.Protected || !approx(st.Position.StopPrice, 104.6) {
		t.Fatalf("position after run-up %+v, want protected with stop 104.6", st.Position)
	}

	sim.Step(st, bar(2, 104, 1, indicators.RegimeRange, strategy.Signal{}))
	if !st.Flat() || len(st.Trades) != 1 {
		t.Fatalf("expected a stop exit on the retrace")
	}
	tr := st.Trades[0]
	if tr.ExitReason != models.ExitProfitProtection {
		t.Fatalf("exit reason %s, want profit_protection", tr.ExitReason)
	}
	if !approx(tr.ExitPrice, 104.1) {
		t.Fatalf("fill %v, want 104.1", tr.ExitPrice)
	}
	if !approx(tr.MaxProfitATR, 5) || tr.BarsHeld != 2 {
		t.Fatalf("max profit %v bars %d, want 5 and 2", tr.MaxProfitATR, tr.BarsHeld)
	}
	if !approx(tr.PnL, 410) || !approx(tr.Slippage, 50) {
		t.Fatalf("pnl %v slippage %v, want 410 and 50", tr.PnL, tr.Slippage)
	}
	if !approx(st.Capital, 1410) {
		t.Fatalf("capital %v, want 1410", st.Capital)
	}
}

func TestStopNeverLoosensAndTightensInProfit(t *testing.T) {
	sim := backtest.NewSimulator(frictionless(), nil)
	st := backtest.NewState(1000)

	sim.Step(st, bar(0, 100, 1, indicators.RegimeBull, strategy.Signal{Long: true}))
	prev := st.Position.StopPrice
	for i := 1; i <= 20; i++ {
		sim.Step(st, bar(i, 100+float64(i), 1, indicators.RegimeBull, strategy.Signal{}))
		if st.Flat() {
			t.Fatalf("stopped out at bar %d in a steady uptrend", i)
		}
		stop := st.Position.StopPrice
		if stop < prev {
			t.Fatalf("stop loosened from %v to %v at bar %d", prev, stop, i)
		}
		if st.Position.MaxProfitATR > 0.5 && stop <= prev {
			t.Fatalf("stop did not tighten at bar %d: %v", i, stop)
		}
		prev = stop
	}
	if !st.Position.Protected {
		t.Fatalf("position should be protected")
	}

	// A pullback must not move the stop down.
	sim.Step(st, bar(21, 119.9, 1, indicators.RegimeBull, strategy.Signal{}))
	if !st.Flat() && st.Position.StopPrice < prev {
		t.Fatalf("stop loosened on pullback")
	}
}

func TestShortStopExitAccounting(t *testing.T) {
	cfg := frictionless()
	cfg.Leverage = 5
	cfg.Fees.Taker = 0.001
	cfg.FundingRate = 0.0001
	cfg.Slippage.StopMultiplier = 0.5
	sim := backtest.NewSimulator(cfg, nil)
	st := backtest.NewState(1000)

	sim.Step(st, bar(0, 100, 1, indicators.RegimeRange, strategy.Signal{Short: true}))
	if st.Position == nil || !approx(st.Position.StopPrice, 101.6) {
		t.Fatalf("initial short stop %+v, want 101.6", st.Position)
	}
	if !approx(st.Capital, 995) {
		t.Fatalf("entry fee not charged, capital %v", st.Capital)
	}

	sim.Step(st, bar(9, 102, 1, indicators.RegimeRange, strategy.Signal{}))
	if len(st.Trades) != 1 {
		t.Fatalf("expected a stop exit")
	}
	tr := st.Trades[0]
	if tr.ExitReason != models.ExitInitialStop {
		t.Fatalf("exit reason %s", tr.ExitReason)
	}
	if !approx(tr.ExitPrice, 102.1) {
		t.Fatalf("fill %v, want 102.1", tr.ExitPrice)
	}
	if !approx(tr.FundingCost, 0.4975) {
		t.Fatalf("funding %v, want 0.4975", tr.FundingCost)
	}
	if !approx(tr.Fees, 5+5.079475) {
		t.Fatalf("fees %v", tr.Fees)
	}
	if !approx(tr.PnL, -115.051975) {
		t.Fatalf("pnl %v, want -115.051975", tr.PnL)
	}
	if !approx(tr.Slippage, 24.875) {
		t.Fatalf("slippage %v, want 24.875", tr.Slippage)
	}
	if !approx(st.Capital, 1000+tr.PnL) {
		t.Fatalf("capital %v, want %v", st.Capital, 1000+tr.PnL)
	}
}

func TestUndefinedATRSkipsBar(t *testing.T) {
	sim := backtest.NewSimulator(frictionless(), nil)
	st := backtest.NewState(1000)

	sim.Step(st, bar(0, 100, math.NaN(), indicators.RegimeUndefined, strategy.Signal{Long: true}))
	if !st.Flat() || len(st.Equity) != 1 || st.Equity[0].Equity != 1000 {
		t.Fatalf("undefined bar must carry state, got %+v", st)
	}

	sim.Step(st, bar(1, 100, 1, indicators.RegimeRange, strategy.Signal{Long: true}))
	stop := st.Position.StopPrice
	before := st.Equity[len(st.Equity)-1].Equity

	sim.Step(st, bar(2, 50, math.NaN(), indicators.RegimeRange, strategy.Signal{}))
	if st.Flat() || st.Position.StopPrice != stop {
		t.Fatalf("position changed on undefined bar")
	}
	if got := st.Equity[len(st.Equity)-1].Equity; got != before {
		t.Fatalf("equity %v, want carried %v", got, before)
	}
	if len(st.Equity) != 3 {
		t.Fatalf("expected one equity point per bar, got %d", len(st.Equity))
	}
}

func TestNoSameBarReentry(t *testing.T) {
	sim := backtest.NewSimulator(frictionless(), nil)
	st := backtest.NewState(1000)

	sim.Step(st, bar(0, 100, 1, indicators.RegimeRange, strategy.Signal{Long: true}))
	sim.Step(st, bar(1, 95, 1, indicators.RegimeRange, strategy.Signal{Long: true}))
	if len(st.Trades) != 1 || !st.Flat() {
		t.Fatalf("expected a stop exit and no re-entry, got %d trades, flat %v", len(st.Trades), st.Flat())
	}
	sim.Step(st, bar(2, 95, 1, indicators.RegimeRange, strategy.Signal{Long: true}))
	if st.Flat() {
		t.Fatalf("expected entry on the next bar")
	}
}

func TestRunMomentumUptrendEndsWithEndOfData(t *testing.T) {
	cfg := backtest.DefaultConfig()
	cfg.Mode = strategy.ModeMomentum
	res, err := backtest.NewEngine(cfg, nil).Run(context.Background(), mkTrend(100, 1, 100))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("expected one trade, got %d", len(res.Trades))
	}
	tr := res.Trades[0]
	if tr.Direction != models.SideLong || tr.ExitReason != models.ExitEndOfData {
		t.Fatalf("trade %+v", tr)
	}
	if tr.MaxProfitATR <= 0.5 {
		t.Fatalf("trade never reached protection: %v", tr.MaxProfitATR)
	}
	if len(res.Equity) != 100 {
		t.Fatalf("equity points %d, want 100", len(res.Equity))
	}
	final := res.Equity[len(res.Equity)-1].Equity
	if !approx(final, cfg.InitialCapital+tr.PnL) {
		t.Fatalf("final equity %v, want %v", final, cfg.InitialCapital+tr.PnL)
	}
	if !approx(res.Report.FinalCapital, final) {
		t.Fatalf("report final capital %v, want %v", res.Report.FinalCapital, final)
	}
}

func TestRunFlatSeriesHasZeroReport(t *testing.T) {
	res, err := backtest.NewEngine(backtest.DefaultConfig(), nil).Run(context.Background(), mkTrend(100, 0, 120))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	r := res.Report
	if r.TotalTrades != 0 || r.TotalPnL != 0 || r.MaxDrawdown != 0 || r.SharpeRatio != 0 {
		t.Fatalf("unexpected report %+v", r)
	}
	if r.FinalCapital != backtest.DefaultInitialCapital || len(r.Warnings) != 0 {
		t.Fatalf("unexpected report %+v", r)
	}
	if len(res.Equity) != 120 {
		t.Fatalf("equity points %d", len(res.Equity))
	}
}

func TestRunReportIsReproducible(t *testing.T) {
	candles := append(mkTrend(100, 1, 80), mkTrend(180, -1.5, 80)...)
	for i := range candles {
		candles[i].OpenTime = t0.Add(time.Duration(i) * time.Hour)
	}
	res, err := backtest.NewEngine(backtest.DefaultConfig(), nil).Run(context.Background(), candles)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	again := performance.Compute(performance.Input{
		InitialCapital: backtest.DefaultInitialCapital,
		Trades:         res.Trades,
		Equity:         res.Equity,
		Closes:         models.Closes(candles),
		Start:          candles[0].OpenTime,
		End:            candles[len(candles)-1].OpenTime,
	})
	if again.SharpeRatio != res.Report.SharpeRatio || again.MaxDrawdown != res.Report.MaxDrawdown ||
		again.FinalCapital != res.Report.FinalCapital || again.TotalTrades != res.Report.TotalTrades {
		t.Fatalf("recomputed report differs")
	}
	for _, p := range res.Equity {
		if p.Equity < 0 {
			t.Fatalf("negative equity at %d", p.Index)
		}
	}
}

func TestRunRejectsBadInput(t *testing.T) {
	if _, err := backtest.NewEngine(backtest.DefaultConfig(), nil).Run(context.Background(), nil); !errors.Is(err, backtest.ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}

	cfg := backtest.DefaultConfig()
	cfg.Leverage = 0
	_, err := backtest.NewEngine(cfg, nil).Run(context.Background(), mkTrend(100, 1, 10))
	var cerr *backtest.ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}

	cfg = backtest.DefaultConfig()
	cfg.Protection.Tiers = nil
	err = cfg.Validate()
	if !errors.As(err, &cerr) || !errors.Is(err, protection.ErrNoTiers) {
		t.Fatalf("expected ConfigurationError wrapping ErrNoTiers, got %v", err)
	}

	cfg = backtest.DefaultConfig()
	cfg.Leverage = 100
	cfg.MaintenanceMarginRate = 0.02
	if err := cfg.Validate(); !errors.As(err, &cerr) {
		t.Fatalf("expected ConfigurationError for leverage/margin, got %v", err)
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := backtest.NewEngine(backtest.DefaultConfig(), nil).Run(ctx, mkTrend(100, 1, 10)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestApplyDefaultsFillsZeroConfig(t *testing.T) {
	var cfg backtest.Config
	if err := cfg.ApplyDefaults(); err != nil {
		t.Fatalf("ApplyDefaults: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaulted config invalid: %v", err)
	}
	if cfg.Leverage != backtest.DefaultLeverage || cfg.Mode != strategy.ModeAdaptive || cfg.Indicators.EMASlowPeriod != 50 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if len(cfg.Protection.Tiers) == 0 {
		t.Fatalf("protection tiers not defaulted")
	}
	if cfg.Sizing != backtest.DefaultConfig().Sizing {
		t.Fatalf("sizing %+v, want %+v", cfg.Sizing, backtest.DefaultConfig().Sizing)
	}
}

func TestWriteArtifacts(t *testing.T) {
	res, err := backtest.NewEngine(backtest.DefaultConfig(), nil).Run(context.Background(), mkTrend(100, 1, 100))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	dir := filepath.Join(t.TempDir(), "out")
	if err := backtest.WriteArtifacts(dir, res); err != nil {
		t.Fatalf("WriteArtifacts: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, backtest.TradesFile))
	if err != nil {
		t.Fatalf("open trades: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read trades: %v", err)
	}
	if len(rows) != len(res.Trades)+1 || rows[0][0] != "entry_time" {
		t.Fatalf("trades csv has %d rows", len(rows))
	}

	ef, err := os.Open(filepath.Join(dir, backtest.EquityFile))
	if err != nil {
		t.Fatalf("open equity: %v", err)
	}
	defer ef.Close()
	eq, err := csv.NewReader(ef).ReadAll()
	if err != nil {
		t.Fatalf("read equity: %v", err)
	}
	if len(eq) != len(res.Equity)+1 {
		t.Fatalf("equity csv has %d rows, want %d", len(eq), len(res.Equity)+1)
	}

	raw, err := os.ReadFile(filepath.Join(dir, backtest.ReportFile))
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var report performance.Report
	if err := json.Unmarshal(raw, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.TotalTrades != res.Report.TotalTrades {
		t.Fatalf("report trades %d, want %d", report.TotalTrades, res.Report.TotalTrades)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 3 {
		t.Fatalf("expected exactly 3 artifacts, found %d", len(entries))
	}
}
