package indicators_test

import (
	"math"
	"testing"
	"time"

	"FuturesBacktest/internal/models"
	"FuturesBacktest/internal/services/indicators"
)

// mkTrend builds n gap-free candles whose close moves by step every bar.
func mkTrend(base, step float64, n int) []models.Price {
	out := make([]models.Price, n)
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	prev := base - step
	for i := 0; i < n; i++ {
		c := base + float64(i)*step
		out[i] = models.Price{
			TimeFrame: models.PriceTimeFrame1h,
			OpenTime:  t.Add(time.Duration(i) * time.Hour),
			CloseTime: t.Add(time.Duration(i+1)*time.Hour - time.Millisecond),
			Open:      prev,
			High:      math.Max(prev, c),
			Low:       math.Min(prev, c),
			Close:     c,
			Volume:    1000,
		}
		prev = c
	}
	return out
}

func closeTo(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestEMASeededWithSMA(t *testing.T) {
	ema := indicators.NewEMAService().Calculate([]float64{2, 4, 6, 8, 10}, 3)
	for i := 0; i < 2; i++ {
		if !math.IsNaN(ema[i]) {
			t.Fatalf("expected undefined ema at %d, got %v", i, ema[i])
		}
	}
	if !closeTo(ema[2], 4) {
		t.Fatalf("seed expected 4 got %v", ema[2])
	}
	// k = 0.5
	if !closeTo(ema[3], 6) || !closeTo(ema[4], 8) {
		t.Fatalf("recurrence mismatch %v", ema)
	}
}

func TestEMAShortInput(t *testing.T) {
	ema := indicators.NewEMAService().Calculate([]float64{1, 2}, 5)
	if len(ema) != 2 {
		t.Fatalf("expected series of input length, got %d", len(ema))
	}
	for i, v := range ema {
		if !math.IsNaN(v) {
			t.Fatalf("expected NaN at %d", i)
		}
	}
}

func TestSMA(t *testing.T) {
	sma := indicators.NewSMAService().Calculate([]float64{11, 12, 13, 14, 20, 16}, 3)
	expected := []float64{math.NaN(), math.NaN(), 12, 13, (13 + 14 + 20) / 3.0, (14 + 20 + 16) / 3.0}
	for i := 2; i < len(expected); i++ {
		if !closeTo(sma[i], expected[i]) {
			t.Fatalf("sma mismatch at %d got %v expected %v", i, sma[i], expected[i])
		}
	}
	if !math.IsNaN(sma[1]) {
		t.Fatalf("expected NaN before window fills")
	}
}

func TestRSIAllGainsIs100(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	rsi := indicators.NewRSIService().Calculate(closes, 14)
	for i := 0; i < 14; i++ {
		if !math.IsNaN(rsi[i]) {
			t.Fatalf("expected undefined rsi at %d", i)
		}
	}
	for i := 14; i < len(rsi); i++ {
		if rsi[i] != 100 {
			t.Fatalf("expected 100 at %d got %v", i, rsi[i])
		}
	}
}

func TestRSIWilderSmoothing(t *testing.T) {
	// changes: +1, -1, +2, then -2 after the seed
	rsi := indicators.NewRSIService().Calculate([]float64{10, 11, 10, 12, 10}, 3)
	// seed: gain 1, loss 1/3 -> rs 3 -> 75
	if !closeTo(rsi[3], 75) {
		t.Fatalf("seed rsi expected 75 got %v", rsi[3])
	}
	// gain (1*2+0)/3 = 2/3, loss (1/3*2+2)/3 = 8/9 -> rs 0.75
	want := 100 - 100/(1+0.75)
	if !closeTo(rsi[4], want) {
		t.Fatalf("smoothed rsi expected %v got %v", want, rsi[4])
	}
}

func TestATRConstantRange(t *testing.T) {
	candles := mkTrend(100, 1, 40)
	atr := indicators.NewATRService().Calculate(candles, 14)
	for i := 0; i < 14; i++ {
		if !math.IsNaN(atr[i]) {
			t.Fatalf("expected undefined atr at %d", i)
		}
	}
	for i := 14; i < len(atr); i++ {
		if !closeTo(atr[i], 1) {
			t.Fatalf("expected atr 1 at %d got %v", i, atr[i])
		}
	}
}

func TestTrueRangeUsesPreviousClose(t *testing.T) {
	candles := []models.Price{
		{High: 11, Low: 9, Close: 10},
		{High: 15, Low: 14, Close: 14.5}, // gap up: |high - prevClose| = 5
	}
	tr := indicators.NewATRService().TrueRange(candles)
	if tr[0] != 2 || tr[1] != 5 {
		t.Fatalf("unexpected true range %v", tr)
	}
}

func TestDetectRegime(t *testing.T) {
	svc := indicators.NewRegimeService()
	th := indicators.ThresholdsFor(models.PriceTimeFrame1h)

	up := svc.Detect(mkTrend(100, 1, 60), 20, th)
	if up[19] != indicators.RegimeUndefined {
		t.Fatalf("expected undefined before lookback, got %s", up[19])
	}
	if up[59] != indicators.RegimeBull {
		t.Fatalf("expected bull, got %s", up[59])
	}

	down := svc.Detect(mkTrend(200, -1, 60), 20, th)
	if down[59] != indicators.RegimeBear {
		t.Fatalf("expected bear, got %s", down[59])
	}

	flat := svc.Detect(mkTrend(100, 0, 60), 20, th)
	if flat[59] != indicators.RegimeRange {
		t.Fatalf("expected range, got %s", flat[59])
	}
}

func TestThresholdsTightenForIntraday(t *testing.T) {
	intraday := indicators.ThresholdsFor(models.PriceTimeFrame5m)
	hourly := indicators.ThresholdsFor(models.PriceTimeFrame1h)
	if intraday.ChangeThreshold >= hourly.ChangeThreshold || intraday.SlopeThreshold >= hourly.SlopeThreshold {
		t.Fatalf("intraday thresholds should be tighter: %+v vs %+v", intraday, hourly)
	}
}

func TestComputeNoLookAhead(t *testing.T) {
	candles := mkTrend(100, 1, 80)
	settings := indicators.DefaultSettings(models.PriceTimeFrame1h)
	full := indicators.Compute(candles, settings)
	partial := indicators.Compute(candles[:60], settings)
	for i := range partial {
		a, b := full[i], partial[i]
		if a.Ready() != b.Ready() {
			t.Fatalf("readiness differs at %d", i)
		}
		if a.Ready() && (a.ATR != b.ATR || a.RSI != b.RSI || a.EMASlow != b.EMASlow || a.Regime != b.Regime) {
			t.Fatalf("frame %d changed when future candles were added", i)
		}
	}
	if full[settings.EMASlowPeriod-2].Ready() {
		t.Fatalf("frame ready before slow ema filled")
	}
	if !full[79].Ready() {
		t.Fatalf("expected last frame ready")
	}
}
