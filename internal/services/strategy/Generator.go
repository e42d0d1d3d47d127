package strategy

import (
	"math"

	"FuturesBacktest/internal/models"
	"FuturesBacktest/internal/services/indicators"
)

// GenerateSignals evaluates the rule on every bar and returns one Signal per
// candle. Bars below the history floor, with an undefined frame, or without a
// full breakout window never signal. If both predicates hold, neither fires.
func GenerateSignals(candles []models.Price, frames []indicators.Frame, rule Rule, settings Settings) []Signal {
	signals := make([]Signal, len(candles))
	for i := range candles {
		snap, ok := SnapshotAt(candles, frames, i, settings)
		signals[i].Snapshot = snap
		if !ok {
			continue
		}
		long := rule.Long != nil && rule.Long(snap)
		short := rule.Short != nil && rule.Short(snap)
		if long != short {
			signals[i].Long = long
			signals[i].Short = short
		}
	}
	return signals
}

// SnapshotAt builds the predicate input for bar i. ok is false when the bar
// must not trade.
func SnapshotAt(candles []models.Price, frames []indicators.Frame, i int, settings Settings) (Snapshot, bool) {
	c := candles[i]
	snap := Snapshot{
		Index:      i,
		Close:      c.Close,
		High:       c.High,
		Low:        c.Low,
		Frame:      frames[i],
		PrevRSI:    math.NaN(),
		RecentHigh: math.NaN(),
		RecentLow:  math.NaN(),
	}
	if i > 0 {
		snap.PrevRSI = frames[i-1].RSI
	}

	window := settings.BreakoutLookback
	if window > 0 && i >= window {
		hi, lo := math.Inf(-1), math.Inf(1)
		for _, p := range candles[i-window : i] {
			hi = math.Max(hi, p.High)
			lo = math.Min(lo, p.Low)
		}
		snap.RecentHigh, snap.RecentLow = hi, lo
	}

	if i < settings.MinHistory || i < window {
		return snap, false
	}
	if !snap.Frame.Ready() || math.IsNaN(snap.PrevRSI) {
		return snap, false
	}
	return snap, true
}
