package protection

import (
	"FuturesBacktest/internal/models"
	"FuturesBacktest/internal/services/indicators"
)

// Input is the market state the stop is computed from.
type Input struct {
	Price     float64
	Entry     float64
	ATR       float64
	Direction models.Side
	Regime    indicators.Regime
}

// Stop is a candidate stop and how it was derived.
type Stop struct {
	Price     float64
	ProfitATR float64
	TrailATR  float64
	Protected bool
}

// ProfitATR is the unrealized move in the position's favour, in ATR units.
func ProfitATR(direction models.Side, price, entry, atr float64) float64 {
	if atr <= 0 {
		return 0
	}
	return direction.Sign() * (price - entry) / atr
}

// Candidate computes the unmerged stop for the current bar.
func (p Params) Candidate(in Input) Stop {
	mult := p.MultiplierFor(in.Regime)
	profit := ProfitATR(in.Direction, in.Price, in.Entry, in.ATR)

	stop := Stop{ProfitATR: profit}
	if profit < p.ProfitThresholdATR {
		stop.TrailATR = p.InitialStopATR * mult.Initial
	} else {
		stop.TrailATR = p.TrailFor(profit) * mult.Profit
		stop.Protected = true
	}
	stop.Price = in.Price - in.Direction.Sign()*stop.TrailATR*in.ATR
	return stop
}

// Merge never loosens the stop: longs take the higher, shorts the lower.
// A zero current stop counts as unset.
func Merge(direction models.Side, current, candidate float64) float64 {
	if current == 0 {
		return candidate
	}
	if direction == models.SideShort {
		if candidate < current {
			return candidate
		}
		return current
	}
	if candidate > current {
		return candidate
	}
	return current
}

// Hit reports whether price has crossed the stop.
func Hit(direction models.Side, price, stop float64) bool {
	if direction == models.SideShort {
		return price >= stop
	}
	return price <= stop
}
