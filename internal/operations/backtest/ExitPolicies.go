package backtest

import (
	"FuturesBacktest/internal/models"
	"FuturesBacktest/internal/services/protection"
)

// Exit is a decision to close the open position.
type Exit struct {
	Price    float64
	Reason   models.ExitReason
	Slippage float64 // price distance lost on the fill
}

// ExitPolicy inspects the open position on every bar. Policies run in order
// and the first exit wins.
type ExitPolicy interface {
	Name() string
	Evaluate(pos *Position, bar Bar) (Exit, bool)
}

// LiquidationPolicy closes the position once price crosses the margin
// exhaustion level.
type LiquidationPolicy struct{}

func (LiquidationPolicy) Name() string { return "liquidation" }

func (LiquidationPolicy) Evaluate(pos *Position, bar Bar) (Exit, bool) {
	price := bar.Candle.Close
	hit := price <= pos.LiquidationPrice
	if pos.Direction == models.SideShort {
		hit = price >= pos.LiquidationPrice
	}
	if !hit {
		return Exit{}, false
	}
	return Exit{Price: pos.LiquidationPrice, Reason: models.ExitLiquidation}, true
}

// TrailingStopPolicy ratchets the stop and exits when price crosses it.
type TrailingStopPolicy struct {
	Params         protection.Params
	StopMultiplier float64
}

func (TrailingStopPolicy) Name() string { return "trailing_stop" }

func (p TrailingStopPolicy) Evaluate(pos *Position, bar Bar) (Exit, bool) {
	price, atr := bar.Candle.Close, bar.Frame.ATR
	candidate := p.Params.Candidate(protection.Input{
		Price:     price,
		Entry:     pos.EntryPrice,
		ATR:       atr,
		Direction: pos.Direction,
		Regime:    bar.Frame.Regime,
	})
	pos.StopPrice = protection.Merge(pos.Direction, pos.StopPrice, candidate.Price)
	if candidate.ProfitATR > pos.MaxProfitATR {
		pos.MaxProfitATR = candidate.ProfitATR
	}
	if pos.MaxProfitATR >= p.Params.ProfitThresholdATR {
		pos.Protected = true
	}

	if !protection.Hit(pos.Direction, price, pos.StopPrice) {
		return Exit{}, false
	}

	slip := atr * p.StopMultiplier
	reason := models.ExitInitialStop
	if pos.Protected {
		reason = models.ExitProfitProtection
	}
	return Exit{
		Price:    pos.StopPrice - pos.Direction.Sign()*slip,
		Reason:   reason,
		Slippage: slip,
	}, true
}

// LiquidationPrice is where the posted margin minus maintenance is exhausted.
func LiquidationPrice(direction models.Side, entry, leverage, maintenanceMarginRate float64) float64 {
	if direction == models.SideShort {
		return entry * (1 + 1/leverage - maintenanceMarginRate)
	}
	return entry * (1 - 1/leverage + maintenanceMarginRate)
}
