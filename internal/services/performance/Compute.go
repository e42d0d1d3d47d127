package performance

import (
	"math"

	"FuturesBacktest/internal/models"
)

const (
	tradingDaysPerYear = 252
	hoursPerYear       = 24 * 365
)

// Compute derives the report. It is pure: the same input always yields the
// same report, and no field is ever NaN or infinite.
func Compute(in Input) Report {
	r := Report{
		Start:          in.Start,
		End:            in.End,
		InitialCapital: in.InitialCapital,
		Regimes:        map[string]RegimeStats{},
		Warnings:       []string{},
	}

	fillTradeStats(&r, in.Trades)

	r.FinalCapital = in.InitialCapital + r.TotalPnL
	if n := len(in.Equity); n > 0 {
		r.FinalCapital = in.Equity[n-1].Equity
	}
	if in.InitialCapital > 0 {
		r.TotalReturn = r.FinalCapital/in.InitialCapital - 1
	}
	r.AnnualizedReturn = annualize(r.TotalReturn, in.End.Sub(in.Start).Hours())
	r.BuyAndHoldReturn = buyAndHold(in.Closes)
	r.MaxDrawdown = MaxDrawdown(in.Equity)
	r.SharpeRatio = Sharpe(in.Equity)

	r.Warnings = append(r.Warnings, RealityCheck(r)...)
	return r
}

func fillTradeStats(r *Report, trades []models.Trade) {
	var sumWins, sumLosses, slippage float64
	for _, t := range trades {
		r.TotalTrades++
		r.TotalPnL += t.PnL
		r.TotalFunding += t.FundingCost
		r.TotalFees += t.Fees
		slippage += t.Slippage

		switch {
		case t.PnL > 0:
			r.WinningTrades++
			sumWins += t.PnL
		case t.PnL < 0:
			r.LosingTrades++
			sumLosses += t.PnL
		}

		switch t.ExitReason {
		case models.ExitLiquidation:
			r.Liquidations++
		case models.ExitProfitProtection:
			r.ProtectedExits++
		}

		rs := r.Regimes[t.Regime]
		rs.Trades++
		rs.PnL += t.PnL
		if t.Won() {
			rs.Wins++
		}
		rs.WinRate = ratio(rs.Wins, rs.Trades)
		r.Regimes[t.Regime] = rs
	}

	if r.TotalTrades == 0 {
		return
	}
	n := float64(r.TotalTrades)
	r.WinRate = ratio(r.WinningTrades, r.TotalTrades)
	r.LiquidationRate = ratio(r.Liquidations, r.TotalTrades)
	r.ProtectedExitRate = ratio(r.ProtectedExits, r.TotalTrades)
	r.AvgSlippage = slippage / n
	if r.WinningTrades > 0 {
		r.AvgWin = sumWins / float64(r.WinningTrades)
	}
	if r.LosingTrades > 0 {
		r.AvgLoss = sumLosses / float64(r.LosingTrades)
	}

	switch {
	case sumLosses != 0:
		r.ProfitFactor = math.Abs(sumWins / sumLosses)
	case sumWins > 0:
		r.ProfitFactor = NoLossProfitFactor
	}
}

// MaxDrawdown is the deepest peak-to-trough fall of the curve as a
// non-positive fraction of the peak.
func MaxDrawdown(equity []models.EquityPoint) float64 {
	peak, worst := 0.0, 0.0
	for _, p := range equity {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak <= 0 {
			continue
		}
		if dd := (p.Equity - peak) / peak; dd < worst {
			worst = dd
		}
	}
	return worst
}

// Sharpe annualizes the mean bar-to-bar equity return over its sample
// standard deviation. Zero with fewer than two returns or no variance.
func Sharpe(equity []models.EquityPoint) float64 {
	returns := make([]float64, 0, len(equity))
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev <= 0 {
			continue
		}
		returns = append(returns, equity[i].Equity/prev-1)
	}
	if len(returns) < 2 {
		return 0
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return finite(mean / std * math.Sqrt(tradingDaysPerYear))
}

func annualize(total, hours float64) float64 {
	if hours <= 0 {
		return 0
	}
	if total <= -1 {
		return -1
	}
	return finite(math.Pow(1+total, hoursPerYear/hours) - 1)
}

func buyAndHold(closes []float64) float64 {
	if len(closes) == 0 || closes[0] <= 0 {
		return 0
	}
	return closes[len(closes)-1]/closes[0] - 1
}

func ratio(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole)
}

// finite maps NaN and overflow to zero so the report stays encodable.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
