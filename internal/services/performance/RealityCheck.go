package performance

import (
	"fmt"
	"math"
)

// Plausibility limits. Crossing one adds a warning but never changes a number.
const (
	MaxPlausibleWinRate         = 0.70
	MaxPlausibleSharpe          = 3.0
	MinPlausibleDrawdown        = 0.05
	MaxPlausibleProfitFactor    = 3.0
	MaxPlausibleLiquidationRate = 0.10
	MaxPlausibleFundingShare    = 0.20
)

// RealityCheck lists the statistically implausible results of a report.
// Reports without trades get no warnings.
func RealityCheck(r Report) []string {
	if r.TotalTrades == 0 {
		return nil
	}

	var warnings []string
	if r.WinRate > MaxPlausibleWinRate {
		warnings = append(warnings, fmt.Sprintf("win rate %.1f%% above %.0f%% is rarely sustainable", r.WinRate*100, MaxPlausibleWinRate*100))
	}
	if r.SharpeRatio > MaxPlausibleSharpe {
		warnings = append(warnings, fmt.Sprintf("sharpe ratio %.2f above %.1f suggests overfitting", r.SharpeRatio, MaxPlausibleSharpe))
	}
	if math.Abs(r.MaxDrawdown) < MinPlausibleDrawdown {
		warnings = append(warnings, fmt.Sprintf("max drawdown %.2f%% below %.0f%% is unusually shallow for leveraged trading", math.Abs(r.MaxDrawdown)*100, MinPlausibleDrawdown*100))
	}
	if r.ProfitFactor > MaxPlausibleProfitFactor {
		warnings = append(warnings, fmt.Sprintf("profit factor %.2f above %.1f is unlikely to hold live", r.ProfitFactor, MaxPlausibleProfitFactor))
	}
	if r.LiquidationRate > MaxPlausibleLiquidationRate {
		warnings = append(warnings, fmt.Sprintf("liquidation rate %.1f%% above %.0f%%, leverage is too high", r.LiquidationRate*100, MaxPlausibleLiquidationRate*100))
	}
	if r.TotalFunding > 0 && r.TotalFunding > MaxPlausibleFundingShare*math.Abs(r.TotalPnL) {
		warnings = append(warnings, fmt.Sprintf("funding cost %.2f exceeds %.0f%% of pnl %.2f", r.TotalFunding, MaxPlausibleFundingShare*100, r.TotalPnL))
	}
	return warnings
}
