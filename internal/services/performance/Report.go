package performance

import (
	"time"

	"FuturesBacktest/internal/models"
)

// NoLossProfitFactor is reported when there are wins but no losses.
const NoLossProfitFactor = 999.0

// Input is everything a report is derived from.
type Input struct {
	InitialCapital float64
	Trades         []models.Trade
	Equity         []models.EquityPoint
	Closes         []float64
	Start          time.Time
	End            time.Time
}

// RegimeStats breaks results down by the regime at entry.
type RegimeStats struct {
	Trades  int     `json:"trades"`
	Wins    int     `json:"wins"`
	WinRate float64 `json:"win_rate"`
	PnL     float64 `json:"pnl"`
}

// Report is the summary of one run. Rates and returns are fractions.
type Report struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	AvgWin        float64 `json:"avg_win"`
	AvgLoss       float64 `json:"avg_loss"`
	ProfitFactor  float64 `json:"profit_factor"`

	InitialCapital   float64 `json:"initial_capital"`
	FinalCapital     float64 `json:"final_capital"`
	TotalPnL         float64 `json:"total_pnl"`
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	BuyAndHoldReturn float64 `json:"buy_and_hold_return"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	SharpeRatio      float64 `json:"sharpe_ratio"`

	Regimes map[string]RegimeStats `json:"regimes"`

	Liquidations      int     `json:"liquidations"`
	LiquidationRate   float64 `json:"liquidation_rate"`
	ProtectedExits    int     `json:"protected_exits"`
	ProtectedExitRate float64 `json:"protected_exit_rate"`
	AvgSlippage       float64 `json:"avg_slippage"`
	TotalFunding      float64 `json:"total_funding"`
	TotalFees         float64 `json:"total_fees"`

	Warnings []string `json:"warnings"`
}
