package models

import "time"

// Side is the direction of a leveraged position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Sign is +1 for long and -1 for short.
func (s Side) Sign() float64 {
	if s == SideShort {
		return -1
	}
	return 1
}

// ExitReason records why a position was closed.
type ExitReason string

const (
	ExitInitialStop      ExitReason = "initial_stop"
	ExitProfitProtection ExitReason = "profit_protection"
	ExitLiquidation      ExitReason = "liquidation"
	ExitEndOfData        ExitReason = "end_of_data"
	ExitManual           ExitReason = "manual_exit"
)

// Trade is one closed position. Produced by the simulator and stored per run.
type Trade struct {
	ID        uint   `gorm:"primaryKey" json:"-"`
	RunID     string `gorm:"index;not null" json:"run_id,omitempty"`
	Symbol    string `gorm:"index" json:"symbol,omitempty"`
	Direction Side   `gorm:"not null" json:"direction"`

	EntryTime  time.Time `gorm:"index;not null" json:"entry_time"`
	ExitTime   time.Time `gorm:"index" json:"exit_time"`
	EntryPrice float64   `gorm:"type:decimal(20,8);not null" json:"entry_price"`
	ExitPrice  float64   `gorm:"type:decimal(20,8);not null" json:"exit_price"`
	Quantity   float64   `gorm:"type:decimal(20,8);not null" json:"quantity"`

	// PnL is net of fees, funding and slippage.
	PnL          float64 `gorm:"column:pnl;type:decimal(20,8)" json:"pnl"`
	Return       float64 `gorm:"type:decimal(20,8)" json:"return_pct"`
	FundingCost  float64 `gorm:"type:decimal(20,8)" json:"funding_cost"`
	Fees         float64 `gorm:"type:decimal(20,8)" json:"fees"`
	Slippage     float64 `gorm:"type:decimal(20,8)" json:"slippage"`
	MaxProfitATR float64 `gorm:"column:max_profit_atr;type:decimal(20,8)" json:"max_profit_atr"`

	ExitReason ExitReason `gorm:"not null" json:"exit_reason"`
	Regime     string     `json:"regime"`
	BarsHeld   int        `json:"bars_held"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"-"`
}

// Won reports a strictly positive net result.
func (t Trade) Won() bool {
	return t.PnL > 0
}

// EquityPoint is capital including unrealized PnL at the close of a bar.
type EquityPoint struct {
	Index  int       `json:"index"`
	Time   time.Time `json:"time"`
	Equity float64   `json:"equity"`
	Regime string    `json:"regime"`
}
