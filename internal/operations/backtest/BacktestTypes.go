package backtest

import (
	"time"

	"FuturesBacktest/internal/models"
	"FuturesBacktest/internal/services/indicators"
	"FuturesBacktest/internal/services/performance"
	"FuturesBacktest/internal/services/protection"
	"FuturesBacktest/internal/services/strategy"
)

// Defaults for a run
const (
	DefaultInitialCapital        = 1000.0 // USDT
	DefaultLeverage              = 10.0
	DefaultMaintenanceMarginRate = 0.004
	DefaultTakerFee              = 0.0004
	DefaultFundingRate           = 0.0001 // per 8h
	FundingInterval              = 8 * time.Hour
)

// FeeConfig is the taker rate charged on the notional of every fill. Entries
// and exits are both market orders.
type FeeConfig struct {
	Taker float64 `yaml:"taker" json:"taker" default:"0.0004" validate:"gte=0,lt=0.1"`
}

type SlippageConfig struct {
	// Base is the fixed fraction of price lost on every entry.
	Base float64 `yaml:"base" json:"base" default:"0.0005" validate:"gte=0,lt=0.1"`
	// VolatilityMultiplier scales ATR/price into additional entry slippage.
	VolatilityMultiplier float64 `yaml:"volatility_multiplier" json:"volatility_multiplier" default:"0.1" validate:"gte=0"`
	// StopMultiplier moves stop fills against the position by this many ATR.
	StopMultiplier float64 `yaml:"stop_multiplier" json:"stop_multiplier" default:"0.1" validate:"gte=0"`
}

// SizingConfig is the share of capital posted as margin. A zero regime
// entry falls back to Fraction.
type SizingConfig struct {
	Fraction float64 `yaml:"fraction" json:"fraction" default:"0.25" validate:"gt=0,lte=1"`
	Bull     float64 `yaml:"bull" json:"bull" default:"0.3" validate:"gte=0,lte=1"`
	Bear     float64 `yaml:"bear" json:"bear" default:"0.3" validate:"gte=0,lte=1"`
	Range    float64 `yaml:"range" json:"range" default:"0.2" validate:"gte=0,lte=1"`
}

// FractionFor returns the margin fraction for a regime.
func (s SizingConfig) FractionFor(regime indicators.Regime) float64 {
	var f float64
	switch regime {
	case indicators.RegimeBull:
		f = s.Bull
	case indicators.RegimeBear:
		f = s.Bear
	case indicators.RegimeRange:
		f = s.Range
	}
	if f <= 0 {
		return s.Fraction
	}
	return f
}

type IndicatorConfig struct {
	indicators.Settings `yaml:",inline"`
	// BreakoutLookback of zero picks the timeframe default.
	BreakoutLookback int `yaml:"breakout_lookback" json:"breakout_lookback" validate:"gte=0"`
}

// Config is the full parameter set of one run.
type Config struct {
	Symbol                string            `yaml:"symbol" json:"symbol" default:"BTCUSDT" validate:"required"`
	InitialCapital        float64           `yaml:"initial_capital" json:"initial_capital" default:"1000" validate:"gt=0"`
	Leverage              float64           `yaml:"leverage" json:"leverage" default:"10" validate:"gt=0,lte=125"`
	MaintenanceMarginRate float64           `yaml:"maintenance_margin_rate" json:"maintenance_margin_rate" default:"0.004" validate:"gte=0,lt=1"`
	Fees                  FeeConfig         `yaml:"fees" json:"fees"`
	Slippage              SlippageConfig    `yaml:"slippage" json:"slippage"`
	FundingRate           float64           `yaml:"funding_rate" json:"funding_rate" default:"0.0001" validate:"gte=0,lt=0.1"`
	Mode                  strategy.Mode     `yaml:"mode" json:"mode" default:"adaptive" validate:"required"`
	Timeframe             string            `yaml:"timeframe" json:"timeframe" default:"1h" validate:"oneof=1m 5m 15m 30m 1h 4h 1d"`
	Indicators            IndicatorConfig   `yaml:"indicators" json:"indicators"`
	Protection            protection.Params `yaml:"protection" json:"protection"`
	Sizing                SizingConfig      `yaml:"sizing" json:"sizing"`
}

// Position is the single open position of a run.
type Position struct {
	Direction        models.Side
	EntryPrice       float64
	Quantity         float64
	EntryIndex       int
	EntryTime        time.Time
	StopPrice        float64
	LiquidationPrice float64
	MaxProfitATR     float64
	// Margin is the posted margin after the entry fee.
	Margin        float64
	EntryFee      float64
	EntrySlippage float64 // price distance lost on entry
	Regime        indicators.Regime
	Protected     bool
}

// Notional is the leveraged exposure at entry.
func (p *Position) Notional(leverage float64) float64 {
	return p.EntryPrice * p.Quantity * leverage
}

// UnrealizedPnL is the gross mark-to-market PnL at price.
func (p *Position) UnrealizedPnL(price, leverage float64) float64 {
	return p.Direction.Sign() * (price - p.EntryPrice) * p.Quantity * leverage
}

// State is everything that changes during a run. Step is its only writer.
type State struct {
	Capital  float64
	Position *Position
	Trades   []models.Trade
	Equity   []models.EquityPoint
	// LastClose is the close of the most recent processed bar.
	LastClose float64
	LastTime  time.Time
	LastIndex int
}

// NewState starts a flat run with the given capital.
func NewState(capital float64) *State {
	return &State{Capital: capital, LastIndex: -1}
}

// Flat reports whether no position is open.
func (s *State) Flat() bool {
	return s.Position == nil
}

// Bar is one simulation step: the candle, its indicators and its signal.
type Bar struct {
	Index  int
	Candle models.Price
	Frame  indicators.Frame
	Signal strategy.Signal
}

// Result is the outcome of Engine.Run.
type Result struct {
	Config Config
	Trades []models.Trade
	Equity []models.EquityPoint
	Report performance.Report
}
