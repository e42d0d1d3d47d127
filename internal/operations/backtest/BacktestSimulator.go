package backtest

import (
	"math"
	"time"

	"FuturesBacktest/internal/logger"
	"FuturesBacktest/internal/models"
	"FuturesBacktest/internal/services/indicators"
	"FuturesBacktest/internal/services/protection"
	"FuturesBacktest/internal/services/strategy"
)

// Simulator applies bars to a State. It holds only immutable configuration,
// so one Simulator may drive any number of independent states.
type Simulator struct {
	config   Config
	policies []ExitPolicy
	log      *logger.Logger
}

func NewSimulator(config Config, log *logger.Logger) *Simulator {
	if log == nil {
		log = logger.Nop()
	}
	return &Simulator{
		config: config,
		policies: []ExitPolicy{
			LiquidationPolicy{},
			TrailingStopPolicy{Params: config.Protection, StopMultiplier: config.Slippage.StopMultiplier},
		},
		log: log,
	}
}

// Step processes one bar: exits first, then entry if the run was flat when
// the bar started, then one equity point.
func (s *Simulator) Step(st *State, bar Bar) {
	price := bar.Candle.Close
	st.LastClose = price
	st.LastTime = bar.Candle.OpenTime
	st.LastIndex = bar.Index

	atr := bar.Frame.ATR
	if math.IsNaN(atr) || atr <= 0 {
		st.Equity = append(st.Equity, s.carriedEquity(st, bar))
		return
	}

	wasFlat := st.Flat()
	if !wasFlat {
		for _, policy := range s.policies {
			if exit, ok := policy.Evaluate(st.Position, bar); ok {
				s.close(st, exit, bar.Candle.OpenTime, bar.Index)
				break
			}
		}
	}

	if wasFlat && st.Capital > 0 {
		if side, ok := bar.Signal.Side(); ok {
			s.open(st, bar, side)
		}
	}

	st.Equity = append(st.Equity, models.EquityPoint{
		Index:  bar.Index,
		Time:   bar.Candle.OpenTime,
		Equity: s.MarkToMarket(st, price, bar.Candle.OpenTime),
		Regime: bar.Frame.Regime.String(),
	})
}

// Finish force-closes any open position at the last processed close.
func (s *Simulator) Finish(st *State, reason models.ExitReason) {
	if st.Flat() {
		return
	}
	s.close(st, Exit{Price: st.LastClose, Reason: reason}, st.LastTime, st.LastIndex)
}

// MarkToMarket is capital plus what closing the open position at price
// would realize, net of the exit fee and accrued funding.
func (s *Simulator) MarkToMarket(st *State, price float64, at time.Time) float64 {
	if st.Flat() {
		return st.Capital
	}
	pos := st.Position
	gross := pos.UnrealizedPnL(price, s.config.Leverage)
	equity := st.Capital + gross - s.exitFee(pos, price) - s.funding(pos, at)
	return math.Max(equity, 0)
}

func (s *Simulator) carriedEquity(st *State, bar Bar) models.EquityPoint {
	equity := st.Capital
	if n := len(st.Equity); n > 0 {
		equity = st.Equity[n-1].Equity
	}
	return models.EquityPoint{
		Index:  bar.Index,
		Time:   bar.Candle.OpenTime,
		Equity: equity,
		Regime: bar.Frame.Regime.String(),
	}
}

func (s *Simulator) open(st *State, bar Bar, side models.Side) {
	cfg := s.config
	price, atr, regime := bar.Candle.Close, bar.Frame.ATR, bar.Frame.Regime

	allocation := st.Capital * cfg.Sizing.FractionFor(regime)
	fee := allocation * cfg.Leverage * cfg.Fees.Taker
	margin := allocation - fee
	if margin <= 0 {
		return
	}

	slipFraction := cfg.Slippage.Base + atr/price*cfg.Slippage.VolatilityMultiplier
	entry := price * (1 + side.Sign()*slipFraction)

	pos := &Position{
		Direction:        side,
		EntryPrice:       entry,
		Quantity:         margin / entry,
		EntryIndex:       bar.Index,
		EntryTime:        bar.Candle.OpenTime,
		LiquidationPrice: LiquidationPrice(side, entry, cfg.Leverage, cfg.MaintenanceMarginRate),
		Margin:           margin,
		EntryFee:         fee,
		EntrySlippage:    math.Abs(entry - price),
		Regime:           regime,
	}
	pos.StopPrice = cfg.Protection.Candidate(protection.Input{
		Price:     entry,
		Entry:     entry,
		ATR:       atr,
		Direction: side,
		Regime:    regime,
	}).Price

	st.Capital -= fee
	st.Position = pos

	s.log.Debug("position opened",
		logger.String("direction", string(side)),
		logger.Int("bar", bar.Index),
		logger.Float("entry", entry),
		logger.Float("stop", pos.StopPrice),
		logger.Float("liquidation", pos.LiquidationPrice),
		logger.Float("margin", margin),
		logger.String("regime", regime.String()),
	)
}

func (s *Simulator) close(st *State, exit Exit, at time.Time, index int) {
	pos := st.Position
	lev := s.config.Leverage

	trade := models.Trade{
		Symbol:       s.config.Symbol,
		Direction:    pos.Direction,
		EntryTime:    pos.EntryTime,
		ExitTime:     at,
		EntryPrice:   pos.EntryPrice,
		ExitPrice:    exit.Price,
		Quantity:     pos.Quantity,
		ExitReason:   exit.Reason,
		Regime:       pos.Regime.String(),
		MaxProfitATR: pos.MaxProfitATR,
		BarsHeld:     index - pos.EntryIndex,
		Slippage:     (pos.EntrySlippage + exit.Slippage) * pos.Quantity * lev,
	}

	if exit.Reason == models.ExitLiquidation {
		trade.PnL = -pos.Margin
		trade.Return = -1
		trade.Fees = pos.EntryFee
		st.Capital = math.Max(st.Capital+trade.PnL, 0)
	} else {
		gross := pos.UnrealizedPnL(exit.Price, lev)
		exitFee := s.exitFee(pos, exit.Price)
		funding := s.funding(pos, at)
		trade.FundingCost = funding
		trade.Fees = pos.EntryFee + exitFee
		trade.PnL = gross - pos.EntryFee - exitFee - funding
		trade.Return = trade.PnL / pos.Margin
		st.Capital = math.Max(st.Capital+gross-exitFee-funding, 0)
	}

	st.Trades = append(st.Trades, trade)
	st.Position = nil

	s.log.Debug("position closed",
		logger.String("direction", string(trade.Direction)),
		logger.String("reason", string(trade.ExitReason)),
		logger.Int("bars_held", trade.BarsHeld),
		logger.Float("exit", trade.ExitPrice),
		logger.Float("pnl", trade.PnL),
		logger.Float("capital", st.Capital),
	)
}

func (s *Simulator) exitFee(pos *Position, price float64) float64 {
	return price * pos.Quantity * s.config.Leverage * s.config.Fees.Taker
}

// funding charges one period for every full interval held.
func (s *Simulator) funding(pos *Position, at time.Time) float64 {
	periods := math.Floor(at.Sub(pos.EntryTime).Hours() / FundingInterval.Hours())
	if periods <= 0 {
		return 0
	}
	return pos.Notional(s.config.Leverage) * s.config.FundingRate * periods
}

// BuildBars zips candles with their frames and signals.
func BuildBars(candles []models.Price, frames []indicators.Frame, signals []strategy.Signal) []Bar {
	bars := make([]Bar, len(candles))
	for i := range candles {
		bars[i] = Bar{Index: i, Candle: candles[i], Frame: frames[i], Signal: signals[i]}
	}
	return bars
}
