package backtest

import (
	"context"
	"fmt"
	"time"

	"FuturesBacktest/internal/logger"
	"FuturesBacktest/internal/models"
	"FuturesBacktest/internal/services/indicators"
	"FuturesBacktest/internal/services/performance"
	"FuturesBacktest/internal/services/strategy"
)

type Engine struct {
	config Config
	log    *logger.Logger
}

func NewEngine(config Config, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{config: config, log: log}
}

// Config returns the configuration the engine runs with.
func (e *Engine) Config() Config {
	return e.config
}

// Run simulates the configured strategy over candles, which must be sorted
// by open time. Invalid configuration and empty input abort before any bar
// is processed.
func (e *Engine) Run(ctx context.Context, candles []models.Price) (*Result, error) {
	if err := e.config.Validate(); err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, ErrNoData
	}
	rule, err := strategy.RuleFor(e.config.Mode)
	if err != nil {
		return nil, &ConfigurationError{Field: "Config.Mode", Reason: err.Error(), Err: err}
	}

	started := time.Now()
	e.log.Info("backtest started",
		logger.String("symbol", e.config.Symbol),
		logger.String("mode", string(e.config.Mode)),
		logger.String("timeframe", e.config.Timeframe),
		logger.Float("leverage", e.config.Leverage),
		logger.Int("candles", len(candles)),
		logger.Time("from", candles[0].OpenTime),
		logger.Time("to", candles[len(candles)-1].OpenTime),
	)

	frames := indicators.Compute(candles, e.config.IndicatorSettings())
	signals := strategy.GenerateSignals(candles, frames, rule, e.config.SignalSettings())
	bars := BuildBars(candles, frames, signals)

	sim := NewSimulator(e.config, e.log)
	st := NewState(e.config.InitialCapital)
	for _, bar := range bars {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("backtest interrupted at bar %d: %w", bar.Index, err)
		}
		sim.Step(st, bar)
	}
	sim.Finish(st, models.ExitEndOfData)

	report := performance.Compute(performance.Input{
		InitialCapital: e.config.InitialCapital,
		Trades:         st.Trades,
		Equity:         st.Equity,
		Closes:         models.Closes(candles),
		Start:          candles[0].OpenTime,
		End:            candles[len(candles)-1].OpenTime,
	})

	e.log.Info("backtest finished",
		logger.String("symbol", e.config.Symbol),
		logger.Int("trades", report.TotalTrades),
		logger.Float("final_capital", report.FinalCapital),
		logger.Float("total_return", report.TotalReturn),
		logger.Float("max_drawdown", report.MaxDrawdown),
		logger.Float("sharpe", report.SharpeRatio),
		logger.Int("liquidations", report.Liquidations),
		logger.Duration("elapsed_ms", time.Since(started)),
	)
	for _, w := range report.Warnings {
		e.log.Warn("reality check", logger.String("symbol", e.config.Symbol), logger.String("warning", w))
	}

	return &Result{
		Config: e.config,
		Trades: st.Trades,
		Equity: st.Equity,
		Report: report,
	}, nil
}
