package forward

import (
	"context"
	"time"

	"FuturesBacktest/internal/logger"
	"FuturesBacktest/internal/metrics"
	"FuturesBacktest/internal/models"
	"FuturesBacktest/internal/operations/backtest"
	"FuturesBacktest/internal/operations/price"
	"FuturesBacktest/internal/services/indicators"
	"FuturesBacktest/internal/services/performance"
	"FuturesBacktest/internal/services/strategy"
)

const (
	DefaultPollInterval = time.Minute
	minWindow           = 500
)

type Options struct {
	Store        price.CandleStore
	PollInterval time.Duration
	Metrics      *metrics.Recorder
	Log          *logger.Logger
}

// Runner drives the simulator from live closed candles.
type Runner struct {
	config  backtest.Config
	source  price.LatestSource
	opts    Options
	log     *logger.Logger
	metrics *metrics.Recorder
}

func NewRunner(config backtest.Config, source price.LatestSource, opts Options) *Runner {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	log := opts.Log
	if log == nil {
		log = logger.Nop()
	}
	return &Runner{
		config:  config,
		source:  source,
		opts:    opts,
		log:     log.With(logger.String("symbol", config.Symbol), logger.String("mode", "forward")),
		metrics: opts.Metrics,
	}
}

// Run warms the indicators up on history, then steps every newly closed
// candle until ctx is cancelled. On cancellation any open position is closed
// at the last known price with a manual exit and the final result returned.
func (r *Runner) Run(ctx context.Context, history []models.Price) (*backtest.Result, error) {
	if err := r.config.Validate(); err != nil {
		return nil, err
	}
	rule, err := strategy.RuleFor(r.config.Mode)
	if err != nil {
		return nil, &backtest.ConfigurationError{Field: "Config.Mode", Reason: err.Error(), Err: err}
	}

	window := append([]models.Price(nil), history...)
	maxWindow := len(history)
	if maxWindow < minWindow {
		maxWindow = minWindow
	}
	var last time.Time
	if n := len(history); n > 0 {
		last = history[n-1].OpenTime
	}

	sim := backtest.NewSimulator(r.config, r.log)
	st := backtest.NewState(r.config.InitialCapital)
	var stepped []models.Price

	settings := r.config.IndicatorSettings()
	signalSettings := r.config.SignalSettings()

	onCandle := func(c models.Price) {
		started := time.Now()
		window = append(window, c)
		if len(window) > maxWindow {
			window = window[len(window)-maxWindow:]
		}
		frames := indicators.Compute(window, settings)
		signals := strategy.GenerateSignals(window, frames, rule, signalSettings)
		i := len(window) - 1

		trades := len(st.Trades)
		sim.Step(st, backtest.Bar{Index: len(stepped), Candle: c, Frame: frames[i], Signal: signals[i]})
		stepped = append(stepped, c)

		r.observe(st, trades, c.Close)
		if r.metrics != nil {
			r.metrics.RecordLatency("forward_step", time.Since(started).Seconds())
		}
	}

	recorder := price.NewPriceRecorder(r.source, r.opts.Store, r.opts.PollInterval, r.log)
	recorder.OnError(func(error) {
		if r.metrics != nil {
			r.metrics.RecordError("fetch")
		}
	})

	r.log.Info("forward test started",
		logger.Int("history", len(history)),
		logger.Duration("poll_ms", r.opts.PollInterval),
	)
	recorder.Record(ctx, r.config.Symbol, r.config.Timeframe, last, onCandle)

	trades := len(st.Trades)
	sim.Finish(st, models.ExitManual)
	r.observe(st, trades, st.LastClose)

	res := &backtest.Result{Config: r.config, Trades: st.Trades, Equity: st.Equity}
	if len(stepped) > 0 {
		res.Report = performance.Compute(performance.Input{
			InitialCapital: r.config.InitialCapital,
			Trades:         st.Trades,
			Equity:         st.Equity,
			Closes:         models.Closes(stepped),
			Start:          stepped[0].OpenTime,
			End:            stepped[len(stepped)-1].OpenTime,
		})
	} else {
		res.Report = performance.Compute(performance.Input{InitialCapital: r.config.InitialCapital})
	}

	r.log.Info("forward test stopped",
		logger.Int("bars", len(stepped)),
		logger.Int("trades", len(st.Trades)),
		logger.Float("capital", st.Capital),
	)
	return res, nil
}

// observe logs and exports trades closed since the previous count and the
// current position state.
func (r *Runner) observe(st *backtest.State, before int, lastPrice float64) {
	for _, t := range st.Trades[before:] {
		r.log.Info("trade closed",
			logger.String("direction", string(t.Direction)),
			logger.String("reason", string(t.ExitReason)),
			logger.Float("pnl", t.PnL),
			logger.Bool("won", t.Won()),
			logger.Float("capital", st.Capital),
		)
		if r.metrics != nil {
			r.metrics.RecordTrade(r.config.Symbol, string(t.Direction), string(t.ExitReason))
		}
	}
	if r.metrics == nil {
		return
	}
	direction, stop := 0.0, 0.0
	if st.Position != nil {
		direction, stop = st.Position.Direction.Sign(), st.Position.StopPrice
	}
	equity := st.Capital
	if n := len(st.Equity); n > 0 && st.Position != nil {
		equity = st.Equity[n-1].Equity
	}
	r.metrics.RecordBar(r.config.Symbol, lastPrice, equity, direction, stop)
}
