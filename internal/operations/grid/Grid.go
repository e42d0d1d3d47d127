package grid

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"FuturesBacktest/internal/logger"
	"FuturesBacktest/internal/models"
	"FuturesBacktest/internal/operations/backtest"
	"FuturesBacktest/internal/services/performance"
	"FuturesBacktest/internal/services/protection"
	"FuturesBacktest/internal/services/strategy"
)

// Variant overrides parts of the base configuration. Zero and nil fields
// keep the base value.
type Variant struct {
	Name       string                   `yaml:"name" json:"name" validate:"required"`
	Mode       strategy.Mode            `yaml:"mode" json:"mode,omitempty"`
	Leverage   float64                  `yaml:"leverage" json:"leverage,omitempty" validate:"gte=0"`
	Fees       *backtest.FeeConfig      `yaml:"fees" json:"fees,omitempty"`
	Slippage   *backtest.SlippageConfig `yaml:"slippage" json:"slippage,omitempty"`
	Protection *protection.Params       `yaml:"protection" json:"protection,omitempty"`
	Sizing     *backtest.SizingConfig   `yaml:"sizing" json:"sizing,omitempty"`
}

// Apply returns base with the variant's overrides.
func (v Variant) Apply(base backtest.Config) backtest.Config {
	cfg := base
	if v.Mode != "" {
		cfg.Mode = v.Mode
	}
	if v.Leverage > 0 {
		cfg.Leverage = v.Leverage
	}
	if v.Fees != nil {
		cfg.Fees = *v.Fees
	}
	if v.Slippage != nil {
		cfg.Slippage = *v.Slippage
	}
	if v.Protection != nil {
		cfg.Protection = *v.Protection
	}
	if v.Sizing != nil {
		cfg.Sizing = *v.Sizing
	}
	return cfg
}

// Result is the outcome of one variant. Err is set when the run failed.
type Result struct {
	RunID   string
	Variant Variant
	Config  backtest.Config
	Run     *backtest.Result
	Report  performance.Report
	Elapsed time.Duration
	Err     error
}

// Run executes every variant over the same candles with at most workers
// concurrent runs. Each run owns its engine and state. Results come back in
// variant order once all runs are done. A failed variant is recorded on its
// Result; only cancellation fails the grid.
func Run(ctx context.Context, candles []models.Price, base backtest.Config, variants []Variant, workers int, log *logger.Logger) ([]Result, error) {
	if log == nil {
		log = logger.Nop()
	}
	if workers <= 0 {
		workers = 1
	}

	results := make([]Result, len(variants))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, v := range variants {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = runOne(gctx, candles, base, v, log)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("grid interrupted: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("grid interrupted: %w", err)
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	log.Info("grid finished",
		logger.Int("variants", len(variants)),
		logger.Int("failed", failed),
		logger.Int("workers", workers),
	)
	return results, nil
}

func runOne(ctx context.Context, candles []models.Price, base backtest.Config, v Variant, log *logger.Logger) Result {
	res := Result{
		RunID:   uuid.NewString(),
		Variant: v,
		Config:  v.Apply(base),
	}
	runLog := log.With(logger.String("run_id", res.RunID), logger.String("variant", v.Name))

	started := time.Now()
	run, err := backtest.NewEngine(res.Config, runLog).Run(ctx, candles)
	res.Elapsed = time.Since(started)
	if err != nil {
		runLog.Warn("variant failed", logger.Error(err))
		res.Err = err
		return res
	}
	res.Run = run
	res.Report = run.Report
	return res
}

// Ranked returns the successful results ordered by Sharpe ratio, then by
// total return.
func Ranked(results []Result) []Result {
	ok := make([]Result, 0, len(results))
	for _, r := range results {
		if r.Err == nil {
			ok = append(ok, r)
		}
	}
	sort.SliceStable(ok, func(i, j int) bool {
		a, b := ok[i].Report, ok[j].Report
		if a.SharpeRatio != b.SharpeRatio {
			return a.SharpeRatio > b.SharpeRatio
		}
		return a.TotalReturn > b.TotalReturn
	})
	return ok
}
