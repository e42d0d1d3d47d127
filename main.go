package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"FuturesBacktest/config"
	"FuturesBacktest/internal/handlers"
	"FuturesBacktest/internal/logger"
	"FuturesBacktest/internal/metrics"
	"FuturesBacktest/internal/models"
	"FuturesBacktest/internal/operations/backtest"
	"FuturesBacktest/internal/operations/binance"
	"FuturesBacktest/internal/operations/forward"
	"FuturesBacktest/internal/operations/grid"
	"FuturesBacktest/internal/operations/price"
	"FuturesBacktest/internal/repositories"
)

type app struct {
	cfg     *config.Config
	log     *logger.Logger
	prices  *handlers.PriceHandler
	fetcher *price.PriceFetcher
	store   price.CandleStore
	runs    *repositories.RunRepository
	trades  *repositories.TradeRepository
	outDir  string
	symbols []string
}

func main() {
	mode := flag.String("mode", "backtest", "backtest, grid, forward or report")
	runFile := flag.String("config", "", "run file (YAML); defaults to $BACKTEST_CONFIG")
	outDir := flag.String("out", "", "output directory; overrides the run file")
	symbol := flag.String("symbol", "", "run a single symbol")
	runID := flag.String("run", "", "run id to summarize in report mode")
	flag.Parse()

	cfg, err := config.Load(*runFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load config:", err)
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: "stdout"})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to create logger:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, log)
	if err != nil {
		log.Error("startup failed", logger.Error(err))
		os.Exit(1)
	}
	if *outDir != "" {
		a.outDir = *outDir
	}
	if *symbol != "" {
		a.symbols = []string{strings.ToUpper(strings.TrimSpace(*symbol))}
	}

	switch *mode {
	case "backtest":
		err = a.backtest(ctx)
	case "grid":
		err = a.grid(ctx)
	case "forward":
		err = a.forward(ctx)
	case "report":
		err = a.report(*runID)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		log.Error("run failed", logger.String("mode", *mode), logger.Error(err))
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func newApp(cfg *config.Config, log *logger.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log, outDir: cfg.Run.Output, symbols: cfg.Symbols}

	client := binance.NewClient(cfg.Exchange.APIKey, cfg.Exchange.SecretKey, log)
	a.fetcher = price.NewPriceFetcher(client, log)

	var cache handlers.CandleCache
	if cfg.Database.Enabled() && cfg.Run.Data.UseCache {
		db, err := setupDatabase(cfg.Database)
		if err != nil {
			return nil, err
		}
		priceRepo := repositories.NewPriceRepository(db)
		cache = priceRepo
		a.store = priceRepo
		a.runs = repositories.NewRunRepository(db)
		a.trades = repositories.NewTradeRepository(db)
	} else {
		log.Info("no database configured, candles are fetched on every run")
	}
	a.prices = handlers.NewPriceHandler(a.fetcher, cache, log)
	return a, nil
}

func setupDatabase(dbConfig config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		dbConfig.Host,
		dbConfig.Port,
		dbConfig.User,
		dbConfig.Password,
		dbConfig.DBName)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Error),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&models.Price{}, &models.Run{}, &models.Trade{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

func (a *app) configFor(symbol string) backtest.Config {
	c := a.cfg.Run.Backtest
	c.Symbol = symbol
	return c
}

func (a *app) loadHistory(ctx context.Context, symbol string) ([]models.Price, error) {
	start, end := a.cfg.Run.Data.Window(time.Now().UTC())
	return a.prices.LoadCandles(ctx, symbol, a.cfg.Run.Backtest.Timeframe, start, end)
}

func (a *app) backtest(ctx context.Context) error {
	for _, symbol := range a.symbols {
		candles, err := a.loadHistory(ctx, symbol)
		if err != nil {
			return fmt.Errorf("loading candles for %s: %w", symbol, err)
		}

		res, err := backtest.NewEngine(a.configFor(symbol), a.log).Run(ctx, candles)
		if err != nil {
			return fmt.Errorf("backtest %s: %w", symbol, err)
		}

		dir := filepath.Join(a.outDir, symbol)
		if err := backtest.WriteArtifacts(dir, res); err != nil {
			return err
		}
		a.log.Info("artifacts written", logger.String("symbol", symbol), logger.String("dir", dir))

		if err := a.saveRun(uuid.NewString(), res); err != nil {
			a.log.Error("error saving run", logger.String("symbol", symbol), logger.Error(err))
		}
	}
	return nil
}

func (a *app) grid(ctx context.Context) error {
	variants := a.cfg.Run.Grid.Variants
	if len(variants) == 0 {
		return errors.New("grid mode needs at least one variant in the run file")
	}
	for _, symbol := range a.symbols {
		candles, err := a.loadHistory(ctx, symbol)
		if err != nil {
			return fmt.Errorf("loading candles for %s: %w", symbol, err)
		}

		results, err := grid.Run(ctx, candles, a.configFor(symbol), variants, a.cfg.Run.Grid.Workers, a.log)
		if err != nil {
			return err
		}
		for rank, r := range grid.Ranked(results) {
			if r.Err != nil {
				a.log.Warn("variant failed", logger.String("variant", r.Variant.Name), logger.Error(r.Err))
				continue
			}
			a.log.Info("variant",
				logger.Int("rank", rank+1),
				logger.String("symbol", symbol),
				logger.String("variant", r.Variant.Name),
				logger.Float("total_return", r.Report.TotalReturn),
				logger.Float("max_drawdown", r.Report.MaxDrawdown),
				logger.Float("sharpe", r.Report.SharpeRatio),
				logger.Int("trades", r.Report.TotalTrades),
			)
			dir := filepath.Join(a.outDir, symbol, "grid", r.Variant.Name)
			if err := backtest.WriteArtifacts(dir, r.Run); err != nil {
				return err
			}
			if err := a.saveRun(r.RunID, r.Run); err != nil {
				a.log.Error("error saving run", logger.String("variant", r.Variant.Name), logger.Error(err))
			}
		}
	}
	return nil
}

func (a *app) forward(ctx context.Context) error {
	fc := a.cfg.Run.Forward
	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: fc.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("metrics server listening", logger.String("addr", fc.MetricsAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	tf := a.cfg.Run.Backtest.Timeframe
	for _, symbol := range a.symbols {
		g.Go(func() error {
			end := time.Now().UTC()
			start := end.Add(-time.Duration(fc.Warmup) * models.TimeFrameDuration(tf))
			history, err := a.prices.LoadCandles(ctx, symbol, tf, start, end)
			if err != nil {
				return fmt.Errorf("warm-up for %s: %w", symbol, err)
			}

			runner := forward.NewRunner(a.configFor(symbol), a.fetcher, forward.Options{
				Store:        a.store,
				PollInterval: fc.PollInterval,
				Metrics:      rec,
				Log:          a.log,
			})
			res, err := runner.Run(ctx, history)
			if err != nil {
				return err
			}

			dir := filepath.Join(a.outDir, symbol, "forward")
			if err := backtest.WriteArtifacts(dir, res); err != nil {
				return err
			}
			if err := a.saveRun(uuid.NewString(), res); err != nil {
				a.log.Error("error saving run", logger.String("symbol", symbol), logger.Error(err))
			}
			return nil
		})
	}
	return g.Wait()
}

func (a *app) saveRun(runID string, res *backtest.Result) error {
	if a.runs == nil || res == nil {
		return nil
	}
	report, err := json.Marshal(res.Report)
	if err != nil {
		return fmt.Errorf("error encoding report: %w", err)
	}
	r := res.Report
	run := &models.Run{
		RunID:          runID,
		Symbol:         res.Config.Symbol,
		TimeFrame:      res.Config.Timeframe,
		Mode:           string(res.Config.Mode),
		Leverage:       res.Config.Leverage,
		StartTime:      r.Start,
		EndTime:        r.End,
		InitialCapital: r.InitialCapital,
		FinalCapital:   r.FinalCapital,
		TotalTrades:    r.TotalTrades,
		WinRate:        r.WinRate,
		MaxDrawdown:    r.MaxDrawdown,
		SharpeRatio:    r.SharpeRatio,
		ProfitFactor:   r.ProfitFactor,
		Report:         string(report),
	}
	if err := a.runs.SaveRun(run, res.Trades); err != nil {
		return err
	}
	a.log.Info("run saved", logger.String("run_id", runID), logger.String("symbol", run.Symbol))
	return nil
}

// report summarizes a stored run, or lists the latest runs and trades of
// every symbol when no run id is given.
func (a *app) report(runID string) error {
	if a.runs == nil {
		return errors.New("report mode needs a database")
	}
	if runID != "" {
		return a.reportRun(runID)
	}

	start, end := a.cfg.Run.Data.Window(time.Now().UTC())
	for _, symbol := range a.symbols {
		runs, err := a.runs.FindLatest(symbol, 10)
		if err != nil {
			return fmt.Errorf("listing runs of %s: %w", symbol, err)
		}
		for _, r := range runs {
			a.log.Info("run",
				logger.String("run_id", r.RunID),
				logger.String("symbol", r.Symbol),
				logger.String("mode", r.Mode),
				logger.Float("leverage", r.Leverage),
				logger.Float("final_capital", r.FinalCapital),
				logger.Int("trades", r.TotalTrades),
				logger.Time("created_at", r.CreatedAt),
			)
		}

		trades, err := a.trades.FindBySymbol(symbol, start, end)
		if err != nil {
			return fmt.Errorf("listing trades of %s: %w", symbol, err)
		}
		var pnl float64
		for _, t := range trades {
			pnl += t.PnL
		}
		a.log.Info("stored trades in window",
			logger.String("symbol", symbol),
			logger.Time("from", start),
			logger.Time("to", end),
			logger.Int("trades", len(trades)),
			logger.Float("pnl", pnl),
		)
	}
	return nil
}

func (a *app) reportRun(runID string) error {
	run, err := a.runs.FindByRunID(runID)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %s not found", runID)
	}
	trades, err := a.trades.FindByRunID(runID)
	if err != nil {
		return err
	}
	total, err := a.trades.GetTotalPnL(runID)
	if err != nil {
		return err
	}
	reasons, err := a.trades.CountByExitReason(runID)
	if err != nil {
		return err
	}

	a.log.Info("run summary",
		logger.String("run_id", run.RunID),
		logger.String("symbol", run.Symbol),
		logger.String("timeframe", run.TimeFrame),
		logger.String("mode", run.Mode),
		logger.Float("initial_capital", run.InitialCapital),
		logger.Float("final_capital", run.FinalCapital),
		logger.Float("total_pnl", total),
		logger.Float("win_rate", run.WinRate),
		logger.Float("max_drawdown", run.MaxDrawdown),
		logger.Float("sharpe", run.SharpeRatio),
		logger.Int("trades", len(trades)),
	)
	a.log.Info("exit reasons", logger.String("run_id", run.RunID), logger.Any("counts", reasons))
	return nil
}
