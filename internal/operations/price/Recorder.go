package price

import (
	"context"
	"time"

	"FuturesBacktest/internal/logger"
	"FuturesBacktest/internal/models"
)

// LatestSource returns the most recent closed candle. Implemented by *PriceFetcher.
type LatestSource interface {
	LatestClosedCandle(ctx context.Context, symbol, timeframe string) (models.Price, error)
}

// CandleStore persists candles. Implemented by *repositories.PriceRepository.
type CandleStore interface {
	UpsertBatch(prices []models.Price) error
}

// PriceRecorder polls for newly closed candles and hands them on in order.
type PriceRecorder struct {
	source   LatestSource
	store    CandleStore
	interval time.Duration
	onError  func(error)
	log      *logger.Logger
}

// NewPriceRecorder builds a poller. store may be nil.
func NewPriceRecorder(source LatestSource, store CandleStore, interval time.Duration, log *logger.Logger) *PriceRecorder {
	if log == nil {
		log = logger.Nop()
	}
	return &PriceRecorder{
		source:   source,
		store:    store,
		interval: interval,
		onError:  func(error) {},
		log:      log,
	}
}

// OnError registers a hook for failed polls.
func (r *PriceRecorder) OnError(fn func(error)) {
	if fn != nil {
		r.onError = fn
	}
}

// Record polls immediately and then on every tick until ctx is done. Each
// candle opening after last is stored and passed to onCandle. Fetch errors
// are logged and the next tick tries again.
func (r *PriceRecorder) Record(ctx context.Context, symbol, timeframe string, last time.Time, onCandle func(models.Price)) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("price recording started",
		logger.String("symbol", symbol),
		logger.String("timeframe", timeframe),
		logger.Duration("interval_ms", r.interval),
	)

	for {
		last = r.poll(ctx, symbol, timeframe, last, onCandle)

		select {
		case <-ctx.Done():
			r.log.Info("price recording stopped", logger.String("symbol", symbol), logger.String("timeframe", timeframe))
			return
		case <-ticker.C:
		}
	}
}

func (r *PriceRecorder) poll(ctx context.Context, symbol, timeframe string, last time.Time, onCandle func(models.Price)) time.Time {
	if ctx.Err() != nil {
		return last
	}

	candle, err := r.source.LatestClosedCandle(ctx, symbol, timeframe)
	if err != nil {
		if ctx.Err() == nil {
			r.log.Warn("error getting latest candle",
				logger.String("symbol", symbol),
				logger.String("timeframe", timeframe),
				logger.Error(err),
			)
			r.onError(err)
		}
		return last
	}
	if !candle.OpenTime.After(last) {
		return last
	}

	if r.store != nil {
		if err := r.store.UpsertBatch([]models.Price{candle}); err != nil {
			r.log.Error("error saving candle", logger.String("symbol", symbol), logger.Error(err))
			r.onError(err)
		}
	}
	r.log.Debug("recorded candle",
		logger.String("symbol", symbol),
		logger.String("timeframe", timeframe),
		logger.Time("open_time", candle.OpenTime),
		logger.Float("close", candle.Close),
	)
	onCandle(candle)
	return candle.OpenTime
}
