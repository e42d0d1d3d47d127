package handlers

import (
	"context"
	"fmt"
	"time"

	"FuturesBacktest/internal/logger"
	"FuturesBacktest/internal/models"
)

// CandleFetcher loads candles from the exchange. Implemented by *price.PriceFetcher.
type CandleFetcher interface {
	FetchCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]models.Price, error)
}

// CandleCache is the local candle store. Implemented by *repositories.PriceRepository.
type CandleCache interface {
	GetPricesByTimeFrame(symbol, timeFrame string, start, end time.Time) ([]models.Price, error)
	UpsertBatch(prices []models.Price) error
}

type PriceHandler struct {
	fetcher CandleFetcher
	cache   CandleCache
	log     *logger.Logger
}

// NewPriceHandler wires the fetcher with an optional cache.
func NewPriceHandler(fetcher CandleFetcher, cache CandleCache, log *logger.Logger) *PriceHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &PriceHandler{fetcher: fetcher, cache: cache, log: log}
}

// LoadCandles returns the closed candles opening in [start, end). Cached
// candles are used when they cover the whole window; otherwise the window is
// fetched and written back to the cache.
func (h *PriceHandler) LoadCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]models.Price, error) {
	if h.cache != nil {
		cached, err := h.cache.GetPricesByTimeFrame(symbol, timeframe, start, end)
		if err != nil {
			h.log.Warn("candle cache read failed", logger.String("symbol", symbol), logger.Error(err))
		} else if covers(cached, timeframe, start, end) {
			h.log.Info("using cached candles",
				logger.String("symbol", symbol),
				logger.String("timeframe", timeframe),
				logger.Int("count", len(cached)),
			)
			return cached, nil
		}
	}

	candles, err := h.fetcher.FetchCandles(ctx, symbol, timeframe, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %s candles: %w", symbol, timeframe, err)
	}

	if h.cache != nil {
		if err := h.cache.UpsertBatch(candles); err != nil {
			h.log.Error("error saving candles", logger.String("symbol", symbol), logger.Error(err))
		}
	}
	return candles, nil
}

// covers reports whether cached holds every bar of the window that has
// already closed by its last cached bar.
func covers(cached []models.Price, timeframe string, start, end time.Time) bool {
	step := models.TimeFrameDuration(timeframe)
	if len(cached) == 0 || step == 0 {
		return false
	}
	first, last := cached[0].OpenTime, cached[len(cached)-1].OpenTime
	if first.Sub(start) >= step || end.Sub(last) > step {
		return false
	}
	expected := int(last.Sub(first)/step) + 1
	return len(cached) >= expected
}
