package price

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"FuturesBacktest/internal/logger"
	"FuturesBacktest/internal/models"
	"FuturesBacktest/internal/operations/binance"
)

// ErrNoClosedCandle is returned when the exchange has no finished bar yet.
var ErrNoClosedCandle = errors.New("no closed candle available")

// KlineSource is the page-level market data API. Implemented by *binance.Client.
type KlineSource interface {
	GetKlines(ctx context.Context, symbol, interval string, startTime, endTime int64, limit int) ([]*futures.Kline, error)
}

type PriceFetcher struct {
	source   KlineSource
	pageSize int
	now      func() time.Time
	log      *logger.Logger
}

func NewPriceFetcher(source KlineSource, log *logger.Logger) *PriceFetcher {
	if log == nil {
		log = logger.Nop()
	}
	return &PriceFetcher{
		source:   source,
		pageSize: binance.MaxKlinesPerRequest,
		now:      time.Now,
		log:      log,
	}
}

// FetchCandles pages through [start, end) and returns closed candles sorted
// by open time without duplicates. A short page ends pagination.
func (f *PriceFetcher) FetchCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]models.Price, error) {
	if models.TimeFrameDuration(timeframe) == 0 {
		return nil, fmt.Errorf("unsupported timeframe %q", timeframe)
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("empty window %s - %s", start, end)
	}

	var all []models.Price
	cursor := start.UnixMilli()
	endMs := end.UnixMilli() - 1

	for cursor <= endMs {
		klines, err := f.source.GetKlines(ctx, symbol, timeframe, cursor, endMs, f.pageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s %s klines: %w", symbol, timeframe, err)
		}

		last := cursor
		for _, k := range klines {
			p, err := ToPrice(symbol, timeframe, k)
			if err != nil {
				return nil, err
			}
			all = append(all, p)
			if k.OpenTime > last {
				last = k.OpenTime
			}
		}

		f.log.Debug("fetched klines page",
			logger.String("symbol", symbol),
			logger.String("timeframe", timeframe),
			logger.Int("count", len(klines)),
			logger.Time("from", time.UnixMilli(cursor).UTC()),
		)

		if len(klines) < f.pageSize || last < cursor {
			break
		}
		cursor = last + 1
	}

	candles := Normalize(all, f.now())
	f.log.Info("fetched candles",
		logger.String("symbol", symbol),
		logger.String("timeframe", timeframe),
		logger.Int("count", len(candles)),
		logger.Time("from", start),
		logger.Time("to", end),
	)
	return candles, nil
}

// LatestClosedCandle returns the most recent finished bar.
func (f *PriceFetcher) LatestClosedCandle(ctx context.Context, symbol, timeframe string) (models.Price, error) {
	klines, err := f.source.GetKlines(ctx, symbol, timeframe, 0, 0, 2)
	if err != nil {
		return models.Price{}, fmt.Errorf("failed to fetch latest %s %s kline: %w", symbol, timeframe, err)
	}

	var candles []models.Price
	for _, k := range klines {
		p, err := ToPrice(symbol, timeframe, k)
		if err != nil {
			return models.Price{}, err
		}
		candles = append(candles, p)
	}
	candles = Normalize(candles, f.now())
	if len(candles) == 0 {
		return models.Price{}, ErrNoClosedCandle
	}
	return candles[len(candles)-1], nil
}

// Normalize sorts by open time, drops duplicates and bars still open at now.
func Normalize(prices []models.Price, now time.Time) []models.Price {
	sort.SliceStable(prices, func(i, j int) bool {
		return prices[i].OpenTime.Before(prices[j].OpenTime)
	})
	out := prices[:0]
	for _, p := range prices {
		if !p.IsClosed(now) {
			continue
		}
		if n := len(out); n > 0 && out[n-1].OpenTime.Equal(p.OpenTime) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// ToPrice converts an exchange kline.
func ToPrice(symbol, timeframe string, k *futures.Kline) (models.Price, error) {
	var (
		p   = models.Price{Symbol: symbol, TimeFrame: timeframe, TradeCount: k.TradeNum}
		err error
	)
	p.OpenTime = time.UnixMilli(k.OpenTime).UTC()
	p.CloseTime = time.UnixMilli(k.CloseTime).UTC()

	fields := []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"open", k.Open, &p.Open},
		{"high", k.High, &p.High},
		{"low", k.Low, &p.Low},
		{"close", k.Close, &p.Close},
		{"volume", k.Volume, &p.Volume},
	}
	for _, fld := range fields {
		if *fld.dst, err = strconv.ParseFloat(fld.raw, 64); err != nil {
			return models.Price{}, fmt.Errorf("invalid %s %q in %s kline at %d: %w", fld.name, fld.raw, symbol, k.OpenTime, err)
		}
	}
	return p, nil
}
