package binance

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"

	"FuturesBacktest/internal/logger"
)

const (
	// MaxKlinesPerRequest is the futures klines page limit.
	MaxKlinesPerRequest = 1500

	maxRetries  = 3
	baseBackoff = 100 * time.Millisecond
)

type Client struct {
	client      *futures.Client
	rateLimiter *rate.Limiter
	log         *logger.Logger
}

// NewClient builds a market-data client. Keys may be empty: klines are public.
func NewClient(apiKey, secretKey string, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}

	httpClient := &http.Client{
		Timeout: time.Second * 10,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	futuresClient := futures.NewClient(apiKey, secretKey)
	futuresClient.HTTPClient = httpClient

	// 10 requests per second with burst of 20
	limiter := rate.NewLimiter(rate.Limit(10), 20)

	return &Client{
		client:      futuresClient,
		rateLimiter: limiter,
		log:         log,
	}
}

// GetKlines fetches one page of klines. Zero start or end leaves that bound
// open. Failed requests are retried with exponential backoff.
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, startTime, endTime int64, limit int) ([]*futures.Kline, error) {
	var klines []*futures.Kline
	err := withRetry(ctx, maxRetries, baseBackoff, func(attempt int) error {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return err
		}

		svc := c.client.NewKlinesService().Symbol(symbol).Interval(interval)
		if startTime > 0 {
			svc = svc.StartTime(startTime)
		}
		if endTime > 0 {
			svc = svc.EndTime(endTime)
		}
		if limit > 0 {
			svc = svc.Limit(limit)
		}

		var err error
		klines, err = svc.Do(ctx)
		if err != nil && attempt < maxRetries {
			c.log.Warn("klines request failed, retrying",
				logger.String("symbol", symbol),
				logger.String("interval", interval),
				logger.Int("attempt", attempt+1),
				logger.Error(err),
			)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return klines, nil
}

// withRetry calls fn up to retries+1 times, doubling the wait after each
// failure. Context errors are returned immediately.
func withRetry(ctx context.Context, retries int, backoff time.Duration, fn func(attempt int) error) error {
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		err = fn(attempt)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// If this was the last attempt, return the error
		if attempt == retries {
			break
		}

		waitTime := time.Duration(math.Pow(2, float64(attempt))) * backoff
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
	return err
}
