package indicators

import (
	"math"

	"FuturesBacktest/internal/models"
)

// ATRService computes the Average True Range.
type ATRService struct{}

func NewATRService() *ATRService {
	return &ATRService{}
}

// TrueRange returns the per-bar true range. The first bar has no previous
// close and falls back to high-low.
func (s *ATRService) TrueRange(candles []models.Price) []float64 {
	tr := make([]float64, len(candles))
	for i, c := range candles {
		if i == 0 {
			tr[i] = c.High - c.Low
			continue
		}
		prevClose := candles[i-1].Close
		tr[i] = math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
	}
	return tr
}

// Calculate averages the true range over the trailing period bars. The first
// period bars are undefined so that every window only holds ranges measured
// against a previous close.
func (s *ATRService) Calculate(candles []models.Price, period int) []float64 {
	atr := undefinedSeries(len(candles))
	if period <= 0 || len(candles) <= period {
		return atr
	}

	tr := s.TrueRange(candles)
	sum := 0.0
	for i := 1; i < len(candles); i++ {
		sum += tr[i]
		if i > period {
			sum -= tr[i-period]
		}
		if i >= period {
			atr[i] = sum / float64(period)
		}
	}
	return atr
}
