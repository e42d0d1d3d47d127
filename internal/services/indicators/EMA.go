package indicators

import "math"

// EMAService provides Exponential Moving Average calculations
type EMAService struct{}

// NewEMAService creates a new EMA service instance
func NewEMAService() *EMAService {
	return &EMAService{}
}

// Calculate computes the EMA for the entire series. The recurrence is seeded
// with the simple average of the first period values, so index period-1 is the
// first defined point and everything before it is NaN.
func (s *EMAService) Calculate(values []float64, period int) []float64 {
	ema := undefinedSeries(len(values))
	if !s.validateInputs(values, period) {
		return ema
	}

	multiplier := s.getMultiplier(period)
	ema[period-1] = s.calculateInitialSMA(values, period)

	for i := period; i < len(values); i++ {
		ema[i] = s.calculatePoint(values[i], ema[i-1], multiplier)
	}

	return ema
}

// Private helper methods

func (s *EMAService) validateInputs(values []float64, period int) bool {
	if len(values) == 0 || period <= 0 || len(values) < period {
		return false
	}
	return true
}

func (s *EMAService) getMultiplier(period int) float64 {
	return 2.0 / float64(period+1)
}

func (s *EMAService) calculateInitialSMA(values []float64, period int) float64 {
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	return sum / float64(period)
}

func (s *EMAService) calculatePoint(value, prevEMA, multiplier float64) float64 {
	return value*multiplier + prevEMA*(1-multiplier)
}

func undefinedSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
