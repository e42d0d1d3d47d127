package indicators

type SMAService struct{}

func NewSMAService() *SMAService {
	return &SMAService{}
}

// Calculate returns the trailing simple moving average, NaN until period values exist.
func (s *SMAService) Calculate(values []float64, period int) []float64 {
	sma := undefinedSeries(len(values))
	if period <= 0 || len(values) < period {
		return sma
	}

	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			sma[i] = sum / float64(period)
		}
	}
	return sma
}
