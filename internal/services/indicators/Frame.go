package indicators

import (
	"math"

	"FuturesBacktest/internal/models"
)

// Settings selects the lookbacks of every series in a Frame.
type Settings struct {
	ATRPeriod       int              `yaml:"atr_period" json:"atr_period" default:"14" validate:"gt=0"`
	RSIPeriod       int              `yaml:"rsi_period" json:"rsi_period" default:"14" validate:"gt=0"`
	EMAFastPeriod   int              `yaml:"ema_fast" json:"ema_fast" default:"9" validate:"gt=0"`
	EMAMediumPeriod int              `yaml:"ema_medium" json:"ema_medium" default:"21" validate:"gtfield=EMAFastPeriod"`
	EMASlowPeriod   int              `yaml:"ema_slow" json:"ema_slow" default:"50" validate:"gtfield=EMAMediumPeriod"`
	RegimeLookback  int              `yaml:"regime_lookback" json:"regime_lookback" default:"20" validate:"gt=1"`
	Thresholds      RegimeThresholds `yaml:"regime_thresholds" json:"regime_thresholds"`
}

// DefaultSettings returns the standard lookbacks with thresholds for the timeframe.
func DefaultSettings(timeFrame string) Settings {
	return Settings{
		ATRPeriod:       14,
		RSIPeriod:       14,
		EMAFastPeriod:   9,
		EMAMediumPeriod: 21,
		EMASlowPeriod:   50,
		RegimeLookback:  20,
		Thresholds:      ThresholdsFor(timeFrame),
	}
}

// Frame is the indicator snapshot of a single bar.
type Frame struct {
	ATR       float64 `json:"atr"`
	RSI       float64 `json:"rsi"`
	EMAFast   float64 `json:"ema_fast"`
	EMAMedium float64 `json:"ema_medium"`
	EMASlow   float64 `json:"ema_slow"`
	Regime    Regime  `json:"regime"`
}

// Ready reports whether every value of the frame is defined.
func (f Frame) Ready() bool {
	return !math.IsNaN(f.ATR) && !math.IsNaN(f.RSI) &&
		!math.IsNaN(f.EMAFast) && !math.IsNaN(f.EMAMedium) && !math.IsNaN(f.EMASlow) &&
		f.Regime != RegimeUndefined
}

// Compute builds one Frame per candle.
func Compute(candles []models.Price, settings Settings) []Frame {
	closes := models.Closes(candles)
	ema := NewEMAService()

	atr := NewATRService().Calculate(candles, settings.ATRPeriod)
	rsi := NewRSIService().Calculate(closes, settings.RSIPeriod)
	fast := ema.Calculate(closes, settings.EMAFastPeriod)
	medium := ema.Calculate(closes, settings.EMAMediumPeriod)
	slow := ema.Calculate(closes, settings.EMASlowPeriod)
	regimes := NewRegimeService().Detect(candles, settings.RegimeLookback, settings.Thresholds)

	frames := make([]Frame, len(candles))
	for i := range candles {
		frames[i] = Frame{
			ATR:       atr[i],
			RSI:       rsi[i],
			EMAFast:   fast[i],
			EMAMedium: medium[i],
			EMASlow:   slow[i],
			Regime:    regimes[i],
		}
	}
	return frames
}
