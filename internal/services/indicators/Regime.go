package indicators

import (
	"math"

	"FuturesBacktest/internal/models"
)

// Regime is the classified market condition of a bar.
type Regime string

const (
	RegimeUndefined Regime = ""
	RegimeBull      Regime = "bull"
	RegimeBear      Regime = "bear"
	RegimeRange     Regime = "range"
)

// Regimes lists the defined regimes in reporting order.
var Regimes = []Regime{RegimeBull, RegimeBear, RegimeRange}

func (r Regime) String() string {
	if r == RegimeUndefined {
		return "undefined"
	}
	return string(r)
}

// RegimeThresholds gate the bull/bear classification.
type RegimeThresholds struct {
	// ChangeThreshold is the minimum absolute price change over the lookback.
	ChangeThreshold float64 `yaml:"change_threshold" json:"change_threshold"`
	// SlopeThreshold is the minimum absolute one-bar relative slope of the SMA.
	SlopeThreshold float64 `yaml:"slope_threshold" json:"slope_threshold"`
}

// ThresholdsFor returns the threshold row for a timeframe. Short intraday bars
// move less over a lookback, so they get tighter thresholds.
func ThresholdsFor(timeFrame string) RegimeThresholds {
	switch timeFrame {
	case models.PriceTimeFrame1m, models.PriceTimeFrame5m:
		return RegimeThresholds{ChangeThreshold: 0.02, SlopeThreshold: 0.0002}
	case models.PriceTimeFrame15m, models.PriceTimeFrame30m:
		return RegimeThresholds{ChangeThreshold: 0.05, SlopeThreshold: 0.0005}
	default:
		return RegimeThresholds{ChangeThreshold: 0.10, SlopeThreshold: 0.001}
	}
}

type RegimeService struct {
	sma *SMAService
}

func NewRegimeService() *RegimeService {
	return &RegimeService{sma: NewSMAService()}
}

// Detect classifies every bar. Bars before lookback have no reference price
// or SMA slope and stay RegimeUndefined.
func (s *RegimeService) Detect(candles []models.Price, lookback int, th RegimeThresholds) []Regime {
	regimes := make([]Regime, len(candles))
	if lookback <= 0 || len(candles) <= lookback {
		return regimes
	}

	closes := models.Closes(candles)
	sma := s.sma.Calculate(closes, lookback)

	for i := lookback; i < len(candles); i++ {
		regimes[i] = classify(closes[i], closes[i-lookback], sma[i], sma[i-1], th)
	}
	return regimes
}

func classify(close, refClose, sma, prevSMA float64, th RegimeThresholds) Regime {
	if refClose == 0 || prevSMA == 0 || math.IsNaN(sma) || math.IsNaN(prevSMA) {
		return RegimeUndefined
	}
	change := close/refClose - 1
	slope := sma/prevSMA - 1

	switch {
	case change > th.ChangeThreshold && slope > th.SlopeThreshold:
		return RegimeBull
	case change < -th.ChangeThreshold && slope < -th.SlopeThreshold:
		return RegimeBear
	default:
		return RegimeRange
	}
}
