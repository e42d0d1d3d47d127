package strategy

import (
	"fmt"

	"FuturesBacktest/internal/services/indicators"
)

const (
	oversoldRSI       = 30.0
	overboughtRSI     = 70.0
	deepOversoldRSI   = 25.0
	pullbackRSICeil   = 65.0
	pullbackRSIFloor  = 35.0
	bearShortRSIFloor = 25.0
)

// RuleFor resolves a mode to its predicates. Called once per run.
func RuleFor(mode Mode) (Rule, error) {
	switch mode {
	case ModeMeanReversion:
		return Rule{Mode: mode, Long: meanReversionLong, Short: meanReversionShort}, nil
	case ModeMomentum:
		return Rule{Mode: mode, Long: momentumLong, Short: momentumShort}, nil
	case ModePullback:
		return Rule{Mode: mode, Long: pullbackLong, Short: pullbackShort}, nil
	case ModeBearMarket:
		return Rule{Mode: mode, Long: bearBounceLong, Short: bearMarketShort}, nil
	case ModeAdaptive:
		return Rule{Mode: mode, Long: adaptiveLong, Short: adaptiveShort}, nil
	}
	return Rule{}, fmt.Errorf("no rule for strategy mode %q", mode)
}

// Mean reversion: fade RSI extremes once the oscillator turns back.

func meanReversionLong(s Snapshot) bool {
	f := s.Frame
	return f.RSI < oversoldRSI && f.RSI > s.PrevRSI && s.Close < f.EMAMedium
}

func meanReversionShort(s Snapshot) bool {
	f := s.Frame
	return f.RSI > overboughtRSI && f.RSI < s.PrevRSI && s.Close > f.EMAMedium
}

// Momentum: breakout of the recent range with the EMA stack aligned.

func momentumLong(s Snapshot) bool {
	f := s.Frame
	return s.Close > s.RecentHigh &&
		f.EMAFast > f.EMAMedium && f.EMAMedium > f.EMASlow &&
		f.RSI > 50
}

func momentumShort(s Snapshot) bool {
	f := s.Frame
	return s.Close < s.RecentLow &&
		f.EMAFast < f.EMAMedium && f.EMAMedium < f.EMASlow &&
		f.RSI < 50
}

// Pullback: trend intact, price dipped into the fast EMA and closed back beyond the medium one.

func pullbackLong(s Snapshot) bool {
	f := s.Frame
	return f.EMAFast > f.EMAMedium && f.EMAMedium > f.EMASlow &&
		s.Low <= f.EMAFast && s.Close > f.EMAMedium &&
		f.RSI > s.PrevRSI && f.RSI < pullbackRSICeil
}

func pullbackShort(s Snapshot) bool {
	f := s.Frame
	return f.EMAFast < f.EMAMedium && f.EMAMedium < f.EMASlow &&
		s.High >= f.EMAFast && s.Close < f.EMAMedium &&
		f.RSI < s.PrevRSI && f.RSI > pullbackRSIFloor
}

// Bear market: short weakness below the slow trend, buy only deeply oversold bounces.

func bearMarketShort(s Snapshot) bool {
	f := s.Frame
	return f.EMAFast < f.EMASlow && s.Close < f.EMAFast &&
		f.RSI < 50 && f.RSI < s.PrevRSI && f.RSI > bearShortRSIFloor
}

func bearBounceLong(s Snapshot) bool {
	f := s.Frame
	return f.RSI < deepOversoldRSI && f.RSI > s.PrevRSI
}

// Adaptive dispatches on the bar's regime.

func adaptiveLong(s Snapshot) bool {
	switch s.Frame.Regime {
	case indicators.RegimeBull:
		return pullbackLong(s)
	case indicators.RegimeBear:
		return bearBounceLong(s)
	case indicators.RegimeRange:
		return meanReversionLong(s)
	}
	return false
}

func adaptiveShort(s Snapshot) bool {
	switch s.Frame.Regime {
	case indicators.RegimeBear:
		return bearMarketShort(s)
	case indicators.RegimeRange:
		return meanReversionShort(s)
	}
	return false
}
