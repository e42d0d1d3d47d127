package protection

import (
	"errors"
	"fmt"

	"FuturesBacktest/internal/services/indicators"
)

// Tier tightens the trail to TrailATR once profit reaches ProfitATR.
type Tier struct {
	ProfitATR float64 `yaml:"profit_atr" json:"profit_atr"`
	TrailATR  float64 `yaml:"trail_atr" json:"trail_atr"`
}

// Multiplier scales stop distances per regime. Initial applies before the
// position is protected, Profit after.
type Multiplier struct {
	Initial float64 `yaml:"initial" json:"initial"`
	Profit  float64 `yaml:"profit" json:"profit"`
}

// Params configures the two-phase trailing stop.
type Params struct {
	ProfitThresholdATR float64                          `yaml:"profit_threshold_atr" json:"profit_threshold_atr"`
	InitialStopATR     float64                          `yaml:"initial_stop_atr" json:"initial_stop_atr"`
	BaseTrailATR       float64                          `yaml:"base_trail_atr" json:"base_trail_atr"`
	Tiers              []Tier                           `yaml:"tiers" json:"tiers"`
	Multipliers        map[indicators.Regime]Multiplier `yaml:"multipliers" json:"multipliers"`
}

var (
	ErrNoTiers       = errors.New("profit tiers cannot be empty")
	ErrUnsortedTiers = errors.New("profit tiers must be strictly ascending")
)

// DefaultParams returns the standard schedule: wide 2 ATR stop until 0.5 ATR
// of profit, then a trail tightening from 1.2 to 0.5 ATR.
func DefaultParams() Params {
	return Params{
		ProfitThresholdATR: 0.5,
		InitialStopATR:     2.0,
		BaseTrailATR:       1.5,
		Tiers: []Tier{
			{ProfitATR: 1.0, TrailATR: 1.2},
			{ProfitATR: 2.0, TrailATR: 1.0},
			{ProfitATR: 3.0, TrailATR: 0.8},
			{ProfitATR: 5.0, TrailATR: 0.5},
		},
		Multipliers: map[indicators.Regime]Multiplier{
			indicators.RegimeBull:  {Initial: 1.2, Profit: 1.1},
			indicators.RegimeBear:  {Initial: 1.2, Profit: 1.1},
			indicators.RegimeRange: {Initial: 0.8, Profit: 0.8},
		},
	}
}

// Validate rejects schedules the simulator cannot use.
func (p Params) Validate() error {
	if p.ProfitThresholdATR <= 0 {
		return fmt.Errorf("profit_threshold_atr must be positive, got %v", p.ProfitThresholdATR)
	}
	if p.InitialStopATR <= 0 {
		return fmt.Errorf("initial_stop_atr must be positive, got %v", p.InitialStopATR)
	}
	if p.BaseTrailATR <= 0 {
		return fmt.Errorf("base_trail_atr must be positive, got %v", p.BaseTrailATR)
	}
	if len(p.Tiers) == 0 {
		return ErrNoTiers
	}
	for i, t := range p.Tiers {
		if t.ProfitATR <= 0 || t.TrailATR <= 0 {
			return fmt.Errorf("tier %d: profit_atr and trail_atr must be positive", i)
		}
		if i > 0 && t.ProfitATR <= p.Tiers[i-1].ProfitATR {
			return fmt.Errorf("tier %d: %w", i, ErrUnsortedTiers)
		}
	}
	for regime, m := range p.Multipliers {
		if m.Initial <= 0 || m.Profit <= 0 {
			return fmt.Errorf("multiplier for %s must be positive", regime)
		}
	}
	return nil
}

// MultiplierFor falls back to the range entry, then to 1, for regimes
// without an entry.
func (p Params) MultiplierFor(regime indicators.Regime) Multiplier {
	if m, ok := p.Multipliers[regime]; ok {
		return m
	}
	if m, ok := p.Multipliers[indicators.RegimeRange]; ok {
		return m
	}
	return Multiplier{Initial: 1, Profit: 1}
}

// TrailFor returns the trail of the highest tier reached, or the base trail.
func (p Params) TrailFor(profitATR float64) float64 {
	trail := p.BaseTrailATR
	for _, t := range p.Tiers {
		if profitATR < t.ProfitATR {
			break
		}
		trail = t.TrailATR
	}
	return trail
}
