package strategy

import (
	"fmt"
	"strings"

	"FuturesBacktest/internal/models"
	"FuturesBacktest/internal/services/indicators"
)

// Mode selects the entry rule family.
type Mode string

const (
	ModeMeanReversion Mode = "mean_reversion"
	ModeMomentum      Mode = "momentum"
	ModePullback      Mode = "pullback"
	ModeBearMarket    Mode = "bear_market"
	ModeAdaptive      Mode = "adaptive"
)

// Modes lists every supported mode.
var Modes = []Mode{ModeMeanReversion, ModeMomentum, ModePullback, ModeBearMarket, ModeAdaptive}

// ParseMode accepts the snake_case names plus a few common spellings.
func ParseMode(s string) (Mode, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)
	switch normalized {
	case "mean_reversion", "meanreversion":
		return ModeMeanReversion, nil
	case "momentum":
		return ModeMomentum, nil
	case "pullback":
		return ModePullback, nil
	case "bear_market", "bearmarket", "bear":
		return ModeBearMarket, nil
	case "adaptive":
		return ModeAdaptive, nil
	}
	return "", fmt.Errorf("unknown strategy mode %q", s)
}

// Snapshot is everything a predicate may look at for one bar.
type Snapshot struct {
	Index      int
	Close      float64
	High       float64
	Low        float64
	Frame      indicators.Frame
	PrevRSI    float64
	RecentHigh float64 // highest high of the breakout window, current bar excluded
	RecentLow  float64 // lowest low of the breakout window, current bar excluded
}

// Signal is the entry decision for a bar. Long and Short are never both set.
type Signal struct {
	Long     bool
	Short    bool
	Snapshot Snapshot
}

// Side returns the signalled direction.
func (s Signal) Side() (models.Side, bool) {
	switch {
	case s.Long:
		return models.SideLong, true
	case s.Short:
		return models.SideShort, true
	}
	return "", false
}

// Predicate is a pure entry condition.
type Predicate func(Snapshot) bool

// Rule pairs the long and short entry conditions of a mode.
type Rule struct {
	Mode  Mode
	Long  Predicate
	Short Predicate
}

// Settings tune signal generation.
type Settings struct {
	// MinHistory is the bar floor before any entry, normally the slow EMA period.
	MinHistory int
	// BreakoutLookback is the width of the recent high/low window.
	BreakoutLookback int
}

// BreakoutLookbackFor returns a narrower window for intraday bars.
func BreakoutLookbackFor(timeFrame string) int {
	switch timeFrame {
	case models.PriceTimeFrame1m, models.PriceTimeFrame5m, models.PriceTimeFrame15m:
		return 10
	}
	return 20
}
