package backtest

import (
	"errors"
	"fmt"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"FuturesBacktest/internal/services/indicators"
	"FuturesBacktest/internal/services/protection"
	"FuturesBacktest/internal/services/strategy"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// DefaultConfig returns a complete adaptive 1h configuration.
func DefaultConfig() Config {
	return Config{
		Symbol:                "BTCUSDT",
		InitialCapital:        DefaultInitialCapital,
		Leverage:              DefaultLeverage,
		MaintenanceMarginRate: DefaultMaintenanceMarginRate,
		Fees:                  FeeConfig{Taker: DefaultTakerFee},
		Slippage:              SlippageConfig{Base: 0.0005, VolatilityMultiplier: 0.1, StopMultiplier: 0.1},
		FundingRate:           DefaultFundingRate,
		Mode:                  strategy.ModeAdaptive,
		Timeframe:             "1h",
		Indicators:            IndicatorConfig{Settings: indicators.DefaultSettings("1h")},
		Protection:            protection.DefaultParams(),
		Sizing:                SizingConfig{Fraction: 0.25, Bull: 0.3, Bear: 0.3, Range: 0.2},
	}
}

// ApplyDefaults fills zero fields from the default tags. Slices and maps
// left empty take the default protection schedule.
func (c *Config) ApplyDefaults() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("failed to apply defaults: %w", err)
	}
	def := protection.DefaultParams()
	p := &c.Protection
	if p.ProfitThresholdATR == 0 {
		p.ProfitThresholdATR = def.ProfitThresholdATR
	}
	if p.InitialStopATR == 0 {
		p.InitialStopATR = def.InitialStopATR
	}
	if p.BaseTrailATR == 0 {
		p.BaseTrailATR = def.BaseTrailATR
	}
	if len(p.Tiers) == 0 {
		p.Tiers = def.Tiers
	}
	if len(p.Multipliers) == 0 {
		p.Multipliers = def.Multipliers
	}
	return nil
}

// Validate checks the configuration without modifying it.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ConfigurationError{Field: fe.Namespace(), Reason: reasonFor(fe), Err: err}
		}
		return &ConfigurationError{Field: "config", Reason: err.Error(), Err: err}
	}
	if c.Leverage*c.MaintenanceMarginRate >= 1 {
		return &ConfigurationError{
			Field:  "Config.MaintenanceMarginRate",
			Reason: fmt.Sprintf("leverage %v with maintenance margin %v liquidates at entry", c.Leverage, c.MaintenanceMarginRate),
		}
	}
	if _, err := strategy.RuleFor(c.Mode); err != nil {
		return &ConfigurationError{Field: "Config.Mode", Reason: err.Error(), Err: err}
	}
	if err := c.Protection.Validate(); err != nil {
		return &ConfigurationError{Field: "Config.Protection", Reason: err.Error(), Err: err}
	}
	return nil
}

func reasonFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lt":
		return fmt.Sprintf("must be less than %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gtfield":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	}
	return fmt.Sprintf("failed %s validation", fe.Tag())
}

// IndicatorSettings resolves the indicator lookbacks, filling regime
// thresholds from the timeframe when unset.
func (c Config) IndicatorSettings() indicators.Settings {
	s := c.Indicators.Settings
	if s.Thresholds == (indicators.RegimeThresholds{}) {
		s.Thresholds = indicators.ThresholdsFor(c.Timeframe)
	}
	return s
}

// SignalSettings resolves the signal warm-up and breakout window.
func (c Config) SignalSettings() strategy.Settings {
	lookback := c.Indicators.BreakoutLookback
	if lookback == 0 {
		lookback = strategy.BreakoutLookbackFor(c.Timeframe)
	}
	return strategy.Settings{
		MinHistory:       c.Indicators.EMASlowPeriod,
		BreakoutLookback: lookback,
	}
}
