package backtest

import (
	"errors"
	"fmt"
)

// ErrNoData aborts a run that was given no candles.
var ErrNoData = errors.New("no candle data")

// ConfigurationError rejects a run before it starts.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
