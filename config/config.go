package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"FuturesBacktest/internal/operations/backtest"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Load reads .env (optional), the environment and the run file. An empty
// runFile falls back to BACKTEST_CONFIG; with neither, defaults are used.
func Load(runFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	if runFile == "" {
		runFile = os.Getenv("BACKTEST_CONFIG")
	}
	run, err := LoadRun(runFile)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Exchange: ExchangeConfig{
			APIKey:    os.Getenv("BINANCE_API_KEY"),
			SecretKey: os.Getenv("BINANCE_SECRET_KEY"),
		},
		Database: DatabaseConfig{
			Host:     os.Getenv("DB_HOST"),
			Port:     EnvtoInt(os.Getenv("DB_PORT")),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			DBName:   os.Getenv("DB_NAME"),
		},
		Symbols: getSymbols(),
		Log: LogConfig{
			Level:  envOr("LOG_LEVEL", "info"),
			Format: envOr("LOG_FORMAT", "console"),
		},
		Run: run,
	}
	if len(cfg.Symbols) == 0 {
		cfg.Symbols = []string{run.Backtest.Symbol}
	}
	return cfg, nil
}

// LoadRun parses a YAML run file, fills defaults and validates it. An empty
// path yields the defaults.
func LoadRun(path string) (RunConfig, error) {
	var run RunConfig
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return RunConfig{}, fmt.Errorf("error reading run file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &run); err != nil {
			return RunConfig{}, fmt.Errorf("error parsing run file %s: %w", path, err)
		}
	}
	return run, finalize(&run)
}

func finalize(run *RunConfig) error {
	if err := defaults.Set(run); err != nil {
		return fmt.Errorf("error applying defaults: %w", err)
	}
	if err := run.Backtest.ApplyDefaults(); err != nil {
		return err
	}
	if err := run.Backtest.Validate(); err != nil {
		return err
	}

	for _, section := range []interface{}{run.Data, run.Forward, run.Grid} {
		if err := validate.Struct(section); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) && len(verrs) > 0 {
				return &backtest.ConfigurationError{Field: verrs[0].Namespace(), Reason: "failed " + verrs[0].Tag() + " validation", Err: err}
			}
			return &backtest.ConfigurationError{Field: "run", Reason: err.Error(), Err: err}
		}
	}
	for i, v := range run.Grid.Variants {
		if err := v.Apply(run.Backtest).Validate(); err != nil {
			return fmt.Errorf("grid variant %d (%s): %w", i, v.Name, err)
		}
	}
	return nil
}

// helper env(string) to int
func EnvtoInt(s string) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return i
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// helper to get symbols
func getSymbols() []string {
	symbols := os.Getenv("TRADING_SYMBOLS")
	if symbols == "" {
		return nil
	}
	out := make([]string, 0)
	for _, s := range strings.Split(symbols, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, strings.ToUpper(s))
		}
	}
	return out
}
