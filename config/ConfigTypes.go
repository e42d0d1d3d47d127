package config

import (
	"time"

	"FuturesBacktest/internal/operations/backtest"
	"FuturesBacktest/internal/operations/grid"
)

type Config struct {
	Exchange ExchangeConfig
	Database DatabaseConfig
	Symbols  []string
	Log      LogConfig
	Run      RunConfig
}

type ExchangeConfig struct {
	APIKey    string
	SecretKey string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// Enabled reports whether a database was configured. Without one, candles
// are fetched on every run and results are only written to files.
func (d DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

type LogConfig struct {
	Level  string
	Format string
}

// RunConfig is the YAML run file.
type RunConfig struct {
	Backtest backtest.Config `yaml:"backtest"`
	Data     DataConfig      `yaml:"data"`
	Forward  ForwardConfig   `yaml:"forward"`
	Grid     GridConfig      `yaml:"grid"`
	Output   string          `yaml:"output" default:"results"`
}

// DataConfig is the historical window. A zero End means now, a zero Start
// means Days before End.
type DataConfig struct {
	Start    time.Time `yaml:"start"`
	End      time.Time `yaml:"end"`
	Days     int       `yaml:"days" default:"90" validate:"gt=0"`
	UseCache bool      `yaml:"use_cache" default:"true"`
}

type ForwardConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" default:"60s" validate:"gt=0"`
	// Warmup is the number of closed candles loaded before the first poll.
	Warmup      int    `yaml:"warmup" default:"200" validate:"gt=0"`
	MetricsAddr string `yaml:"metrics_addr" default:":9090"`
}

type GridConfig struct {
	Workers  int            `yaml:"workers" default:"4" validate:"gt=0"`
	Variants []grid.Variant `yaml:"variants" validate:"dive"`
}

// Window resolves the data window against now.
func (d DataConfig) Window(now time.Time) (time.Time, time.Time) {
	end := d.End
	if end.IsZero() {
		end = now
	}
	start := d.Start
	if start.IsZero() {
		start = end.AddDate(0, 0, -d.Days)
	}
	return start, end
}
