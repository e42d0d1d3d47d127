package logger_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"FuturesBacktest/internal/logger"
)

func TestJSONOutputCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	log, err := logger.New(&logger.Config{Level: "info", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	log.With(logger.String("symbol", "BTCUSDT")).Info("run finished",
		logger.Int("trades", 3),
		logger.Float("pnl", 12.5),
		logger.Bool("liquidated", false),
		logger.Error(errors.New("boom")),
	)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not json: %v (%q)", err, buf.String())
	}
	if entry["message"] != "run finished" || entry["level"] != "info" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if entry["symbol"] != "BTCUSDT" || entry["trades"] != float64(3) || entry["pnl"] != 12.5 {
		t.Fatalf("fields missing: %v", entry)
	}
	if entry["error"] != "boom" {
		t.Fatalf("error field missing: %v", entry)
	}
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log, err := logger.New(&logger.Config{Level: "warn", Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Debug("hidden")
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below warn, got %q", buf.String())
	}
	log.Warn("shown")
	if buf.Len() == 0 {
		t.Fatalf("warn was filtered")
	}
}

func TestInvalidLevel(t *testing.T) {
	if _, err := logger.New(&logger.Config{Level: "loud"}); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestNopDiscards(t *testing.T) {
	log := logger.Nop()
	log.Info("nothing", logger.String("k", "v"))
	log.With(logger.Int("n", 1)).Error("nothing")
}
