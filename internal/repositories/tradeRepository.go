package repositories

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"FuturesBacktest/internal/models"
)

type TradeRepository struct {
	db *gorm.DB
}

// NewTradeRepository creates a new instance of TradeRepository
func NewTradeRepository(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// FindByRunID retrieves the trades of a run in exit order
func (r *TradeRepository) FindByRunID(runID string) ([]models.Trade, error) {
	if runID == "" {
		return nil, errors.New("invalid run id")
	}
	var trades []models.Trade
	err := r.db.Where("run_id = ?", runID).Order("exit_time ASC, id ASC").Find(&trades).Error
	return trades, err
}

// FindBySymbol retrieves all trades of a symbol within a time range
func (r *TradeRepository) FindBySymbol(symbol string, start, end time.Time) ([]models.Trade, error) {
	if symbol == "" {
		return nil, errors.New("invalid symbol")
	}
	var trades []models.Trade
	err := r.db.Where("symbol = ? AND exit_time BETWEEN ? AND ?", symbol, start, end).
		Order("exit_time ASC").
		Find(&trades).Error
	return trades, err
}

// GetTotalPnL sums the net PnL of a run
func (r *TradeRepository) GetTotalPnL(runID string) (float64, error) {
	var total float64
	err := r.db.Model(&models.Trade{}).
		Where("run_id = ?", runID).
		Select("COALESCE(SUM(pnl), 0)").
		Scan(&total).Error
	return total, err
}

// CountByExitReason groups the trades of a run by exit reason
func (r *TradeRepository) CountByExitReason(runID string) (map[models.ExitReason]int, error) {
	var rows []struct {
		ExitReason models.ExitReason
		Count      int
	}
	err := r.db.Model(&models.Trade{}).
		Select("exit_reason, COUNT(*) as count").
		Where("run_id = ?", runID).
		Group("exit_reason").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[models.ExitReason]int, len(rows))
	for _, row := range rows {
		out[row.ExitReason] = row.Count
	}
	return out, nil
}
