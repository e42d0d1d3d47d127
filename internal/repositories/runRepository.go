package repositories

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"FuturesBacktest/internal/models"
)

type RunRepository struct {
	db *gorm.DB
}

// NewRunRepository creates a new instance of RunRepository
func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// SaveRun stores a run summary and its trades atomically.
func (r *RunRepository) SaveRun(run *models.Run, trades []models.Trade) error {
	if run == nil {
		return errors.New("run cannot be nil")
	}
	if run.RunID == "" {
		return errors.New("run id cannot be empty")
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return fmt.Errorf("failed to save run %s: %w", run.RunID, err)
		}
		if len(trades) == 0 {
			return nil
		}
		rows := make([]models.Trade, len(trades))
		for i, t := range trades {
			t.ID = 0
			t.RunID = run.RunID
			if t.Symbol == "" {
				t.Symbol = run.Symbol
			}
			rows[i] = t
		}
		if err := tx.CreateInBatches(rows, 200).Error; err != nil {
			return fmt.Errorf("failed to save trades of run %s: %w", run.RunID, err)
		}
		return nil
	})
}

// FindByRunID retrieves a run summary
func (r *RunRepository) FindByRunID(runID string) (*models.Run, error) {
	if runID == "" {
		return nil, errors.New("invalid run id")
	}
	var run models.Run
	err := r.db.Where("run_id = ?", runID).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &run, err
}

// FindLatest retrieves the most recent runs of a symbol
func (r *RunRepository) FindLatest(symbol string, limit int) ([]models.Run, error) {
	if symbol == "" {
		return nil, errors.New("invalid symbol")
	}
	if limit <= 0 {
		limit = 10
	}
	var runs []models.Run
	err := r.db.Where("symbol = ?", symbol).Order("created_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}
