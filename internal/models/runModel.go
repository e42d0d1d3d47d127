package models

import "time"

// Run is the persisted summary of one completed backtest or forward session.
type Run struct {
	ID        uint   `gorm:"primaryKey"`
	RunID     string `gorm:"uniqueIndex;not null"`
	Symbol    string `gorm:"index;not null"`
	TimeFrame string `gorm:"not null"`
	Mode      string `gorm:"not null"`
	Leverage  float64

	StartTime time.Time `gorm:"index"`
	EndTime   time.Time `gorm:"index"`

	InitialCapital float64 `gorm:"type:decimal(20,8);not null"`
	FinalCapital   float64 `gorm:"type:decimal(20,8);not null"`
	TotalTrades    int
	WinRate        float64 `gorm:"type:decimal(20,8)"`
	MaxDrawdown    float64 `gorm:"type:decimal(20,8)"`
	SharpeRatio    float64 `gorm:"type:decimal(20,8)"`
	ProfitFactor   float64 `gorm:"type:decimal(20,8)"`

	// Report holds the serialized run report.
	Report string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}
