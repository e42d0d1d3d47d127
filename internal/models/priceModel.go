package models

import (
	"time"
)

// Price is one OHLCV candle. It doubles as the candle cache row.
type Price struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	Symbol     string    `gorm:"uniqueIndex:idx_price_bar;not null" json:"symbol"`
	TimeFrame  string    `gorm:"uniqueIndex:idx_price_bar;not null" json:"time_frame"`
	OpenTime   time.Time `gorm:"uniqueIndex:idx_price_bar;not null" json:"open_time"`
	CloseTime  time.Time `gorm:"index" json:"close_time"`
	Open       float64   `gorm:"type:decimal(20,8)" json:"open"`
	Close      float64   `gorm:"type:decimal(20,8)" json:"close"`
	High       float64   `gorm:"type:decimal(20,8)" json:"high"`
	Low        float64   `gorm:"type:decimal(20,8)" json:"low"`
	Volume     float64   `gorm:"type:decimal(20,8)" json:"volume"`
	TradeCount int64     `json:"trade_count"`
}

const (
	PriceTimeFrame1m  = "1m"
	PriceTimeFrame5m  = "5m"
	PriceTimeFrame15m = "15m"
	PriceTimeFrame30m = "30m"
	PriceTimeFrame1h  = "1h"
	PriceTimeFrame4h  = "4h"
	PriceTimeFrame1d  = "1d"
)

// TableName sets the table name for Price model
func (Price) TableName() string {
	return "prices"
}

// IsClosed reports whether the bar had finished at instant t.
func (p Price) IsClosed(t time.Time) bool {
	return !p.CloseTime.IsZero() && !p.CloseTime.After(t)
}

// TimeFrameDuration maps a kline interval to its bar length. Unknown intervals return 0.
func TimeFrameDuration(timeFrame string) time.Duration {
	intervals := map[string]time.Duration{
		PriceTimeFrame1m:  time.Minute,
		PriceTimeFrame5m:  5 * time.Minute,
		PriceTimeFrame15m: 15 * time.Minute,
		PriceTimeFrame30m: 30 * time.Minute,
		PriceTimeFrame1h:  time.Hour,
		PriceTimeFrame4h:  4 * time.Hour,
		PriceTimeFrame1d:  24 * time.Hour,
	}
	return intervals[timeFrame]
}

// Closes extracts the close series.
func Closes(prices []Price) []float64 {
	out := make([]float64, len(prices))
	for i, p := range prices {
		out[i] = p.Close
	}
	return out
}
