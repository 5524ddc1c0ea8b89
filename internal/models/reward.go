package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Reward is one user's credit from one block. The (coin, height, username)
// primary key guards against double-crediting on settlement retry. Rollback
// zeroes Amount instead of deleting the row.
type Reward struct {
	Coin      string          `gorm:"primaryKey;size:16"`
	Height    uint64          `gorm:"primaryKey"`
	Username  string          `gorm:"primaryKey;size:128"`
	Shares    int64           `gorm:"not null"`
	Amount    decimal.Decimal `gorm:"type:numeric(30,12);not null"`
	CreatedAt time.Time       `gorm:"index"`
}
