package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is one user's balance for one coin. The composite key keeps exactly
// one balance row per (username, coin); the balance must stay >= 0 after every
// committed transaction.
type Account struct {
	Username      string          `gorm:"primaryKey;size:128"`
	Coin          string          `gorm:"primaryKey;size:16"`
	Balance       decimal.Decimal `gorm:"type:numeric(30,12);not null;default:0"`
	WalletAddress string
	FeeRate       float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
