package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// Payment records one payout attempt. The row is created pending before the
// wallet call so a crash mid-transfer is detectable.
type Payment struct {
	ID        uint            `gorm:"primaryKey"`
	Username  string          `gorm:"index;size:128"`
	Coin      string          `gorm:"index;size:16"`
	Amount    decimal.Decimal `gorm:"type:numeric(30,12);not null"`
	TxID      string
	Status    PaymentStatus `gorm:"size:16;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
