package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type BlockStatus string

const (
	BlockPending     BlockStatus = "pending"
	BlockConfirmed   BlockStatus = "confirmed"
	BlockInvalidated BlockStatus = "invalidated"
)

// Block records one settled pool block. The (coin, height) primary key is the
// idempotency guard against double-settlement. Invalidated blocks are kept
// with Valid=false for audit, never deleted.
type Block struct {
	Coin         string          `gorm:"primaryKey;size:16"`
	Height       uint64          `gorm:"primaryKey"`
	TotalReward  decimal.Decimal `gorm:"type:numeric(30,12);not null"`
	TotalShares  int64           `gorm:"not null"`
	ShareValue   decimal.Decimal `gorm:"type:numeric(30,12);not null"`
	ChainBlockID string          `gorm:"size:128"`
	Valid        bool
	Status       BlockStatus `gorm:"size:16;index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
