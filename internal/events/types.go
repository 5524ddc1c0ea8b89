package events

import "github.com/shopspring/decimal"

// BlockFound is the payload of one block-found event published by the pool's
// stratum monitor. Reward and chain block id are inputs reported by the
// monitor, not computed here.
type BlockFound struct {
	Coin         string          `json:"coin"`
	Height       uint64          `json:"height"`
	Reward       decimal.Decimal `json:"reward"`
	ChainBlockID string          `json:"block_id,omitempty"`
}

// Outcome classifies what the listener did with one event.
type Outcome string

const (
	OutcomeSettled  Outcome = "settled"
	OutcomeSkipped  Outcome = "skipped"  // duplicate event, already settled
	OutcomeDeferred Outcome = "deferred" // no shares yet, retryable
	OutcomeFailed   Outcome = "failed"
)
