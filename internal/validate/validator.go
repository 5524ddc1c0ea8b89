package validate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tari-cpu/tpool/internal/explorer"
	"github.com/tari-cpu/tpool/internal/ledger"
	"github.com/tari-cpu/tpool/internal/models"
)

// ErrConfirmationInconclusive means the external source could not be
// consulted this pass. The block's state is unchanged and it is retried next
// interval, bounded only by the interval, never by a retry counter.
var ErrConfirmationInconclusive = errors.New("external confirmation inconclusive")

// Lookup fetches the canonical header for one height.
type Lookup interface {
	BlockHeader(ctx context.Context, height uint64) (*explorer.Header, error)
}

// Validator confirms provisionally settled blocks against the chain explorer
// and rolls back the ones the chain rejected. It is the sole rollback path
// for account balances.
type Validator struct {
	store  *ledger.Store
	lookup Lookup
	coin   string
	logger *log.Logger
}

func NewValidator(store *ledger.Store, lookup Lookup, coin string, logger *log.Logger) *Validator {
	return &Validator{store: store, lookup: lookup, coin: coin, logger: logger}
}

// Run polls every interval until ctx is cancelled.
func (v *Validator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := v.CheckNext(ctx); err != nil {
				v.logger.Printf("Block validation pass for %s: %v", v.coin, err)
			}
		}
	}
}

// CheckNext validates the oldest Pending block for the coin, if any.
func (v *Validator) CheckNext(ctx context.Context) error {
	block, err := v.store.OldestPendingBlock(v.coin)
	if err != nil {
		return err
	}
	if block == nil {
		return nil
	}
	return v.CheckBlock(ctx, block)
}

// CheckBlock drives the Pending -> {Confirmed, Invalidated} transition for
// one block. Not-found responses leave the block Pending; transport and
// decode failures are inconclusive and change nothing.
func (v *Validator) CheckBlock(ctx context.Context, block *models.Block) error {
	header, err := v.lookup.BlockHeader(ctx, block.Height)
	if errors.Is(err, explorer.ErrNotFound) {
		// Not propagated to the explorer yet. Expected for fresh blocks.
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfirmationInconclusive, err)
	}

	// The explorer's hash is lowercase hex; the recorded id comes from the
	// event feed and may not be.
	if header.Hash != "" && strings.EqualFold(header.Hash, block.ChainBlockID) {
		v.logger.Printf("Block %s/%d confirmed (hash %s)", block.Coin, block.Height, header.Hash)
		return v.confirm(block)
	}

	v.logger.Printf("Block %s/%d invalid: recorded hash %q, canonical %q; rolling back credits",
		block.Coin, block.Height, block.ChainBlockID, header.Hash)
	return v.Invalidate(block)
}

func (v *Validator) confirm(block *models.Block) error {
	return v.store.Transaction(func(tx *gorm.DB) error {
		return tx.Model(&models.Block{}).
			Where("coin = ? AND height = ?", block.Coin, block.Height).
			Updates(map[string]interface{}{
				"status": models.BlockConfirmed,
				"valid":  true,
			}).Error
	})
}

// Invalidate compensates every credit tied to the block in one transaction:
// each affected balance is decremented by its Reward amount, the Reward rows
// are zeroed (kept for audit), and the Block is marked invalid. All or
// nothing; a partially rolled-back block would break conservation.
func (v *Validator) Invalidate(block *models.Block) error {
	return v.store.Transaction(func(tx *gorm.DB) error {
		var rewards []models.Reward
		if err := tx.Where("coin = ? AND height = ?", block.Coin, block.Height).
			Find(&rewards).Error; err != nil {
			return err
		}
		for _, r := range rewards {
			if r.Amount.IsZero() {
				continue
			}
			if err := ledger.AddBalance(tx, r.Username, r.Coin, r.Amount.Neg()); err != nil {
				return err
			}
			if err := tx.Model(&models.Reward{}).
				Where("coin = ? AND height = ? AND username = ?", r.Coin, r.Height, r.Username).
				Update("amount", decimal.Zero).Error; err != nil {
				return err
			}
		}
		return tx.Model(&models.Block{}).
			Where("coin = ? AND height = ?", block.Coin, block.Height).
			Updates(map[string]interface{}{
				"valid":  false,
				"status": models.BlockInvalidated,
			}).Error
	})
}
