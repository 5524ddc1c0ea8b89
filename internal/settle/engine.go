package settle

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tari-cpu/tpool/internal/config"
	"github.com/tari-cpu/tpool/internal/ledger"
	"github.com/tari-cpu/tpool/internal/models"
	"github.com/tari-cpu/tpool/internal/shares"
)

var (
	// ErrNoSharesToDistribute is retryable: no Block row is created, so the
	// same (coin, height) can still settle later once shares exist.
	ErrNoSharesToDistribute = errors.New("no shares to distribute")

	// ErrLedgerWrite wraps an aborted settlement transaction. The snapshot
	// has been restored to the counter; retry the whole operation.
	ErrLedgerWrite = errors.New("ledger write failed")

	ErrUnknownCoin = errors.New("unknown coin")
)

// ShareCounter is the slice of the share counter the engine consumes.
type ShareCounter interface {
	SnapshotAndClear(ctx context.Context, coin string) (*shares.Snapshot, error)
	Restore(ctx context.Context, snap *shares.Snapshot) error
}

// Engine turns block-found events into settled ledger state. It is the sole
// writer of Block and Reward rows and the sole credit path for balances.
type Engine struct {
	store   *ledger.Store
	counter ShareCounter
	cfg     *config.Config
	logger  *log.Logger
}

func NewEngine(store *ledger.Store, counter ShareCounter, cfg *config.Config, logger *log.Logger) *Engine {
	return &Engine{store: store, counter: counter, cfg: cfg, logger: logger}
}

// SettleBlock distributes a found block's reward across the shares counted
// since the last settlement, as one ledger transaction. It is idempotent:
// calling it again for the same (coin, height) returns the existing block
// with settled=false and changes nothing.
func (e *Engine) SettleBlock(ctx context.Context, coin string, height uint64, totalReward decimal.Decimal, chainBlockID string) (*models.Block, bool, error) {
	coinCfg, ok := e.cfg.Coin(coin)
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", ErrUnknownCoin, coin)
	}

	existing, err := e.store.FindBlock(coin, height)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrLedgerWrite, err)
	}
	if existing != nil {
		return existing, false, nil
	}

	snap, err := e.counter.SnapshotAndClear(ctx, coin)
	if err != nil {
		return nil, false, err
	}
	if snap.Total == 0 {
		return nil, false, ErrNoSharesToDistribute
	}

	value := totalReward.Div(decimal.NewFromInt(snap.Total))
	status := models.BlockConfirmed
	if coinCfg.RequiresConfirmation {
		status = models.BlockPending
	}

	block := &models.Block{
		Coin:         coin,
		Height:       height,
		TotalReward:  totalReward,
		TotalShares:  snap.Total,
		ShareValue:   value,
		ChainBlockID: chainBlockID,
		Valid:        true,
		Status:       status,
	}

	err = e.store.Transaction(func(tx *gorm.DB) error {
		// The unique (coin, height) key also stops a concurrent duplicate
		// settlement that raced past the check above.
		if err := tx.Create(block).Error; err != nil {
			return err
		}
		for username, count := range snap.Shares {
			account, err := ledger.EnsureAccount(tx, username, coin, e.cfg.Fee)
			if err != nil {
				return err
			}
			amount := value.Mul(decimal.NewFromInt(count)).
				Mul(decimal.NewFromFloat(1 - account.FeeRate))
			reward := models.Reward{
				Coin:     coin,
				Height:   height,
				Username: username,
				Shares:   count,
				Amount:   amount,
			}
			if err := tx.Create(&reward).Error; err != nil {
				return err
			}
			if err := ledger.AddBalance(tx, username, coin, amount); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// The snapshot was not consumed; put the shares back before reporting.
		if rerr := e.counter.Restore(ctx, snap); rerr != nil {
			e.logger.Printf("Failed to restore %s share snapshot after aborted settlement: %v", coin, rerr)
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			if winner, ferr := e.store.FindBlock(coin, height); ferr == nil && winner != nil {
				return winner, false, nil
			}
		}
		return nil, false, fmt.Errorf("%w: %v", ErrLedgerWrite, err)
	}

	e.logger.Printf("Settled %s block %d: reward %s across %d shares from %d miners",
		coin, height, totalReward.String(), snap.Total, len(snap.Shares))
	return block, true, nil
}
