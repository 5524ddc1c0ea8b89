package wallet

import (
	"context"

	"github.com/shopspring/decimal"
)

// TransferResult is the outcome of a broadcast transfer.
type TransferResult struct {
	TxID string
	Fee  decimal.Decimal
}

// TransferStatus is the wallet's view of one broadcast transfer. State is the
// wallet's own classification (e.g. "pending", "out", "failed").
type TransferStatus struct {
	TxID          string
	State         string
	Confirmations uint64
}

// Wallet is the external transfer boundary for one coin. Implementations must
// bound every call with a timeout so a stalled wallet daemon cannot stall a
// payout cycle. TransferStatus is the reconciliation hook: a Payment row left
// pending with a recorded txid can be resolved by asking the wallet what
// became of the transfer.
type Wallet interface {
	UnlockedBalance(ctx context.Context) (decimal.Decimal, error)
	Transfer(ctx context.Context, address string, amount decimal.Decimal) (*TransferResult, error)
	TransferStatus(ctx context.Context, txID string) (*TransferStatus, error)
}
