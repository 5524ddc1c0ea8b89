package payout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tari-cpu/tpool/internal/config"
	"github.com/tari-cpu/tpool/internal/ledger"
	"github.com/tari-cpu/tpool/internal/models"
	"github.com/tari-cpu/tpool/internal/wallet"
)

// ErrDispatchFailed is terminal for one attempt. The Payment row stays
// failed for audit and the debited amount has been re-credited.
var ErrDispatchFailed = errors.New("payout dispatch failed")

// Summary reports one payout cycle.
type Summary struct {
	Coin      string          `json:"coin"`
	Attempted int             `json:"attempted"`
	Completed int             `json:"completed"`
	Failed    int             `json:"failed"`
	TotalPaid decimal.Decimal `json:"total_paid"`
}

// Dispatcher selects accounts whose freeze-adjusted balance reaches the
// coin's minimum payout and pushes transfers through the external wallet. It
// is the sole debit path for account balances.
type Dispatcher struct {
	store   *ledger.Store
	wallets map[string]wallet.Wallet
	cfg     *config.Config
	logger  *log.Logger
}

func NewDispatcher(store *ledger.Store, wallets map[string]wallet.Wallet, cfg *config.Config, logger *log.Logger) *Dispatcher {
	return &Dispatcher{store: store, wallets: wallets, cfg: cfg, logger: logger}
}

// Run triggers a cycle for every coin with a configured wallet on a fixed
// interval until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for coin := range d.wallets {
				if _, err := d.RunPayoutCycle(ctx, coin); err != nil {
					d.logger.Printf("Payout cycle for %s: %v", coin, err)
				}
			}
		}
	}
}

// RunPayoutCycle pays every account whose balance, minus rewards credited
// within the freeze window, reaches the coin's minimum payout. Rewards still
// inside the window are excluded because their block may yet be invalidated.
func (d *Dispatcher) RunPayoutCycle(ctx context.Context, coin string) (*Summary, error) {
	coinCfg, ok := d.cfg.Coin(coin)
	if !ok {
		return nil, fmt.Errorf("unknown coin %q", coin)
	}
	w, ok := d.wallets[coin]
	if !ok {
		return nil, fmt.Errorf("no wallet configured for %q", coin)
	}

	min := decimal.NewFromFloat(coinCfg.MinPayout)
	accounts, err := d.store.EligibleAccounts(coin, min)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().Add(-d.cfg.FreezeWindow())
	summary := &Summary{Coin: coin, TotalPaid: decimal.Zero}

	// Resolve payable amounts up front so the wallet balance check covers
	// the whole cycle.
	type planned struct {
		account models.Account
		amount  decimal.Decimal
	}
	var plan []planned
	total := decimal.Zero
	for _, account := range accounts {
		if !validAddress(account.WalletAddress, coinCfg) {
			d.logger.Printf("Skipping %s payout for %s: invalid address %q",
				coin, account.Username, account.WalletAddress)
			continue
		}
		frozen, err := d.store.RecentRewardSum(account.Username, coin, cutoff)
		if err != nil {
			return summary, err
		}
		available := account.Balance.Sub(frozen)
		if available.LessThan(min) {
			continue
		}
		plan = append(plan, planned{account: account, amount: available})
		total = total.Add(available)
	}
	if len(plan) == 0 {
		return summary, nil
	}

	unlocked, err := w.UnlockedBalance(ctx)
	if err != nil {
		return summary, fmt.Errorf("%w: wallet balance: %v", ErrDispatchFailed, err)
	}
	if unlocked.LessThan(total) {
		d.logger.Printf("Skipping %s payout cycle: wallet unlocked balance %s below planned total %s",
			coin, unlocked.String(), total.String())
		return summary, nil
	}

	for _, p := range plan {
		summary.Attempted++
		if err := d.dispatchOne(ctx, w, coin, p.account, p.amount); err != nil {
			summary.Failed++
			d.logger.Printf("Payout to %s failed: %v", p.account.Username, err)
			continue
		}
		summary.Completed++
		summary.TotalPaid = summary.TotalPaid.Add(p.amount)
	}
	return summary, nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, w wallet.Wallet, coin string, account models.Account, amount decimal.Decimal) error {
	// Durability first: the record of intent and the debit commit before the
	// external call, so a crash mid-transfer is detectable and reconcilable.
	payment := models.Payment{
		Username: account.Username,
		Coin:     coin,
		Amount:   amount,
		Status:   models.PaymentPending,
	}
	err := d.store.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&payment).Error; err != nil {
			return err
		}
		return ledger.AddBalance(tx, account.Username, coin, amount.Neg())
	})
	if err != nil {
		return err
	}

	result, terr := w.Transfer(ctx, account.WalletAddress, amount)
	if terr != nil {
		// Mark the attempt failed and give the debited amount back. The
		// failed row stays for audit; the balance becomes eligible again on
		// a later cycle.
		uerr := d.store.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&models.Payment{}).Where("id = ?", payment.ID).
				Update("status", models.PaymentFailed).Error; err != nil {
				return err
			}
			return ledger.AddBalance(tx, account.Username, coin, amount)
		})
		if uerr != nil {
			return fmt.Errorf("%w: transfer: %v (reconcile also failed: %v)", ErrDispatchFailed, terr, uerr)
		}
		return fmt.Errorf("%w: transfer: %v", ErrDispatchFailed, terr)
	}

	if err := d.store.Transaction(func(tx *gorm.DB) error {
		return tx.Model(&models.Payment{}).Where("id = ?", payment.ID).
			Updates(map[string]interface{}{
				"status": models.PaymentCompleted,
				"tx_id":  result.TxID,
			}).Error
	}); err != nil {
		// The transfer went out; the still-pending row without a txid is the
		// signal an operator reconciles from.
		return fmt.Errorf("record completed payment %d: %w", payment.ID, err)
	}

	d.logger.Printf("Paid %s %s to %s (tx %s, fee %s)",
		amount.String(), coin, account.Username, result.TxID, result.Fee.String())
	return nil
}

func validAddress(addr string, coinCfg config.CoinConfig) bool {
	if addr == "" {
		return false
	}
	if coinCfg.AddressPrefix != "" && !strings.HasPrefix(addr, coinCfg.AddressPrefix) {
		return false
	}
	return len(addr) >= coinCfg.MinAddressLength
}
