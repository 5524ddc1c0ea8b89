package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/tari-cpu/tpool/internal/config"
	"github.com/tari-cpu/tpool/internal/ledger"
	"github.com/tari-cpu/tpool/internal/models"
	"github.com/tari-cpu/tpool/internal/payout"
	"github.com/tari-cpu/tpool/internal/wallet"
)

// ShareCounts is the live counter query surface.
type ShareCounts interface {
	Counts(ctx context.Context, username string) (map[string]int64, error)
}

// PayoutRunner triggers an administrative payout cycle.
type PayoutRunner interface {
	RunPayoutCycle(ctx context.Context, coin string) (*payout.Summary, error)
}

// BlockChecker runs one validation pass for its coin.
type BlockChecker interface {
	CheckNext(ctx context.Context) error
}

// WalletInspector asks the external wallet what became of a broadcast
// transfer.
type WalletInspector interface {
	TransferStatus(ctx context.Context, txID string) (*wallet.TransferStatus, error)
}

// Server exposes the accounting core to the front-end and CLI layers. It
// only reads ledger state and triggers cycles; all writes stay with the
// owning components.
type Server struct {
	store      *ledger.Store
	counter    ShareCounts
	dispatcher PayoutRunner
	validators map[string]BlockChecker
	wallets    map[string]WalletInspector
	cfg        *config.Config
}

func NewServer(store *ledger.Store, counter ShareCounts, dispatcher PayoutRunner, validators map[string]BlockChecker, wallets map[string]WalletInspector, cfg *config.Config) *Server {
	return &Server{
		store:      store,
		counter:    counter,
		dispatcher: dispatcher,
		validators: validators,
		wallets:    wallets,
		cfg:        cfg,
	}
}

func (s *Server) Router() *gin.Engine {
	router := gin.Default()
	router.Use(cors.Default())

	router.GET("/user/:username/shares", s.getShares)
	router.GET("/user/:username/balance", s.getBalance)
	router.GET("/user/:username/rewards", s.getRewards)
	router.GET("/user/:username/payments", s.getPayments)
	router.GET("/blocks", s.getBlocks)
	router.POST("/admin/payout/:coin", s.triggerPayout)
	router.POST("/admin/validate/:coin", s.triggerValidation)
	router.GET("/admin/payment/:id", s.getPaymentStatus)

	return router
}

func (s *Server) getShares(c *gin.Context) {
	username := c.Param("username")
	counts, err := s.counter.Counts(c.Request.Context(), username)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"username": username,
		"shares":   counts,
	})
}

// getBalance reports per-coin balances with the frozen portion surfaced
// separately, so the displayed balance always matches committed rewards
// minus committed payments.
func (s *Server) getBalance(c *gin.Context) {
	username := c.Param("username")
	accounts, err := s.store.Accounts(username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(accounts) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
		return
	}

	cutoff := time.Now().UTC().Add(-s.cfg.FreezeWindow())
	balances := make([]gin.H, 0, len(accounts))
	for _, account := range accounts {
		frozen, err := s.store.RecentRewardSum(username, account.Coin, cutoff)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		balances = append(balances, gin.H{
			"coin":           account.Coin,
			"balance":        account.Balance,
			"frozen":         frozen,
			"available":      account.Balance.Sub(frozen),
			"wallet_address": account.WalletAddress,
			"fee_rate":       account.FeeRate,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"username": username,
		"balances": balances,
	})
}

func (s *Server) getRewards(c *gin.Context) {
	username := c.Param("username")
	rewards, err := s.store.RewardHistory(username, limitParam(c, 50))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"username": username,
		"rewards":  rewards,
	})
}

func (s *Server) getPayments(c *gin.Context) {
	username := c.Param("username")
	payments, err := s.store.PaymentHistory(username, limitParam(c, 50))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"username": username,
		"payments": payments,
	})
}

func (s *Server) getBlocks(c *gin.Context) {
	blocks, err := s.store.Blocks(c.Query("coin"), models.BlockStatus(c.Query("status")), limitParam(c, 20))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"blocks": blocks})
}

func (s *Server) triggerPayout(c *gin.Context) {
	coin := c.Param("coin")
	if _, ok := s.cfg.Coin(coin); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown coin"})
		return
	}
	summary, err := s.dispatcher.RunPayoutCycle(c.Request.Context(), coin)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) triggerValidation(c *gin.Context) {
	coin := c.Param("coin")
	checker, ok := s.validators[coin]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No validator for coin"})
		return
	}
	if err := checker.CheckNext(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// getPaymentStatus is the reconciliation surface for payout attempts: it
// returns the Payment row and, when a txid was recorded, the wallet's view of
// the transfer. A pending row without a txid means the crash happened before
// the transfer was broadcast.
func (s *Server) getPaymentStatus(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payment id"})
		return
	}
	payment, err := s.store.Payment(uint(id))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if payment == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
		return
	}

	resp := gin.H{"payment": payment}
	if payment.TxID != "" {
		if w, ok := s.wallets[payment.Coin]; ok {
			status, err := w.TransferStatus(c.Request.Context(), payment.TxID)
			if err != nil {
				resp["transfer_error"] = err.Error()
			} else {
				resp["transfer"] = gin.H{
					"txid":          status.TxID,
					"state":         status.State,
					"confirmations": status.Confirmations,
				}
			}
		}
	}
	c.JSON(http.StatusOK, resp)
}

func limitParam(c *gin.Context, fallback int) int {
	raw := c.Query("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}
