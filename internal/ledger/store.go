package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tari-cpu/tpool/internal/models"
)

// ErrInsufficientBalance reports a balance mutation that would take an
// account below zero. The enclosing transaction must abort.
var ErrInsufficientBalance = errors.New("insufficient account balance")

// Store is the durable relational ledger holding Account, Block, Reward and
// Payment rows. Every logical operation (a settlement, a rollback, a payout
// attempt) runs inside a single transaction; partial writes are never
// committed.
type Store struct {
	db *gorm.DB
}

// Open connects to Postgres, applies connection pool limits and migrates the
// schema.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(25)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	store := &Store{db: db}
	if err := store.Migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

// NewStore wraps an existing gorm handle. Tests use it with in-memory SQLite.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&models.Account{}, &models.Block{}, &models.Reward{}, &models.Payment{})
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Transaction runs fn inside one database transaction.
func (s *Store) Transaction(fn func(tx *gorm.DB) error) error {
	return s.db.Transaction(fn)
}

// FindBlock returns the Block for (coin, height), or nil when none exists.
func (s *Store) FindBlock(coin string, height uint64) (*models.Block, error) {
	var block models.Block
	err := s.db.First(&block, "coin = ? AND height = ?", coin, height).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &block, nil
}

// OldestPendingBlock returns the oldest Pending block for a coin, or nil when
// there is nothing to validate.
func (s *Store) OldestPendingBlock(coin string) (*models.Block, error) {
	var block models.Block
	err := s.db.Where("coin = ? AND status = ?", coin, models.BlockPending).
		Order("height ASC").First(&block).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &block, nil
}

// Blocks lists blocks newest first, optionally filtered by coin and status.
func (s *Store) Blocks(coin string, status models.BlockStatus, limit int) ([]models.Block, error) {
	q := s.db.Order("created_at DESC").Limit(limit)
	if coin != "" {
		q = q.Where("coin = ?", coin)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var blocks []models.Block
	err := q.Find(&blocks).Error
	return blocks, err
}

// Accounts returns every balance row for one user.
func (s *Store) Accounts(username string) ([]models.Account, error) {
	var accounts []models.Account
	err := s.db.Where("username = ?", username).Find(&accounts).Error
	return accounts, err
}

// EligibleAccounts returns accounts for one coin whose raw balance reaches
// min and that have a payout address set, largest balance first. The freeze
// window is applied by the caller on top of this.
func (s *Store) EligibleAccounts(coin string, min decimal.Decimal) ([]models.Account, error) {
	var accounts []models.Account
	err := s.db.Where("coin = ? AND balance >= ? AND wallet_address <> ''", coin, min).
		Order("balance DESC").Find(&accounts).Error
	return accounts, err
}

// RewardsForBlock returns every Reward row tied to one block.
func (s *Store) RewardsForBlock(coin string, height uint64) ([]models.Reward, error) {
	var rewards []models.Reward
	err := s.db.Where("coin = ? AND height = ?", coin, height).Find(&rewards).Error
	return rewards, err
}

// RecentRewardSum sums one user's rewards credited at or after since. This is
// the frozen amount excluded from payout eligibility.
func (s *Store) RecentRewardSum(username, coin string, since time.Time) (decimal.Decimal, error) {
	row := s.db.Model(&models.Reward{}).
		Where("username = ? AND coin = ? AND created_at >= ?", username, coin, since).
		Select("COALESCE(SUM(amount), 0)").Row()
	var sum decimal.Decimal
	if err := row.Scan(&sum); err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

// RewardHistory lists one user's rewards newest first.
func (s *Store) RewardHistory(username string, limit int) ([]models.Reward, error) {
	var rewards []models.Reward
	err := s.db.Where("username = ?", username).
		Order("created_at DESC").Limit(limit).Find(&rewards).Error
	return rewards, err
}

// Payment returns one payout attempt by id, or nil when it does not exist.
func (s *Store) Payment(id uint) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.First(&payment, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// PaymentHistory lists one user's payments newest first.
func (s *Store) PaymentHistory(username string, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.db.Where("username = ?", username).
		Order("created_at DESC").Limit(limit).Find(&payments).Error
	return payments, err
}

// EnsureAccount upserts the Account row for (username, coin) inside tx,
// applying defaultFee on first creation.
func EnsureAccount(tx *gorm.DB, username, coin string, defaultFee float64) (*models.Account, error) {
	account := models.Account{
		Username: username,
		Coin:     coin,
		Balance:  decimal.Zero,
		FeeRate:  defaultFee,
	}
	err := tx.Where("username = ? AND coin = ?", username, coin).
		FirstOrCreate(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// AddBalance applies a signed delta to one account's balance inside tx. The
// delta and the non-negative guard are evaluated in SQL, on the committed row,
// so concurrent transactions mutating the same account can never lose an
// update to a stale read. A delta that would take the balance negative matches
// no row and aborts with ErrInsufficientBalance.
func AddBalance(tx *gorm.DB, username, coin string, delta decimal.Decimal) error {
	res := tx.Model(&models.Account{}).
		Where("username = ? AND coin = ? AND balance + ? >= 0", username, coin, delta).
		Update("balance", gorm.Expr("balance + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := tx.Model(&models.Account{}).
			Where("username = ? AND coin = ?", username, coin).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return gorm.ErrRecordNotFound
		}
		return ErrInsufficientBalance
	}
	return nil
}
