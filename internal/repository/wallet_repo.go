package repository

import (
	"context"
	"errors"

	"walletservice/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrWalletNotFound = errors.New("wallet not found")
	ErrOptimisticLock = errors.New("wallet version conflict, retry")
)

type WalletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

func (r *WalletRepository) Create(ctx context.Context, wallet *model.Wallet) error {
	return r.db.WithContext(ctx).Create(wallet).Error
}

func (r *WalletRepository) GetByUserID(ctx context.Context, userID string) (*model.Wallet, error) {
	var wallet model.Wallet
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

func (r *WalletRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Wallet, error) {
	var wallet model.Wallet
	err := r.conn(tx).WithContext(ctx).Where("id = ?", id).First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

// GetByIDForUpdate reads the wallet row with SELECT ... FOR UPDATE so the
// surrounding transaction owns it until commit.
func (r *WalletRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.Wallet, error) {
	var wallet model.Wallet
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

// UpdateBalance writes newBalance only if the row still carries
// expectedVersion, and bumps the version. A miss means another writer got
// there first and the caller must re-read.
func (r *WalletRepository) UpdateBalance(ctx context.Context, tx *gorm.DB, id int64, newBalance decimal.Decimal, expectedVersion int) error {
	result := tx.WithContext(ctx).
		Model(&model.Wallet{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(map[string]interface{}{
			"balance": newBalance,
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}
	return nil
}

func (r *WalletRepository) GetOrCreate(ctx context.Context, userID string) (*model.Wallet, error) {
	wallet, err := r.GetByUserID(ctx, userID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, ErrWalletNotFound) {
		return nil, err
	}

	newWallet := &model.Wallet{
		UserID:  userID,
		Balance: decimal.Zero,
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(newWallet).Error
	if err != nil {
		return nil, err
	}

	return r.GetByUserID(ctx, userID)
}

// ListAfterID pages through wallets by primary key.
func (r *WalletRepository) ListAfterID(ctx context.Context, afterID int64, limit int) ([]*model.Wallet, error) {
	var wallets []*model.Wallet
	err := r.db.WithContext(ctx).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&wallets).Error
	return wallets, err
}
