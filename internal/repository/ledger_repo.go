package repository

import (
	"context"
	"errors"

	"walletservice/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Create(ctx context.Context, tx *gorm.DB, entry *model.LedgerEntry) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(entry).Error
}

func (r *LedgerRepository) SumByWalletID(ctx context.Context, walletID int64) (decimal.Decimal, error) {
	return sumAmounts(r.db.WithContext(ctx).Model(&model.LedgerEntry{}).Where("wallet_id = ?", walletID))
}

// LastByWalletID returns nil, nil for a wallet without entries.
func (r *LedgerRepository) LastByWalletID(ctx context.Context, walletID int64) (*model.LedgerEntry, error) {
	var entry model.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("id DESC").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *LedgerRepository) ListByWalletID(ctx context.Context, walletID int64, page, pageSize int) ([]*model.LedgerEntry, int64, error) {
	var entries []*model.LedgerEntry
	var total int64

	query := r.db.WithContext(ctx).Model(&model.LedgerEntry{}).Where("wallet_id = ?", walletID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error

	return entries, total, err
}
