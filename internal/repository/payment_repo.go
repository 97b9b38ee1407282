package repository

import (
	"context"
	"errors"

	"walletservice/internal/model"

	"gorm.io/gorm"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, tx *gorm.DB, payment *model.Payment) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(payment).Error
}

// GetByTransactionID returns nil, nil when the gateway reference is unknown.
func (r *PaymentRepository) GetByTransactionID(ctx context.Context, transactionID string) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

func (r *PaymentRepository) ListByWalletID(ctx context.Context, walletID int64) ([]*model.Payment, error) {
	var payments []*model.Payment
	err := r.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("paid_at DESC").
		Find(&payments).Error
	return payments, err
}
