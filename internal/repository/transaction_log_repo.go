package repository

import (
	"context"
	"errors"
	"time"

	"walletservice/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrTransactionLogNotFound = errors.New("transaction log not found")
	// ErrStatusConflict means a conditional status update found the row in
	// a different state than expected.
	ErrStatusConflict = errors.New("status already changed")
	// ErrDuplicateReference means another log already carries the reference.
	ErrDuplicateReference = errors.New("transaction reference already used")
)

type TransactionLogRepository struct {
	db *gorm.DB
}

func NewTransactionLogRepository(db *gorm.DB) *TransactionLogRepository {
	return &TransactionLogRepository{db: db}
}

func (r *TransactionLogRepository) Create(ctx context.Context, tx *gorm.DB, log *model.TransactionLog) error {
	if tx == nil {
		tx = r.db
	}
	err := tx.WithContext(ctx).Create(log).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateReference
	}
	return err
}

func (r *TransactionLogRepository) GetByID(ctx context.Context, id int64) (*model.TransactionLog, error) {
	var log model.TransactionLog
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionLogNotFound
		}
		return nil, err
	}
	return &log, nil
}

func (r *TransactionLogRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.TransactionLog, error) {
	var log model.TransactionLog
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionLogNotFound
		}
		return nil, err
	}
	return &log, nil
}

// GetByReference returns nil, nil when no log carries the reference.
func (r *TransactionLogRepository) GetByReference(ctx context.Context, tx *gorm.DB, reference string) (*model.TransactionLog, error) {
	if tx == nil {
		tx = r.db
	}
	var log model.TransactionLog
	err := tx.WithContext(ctx).Where("reference = ?", reference).First(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &log, nil
}

func (r *TransactionLogRepository) SetReference(ctx context.Context, tx *gorm.DB, id int64, reference string) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.TransactionLog{}).
		Where("id = ?", id).
		Update("reference", reference).Error
}

// TransitionStatus moves a log from one status to another. The WHERE on the
// current status makes the transition single-fire under concurrency.
func (r *TransactionLogRepository) TransitionStatus(ctx context.Context, tx *gorm.DB, id int64, fromStatus, toStatus, description string) error {
	if !model.CanTransitionTransaction(fromStatus, toStatus) {
		return ErrStatusConflict
	}
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.TransactionLog{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(map[string]interface{}{
			"status":      toStatus,
			"description": description,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *TransactionLogRepository) ListExpiredPending(ctx context.Context, txType string, before time.Time, limit int) ([]*model.TransactionLog, error) {
	var logs []*model.TransactionLog
	err := r.db.WithContext(ctx).
		Where("type = ? AND status = ? AND created_at < ?", txType, model.TransactionStatusPending, before).
		Order("id ASC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

func (r *TransactionLogRepository) ListByWalletID(ctx context.Context, walletID int64, page, pageSize int) ([]*model.TransactionLog, int64, error) {
	var logs []*model.TransactionLog
	var total int64

	query := r.db.WithContext(ctx).Model(&model.TransactionLog{}).Where("wallet_id = ?", walletID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&logs).Error

	return logs, total, err
}

// SumByTypeAndStatus adds up the log amounts of one wallet.
func (r *TransactionLogRepository) SumByTypeAndStatus(ctx context.Context, walletID int64, txType, status string) (decimal.Decimal, error) {
	return sumAmounts(r.db.WithContext(ctx).Model(&model.TransactionLog{}).Where("wallet_id = ? AND type = ? AND status = ?", walletID, txType, status))
}
