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

var ErrWithdrawRequestNotFound = errors.New("withdraw request not found")

type WithdrawRepository struct {
	db *gorm.DB
}

func NewWithdrawRepository(db *gorm.DB) *WithdrawRepository {
	return &WithdrawRepository{db: db}
}

func (r *WithdrawRepository) Create(ctx context.Context, tx *gorm.DB, req *model.WithdrawRequest) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(req).Error
}

func (r *WithdrawRepository) GetByID(ctx context.Context, id int64) (*model.WithdrawRequest, error) {
	var req model.WithdrawRequest
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWithdrawRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}

func (r *WithdrawRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.WithdrawRequest, error) {
	var req model.WithdrawRequest
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWithdrawRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}

func (r *WithdrawRepository) TransitionStatus(ctx context.Context, tx *gorm.DB, id int64, fromStatus, toStatus string, processedAt time.Time) error {
	if !model.CanTransitionWithdraw(fromStatus, toStatus) {
		return ErrStatusConflict
	}
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.WithdrawRequest{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(map[string]interface{}{
			"status":       toStatus,
			"processed_at": &processedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *WithdrawRepository) ListByStatus(ctx context.Context, status string) ([]*model.WithdrawRequest, error) {
	var reqs []*model.WithdrawRequest
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("requested_at ASC, id ASC").
		Find(&reqs).Error
	return reqs, err
}

func (r *WithdrawRepository) ListByWalletID(ctx context.Context, walletID int64) ([]*model.WithdrawRequest, error) {
	var reqs []*model.WithdrawRequest
	err := r.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("requested_at DESC, id DESC").
		Find(&reqs).Error
	return reqs, err
}

func (r *WithdrawRepository) SumApprovedByWalletID(ctx context.Context, walletID int64) (decimal.Decimal, error) {
	return sumAmounts(r.db.WithContext(ctx).Model(&model.WithdrawRequest{}).Where("wallet_id = ? AND status = ?", walletID, model.WithdrawStatusApproved))
}
