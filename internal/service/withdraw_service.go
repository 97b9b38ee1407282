package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"walletservice/internal/model"
	"walletservice/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EligibilityChecker answers whether a user may withdraw right now.
// listing.Client is the production implementation.
type EligibilityChecker interface {
	CanWithdraw(ctx context.Context, userID string, amount decimal.Decimal) (bool, error)
}

type WithdrawService struct {
	base
	mutator     *BalanceMutator
	eligibility EligibilityChecker
}

func NewWithdrawService(deps Deps, eligibility EligibilityChecker) *WithdrawService {
	return &WithdrawService{
		base:        newBase(deps, "withdraw_service"),
		mutator:     NewBalanceMutator(deps.Store),
		eligibility: eligibility,
	}
}

type CreateWithdrawRequest struct {
	UserID            string          `json:"userId" binding:"required"`
	Amount            decimal.Decimal `json:"amount"`
	BankAccountNumber string          `json:"bankAccountNumber" binding:"required"`
	BankName          string          `json:"bankName" binding:"required"`
}

type WithdrawRequestResponse struct {
	RequestID         int64           `json:"requestId"`
	UserID            string          `json:"userId"`
	WalletID          int64           `json:"walletId"`
	Amount            decimal.Decimal `json:"amount"`
	BankAccountNumber string          `json:"bankAccountNumber"`
	BankName          string          `json:"bankName"`
	Status            string          `json:"status"`
	RequestedAt       time.Time       `json:"requestedAt"`
	ProcessedAt       *time.Time      `json:"processedAt"`
}

func toWithdrawResponse(req *model.WithdrawRequest) *WithdrawRequestResponse {
	return &WithdrawRequestResponse{
		RequestID:         req.ID,
		UserID:            req.UserID,
		WalletID:          req.WalletID,
		Amount:            req.Amount,
		BankAccountNumber: req.BankAccountNumber,
		BankName:          req.BankName,
		Status:            req.Status,
		RequestedAt:       req.RequestedAt,
		ProcessedAt:       req.ProcessedAt,
	}
}

func withdrawRef(id int64) string {
	return fmt.Sprintf("WITHDRAW_%d", id)
}

// CreateRequest files a PENDING withdraw request after the listing service
// allows it. The balance check here is advisory; approval re-checks under lock.
func (s *WithdrawService) CreateRequest(ctx context.Context, in *CreateWithdrawRequest) (*WithdrawRequestResponse, error) {
	if err := validateAmount(in.Amount); err != nil {
		return nil, err
	}

	wallet, err := s.store.Wallets.GetByUserID(ctx, in.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrWalletNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}

	allowed, err := s.eligibility.CanWithdraw(ctx, in.UserID, in.Amount)
	if err != nil {
		s.logger.Error("eligibility check failed", zap.String("user_id", in.UserID), zap.Error(err))
		return nil, ErrEligibilityUnavailable
	}
	if !allowed {
		s.logger.Warn("withdraw denied by listing service", zap.String("user_id", in.UserID))
		return nil, ErrWithdrawNotEligible
	}

	if wallet.Balance.LessThan(in.Amount) {
		return nil, ErrInsufficientBalance
	}

	req := &model.WithdrawRequest{
		UserID:            in.UserID,
		WalletID:          wallet.ID,
		Amount:            in.Amount,
		BankAccountNumber: in.BankAccountNumber,
		BankName:          in.BankName,
		Status:            model.WithdrawStatusPending,
		RequestedAt:       time.Now(),
	}
	if err := s.store.Withdraws.Create(ctx, nil, req); err != nil {
		return nil, fmt.Errorf("create withdraw request: %w", err)
	}

	s.logger.Info("withdraw request created",
		zap.Int64("request_id", req.ID),
		zap.String("user_id", req.UserID),
		zap.String("amount", req.Amount.String()))

	return toWithdrawResponse(req), nil
}

// ApproveRequest debits the wallet and closes the request as APPROVED. If
// the balance no longer covers the amount nothing changes and the request
// stays PENDING.
func (s *WithdrawService) ApproveRequest(ctx context.Context, requestID int64) (*WithdrawRequestResponse, error) {
	req, err := s.loadPending(ctx, requestID)
	if err != nil {
		return nil, err
	}

	var (
		approved *model.WithdrawRequest
		wallet   *model.Wallet
	)
	err = s.withWalletLocks(ctx, []int64{req.WalletID}, func() error {
		return s.retryOnConflict(ctx, func() error {
			return s.store.Transaction(ctx, func(tx *gorm.DB) error {
				locked, err := s.lockPending(ctx, tx, requestID)
				if err != nil {
					return err
				}

				wallet, err = s.mutator.Debit(ctx, tx, locked.WalletID, locked.Amount, Source{
					Type:   model.SourceWithdraw,
					ID:     locked.ID,
					Remark: fmt.Sprintf("Withdraw to %s %s", locked.BankName, locked.BankAccountNumber),
				})
				if err != nil {
					return err
				}

				now := time.Now()
				if err := s.store.Withdraws.TransitionStatus(ctx, tx, locked.ID,
					model.WithdrawStatusPending, model.WithdrawStatusApproved, now); err != nil {
					return err
				}
				locked.Status = model.WithdrawStatusApproved
				locked.ProcessedAt = &now

				if err := s.enqueueBalanceUpdate(ctx, tx, wallet); err != nil {
					return err
				}
				if err := s.enqueueCompletion(ctx, tx, model.TransactionCompletedEvent{
					TransactionID: withdrawRef(locked.ID),
					Status:        model.CompletionStatusCompleted,
					CompletedAt:   now,
				}); err != nil {
					return err
				}
				approved = locked
				return nil
			})
		})
	})
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, ErrRequestAlreadyProcessed
		}
		if !errors.Is(err, ErrInsufficientBalance) && !errors.Is(err, ErrRequestAlreadyProcessed) {
			s.logger.Error("approve withdraw", zap.Int64("request_id", requestID), zap.Error(err))
		}
		return nil, err
	}

	s.afterCommit(ctx, wallet.UserID)
	s.logger.Info("withdraw approved",
		zap.Int64("request_id", approved.ID),
		zap.String("amount", approved.Amount.String()),
		zap.String("new_balance", wallet.Balance.String()))

	return toWithdrawResponse(approved), nil
}

// RejectRequest closes the request as REJECTED without touching the balance.
func (s *WithdrawService) RejectRequest(ctx context.Context, requestID int64) (*WithdrawRequestResponse, error) {
	var rejected *model.WithdrawRequest
	err := s.store.Transaction(ctx, func(tx *gorm.DB) error {
		locked, err := s.lockPending(ctx, tx, requestID)
		if err != nil {
			return err
		}

		now := time.Now()
		if err := s.store.Withdraws.TransitionStatus(ctx, tx, locked.ID,
			model.WithdrawStatusPending, model.WithdrawStatusRejected, now); err != nil {
			return err
		}
		locked.Status = model.WithdrawStatusRejected
		locked.ProcessedAt = &now

		if err := s.enqueueCompletion(ctx, tx, model.TransactionCompletedEvent{
			TransactionID: withdrawRef(locked.ID),
			Status:        model.CompletionStatusFailed,
			Message:       "Withdraw request rejected",
			CompletedAt:   now,
		}); err != nil {
			return err
		}
		rejected = locked
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, ErrRequestAlreadyProcessed
		}
		return nil, err
	}

	s.afterCommit(ctx)
	s.logger.Info("withdraw rejected", zap.Int64("request_id", rejected.ID))

	return toWithdrawResponse(rejected), nil
}

func (s *WithdrawService) ListPending(ctx context.Context) ([]*WithdrawRequestResponse, error) {
	reqs, err := s.store.Withdraws.ListByStatus(ctx, model.WithdrawStatusPending)
	if err != nil {
		return nil, err
	}
	return toWithdrawResponses(reqs), nil
}

func (s *WithdrawService) GetRequest(ctx context.Context, requestID int64) (*WithdrawRequestResponse, error) {
	req, err := s.store.Withdraws.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrWithdrawRequestNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return toWithdrawResponse(req), nil
}

// ListByUser returns a user's requests, newest first.
func (s *WithdrawService) ListByUser(ctx context.Context, userID string) ([]*WithdrawRequestResponse, error) {
	wallet, err := s.store.Wallets.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrWalletNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	reqs, err := s.store.Withdraws.ListByWalletID(ctx, wallet.ID)
	if err != nil {
		return nil, err
	}
	return toWithdrawResponses(reqs), nil
}

func (s *WithdrawService) loadPending(ctx context.Context, requestID int64) (*model.WithdrawRequest, error) {
	req, err := s.store.Withdraws.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrWithdrawRequestNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	if req.Status != model.WithdrawStatusPending {
		return nil, ErrRequestAlreadyProcessed
	}
	return req, nil
}

func (s *WithdrawService) lockPending(ctx context.Context, tx *gorm.DB, requestID int64) (*model.WithdrawRequest, error) {
	req, err := s.store.Withdraws.GetByIDForUpdate(ctx, tx, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrWithdrawRequestNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	if req.Status != model.WithdrawStatusPending {
		return nil, ErrRequestAlreadyProcessed
	}
	return req, nil
}

func toWithdrawResponses(reqs []*model.WithdrawRequest) []*WithdrawRequestResponse {
	out := make([]*WithdrawRequestResponse, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, toWithdrawResponse(req))
	}
	return out
}
