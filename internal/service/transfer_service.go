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

// errDuplicateTransfer aborts a transfer whose reference was committed by a
// concurrent caller.
var errDuplicateTransfer = errors.New("transfer already applied")

// TransferService moves funds between two wallets, e.g. to settle a
// marketplace trade.
type TransferService struct {
	base
	mutator *BalanceMutator
}

func NewTransferService(deps Deps) *TransferService {
	return &TransferService{
		base:    newBase(deps, "transfer_service"),
		mutator: NewBalanceMutator(deps.Store),
	}
}

type TransferRequest struct {
	ReferenceID   string          `json:"referenceId" binding:"required"`
	FromUserID    string          `json:"fromUserId" binding:"required"`
	ToUserID      string          `json:"toUserId" binding:"required"`
	Amount        decimal.Decimal `json:"amount"`
	CertificateID *string         `json:"certificateId,omitempty"`
}

type TransferResult struct {
	ReferenceID  string          `json:"referenceId"`
	FromWalletID int64           `json:"fromWalletId"`
	ToWalletID   int64           `json:"toWalletId"`
	Amount       decimal.Decimal `json:"amount"`
	Status       string          `json:"status"`
	Duplicate    bool            `json:"duplicate"`
}

func outRef(referenceID string) string { return referenceID + ":OUT" }
func inRef(referenceID string) string  { return referenceID + ":IN" }

// Transfer debits the payer and credits the payee in one transaction. A
// reference that was already applied returns the earlier result with
// Duplicate set and moves no money.
func (s *TransferService) Transfer(ctx context.Context, req *TransferRequest) (*TransferResult, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	if req.FromUserID == req.ToUserID {
		return nil, ErrSameWallet
	}

	if existing, err := s.findApplied(ctx, nil, req.ReferenceID); err != nil || existing != nil {
		return existing, err
	}

	from, err := s.store.Wallets.GetByUserID(ctx, req.FromUserID)
	if err != nil {
		if errors.Is(err, repository.ErrWalletNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	to, err := s.store.Wallets.GetOrCreate(ctx, req.ToUserID)
	if err != nil {
		return nil, fmt.Errorf("get payee wallet: %w", err)
	}

	var payer, payee *model.Wallet
	err = s.withWalletLocks(ctx, []int64{from.ID, to.ID}, func() error {
		return s.retryOnConflict(ctx, func() error {
			return s.store.Transaction(ctx, func(tx *gorm.DB) error {
				existing, err := s.findApplied(ctx, tx, req.ReferenceID)
				if err != nil {
					return err
				}
				if existing != nil {
					return errDuplicateTransfer
				}

				payer, payee, err = s.apply(ctx, tx, req, from.ID, to.ID)
				return err
			})
		})
	})
	// a caller locking other wallets may commit the reference first; the
	// unique index catches it after the in-transaction check
	if errors.Is(err, errDuplicateTransfer) || errors.Is(err, repository.ErrDuplicateReference) {
		existing, findErr := s.findApplied(ctx, nil, req.ReferenceID)
		if findErr != nil {
			return nil, findErr
		}
		if existing == nil {
			return nil, fmt.Errorf("transfer %s: %w", req.ReferenceID, err)
		}
		return existing, nil
	}
	if err != nil {
		if !errors.Is(err, ErrInsufficientBalance) {
			s.logger.Error("transfer", zap.String("reference_id", req.ReferenceID), zap.Error(err))
		}
		return nil, err
	}

	s.afterCommit(ctx, payer.UserID, payee.UserID)
	s.logger.Info("transfer applied",
		zap.String("reference_id", req.ReferenceID),
		zap.String("from_user", payer.UserID),
		zap.String("to_user", payee.UserID),
		zap.String("amount", req.Amount.String()))

	return &TransferResult{
		ReferenceID:  req.ReferenceID,
		FromWalletID: payer.ID,
		ToWalletID:   payee.ID,
		Amount:       req.Amount,
		Status:       model.CompletionStatusCompleted,
	}, nil
}

func (s *TransferService) apply(ctx context.Context, tx *gorm.DB, req *TransferRequest, fromID, toID int64) (*model.Wallet, *model.Wallet, error) {
	out := &model.TransactionLog{
		WalletID:    fromID,
		Amount:      req.Amount,
		Type:        model.TransactionTypeTransferOut,
		Status:      model.TransactionStatusSuccess,
		Description: fmt.Sprintf("Transfer to %s", req.ToUserID),
		Reference:   stringPtr(outRef(req.ReferenceID)),
	}
	if err := s.store.TransactionLogs.Create(ctx, tx, out); err != nil {
		return nil, nil, fmt.Errorf("create transfer-out log: %w", err)
	}
	payer, err := s.mutator.Debit(ctx, tx, fromID, req.Amount, Source{
		Type:   model.SourceTransferOut,
		ID:     out.ID,
		Remark: req.ReferenceID,
	})
	if err != nil {
		return nil, nil, err
	}

	in := &model.TransactionLog{
		WalletID:    toID,
		Amount:      req.Amount,
		Type:        model.TransactionTypeTransferIn,
		Status:      model.TransactionStatusSuccess,
		Description: fmt.Sprintf("Transfer from %s", req.FromUserID),
		Reference:   stringPtr(inRef(req.ReferenceID)),
	}
	if err := s.store.TransactionLogs.Create(ctx, tx, in); err != nil {
		return nil, nil, fmt.Errorf("create transfer-in log: %w", err)
	}
	payee, err := s.mutator.Credit(ctx, tx, toID, req.Amount, Source{
		Type:   model.SourceTransferIn,
		ID:     in.ID,
		Remark: req.ReferenceID,
	})
	if err != nil {
		return nil, nil, err
	}

	if err := s.enqueueBalanceUpdate(ctx, tx, payer); err != nil {
		return nil, nil, err
	}
	if err := s.enqueueBalanceUpdate(ctx, tx, payee); err != nil {
		return nil, nil, err
	}
	if err := s.enqueueCompletion(ctx, tx, model.TransactionCompletedEvent{
		TransactionID: req.ReferenceID,
		Status:        model.CompletionStatusCompleted,
		CertificateID: req.CertificateID,
		CompletedAt:   time.Now(),
	}); err != nil {
		return nil, nil, err
	}
	return payer, payee, nil
}

// findApplied rebuilds the result of an already applied transfer, or returns
// nil when referenceID is unused.
func (s *TransferService) findApplied(ctx context.Context, tx *gorm.DB, referenceID string) (*TransferResult, error) {
	out, err := s.store.TransactionLogs.GetByReference(ctx, tx, outRef(referenceID))
	if err != nil || out == nil {
		return nil, err
	}
	in, err := s.store.TransactionLogs.GetByReference(ctx, tx, inRef(referenceID))
	if err != nil {
		return nil, err
	}
	if in == nil {
		return nil, fmt.Errorf("transfer %s has no incoming leg", referenceID)
	}
	return &TransferResult{
		ReferenceID:  referenceID,
		FromWalletID: out.WalletID,
		ToWalletID:   in.WalletID,
		Amount:       out.Amount,
		Status:       model.CompletionStatusCompleted,
		Duplicate:    true,
	}, nil
}

func stringPtr(s string) *string {
	return &s
}
