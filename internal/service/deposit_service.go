package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"walletservice/internal/gateway/vnpay"
	"walletservice/internal/model"
	"walletservice/internal/repository"
	"walletservice/pkg/idgen"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	descDepositPending  = "Awaiting VNPay payment"
	descDepositSuccess  = "Deposit confirmed by VNPay"
	descInvalidChecksum = "Invalid Checksum"
	descInvalidAmount   = "Invalid Amount"
	descDepositExpired  = "Deposit expired"
)

// errAlreadyConfirmed aborts a callback transaction that found the log
// already out of PENDING.
var errAlreadyConfirmed = errors.New("deposit already confirmed")

type DepositService struct {
	base
	mutator *BalanceMutator
}

func NewDepositService(deps Deps) *DepositService {
	return &DepositService{
		base:    newBase(deps, "deposit_service"),
		mutator: NewBalanceMutator(deps.Store),
	}
}

type DepositResponse struct {
	TransactionLogID int64           `json:"transactionLogId"`
	TxnRef           string          `json:"txnRef"`
	Amount           decimal.Decimal `json:"amount"`
	Status           string          `json:"status"`
}

// CreateDeposit opens a PENDING deposit and returns the reference to hand to
// the gateway. A user without a wallet gets one. Building the payment URL is
// left to the caller.
func (s *DepositService) CreateDeposit(ctx context.Context, userID string, amount decimal.Decimal) (*DepositResponse, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	wallet, err := s.store.Wallets.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}

	log := &model.TransactionLog{
		WalletID:    wallet.ID,
		Amount:      amount,
		Type:        model.TransactionTypeDeposit,
		Status:      model.TransactionStatusPending,
		Description: descDepositPending,
	}
	var ref vnpay.TxnRef
	err = s.store.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.store.TransactionLogs.Create(ctx, tx, log); err != nil {
			return fmt.Errorf("create deposit log: %w", err)
		}
		ref = vnpay.TxnRef{LogID: log.ID, Suffix: idgen.GenerateTxnSuffix()}
		return s.store.TransactionLogs.SetReference(ctx, tx, log.ID, ref.String())
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("deposit created",
		zap.String("user_id", userID),
		zap.Int64("log_id", log.ID),
		zap.String("txn_ref", ref.String()),
		zap.String("amount", amount.String()))

	return &DepositResponse{
		TransactionLogID: log.ID,
		TxnRef:           ref.String(),
		Amount:           amount,
		Status:           log.Status,
	}, nil
}

// GetDeposit returns a deposit log by id.
func (s *DepositService) GetDeposit(ctx context.Context, logID int64) (*model.TransactionLog, error) {
	log, err := s.store.TransactionLogs.GetByID(ctx, logID)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionLogNotFound) {
			return nil, ErrDepositNotFound
		}
		return nil, err
	}
	if log.Type != model.TransactionTypeDeposit {
		return nil, ErrDepositNotFound
	}
	return log, nil
}

// HandleCallback processes one VNPay IPN call. It never returns an error:
// every outcome, including internal failures, is expressed as an Ack. A
// deposit credits its wallet at most once however often the call is replayed.
func (s *DepositService) HandleCallback(ctx context.Context, params map[string]string) vnpay.Ack {
	rawRef := params[vnpay.ParamTxnRef]
	ref, refErr := vnpay.ParseTxnRef(rawRef)
	logger := s.logger.With(zap.String("txn_ref", rawRef))

	if !vnpay.Verify(params, s.cfg.VNPay.HashSecret) {
		logger.Warn("callback signature mismatch")
		if refErr == nil {
			s.failDeposit(ctx, ref.LogID, rawRef, descInvalidChecksum)
		}
		return vnpay.AckInvalidChecksum
	}

	if refErr != nil {
		logger.Warn("unparseable transaction reference", zap.Error(refErr))
		return vnpay.AckOrderNotFound
	}

	log, err := s.store.TransactionLogs.GetByID(ctx, ref.LogID)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionLogNotFound) {
			logger.Warn("deposit not found")
			return vnpay.AckOrderNotFound
		}
		logger.Error("load deposit", zap.Error(err))
		return vnpay.AckUnknownError
	}
	if log.Type != model.TransactionTypeDeposit {
		logger.Warn("reference points at a non-deposit log", zap.String("type", log.Type))
		return vnpay.AckOrderNotFound
	}

	if log.Status != model.TransactionStatusPending {
		logger.Info("deposit already confirmed", zap.String("status", log.Status))
		return vnpay.AckAlreadyConfirmed
	}

	if !amountMatches(params[vnpay.ParamAmount], log.Amount) {
		logger.Warn("callback amount mismatch",
			zap.String("vnp_amount", params[vnpay.ParamAmount]),
			zap.String("expected", log.Amount.String()))
		s.failDeposit(ctx, log.ID, rawRef, descInvalidAmount)
		return vnpay.AckInvalidAmount
	}

	responseCode := params[vnpay.ParamResponseCode]
	var credited *model.Wallet

	err = s.withWalletLocks(ctx, []int64{log.WalletID}, func() error {
		return s.retryOnConflict(ctx, func() error {
			credited = nil
			return s.store.Transaction(ctx, func(tx *gorm.DB) error {
				locked, err := s.store.TransactionLogs.GetByIDForUpdate(ctx, tx, log.ID)
				if err != nil {
					return err
				}
				if locked.Status != model.TransactionStatusPending {
					return errAlreadyConfirmed
				}

				if responseCode == vnpay.ResponseCodeSuccess {
					wallet, err := s.confirmDeposit(ctx, tx, locked, rawRef, params[vnpay.ParamTransactionNo])
					if err != nil {
						return err
					}
					credited = wallet
					return nil
				}
				return s.rejectDeposit(ctx, tx, locked, rawRef, fmt.Sprintf("Transaction failed at gateway (code %s)", responseCode))
			})
		})
	})

	switch {
	case err == nil:
	case errors.Is(err, errAlreadyConfirmed), errors.Is(err, repository.ErrStatusConflict):
		logger.Info("deposit confirmed concurrently")
		return vnpay.AckAlreadyConfirmed
	default:
		logger.Error("process callback", zap.Error(err))
		return vnpay.AckUnknownError
	}

	if credited != nil {
		s.afterCommit(ctx, credited.UserID)
		logger.Info("deposit credited",
			zap.Int64("wallet_id", credited.ID),
			zap.String("amount", log.Amount.String()),
			zap.String("new_balance", credited.Balance.String()))
	} else {
		s.afterCommit(ctx)
		logger.Info("deposit failed at gateway", zap.String("response_code", responseCode))
	}
	// gateway failures are acknowledged as received
	return vnpay.AckConfirmSuccess
}

func (s *DepositService) confirmDeposit(ctx context.Context, tx *gorm.DB, log *model.TransactionLog, rawRef, gatewayRef string) (*model.Wallet, error) {
	wallet, err := s.mutator.Credit(ctx, tx, log.WalletID, log.Amount, Source{
		Type:   model.SourceDeposit,
		ID:     log.ID,
		Remark: "VNPay deposit " + rawRef,
	})
	if err != nil {
		return nil, err
	}

	if err := s.store.TransactionLogs.TransitionStatus(ctx, tx, log.ID,
		model.TransactionStatusPending, model.TransactionStatusSuccess, descDepositSuccess); err != nil {
		return nil, err
	}

	now := time.Now()
	payment := &model.Payment{
		WalletID:         wallet.ID,
		TransactionLogID: log.ID,
		Amount:           log.Amount,
		Method:           model.PaymentMethodVNPay,
		TransactionID:    rawRef,
		GatewayRef:       gatewayRef,
		PaymentStatus:    model.PaymentStatusSuccess,
		PaidAt:           now,
	}
	if err := s.store.Payments.Create(ctx, tx, payment); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	if err := s.enqueueBalanceUpdate(ctx, tx, wallet); err != nil {
		return nil, err
	}
	if err := s.enqueueCompletion(ctx, tx, model.TransactionCompletedEvent{
		TransactionID: rawRef,
		Status:        model.CompletionStatusCompleted,
		CompletedAt:   now,
	}); err != nil {
		return nil, err
	}
	return wallet, nil
}

func (s *DepositService) rejectDeposit(ctx context.Context, tx *gorm.DB, log *model.TransactionLog, rawRef, reason string) error {
	if err := s.store.TransactionLogs.TransitionStatus(ctx, tx, log.ID,
		model.TransactionStatusPending, model.TransactionStatusFailed, reason); err != nil {
		return err
	}
	return s.enqueueCompletion(ctx, tx, model.TransactionCompletedEvent{
		TransactionID: rawRef,
		Status:        model.CompletionStatusFailed,
		Message:       reason,
		CompletedAt:   time.Now(),
	})
}

// failDeposit moves a PENDING deposit to FAILED. A log that is missing or
// already terminal is left alone.
func (s *DepositService) failDeposit(ctx context.Context, logID int64, rawRef, reason string) {
	err := s.store.Transaction(ctx, func(tx *gorm.DB) error {
		log, err := s.store.TransactionLogs.GetByIDForUpdate(ctx, tx, logID)
		if err != nil {
			return err
		}
		if log.Type != model.TransactionTypeDeposit || log.Status != model.TransactionStatusPending {
			return errAlreadyConfirmed
		}
		return s.rejectDeposit(ctx, tx, log, rawRef, reason)
	})

	switch {
	case err == nil:
		s.afterCommit(ctx)
		s.logger.Info("deposit marked failed", zap.Int64("log_id", logID), zap.String("reason", reason))
	case errors.Is(err, repository.ErrTransactionLogNotFound),
		errors.Is(err, errAlreadyConfirmed),
		errors.Is(err, repository.ErrStatusConflict):
	default:
		s.logger.Error("mark deposit failed", zap.Int64("log_id", logID), zap.Error(err))
	}
}

// ExpireDeposit fails a deposit that stayed PENDING past its deadline.
// It reports false when the deposit was already settled.
func (s *DepositService) ExpireDeposit(ctx context.Context, log *model.TransactionLog) (bool, error) {
	err := s.store.Transaction(ctx, func(tx *gorm.DB) error {
		return s.rejectDeposit(ctx, tx, log, depositRef(log), descDepositExpired)
	})
	if errors.Is(err, repository.ErrStatusConflict) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.afterCommit(ctx)
	return true, nil
}

// depositRef is the gateway reference a deposit was issued under.
func depositRef(log *model.TransactionLog) string {
	if log.Reference != nil {
		return *log.Reference
	}
	return strconv.FormatInt(log.ID, 10)
}

// amountMatches reports whether the gateway amount, in hundredths, is exactly
// the deposit amount.
func amountMatches(raw string, expected decimal.Decimal) bool {
	got, err := decimal.NewFromString(raw)
	if err != nil || !got.IsInteger() {
		return false
	}
	return got.Equal(expected.Shift(2))
}
