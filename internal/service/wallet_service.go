package service

import (
	"context"
	"errors"
	"fmt"

	"walletservice/internal/model"
	"walletservice/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type WalletService struct {
	base
}

func NewWalletService(deps Deps) *WalletService {
	return &WalletService{base: newBase(deps, "wallet_service")}
}

func (s *WalletService) GetOrCreateWallet(ctx context.Context, userID string) (*model.Wallet, error) {
	return s.store.Wallets.GetOrCreate(ctx, userID)
}

// GetBalance serves from the balance cache when it can. Cache errors fall
// back to the database.
func (s *WalletService) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	if s.cache != nil {
		balance, ok, err := s.cache.Get(ctx, userID)
		if err != nil {
			s.logger.Warn("read balance cache", zap.String("user_id", userID), zap.Error(err))
		} else if ok {
			return balance, nil
		}
	}

	wallet, err := s.store.Wallets.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrWalletNotFound) {
			return decimal.Zero, ErrWalletNotFound
		}
		return decimal.Zero, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, userID, wallet.Balance); err != nil {
			s.logger.Warn("write balance cache", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return wallet.Balance, nil
}

type TransactionPage struct {
	List     []*model.TransactionLog `json:"list"`
	Total    int64                   `json:"total"`
	Page     int                     `json:"page"`
	PageSize int                     `json:"pageSize"`
}

func (s *WalletService) ListTransactions(ctx context.Context, userID string, page, pageSize int) (*TransactionPage, error) {
	wallet, err := s.walletOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	page, pageSize = normalizePage(page, pageSize)
	logs, total, err := s.store.TransactionLogs.ListByWalletID(ctx, wallet.ID, page, pageSize)
	if err != nil {
		return nil, err
	}
	return &TransactionPage{List: logs, Total: total, Page: page, PageSize: pageSize}, nil
}

type LedgerPage struct {
	List     []*model.LedgerEntry `json:"list"`
	Total    int64                `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"pageSize"`
}

func (s *WalletService) ListLedger(ctx context.Context, userID string, page, pageSize int) (*LedgerPage, error) {
	wallet, err := s.walletOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	page, pageSize = normalizePage(page, pageSize)
	entries, total, err := s.store.Ledger.ListByWalletID(ctx, wallet.ID, page, pageSize)
	if err != nil {
		return nil, err
	}
	return &LedgerPage{List: entries, Total: total, Page: page, PageSize: pageSize}, nil
}

func (s *WalletService) ListPayments(ctx context.Context, userID string) ([]*model.Payment, error) {
	wallet, err := s.walletOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.store.Payments.ListByWalletID(ctx, wallet.ID)
}

// ReconcileReport compares the stored balance with the journal and with the
// balance implied by the business records.
type ReconcileReport struct {
	WalletID         int64           `json:"walletId"`
	UserID           string          `json:"userId"`
	Balance          decimal.Decimal `json:"balance"`
	LedgerSum        decimal.Decimal `json:"ledgerSum"`
	ProjectedBalance decimal.Decimal `json:"projectedBalance"`
	LastEntryNo      string          `json:"lastEntryNo,omitempty"`
	Consistent       bool            `json:"consistent"`
}

// Reconcile checks balance == Σ journal == Σ deposits + Σ transfers in
// - Σ transfers out - Σ approved withdrawals. It holds the wallet lock while
// reading, so no balance write lands between the reads.
func (s *WalletService) Reconcile(ctx context.Context, walletID int64) (*ReconcileReport, error) {
	var report *ReconcileReport
	err := s.withWalletLocks(ctx, []int64{walletID}, func() error {
		var err error
		report, err = s.reconcile(ctx, walletID)
		return err
	})
	return report, err
}

func (s *WalletService) reconcile(ctx context.Context, walletID int64) (*ReconcileReport, error) {
	wallet, err := s.store.Wallets.GetByID(ctx, nil, walletID)
	if err != nil {
		if errors.Is(err, repository.ErrWalletNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}

	ledgerSum, err := s.store.Ledger.SumByWalletID(ctx, wallet.ID)
	if err != nil {
		return nil, fmt.Errorf("sum ledger: %w", err)
	}

	logs := s.store.TransactionLogs
	deposits, err := logs.SumByTypeAndStatus(ctx, wallet.ID, model.TransactionTypeDeposit, model.TransactionStatusSuccess)
	if err != nil {
		return nil, fmt.Errorf("sum deposits: %w", err)
	}
	transfersIn, err := logs.SumByTypeAndStatus(ctx, wallet.ID, model.TransactionTypeTransferIn, model.TransactionStatusSuccess)
	if err != nil {
		return nil, fmt.Errorf("sum transfers in: %w", err)
	}
	transfersOut, err := logs.SumByTypeAndStatus(ctx, wallet.ID, model.TransactionTypeTransferOut, model.TransactionStatusSuccess)
	if err != nil {
		return nil, fmt.Errorf("sum transfers out: %w", err)
	}
	withdrawn, err := s.store.Withdraws.SumApprovedByWalletID(ctx, wallet.ID)
	if err != nil {
		return nil, fmt.Errorf("sum withdrawals: %w", err)
	}

	report := &ReconcileReport{
		WalletID:         wallet.ID,
		UserID:           wallet.UserID,
		Balance:          wallet.Balance,
		LedgerSum:        ledgerSum,
		ProjectedBalance: deposits.Add(transfersIn).Sub(transfersOut).Sub(withdrawn),
	}

	last, err := s.store.Ledger.LastByWalletID(ctx, wallet.ID)
	if err != nil {
		return nil, fmt.Errorf("last ledger entry: %w", err)
	}
	lastMatches := true
	if last != nil {
		report.LastEntryNo = last.EntryNo
		lastMatches = last.BalanceAfter.Equal(wallet.Balance)
	}

	report.Consistent = lastMatches &&
		wallet.Balance.Equal(ledgerSum) &&
		wallet.Balance.Equal(report.ProjectedBalance)

	if !report.Consistent {
		s.logger.Error("wallet balance diverges from records",
			zap.Int64("wallet_id", wallet.ID),
			zap.String("balance", wallet.Balance.String()),
			zap.String("ledger_sum", ledgerSum.String()),
			zap.String("projected", report.ProjectedBalance.String()))
	}
	return report, nil
}

func (s *WalletService) walletOf(ctx context.Context, userID string) (*model.Wallet, error) {
	wallet, err := s.store.Wallets.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrWalletNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return wallet, nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
