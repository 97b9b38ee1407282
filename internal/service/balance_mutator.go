package service

import (
	"context"
	"errors"
	"fmt"

	"walletservice/internal/model"
	"walletservice/internal/repository"
	"walletservice/pkg/idgen"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Source identifies the business record behind a balance change.
type Source struct {
	Type   string
	ID     int64
	Remark string
}

// BalanceMutator is the only writer of wallet balances. Every change runs in
// the caller's transaction and appends a journal entry next to it.
type BalanceMutator struct {
	wallets *repository.WalletRepository
	ledger  *repository.LedgerRepository
}

func NewBalanceMutator(store *repository.Store) *BalanceMutator {
	return &BalanceMutator{
		wallets: store.Wallets,
		ledger:  store.Ledger,
	}
}

// Credit adds amount to the wallet and returns it with the new balance.
func (m *BalanceMutator) Credit(ctx context.Context, tx *gorm.DB, walletID int64, amount decimal.Decimal, src Source) (*model.Wallet, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	return m.apply(ctx, tx, walletID, amount, src)
}

// Debit subtracts amount. It fails with ErrInsufficientBalance, writing
// nothing, when the balance would go negative.
func (m *BalanceMutator) Debit(ctx context.Context, tx *gorm.DB, walletID int64, amount decimal.Decimal, src Source) (*model.Wallet, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	return m.apply(ctx, tx, walletID, amount.Neg(), src)
}

func (m *BalanceMutator) apply(ctx context.Context, tx *gorm.DB, walletID int64, delta decimal.Decimal, src Source) (*model.Wallet, error) {
	wallet, err := m.wallets.GetByIDForUpdate(ctx, tx, walletID)
	if err != nil {
		if errors.Is(err, repository.ErrWalletNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("lock wallet %d: %w", walletID, err)
	}

	before := wallet.Balance
	after := before.Add(delta)
	if after.IsNegative() {
		return nil, ErrInsufficientBalance
	}

	if err := m.wallets.UpdateBalance(ctx, tx, wallet.ID, after, wallet.Version); err != nil {
		return nil, fmt.Errorf("update wallet %d balance: %w", walletID, err)
	}

	entry := &model.LedgerEntry{
		EntryNo:       idgen.GenerateEntryNo(),
		WalletID:      wallet.ID,
		Amount:        delta,
		BalanceBefore: before,
		BalanceAfter:  after,
		SourceType:    src.Type,
		SourceID:      src.ID,
		Remark:        src.Remark,
	}
	if err := m.ledger.Create(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("append ledger entry: %w", err)
	}

	wallet.Balance = after
	wallet.Version++
	return wallet, nil
}
