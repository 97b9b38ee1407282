package repository

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Store groups the repositories of the ledger database. Everything a single
// business action writes goes through one Transaction call.
type Store struct {
	db *gorm.DB

	Wallets         *WalletRepository
	TransactionLogs *TransactionLogRepository
	Payments        *PaymentRepository
	Withdraws       *WithdrawRepository
	Ledger          *LedgerRepository
	Outbox          *OutboxRepository
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:              db,
		Wallets:         NewWalletRepository(db),
		TransactionLogs: NewTransactionLogRepository(db),
		Payments:        NewPaymentRepository(db),
		Withdraws:       NewWithdrawRepository(db),
		Ledger:          NewLedgerRepository(db),
		Outbox:          NewOutboxRepository(db),
	}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

// Transaction runs fn in one database transaction; any error rolls back
// every write made through tx.
func (s *Store) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}

type amountRow struct {
	Amount decimal.Decimal
}

// sumAmounts totals the amount column of query on decimals, not in SQL, so
// the result is exact on every dialect.
func sumAmounts(query *gorm.DB) (decimal.Decimal, error) {
	var rows []amountRow
	if err := query.Select("amount").Scan(&rows).Error; err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(row.Amount)
	}
	return total, nil
}
