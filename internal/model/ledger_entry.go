package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source types recorded on journal entries.
const (
	SourceDeposit     = "DEPOSIT"
	SourceWithdraw    = "WITHDRAW"
	SourceTransferIn  = "TRANSFER_IN"
	SourceTransferOut = "TRANSFER_OUT"
)

// LedgerEntry is one line of the append-only balance journal.
//
// Rules:
//  1. rows are only ever inserted, never updated or deleted;
//  2. every row points at the business record that caused it (SourceType/SourceID);
//  3. BalanceBefore/BalanceAfter allow each wallet's history to be replayed and checked.
//
// Summing Amount over a wallet must always give the wallet balance.
type LedgerEntry struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	EntryNo       string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"entry_no"`
	WalletID      int64           `gorm:"index;not null" json:"wallet_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"` // positive credit, negative debit
	BalanceBefore decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"balance_before"`
	BalanceAfter  decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"balance_after"`
	SourceType    string          `gorm:"type:varchar(20);not null" json:"source_type"`
	SourceID      int64           `gorm:"not null" json:"source_id"`
	Remark        string          `gorm:"type:varchar(256)" json:"remark"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index" json:"created_at"`

	Wallet *Wallet `gorm:"foreignKey:WalletID;constraint:OnDelete:RESTRICT" json:"-"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entry"
}
