package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TransactionTypeDeposit     = "DEPOSIT"
	TransactionTypeTransferIn  = "TRANSFER_IN"
	TransactionTypeTransferOut = "TRANSFER_OUT"
)

const (
	TransactionStatusPending = "PENDING"
	TransactionStatusSuccess = "SUCCESS"
	TransactionStatusFailed  = "FAILED"
)

var ValidTransactionTransitions = map[string][]string{
	TransactionStatusPending: {TransactionStatusSuccess, TransactionStatusFailed},
}

func CanTransitionTransaction(currentStatus, targetStatus string) bool {
	return canTransition(ValidTransactionTransitions, currentStatus, targetStatus)
}

// TransactionLog records one deposit attempt or one side of a transfer.
// For deposits it is the idempotency anchor of gateway callbacks: its status
// leaves PENDING exactly once.
type TransactionLog struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	WalletID    int64           `gorm:"index;not null" json:"wallet_id"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Type        string          `gorm:"type:varchar(20);not null" json:"type"`
	Status      string          `gorm:"type:varchar(20);index;not null" json:"status"`
	Description string          `gorm:"type:varchar(256)" json:"description"`
	Reference   *string         `gorm:"type:varchar(128);uniqueIndex" json:"reference,omitempty"`
	CreatedAt   time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	Wallet *Wallet `gorm:"foreignKey:WalletID;constraint:OnDelete:RESTRICT" json:"-"`
}

func (TransactionLog) TableName() string {
	return "transaction_log"
}
