package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	WithdrawStatusPending  = "PENDING"
	WithdrawStatusApproved = "APPROVED"
	WithdrawStatusRejected = "REJECTED"
)

// APPROVED and REJECTED are terminal: they have no entry here.
var ValidWithdrawTransitions = map[string][]string{
	WithdrawStatusPending: {WithdrawStatusApproved, WithdrawStatusRejected},
}

func CanTransitionWithdraw(currentStatus, targetStatus string) bool {
	return canTransition(ValidWithdrawTransitions, currentStatus, targetStatus)
}

func canTransition(table map[string][]string, currentStatus, targetStatus string) bool {
	allowedStatuses, exists := table[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

type WithdrawRequest struct {
	ID                int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID            string          `gorm:"type:varchar(64);index;not null" json:"user_id"`
	WalletID          int64           `gorm:"index;not null" json:"wallet_id"`
	Amount            decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	BankAccountNumber string          `gorm:"type:varchar(64);not null" json:"bank_account_number"`
	BankName          string          `gorm:"type:varchar(128);not null" json:"bank_name"`
	Status            string          `gorm:"type:varchar(20);index;not null" json:"status"`
	RequestedAt       time.Time       `gorm:"not null;index" json:"requested_at"`
	ProcessedAt       *time.Time      `json:"processed_at"`

	Wallet *Wallet `gorm:"foreignKey:WalletID;constraint:OnDelete:RESTRICT" json:"-"`
}

func (WithdrawRequest) TableName() string {
	return "withdraw_request"
}
