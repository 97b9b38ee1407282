package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentMethodVNPay   = "VNPAY"
	PaymentStatusSuccess = "SUCCESS"
)

// Payment is the insert-only audit record of a confirmed gateway payment.
type Payment struct {
	ID               int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	WalletID         int64           `gorm:"index;not null" json:"wallet_id"`
	TransactionLogID int64           `gorm:"index;not null" json:"transaction_log_id"`
	Amount           decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Method           string          `gorm:"type:varchar(20);not null" json:"method"`
	TransactionID    string          `gorm:"type:varchar(128);uniqueIndex;not null" json:"transaction_id"` // external txn ref
	GatewayRef       string          `gorm:"type:varchar(128)" json:"payment_gateway_ref"`
	PaymentStatus    string          `gorm:"type:varchar(20);not null" json:"payment_status"`
	PaidAt           time.Time       `gorm:"not null" json:"paid_at"`

	Wallet *Wallet `gorm:"foreignKey:WalletID;constraint:OnDelete:RESTRICT" json:"-"`
}

func (Payment) TableName() string {
	return "payment"
}
