package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet is the per-user balance record. Balance is a cached projection of
// the ledger_entry journal and is only written by the balance mutator.
type Wallet struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"user_id"`
	Balance   decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"balance"`
	Version   int             `gorm:"not null;default:0" json:"version"` // CAS token
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Wallet) TableName() string {
	return "wallet"
}
