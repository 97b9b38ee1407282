package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventBalanceUpdate        = "BALANCE_UPDATE"
	EventTransactionCompleted = "TRANSACTION_COMPLETED"
)

const (
	CompletionStatusCompleted = "COMPLETED"
	CompletionStatusFailed    = "FAILED"
)

// BalanceUpdateEvent tells downstream services the new total balance of a user.
type BalanceUpdateEvent struct {
	UserID          string          `json:"userId"`
	NewTotalBalance decimal.Decimal `json:"newTotalBalance"`
}

// MarshalJSON writes the balance as a JSON number, the form consumers parse
// into their decimal type.
func (e BalanceUpdateEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		UserID          string      `json:"userId"`
		NewTotalBalance json.Number `json:"newTotalBalance"`
	}{
		UserID:          e.UserID,
		NewTotalBalance: json.Number(e.NewTotalBalance.String()),
	})
}

// TransactionCompletedEvent lets order/marketplace services reconcile a
// reference they handed to the wallet.
type TransactionCompletedEvent struct {
	TransactionID string    `json:"transactionId"`
	Status        string    `json:"status"`
	CertificateID *string   `json:"certificateId,omitempty"`
	Message       string    `json:"message,omitempty"`
	CompletedAt   time.Time `json:"completedAt"`
}
