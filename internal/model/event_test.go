package model

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalanceUpdateEvent_NumericBalance(t *testing.T) {
	event := BalanceUpdateEvent{UserID: "user-1", NewTotalBalance: decimal.RequireFromString("1500.50")}

	payload, err := json.Marshal(event)
	require.NoError(t, err)
	assert.JSONEq(t, `{"userId":"user-1","newTotalBalance":1500.5}`, string(payload))

	var decoded BalanceUpdateEvent
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "user-1", decoded.UserID)
	assert.True(t, event.NewTotalBalance.Equal(decoded.NewTotalBalance))
}
