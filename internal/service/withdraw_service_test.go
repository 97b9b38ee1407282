package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"walletservice/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withdrawInput(userID, amount string) *CreateWithdrawRequest {
	return &CreateWithdrawRequest{
		UserID:            userID,
		Amount:            dec(amount),
		BankAccountNumber: "0123456789",
		BankName:          "VCB",
	}
}

// insertPending files a request directly, bypassing the advisory checks.
func (e *testEnv) insertPending(t *testing.T, userID, amount string) int64 {
	t.Helper()
	w, err := e.store.Wallets.GetByUserID(context.Background(), userID)
	require.NoError(t, err)
	req := &model.WithdrawRequest{
		UserID:            userID,
		WalletID:          w.ID,
		Amount:            dec(amount),
		BankAccountNumber: "0123456789",
		BankName:          "VCB",
		Status:            model.WithdrawStatusPending,
		RequestedAt:       time.Now(),
	}
	require.NoError(t, e.store.Withdraws.Create(context.Background(), nil, req))
	return req.ID
}

func TestCreateRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(t, "user-1", 1000)

	resp, err := env.withdraws.CreateRequest(ctx, withdrawInput("user-1", "400"))
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawStatusPending, resp.Status)
	assert.Equal(t, "user-1", resp.UserID)
	assert.Nil(t, resp.ProcessedAt)
	assert.Equal(t, 1, env.eligibility.calls)

	// filing a request moves no money
	assert.True(t, dec("1000").Equal(env.balance(t, "user-1")))
}

func TestCreateRequest_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(e *testEnv)
		input   *CreateWithdrawRequest
		wantErr error
	}{
		{
			name:    "not eligible",
			setup:   func(e *testEnv) { e.eligibility.allowed = false },
			input:   withdrawInput("user-1", "100"),
			wantErr: ErrWithdrawNotEligible,
		},
		{
			name:    "listing service down",
			setup:   func(e *testEnv) { e.eligibility.err = assert.AnError },
			input:   withdrawInput("user-1", "100"),
			wantErr: ErrEligibilityUnavailable,
		},
		{
			name:    "over balance",
			input:   withdrawInput("user-1", "1000.01"),
			wantErr: ErrInsufficientBalance,
		},
		{
			name:    "no wallet",
			input:   withdrawInput("ghost", "10"),
			wantErr: ErrWalletNotFound,
		},
		{
			name:    "zero amount",
			input:   withdrawInput("user-1", "0"),
			wantErr: ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.fund(t, "user-1", 1000)
			if tt.setup != nil {
				tt.setup(env)
			}

			_, err := env.withdraws.CreateRequest(context.Background(), tt.input)
			assert.ErrorIs(t, err, tt.wantErr)

			pending, err := env.withdraws.ListPending(context.Background())
			require.NoError(t, err)
			assert.Empty(t, pending)
		})
	}
}

func TestApproveRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(t, "user-1", 1000)

	created, err := env.withdraws.CreateRequest(ctx, withdrawInput("user-1", "400"))
	require.NoError(t, err)

	approved, err := env.withdraws.ApproveRequest(ctx, created.RequestID)
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawStatusApproved, approved.Status)
	require.NotNil(t, approved.ProcessedAt)
	assert.True(t, dec("600").Equal(env.balance(t, "user-1")))

	stored, err := env.withdraws.GetRequest(ctx, created.RequestID)
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawStatusApproved, stored.Status)
	assert.NotNil(t, stored.ProcessedAt)

	completions := env.outbox(t, withdrawRef(created.RequestID))
	require.Len(t, completions, 1)
	var done model.TransactionCompletedEvent
	decodePayload(t, completions[0], &done)
	assert.Equal(t, model.CompletionStatusCompleted, done.Status)

	updates := env.outbox(t, "user-1")
	var last model.BalanceUpdateEvent
	decodePayload(t, updates[len(updates)-1], &last)
	assert.True(t, dec("600").Equal(last.NewTotalBalance))

	_, err = env.withdraws.ApproveRequest(ctx, created.RequestID)
	assert.ErrorIs(t, err, ErrRequestAlreadyProcessed)
	assert.True(t, dec("600").Equal(env.balance(t, "user-1")))

	env.requireConsistent(t, "user-1")
}

func TestApproveRequest_InsufficientBalanceStaysPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(t, "user-1", 1000)

	id := env.insertPending(t, "user-1", "1500")

	_, err := env.withdraws.ApproveRequest(ctx, id)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.True(t, dec("1000").Equal(env.balance(t, "user-1")))

	req, err := env.withdraws.GetRequest(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawStatusPending, req.Status)
	assert.Nil(t, req.ProcessedAt)
	assert.Empty(t, env.outbox(t, withdrawRef(id)))

	env.requireConsistent(t, "user-1")
}

func TestRejectRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(t, "user-1", 1000)

	created, err := env.withdraws.CreateRequest(ctx, withdrawInput("user-1", "400"))
	require.NoError(t, err)

	rejected, err := env.withdraws.RejectRequest(ctx, created.RequestID)
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawStatusRejected, rejected.Status)
	assert.NotNil(t, rejected.ProcessedAt)
	assert.True(t, dec("1000").Equal(env.balance(t, "user-1")))

	_, err = env.withdraws.ApproveRequest(ctx, created.RequestID)
	assert.ErrorIs(t, err, ErrRequestAlreadyProcessed)
	_, err = env.withdraws.RejectRequest(ctx, created.RequestID)
	assert.ErrorIs(t, err, ErrRequestAlreadyProcessed)

	req, err := env.withdraws.GetRequest(ctx, created.RequestID)
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawStatusRejected, req.Status)

	completions := env.outbox(t, withdrawRef(created.RequestID))
	require.Len(t, completions, 1)
	var done model.TransactionCompletedEvent
	decodePayload(t, completions[0], &done)
	assert.Equal(t, model.CompletionStatusFailed, done.Status)
}

func TestApproveRequest_NotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.withdraws.ApproveRequest(ctx, 777)
	assert.ErrorIs(t, err, ErrRequestNotFound)
	_, err = env.withdraws.RejectRequest(ctx, 777)
	assert.ErrorIs(t, err, ErrRequestNotFound)
	_, err = env.withdraws.GetRequest(ctx, 777)
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestApproveRequest_ConcurrentApprovalsDebitOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(t, "user-1", 1000)

	id := env.insertPending(t, "user-1", "700")

	const approvers = 6
	errs := make([]error, approvers)
	var wg sync.WaitGroup
	for i := 0; i < approvers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.withdraws.ApproveRequest(ctx, id)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrRequestAlreadyProcessed)
	}
	assert.Equal(t, 1, succeeded)
	assert.True(t, dec("300").Equal(env.balance(t, "user-1")))
	env.requireConsistent(t, "user-1")
}

func TestApproveRequest_CompetingRequestsNeverOverdraw(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(t, "user-1", 1000)

	ids := []int64{
		env.insertPending(t, "user-1", "600"),
		env.insertPending(t, "user-1", "600"),
		env.insertPending(t, "user-1", "600"),
	}

	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			_, errs[i] = env.withdraws.ApproveRequest(ctx, id)
		}(i, id)
	}
	wg.Wait()

	approved := 0
	for _, err := range errs {
		if err == nil {
			approved++
			continue
		}
		assert.ErrorIs(t, err, ErrInsufficientBalance)
	}
	assert.Equal(t, 1, approved)
	assert.True(t, dec("400").Equal(env.balance(t, "user-1")))

	pending, err := env.withdraws.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	env.requireConsistent(t, "user-1")
}

func TestListByUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(t, "user-1", 1000)
	env.fund(t, "user-2", 1000)

	a := env.insertPending(t, "user-1", "10")
	b := env.insertPending(t, "user-1", "20")
	env.insertPending(t, "user-2", "30")

	list, err := env.withdraws.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	ids := []int64{list[0].RequestID, list[1].RequestID}
	assert.ElementsMatch(t, []int64{a, b}, ids)
	for _, r := range list {
		assert.Equal(t, "user-1", r.UserID)
	}

	_, err = env.withdraws.ListByUser(ctx, "ghost")
	assert.ErrorIs(t, err, ErrWalletNotFound)
}
