package job

import (
	"context"
	"testing"
	"time"

	"walletservice/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestDepositExpiryJob(t *testing.T) {
	env := newJobEnv(t)
	ctx := context.Background()

	env.fund(t, "user-1", 100)
	stale, err := env.deposits.CreateDeposit(ctx, "user-1", decimal.NewFromInt(50))
	require.NoError(t, err)

	job := NewDepositExpiryJob(env.store, env.deposits, env.cfg, zaptest.NewLogger(t))

	// nothing is old enough yet
	assert.Zero(t, job.expirePendingDeposits(ctx))

	job.expireAge = -time.Minute
	assert.Equal(t, 1, job.expirePendingDeposits(ctx))

	log, err := env.deposits.GetDeposit(ctx, stale.TransactionLogID)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusFailed, log.Status)

	msgs, err := env.store.Outbox.ListByKey(ctx, stale.TxnRef)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.EventTransactionCompleted, msgs[0].EventType)

	// the funded deposit and the balance are untouched
	w, err := env.store.Wallets.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100).Equal(w.Balance))

	assert.Zero(t, job.expirePendingDeposits(ctx))
}

func TestDepositExpiryJob_StartStop(t *testing.T) {
	env := newJobEnv(t)
	job := NewDepositExpiryJob(env.store, env.deposits, env.cfg, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx)
		close(done)
	}()
	cancel()
	<-done

	job.Stop()
	job.Stop()
}
