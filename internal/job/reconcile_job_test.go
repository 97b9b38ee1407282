package job

import (
	"context"
	"testing"

	"walletservice/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestReconcileJob_RunOnce(t *testing.T) {
	env := newJobEnv(t)
	ctx := context.Background()

	for _, u := range []string{"a", "b", "c"} {
		env.fund(t, u, 100)
	}

	job := NewReconcileJob(env.store, env.wallets, env.cfg, zaptest.NewLogger(t))
	job.batchSize = 2

	checked, diverged, err := job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, checked)
	assert.Zero(t, diverged)

	w, err := env.store.Wallets.GetByUserID(ctx, "b")
	require.NoError(t, err)
	require.NoError(t, env.store.DB().Model(&model.Wallet{}).Where("id = ?", w.ID).
		UpdateColumn("balance", decimal.NewFromInt(1)).Error)

	checked, diverged, err = job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, checked)
	assert.Equal(t, 1, diverged)
}

func TestReconcileJob_DefaultInterval(t *testing.T) {
	env := newJobEnv(t)
	env.cfg.Business.ReconcileIntervalSeconds = 0
	job := NewReconcileJob(env.store, env.wallets, env.cfg, zaptest.NewLogger(t))
	assert.Positive(t, job.interval)
}
