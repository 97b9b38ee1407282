package job

import (
	"context"
	"testing"

	"walletservice/internal/config"
	"walletservice/internal/gateway/vnpay"
	"walletservice/internal/infrastructure/lock"
	"walletservice/internal/model"
	"walletservice/internal/repository"
	"walletservice/internal/service"
	"walletservice/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testHashSecret = "job-test-secret"

type nopNotifier struct{}

func (nopNotifier) Notify() {}

type jobEnv struct {
	store    *repository.Store
	cfg      *config.Config
	deposits *service.DepositService
	wallets  *service.WalletService
}

func newJobEnv(t *testing.T) *jobEnv {
	t.Helper()
	store := repository.NewStore(testutil.NewDB(t))
	cfg := &config.Config{
		Kafka: config.KafkaConfig{Topic: config.KafkaTopicConfig{
			BalanceUpdate:        "wallet.balance.update",
			TransactionCompleted: "wallet.transaction.completed",
		}},
		Business: config.BusinessConfig{
			DepositExpireMinutes:     30,
			MaxRetryCount:            2,
			OptimisticRetries:        3,
			ReconcileIntervalSeconds: 60,
		},
		VNPay: config.VNPayConfig{HashSecret: testHashSecret},
	}
	deps := service.Deps{
		Store:    store,
		Locker:   lock.NewLocalLocker(),
		Notifier: nopNotifier{},
		Config:   cfg,
		Logger:   zaptest.NewLogger(t),
	}
	return &jobEnv{
		store:    store,
		cfg:      cfg,
		deposits: service.NewDepositService(deps),
		wallets:  service.NewWalletService(deps),
	}
}

// fund credits userID through a confirmed deposit.
func (e *jobEnv) fund(t *testing.T, userID string, amount int64) {
	t.Helper()
	ctx := context.Background()
	dep, err := e.deposits.CreateDeposit(ctx, userID, decimal.NewFromInt(amount))
	require.NoError(t, err)

	params := map[string]string{
		vnpay.ParamTxnRef:        dep.TxnRef,
		vnpay.ParamAmount:        dep.Amount.Shift(2).String(),
		vnpay.ParamResponseCode:  vnpay.ResponseCodeSuccess,
		vnpay.ParamTransactionNo: "1",
	}
	params[vnpay.ParamSecureHash] = vnpay.Sign(params, testHashSecret)
	require.Equal(t, vnpay.AckConfirmSuccess, e.deposits.HandleCallback(ctx, params))
}

func (e *jobEnv) outboxByKey(t *testing.T, key string) []*model.OutboxMessage {
	t.Helper()
	msgs, err := e.store.Outbox.ListByKey(context.Background(), key)
	require.NoError(t, err)
	return msgs
}
