package service

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"

	"walletservice/internal/config"
	"walletservice/internal/gateway/vnpay"
	"walletservice/internal/infrastructure/lock"
	"walletservice/internal/model"
	"walletservice/internal/repository"
	"walletservice/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testHashSecret = "test-hash-secret"

type countingNotifier struct {
	n atomic.Int32
}

func (c *countingNotifier) Notify() { c.n.Add(1) }

type fakeEligibility struct {
	mu      sync.Mutex
	allowed bool
	err     error
	calls   int
}

func (f *fakeEligibility) CanWithdraw(ctx context.Context, userID string, amount decimal.Decimal) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.allowed, f.err
}

type mockBalanceCache struct {
	mock.Mock
}

func (m *mockBalanceCache) Get(ctx context.Context, userID string) (decimal.Decimal, bool, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(decimal.Decimal), args.Bool(1), args.Error(2)
}

func (m *mockBalanceCache) Set(ctx context.Context, userID string, balance decimal.Decimal) error {
	return m.Called(ctx, userID, balance.String()).Error(0)
}

func (m *mockBalanceCache) Invalidate(ctx context.Context, userIDs ...string) error {
	return m.Called(ctx, userIDs).Error(0)
}

type testEnv struct {
	store    *repository.Store
	cfg      *config.Config
	notifier *countingNotifier
	deps     Deps

	deposits  *DepositService
	withdraws *WithdrawService
	transfers *TransferService
	wallets   *WalletService

	eligibility *fakeEligibility
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := repository.NewStore(testutil.NewDB(t))
	cfg := &config.Config{
		Kafka: config.KafkaConfig{Topic: config.KafkaTopicConfig{
			BalanceUpdate:        "wallet.balance.update",
			TransactionCompleted: "wallet.transaction.completed",
		}},
		Business: config.BusinessConfig{OptimisticRetries: 3, DepositExpireMinutes: 30},
		VNPay:    config.VNPayConfig{HashSecret: testHashSecret},
	}
	notifier := &countingNotifier{}
	deps := Deps{
		Store:    store,
		Locker:   lock.NewLocalLocker(),
		Notifier: notifier,
		Config:   cfg,
		Logger:   zaptest.NewLogger(t),
	}
	eligibility := &fakeEligibility{allowed: true}

	return &testEnv{
		store:       store,
		cfg:         cfg,
		notifier:    notifier,
		deps:        deps,
		deposits:    NewDepositService(deps),
		withdraws:   NewWithdrawService(deps, eligibility),
		transfers:   NewTransferService(deps),
		wallets:     NewWalletService(deps),
		eligibility: eligibility,
	}
}

// signedCallback builds IPN params for txnRef as the gateway would sign them.
func signedCallback(txnRef string, amount decimal.Decimal, responseCode string) map[string]string {
	params := map[string]string{
		vnpay.ParamTxnRef:        txnRef,
		vnpay.ParamAmount:        amount.Shift(2).String(),
		vnpay.ParamResponseCode:  responseCode,
		vnpay.ParamTransactionNo: "14000001",
		"vnp_TmnCode":            "TESTTMN",
		"vnp_OrderInfo":          "Nap tien vao vi",
	}
	params[vnpay.ParamSecureHash] = vnpay.Sign(params, testHashSecret)
	return params
}

// fund brings userID's wallet up by amount through a confirmed deposit.
func (e *testEnv) fund(t *testing.T, userID string, amount int64) {
	t.Helper()
	dep, err := e.deposits.CreateDeposit(context.Background(), userID, decimal.NewFromInt(amount))
	require.NoError(t, err)
	ack := e.deposits.HandleCallback(context.Background(), signedCallback(dep.TxnRef, dep.Amount, vnpay.ResponseCodeSuccess))
	require.Equal(t, vnpay.AckConfirmSuccess, ack)
}

func (e *testEnv) balance(t *testing.T, userID string) decimal.Decimal {
	t.Helper()
	w, err := e.store.Wallets.GetByUserID(context.Background(), userID)
	require.NoError(t, err)
	return w.Balance
}

func (e *testEnv) requireConsistent(t *testing.T, userID string) {
	t.Helper()
	w, err := e.store.Wallets.GetByUserID(context.Background(), userID)
	require.NoError(t, err)
	report, err := e.wallets.Reconcile(context.Background(), w.ID)
	require.NoError(t, err)
	require.True(t, report.Consistent, "balance=%s ledger=%s projected=%s",
		report.Balance, report.LedgerSum, report.ProjectedBalance)
}

func (e *testEnv) outbox(t *testing.T, key string) []*model.OutboxMessage {
	t.Helper()
	msgs, err := e.store.Outbox.ListByKey(context.Background(), key)
	require.NoError(t, err)
	return msgs
}

func decodePayload(t *testing.T, msg *model.OutboxMessage, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), v))
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
