package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"walletservice/internal/config"
	"walletservice/internal/infrastructure/cache"
	"walletservice/internal/infrastructure/lock"
	"walletservice/internal/model"
	"walletservice/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OutboxNotifier is poked after a commit that enqueued outbox messages.
// Notify must not block.
type OutboxNotifier interface {
	Notify()
}

// Deps carries what every service needs. Cache and Notifier are optional.
type Deps struct {
	Store    *repository.Store
	Locker   lock.Locker
	Cache    cache.BalanceCache
	Notifier OutboxNotifier
	Config   *config.Config
	Logger   *zap.Logger
}

type base struct {
	store    *repository.Store
	locker   lock.Locker
	cache    cache.BalanceCache
	notifier OutboxNotifier
	cfg      *config.Config
	logger   *zap.Logger
}

func newBase(deps Deps, component string) base {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return base{
		store:    deps.Store,
		locker:   deps.Locker,
		cache:    deps.Cache,
		notifier: deps.Notifier,
		cfg:      deps.Config,
		logger:   logger.With(zap.String("component", component)),
	}
}

// withWalletLocks holds the per-wallet locks of walletIDs, taken in ascending
// id order, while fn runs.
func (b *base) withWalletLocks(ctx context.Context, walletIDs []int64, fn func() error) error {
	ids := append([]int64(nil), walletIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	held := make([]lock.Lock, 0, len(ids))
	defer func() {
		releaseCtx := context.WithoutCancel(ctx)
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i].Release(releaseCtx); err != nil {
				b.logger.Warn("release wallet lock", zap.Error(err))
			}
		}
	}()

	for i, id := range ids {
		if i > 0 && ids[i-1] == id {
			continue
		}
		l, err := b.locker.Obtain(ctx, lock.WalletKey(id))
		if err != nil {
			return fmt.Errorf("lock wallet %d: %w", id, err)
		}
		held = append(held, l)
	}
	return fn()
}

// retryOnConflict reruns fn while it fails with a wallet version conflict,
// up to business.optimistic_retries attempts.
func (b *base) retryOnConflict(ctx context.Context, fn func() error) error {
	attempts := b.cfg.Business.OptimisticRetries
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 1; i <= attempts; i++ {
		err = fn()
		if !errors.Is(err, repository.ErrOptimisticLock) {
			return err
		}
		b.logger.Warn("wallet version conflict", zap.Int("attempt", i))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}

// afterCommit drops cached balances of the touched users and wakes the
// outbox sender. Neither can fail the committed operation.
func (b *base) afterCommit(ctx context.Context, userIDs ...string) {
	if b.cache != nil && len(userIDs) > 0 {
		if err := b.cache.Invalidate(ctx, userIDs...); err != nil {
			b.logger.Warn("invalidate balance cache", zap.Strings("user_ids", userIDs), zap.Error(err))
		}
	}
	if b.notifier != nil {
		b.notifier.Notify()
	}
}

func (b *base) enqueueBalanceUpdate(ctx context.Context, tx *gorm.DB, wallet *model.Wallet) error {
	return b.store.Outbox.Enqueue(ctx, tx, model.EventBalanceUpdate, b.cfg.Kafka.Topic.BalanceUpdate, wallet.UserID,
		model.BalanceUpdateEvent{
			UserID:          wallet.UserID,
			NewTotalBalance: wallet.Balance,
		})
}

func (b *base) enqueueCompletion(ctx context.Context, tx *gorm.DB, event model.TransactionCompletedEvent) error {
	return b.store.Outbox.Enqueue(ctx, tx, model.EventTransactionCompleted, b.cfg.Kafka.Topic.TransactionCompleted, event.TransactionID, event)
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || !amount.Equal(amount.Round(2)) {
		return ErrInvalidAmount
	}
	return nil
}
