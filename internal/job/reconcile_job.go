package job

import (
	"context"
	"sync"
	"time"

	"walletservice/internal/config"
	"walletservice/internal/repository"
	"walletservice/internal/service"

	"go.uber.org/zap"
)

// ReconcileJob walks every wallet and checks its balance against the journal
// and the business records. It only reports; it never rewrites balances.
type ReconcileJob struct {
	walletRepo *repository.WalletRepository
	wallets    *service.WalletService
	logger     *zap.Logger
	interval   time.Duration
	batchSize  int

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewReconcileJob(store *repository.Store, wallets *service.WalletService, cfg *config.Config, logger *zap.Logger) *ReconcileJob {
	interval := time.Duration(cfg.Business.ReconcileIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &ReconcileJob{
		walletRepo: store.Wallets,
		wallets:    wallets,
		logger:     logger.With(zap.String("component", "reconcile_job")),
		interval:   interval,
		batchSize:  200,
		stopCh:     make(chan struct{}),
	}
}

func (j *ReconcileJob) Start(ctx context.Context) {
	j.logger.Info("reconcile job started", zap.Duration("interval", j.interval))

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("reconcile job stopping", zap.Error(ctx.Err()))
			return
		case <-j.stopCh:
			j.logger.Info("reconcile job stopped")
			return
		case <-ticker.C:
			if _, _, err := j.RunOnce(ctx); err != nil {
				j.logger.Error("reconcile round", zap.Error(err))
			}
		}
	}
}

func (j *ReconcileJob) Stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
}

// RunOnce checks all wallets and returns how many were checked and how many
// diverged.
func (j *ReconcileJob) RunOnce(ctx context.Context) (checked, diverged int, err error) {
	var afterID int64
	for {
		batch, err := j.walletRepo.ListAfterID(ctx, afterID, j.batchSize)
		if err != nil {
			return checked, diverged, err
		}
		if len(batch) == 0 {
			break
		}

		for _, w := range batch {
			report, err := j.wallets.Reconcile(ctx, w.ID)
			if err != nil {
				j.logger.Error("reconcile wallet", zap.Int64("wallet_id", w.ID), zap.Error(err))
				continue
			}
			checked++
			if !report.Consistent {
				diverged++
			}
		}
		afterID = batch[len(batch)-1].ID

		if err := ctx.Err(); err != nil {
			return checked, diverged, err
		}
	}

	if diverged > 0 {
		j.logger.Error("reconcile found diverging wallets", zap.Int("checked", checked), zap.Int("diverged", diverged))
	} else {
		j.logger.Info("reconcile round clean", zap.Int("checked", checked))
	}
	return checked, diverged, nil
}
