package job

import (
	"context"
	"sync"
	"time"

	"walletservice/internal/config"
	"walletservice/internal/model"
	"walletservice/internal/repository"
	"walletservice/internal/service"

	"go.uber.org/zap"
)

// DepositExpiryJob fails deposits the gateway never called back for. A late
// callback for an expired deposit is answered as already confirmed.
type DepositExpiryJob struct {
	logRepo   *repository.TransactionLogRepository
	deposits  *service.DepositService
	expireAge time.Duration
	logger    *zap.Logger
	interval  time.Duration
	batchSize int

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewDepositExpiryJob(store *repository.Store, deposits *service.DepositService, cfg *config.Config, logger *zap.Logger) *DepositExpiryJob {
	return &DepositExpiryJob{
		logRepo:   store.TransactionLogs,
		deposits:  deposits,
		expireAge: time.Duration(cfg.Business.DepositExpireMinutes) * time.Minute,
		logger:    logger.With(zap.String("component", "deposit_expiry_job")),
		interval:  time.Minute,
		batchSize: 100,
		stopCh:    make(chan struct{}),
	}
}

func (j *DepositExpiryJob) Start(ctx context.Context) {
	j.logger.Info("deposit expiry job started", zap.Duration("expire_after", j.expireAge))

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("deposit expiry job stopping", zap.Error(ctx.Err()))
			return
		case <-j.stopCh:
			j.logger.Info("deposit expiry job stopped")
			return
		case <-ticker.C:
			j.expirePendingDeposits(ctx)
		}
	}
}

func (j *DepositExpiryJob) Stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
}

// expirePendingDeposits handles one batch and returns how many it expired.
func (j *DepositExpiryJob) expirePendingDeposits(ctx context.Context) int {
	before := time.Now().Add(-j.expireAge)
	logs, err := j.logRepo.ListExpiredPending(ctx, model.TransactionTypeDeposit, before, j.batchSize)
	if err != nil {
		j.logger.Error("list expired deposits", zap.Error(err))
		return 0
	}
	if len(logs) == 0 {
		return 0
	}

	expired := 0
	for _, log := range logs {
		ok, err := j.deposits.ExpireDeposit(ctx, log)
		if err != nil {
			j.logger.Error("expire deposit", zap.Int64("log_id", log.ID), zap.Error(err))
			continue
		}
		if ok {
			expired++
		}
	}

	j.logger.Info("expired pending deposits", zap.Int("found", len(logs)), zap.Int("expired", expired))
	return expired
}
