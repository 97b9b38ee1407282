package job

import (
	"context"
	"errors"
	"sync"
	"time"

	"walletservice/internal/config"
	"walletservice/internal/infrastructure/lock"
	"walletservice/internal/model"
	"walletservice/internal/repository"

	"go.uber.org/zap"
)

const dispatcherLockKey = "wallet:outbox:dispatcher"

// Sender publishes one message. mq.Producer is the Kafka implementation.
type Sender interface {
	SendMessage(topic, key, value string) error
}

// OutboxSender drains PENDING outbox rows to the broker. It wakes on a ticker
// and whenever a service calls Notify after a commit.
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	sender     Sender
	dispatch   lock.Locker
	logger     *zap.Logger
	maxRetry   int
	interval   time.Duration
	batchSize  int

	notifyCh chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewOutboxSender builds the sender. dispatch may be nil; when set, only the
// instance holding the dispatcher lock sends during a round.
func NewOutboxSender(store *repository.Store, sender Sender, dispatch lock.Locker, cfg *config.Config, logger *zap.Logger) *OutboxSender {
	return &OutboxSender{
		outboxRepo: store.Outbox,
		sender:     sender,
		dispatch:   dispatch,
		logger:     logger.With(zap.String("component", "outbox_sender")),
		maxRetry:   cfg.Business.MaxRetryCount,
		interval:   time.Second,
		batchSize:  100,
		notifyCh:   make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.logger.Info("outbox sender started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("outbox sender stopping", zap.Error(ctx.Err()))
			return
		case <-s.stopCh:
			s.logger.Info("outbox sender stopped")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		case <-s.notifyCh:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Notify asks for a round as soon as possible. It never blocks; nudges that
// arrive while one is queued are merged.
func (s *OutboxSender) Notify() {
	select {
	case s.notifyCh <- struct{}{}:
	default:
	}
}

// RetryFailed re-queues up to limit FAILED messages with a fresh retry budget.
func (s *OutboxSender) RetryFailed(ctx context.Context, limit int) (int64, error) {
	failed, err := s.outboxRepo.GetFailedMessages(ctx, limit)
	if err != nil {
		return 0, err
	}
	ids := make([]int64, 0, len(failed))
	for _, msg := range failed {
		ids = append(ids, msg.ID)
	}
	n, err := s.outboxRepo.ResetFailed(ctx, ids)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("failed outbox messages re-queued", zap.Int64("count", n))
		s.Notify()
	}
	return n, nil
}

func (s *OutboxSender) processPendingMessages(ctx context.Context) {
	if s.dispatch != nil {
		l, err := s.dispatch.Obtain(ctx, dispatcherLockKey)
		if err != nil {
			if !errors.Is(err, lock.ErrLockFailed) {
				s.logger.Warn("obtain dispatcher lock", zap.Error(err))
			}
			return
		}
		defer func() {
			if err := l.Release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("release dispatcher lock", zap.Error(err))
			}
		}()
	}

	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("load pending outbox messages", zap.Error(err))
		return
	}

	// a key whose earlier message is still pending is held back for the
	// round, so consumers never see a newer state before an older one
	blocked := make(map[string]struct{})
	for _, msg := range messages {
		if _, ok := blocked[msg.MessageKey]; ok {
			continue
		}
		if !s.sendMessage(ctx, msg) {
			blocked[msg.MessageKey] = struct{}{}
		}
	}
}

// sendMessage delivers one message. It reports false while the message is
// still PENDING afterwards.
func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) bool {
	logger := s.logger.With(
		zap.Int64("id", msg.ID),
		zap.String("topic", msg.Topic),
		zap.String("key", msg.MessageKey))

	err := s.sender.SendMessage(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		if updateErr := s.outboxRepo.UpdateStatus(ctx, msg.ID, model.OutboxStatusSent); updateErr != nil {
			// resent next round; holding the key keeps the order
			logger.Error("mark outbox message sent", zap.Error(updateErr))
			return false
		}
		logger.Debug("outbox message sent")
		return true
	}

	logger.Warn("send outbox message", zap.Int("retry_count", msg.RetryCount), zap.Error(err))

	if err := s.outboxRepo.IncrementRetryCount(ctx, msg.ID); err != nil {
		logger.Error("increment outbox retry count", zap.Error(err))
	}

	if msg.RetryCount+1 < s.maxRetry {
		return false
	}
	if err := s.outboxRepo.MarkAsFailed(ctx, msg.ID); err != nil {
		logger.Error("mark outbox message failed", zap.Error(err))
		return false
	}
	logger.Error("outbox message gave up after max retries", zap.Int("max_retry", s.maxRetry))
	return true
}
