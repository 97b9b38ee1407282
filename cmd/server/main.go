package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"walletservice/internal/client/listing"
	"walletservice/internal/config"
	"walletservice/internal/handler"
	"walletservice/internal/infrastructure/cache"
	"walletservice/internal/infrastructure/database"
	"walletservice/internal/infrastructure/lock"
	"walletservice/internal/infrastructure/logger"
	"walletservice/internal/infrastructure/mq"
	"walletservice/internal/job"
	"walletservice/internal/repository"
	"walletservice/internal/service"
	"walletservice/pkg/idgen"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer zlog.Sync() //nolint:errcheck

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("wallet service exited", zap.Error(err))
	}
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	if err := idgen.Init(int64(cfg.Server.WorkerID)); err != nil {
		return err
	}

	// migrates the schema as well
	db, err := database.InitMySQL(&cfg.MySQL)
	if err != nil {
		return err
	}

	redisClient, err := cache.InitRedis(&cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	producer, err := mq.InitKafka(&cfg.Kafka)
	if err != nil {
		return err
	}
	defer producer.Close()

	store := repository.NewStore(db)

	// wallet locks; the outbox dispatcher lock only matters across instances
	var walletLocker, dispatchLocker lock.Locker
	switch cfg.Lock.Driver {
	case config.LockDriverLocal:
		walletLocker = lock.NewLocalLocker()
	default:
		ttl := time.Duration(cfg.Lock.TTLSeconds) * time.Second
		walletLocker = lock.NewRedisLocker(redisClient, ttl,
			time.Duration(cfg.Lock.RetryIntervalMS)*time.Millisecond, cfg.Lock.MaxRetries)
		dispatchLocker = lock.NewRedisLocker(redisClient, ttl, 0, 1)
	}

	outboxSender := job.NewOutboxSender(store, producer, dispatchLocker, cfg, zlog)

	deps := service.Deps{
		Store:    store,
		Locker:   walletLocker,
		Cache:    cache.NewRedisBalanceCache(redisClient, time.Duration(cfg.Redis.BalanceTTLSeconds)*time.Second),
		Notifier: outboxSender,
		Config:   cfg,
		Logger:   zlog,
	}
	deposits := service.NewDepositService(deps)
	wallets := service.NewWalletService(deps)

	h := handler.NewHandler(handler.Services{
		Deposits:  deposits,
		Withdraws: service.NewWithdrawService(deps, listing.NewClient(cfg.Listing, zlog)),
		Transfers: service.NewTransferService(deps),
		Wallets:   wallets,
		Outbox:    outboxSender,
	}, zlog)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler.SetupRouter(h, zlog),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	expiryJob := job.NewDepositExpiryJob(store, deposits, cfg, zlog)
	reconcileJob := job.NewReconcileJob(store, wallets, cfg, zlog)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		outboxSender.Start(gctx)
		return nil
	})
	g.Go(func() error {
		expiryJob.Start(gctx)
		return nil
	})
	g.Go(func() error {
		reconcileJob.Start(gctx)
		return nil
	})
	g.Go(func() error {
		zlog.Info("wallet service listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zlog.Info("shutting down")

		outboxSender.Stop()
		expiryJob.Stop()
		reconcileJob.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	zlog.Info("wallet service stopped")
	return nil
}
