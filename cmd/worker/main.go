package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"opsdash/internal/cache"
	"opsdash/internal/config"
	"opsdash/internal/mqhandler"
	"opsdash/internal/repository"
	"opsdash/internal/runner"
	"opsdash/internal/service/project"
	"opsdash/pkg/db"
	"opsdash/pkg/logger"
	"opsdash/pkg/otel"
	"opsdash/pkg/mq"
	"opsdash/pkg/outbox"
	redisclient "opsdash/pkg/redis"
	"opsdash/pkg/util"
)

const (
	projectCreatedQueue = "project.created.q"
	ofxImportedQueue    = "ofx.imported.q"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.NewLogger(cfg.Log.Level)
	defer log.Sync()

	if cfg.Otel.ServiceName == "" {
		cfg.Otel.ServiceName = "opsdash-worker"
	}
	shutdownTracing, err := otel.Init(cfg.Otel, log)
	if err != nil {
		log.Fatal("OpenTelemetry initialization failed", zap.Error(err))
	}
	defer shutdownTracing()

	log.Info("Starting opsdash worker...",
		zap.String("db_host", cfg.DB.Host),
		zap.Duration("sweep_interval", cfg.Sweeper.Interval),
	)

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	// Redis
	rdb, err := redisclient.NewRedisClient(cfg.Redis, log)
	if err != nil {
		log.Fatal("Redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	deduper := util.NewDeduper(rdb, cfg.Cache.DedupTTL, log)
	retries := util.NewRetryCounter(rdb, cfg.Retry.CounterTTL)

	// MQ Publisher
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	policy, err := cfg.Project.Policy()
	if err != nil {
		log.Fatal("Invalid status transition rules", zap.Error(err))
	}

	outboxRepo := outbox.NewRepository(dbConn)
	store := cache.New(rdb, cfg.Cache.TTLs(), log)
	projectSvc := project.NewService(
		repository.NewProjectRepository(dbConn, outboxRepo, log),
		repository.NewTaskRepository(dbConn, log),
		store, policy, log,
	)

	// Handlers
	projectCreated := mqhandler.NewProjectCreatedHandler(projectSvc, deduper, log)
	ofxImported := mqhandler.NewOFXImportedHandler(store, deduper, log)

	consumers := []struct {
		queue, routingKey string
		handle            mq.MessageHandler
	}{
		{projectCreatedQueue, mq.RoutingProjectCreated, projectCreated.HandleProjectCreated},
		{ofxImportedQueue, mq.RoutingOFXImported, ofxImported.HandleOFXImported},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	for _, cs := range consumers {
		log.Info("Initializing consumer", zap.String("queue", cs.queue), zap.String("routing_key", cs.routingKey))
		c, err := mq.NewConsumer(cfg.MQ.URL, cs.queue, cs.routingKey, log)
		if err != nil {
			log.Fatal("Failed to init consumer", zap.String("queue", cs.queue), zap.Error(err))
		}
		c.SetHandler(cs.handle)
		c.WithRetryCounter(retries, cfg.Retry.MaxRetries)
		defer c.Close()

		g.Go(c.StartConsuming)
		g.Go(func() error {
			<-gctx.Done()
			c.Stop()
			return nil
		})
	}

	// Outbox Dispatcher
	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log)
	if cfg.Outbox.Interval > 0 {
		dispatcher.WithInterval(cfg.Outbox.Interval)
	}
	if cfg.Outbox.BatchSize > 0 {
		dispatcher.WithBatchSize(cfg.Outbox.BatchSize)
	}
	if cfg.Outbox.MaxRetries > 0 {
		dispatcher.WithMaxRetries(cfg.Outbox.MaxRetries)
	}
	g.Go(func() error {
		dispatcher.Start(gctx)
		return nil
	})

	// Priority sweeper
	sweeper := runner.NewPrioritySweeper(projectSvc, publisher, cfg.Sweeper.Interval, log)
	g.Go(func() error {
		sweeper.Start(gctx)
		return nil
	})

	log.Info("Worker is ready")
	if err := g.Wait(); err != nil {
		log.Error("Worker stopped with error", zap.Error(err))
		return
	}
	log.Info("Worker exited")
}
