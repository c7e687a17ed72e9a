package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"opsdash/internal/cache"
	"opsdash/internal/config"
	"opsdash/internal/handler"
	"opsdash/internal/httpserver"
	"opsdash/internal/repository"
	"opsdash/internal/service/finance"
	"opsdash/internal/service/project"
	"opsdash/pkg/db"
	"opsdash/pkg/logger"
	"opsdash/pkg/otel"
	"opsdash/pkg/outbox"
	redisclient "opsdash/pkg/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.NewLogger(cfg.Log.Level)
	defer log.Sync()

	if cfg.Otel.ServiceName == "" {
		cfg.Otel.ServiceName = "opsdash-server"
	}
	shutdownTracing, err := otel.Init(cfg.Otel, log)
	if err != nil {
		log.Fatal("OpenTelemetry initialization failed", zap.Error(err))
	}
	defer shutdownTracing()

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	log.Info("Starting opsdash server...",
		zap.String("db_host", cfg.DB.Host),
		zap.String("redis_addr", cfg.Redis.Addr),
		zap.String("port", cfg.Server.Port),
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

	policy, err := cfg.Project.Policy()
	if err != nil {
		log.Fatal("Invalid status transition rules", zap.Error(err))
	}

	// Repositories；事件写入 outbox，由 worker 投递
	outboxRepo := outbox.NewRepository(dbConn)
	projectRepo := repository.NewProjectRepository(dbConn, outboxRepo, log)
	taskRepo := repository.NewTaskRepository(dbConn, log)
	financeRepo := repository.NewFinanceRepository(dbConn, outboxRepo, log)

	// Services
	store := cache.New(rdb, cfg.Cache.TTLs(), log)
	projectSvc := project.NewService(projectRepo, taskRepo, store, policy, log)
	financeSvc := finance.NewService(financeRepo, store, log)
	replaySvc := outbox.NewReplayService(outboxRepo, log)

	router := httpserver.NewRouter(httpserver.Handlers{
		Planner: handler.NewPlannerHandler(log),
		Project: handler.NewProjectHandler(projectSvc, log),
		Finance: handler.NewFinanceHandler(financeSvc, log),
		Admin:   handler.NewAdminHandler(replaySvc, log),
	}, dbConn, nil, log)

	srv := router.Server(cfg.Server.Port)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	log.Info("Server exited")
}
