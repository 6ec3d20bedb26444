package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/disaster-report-server/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/disaster-report-server/internal/adapter/kafka"
	"github.com/couchcryptid/disaster-report-server/internal/adapter/postgres"
	redisadapter "github.com/couchcryptid/disaster-report-server/internal/adapter/redis"
	"github.com/couchcryptid/disaster-report-server/internal/cache"
	"github.com/couchcryptid/disaster-report-server/internal/config"
	"github.com/couchcryptid/disaster-report-server/internal/domain"
	"github.com/couchcryptid/disaster-report-server/internal/geodata"
	"github.com/couchcryptid/disaster-report-server/internal/observability"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
)

func main() {
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(cfg)
	if err != nil {
		logger.Error("database setup failed", "error", err)
		os.Exit(1)
	}
	if err := postgres.WaitForConnection(ctx, db, cfg.DBReconnectAttempts, cfg.DBReconnectDelay, clock, logger); err != nil {
		logger.Error("database unavailable", "error", err)
		_ = db.Close()
		os.Exit(1)
	}
	defer db.Close()

	exec := postgres.NewExecutor(db, cfg.QueryTimeout, postgres.DefaultBreakerSettings(), logger, metrics)
	aggregator := geodata.NewAggregator(exec)
	reports := geodata.NewReports(exec, geodata.ReportLayers{
		Confirmed:        domain.LayerRef(cfg.TableReports),
		Unconfirmed:      domain.LayerRef(cfg.TableReportsUnconfirmed),
		ConfirmedLimit:   cfg.ReportsLimit,
		UnconfirmedLimit: cfg.UnconfirmedLimit,
	})

	results := cache.New[httpadapter.Response](clock, metrics)
	go results.Run(ctx, cfg.CachePurgeInterval)

	deps := httpadapter.Deps{
		Counts:  aggregator,
		History: geodata.NewHistoricalBuilder(aggregator, metrics),
		Reports: reports,
		Cache:   results,
	}
	ready := httpadapter.Readiness{exec}

	// Shared cache tier (feature-flagged via REDIS_ADDR).
	var store *redisadapter.Store
	if cfg.RedisAddr != "" {
		store = redisadapter.NewStore(cfg, metrics)
		deps.Shared = store
		ready = append(ready, store)
		logger.Info("shared cache enabled", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
	} else {
		logger.Info("shared cache disabled")
	}

	// Aggregate feed (feature-flagged via KAFKA_BROKERS).
	var writer *kafkaadapter.Writer
	if len(cfg.KafkaBrokers) > 0 {
		writer = kafkaadapter.NewWriter(cfg, logger, metrics)
		deps.Publisher = writer
		logger.Info("aggregate feed enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaAggregatesTopic)
	} else {
		logger.Info("aggregate feed disabled")
	}

	api := httpadapter.NewAPI(cfg, deps, logger)
	srv := httpadapter.NewServer(cfg.HTTPAddr, api, ready, logger, metrics)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Error("redis close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
