package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/emilythestrangee/reddit-clone/voteledger/internal/cache"
	"github.com/emilythestrangee/reddit-clone/voteledger/internal/config"
	"github.com/emilythestrangee/reddit-clone/voteledger/internal/database"
	"github.com/emilythestrangee/reddit-clone/voteledger/internal/handlers"
	"github.com/emilythestrangee/reddit-clone/voteledger/internal/logger"
	"github.com/emilythestrangee/reddit-clone/voteledger/internal/metrics"
	"github.com/emilythestrangee/reddit-clone/voteledger/internal/observability"
	"github.com/emilythestrangee/reddit-clone/voteledger/internal/server"
	"github.com/emilythestrangee/reddit-clone/voteledger/internal/votes"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger is not configured yet
		log.Fatalf("Failed to load config: %v", err)
	}

	appLog, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLog.Sync()

	shutdownTracing := observability.InitOTel(context.Background(), appLog, observability.OtelConfig{
		Enabled:     cfg.OtelEnabled,
		ServiceName: "voteledger",
		Environment: cfg.AppEnv,
		Endpoint:    cfg.OtelEndpoint,
		SampleRatio: cfg.OtelSampleRatio,
	})

	db, err := database.Open(cfg, appLog)
	if err != nil {
		appLog.Fatal("failed to initialize database", "error", err)
	}

	rdb, stateCache := setupRedis(cfg, appLog)

	reg := metrics.NewRegistry()
	engine := votes.NewEngine(votes.Deps{
		Runner: database.NewTxRunner(db.GetDB(), cfg.TxIsolation),
		Cache:  stateCache,
		Hooks:  metrics.NewVoteMetrics(reg),
		Clock:  clockwork.NewRealClock(),
		Log:    appLog,
	}, votes.Config{
		MaxAttempts:    cfg.VoteMaxAttempts,
		InitialBackoff: cfg.VoteRetryInitialBackoff,
		MaxBackoff:     cfg.VoteRetryMaxBackoff,
	})
	reader := votes.NewReader(database.NewLedgerStore(db.GetDB()), stateCache, appLog, cfg.VoteMaxBatch)
	handler := handlers.NewHandler(engine, reader, database.NewItemStore(db.GetDB()), appLog)

	srv := server.NewServer(cfg, server.Deps{
		DB:       db,
		Redis:    rdb,
		Handler:  handler,
		Registry: reg,
		Log:      appLog,
	})

	done := runGracefulShutdown(srv, appLog, db, rdb, shutdownTracing)

	appLog.Info("server starting", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		appLog.Error("server error", "error", err)
		os.Exit(1)
	}

	<-done
	appLog.Info("server stopped")
}

// setupRedis connects the vote-state cache when REDIS_URL is set.
// Without redis every state read goes to the ledger.
func setupRedis(cfg *config.Config, appLog *logger.Logger) (*redis.Client, votes.StateCache) {
	if cfg.RedisURL == "" {
		appLog.Info("redis not configured, vote-state cache disabled")
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rdb, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		appLog.Fatal("failed to connect to redis", "error", err)
	}
	appLog.Info("connected to redis", "ttl", cfg.VoteCacheTTL)
	return rdb, cache.NewVoteStateCache(rdb, cfg.VoteCacheTTL)
}

func runGracefulShutdown(srv *http.Server, appLog *logger.Logger, db database.Service, rdb *redis.Client, shutdownTracing func(context.Context) error) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		appLog.Info("shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			appLog.Error("server shutdown error", "error", err)
		}

		if rdb != nil {
			if err := rdb.Close(); err != nil {
				appLog.Error("failed to close redis", "error", err)
			}
		}
		if err := db.Close(); err != nil {
			appLog.Error("failed to close database", "error", err)
		}
		if err := shutdownTracing(shutdownCtx); err != nil {
			appLog.Error("failed to flush traces", "error", err)
		}

		close(done)
	}()

	return done
}
