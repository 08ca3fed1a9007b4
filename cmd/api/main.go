package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/shardwork/jobmesh/internal/config"
	"github.com/shardwork/jobmesh/internal/db"
	httpx "github.com/shardwork/jobmesh/internal/http"
	"github.com/shardwork/jobmesh/internal/observability"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	// Root context cancelled on SIGINT/SIGTERM; every background loop
	// (shard acquisition, leader-gated cron, the socket listener) shares
	// this context and unwinds together on shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(context.Background(), "jobmesh-runner", "localhost:4317")
	if err != nil {
		fmt.Fprintf(os.Stderr, "otel init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	log := observability.NewLogger(cfg.Env)

	pool, err := db.NewPool(cfg.DBURL)
	if err != nil {
		log.Error("db connection failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	schemaCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = db.EnsureSchema(schemaCtx, pool)
	cancel()
	if err != nil {
		log.Error("schema bootstrap failed", "err", err)
		os.Exit(1)
	}

	seedCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = db.EnsureAdminUser(seedCtx, pool, cfg)
	cancel()
	if err != nil {
		log.Error("failed to seed admin user", "err", err)
		os.Exit(1)
	}

	rt, err := httpx.NewRuntime(ctx, log, pool, cfg)
	if err != nil {
		log.Error("runtime init failed", "err", err)
		os.Exit(1)
	}

	// cluster background loops: shard acquisition, leader-gated cron
	// (purge sweep), and the leader-only DLQ replay sweep.
	go rt.ShardMap.Run(ctx)
	go rt.Cron.Run(ctx)
	go rt.DlqWatcher.Run(ctx)

	if rt.SocketAddr != "" {
		go func() {
			if err := rt.SocketSrv.Serve(ctx, rt.SocketAddr); err != nil {
				log.Error("socket transport server failed", "err", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           rt.Engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server starting", "addr", srv.Addr, "env", cfg.Env, "runner_id", rt.RunnerID)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownContext, cancelFunc := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelFunc()

	if err := srv.Shutdown(shutdownContext); err != nil {
		log.Error("server graceful shutdown failed", "err", err)
		_ = srv.Close()
	} else {
		log.Info("server stopped gracefully")
	}

	_ = rt.RunnerStore.Close(context.Background())
}
