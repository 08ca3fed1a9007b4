package http

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/shardwork/jobmesh/internal/auth"
	"github.com/shardwork/jobmesh/internal/cluster/runnerstore"
	"github.com/shardwork/jobmesh/internal/cluster/shardmap"
	"github.com/shardwork/jobmesh/internal/config"
	"github.com/shardwork/jobmesh/internal/coordinator"
	"github.com/shardwork/jobmesh/internal/dlq"
	"github.com/shardwork/jobmesh/internal/entity"
	"github.com/shardwork/jobmesh/internal/eventbus"
	"github.com/shardwork/jobmesh/internal/http/handlers"
	"github.com/shardwork/jobmesh/internal/http/middlewares"
	"github.com/shardwork/jobmesh/internal/jobs"
	"github.com/shardwork/jobmesh/internal/observability"
	"github.com/shardwork/jobmesh/internal/progress"
	"github.com/shardwork/jobmesh/internal/purge"
	"github.com/shardwork/jobmesh/internal/queue/redisclient"
	"github.com/shardwork/jobmesh/internal/repo/postgres"
	"github.com/shardwork/jobmesh/internal/router"
	"github.com/shardwork/jobmesh/internal/snowflake"
	"github.com/shardwork/jobmesh/internal/store"
	"github.com/shardwork/jobmesh/internal/transport"
	"github.com/shardwork/jobmesh/internal/workflow"
)

// Runtime bundles everything one runner process needs: the HTTP engine
// plus the background loops that make it a peer in the cluster (shard
// acquisition, leader-gated cron work, the cross-runner RPC listener).
// cmd/api wires this once at startup and runs every field's loop
// alongside the HTTP server.
type Runtime struct {
	Engine *gin.Engine

	RunnerID    string
	ShardMap    *shardmap.ShardMap
	RunnerStore *runnerstore.Store
	DlqWatcher  *dlq.Watcher
	Purge       *purge.Sweeper
	Cron        *coordinator.CronDispatcher
	SocketAddr  string
	SocketSrv   *transport.SocketServer
}

// NewRuntime builds the full engine: State Store, Job Entity pool,
// Cluster Shard Map, Submitter, Scheduled/Singleton coordinator, DLQ
// Watcher, purge sweeper, cross-runner transport, and the HTTP surface
// in front of all of it (spec.md §3-§9).
func NewRuntime(ctx context.Context, log *slog.Logger, pool *pgxpool.Pool, cfg config.Config) (*Runtime, error) {
	if os.Getenv("APP_ENV") != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)

	redis := redisclient.New(redisclient.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	idGen, err := snowflake.NewGenerator(cfg.SnowflakeNode)
	if err != nil {
		return nil, err
	}

	runnerStore, err := runnerstore.New(ctx, pool, cfg.DBURL, cfg.RunnerID)
	if err != nil {
		return nil, err
	}

	jobsRepo := postgres.NewJobsRepo(pool, prom)
	dlqRepo := postgres.NewDlqRepo(pool, prom)
	stateStore := store.New(jobsRepo, redis)

	registry := jobs.NewRegistry()
	progressRegistry := progress.NewRegistry()
	bus := eventbus.New()
	heartbeat := redisclient.NewHeartbeatWriter(redis)

	wf := workflow.Deps{
		Store:     stateStore,
		Registry:  registry,
		Bus:       bus,
		Progress:  progressRegistry,
		Dlq:       dlqRepo,
		Heartbeat: heartbeat,
	}

	entityPool := entity.NewPool(ctx, stateStore, wf, idGen)

	const (
		roleDlqWatcher = "dlq-watcher"
		rolePurgeSweep = "purge-sweep"
	)

	shards := shardmap.New(shardmap.Config{
		RunnerID: cfg.RunnerID,
		Groups: map[string]int{
			shardmap.GroupCritical: shardmap.DefaultShardsPerGroup,
			shardmap.GroupDefault:  shardmap.DefaultShardsPerGroup,
			shardmap.GroupLow:      shardmap.DefaultShardsPerGroup,
			// singleton roles ride the shard map as one-shard groups
			// (spec.md §4.7).
			roleDlqWatcher: 1,
			rolePurgeSweep: 1,
		},
		HealthMode: cfg.ClusterHealth,
	}, runnerStore, func(group string, shardID int) {
		// Pool has no shard-keyed index of its entities, so losing any
		// one shard conservatively evicts every local entity rather than
		// risk serving a shard this runner no longer owns.
		entityPool.EvictAll()
	})

	addrBook := transport.ParseAddressBook(os.Getenv("RUNNER_ADDRESSES"))
	forwarder := transport.NewForwarder(shards, runnerStore, addrBook, transport.Mode(cfg.ClusterTransport))

	submitter := router.New(router.Deps{
		Pool:      entityPool,
		ShardMap:  shards,
		Registry:  registry,
		Progress:  progressRegistry,
		Store:     stateStore,
		Forwarder: forwarder,
	})

	sweeper := purge.NewSweeper(jobsRepo, cfg.PurgeCompletedTTLDays, cfg.PurgeFailedTTLDays)

	dlqLeader := coordinator.NewSingleton(ctx, roleDlqWatcher, cfg.RunnerID, shards)
	dlqWatcher := dlq.New(dlqRepo, bus, dlqLeader, submitter, cfg.DlqCheckInterval, cfg.DlqMaxRetries)

	purgeLeader := coordinator.NewSingleton(ctx, rolePurgeSweep, cfg.RunnerID, shards)
	cron := coordinator.NewCronDispatcher(purgeLeader, coordinator.CronJob{
		Name:     "purge-terminal-jobs",
		Interval: 24 * time.Hour,
		Run:      sweeper.Run,
	})

	dispatcher := transport.NewDispatcher(entityPool)
	socketSrv := transport.NewSocketServer(dispatcher)

	jwtManager := auth.NewManager(
		cfg.JWTSecret,
		time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute,
		time.Duration(cfg.JWTRefreshTTLDays)*24*time.Hour,
	)
	usersRepo := postgres.NewUsersRepo(pool)
	refreshTokensRepo := postgres.NewRefreshTokensRepo(pool)
	authHandler := handlers.NewAuthHandler(usersRepo, usersRepo, jwtManager, refreshTokensRepo, cfg)
	authMiddleware := middlewares.NewAuthMiddleware(jwtManager)

	readyCheck := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			return err
		}
		return redis.Ping(ctx)
	}

	jobsHandler := handlers.NewJobsHandler(submitter)
	adminHandler := handlers.NewAdminJobsHandler(stateStore, dlqRepo, shards, heartbeat, submitter)
	rpcHandler := handlers.NewInternalRPCHandler(dispatcher)
	healthHandler := handlers.NewHealthHandler(readyCheck, shards, dlqLeader, purgeLeader)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("jobmesh-runner"))
	r.Use(prom.GinHandleMiddleware())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger())
	r.Use(middlewares.CORSMiddleware([]string{"http://localhost:3000"}))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.MaxBodyBytes(1 << 20))
	r.Use(middlewares.RequireJSON())

	loginLimiter := middlewares.NewRateLimiter(5, 1*time.Minute)
	signupLimiter := middlewares.NewRateLimiter(3, 1*time.Minute)
	refreshLimiter := middlewares.NewRateLimiter(10, 1*time.Minute)
	submitLimiter := middlewares.NewRateLimiter(100, 1*time.Minute)

	r.GET("/healthz", healthHandler.Healthz)
	r.GET("/readyz", healthHandler.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	r.GET("/docs", handlers.SwaggerUI)

	r.POST("/signup", signupLimiter.RateLimiterMiddleware(middlewares.KeyByIP), authHandler.SignUp)
	r.POST("/login", loginLimiter.RateLimiterMiddleware(middlewares.KeyByIP), authHandler.Login)
	r.POST("/auth/refresh", refreshLimiter.RateLimiterMiddleware(middlewares.KeyByIP), authHandler.Refresh)
	r.POST("/auth/logout", authHandler.Logout)

	// internal cluster RPC surface: cross-runner only, no end-user auth.
	r.POST("/internal/rpc", rpcHandler.HTTP)
	r.GET("/internal/rpc/ws", rpcHandler.Websocket)

	authed := r.Group("/")
	authed.Use(authMiddleware.RequireAuth())
	{
		authed.POST("/jobs", submitLimiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP), jobsHandler.Submit)
		authed.POST("/jobs/batch/:batchId", submitLimiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP), jobsHandler.SubmitBatch)
		authed.GET("/jobs/:id", jobsHandler.Status)
		authed.POST("/jobs/:id/cancel", jobsHandler.Cancel)
		authed.GET("/jobs/:id/progress", jobsHandler.Progress)
	}

	admin := authed.Group("/admin")
	admin.Use(authMiddleware.RequireRole(cfg.AdminRole))
	{
		admin.GET("/jobs", adminHandler.List)
		admin.GET("/jobs/:id", adminHandler.GetByID)
		admin.POST("/jobs/:id/reset", adminHandler.ResetJob)
		admin.POST("/jobs/recover-in-flight", adminHandler.RecoverInFlight)
		admin.POST("/dlq/:id/replay", adminHandler.Replay)
	}

	return &Runtime{
		Engine:      r,
		RunnerID:    cfg.RunnerID,
		ShardMap:    shards,
		RunnerStore: runnerStore,
		DlqWatcher:  dlqWatcher,
		Purge:       sweeper,
		Cron:        cron,
		SocketAddr:  os.Getenv("RUNNER_SOCKET_ADDR"),
		SocketSrv:   socketSrv,
	}, nil
}
