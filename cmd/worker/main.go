package main

import (
	"context"
	"flag"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"docconv/internal/config"
	"docconv/internal/pkg/logger"
	"docconv/internal/pkg/shutdown"
	"docconv/internal/storage"
	"docconv/internal/worker"
)

func main() {
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		logger.NewDefault().LogFatal("invalid configuration", err)
	}

	log := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		AddSource:   cfg.Log.Source,
		ServiceName: cfg.Log.ServiceName,
	})
	log.Info("starting docconv worker",
		"queue", cfg.Rabbit.Queue,
		"storage", cfg.Storage.Provider,
		"renderer", cfg.Renderer.Kind,
	)

	ctx := context.Background()
	shutdownMgr := shutdown.NewManager(log, cfg.Worker.ShutdownTimeout)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		log.Info("connecting to PostgreSQL")
		pool, err = pgxpool.New(ctx, cfg.Postgres.URL)
		if err != nil {
			log.LogFatal("failed to connect to PostgreSQL", err)
		}
		shutdownMgr.RegisterSimple("postgres", pool.Close)

		if err := pool.Ping(ctx); err != nil {
			log.LogFatal("failed to ping PostgreSQL", err)
		}
		log.Info("PostgreSQL connected")
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		log.Info("connecting to Redis")
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		shutdownMgr.Register("redis", func(ctx context.Context) error {
			return rdb.Close()
		})

		if err := rdb.Ping(ctx).Err(); err != nil {
			log.LogFatal("failed to ping Redis", err)
		}
		log.Info("Redis connected")
	}

	sp, err := storage.NewProvider(ctx, cfg)
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}
	log.Info("storage provider ready", "provider", sp.Provider())

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	done := make(chan error, 1)
	go func() {
		done <- worker.Run(runCtx, worker.Deps{
			Config:   cfg,
			SP:       sp,
			Pool:     pool,
			RDB:      rdb,
			Shutdown: shutdownMgr,
			Log:      log,
		})
		stop()
	}()

	shutdownMgr.WaitWithContext(runCtx)

	if err := <-done; err != nil {
		log.LogFatal("worker stopped", err)
	}
	log.Info("docconv worker exited")
}
