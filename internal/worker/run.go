// Package worker wires the conversion pipeline to the broker and the ops
// HTTP server.
package worker

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"docconv/internal/httpapi"
	"docconv/internal/httpapi/handlers"
	"docconv/internal/pkg/logger"
	"docconv/internal/worker/attempts"
	"docconv/internal/worker/fetch"
	"docconv/internal/worker/ledger"
	"docconv/internal/worker/metrics"
	"docconv/internal/worker/outcome"
	"docconv/internal/worker/processor"
	"docconv/internal/worker/queue"
	"docconv/internal/worker/renderer"
	"docconv/internal/worker/workspace"
)

// Run consumes conversion requests until the shutdown manager starts
// draining or one of the serving goroutines fails.
func Run(ctx context.Context, d Deps) error {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("worker")
	cfg := d.Config

	ws, err := workspace.New(cfg.Worker.WorkDir, log)
	if err != nil {
		return err
	}
	rc, err := renderer.New(cfg.Renderer)
	if err != nil {
		return err
	}
	m := metrics.New()

	var (
		jobLedger *ledger.Ledger
		tracker   *attempts.Tracker
	)
	pd := processor.Deps{
		Workspace:     ws,
		Fetcher:       fetch.New(cfg.Fetch, cfg.Bucket(), d.SP),
		Renderer:      rc,
		SP:            d.SP,
		Metrics:       m,
		RenderTimeout: cfg.Renderer.Timeout,
		MaxAttempts:   cfg.Worker.MaxAttempts,
		CacheControl:  cfg.Storage.CacheControl,
		PublicRead:    cfg.Storage.PublicRead,
		Log:           log,
	}
	if d.Pool != nil {
		jobLedger = ledger.New(d.Pool)
		if err := jobLedger.Migrate(ctx); err != nil {
			return err
		}
		pd.Ledger = jobLedger
	}
	if d.RDB != nil {
		tracker = attempts.New(d.RDB, cfg.Redis.AttemptsTTL)
		pd.Attempts = tracker
	}

	var consumer *queue.Consumer
	pd.Outcome = outcome.New(outcome.OpenerFunc(func() (outcome.Channel, error) {
		ch, err := consumer.Channel()
		if err != nil {
			return nil, err
		}
		return ch, nil
	}), cfg.Rabbit.OutcomeQueue, cfg.Rabbit.PublishTimeout, log)

	consumer = queue.NewConsumer(cfg.Rabbit, processor.New(pd), log)
	if err := consumer.Connect(ctx); err != nil {
		return err
	}
	d.Shutdown.Register("consumer", consumer.Shutdown)

	log.Info("worker started",
		"queue", cfg.Rabbit.Queue,
		"outcome_queue", cfg.Rabbit.OutcomeQueue,
		"renderer", rc.Name(),
		"storage", d.SP.Provider(),
		"work_dir", cfg.Worker.WorkDir,
		"max_attempts", cfg.Worker.MaxAttempts,
	)

	g, gctx := errgroup.WithContext(ctx)

	// Admission stops on either a shutdown signal or a failed sibling.
	drain, cancelDrain := context.WithCancel(gctx)
	defer cancelDrain()
	stop := context.AfterFunc(d.Shutdown.DrainContext(), cancelDrain)
	defer stop()

	g.Go(func() error {
		return consumer.Run(drain, d.Shutdown.HardContext())
	})

	if cfg.HTTP.Addr != "" {
		hd := handlers.Deps{
			Pool:    d.Pool,
			RDB:     d.RDB,
			SP:      d.SP,
			Broker:  consumer,
			Service: cfg.Log.ServiceName,
		}
		if jobLedger != nil {
			hd.Jobs = jobLedger
		}
		srv := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           httpapi.NewRouter(httpapi.Deps{Handlers: hd, Metrics: m.Handler(), Log: log}),
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return gctx },
		}

		g.Go(func() error {
			log.Info("ops server listening", "addr", cfg.HTTP.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-drain.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	return g.Wait()
}
