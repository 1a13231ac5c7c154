package handlers

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"docconv/internal/pkg/logger"
	"docconv/internal/ports"
	"docconv/internal/worker/ledger"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// JobStore reads the job ledger.
type JobStore interface {
	Get(ctx context.Context, uuid string) (ledger.Record, error)
	List(ctx context.Context, status string, limit int) ([]ledger.Record, error)
}

// Deps lists the dependencies probed by /health. Pool, RDB and Jobs are
// optional.
type Deps struct {
	Pool    *pgxpool.Pool
	RDB     *redis.Client
	SP      ports.StorageProvider
	Broker  Pinger
	Jobs    JobStore
	Service string
	Log     *logger.Logger
}

type Handler struct {
	pool    *pgxpool.Pool
	rdb     *redis.Client
	sp      ports.StorageProvider
	broker  Pinger
	jobs    JobStore
	service string
	log     *logger.Logger
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.Discard()
	}
	service := d.Service
	if service == "" {
		service = "docconv-worker"
	}
	return &Handler{
		pool:    d.Pool,
		rdb:     d.RDB,
		sp:      d.SP,
		broker:  d.Broker,
		jobs:    d.Jobs,
		service: service,
		log:     log.WithComponent("httpapi"),
	}
}

// HasJobs reports whether the ledger endpoints can be served.
func (h *Handler) HasJobs() bool {
	return h.jobs != nil
}
