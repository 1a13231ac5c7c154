package worker

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"docconv/internal/config"
	"docconv/internal/pkg/logger"
	"docconv/internal/pkg/shutdown"
	"docconv/internal/ports"
)

// Deps are built by main. Pool and RDB are nil when their service is not
// configured.
type Deps struct {
	Config   config.Config
	SP       ports.StorageProvider
	Pool     *pgxpool.Pool
	RDB      *redis.Client
	Shutdown *shutdown.Manager
	Log      *logger.Logger
}
