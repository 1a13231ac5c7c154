// Package shutdown provides graceful two-phase shutdown for the worker.
//
// Phase one (drain) stops admission of new work; phase two (hard) fires only
// when the grace period runs out and aborts whatever is still in flight.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"docconv/internal/pkg/logger"
)

// Manager handles graceful shutdown of services.
type Manager struct {
	log      *logger.Logger
	timeout  time.Duration
	handlers []Handler
	mu       sync.Mutex
	once     sync.Once
	done     chan struct{}

	drainCtx    context.Context
	drainCancel context.CancelFunc
	hardCtx     context.Context
	hardCancel  context.CancelFunc
}

// Handler is a function that performs cleanup during shutdown.
type Handler struct {
	Name    string
	Cleanup func(ctx context.Context) error
}

// NewManager creates a new shutdown manager.
func NewManager(log *logger.Logger, timeout time.Duration) *Manager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = logger.Discard()
	}
	drainCtx, drainCancel := context.WithCancel(context.Background())
	hardCtx, hardCancel := context.WithCancel(context.Background())
	return &Manager{
		log:         log.WithComponent("shutdown"),
		timeout:     timeout,
		handlers:    make([]Handler, 0),
		done:        make(chan struct{}),
		drainCtx:    drainCtx,
		drainCancel: drainCancel,
		hardCtx:     hardCtx,
		hardCancel:  hardCancel,
	}
}

// Register adds a cleanup handler. Handlers run in reverse registration order.
func (m *Manager) Register(name string, cleanup func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, Handler{Name: name, Cleanup: cleanup})
	m.log.Debug("registered shutdown handler", "name", name)
}

// RegisterSimple adds a simple cleanup handler without context.
func (m *Manager) RegisterSimple(name string, cleanup func()) {
	m.Register(name, func(ctx context.Context) error {
		cleanup()
		return nil
	})
}

// DrainContext is canceled as soon as shutdown starts.
func (m *Manager) DrainContext() context.Context {
	return m.drainCtx
}

// HardContext is canceled when the shutdown grace period is exhausted.
func (m *Manager) HardContext() context.Context {
	return m.hardCtx
}

// Wait blocks until a shutdown signal is received, then runs cleanup.
func (m *Manager) Wait() {
	m.WaitWithContext(context.Background())
}

// WaitWithContext waits for a shutdown signal or ctx cancellation.
func (m *Manager) WaitWithContext(ctx context.Context) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		m.log.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		m.log.Info("context canceled, initiating shutdown")
	}

	m.Shutdown()
}

// Shutdown cancels the drain context and runs all handlers sequentially in
// LIFO order under one deadline. When the deadline passes the hard context
// is canceled and the remaining handlers see an expired context. Calling
// Shutdown more than once is a no-op.
func (m *Manager) Shutdown() {
	m.once.Do(m.shutdown)
}

func (m *Manager) shutdown() {
	m.mu.Lock()
	handlers := make([]Handler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	m.drainCancel()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, m.hardCancel)
	defer stop()

	m.log.Info("starting graceful shutdown", "handlers", len(handlers), "timeout", m.timeout.String())

	for i := len(handlers) - 1; i >= 0; i-- {
		h := handlers[i]
		start := time.Now()
		m.log.Debug("running shutdown handler", "name", h.Name)

		if err := h.Cleanup(ctx); err != nil {
			m.log.Error("shutdown handler failed",
				"name", h.Name,
				"error", err.Error(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
			continue
		}
		m.log.Debug("shutdown handler completed",
			"name", h.Name,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	if ctx.Err() != nil {
		m.log.Warn("shutdown timeout exceeded, in-flight work abandoned")
	} else {
		m.log.Info("graceful shutdown completed")
	}

	m.hardCancel()
	close(m.done)
}

// Done returns a channel that is closed when shutdown is complete.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}
