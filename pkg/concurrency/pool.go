// Package concurrency wraps the pond worker pool behind the small
// surface the account supervisor needs.
package concurrency

import (
	"time"

	"github.com/alitto/pond"

	"algotrader/internal/core"
)

// PoolConfig sizes a worker pool. The supervisor runs one long-lived
// session per account, so workers and capacity both track the account
// count.
type PoolConfig struct {
	Name        string
	MaxWorkers  int
	MaxCapacity int
	IdleTimeout time.Duration
}

// WorkerPool runs account sessions on pond workers. A panic escaping
// one session is logged and contained so it cannot take down the
// sibling accounts.
type WorkerPool struct {
	name   string
	pool   *pond.WorkerPool
	logger core.Logger
}

func NewWorkerPool(cfg PoolConfig, logger core.Logger) *WorkerPool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	if cfg.MaxCapacity <= 0 {
		cfg.MaxCapacity = cfg.MaxWorkers
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}

	poolLogger := logger.WithField("component", "worker_pool").WithField("pool", cfg.Name)
	return &WorkerPool{
		name: cfg.Name,
		pool: pond.New(
			cfg.MaxWorkers,
			cfg.MaxCapacity,
			pond.MinWorkers(1),
			pond.IdleTimeout(cfg.IdleTimeout),
			pond.Strategy(pond.Balanced()),
			pond.PanicHandler(func(p interface{}) {
				poolLogger.Error("Recovered panic in pooled session", "panic", p)
			}),
		),
		logger: poolLogger,
	}
}

// Submit queues a session, blocking when the pool is at capacity.
func (wp *WorkerPool) Submit(task func()) {
	wp.pool.Submit(task)
}

// Stop waits for every submitted session to finish and releases the
// workers.
func (wp *WorkerPool) Stop() {
	wp.pool.StopAndWait()
}

// Running reports how many sessions are currently executing.
func (wp *WorkerPool) Running() int {
	return wp.pool.RunningWorkers()
}
