package main

import (
	"github.com/archoncouncil/api/internal/config"
	"github.com/archoncouncil/api/internal/infra/jobs"
	"github.com/archoncouncil/api/pkg/logger"
)

// Workers holds all background worker instances.
type Workers struct {
	RateLimitSweeper *jobs.RateLimitSweeper
}

// WorkerDeps contains dependencies needed to create workers.
type WorkerDeps struct {
	Config   *config.Config
	Log      *logger.Logger
	Services *Services
}

// NewWorkers initializes all background workers.
func NewWorkers(deps *WorkerDeps) (*Workers, error) {
	w := &Workers{}

	if deps.Config.RateLimit.SweepSchedule != "" {
		sweeper, err := jobs.NewRateLimitSweeper(deps.Services.Limiter, deps.Config.RateLimit.SweepSchedule, deps.Log)
		if err != nil {
			return nil, err
		}
		w.RateLimitSweeper = sweeper
	}

	return w, nil
}

// Start starts all workers.
func (w *Workers) Start() {
	if w.RateLimitSweeper != nil {
		w.RateLimitSweeper.Start()
	}
}

// Stop stops all workers.
func (w *Workers) Stop() {
	if w.RateLimitSweeper != nil {
		w.RateLimitSweeper.Stop()
	}
}
