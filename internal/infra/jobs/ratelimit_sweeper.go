// Package jobs holds the background jobs run by the API process.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/archoncouncil/api/pkg/logger"
)

// Sweeper drops expired rate limit entries.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// RateLimitSweeper periodically evicts expired rate limit windows so the
// in-memory store does not grow with every client that ever called.
type RateLimitSweeper struct {
	sweeper  Sweeper
	schedule cron.Schedule
	expr     string
	timeout  time.Duration
	cron     *cron.Cron
	logger   *logger.Logger

	mu      sync.Mutex
	running bool
}

// NewRateLimitSweeper parses expr, which accepts standard five-field cron
// expressions and descriptors such as "@every 5m".
func NewRateLimitSweeper(sweeper Sweeper, expr string, log *logger.Logger) (*RateLimitSweeper, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", expr, err)
	}

	return &RateLimitSweeper{
		sweeper:  sweeper,
		schedule: schedule,
		expr:     expr,
		timeout:  30 * time.Second,
		cron:     cron.New(),
		logger:   log.With("component", "ratelimit-sweeper"),
	}, nil
}

// Start schedules the sweep in the background.
func (s *RateLimitSweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	s.logger.Info("starting rate limit sweeper", "schedule", s.expr)
	s.cron.Schedule(s.schedule, cron.FuncJob(s.sweep))
	s.cron.Start()
	s.running = true
}

// Stop stops scheduling and waits for a running sweep to finish.
func (s *RateLimitSweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}

	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("rate limit sweeper stopped")
}

func (s *RateLimitSweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	removed, err := s.sweeper.Sweep(ctx)
	if err != nil {
		s.logger.Error("rate limit sweep failed", "error", err)
		return
	}
	if removed > 0 {
		s.logger.Debug("expired rate limit entries removed", "count", removed)
	}
}
