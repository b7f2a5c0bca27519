package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Expirer tears down groups that outlived their maximum age.
type Expirer interface {
	ExpireStale(ctx context.Context) int
}

// Sweeper periodically expires stale groups on a cron schedule.
type Sweeper struct {
	schedule string
	timeout  time.Duration
	expirer  Expirer
	logger   *zap.Logger

	mu        sync.Mutex
	scheduler *cron.Cron
}

// NewSweeper creates a sweeper. Nothing runs until Start.
func NewSweeper(schedule string, expirer Expirer, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		schedule: schedule,
		timeout:  time.Minute,
		expirer:  expirer,
		logger:   logger,
	}
}

// Start registers the sweep and starts the scheduler. An empty schedule
// disables sweeping.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schedule == "" || s.scheduler != nil {
		return nil
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(s.schedule, s.RunOnce); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}
	scheduler.Start()
	s.scheduler = scheduler
	s.logger.Info("registry sweeper started", zap.String("schedule", s.schedule))
	return nil
}

// Stop stops the scheduler and waits for a running sweep.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	scheduler := s.scheduler
	s.scheduler = nil
	s.mu.Unlock()
	if scheduler == nil {
		return
	}
	<-scheduler.Stop().Done()
	s.logger.Info("registry sweeper stopped")
}

// RunOnce performs a single sweep.
func (s *Sweeper) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if n := s.expirer.ExpireStale(ctx); n > 0 {
		s.logger.Info("sweep expired groups", zap.Int("count", n))
	}
}
