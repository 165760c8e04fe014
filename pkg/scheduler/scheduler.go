package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/LightningDocs/monthly-double-checker-v2/pkg/tracing"
)

var (
	// ErrSchedulerAlreadyRunning is returned when trying to start an already running scheduler
	ErrSchedulerAlreadyRunning = errors.New("scheduler already running")
)

const (
	// DefaultInterval is the default time between runs
	DefaultInterval = 24 * time.Hour
)

// Job is one scheduled unit of work
type Job func(ctx context.Context) error

// Config holds configuration for the scheduler
type Config struct {
	// Interval is how long to wait between runs
	Interval time.Duration

	// RunOnStart runs the job immediately instead of waiting a full interval
	RunOnStart bool
}

// DefaultConfig returns the default scheduler configuration
func DefaultConfig() Config {
	return Config{
		Interval:   DefaultInterval,
		RunOnStart: true,
	}
}

// Scheduler runs a job on a fixed interval. A run that is still going when the next tick
// arrives delays that tick; runs never overlap.
type Scheduler struct {
	job    Job
	config Config
	logger ectologger.Logger

	// Coordination
	stopCh   chan struct{}
	stoppedC chan struct{}
	running  bool
	mu       sync.RWMutex
}

// NewScheduler creates a new scheduler
func NewScheduler(job Job, config Config, logger ectologger.Logger) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}

	return &Scheduler{
		job:      job,
		config:   config,
		logger:   logger,
		stopCh:   make(chan struct{}),
		stoppedC: make(chan struct{}),
	}
}

// Start starts the scheduler loop in the background
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	s.logger.WithContext(ctx).Infof("Starting scheduler: interval=%s run_on_start=%t",
		s.config.Interval, s.config.RunOnStart)

	go s.loop(ctx)
	return nil
}

// Stop stops the scheduler, waiting for an in-flight run to finish
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.WithContext(ctx).Info("Stopping scheduler...")

	close(s.stopCh)

	select {
	case <-s.stoppedC:
		s.logger.WithContext(ctx).Info("Scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.WithContext(ctx).Warn("Scheduler shutdown timed out")
		return ctx.Err()
	}

	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.stoppedC)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if s.config.RunOnStart {
		s.runOnce(ctx)
	}

	for {
		select {
		case <-s.stopCh:
			s.logger.WithContext(ctx).Debug("Scheduler loop stopping")
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "Scheduler.runOnce")
	defer span.End()

	start := time.Now()
	if err := s.job(ctx); err != nil {
		tracing.RecordError(span, err)
		s.logger.WithContext(ctx).WithError(err).Errorf("Scheduled run failed after %s", time.Since(start).Round(time.Millisecond))
		return
	}
	s.logger.WithContext(ctx).Infof("Scheduled run completed in %s", time.Since(start).Round(time.Millisecond))
}
