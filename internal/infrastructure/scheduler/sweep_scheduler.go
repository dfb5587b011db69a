package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/groupbuy/backend/internal/application/groupbuy"
	"go.uber.org/zap"
)

// SweepRunner runs one expiry and reminder pass
type SweepRunner interface {
	Sweep(ctx context.Context) (*groupbuy.SweepResult, error)
}

// SweepSchedulerConfig holds sweep scheduling configuration
type SweepSchedulerConfig struct {
	Interval   time.Duration
	Timeout    time.Duration
	RunOnStart bool
}

// DefaultSweepSchedulerConfig returns the default configuration
func DefaultSweepSchedulerConfig() SweepSchedulerConfig {
	return SweepSchedulerConfig{
		Interval:   time.Hour,
		Timeout:    5 * time.Minute,
		RunOnStart: true,
	}
}

// Validate checks the configuration
func (c SweepSchedulerConfig) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// SweepScheduler runs the sweep on a fixed interval. The cron endpoint can
// still trigger sweeps; concurrent runs collapse into one.
type SweepScheduler struct {
	config SweepSchedulerConfig
	runner SweepRunner
	logger *zap.Logger

	cancel     context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.Mutex
	isRunning  bool
	lastResult *groupbuy.SweepResult
	lastErr    error
}

// NewSweepScheduler creates a scheduler
func NewSweepScheduler(config SweepSchedulerConfig, runner SweepRunner, logger *zap.Logger) (*SweepScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &SweepScheduler{
		config: config,
		runner: runner,
		logger: logger,
	}, nil
}

// Start starts the run loop. Calling Start on a running scheduler is a no-op.
func (s *SweepScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runLoop(ctx)

	s.logger.Info("Sweep scheduler started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("timeout", s.config.Timeout),
	)
	return nil
}

// Stop cancels the run loop and waits for an in-flight sweep until ctx ends
func (s *SweepScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Sweep scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Sweep scheduler stop timed out")
		return ctx.Err()
	}
}

// IsRunning reports whether the run loop is active
func (s *SweepScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// LastResult returns the outcome of the most recent scheduled sweep
func (s *SweepScheduler) LastResult() (*groupbuy.SweepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResult, s.lastErr
}

func (s *SweepScheduler) runLoop(ctx context.Context) {
	defer s.wg.Done()

	if s.config.RunOnStart {
		s.runOnce(ctx)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *SweepScheduler) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	result, err := s.runner.Sweep(runCtx)

	s.mu.Lock()
	s.lastResult, s.lastErr = result, err
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Scheduled sweep failed", zap.Error(err))
		return
	}
	s.logger.Info("Scheduled sweep finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("expired", result.Expired),
		zap.Int("reminders_sent", result.RemindersSent),
		zap.Int("errors", len(result.Errors)),
	)
}
