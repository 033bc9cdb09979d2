package aggregate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultInterval is the time between scheduled passes.
const DefaultInterval = 5 * time.Minute

// ErrPassInFlight is returned by Trigger while another pass is running.
var ErrPassInFlight = eris.New("aggregate: pass already in flight")

// Runner runs one aggregation pass.
type Runner interface {
	RunPass(ctx context.Context) (*BatchReport, error)
}

// Scheduler drives passes from a ticker. At most one pass runs at a time;
// a tick that fires while a pass is running is skipped, not queued.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	log      *zap.Logger

	inFlight atomic.Bool
	skipped  atomic.Int64
	wg       sync.WaitGroup

	mu      sync.RWMutex
	last    *BatchReport
	lastErr error
}

// NewScheduler creates a Scheduler (DefaultInterval when interval <= 0).
func NewScheduler(r Runner, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		runner:   r,
		interval: interval,
		log:      zap.L().With(zap.String("component", "aggregate.scheduler")),
	}
}

// Run runs a pass immediately and then on every tick until ctx is done. It
// waits for the pass in flight before returning.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("starting aggregation scheduler", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tickAsync(ctx)
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.log.Info("aggregation scheduler stopped")
			return
		case <-ticker.C:
			s.tickAsync(ctx)
		}
	}
}

func (s *Scheduler) tickAsync(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Tick(ctx)
	}()
}

// Tick runs one pass unless one is already in flight. The bool is false
// when the tick was skipped. A failed pass returns a nil report and true.
func (s *Scheduler) Tick(ctx context.Context) (*BatchReport, bool) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.log.Warn("aggregation pass still running, skipping tick")
		return nil, false
	}
	defer s.inFlight.Store(false)

	report, err := s.run(ctx)
	if err != nil {
		s.log.Error("aggregation pass failed", zap.Error(err))
		return nil, true
	}
	return report, true
}

// Trigger runs a pass now, for manual recovery or backfill.
func (s *Scheduler) Trigger(ctx context.Context) (*BatchReport, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, ErrPassInFlight
	}
	defer s.inFlight.Store(false)
	return s.run(ctx)
}

// TriggerAsync claims the in-flight slot and runs the pass in the
// background under ctx. It returns ErrPassInFlight without starting
// anything when a pass is already running. The outcome is available
// through LastReport and LastError.
func (s *Scheduler) TriggerAsync(ctx context.Context) error {
	if !s.inFlight.CompareAndSwap(false, true) {
		return ErrPassInFlight
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.inFlight.Store(false)
		report, err := s.run(ctx)
		if err != nil {
			s.log.Error("manual aggregation pass failed", zap.Error(err))
			return
		}
		s.log.Info("manual aggregation pass complete",
			zap.Int("processed", report.Processed),
			zap.Int("skipped", report.Skipped),
		)
	}()
	return nil
}

// Wait blocks until every pass started by Run or TriggerAsync has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) (*BatchReport, error) {
	report, err := s.runner.RunPass(ctx)
	s.mu.Lock()
	s.lastErr = err
	if err == nil {
		s.last = report
	}
	s.mu.Unlock()
	return report, err
}

// Running reports whether a pass is in flight.
func (s *Scheduler) Running() bool {
	return s.inFlight.Load()
}

// SkippedTicks returns the number of ticks skipped because a pass was
// still running.
func (s *Scheduler) SkippedTicks() int64 {
	return s.skipped.Load()
}

// LastReport returns the report of the last successful pass, or nil.
func (s *Scheduler) LastReport() *BatchReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// LastError returns the error of the most recent pass, or nil.
func (s *Scheduler) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}
