// Package scheduler runs the database sync on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/waconsole/internal/domain"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SyncFunc performs one database sync.
type SyncFunc func(ctx context.Context) error

// Status describes the scheduled job.
type Status struct {
	Schedule  string    `json:"schedule"`
	Running   bool      `json:"running"`
	LastRun   time.Time `json:"lastRun,omitempty"`
	NextRun   time.Time `json:"nextRun"`
	LastError string    `json:"lastError,omitempty"`
}

// Scheduler fires SyncFunc on a cron expression. A tick that arrives
// while the previous run is still active is skipped.
type Scheduler struct {
	cron     *cron.Cron
	syncFunc SyncFunc
	logger   *zap.Logger

	mu       sync.Mutex
	entry    cron.EntryID
	schedule string
	running  bool
	lastRun  time.Time
	lastErr  error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler for the standard five-field cron expression
// spec (descriptors such as @hourly are accepted).
func New(spec string, fn SyncFunc, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:     cron.New(),
		syncFunc: fn,
		logger:   logger,
		schedule: spec,
		ctx:      ctx,
		cancel:   cancel,
	}
	id, err := s.cron.AddFunc(spec, func() { s.tick() })
	if err != nil {
		cancel()
		return nil, fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	s.entry = id
	return s, nil
}

// Start begins executing scheduled runs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("sync scheduler started",
		zap.String("schedule", s.schedule),
		zap.Time("next_run", s.next()))
}

// Stop halts the schedule, cancels an active run, and waits for it.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.cancel()
	s.wg.Wait()
	s.logger.Info("sync scheduler stopped")
}

// Trigger starts a run outside the schedule. It reports false when a run
// is already active.
func (s *Scheduler) Trigger() bool {
	if !s.begin() {
		return false
	}
	go s.run()
	return true
}

func (s *Scheduler) tick() {
	if !s.begin() {
		s.logger.Info("scheduled sync skipped, previous run still active")
		return
	}
	s.run()
}

func (s *Scheduler) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || s.ctx.Err() != nil {
		return false
	}
	s.running = true
	s.wg.Add(1)
	return true
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	start := time.Now()
	err := s.syncFunc(s.ctx)

	s.mu.Lock()
	s.running = false
	switch {
	case errors.Is(err, domain.ErrSyncInProgress):
		s.logger.Info("scheduled sync skipped, manual sync in progress")
	case domain.IsNotConfigured(err):
		s.lastErr = err
		s.logger.Warn("scheduled sync skipped", zap.Error(err))
	case err != nil:
		s.lastErr = err
		s.logger.Error("scheduled sync failed", zap.Duration("duration", time.Since(start)), zap.Error(err))
	default:
		s.lastRun = time.Now()
		s.lastErr = nil
		s.logger.Info("scheduled sync completed", zap.Duration("duration", time.Since(start)))
	}
	s.mu.Unlock()
}

// Status returns the job's current status.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Schedule: s.schedule,
		Running:  s.running,
		LastRun:  s.lastRun,
		NextRun:  s.next(),
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

func (s *Scheduler) next() time.Time {
	e := s.cron.Entry(s.entry)
	if e.Next.IsZero() && e.Schedule != nil {
		return e.Schedule.Next(time.Now())
	}
	return e.Next
}
