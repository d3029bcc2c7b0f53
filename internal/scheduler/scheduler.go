// Package scheduler orchestrates the recurring evolution and intake cycles.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Cycle is one recurring unit of work
type Cycle interface {
	Run(ctx context.Context) error
}

// Scheduler runs the evolution and intake cycles on independent intervals.
// Cycles never overlap with themselves; a cycle still running when its next
// tick fires skips that tick.
type Scheduler struct {
	cron      *cron.Cron
	logger    *logrus.Logger
	mu        sync.RWMutex
	isRunning bool
	jobIDs    []cron.EntryID
	running   map[string]*sync.Mutex
}

// NewScheduler creates a scheduler with UTC cron semantics
func NewScheduler(logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		logger:  logger,
		jobIDs:  make([]cron.EntryID, 0),
		running: make(map[string]*sync.Mutex),
	}
}

// ScheduleCycle registers a cycle to run every intervalSeconds
func (s *Scheduler) ScheduleCycle(name string, cycle Cycle, intervalSeconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("cannot schedule %s while scheduler is running", name)
	}
	if intervalSeconds < 5 {
		intervalSeconds = 5
	}

	guard := &sync.Mutex{}
	s.running[name] = guard

	jobFunc := func() {
		if !guard.TryLock() {
			s.logger.WithField("cycle", name).Warn("Previous cycle still running, skipping tick")
			return
		}
		defer guard.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(intervalSeconds*4)*time.Second)
		defer cancel()

		s.logger.WithField("cycle", name).Debug("Cycle starting")
		if err := cycle.Run(ctx); err != nil {
			s.logger.WithFields(logrus.Fields{
				"cycle": name,
				"error": err,
			}).Error("Cycle failed")
			return
		}
		s.logger.WithField("cycle", name).Debug("Cycle complete")
	}

	entryID, err := s.cron.AddFunc(fmt.Sprintf("@every %ds", intervalSeconds), jobFunc)
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}
	s.jobIDs = append(s.jobIDs, entryID)

	s.logger.WithFields(logrus.Fields{
		"cycle":    name,
		"interval": intervalSeconds,
	}).Info("Cycle scheduled")
	return nil
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}
	if len(s.jobIDs) == 0 {
		return fmt.Errorf("no cycles scheduled")
	}

	s.cron.Start()
	s.isRunning = true
	s.logger.WithField("jobs", len(s.jobIDs)).Info("Scheduler started")
	return nil
}

// Stop stops the scheduler and waits for running cycles to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	stopCtx := s.cron.Stop()
	<-stopCtx.Done()

	for name, guard := range s.running {
		guard.Lock()
		guard.Unlock()
		s.logger.WithField("cycle", name).Debug("Cycle drained")
	}

	s.isRunning = false
	s.logger.Info("Scheduler stopped")
}
