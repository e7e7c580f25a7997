package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"support-triage-go/internal/config"
	"support-triage-go/internal/fetcher"
	"support-triage-go/internal/metrics"
	"support-triage-go/internal/pipeline"
)

// Scheduler periodically pulls raw emails from the fetcher and runs them
// through the ingestion pipeline. The pipeline itself stays synchronous;
// the scheduler is just an outer trigger, equivalent to a dashboard load.
type Scheduler struct {
	cron      *cron.Cron
	entryID   cron.EntryID
	config    *config.SchedulerConfig
	fetcher   fetcher.EmailFetcher
	pipeline  *pipeline.Pipeline
	metrics   *metrics.Metrics
	maxCount  int
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
	mu        sync.RWMutex
}

// NewScheduler creates a new scheduler
func NewScheduler(cfg *config.SchedulerConfig, f fetcher.EmailFetcher, p *pipeline.Pipeline, m *metrics.Metrics, maxCount int) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		config:   cfg,
		fetcher:  f,
		pipeline: p,
		metrics:  m,
		maxCount: maxCount,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	// Recreate the context in case this is a restart after Stop
	if s.ctx.Err() != nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}

	schedule := fmt.Sprintf("0 */%d * * * *", s.config.IntervalMinutes)

	entryID, err := s.cron.AddFunc(schedule, s.runCycle)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.entryID = entryID
	s.cron.Start()
	s.isRunning = true

	logrus.Infof("Scheduler started with interval: %d minutes", s.config.IntervalMinutes)
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	s.cancel()

	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
		logrus.Info("Scheduler stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Scheduler stop timeout, forcing shutdown")
	}

	s.cron.Remove(s.entryID)
	s.isRunning = false
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// runCycle fetches a batch of raw emails and ingests it
func (s *Scheduler) runCycle() {
	s.wg.Add(1)
	defer s.wg.Done()

	logrus.Info("Starting ingestion cycle")
	start := time.Now()

	s.metrics.IngestCycles.Inc()

	raws, err := s.fetcher.FetchEmails(s.ctx, s.maxCount)
	if err != nil {
		logrus.Errorf("Failed to fetch emails: %v", err)
		return
	}

	logrus.Infof("Fetched %d raw emails", len(raws))

	if err := s.pipeline.Ingest(s.ctx, raws); err != nil {
		logrus.Errorf("Failed to ingest emails: %v", err)
		return
	}

	duration := time.Since(start)
	s.metrics.IngestDuration.Observe(duration.Seconds())
	logrus.Infof("Ingestion cycle completed in %v", duration)
}

// RunOnce runs one fetch-and-ingest cycle immediately (for manual
// triggering)
func (s *Scheduler) RunOnce(ctx context.Context) error {
	raws, err := s.fetcher.FetchEmails(ctx, s.maxCount)
	if err != nil {
		return fmt.Errorf("failed to fetch emails: %w", err)
	}

	s.metrics.IngestCycles.Inc()
	start := time.Now()

	if err := s.pipeline.Ingest(ctx, raws); err != nil {
		return fmt.Errorf("failed to ingest emails: %w", err)
	}

	s.metrics.IngestDuration.Observe(time.Since(start).Seconds())
	return nil
}

// GetNextRun returns the time of the next scheduled run
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// GetLastRun returns the time of the last run
func (s *Scheduler) GetLastRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Prev
}

// Wait waits for in-flight cycles to finish
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
