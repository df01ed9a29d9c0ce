// Package scheduler owns the recurring polling jobs that drive price
// ingestion. The loop is timer-driven: it sleeps until the earliest
// next_run (or a wake signal on submit/resume) instead of busy-polling
// the job set.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pricepulse/pricepulse/internal/domain"
	"github.com/pricepulse/pricepulse/internal/pricereader"
)

// PriceReader is the ingestion entry point a cycle drives.
type PriceReader interface {
	GetPrice(ctx context.Context, symbol string, opts pricereader.Options) (*domain.PricePoint, error)
}

// Store persists job state so jobs survive restarts.
type Store interface {
	UpsertJob(ctx context.Context, job *domain.PollingJob) error
	GetJob(ctx context.Context, jobID string) (*domain.PollingJob, error)
	ListJobs(ctx context.Context) ([]domain.PollingJob, error)
}

// Config holds scheduler settings.
type Config struct {
	// MaxConcurrentFetches bounds per-cycle symbol fetch concurrency.
	// All fetches still serialize through the shared rate limiter.
	MaxConcurrentFetches int

	// FailureThreshold is the number of consecutive cycles with
	// failures after which a job stops scheduling. Zero disables it.
	FailureThreshold int

	// DefaultInterval is used when a submission passes no interval.
	DefaultInterval time.Duration
}

// Scheduler runs polling jobs against the cache-aside reader.
type Scheduler struct {
	reader   PriceReader
	store    Store
	cfg      Config
	registry *Registry
	logger   *slog.Logger

	wake    chan struct{}
	cycleWG sync.WaitGroup
}

// New creates a Scheduler.
func New(reader PriceReader, store Store, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.MaxConcurrentFetches < 1 {
		cfg.MaxConcurrentFetches = 1
	}
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = time.Minute
	}
	return &Scheduler{
		reader:   reader,
		store:    store,
		cfg:      cfg,
		registry: NewRegistry(),
		logger:   logger,
		wake:     make(chan struct{}, 1),
	}
}

// Submit creates a polling job in pending state with next_run = now
// and wakes the loop.
func (s *Scheduler) Submit(ctx context.Context, symbols []string, interval time.Duration, providerName string) (string, error) {
	if len(symbols) == 0 {
		return "", fmt.Errorf("polling job needs at least one symbol")
	}
	if interval <= 0 {
		interval = s.cfg.DefaultInterval
	}

	normalized := make(domain.SymbolList, 0, len(symbols))
	for _, sym := range symbols {
		if sym = domain.NormalizeSymbol(sym); sym != "" {
			normalized = append(normalized, sym)
		}
	}
	if len(normalized) == 0 {
		return "", fmt.Errorf("polling job needs at least one symbol")
	}

	now := time.Now().UTC()
	job := &domain.PollingJob{
		JobID:     "poll_" + uuid.New().String()[:8],
		Symbols:   normalized,
		Interval:  interval,
		Provider:  providerName,
		Status:    domain.JobPending,
		NextRun:   &now,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.UpsertJob(ctx, job); err != nil {
		return "", err
	}
	s.registry.Put(job)
	s.signal()

	s.logger.Info("polling job submitted",
		"job_id", job.JobID,
		"symbols", []string(normalized),
		"interval", interval)
	return job.JobID, nil
}

// Pause stops future cycles for the job. An in-flight cycle finishes.
// Idempotent; cancelled jobs cannot be paused.
func (s *Scheduler) Pause(ctx context.Context, jobID string) error {
	return s.transition(ctx, jobID, func(job *domain.PollingJob) {
		if !job.Status.Terminal() {
			job.Status = domain.JobPaused
		}
	})
}

// Resume re-enters a paused or failed job into the loop without losing
// its history. Idempotent; cancelled jobs cannot be resumed.
func (s *Scheduler) Resume(ctx context.Context, jobID string) error {
	err := s.transition(ctx, jobID, func(job *domain.PollingJob) {
		if job.Status.Terminal() {
			return
		}
		job.Status = domain.JobPending
		job.FailureCount = 0
		if job.NextRun == nil {
			now := time.Now().UTC()
			job.NextRun = &now
		}
	})
	if err != nil {
		return err
	}
	s.signal()
	return nil
}

// Cancel terminally stops the job and frees its registry entry.
// Idempotent: cancelling an already-cancelled job succeeds.
func (s *Scheduler) Cancel(ctx context.Context, jobID string) error {
	err := s.transition(ctx, jobID, func(job *domain.PollingJob) {
		job.Status = domain.JobCancelled
	})
	if errors.Is(err, domain.ErrJobNotFound) {
		// Registry entry already freed; confirm against the store.
		stored, serr := s.store.GetJob(ctx, jobID)
		if serr != nil {
			return serr
		}
		if stored.Status == domain.JobCancelled {
			return nil
		}
		stored.Status = domain.JobCancelled
		stored.UpdatedAt = time.Now().UTC()
		return s.store.UpsertJob(ctx, stored)
	}
	if err != nil {
		return err
	}
	s.registry.Remove(jobID)
	return nil
}

// Job returns the current state of a job.
func (s *Scheduler) Job(ctx context.Context, jobID string) (domain.PollingJob, error) {
	if job, ok := s.registry.Get(jobID); ok {
		return job, nil
	}
	return domain.PollingJob{}, domain.ErrJobNotFound
}

// Jobs returns all registered jobs, stable by creation time.
func (s *Scheduler) Jobs() []domain.PollingJob {
	jobs := s.registry.List()
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.Before(jobs[j].CreatedAt) })
	return jobs
}

func (s *Scheduler) transition(ctx context.Context, jobID string, fn func(*domain.PollingJob)) error {
	job, ok := s.registry.Update(jobID, fn)
	if !ok {
		return domain.ErrJobNotFound
	}
	if err := s.store.UpsertJob(ctx, &job); err != nil {
		return err
	}
	return nil
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Start recovers persisted jobs and runs the scheduling loop until the
// context is cancelled. In-flight cycles run to completion on shutdown.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.recover(ctx); err != nil {
		return err
	}

	s.logger.Info("scheduler started", "jobs", len(s.registry.List()))

	for {
		timer, wait := s.nextTimer()

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			s.cycleWG.Wait()
			s.logger.Info("scheduler stopped")
			return nil
		case <-s.wake:
			if timer != nil {
				timer.Stop()
			}
		case <-wait:
		}

		s.runDue(ctx)
	}
}

// nextTimer returns a timer firing at the earliest next_run, or a nil
// channel (blocking forever) when nothing is scheduled.
func (s *Scheduler) nextTimer() (*time.Timer, <-chan time.Time) {
	next, ok := s.registry.NextWake()
	if !ok {
		return nil, nil
	}
	timer := time.NewTimer(time.Until(next))
	return timer, timer.C
}

// recover reloads non-terminal jobs from the store after a restart.
func (s *Scheduler) recover(ctx context.Context) error {
	jobs, err := s.store.ListJobs(ctx)
	if err != nil {
		return fmt.Errorf("recover jobs: %w", err)
	}
	for i := range jobs {
		job := jobs[i]
		if job.Status.Terminal() {
			continue
		}
		// A job caught mid-cycle by the previous shutdown goes back to
		// its quiescent state.
		if job.Status == domain.JobRunning {
			job.Status = domain.JobPending
		}
		s.registry.Put(&job)
	}
	return nil
}

// runDue launches one cycle per due job. Each due job was atomically
// transitioned to running with its run times advanced.
func (s *Scheduler) runDue(ctx context.Context) {
	due := s.registry.Due(time.Now().UTC(), func(job *domain.PollingJob) time.Duration {
		return job.Interval
	})

	for _, job := range due {
		if err := s.store.UpsertJob(ctx, &job); err != nil {
			s.logger.Error("error persisting job run times", "job_id", job.JobID, "error", err)
		}

		s.cycleWG.Add(1)
		go func(job domain.PollingJob) {
			defer s.cycleWG.Done()
			s.runCycle(ctx, job)
		}(job)
	}
}

// runCycle fetches every symbol of the job, isolating per-symbol
// failures, then records the cycle outcome. A manual pause or cancel
// applied while the cycle was in flight is never overwritten.
func (s *Scheduler) runCycle(ctx context.Context, job domain.PollingJob) {
	sem := make(chan struct{}, s.cfg.MaxConcurrentFetches)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var failures []string

	for _, symbol := range job.Symbols {
		wg.Add(1)
		sem <- struct{}{}
		go func(symbol string) {
			defer wg.Done()
			defer func() { <-sem }()

			_, err := s.reader.GetPrice(ctx, symbol, pricereader.Options{
				Provider:    job.Provider,
				BypassCache: true,
			})
			if err != nil {
				s.logger.Warn("symbol fetch failed",
					"job_id", job.JobID,
					"symbol", symbol,
					"error", err)
				mu.Lock()
				failures = append(failures, fmt.Sprintf("%s: %v", symbol, err))
				mu.Unlock()
			}
		}(symbol)
	}
	wg.Wait()

	sort.Strings(failures)

	updated, ok := s.registry.Update(job.JobID, func(j *domain.PollingJob) {
		if len(failures) == 0 {
			j.ErrorMessage = ""
			j.FailureCount = 0
			return
		}
		j.ErrorMessage = strings.Join(failures, "; ")
		j.FailureCount++
		if s.cfg.FailureThreshold > 0 && j.FailureCount >= s.cfg.FailureThreshold && j.Status.Schedulable() {
			j.Status = domain.JobFailed
			s.logger.Error("polling job failed after repeated errors",
				"job_id", j.JobID,
				"failures", j.FailureCount)
		}
	})
	if !ok {
		// Cancelled mid-cycle; nothing left to record.
		return
	}

	if err := s.store.UpsertJob(ctx, &updated); err != nil {
		s.logger.Error("error persisting job outcome", "job_id", job.JobID, "error", err)
	}
}
