// Package service exposes the pipeline's read and job-management
// operations to the HTTP layer.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/pricepulse/pricepulse/internal/domain"
	"github.com/pricepulse/pricepulse/internal/pricereader"
	"github.com/pricepulse/pricepulse/internal/scheduler"
	"github.com/pricepulse/pricepulse/internal/storage"
)

// MarketService fronts the cache-aside reader, the scheduler and the
// store for API requests.
type MarketService struct {
	reader    *pricereader.Reader
	scheduler *scheduler.Scheduler
	store     storage.Store
}

// NewMarketService wires the service from its collaborators.
func NewMarketService(reader *pricereader.Reader, sched *scheduler.Scheduler, store storage.Store) *MarketService {
	return &MarketService{
		reader:    reader,
		scheduler: sched,
		store:     store,
	}
}

// LatestPrice returns the current price through the cache-aside path.
// useCache=false forces a provider fetch.
func (s *MarketService) LatestPrice(ctx context.Context, symbol, providerName string, useCache bool) (*domain.PricePoint, error) {
	return s.reader.GetPrice(ctx, symbol, pricereader.Options{
		Provider:    providerName,
		BypassCache: !useCache,
	})
}

// PriceHistory returns persisted price points for the last given hours.
func (s *MarketService) PriceHistory(ctx context.Context, symbol string, hours int) ([]domain.PricePoint, error) {
	if hours <= 0 {
		hours = 24
	}
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	return s.store.GetPriceHistory(ctx, symbol, since)
}

// RecentPrices returns the newest limit price points for the symbol
// regardless of age.
func (s *MarketService) RecentPrices(ctx context.Context, symbol string, limit int) ([]domain.PricePoint, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return s.store.GetRecentPrices(ctx, symbol, limit)
}

// LatestAverage returns the most recent stored moving average for the
// symbol and period.
func (s *MarketService) LatestAverage(ctx context.Context, symbol string, period int) (*domain.MovingAverage, error) {
	if period <= 0 {
		period = 5
	}
	return s.store.GetLatestAverage(ctx, symbol, period)
}

// SubmitJob creates a recurring polling job.
func (s *MarketService) SubmitJob(ctx context.Context, symbols []string, interval time.Duration, providerName string) (string, error) {
	return s.scheduler.Submit(ctx, symbols, interval, providerName)
}

// GetJob returns job state, falling back to the store for jobs the
// scheduler has already released (cancelled ones).
func (s *MarketService) GetJob(ctx context.Context, jobID string) (domain.PollingJob, error) {
	job, err := s.scheduler.Job(ctx, jobID)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, domain.ErrJobNotFound) {
		return domain.PollingJob{}, err
	}

	stored, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return domain.PollingJob{}, err
	}
	return *stored, nil
}

// ListJobs returns all jobs known to the scheduler.
func (s *MarketService) ListJobs(ctx context.Context) []domain.PollingJob {
	return s.scheduler.Jobs()
}

// PauseJob pauses future cycles of a job.
func (s *MarketService) PauseJob(ctx context.Context, jobID string) error {
	return s.scheduler.Pause(ctx, jobID)
}

// ResumeJob re-enters a paused or failed job into the loop.
func (s *MarketService) ResumeJob(ctx context.Context, jobID string) error {
	return s.scheduler.Resume(ctx, jobID)
}

// CancelJob terminally stops a job.
func (s *MarketService) CancelJob(ctx context.Context, jobID string) error {
	return s.scheduler.Cancel(ctx, jobID)
}
