// Package storage provides the Postgres persistence layer behind a
// narrow Store interface. Implementations must be safe for concurrent
// use.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pricepulse/pricepulse/internal/domain"
)

// Store is the persistence boundary consumed by the reader, consumer,
// scheduler and HTTP layer.
type Store interface {
	// SavePricePoint atomically persists a raw provider response and
	// the price point parsed from it. The point references the raw row
	// only after both inserts commit.
	SavePricePoint(ctx context.Context, raw *domain.RawResponse, point *domain.PricePoint) error

	// InsertAverage persists a derived moving average. Rows are never
	// upserted; redelivered events may produce duplicates.
	InsertAverage(ctx context.Context, avg *domain.MovingAverage) error

	// GetLatestPrice returns the most recent price point for the
	// symbol, optionally filtered by provider. ErrNotFound when none.
	GetLatestPrice(ctx context.Context, symbol, provider string) (*domain.PricePoint, error)

	// GetRecentPrices returns up to limit price points for the symbol,
	// newest first.
	GetRecentPrices(ctx context.Context, symbol string, limit int) ([]domain.PricePoint, error)

	// GetPriceHistory returns price points for the symbol since the
	// given instant, newest first.
	GetPriceHistory(ctx context.Context, symbol string, since time.Time) ([]domain.PricePoint, error)

	// GetLatestAverage returns the most recent moving average for the
	// symbol and period. ErrNotFound when none.
	GetLatestAverage(ctx context.Context, symbol string, period int) (*domain.MovingAverage, error)

	// UpsertJob creates or replaces a polling job row.
	UpsertJob(ctx context.Context, job *domain.PollingJob) error

	// GetJob returns a polling job by id. ErrJobNotFound when missing.
	GetJob(ctx context.Context, jobID string) (*domain.PollingJob, error)

	// ListJobs returns all persisted polling jobs.
	ListJobs(ctx context.Context) ([]domain.PollingJob, error)
}

type gormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an open gorm connection.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) SavePricePoint(ctx context.Context, raw *domain.RawResponse, point *domain.PricePoint) error {
	if raw.ID == uuid.Nil {
		raw.ID = uuid.New()
	}
	if point.ID == uuid.Nil {
		point.ID = uuid.New()
	}
	point.RawResponseID = raw.ID

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(raw).Error; err != nil {
			return err
		}
		return tx.Create(point).Error
	})
	if err != nil {
		return fmt.Errorf("save price point: %w", err)
	}
	return nil
}

func (s *gormStore) InsertAverage(ctx context.Context, avg *domain.MovingAverage) error {
	if avg.ID == uuid.Nil {
		avg.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(avg).Error; err != nil {
		return fmt.Errorf("insert moving average: %w", err)
	}
	return nil
}

func (s *gormStore) GetLatestPrice(ctx context.Context, symbol, provider string) (*domain.PricePoint, error) {
	query := s.db.WithContext(ctx).Where("symbol = ?", domain.NormalizeSymbol(symbol))
	if provider != "" {
		query = query.Where("provider = ?", provider)
	}

	var point domain.PricePoint
	err := query.Order("timestamp DESC").First(&point).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest price: %w", err)
	}
	return &point, nil
}

func (s *gormStore) GetRecentPrices(ctx context.Context, symbol string, limit int) ([]domain.PricePoint, error) {
	var points []domain.PricePoint
	err := s.db.WithContext(ctx).
		Where("symbol = ?", domain.NormalizeSymbol(symbol)).
		Order("timestamp DESC").
		Limit(limit).
		Find(&points).Error
	if err != nil {
		return nil, fmt.Errorf("get recent prices: %w", err)
	}
	return points, nil
}

func (s *gormStore) GetPriceHistory(ctx context.Context, symbol string, since time.Time) ([]domain.PricePoint, error) {
	var points []domain.PricePoint
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND timestamp >= ?", domain.NormalizeSymbol(symbol), since).
		Order("timestamp DESC").
		Find(&points).Error
	if err != nil {
		return nil, fmt.Errorf("get price history: %w", err)
	}
	return points, nil
}

func (s *gormStore) GetLatestAverage(ctx context.Context, symbol string, period int) (*domain.MovingAverage, error) {
	var avg domain.MovingAverage
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND period = ?", domain.NormalizeSymbol(symbol), period).
		Order("timestamp DESC").
		First(&avg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest average: %w", err)
	}
	return &avg, nil
}

func (s *gormStore) UpsertJob(ctx context.Context, job *domain.PollingJob) error {
	if err := s.db.WithContext(ctx).Save(job).Error; err != nil {
		return fmt.Errorf("upsert job: %w", err)
	}
	return nil
}

func (s *gormStore) GetJob(ctx context.Context, jobID string) (*domain.PollingJob, error) {
	var job domain.PollingJob
	err := s.db.WithContext(ctx).Where("job_id = ?", jobID).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

func (s *gormStore) ListJobs(ctx context.Context) ([]domain.PollingJob, error) {
	var jobs []domain.PollingJob
	if err := s.db.WithContext(ctx).Order("created_at").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}
