// Package domain defines the core models shared across the pipeline:
// price points, raw provider responses, moving averages and polling jobs.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PricePoint is a single normalized price observation for a symbol.
// Immutable once created.
type PricePoint struct {
	// ID is the primary key, generated on insert.
	ID uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`

	// Symbol is the uppercase-normalized ticker (e.g., "AAPL").
	Symbol string `json:"symbol" gorm:"index:idx_price_symbol_timestamp,priority:1"`

	// Price is the observed price in the provider's quote currency.
	Price float64 `json:"price"`

	// Timestamp is when the provider reported the price (UTC).
	Timestamp time.Time `json:"timestamp" gorm:"index:idx_price_symbol_timestamp,priority:2"`

	// Provider identifies the upstream data source (e.g., "alpha_vantage").
	Provider string `json:"provider"`

	// RawResponseID references the audit record this point was parsed from.
	RawResponseID uuid.UUID `json:"raw_response_id" gorm:"type:uuid"`

	CreatedAt time.Time `json:"created_at"`
}

func (PricePoint) TableName() string { return "price_points" }

// RawResponse is the opaque payload returned by a provider call.
// Write-once, retained for audit; referenced by PricePoint, never owned.
type RawResponse struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Symbol    string    `json:"symbol" gorm:"index"`
	Provider  string    `json:"provider"`
	Payload   []byte    `json:"payload" gorm:"type:jsonb"`
	Timestamp time.Time `json:"timestamp" gorm:"index"`
	CreatedAt time.Time `json:"created_at"`
}

func (RawResponse) TableName() string { return "raw_responses" }

// MovingAverage is a derived aggregate over the last Period price points
// of a symbol. One row per computation; duplicates from redelivered events
// are kept rather than deduplicated.
type MovingAverage struct {
	ID uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`

	Symbol string `json:"symbol" gorm:"index:idx_ma_symbol_period,priority:1"`

	// Value is the arithmetic mean over exactly Period points.
	Value float64 `json:"moving_average" gorm:"column:moving_average"`

	// Period is the window size the average was computed over.
	Period int `json:"period" gorm:"index:idx_ma_symbol_period,priority:2"`

	// Timestamp is the timestamp of the price event that triggered the
	// computation, not the computation time.
	Timestamp time.Time `json:"timestamp" gorm:"index"`

	// CalculatedAt is when the aggregate was produced.
	CalculatedAt time.Time `json:"calculated_at"`
}

func (MovingAverage) TableName() string { return "moving_averages" }

// JobStatus is the lifecycle state of a polling job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobPaused    JobStatus = "paused"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Schedulable reports whether a job in this status is eligible for the
// scheduling loop. Failed jobs stop scheduling but stay resumable.
func (s JobStatus) Schedulable() bool {
	return s == JobPending || s == JobRunning
}

// Terminal reports whether the status can never transition again.
func (s JobStatus) Terminal() bool { return s == JobCancelled }

// PollingJob is a recurring fetch of one or more symbols at a fixed
// interval. Mutated only by the scheduler.
type PollingJob struct {
	// JobID is the external identifier (e.g., "poll_1a2b3c4d").
	JobID string `json:"job_id" gorm:"primaryKey"`

	// Symbols is the non-empty set of symbols polled each cycle.
	Symbols SymbolList `json:"symbols" gorm:"type:jsonb;serializer:json"`

	// Interval is the delay between cycles.
	Interval time.Duration `json:"interval"`

	Provider string    `json:"provider"`
	Status   JobStatus `json:"status" gorm:"index"`

	LastRun *time.Time `json:"last_run"`
	NextRun *time.Time `json:"next_run" gorm:"index"`

	// ErrorMessage holds the failures of the most recent cycle, empty on
	// a clean cycle.
	ErrorMessage string `json:"error_message,omitempty"`

	// FailureCount counts consecutive cycles with at least one failed
	// symbol. Reset on a clean cycle.
	FailureCount int `json:"failure_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (PollingJob) TableName() string { return "polling_jobs" }

// SymbolList is a set of ticker symbols stored as a JSON array.
type SymbolList []string

// NormalizeSymbol uppercases and trims a ticker symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
