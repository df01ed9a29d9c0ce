// Package pricereader implements the cache-aside read path: fresh
// cache hits are served directly; misses go through the rate limiter
// to the provider, are persisted and written through the cache, and
// emit a price event.
package pricereader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pricepulse/pricepulse/internal/domain"
	"github.com/pricepulse/pricepulse/internal/provider"
)

// Cache is the fast-store surface the reader consumes.
type Cache interface {
	GetPrice(ctx context.Context, providerName, symbol string) (*domain.PricePoint, error)
	SetPrice(ctx context.Context, point *domain.PricePoint) error
	MarkInvalid(ctx context.Context, symbol string) error
	IsInvalid(ctx context.Context, symbol string) (bool, error)
}

// Store is the persistence surface the reader consumes.
type Store interface {
	SavePricePoint(ctx context.Context, raw *domain.RawResponse, point *domain.PricePoint) error
}

// Limiter admits outbound provider calls.
type Limiter interface {
	Acquire(ctx context.Context, providerName string) error
}

// Publisher emits price events for downstream consumers.
type Publisher interface {
	PublishPrice(ctx context.Context, event domain.PriceEvent) error
}

// Providers resolves a provider by name.
type Providers interface {
	Get(name string) (provider.Provider, error)
}

// Reader serves price reads with cache-aside semantics.
type Reader struct {
	providers Providers
	limiter   Limiter
	cache     Cache
	store     Store
	publisher Publisher
	logger    *slog.Logger
}

// New wires a Reader from its collaborators.
func New(providers Providers, limiter Limiter, cache Cache, store Store, publisher Publisher, logger *slog.Logger) *Reader {
	return &Reader{
		providers: providers,
		limiter:   limiter,
		cache:     cache,
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// Options tunes a single read.
type Options struct {
	// Provider selects the upstream source; empty means the default.
	Provider string

	// BypassCache forces a provider fetch even when a fresh entry
	// exists. The scheduler's polling cycles set this.
	BypassCache bool
}

// GetPrice returns the current price point for the symbol.
//
// A fresh cache hit is returned without a provider call and without
// re-emitting an event. On a miss the call is admitted by the rate
// limiter, fetched from the provider, atomically persisted (raw
// response + price point), written through the cache and published.
// The point is returned even when publishing fails; publish failures
// are retried asynchronously by the producer.
func (r *Reader) GetPrice(ctx context.Context, symbol string, opts Options) (*domain.PricePoint, error) {
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("%w: empty symbol", domain.ErrInvalidSymbol)
	}

	prov, err := r.providers.Get(opts.Provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSymbol, err)
	}

	if invalid, err := r.cache.IsInvalid(ctx, symbol); err != nil {
		r.logger.Warn("negative cache lookup failed", "symbol", symbol, "error", err)
	} else if invalid {
		return nil, fmt.Errorf("%w: %s (negative cached)", domain.ErrInvalidSymbol, symbol)
	}

	if !opts.BypassCache {
		cached, err := r.cache.GetPrice(ctx, prov.Name(), symbol)
		if err != nil {
			// A broken cache degrades to a provider fetch.
			r.logger.Warn("cache lookup failed", "symbol", symbol, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	if err := r.limiter.Acquire(ctx, prov.Name()); err != nil {
		return nil, err
	}

	quote, err := prov.FetchLatestPrice(ctx, symbol)
	if errors.Is(err, domain.ErrProviderUnavailable) {
		// One rate-limited retry before surfacing the transient failure.
		r.logger.Warn("provider fetch failed, retrying once", "symbol", symbol, "error", err)
		if rerr := r.limiter.Acquire(ctx, prov.Name()); rerr != nil {
			return nil, err
		}
		quote, err = prov.FetchLatestPrice(ctx, symbol)
	}
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSymbol) {
			if cerr := r.cache.MarkInvalid(ctx, symbol); cerr != nil {
				r.logger.Warn("failed to negative-cache symbol", "symbol", symbol, "error", cerr)
			}
		}
		return nil, err
	}

	now := time.Now().UTC()
	raw := &domain.RawResponse{
		Symbol:    symbol,
		Provider:  prov.Name(),
		Payload:   quote.Raw,
		Timestamp: quote.Timestamp,
		CreatedAt: now,
	}
	point := &domain.PricePoint{
		Symbol:    symbol,
		Price:     quote.Price,
		Timestamp: quote.Timestamp,
		Provider:  prov.Name(),
		CreatedAt: now,
	}

	if err := r.store.SavePricePoint(ctx, raw, point); err != nil {
		return nil, err
	}

	if err := r.cache.SetPrice(ctx, point); err != nil {
		r.logger.Warn("cache write-through failed", "symbol", symbol, "error", err)
	}

	if err := r.publisher.PublishPrice(ctx, domain.NewPriceEvent(point)); err != nil {
		// The read already has its result; the producer retries
		// queued events on its own.
		r.logger.Error("price event publish failed", "symbol", symbol, "error", err)
	}

	return point, nil
}
