// Package provider defines the market data provider capability and its
// implementations. A provider performs exactly one network round trip
// per fetch; retry and caching policy belong to the caller.
package provider

import (
	"context"
	"encoding/json"
	"time"
)

// Quote is the normalized result of a single provider fetch.
type Quote struct {
	Symbol    string
	Price     float64
	Timestamp time.Time

	// Raw is the unmodified provider payload, retained for audit.
	Raw json.RawMessage
}

// Provider fetches the current price for a symbol from one upstream
// data source. Implementations must not retry or cache internally.
type Provider interface {
	Name() string
	FetchLatestPrice(ctx context.Context, symbol string) (Quote, error)
}
