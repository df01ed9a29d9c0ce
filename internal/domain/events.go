package domain

import "time"

// PriceEvent is the wire form of a PricePoint published to the price
// events topic. Keyed by symbol so per-symbol ordering is preserved
// within a partition.
type PriceEvent struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Timestamp     time.Time `json:"timestamp"`
	Source        string    `json:"source"`
	RawResponseID string    `json:"raw_response_id"`
}

// AverageEvent is the wire form of a MovingAverage published to the
// symbol averages topic.
type AverageEvent struct {
	Symbol        string    `json:"symbol"`
	MovingAverage float64   `json:"moving_average"`
	Period        int       `json:"period"`
	Timestamp     time.Time `json:"timestamp"`
	CalculatedAt  time.Time `json:"calculated_at"`
}

// NewPriceEvent builds the wire event for a persisted price point.
func NewPriceEvent(p *PricePoint) PriceEvent {
	return PriceEvent{
		Symbol:        p.Symbol,
		Price:         p.Price,
		Timestamp:     p.Timestamp.UTC(),
		Source:        p.Provider,
		RawResponseID: p.RawResponseID.String(),
	}
}

// NewAverageEvent builds the wire event for a persisted moving average.
func NewAverageEvent(ma *MovingAverage) AverageEvent {
	return AverageEvent{
		Symbol:        ma.Symbol,
		MovingAverage: ma.Value,
		Period:        ma.Period,
		Timestamp:     ma.Timestamp.UTC(),
		CalculatedAt:  ma.CalculatedAt.UTC(),
	}
}
