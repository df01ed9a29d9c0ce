package producer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/pricepulse/pricepulse/internal/domain"
)

type fakeWriter struct {
	mu       sync.Mutex
	written  []kafka.Message
	failures int // fail this many writes before succeeding
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failures > 0 {
		w.failures--
		return errors.New("broker unavailable")
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.written)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEvent() domain.PriceEvent {
	return domain.PriceEvent{
		Symbol:        "AAPL",
		Price:         196.45,
		Timestamp:     time.Date(2025, 6, 14, 18, 0, 0, 0, time.UTC),
		Source:        "alpha_vantage",
		RawResponseID: "8e1f0a34-1111-2222-3333-444455556666",
	}
}

func TestPublishPriceKeyedBySymbol(t *testing.T) {
	prices := &fakeWriter{}
	averages := &fakeWriter{}
	p := New(prices, averages, time.Second, 8, testLogger())

	if err := p.PublishPrice(context.Background(), testEvent()); err != nil {
		t.Fatalf("PublishPrice: %v", err)
	}

	if prices.count() != 1 {
		t.Fatalf("expected one written message, got %d", prices.count())
	}
	msg := prices.written[0]
	if string(msg.Key) != "AAPL" {
		t.Errorf("message must be keyed by symbol, got %q", msg.Key)
	}

	var decoded map[string]any
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	for _, field := range []string{"symbol", "price", "timestamp", "source", "raw_response_id"} {
		if _, ok := decoded[field]; !ok {
			t.Errorf("wire payload missing field %q", field)
		}
	}
}

func TestPublishAverageWireFields(t *testing.T) {
	prices := &fakeWriter{}
	averages := &fakeWriter{}
	p := New(prices, averages, time.Second, 8, testLogger())

	err := p.PublishAverage(context.Background(), domain.AverageEvent{
		Symbol:        "AAPL",
		MovingAverage: 104.0,
		Period:        5,
		Timestamp:     time.Now().UTC(),
		CalculatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("PublishAverage: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(averages.written[0].Value, &decoded); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	for _, field := range []string{"symbol", "moving_average", "period", "timestamp", "calculated_at"} {
		if _, ok := decoded[field]; !ok {
			t.Errorf("wire payload missing field %q", field)
		}
	}
}

func TestPublishQueuesAndRetriesOnFailure(t *testing.T) {
	prices := &fakeWriter{failures: 2}
	p := New(prices, &fakeWriter{}, 100*time.Millisecond, 8, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	// First write fails and the event is queued; Publish still reports
	// success to the caller.
	if err := p.PublishPrice(context.Background(), testEvent()); err != nil {
		t.Fatalf("publish with retry queue available: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for prices.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the retry worker to deliver")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestPublishFailsWhenQueueFull(t *testing.T) {
	// Writer always fails and no retry worker is draining.
	prices := &fakeWriter{failures: 1 << 30}
	p := New(prices, &fakeWriter{}, 10*time.Millisecond, 1, testLogger())

	if err := p.PublishPrice(context.Background(), testEvent()); err != nil {
		t.Fatalf("first failed publish should queue: %v", err)
	}

	err := p.PublishPrice(context.Background(), testEvent())
	if !errors.Is(err, domain.ErrPublish) {
		t.Fatalf("expected ErrPublish once the queue is full, got %v", err)
	}
}
